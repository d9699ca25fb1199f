package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoVectorIndex = "vector_index"

type mongoChunk struct {
	ID         string    `bson:"_id"`
	DocumentID string    `bson:"document_id"`
	Title      string    `bson:"title"`
	Source     string    `bson:"source"`
	Page       int       `bson:"page"`
	ChunkIndex int       `bson:"chunk_index"`
	Content    string    `bson:"content"`
	Embedding  []float64 `bson:"embedding"`
	Score      float64   `bson:"score,omitempty"`
}

// MongoStore uses MongoDB Atlas $vectorSearch.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if collection == "" {
		collection = "document_chunks"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	return &MongoStore{client: client, collection: client.Database(database).Collection(collection)}, nil
}

// CreateSchema creates a document_id index and the Atlas vector index.
func (ms *MongoStore) CreateSchema(ctx context.Context, dims int) error {
	if _, err := ms.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "document_id", Value: 1}},
		Options: options.Index().SetName("document_id"),
	}); err != nil {
		return fmt.Errorf("mongo index: %w", err)
	}
	cmd := bson.D{
		{Key: "createSearchIndexes", Value: ms.collection.Name()},
		{Key: "indexes", Value: bson.A{bson.D{
			{Key: "name", Value: mongoVectorIndex},
			{Key: "type", Value: "vectorSearch"},
			{Key: "definition", Value: bson.D{{Key: "fields", Value: bson.A{
				bson.D{
					{Key: "type", Value: "vector"},
					{Key: "path", Value: "embedding"},
					{Key: "numDimensions", Value: dims},
					{Key: "similarity", Value: "cosine"},
				},
				bson.D{{Key: "type", Value: "filter"}, {Key: "path", Value: "document_id"}},
			}}}},
		}}},
	}
	if err := ms.collection.Database().RunCommand(ctx, cmd).Err(); err != nil {
		var ce mongo.CommandError
		if errors.As(err, &ce) && ce.Name == "IndexAlreadyExists" {
			return nil
		}
		return fmt.Errorf("mongo vector index: %w", err)
	}
	return nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func (ms *MongoStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		doc := mongoChunk{
			ID:         r.ID,
			DocumentID: r.DocumentID,
			Title:      r.Title,
			Source:     r.Source,
			Page:       r.Page,
			ChunkIndex: r.ChunkIndex,
			Content:    r.Content,
			Embedding:  toFloat64(r.Embedding),
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": r.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}
	if _, err := ms.collection.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("mongo upsert: %w", err)
	}
	return nil
}

func vectorSearchStage(query []float32, limit int, filter Filter) bson.D {
	stage := bson.D{
		{Key: "index", Value: mongoVectorIndex},
		{Key: "path", Value: "embedding"},
		{Key: "queryVector", Value: toFloat64(query)},
		{Key: "numCandidates", Value: max(limit*10, 100)},
		{Key: "limit", Value: limit},
	}
	if len(filter.DocumentIDs) > 0 {
		stage = append(stage, bson.E{Key: "filter", Value: bson.D{
			{Key: "document_id", Value: bson.D{{Key: "$in", Value: filter.DocumentIDs}}},
		}})
	}
	return bson.D{{Key: "$vectorSearch", Value: stage}}
}

func (ms *MongoStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	pipeline := mongo.Pipeline{
		vectorSearchStage(query, limit, filter),
		{{Key: "$addFields", Value: bson.D{{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}}}}},
	}
	cursor, err := ms.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo search: %w", err)
	}
	defer cursor.Close(ctx)

	var out []Record
	for cursor.Next(ctx) {
		var doc mongoChunk
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, Record{
			ID:         doc.ID,
			DocumentID: doc.DocumentID,
			Title:      doc.Title,
			Source:     doc.Source,
			Page:       doc.Page,
			ChunkIndex: doc.ChunkIndex,
			Content:    doc.Content,
			Embedding:  toFloat32(doc.Embedding),
			// Atlas reports cosine as (1 + cos) / 2.
			Score: 2*doc.Score - 1,
		})
	}
	return out, cursor.Err()
}

func (ms *MongoStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := ms.collection.DeleteMany(ctx, bson.M{"document_id": documentID})
	return err
}

func (ms *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := ms.collection.CountDocuments(ctx, bson.M{})
	return int(n), err
}

func (ms *MongoStore) Close(ctx context.Context) error {
	return ms.client.Disconnect(ctx)
}

var (
	_ VectorStore       = (*MongoStore)(nil)
	_ SchemaInitializer = (*MongoStore)(nil)
)
