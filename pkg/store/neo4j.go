package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const neo4jVectorIndex = "chunk_embedding"

// neo4jExecutor is the slice of the driver the store needs, so tests can
// substitute a fake.
type neo4jExecutor interface {
	Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error)
	Close(ctx context.Context) error
}

// Neo4jStore keeps chunks as (:Chunk) nodes linked to their (:Document) and
// searches them through a native vector index.
type Neo4jStore struct {
	exec neo4jExecutor
}

// NewNeo4jStore connects with basic auth.
func NewNeo4jStore(ctx context.Context, uri, user, password, database string) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	return &Neo4jStore{exec: &neo4jDriverExecutor{driver: driver, database: database}}, nil
}

func newNeo4jStoreWith(exec neo4jExecutor) (*Neo4jStore, error) {
	if exec == nil {
		return nil, errors.New("neo4j executor is nil")
	}
	return &Neo4jStore{exec: exec}, nil
}

func (s *Neo4jStore) CreateSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE CONSTRAINT chunk_id IF NOT EXISTS FOR (c:Chunk) REQUIRE c.id IS UNIQUE`,
		`CREATE INDEX chunk_document IF NOT EXISTS FOR (c:Chunk) ON (c.document_id)`,
		fmt.Sprintf("CREATE VECTOR INDEX %s IF NOT EXISTS FOR (c:Chunk) ON (c.embedding) "+
			"OPTIONS {indexConfig: {`vector.dimensions`: %d, `vector.similarity_function`: 'cosine'}}", neo4jVectorIndex, dims),
	}
	for _, q := range stmts {
		if _, err := s.exec.Execute(ctx, q, nil, true); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return nil
}

func (s *Neo4jStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, map[string]any{
			"id":          r.ID,
			"document_id": r.DocumentID,
			"title":       r.Title,
			"source":      r.Source,
			"page":        int64(r.Page),
			"chunk_index": int64(r.ChunkIndex),
			"content":     r.Content,
			"embedding":   toFloat64(r.Embedding),
		})
	}
	_, err := s.exec.Execute(ctx, `
		UNWIND $rows AS row
		MERGE (d:Document {id: row.document_id})
		SET d.title = row.title, d.source = row.source
		MERGE (c:Chunk {id: row.id})
		SET c.document_id = row.document_id, c.page = row.page, c.chunk_index = row.chunk_index,
		    c.content = row.content, c.title = row.title, c.source = row.source
		WITH c, d, row
		CALL db.create.setNodeVectorProperty(c, 'embedding', row.embedding)
		MERGE (d)-[:HAS_CHUNK]->(c)`, map[string]any{"rows": rows}, true)
	if err != nil {
		return fmt.Errorf("neo4j upsert: %w", err)
	}
	return nil
}

func (s *Neo4jStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	candidates := limit
	if len(filter.DocumentIDs) > 0 {
		candidates = max(limit*10, 100)
	}
	docs := filter.DocumentIDs
	if docs == nil {
		docs = []string{}
	}
	rows, err := s.exec.Execute(ctx, `
		CALL db.index.vector.queryNodes($index, $candidates, $embedding) YIELD node, score
		WHERE size($docs) = 0 OR node.document_id IN $docs
		RETURN node.id AS id, node.document_id AS document_id, node.title AS title, node.source AS source,
		       node.page AS page, node.chunk_index AS chunk_index, node.content AS content, score
		ORDER BY score DESC
		LIMIT $limit`, map[string]any{
		"index":      neo4jVectorIndex,
		"candidates": int64(candidates),
		"embedding":  toFloat64(query),
		"docs":       docs,
		"limit":      int64(limit),
	}, false)
	if err != nil {
		return nil, fmt.Errorf("neo4j search: %w", err)
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, Record{
			ID:         asString(row["id"]),
			DocumentID: asString(row["document_id"]),
			Title:      asString(row["title"]),
			Source:     asString(row["source"]),
			Page:       asInt(row["page"]),
			ChunkIndex: asInt(row["chunk_index"]),
			Content:    asString(row["content"]),
			// vector index scores cosine as (1 + cos) / 2
			Score: 2*asFloat(row["score"]) - 1,
		})
	}
	return out, nil
}

func (s *Neo4jStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.exec.Execute(ctx, `MATCH (c:Chunk {document_id: $id}) DETACH DELETE c`, map[string]any{"id": documentID}, true)
	return err
}

func (s *Neo4jStore) Count(ctx context.Context) (int, error) {
	rows, err := s.exec.Execute(ctx, `MATCH (c:Chunk) RETURN count(c) AS n`, nil, false)
	if err != nil || len(rows) == 0 {
		return 0, err
	}
	return asInt(rows[0]["n"]), nil
}

func (s *Neo4jStore) Close(ctx context.Context) error { return s.exec.Close(ctx) }

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	}
	return 0
}

type neo4jDriverExecutor struct {
	driver   neo4j.DriverWithContext
	database string
}

func (e *neo4jDriverExecutor) Execute(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
	opts := []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithDatabase(e.database)}
	if !write {
		opts = append(opts, neo4j.ExecuteQueryWithReadersRouting())
	}
	res, err := neo4j.ExecuteQuery(ctx, e.driver, query, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(res.Records))
	for _, rec := range res.Records {
		rows = append(rows, rec.AsMap())
	}
	return rows, nil
}

func (e *neo4jDriverExecutor) Close(ctx context.Context) error { return e.driver.Close(ctx) }

var (
	_ VectorStore       = (*Neo4jStore)(nil)
	_ SchemaInitializer = (*Neo4jStore)(nil)
)
