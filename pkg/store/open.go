package store

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a backend for Open.
type Options struct {
	Backend     string
	PostgresDSN string
	QdrantURL   string
	QdrantKey   string
	Collection  string
	MongoURI    string
	MongoDB     string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string
}

// Open connects to the configured backend.
func Open(ctx context.Context, o Options) (VectorStore, error) {
	switch strings.ToLower(o.Backend) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return NewPostgresStore(ctx, o.PostgresDSN, o.Collection)
	case "qdrant":
		return NewQdrantStore(o.QdrantURL, o.Collection, o.QdrantKey), nil
	case "mongo":
		return NewMongoStore(ctx, o.MongoURI, o.MongoDB, o.Collection)
	case "neo4j":
		return NewNeo4jStore(ctx, o.Neo4jURI, o.Neo4jUser, o.Neo4jPass, "")
	default:
		return nil, fmt.Errorf("unknown vector backend %q", o.Backend)
	}
}

// Close releases s if it holds connections.
func Close(ctx context.Context, s VectorStore) error {
	if c, ok := s.(Closer); ok {
		return c.Close(ctx)
	}
	return nil
}
