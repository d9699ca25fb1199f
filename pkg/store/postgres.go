package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps chunks in a pgvector table.
type PostgresStore struct {
	DB    *pgxpool.Pool
	Table string
}

func NewPostgresStore(ctx context.Context, connStr, table string) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if table == "" {
		table = "document_chunks"
	}
	return &PostgresStore{DB: db, Table: table}, nil
}

func (ps *PostgresStore) table() string { return pgx.Identifier{ps.Table}.Sanitize() }

// CreateSchema creates the pgvector extension, table and indexes.
func (ps *PostgresStore) CreateSchema(ctx context.Context, dims int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			page INT NOT NULL DEFAULT 0,
			chunk_index INT NOT NULL DEFAULT 0,
			content TEXT NOT NULL,
			embedding vector(%d) NOT NULL
		)`, ps.table(), dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{ps.Table + "_document_id_idx"}.Sanitize(), ps.table()),
	}
	for _, s := range stmts {
		if _, err := ps.DB.Exec(ctx, s); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	return nil
}

func (ps *PostgresStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	q := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, title, source, page, chunk_index, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector)
		ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id, title = EXCLUDED.title, source = EXCLUDED.source,
			page = EXCLUDED.page, chunk_index = EXCLUDED.chunk_index,
			content = EXCLUDED.content, embedding = EXCLUDED.embedding`, ps.table())
	for _, r := range records {
		batch.Queue(q, r.ID, r.DocumentID, r.Title, r.Source, r.Page, r.ChunkIndex, r.Content, vectorLiteral(r.Embedding))
	}
	if err := ps.DB.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres upsert: %w", err)
	}
	return nil
}

func (ps *PostgresStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	where := ""
	args := []any{vectorLiteral(query), limit}
	if len(filter.DocumentIDs) > 0 {
		where = "WHERE document_id = ANY($3)"
		args = append(args, filter.DocumentIDs)
	}
	rows, err := ps.DB.Query(ctx, fmt.Sprintf(`
		SELECT id, document_id, title, source, page, chunk_index, content, embedding::text,
		       (embedding <=> $1::vector) AS distance
		FROM %s %s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, ps.table(), where), args...)
	if err != nil {
		return nil, fmt.Errorf("postgres search: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r        Record
			vec      string
			distance float64
		)
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Title, &r.Source, &r.Page, &r.ChunkIndex, &r.Content, &vec, &distance); err != nil {
			return nil, err
		}
		r.Embedding = parseVector(vec)
		// <=> is cosine distance
		r.Score = 1 - distance
		out = append(out, r)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := ps.DB.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1`, ps.table()), documentID)
	return err
}

func (ps *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := ps.DB.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, ps.table())).Scan(&n)
	return n, err
}

func (ps *PostgresStore) Close(context.Context) error {
	ps.DB.Close()
	return nil
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(text string) []float32 {
	text = strings.Trim(text, "[]")
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

var (
	_ VectorStore       = (*PostgresStore)(nil)
	_ SchemaInitializer = (*PostgresStore)(nil)
)
