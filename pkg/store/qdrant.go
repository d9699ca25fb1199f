package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// qdrantStatus accepts both `"status": "ok"` and `"status": {"error": "..."}`.
type qdrantStatus struct {
	State string
	Error string
}

func (s *qdrantStatus) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		s.State = strings.ToLower(v)
		return nil
	}
	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	if obj.Error != "" {
		s.State = "error"
		s.Error = obj.Error
	}
	return nil
}

type qdrantEnvelope[T any] struct {
	Status qdrantStatus `json:"status"`
	Result T            `json:"result"`
}

type qdrantPoint struct {
	ID      string        `json:"id"`
	Vector  []float32     `json:"vector,omitempty"`
	Payload qdrantPayload `json:"payload"`
	Score   float64       `json:"score,omitempty"`
}

type qdrantPayload struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Source     string `json:"source,omitempty"`
	Page       int    `json:"page"`
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// QdrantStore talks to Qdrant's REST API. Chunk IDs are mapped to
// deterministic UUIDs since Qdrant only accepts integers or UUIDs.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

func NewQdrantStore(baseURL, collection, apiKey string) *QdrantStore {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: 30 * time.Second},
	}
}

func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

func (qs *QdrantStore) path(suffix string) string {
	return "/collections/" + url.PathEscape(qs.collection) + suffix
}

// CreateSchema creates the collection and a payload index on document_id.
// Existing collections are left untouched.
func (qs *QdrantStore) CreateSchema(ctx context.Context, dims int) error {
	req := map[string]any{"vectors": map[string]any{"size": dims, "distance": "Cosine"}}
	if err := qs.do(ctx, http.MethodPut, qs.path(""), req, nil); err != nil {
		if !strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return err
		}
	}
	idx := map[string]any{"field_name": "document_id", "field_schema": "keyword"}
	return qs.do(ctx, http.MethodPut, qs.path("/index?wait=true"), idx, nil)
}

func (qs *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]qdrantPoint, 0, len(records))
	for _, r := range records {
		points = append(points, qdrantPoint{
			ID:     pointID(r.ID),
			Vector: r.Embedding,
			Payload: qdrantPayload{
				ChunkID:    r.ID,
				DocumentID: r.DocumentID,
				Title:      r.Title,
				Source:     r.Source,
				Page:       r.Page,
				ChunkIndex: r.ChunkIndex,
				Content:    r.Content,
			},
		})
	}
	return qs.do(ctx, http.MethodPut, qs.path("/points?wait=true"), map[string]any{"points": points}, nil)
}

func documentFilter(ids []string) map[string]any {
	return map[string]any{"must": []any{
		map[string]any{"key": "document_id", "match": map[string]any{"any": ids}},
	}}
}

func (qs *QdrantStore) Search(ctx context.Context, query []float32, limit int, filter Filter) ([]Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       query,
		"limit":        limit,
		"with_payload": true,
		"with_vector":  true,
	}
	if len(filter.DocumentIDs) > 0 {
		req["filter"] = documentFilter(filter.DocumentIDs)
	}
	var resp qdrantEnvelope[[]qdrantPoint]
	if err := qs.do(ctx, http.MethodPost, qs.path("/points/search"), req, &resp); err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, Record{
			ID:         p.Payload.ChunkID,
			DocumentID: p.Payload.DocumentID,
			Title:      p.Payload.Title,
			Source:     p.Payload.Source,
			Page:       p.Payload.Page,
			ChunkIndex: p.Payload.ChunkIndex,
			Content:    p.Payload.Content,
			Embedding:  p.Vector,
			Score:      p.Score,
		})
	}
	return out, nil
}

func (qs *QdrantStore) DeleteDocument(ctx context.Context, documentID string) error {
	req := map[string]any{"filter": documentFilter([]string{documentID})}
	return qs.do(ctx, http.MethodPost, qs.path("/points/delete?wait=true"), req, nil)
}

func (qs *QdrantStore) Count(ctx context.Context) (int, error) {
	var resp qdrantEnvelope[struct {
		Count int `json:"count"`
	}]
	if err := qs.do(ctx, http.MethodPost, qs.path("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (qs *QdrantStore) do(ctx context.Context, method, path string, body any, out any) error {
	u := qs.baseURL + path
	var buf io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		buf = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if qs.apiKey != "" {
		req.Header.Set("api-key", qs.apiKey)
	}
	resp, err := qs.client.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if resp.StatusCode >= 400 {
		var env qdrantEnvelope[json.RawMessage]
		if json.Unmarshal(payload, &env) == nil && env.Status.Error != "" {
			return fmt.Errorf("qdrant %s %s -> http %d: %s", method, path, resp.StatusCode, env.Status.Error)
		}
		return fmt.Errorf("qdrant %s %s -> http %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}
	if out != nil && len(payload) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("qdrant decode: %w", err)
		}
	}
	return nil
}

var (
	_ VectorStore       = (*QdrantStore)(nil)
	_ SchemaInitializer = (*QdrantStore)(nil)
)
