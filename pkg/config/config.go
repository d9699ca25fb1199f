// Package config loads service settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// LLM selects and tunes the chat model used by every chain.
type LLM struct {
	Provider   string        `env:"LLM_PROVIDER,default=ollama"`
	Model      string        `env:"LLM_MODEL,default=llama3.1"`
	NumCtx     int           `env:"LLM_NUM_CTX,default=8192"`
	Timeout    time.Duration `env:"LLM_TIMEOUT,default=120s"`
	MaxRetries int           `env:"LLM_MAX_RETRIES,default=2"`
	RatePerSec float64       `env:"LLM_RATE_PER_SEC,default=0"`
	CacheSize  int           `env:"LLM_CACHE_SIZE,default=0"`
	CacheTTL   time.Duration `env:"LLM_CACHE_TTL,default=5m"`
	CachePath  string        `env:"LLM_CACHE_PATH"`
}

// Embedding selects the passage embedder.
type Embedding struct {
	Provider string `env:"EMBED_PROVIDER,default=ollama"`
	Model    string `env:"EMBED_MODEL"`
	CacheDir string `env:"EMBED_CACHE_DIR,default=local_cache"`
}

// VectorStore selects the backing store for document chunks.
type VectorStore struct {
	Backend     string `env:"VECTOR_BACKEND,default=memory"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	QdrantURL   string `env:"QDRANT_URL,default=http://localhost:6333"`
	QdrantKey   string `env:"QDRANT_API_KEY"`
	Collection  string `env:"VECTOR_COLLECTION,default=ecosynthesia"`
	MongoURI    string `env:"MONGO_URI"`
	MongoDB     string `env:"MONGO_DATABASE,default=ecosynthesia"`
	Neo4jURI    string `env:"NEO4J_URI"`
	Neo4jUser   string `env:"NEO4J_USER,default=neo4j"`
	Neo4jPass   string `env:"NEO4J_PASSWORD"`
}

// RAG tunes chunking and retrieval.
type RAG struct {
	ChunkSize        int     `env:"RAG_CHUNK_SIZE,default=1000"`
	ChunkOverlap     int     `env:"RAG_CHUNK_OVERLAP,default=200"`
	TopK             int     `env:"RAG_TOP_K,default=4"`
	MaxContextChunks int     `env:"RAG_MAX_CONTEXT_CHUNKS,default=24"`
	MinScore         float64 `env:"RAG_MIN_SCORE,default=-1"`
	SummaryMaxChars  int     `env:"SUMMARY_MAX_CHARS,default=24000"`
	SummaryMaxWords  int     `env:"SUMMARY_MAX_WORDS,default=800"`
	MinConfidence    float64 `env:"EXTRACTION_MIN_CONFIDENCE,default=0"`
	IndexWorkers     int     `env:"INDEX_WORKERS,default=4"`
}

// Tracking configures the experiment store.
type Tracking struct {
	DSN        string `env:"TRACKING_DSN,default=file:mlruns.db"`
	Experiment string `env:"TRACKING_EXPERIMENT,default=ecoSynthesIA_Production"`
	Disabled   bool   `env:"TRACKING_DISABLED,default=false"`
}

// Config is the full service configuration.
type Config struct {
	Addr           string        `env:"ADDR,default=:8000"`
	DocumentRoot   string        `env:"DOCUMENT_ROOT,default=."`
	MaxConcurrent  int64         `env:"MAX_CONCURRENT_ANALYSES,default=2"`
	MaxBodyBytes   int64         `env:"MAX_BODY_BYTES,default=1048576"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=15m"`
	Classifier     string        `env:"CLASSIFIER,default=llm"`
	LogLevel       string        `env:"LOG_LEVEL,default=info"`
	LogFormat      string        `env:"LOG_FORMAT,default=json"`

	LLM         LLM
	Embedding   Embedding
	VectorStore VectorStore
	RAG         RAG
	Tracking    Tracking
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load(ctx context.Context) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom decodes configuration from the given lookuper.
func LoadFrom(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	var errs []error
	if c.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("RAG_CHUNK_SIZE must be positive, got %d", c.RAG.ChunkSize))
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("RAG_CHUNK_OVERLAP must be in [0, %d), got %d", c.RAG.ChunkSize, c.RAG.ChunkOverlap))
	}
	if c.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAG.TopK))
	}
	if c.RAG.MinConfidence < 0 || c.RAG.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("EXTRACTION_MIN_CONFIDENCE must be in [0, 1], got %v", c.RAG.MinConfidence))
	}
	if c.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_ANALYSES must be positive, got %d", c.MaxConcurrent))
	}
	switch strings.ToLower(c.VectorStore.Backend) {
	case "memory", "postgres", "qdrant", "mongo", "neo4j":
	default:
		errs = append(errs, fmt.Errorf("unknown VECTOR_BACKEND %q", c.VectorStore.Backend))
	}
	switch strings.ToLower(c.Classifier) {
	case "llm", "keyword":
	default:
		errs = append(errs, fmt.Errorf("unknown CLASSIFIER %q", c.Classifier))
	}
	return errors.Join(errs...)
}
