package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	ragerr "agentic_rag/backend/go/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("app:\n  name: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.App.Name)
	assert.Equal(t, 1000, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 200, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, "local", cfg.VectorStore.Type)
	assert.Equal(t, "./vector_store", cfg.VectorStore.Path)
	assert.Equal(t, "models/text-embedding-004", cfg.Embedding.Model)
	assert.Equal(t, "gemini-2.0-flash", cfg.LLM.Model)
	assert.Equal(t, 120*time.Second, cfg.Protocol.Timeout.Std())
	assert.Equal(t, "stdio", cfg.Transport.MCP.Type)
}

func TestParseKeepsExplicitValues(t *testing.T) {
	raw := `
embedding:
  provider: hashing
  dimensions: 64
  timeout: 5s
ingestion:
  chunkSize: 500
  chunkOverlap: 0
protocol:
  timeout: 2m
  traceRecorder: redis
`
	cfg, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "hashing", cfg.Embedding.Provider)
	assert.Equal(t, 64, cfg.Embedding.Dimensions)
	assert.Equal(t, 5*time.Second, cfg.Embedding.Timeout.Std())
	assert.Equal(t, 500, cfg.Ingestion.ChunkSize)
	assert.Equal(t, 0, cfg.Ingestion.ChunkOverlap)
	assert.Equal(t, 2*time.Minute, cfg.Protocol.Timeout.Std())
	assert.Equal(t, "redis", cfg.Protocol.TraceRecorder)
}

func TestParseExpandsEnvironment(t *testing.T) {
	t.Setenv("RAG_TEST_STORE", "/data/rag")
	cfg, err := Parse([]byte("vectorStore:\n  path: ${RAG_TEST_STORE}\n"))
	require.NoError(t, err)
	assert.Equal(t, "/data/rag", cfg.VectorStore.Path)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"overlap not below size", "ingestion:\n  chunkSize: 100\n  chunkOverlap: 100\n"},
		{"negative overlap", "ingestion:\n  chunkSize: 100\n  chunkOverlap: -1\n"},
		{"unknown store", "vectorStore:\n  type: faiss\n"},
		{"milvus without address", "vectorStore:\n  type: milvus\n"},
		{"unknown recorder", "protocol:\n  traceRecorder: disk\n"},
		{"kafka without brokers", "transport:\n  kafka:\n    enabled: true\n"},
		{"unknown rate limiter", "middleware:\n  rateLimiter:\n    algorithm: random_drop\n"},
		{"bad duration", "protocol:\n  timeout: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			require.Error(t, err)
			assert.True(t, ragerr.HasCode(err, ragerr.CodeConfigInvalid))
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  topK: 7\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retrieval.TopK)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, ragerr.HasCode(err, ragerr.CodeConfigInvalid))
}

func TestShippedConfig(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "test-key")
	cfg, err := LoadConfig(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.Embedding.APIKey)
	assert.Equal(t, 512, cfg.Embedding.CacheSize)
	assert.Equal(t, 24*time.Hour, cfg.Protocol.TraceTTL.Std())
	assert.Equal(t, 10000, cfg.Protocol.MaxTraces)
	assert.Equal(t, "token_bucket", cfg.Middleware.RateLimiter.Algorithm)
	assert.Equal(t, time.Second, cfg.Middleware.RateLimiter.Window.Std())
	assert.False(t, cfg.Transport.Kafka.Enabled)
	assert.Empty(t, cfg.Databases.MySQL.Address)
	assert.Equal(t, uint32(5), cfg.Middleware.CircuitBreaker.FailureThreshold)
}
