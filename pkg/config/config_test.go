package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bm25", cfg.Retrieval.Model)
	assert.Equal(t, 1000, cfg.Retrieval.K)
	assert.InDelta(t, 1.2, cfg.Retrieval.K1, 1e-12)
	assert.InDelta(t, 0.75, cfg.Retrieval.B, 1e-12)
	assert.InDelta(t, 0.8, cfg.Retrieval.Lambda, 1e-12)
	assert.InDelta(t, 2000.0, cfg.Retrieval.Mu, 1e-12)
	assert.False(t, cfg.Retrieval.DedupTerms)
	assert.Equal(t, []string{"the"}, cfg.Index.Stopwords)
	assert.Equal(t, 1000, cfg.Fusion.Depth)
	assert.Positive(t, cfg.Retrieval.PoolSize)
}

func TestLoadYAMLAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
index:
  storePath: /tmp/idx.db
retrieval:
  model: ql-dir
  k: 50
  poolSize: 3
  mu: 1500
redis:
  cacheTTL: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("TR_RETRIEVAL_K", "25")
	t.Setenv("TR_RETRIEVAL_DEDUP_TERMS", "true")
	t.Setenv("TR_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("TR_SERVER_CORS_ORIGINS", "http://localhost:3000")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/idx.db", cfg.Index.StorePath)
	assert.Equal(t, "ql-dir", cfg.Retrieval.Model)
	assert.Equal(t, 25, cfg.Retrieval.K)
	assert.Equal(t, 3, cfg.Retrieval.PoolSize)
	assert.InDelta(t, 1500.0, cfg.Retrieval.Mu, 1e-12)
	assert.True(t, cfg.Retrieval.DedupTerms)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  k: 0\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retrieval.k")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestPostgresDSN(t *testing.T) {
	p := Default().Postgres
	assert.Equal(t,
		"host=localhost port=5432 user=trecranker password=localdev dbname=trecranker sslmode=disable",
		p.DSN(),
	)
}
