package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.Segmenter.MaxChars)
	assert.Equal(t, 120, cfg.Segmenter.OverlapChars)
	assert.Equal(t, "hashing", cfg.Embedder.Type)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
	assert.Equal(t, 384, cfg.Embedder.Dimension)
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
	assert.Equal(t, "data/index", cfg.VectorStore.DataDir)
	assert.Equal(t, "elsol_conversations", cfg.VectorStore.Collection)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinrag.yaml")
	data := []byte(`
segmenter:
  max_chars: 500
  overlap_chars: 50
embedder:
  type: openai
  batch_size: 16
  openai:
    model: text-embedding-3-large
vector_store:
  type: qdrant
  collection: clinic
  qdrant:
    url: http://localhost:6333
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Segmenter.MaxChars)
	assert.Equal(t, 50, cfg.Segmenter.OverlapChars)
	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, 16, cfg.Embedder.BatchSize)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv, "missing key env gets a default")
	assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "clinic", cfg.VectorStore.Collection)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "http://localhost:6333", cfg.VectorStore.Qdrant.URL)
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clinrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("segmenter: ["), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLINRAG_DATA_DIR", "/tmp/clinic-data")
	t.Setenv("CLINRAG_COLLECTION", "override_coll")
	t.Setenv("CLINRAG_EMB_BATCH", "64")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/clinic-data", cfg.VectorStore.DataDir)
	assert.Equal(t, "override_coll", cfg.VectorStore.Collection)
	assert.Equal(t, 64, cfg.Embedder.BatchSize)
}

func TestPersistOffSwitchesToMemory(t *testing.T) {
	t.Setenv("CLINRAG_PERSIST", "0")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.VectorStore.Type)

	t.Setenv("CLINRAG_PERSIST", "false")
	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.VectorStore.Type)

	t.Setenv("CLINRAG_PERSIST", "1")
	cfg, err = Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.VectorStore.Type)
}

func TestInvalidEmbBatchIgnored(t *testing.T) {
	t.Setenv("CLINRAG_EMB_BATCH", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Embedder.BatchSize)
}
