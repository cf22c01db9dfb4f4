// Package config loads the engine configuration from YAML with
// environment overrides, falling back to defaults when no file exists.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SegmenterConfig configures how transcripts are split into fragments.
type SegmenterConfig struct {
	MaxChars     int `yaml:"max_chars"`
	OverlapChars int `yaml:"overlap_chars"`
}

// OpenAIEmbedderConfig holds settings for the OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the embedding encoder.
type EmbedderConfig struct {
	Type      string                `yaml:"type"` // hashing | openai
	BatchSize int                   `yaml:"batch_size"`
	Dimension int                   `yaml:"dimension"` // hashing only
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	Type       string        `yaml:"type"` // sqlite | memory | qdrant
	DataDir    string        `yaml:"data_dir"`
	Collection string        `yaml:"collection"`
	Qdrant     *QdrantConfig `yaml:"qdrant,omitempty"`
}

// AppConfig is the root application configuration.
type AppConfig struct {
	Segmenter   SegmenterConfig   `yaml:"segmenter"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
}

// DefaultPath is the config file looked up when --config is not given.
const DefaultPath = "clinrag.yaml"

// Load reads a config from path. A missing file yields the defaults.
// Environment overrides are applied on top either way.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Segmenter: SegmenterConfig{MaxChars: 900, OverlapChars: 120},
		Embedder:  EmbedderConfig{Type: "hashing", BatchSize: 32, Dimension: 384},
		VectorStore: VectorStoreConfig{
			Type:       "sqlite",
			DataDir:    "data/index",
			Collection: "elsol_conversations",
		},
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Segmenter.MaxChars <= 0 {
		cfg.Segmenter.MaxChars = 900
	}
	if cfg.Segmenter.OverlapChars < 0 {
		cfg.Segmenter.OverlapChars = 120
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.BatchSize <= 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.Dimension <= 0 {
		cfg.Embedder.Dimension = 384
	}
	if cfg.Embedder.Type == "openai" && cfg.Embedder.OpenAI != nil {
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.DataDir == "" {
		cfg.VectorStore.DataDir = "data/index"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "elsol_conversations"
	}
}

// applyEnv layers the env-style surface over the file:
// CLINRAG_DATA_DIR, CLINRAG_PERSIST, CLINRAG_COLLECTION and
// CLINRAG_EMB_BATCH. CLINRAG_PERSIST=0 switches the default sqlite
// store to the in-memory one.
func applyEnv(cfg *AppConfig) {
	if v := os.Getenv("CLINRAG_DATA_DIR"); v != "" {
		cfg.VectorStore.DataDir = v
	}
	if v := os.Getenv("CLINRAG_COLLECTION"); v != "" {
		cfg.VectorStore.Collection = v
	}
	if v := os.Getenv("CLINRAG_EMB_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Embedder.BatchSize = n
		}
	}
	if v := os.Getenv("CLINRAG_PERSIST"); v != "" && cfg.VectorStore.Type == "sqlite" {
		switch strings.ToLower(v) {
		case "0", "false", "no", "off":
			cfg.VectorStore.Type = "memory"
		}
	}
}
