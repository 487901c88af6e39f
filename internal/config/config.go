package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// OllamaEmbedderConfig points at a local Ollama server.
type OllamaEmbedderConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// CacheConfig enables the Redis embedding cache when Addr is set.
type CacheConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
	TTLSecs  int    `yaml:"ttl_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	BatchSize   int                   `yaml:"batch_size"`
	TimeoutSecs int                   `yaml:"timeout_secs"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Ollama      *OllamaEmbedderConfig `yaml:"ollama,omitempty"`
	Cache       *CacheConfig          `yaml:"cache,omitempty"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `yaml:"type"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	SentencesPerChunk int    `yaml:"sentences_per_chunk"`
	OverlapSentences  int    `yaml:"overlap_sentences"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type        string        `yaml:"type"`
	Path        string        `yaml:"path"`
	TimeoutSecs int           `yaml:"timeout_secs"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Prefix      string `yaml:"prefix"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// ServiceConfig holds request defaults and policies.
type ServiceConfig struct {
	DefaultCollection string `yaml:"default_collection"`
	NResults          int    `yaml:"n_results"`
	RemovePolicy      string `yaml:"remove_policy"`
	HTTPTimeoutSecs   int    `yaml:"http_timeout_secs"`
	TempDir           string `yaml:"temp_dir"`
}

// SessionConfig configures conversation summaries.
type SessionConfig struct {
	Collection   string `yaml:"collection"`
	MaxSentences int    `yaml:"max_sentences"`
	Workers      int    `yaml:"workers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Service     ServiceConfig     `yaml:"service"`
	Session     SessionConfig     `yaml:"session"`
	Log         LogConfig         `yaml:"log"`
}

// EmbedTimeout bounds one model call.
func (c *AppConfig) EmbedTimeout() time.Duration {
	return time.Duration(c.Embedder.TimeoutSecs) * time.Second
}

// StoreTimeout bounds one vector store call.
func (c *AppConfig) StoreTimeout() time.Duration {
	return time.Duration(c.VectorStore.TimeoutSecs) * time.Second
}

// Validate rejects values that defaults cannot repair.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "hashing", "ollama", "openai":
	default:
		return fmt.Errorf("embedder.type %q: want hashing, ollama or openai", c.Embedder.Type)
	}
	switch c.Chunker.Type {
	case "recursive", "sentence":
	default:
		return fmt.Errorf("chunker.type %q: want recursive or sentence", c.Chunker.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "bolt", "qdrant":
	default:
		return fmt.Errorf("vector_store.type %q: want memory, bolt or qdrant", c.VectorStore.Type)
	}
	if c.VectorStore.Type == "bolt" && c.VectorStore.Path == "" {
		return errors.New("vector_store.path is required for the bolt store")
	}
	if c.VectorStore.Type == "qdrant" && (c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "") {
		return errors.New("vector_store.qdrant.url is required for the qdrant store")
	}
	switch c.Service.RemovePolicy {
	case "one", "all":
	default:
		return fmt.Errorf("service.remove_policy %q: want one or all", c.Service.RemovePolicy)
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/ragmem/config.yaml.
// If neither exists, it writes defaults to ~/.config/ragmem/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ragmem", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Dimension == 0 {
		switch cfg.Embedder.Type {
		case "openai":
			cfg.Embedder.Dimension = 1536
		default:
			cfg.Embedder.Dimension = 384
		}
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	if cfg.Embedder.TimeoutSecs == 0 {
		cfg.Embedder.TimeoutSecs = 30
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "all-minilm"
		}
	}
	if cfg.Embedder.Cache != nil && cfg.Embedder.Cache.Prefix == "" {
		cfg.Embedder.Cache.Prefix = "ragmem:emb:"
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 500
	}
	if cfg.Chunker.ChunkOverlap == 0 {
		cfg.Chunker.ChunkOverlap = 50
	}
	if cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}
	if cfg.Chunker.OverlapSentences == 0 {
		cfg.Chunker.OverlapSentences = 1
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if cfg.VectorStore.TimeoutSecs == 0 {
		cfg.VectorStore.TimeoutSecs = 30
	}
	if q := cfg.VectorStore.Qdrant; q != nil && q.TimeoutSecs == 0 {
		q.TimeoutSecs = 15
	}

	if cfg.Service.DefaultCollection == "" {
		cfg.Service.DefaultCollection = "default_collection"
	}
	if cfg.Service.NResults == 0 {
		cfg.Service.NResults = 5
	}
	if cfg.Service.RemovePolicy == "" {
		cfg.Service.RemovePolicy = "one"
	}
	if cfg.Service.HTTPTimeoutSecs == 0 {
		cfg.Service.HTTPTimeoutSecs = 60
	}

	if cfg.Session.Collection == "" {
		cfg.Session.Collection = "current_session"
	}
	if cfg.Session.MaxSentences == 0 {
		cfg.Session.MaxSentences = 5
	}
	if cfg.Session.Workers == 0 {
		cfg.Session.Workers = 2
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
