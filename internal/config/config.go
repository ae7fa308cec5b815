package config

import (
	"errors"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"handbook-rag/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"

	StorePostgres = "postgres"
	StoreChromem  = "chromem"

	DriverPGDriver = "pgdriver"
	DriverPQ       = "pq"

	NamerHandbook = "handbook"
	NamerIdentity = "identity"
)

type Config struct {
	Log         LogConfig         `yaml:"log"`
	Embedding   LLMConfig         `yaml:"embedding"`
	Inference   LLMConfig         `yaml:"inference"`
	Database    DatabaseConfig    `yaml:"database"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	RAG         RAGConfig         `yaml:"rag"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Server      ServerConfig      `yaml:"server"`
	QueryLog    QueryLogConfig    `yaml:"query_log"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// LLMConfig configures one model endpoint, used for both embeddings and inference
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	BaseURL     string  `yaml:"base_url"`
	Key         string  `yaml:"key"`
	Model       string  `yaml:"model"`
	Dimension   int     `yaml:"dimension"`
	Temperature float64 `yaml:"temperature"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	DSN      string `yaml:"dsn"`
	Password string `yaml:"password"`
	Debug    bool   `yaml:"debug"`
}

type VectorStoreConfig struct {
	Type    string        `yaml:"type"`
	Chromem ChromemConfig `yaml:"chromem"`
}

type ChromemConfig struct {
	Path          string `yaml:"path"`
	Collection    string `yaml:"collection"`
	InMemory      bool   `yaml:"in_memory"`
	Compress      bool   `yaml:"compress"`
	EncryptionKey string `yaml:"encryption_key"`
	ExportFile    string `yaml:"export_file"`
}

type ChunkingConfig struct {
	TargetWords  int `yaml:"target_words"`
	MinWords     int `yaml:"min_words"`
	MaxWords     int `yaml:"max_words"`
	OverlapWords int `yaml:"overlap_words"`
}

type RAGConfig struct {
	TopK               int    `yaml:"top_k"`
	RequestTimeoutSecs int    `yaml:"request_timeout_secs"`
	Namer              string `yaml:"namer"`
}

type IngestConfig struct {
	Dir          string `yaml:"dir"`
	Retries      int    `yaml:"retries"`
	RetryBackoff int    `yaml:"retry_backoff_ms"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type QueryLogConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoadConfig reads the yaml file at path, falling back to defaults when it does not exist,
// then applies .env files and environment overrides
func LoadConfig(path string) (*Config, error) {
	// .env.local wins over .env, real environment wins over both
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "debug"},
		Embedding: LLMConfig{
			Provider:  ProviderOpenAI,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
		},
		Inference: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.3,
		},
		Database:    DatabaseConfig{Driver: DriverPGDriver},
		VectorStore: VectorStoreConfig{Type: StorePostgres},
		Chunking: ChunkingConfig{
			TargetWords:  600,
			MinWords:     400,
			MaxWords:     800,
			OverlapWords: 50,
		},
		RAG:      RAGConfig{TopK: models.DefaultTopK, RequestTimeoutSecs: 60, Namer: NamerHandbook},
		Ingest:   IngestConfig{Dir: "./pdf", RetryBackoff: 500},
		Server:   ServerConfig{Addr: ":8080"},
		QueryLog: QueryLogConfig{Enabled: true},
	}
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if cfg.Embedding.Provider == ProviderOpenAI && cfg.Embedding.Key == "" {
			cfg.Embedding.Key = key
		}
		if cfg.Inference.Provider == ProviderOpenAI && cfg.Inference.Key == "" {
			cfg.Inference.Key = key
		}
	}
	if base := os.Getenv("OPENAI_BASE_URL"); base != "" {
		if cfg.Embedding.Provider == ProviderOpenAI && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = base
		}
		if cfg.Inference.Provider == ProviderOpenAI && cfg.Inference.BaseURL == "" {
			cfg.Inference.BaseURL = base
		}
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if pw := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); pw != "" && cfg.Database.Password == "" {
		cfg.Database.Password = pw
	}
	if lvl := os.Getenv("RAG_LOG_LEVEL"); lvl != "" {
		cfg.Log.Level = lvl
	}
}

// zero values left by a partial yaml file fall back to defaults
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = def.Embedding.Provider
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = def.Embedding.Model
	}
	if cfg.Embedding.Dimension <= 0 {
		cfg.Embedding.Dimension = def.Embedding.Dimension
	}
	if cfg.Inference.Provider == "" {
		cfg.Inference.Provider = def.Inference.Provider
	}
	if cfg.Inference.Model == "" {
		cfg.Inference.Model = def.Inference.Model
	}
	if cfg.Inference.Temperature <= 0 {
		cfg.Inference.Temperature = def.Inference.Temperature
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = def.Database.Driver
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "./chromemdb"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "handbook_chunks"
	}
	if cfg.Chunking.MaxWords <= 0 {
		cfg.Chunking.MaxWords = def.Chunking.MaxWords
	}
	if cfg.Chunking.MinWords <= 0 {
		cfg.Chunking.MinWords = def.Chunking.MinWords
	}
	if cfg.Chunking.TargetWords <= 0 {
		cfg.Chunking.TargetWords = def.Chunking.TargetWords
	}
	if cfg.Chunking.OverlapWords < 0 {
		cfg.Chunking.OverlapWords = 0
	}
	if cfg.RAG.TopK <= 0 {
		cfg.RAG.TopK = def.RAG.TopK
	}
	if cfg.RAG.RequestTimeoutSecs <= 0 {
		cfg.RAG.RequestTimeoutSecs = def.RAG.RequestTimeoutSecs
	}
	if cfg.RAG.Namer == "" {
		cfg.RAG.Namer = def.RAG.Namer
	}
	if cfg.Ingest.Dir == "" {
		cfg.Ingest.Dir = def.Ingest.Dir
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = def.Server.Addr
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
}

// Validate checks that the credentials needed by the selected providers are present.
// It is meant to run once at process start.
func (c *Config) Validate() error {
	var errs []error
	endpoints := []struct {
		name string
		llm  LLMConfig
	}{
		{"embedding", c.Embedding},
		{"inference", c.Inference},
	}
	for _, ep := range endpoints {
		name, llm := ep.name, ep.llm
		switch llm.Provider {
		case ProviderOpenAI:
			if strings.TrimSpace(llm.Key) == "" {
				errs = append(errs, models.Configurationf("%s: OPENAI_API_KEY environment variable is not set", name))
			}
		case ProviderOllama:
			if llm.BaseURL == "" {
				errs = append(errs, models.Configurationf("%s: ollama base_url is required", name))
			}
		default:
			errs = append(errs, models.Configurationf("%s: unknown provider %q", name, llm.Provider))
		}
	}
	switch c.VectorStore.Type {
	case StorePostgres:
		if c.Database.DSN == "" {
			errs = append(errs, models.Configurationf("missing DATABASE_URL for postgres vector store"))
		}
		if c.Database.Driver != DriverPGDriver && c.Database.Driver != DriverPQ {
			errs = append(errs, models.Configurationf("unknown database driver %q", c.Database.Driver))
		}
	case StoreChromem:
		if key := c.VectorStore.Chromem.EncryptionKey; key != "" && len(key) != 32 {
			errs = append(errs, models.Configurationf("chromem encryption_key must be 32 bytes"))
		}
	default:
		errs = append(errs, models.Configurationf("unknown vector store %q", c.VectorStore.Type))
	}
	if c.RAG.Namer != NamerHandbook && c.RAG.Namer != NamerIdentity {
		errs = append(errs, models.Configurationf("unknown rag namer %q", c.RAG.Namer))
	}
	if c.Chunking.MinWords > c.Chunking.MaxWords {
		errs = append(errs, models.Configurationf("chunking min_words (%d) exceeds max_words (%d)", c.Chunking.MinWords, c.Chunking.MaxWords))
	}
	return errors.Join(errs...)
}

// Masked returns a copy safe for logging
func (c Config) Masked() Config {
	c.Embedding.Key = mask(c.Embedding.Key)
	c.Inference.Key = mask(c.Inference.Key)
	c.Database.Password = mask(c.Database.Password)
	c.Database.DSN = mask(c.Database.DSN)
	c.VectorStore.Chromem.EncryptionKey = mask(c.VectorStore.Chromem.EncryptionKey)
	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
