package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Bedrock    BedrockConfig
	OpenRouter OpenRouterConfig
	Ollama     OllamaConfig
	LLM        LLMConfig
	Valkey     ValkeyConfig
	MinIO      MinIOConfig
	S3         S3Config
	Registry   RegistryConfig
	Search     SearchConfig
	Index      IndexConfig
	Pipeline   PipelineConfig
	MCP        MCPConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
	Enabled  bool // DB_ENABLED: persist embedding indexes in pgvector
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type BedrockConfig struct {
	Region     string
	ModelID    string // embedding model
	ChatModel  string // Converse model used when LLM_PROVIDER=bedrock
	Dimensions int
}

type OpenRouterConfig struct {
	APIKey            string
	Model             string
	BaseURL           string
	BaseURLEmbeddings string
	Dimensions        int
}

type OllamaConfig struct {
	Host           string // OLLAMA_HOST, read by api.ClientFromEnvironment
	EmbeddingModel string
	ChatModel      string
}

// LLMConfig selects the language model used for extraction and narratives.
type LLMConfig struct {
	Provider    string // openai | bedrock | ollama | "" (disabled)
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Language    string // narrative language: pt | en
}

type ValkeyConfig struct {
	Addr      string
	Password  string
	DB        int
	ResultTTL time.Duration
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Enabled   bool
}

type S3Config struct {
	Region   string // S3_REGION
	Bucket   string // S3_BUCKET
	Prefix   string // S3_PREFIX (optional default prefix)
	Endpoint string // S3_ENDPOINT (for MinIO/LocalStack compatibility)
}

type RegistryConfig struct {
	PrimaryURL  string // ReceitaWS base
	FallbackURL string // BrasilAPI base
	CacheTTL    time.Duration
}

type SearchConfig struct {
	TavilyAPIKey string
	BaseURL      string
	MaxResults   int
}

type IndexConfig struct {
	ChunkSize     int
	ChunkOverlap  int
	TopK          int
	MinSimilarity float64
	CacheDir      string
	MemoryEntries int
	LockTTL       time.Duration
}

type PipelineConfig struct {
	MaxRetries       int
	RegistryTimeout  time.Duration
	SearchTimeout    time.Duration
	EmbeddingTimeout time.Duration
	FieldTimeout     time.Duration
	NarrativeTimeout time.Duration
	ConfidenceFloor  float64
	CalibrationFile  string
}

type MCPConfig struct {
	Port int
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 300)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "creditlens"),
			Password: getEnv("DB_PASSWORD", "creditlens"),
			Name:     getEnv("DB_NAME", "creditlens"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 10)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 1)),
			Enabled:  getEnvBool("DB_ENABLED", false),
		},
		Bedrock: BedrockConfig{
			Region:     getEnv("BEDROCK_REGION", ""),
			ModelID:    getEnv("BEDROCK_MODEL_ID", "cohere.embed-multilingual-v3"),
			ChatModel:  getEnv("BEDROCK_CHAT_MODEL_ID", "anthropic.claude-3-5-haiku-20241022-v1:0"),
			Dimensions: getEnvInt("BEDROCK_DIMENSIONS", 1024),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:            getEnv("OPENROUTER_API_KEY", ""),
			Model:             getEnv("OPENROUTER_EMBED_MODEL", ""),
			BaseURL:           getEnv("OPENROUTER_BASE_URL", ""),
			BaseURLEmbeddings: getEnv("OPENROUTER_BASE_URL_EMBEDDINGS", ""),
			Dimensions:        getEnvInt("OPENROUTER_DIMENSIONS", 1024),
		},
		Ollama: OllamaConfig{
			Host:           getEnv("OLLAMA_HOST", ""),
			EmbeddingModel: getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
			ChatModel:      getEnv("OLLAMA_CHAT_MODEL", "llama3.1"),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "openai"),
			APIKey:      getEnv("LLM_API_KEY", getEnv("OPENROUTER_API_KEY", "")),
			Model:       getEnv("LLM_MODEL", "openai/gpt-4o-mini"),
			BaseURL:     getEnv("LLM_BASE_URL", "https://openrouter.ai/api/v1/chat/completions"),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Language:    getEnv("LLM_LANGUAGE", "pt"),
		},
		Valkey: ValkeyConfig{
			Addr:      getEnv("VALKEY_ADDR", "localhost:6379"),
			Password:  getEnv("VALKEY_PASSWORD", ""),
			DB:        getEnvInt("VALKEY_DB", 0),
			ResultTTL: getEnvDuration("RESULT_TTL", time.Hour),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "creditlens"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "creditlens123"),
			Bucket:    getEnv("MINIO_BUCKET", "creditlens"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Enabled:   getEnvBool("MINIO_ENABLED", false),
		},
		S3: S3Config{
			Region:   getEnv("S3_REGION", ""),
			Bucket:   getEnv("S3_BUCKET", ""),
			Prefix:   getEnv("S3_PREFIX", ""),
			Endpoint: getEnv("S3_ENDPOINT", ""),
		},
		Registry: RegistryConfig{
			PrimaryURL:  getEnv("REGISTRY_PRIMARY_URL", "https://www.receitaws.com.br/v1/cnpj"),
			FallbackURL: getEnv("REGISTRY_FALLBACK_URL", "https://brasilapi.com.br/api/cnpj/v1"),
			CacheTTL:    getEnvDuration("REGISTRY_CACHE_TTL", 24*time.Hour),
		},
		Search: SearchConfig{
			TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
			BaseURL:      getEnv("TAVILY_BASE_URL", "https://api.tavily.com/search"),
			MaxResults:   getEnvInt("SEARCH_MAX_RESULTS", 20),
		},
		Index: IndexConfig{
			ChunkSize:     getEnvInt("INDEX_CHUNK_SIZE", 1000),
			ChunkOverlap:  getEnvInt("INDEX_CHUNK_OVERLAP", 200),
			TopK:          getEnvInt("INDEX_TOP_K", 3),
			MinSimilarity: getEnvFloat("INDEX_MIN_SIMILARITY", 0.35),
			CacheDir:      getEnv("INDEX_CACHE_DIR", "./data/index"),
			MemoryEntries: getEnvInt("INDEX_MEMORY_ENTRIES", 32),
			LockTTL:       getEnvDuration("INDEX_LOCK_TTL", 2*time.Minute),
		},
		Pipeline: PipelineConfig{
			MaxRetries:       getEnvInt("PIPELINE_MAX_RETRIES", 2),
			RegistryTimeout:  getEnvDuration("REGISTRY_TIMEOUT", 15*time.Second),
			SearchTimeout:    getEnvDuration("SEARCH_TIMEOUT", 20*time.Second),
			EmbeddingTimeout: getEnvDuration("EMBEDDING_TIMEOUT", 60*time.Second),
			FieldTimeout:     getEnvDuration("FIELD_TIMEOUT", 30*time.Second),
			NarrativeTimeout: getEnvDuration("NARRATIVE_TIMEOUT", 30*time.Second),
			ConfidenceFloor:  getEnvFloat("EXTRACTION_CONFIDENCE_FLOOR", 0.5),
			CalibrationFile:  getEnv("CALIBRATION_FILE", ""),
		},
		MCP: MCPConfig{
			Port: getEnvInt("MCP_PORT", 8090),
		},
	}

	if cfg.Pipeline.MaxRetries < 0 {
		return nil, fmt.Errorf("PIPELINE_MAX_RETRIES must be >= 0, got %d", cfg.Pipeline.MaxRetries)
	}
	if cfg.Index.ChunkOverlap >= cfg.Index.ChunkSize {
		return nil, fmt.Errorf("INDEX_CHUNK_OVERLAP (%d) must be smaller than INDEX_CHUNK_SIZE (%d)",
			cfg.Index.ChunkOverlap, cfg.Index.ChunkSize)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
