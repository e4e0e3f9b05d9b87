package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	SinkPostgres = "postgres"
	SinkBadger   = "badger"
)

type Config struct {
	Port string

	// persistence
	Sink        string
	DatabaseURL string
	SslCertPath string
	BadgerDir   string

	// embeddings
	EmbedProvider     string
	GeminiAPIKey      string
	HuggingFaceAPIKey string
	OpenAIAPIKey      string
	EmbedHost         string
	EmbedModel        string
	EmbedDim          int
	EmbedBatchSize    int
	EmbedConcurrency  int
	EmbedMaxAttempts  int
	EmbedRetryDelay   time.Duration

	// splitting / coordination
	ChunkSize     int
	ChunkOverlap  int
	IngestTimeout time.Duration

	// embedding cache, disabled when RedisURL is empty
	RedisURL      string
	EmbedCacheTTL time.Duration

	// object storage for pagesKey requests
	AwsAccessKey string
	AwsSecretKey string
	AwsRegion    string
	BucketName   string

	JWTSecret   string
	CorsOrigins []string
}

// LoadConfig loads the environment variables and return config
func LoadConfig() *Config {

	_ = godotenv.Load()

	cfg := &Config{
		Port: getEnv("PORT", "8080"),

		Sink:        strings.ToLower(getEnv("SINK", SinkPostgres)),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),
		BadgerDir:   getEnv("BADGER_DIR", "./data/badger"),

		EmbedProvider:     strings.ToLower(getEnv("EMBED_PROVIDER", "huggingface")),
		GeminiAPIKey:      getEnv("GEMINI_API_KEY", ""),
		HuggingFaceAPIKey: getEnv("HUGGINGFACE_API_KEY", ""),
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		EmbedHost:         getEnv("EMBED_HOST", ""),
		EmbedModel:        getEnv("EMBED_MODEL", ""),
		EmbedDim:          getEnvInt("EMBED_DIM", 0),
		EmbedBatchSize:    getEnvInt("EMBED_BATCH_SIZE", 32),
		EmbedConcurrency:  getEnvInt("EMBED_CONCURRENCY", 2),
		EmbedMaxAttempts:  getEnvInt("EMBED_MAX_ATTEMPTS", 4),
		EmbedRetryDelay:   getEnvDuration("EMBED_RETRY_DELAY", 500*time.Millisecond),

		ChunkSize:     getEnvInt("CHUNK_SIZE", 1000),
		ChunkOverlap:  getEnvInt("CHUNK_OVERLAP", 200),
		IngestTimeout: getEnvDuration("INGEST_TIMEOUT", 5*time.Minute),

		RedisURL:      getEnv("REDIS_URL", ""),
		EmbedCacheTTL: getEnvDuration("EMBED_CACHE_TTL", 24*time.Hour),

		AwsAccessKey: getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey: getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:    getEnv("AWS_REGION", "us-east-2"),
		BucketName:   getEnv("BUCKET_NAME", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		CorsOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = DefaultEmbedDim(cfg.EmbedProvider)
	}

	return cfg
}

// DefaultEmbedDim is the vector length expected from a provider's default model. OpenAI-compatible
// servers host models of any size, so 0 is returned and the length of the first vector is used.
func DefaultEmbedDim(provider string) int {
	switch provider {
	case "gemini", "huggingface":
		return 768
	default:
		return 0
	}
}

// EmbedAPIKey returns the credential for the selected provider.
func (c *Config) EmbedAPIKey() string {
	switch c.EmbedProvider {
	case "gemini":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	default:
		return c.HuggingFaceAPIKey
	}
}

// Validate checks that the settings needed by the selected sink and provider are present.
func (c *Config) Validate() error {
	var errs []error

	switch c.Sink {
	case SinkPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL not set"))
		}
	case SinkBadger:
		if c.BadgerDir == "" {
			errs = append(errs, errors.New("BADGER_DIR not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("SINK must be %q or %q, got %q", SinkPostgres, SinkBadger, c.Sink))
	}

	switch c.EmbedProvider {
	case "gemini":
		if c.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY not set"))
		}
	case "huggingface":
		if c.HuggingFaceAPIKey == "" {
			errs = append(errs, errors.New("HUGGINGFACE_API_KEY not set"))
		}
	case "openai":
		if c.EmbedModel == "" {
			errs = append(errs, errors.New("EMBED_MODEL not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMBED_PROVIDER %q", c.EmbedProvider))
	}

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap))
	}
	if c.EmbedMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("EMBED_MAX_ATTEMPTS must be positive, got %d", c.EmbedMaxAttempts))
	}

	return errors.Join(errs...)
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("WARN: %s=%q not an int, using default %d", key, v, def)
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("WARN: %s=%q not a duration, using default %s", key, v, def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
