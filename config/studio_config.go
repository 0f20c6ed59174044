package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AI provider names accepted by AI_PROVIDER.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	MongoDBURL  string
	MongoDBName string
	RedisURL    string

	// JWT
	JWTSecret string

	// AI providers
	AIProvider          string
	AITimeout           time.Duration
	GeminiAPIKey        string
	GeminiAnalysisModel string
	GeminiImageModel    string
	OpenAIAPIKey        string
	OpenAIAnalysisModel string
	OpenAIImageModel    string

	// Object storage (GCS)
	GCSBucket          string
	GCSCredentialsFile string
	GCSPublicBaseURL   string
	GCSEndpoint        string

	// Studio
	AssetCatalogPath      string
	QuotaCeiling          int
	ProjectListLimit      int
	GenerationConcurrency int
	RetryMaxAttempts      int
	RetryInitialInterval  time.Duration
	StatsCacheTTL         time.Duration
	MaxUploadBytes        int
	MaxImageDimension     int
	JPEGQuality           int
	SessionIdleTTL        time.Duration
	SubmitRateLimit       int // submissions per user per minute

	// DevUserID is trusted when JWT_SECRET is empty outside production.
	DevUserID string

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		MongoDBURL:  getEnv("MONGODB_URL", "mongodb://localhost:27017"),
		MongoDBName: getEnv("MONGODB_DATABASE", "brand_studio"),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		AIProvider:          strings.ToLower(getEnv("AI_PROVIDER", ProviderGemini)),
		AITimeout:           getEnvDuration("AI_TIMEOUT", 90*time.Second),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiAnalysisModel: getEnv("GEMINI_ANALYSIS_MODEL", "gemini-2.0-flash-exp"),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIAnalysisModel: getEnv("OPENAI_ANALYSIS_MODEL", "gpt-4o"),
		OpenAIImageModel:    getEnv("OPENAI_IMAGE_MODEL", "dall-e-3"),

		GCSBucket:          getEnv("GCS_BUCKET", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		GCSPublicBaseURL:   getEnv("GCS_PUBLIC_BASE_URL", "https://storage.googleapis.com"),
		GCSEndpoint:        getEnv("GCS_ENDPOINT", ""),

		AssetCatalogPath:      getEnv("ASSET_CATALOG_PATH", ""),
		QuotaCeiling:          getEnvInt("QUOTA_CEILING", 15),
		ProjectListLimit:      getEnvInt("PROJECT_LIST_LIMIT", 10),
		GenerationConcurrency: getEnvInt("GENERATION_CONCURRENCY", 1),
		RetryMaxAttempts:      getEnvInt("RETRY_MAX_ATTEMPTS", 2),
		RetryInitialInterval:  getEnvDuration("RETRY_INITIAL_INTERVAL", 500*time.Millisecond),
		StatsCacheTTL:         getEnvDuration("STATS_CACHE_TTL", time.Minute),
		MaxUploadBytes:        getEnvInt("MAX_UPLOAD_BYTES", 10*1024*1024),
		MaxImageDimension:     getEnvInt("MAX_IMAGE_DIMENSION", 1024),
		JPEGQuality:           getEnvInt("JPEG_QUALITY", 85),
		SessionIdleTTL:        getEnvDuration("SESSION_IDLE_TTL", 24*time.Hour),
		SubmitRateLimit:       getEnvInt("SUBMIT_RATE_LIMIT", 5),

		DevUserID: getEnv("DEV_USER_ID", "dev-user"),

		AllowedOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot fall back to a default.
func (c *Config) Validate() error {
	switch c.AIProvider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER=%s", c.AIProvider)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=%s", c.AIProvider)
		}
	default:
		return fmt.Errorf("unknown AI_PROVIDER %q", c.AIProvider)
	}
	if c.GCSBucket == "" {
		return fmt.Errorf("GCS_BUCKET is required")
	}
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.QuotaCeiling < 1 {
		return fmt.Errorf("QUOTA_CEILING must be positive, got %d", c.QuotaCeiling)
	}
	if c.GenerationConcurrency < 1 {
		c.GenerationConcurrency = 1
	}
	if c.RetryMaxAttempts < 1 {
		c.RetryMaxAttempts = 1
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
