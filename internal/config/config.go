package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string        `mapstructure:"PORT"`
	Env            string        `mapstructure:"ENV"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32         `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`

	JWTSigningKey string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer     string        `mapstructure:"JWT_ISSUER"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`

	ModelDir string `mapstructure:"MODEL_DIR"`

	EmbeddingProvider   string `mapstructure:"EMBEDDING_PROVIDER"`
	EmbeddingModel      string `mapstructure:"EMBEDDING_MODEL"`
	EmbeddingDimensions int    `mapstructure:"EMBEDDING_DIMENSIONS"`
	OpenAIAPIKey        string `mapstructure:"OPENAI_API_KEY"`
	GenAIAPIKey         string `mapstructure:"GENAI_API_KEY"`

	VectorStore       string `mapstructure:"VECTOR_STORE"`
	VectorDBPath      string `mapstructure:"VECTOR_DB_PATH"`
	PineconeAPIKey    string `mapstructure:"PINECONE_API_KEY"`
	PineconeIndexHost string `mapstructure:"PINECONE_INDEX_HOST"`
	DocumentsDir      string `mapstructure:"DOCUMENTS_DIR"`

	GoogleMapsAPIKey string `mapstructure:"GOOGLE_MAPS_API_KEY"`

	MpesaBaseURL          string `mapstructure:"MPESA_BASE_URL"`
	MpesaConsumerKey      string `mapstructure:"MPESA_CONSUMER_KEY"`
	MpesaConsumerSecret   string `mapstructure:"MPESA_CONSUMER_SECRET"`
	MpesaShortcode        string `mapstructure:"MPESA_SHORTCODE"`
	MpesaPasskey          string `mapstructure:"MPESA_PASSKEY"`
	MpesaCallbackURL      string `mapstructure:"MPESA_CALLBACK_URL"`
	MpesaAccountReference string `mapstructure:"MPESA_ACCOUNT_REFERENCE"`

	OTelEndpoint string `mapstructure:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `mapstructure:"OTEL_ENABLED"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "TOKEN_TTL",
	"MODEL_DIR",
	"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_DIMENSIONS", "OPENAI_API_KEY", "GENAI_API_KEY",
	"VECTOR_STORE", "VECTOR_DB_PATH", "PINECONE_API_KEY", "PINECONE_INDEX_HOST", "DOCUMENTS_DIR",
	"GOOGLE_MAPS_API_KEY",
	"MPESA_BASE_URL", "MPESA_CONSUMER_KEY", "MPESA_CONSUMER_SECRET", "MPESA_SHORTCODE",
	"MPESA_PASSKEY", "MPESA_CALLBACK_URL", "MPESA_ACCOUNT_REFERENCE",
	"OTEL_ENDPOINT", "OTEL_ENABLED",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:8081")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("JWT_ISSUER", "groot")
	v.SetDefault("TOKEN_TTL", "12h")
	v.SetDefault("EMBEDDING_PROVIDER", "openai")
	v.SetDefault("EMBEDDING_DIMENSIONS", 1024)
	v.SetDefault("VECTOR_STORE", "sqlite")
	v.SetDefault("VECTOR_DB_PATH", "data/knowledge.db")
	v.SetDefault("DOCUMENTS_DIR", "documents")
	v.SetDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	v.SetDefault("MPESA_SHORTCODE", "174379")
	v.SetDefault("MPESA_ACCOUNT_REFERENCE", "OvarianCyst")
	v.SetDefault("OTEL_ENABLED", true)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
	}

	cfg.EmbeddingProvider = strings.ToLower(cfg.EmbeddingProvider)
	cfg.VectorStore = strings.ToLower(cfg.VectorStore)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// a JWT signing key of at least 32 bytes is mandatory, and the selected
// embedding provider and vector store must be known values.
func (c *Config) Validate() error {
	if !c.IsDev() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 32 bytes when ENV=%q", c.Env)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}

	switch c.EmbeddingProvider {
	case "openai", "genai":
	default:
		return fmt.Errorf("EMBEDDING_PROVIDER must be \"openai\" or \"genai\", got %q", c.EmbeddingProvider)
	}

	switch c.VectorStore {
	case "sqlite":
		if c.VectorDBPath == "" {
			return fmt.Errorf("VECTOR_DB_PATH is required when VECTOR_STORE is \"sqlite\"")
		}
	case "pinecone":
		if c.PineconeIndexHost == "" {
			return fmt.Errorf("PINECONE_INDEX_HOST is required when VECTOR_STORE is \"pinecone\"")
		}
	default:
		return fmt.Errorf("VECTOR_STORE must be \"sqlite\" or \"pinecone\", got %q", c.VectorStore)
	}

	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.EmbeddingDimensions)
	}
	return nil
}

// EmbeddingAPIKey returns the credential for the configured embedding provider.
func (c *Config) EmbeddingAPIKey() string {
	if c.EmbeddingProvider == "genai" {
		return c.GenAIAPIKey
	}
	return c.OpenAIAPIKey
}

// MpesaConfigured reports whether enough Daraja settings are present to
// initiate STK pushes.
func (c *Config) MpesaConfigured() bool {
	return c.MpesaShortcode != "" && c.MpesaPasskey != "" && c.MpesaCallbackURL != ""
}

// TracingEnabled reports whether spans should be exported.
func (c *Config) TracingEnabled() bool {
	return c.OTelEnabled && c.OTelEndpoint != ""
}
