package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderReplicate = "replicate"
	ProviderOpenAI    = "openai"

	maxGenerateConcurrency = 8
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv              string
	Port                string
	GatewayProvider     string
	ReplicateAPIToken   string
	ReplicateBaseURL    string
	PreprocessModel     string
	FrameModel          string
	OpenAIAPIKey        string
	OpenAIBaseURL       string
	OpenAIImageModel    string
	ProviderTimeout     time.Duration
	GenerateConcurrency int
	GenerateTimeout     time.Duration
	FrameMaxAttempts    int
	FrameRetryDelay     time.Duration
	FrameCostUSD        float64
	StylePresetsPath    string
	MaxImageBytes       int64
	MaxExportBytes      int64
	MaxSourceDimension  int
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	RateLimitPerMin     int
	CORSAllowedOrigins  []string
	GeoIPDBPath         string
	LogFile             string
	DefaultLocale       string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Missing provider credentials are not an error here; requests that need them
// fail with a configuration error instead.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		GatewayProvider:     strings.ToLower(getEnv("GATEWAY_PROVIDER", ProviderReplicate)),
		ReplicateAPIToken:   strings.TrimSpace(os.Getenv("REPLICATE_API_TOKEN")),
		ReplicateBaseURL:    getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),
		PreprocessModel:     getEnv("PREPROCESS_MODEL", "google/nano-banana-pro"),
		FrameModel:          getEnv("FRAME_MODEL", "google/nano-banana-pro"),
		OpenAIAPIKey:        strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIBaseURL:       getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIImageModel:    getEnv("OPENAI_IMAGE_MODEL", "dall-e-2"),
		ProviderTimeout:     time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 90)),
		GenerateConcurrency: getEnvInt("GENERATE_CONCURRENCY", 3),
		GenerateTimeout:     time.Second * time.Duration(getEnvInt("GENERATE_TIMEOUT_SECONDS", 120)),
		FrameMaxAttempts:    getEnvInt("FRAME_MAX_ATTEMPTS", 3),
		FrameRetryDelay:     time.Second * time.Duration(getEnvInt("FRAME_RETRY_DELAY_SECONDS", 10)),
		FrameCostUSD:        getEnvFloat("FRAME_COST_USD", 0.15),
		StylePresetsPath:    strings.TrimSpace(os.Getenv("STYLE_PRESETS_PATH")),
		MaxImageBytes:       int64(getEnvInt("MAX_IMAGE_BYTES", 10<<20)),
		MaxExportBytes:      int64(getEnvInt("MAX_EXPORT_BYTES", 64<<20)),
		MaxSourceDimension:  getEnvInt("MAX_SOURCE_DIMENSION", 2048),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 30)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 10),
		CORSAllowedOrigins:  splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),
		GeoIPDBPath:         strings.TrimSpace(os.Getenv("GEOIP_DB_PATH")),
		LogFile:             strings.TrimSpace(os.Getenv("LOG_FILE")),
		DefaultLocale:       strings.ToLower(getEnv("DEFAULT_LOCALE", "en")),
	}

	switch cfg.GatewayProvider {
	case ProviderReplicate, ProviderOpenAI:
	default:
		return nil, fmt.Errorf("GATEWAY_PROVIDER must be %q or %q, got %q", ProviderReplicate, ProviderOpenAI, cfg.GatewayProvider)
	}
	if cfg.GenerateConcurrency < 1 || cfg.GenerateConcurrency > maxGenerateConcurrency {
		return nil, fmt.Errorf("GENERATE_CONCURRENCY must be between 1 and %d, got %d", maxGenerateConcurrency, cfg.GenerateConcurrency)
	}
	if cfg.GenerateTimeout <= 0 {
		return nil, fmt.Errorf("GENERATE_TIMEOUT_SECONDS must be positive")
	}
	if cfg.FrameMaxAttempts < 1 {
		cfg.FrameMaxAttempts = 1
	}
	if cfg.FrameRetryDelay < 0 {
		cfg.FrameRetryDelay = 0
	}
	if cfg.FrameCostUSD < 0 {
		return nil, fmt.Errorf("FRAME_COST_USD must not be negative")
	}
	if cfg.MaxImageBytes <= 0 {
		return nil, fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	if cfg.MaxExportBytes <= 0 {
		return nil, fmt.Errorf("MAX_EXPORT_BYTES must be positive")
	}

	return cfg, nil
}

// ProviderCredential returns the env var name and value of the credential the
// selected provider needs.
func (c *Config) ProviderCredential() (string, string) {
	if c.GatewayProvider == ProviderOpenAI {
		return "OPENAI_API_KEY", c.OpenAIAPIKey
	}
	return "REPLICATE_API_TOKEN", c.ReplicateAPIToken
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
