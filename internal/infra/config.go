package infra

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string // empty selects the in-memory store (dev mode)
	DBMaxConns  int32

	RenderBaseURL string
	RenderAPIKey  string

	PricingPath string // optional YAML price table override

	ProviderBaseURL     string // base url for synthetic provider asset links
	MaxConcurrentScenes int
	CacheEnabled        bool

	// ArtifactTTL bounds how long intermediate artifacts are kept before the
	// sweeper purges them. Zero keeps them forever.
	ArtifactTTL time.Duration

	SweepSchedule string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from .env files and the environment, applying
// defaults where needed.
func LoadConfig() (*Config, error) {
	// Env files are optional; absence is not an error.
	_ = godotenv.Load(".env", ".env.local")

	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		DBMaxConns:          int32(getEnvInt("DB_MAX_CONNS", 10)),
		RenderBaseURL:       getEnv("RENDER_BASE_URL", "https://api.render.example.com/v1"),
		RenderAPIKey:        os.Getenv("RENDER_API_KEY"),
		PricingPath:         os.Getenv("PRICING_PATH"),
		ProviderBaseURL:     getEnv("PROVIDER_BASE_URL", "https://cdn.videoforge.local"),
		MaxConcurrentScenes: getEnvInt("MAX_CONCURRENT_SCENES", 4),
		CacheEnabled:        getEnv("ARTIFACT_CACHE", "on") == "on",
		ArtifactTTL:         time.Hour * time.Duration(getEnvInt("ARTIFACT_TTL_HOURS", 72)),
		SweepSchedule:       getEnv("SWEEP_SCHEDULE", "@every 1h"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		// The write timeout must cover a synchronous run, whose render poll
		// alone can take five minutes.
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 600)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
