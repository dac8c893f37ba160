package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type R2 struct {
	AccountID    string `env:"R2_ACCOUNT_ID"`
	AccessKey    string `env:"R2_ACCESS_KEY"`
	SecretKey    string `env:"R2_SECRET_KEY"`
	BucketName   string `env:"R2_BUCKET_NAME"`
	Endpoint     string `env:"R2_ENDPOINT"`
	UsePathStyle bool   `env:"R2_USE_PATH_STYLE" env-default:"false"`
}

type Platforms struct {
	FacebookBaseURL  string `env:"FACEBOOK_BASE_URL" env-default:"https://graph.facebook.com"`
	InstagramBaseURL string `env:"INSTAGRAM_BASE_URL" env-default:"https://graph.instagram.com"`
	TikTokBaseURL    string `env:"TIKTOK_BASE_URL" env-default:"https://open.tiktokapis.com"`
	XBaseURL         string `env:"X_BASE_URL" env-default:"https://api.x.com"`
	XAppBearerToken  string `env:"X_APP_BEARER_TOKEN"`
	YouTubeEndpoint  string `env:"YOUTUBE_ENDPOINT"`
}

type Config struct {
	AppEnv      string `env:"APP_ENV" env-default:"development"`
	AppPort     string `env:"APP_PORT" env-default:"8080"`
	PostgresURI string `env:"POSTGRES_URI" env-required:"true"`
	RedisURI    string `env:"REDIS_URI" env-default:"localhost:6379"`
	FrontendURL string `env:"FRONTEND_URL" env-default:"http://localhost:5173"`
	// SecretKey signs API tokens and encrypts channel access tokens. It must
	// be 16, 24 or 32 bytes long.
	SecretKey string `env:"SECRET_KEY" env-required:"true"`

	R2           R2
	SignedURLTTL time.Duration `env:"SIGNED_URL_TTL" env-default:"1h"`

	Platforms Platforms

	QueueConcurrency int           `env:"QUEUE_CONCURRENCY" env-default:"10"`
	MetricsWindow    time.Duration `env:"METRICS_WINDOW" env-default:"720h"`
	MetricsSchedule  string        `env:"METRICS_SCHEDULE" env-default:"@every 1h"`
	RequeueSchedule  string        `env:"REQUEUE_SCHEDULE" env-default:"@every 10m"`
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// LoadConfig reads .env when present and then the process environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment")
	}

	var c Config
	if err := cleanenv.ReadEnv(&c); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	switch len(c.SecretKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(c.SecretKey))
	}
	return &c, nil
}
