package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the grading API.
type Config struct {
	AppName         string
	AppEnv          string
	AppPort         string
	LogLevel        string
	DatabaseURL     string
	RedisURL        string
	JWTSecret       string
	ReviewCacheTTL  time.Duration
	UploadMaxSizeMB int

	StorageProvider        string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
	MinIOEndpoint          string
	MinIOAccessKey         string
	MinIOSecretKey         string
	MinIOBucket            string
	MinIORegion            string
	MinIOUseSSL            bool

	OCRProvider    string
	OCRServiceURL  string
	OCRTimeout     time.Duration
	OCRVisionModel string

	AIProvider       string
	OpenAIAPIKey     string
	OpenAIModel      string
	GradingTimeout   time.Duration
	AIGradeRateLimit int

	EventsProvider   string
	NATSURL          string
	NATSSubject      string
	RabbitMQURL      string
	RabbitMQExchange string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Gradeflow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("review.cache_ttl", "2m")
	v.SetDefault("upload.max_size_mb", 10)
	v.SetDefault("storage.provider", "cloudinary")
	v.SetDefault("cloudinary.folder", "gradeflow/submissions")
	v.SetDefault("minio.bucket", "submissions")
	v.SetDefault("minio.region", "us-east-1")
	v.SetDefault("ocr.provider", "openai")
	v.SetDefault("ocr.timeout", "30s")
	v.SetDefault("ocr.vision_model", "gpt-4o-mini")
	v.SetDefault("ai.provider", "openai")
	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.grading_timeout", "45s")
	v.SetDefault("ai.rate_limit_per_minute", 10)
	v.SetDefault("events.provider", "none")
	v.SetDefault("nats.subject", "gradeflow.submissions")
	v.SetDefault("rabbitmq.exchange", "gradeflow.submissions")

	reviewTTL, err := parseDuration(v, "review.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	ocrTimeout, err := parseDuration(v, "ocr.timeout")
	if err != nil {
		return Config{}, err
	}
	gradingTimeout, err := parseDuration(v, "ai.grading_timeout")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		AppPort:                v.GetString("app.port"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		DatabaseURL:            v.GetString("database.url"),
		RedisURL:               v.GetString("redis.url"),
		JWTSecret:              v.GetString("jwt.secret"),
		ReviewCacheTTL:         reviewTTL,
		UploadMaxSizeMB:        v.GetInt("upload.max_size_mb"),
		StorageProvider:        strings.ToLower(v.GetString("storage.provider")),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
		MinIOEndpoint:          v.GetString("minio.endpoint"),
		MinIOAccessKey:         v.GetString("minio.access_key"),
		MinIOSecretKey:         v.GetString("minio.secret_key"),
		MinIOBucket:            v.GetString("minio.bucket"),
		MinIORegion:            v.GetString("minio.region"),
		MinIOUseSSL:            v.GetBool("minio.use_ssl"),
		OCRProvider:            strings.ToLower(v.GetString("ocr.provider")),
		OCRServiceURL:          v.GetString("ocr.service_url"),
		OCRTimeout:             ocrTimeout,
		OCRVisionModel:         v.GetString("ocr.vision_model"),
		AIProvider:             strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:           v.GetString("openai_api_key"),
		OpenAIModel:            v.GetString("ai.model"),
		GradingTimeout:         gradingTimeout,
		AIGradeRateLimit:       v.GetInt("ai.rate_limit_per_minute"),
		EventsProvider:         strings.ToLower(v.GetString("events.provider")),
		NATSURL:                v.GetString("nats.url"),
		NATSSubject:            v.GetString("nats.subject"),
		RabbitMQURL:            v.GetString("rabbitmq.url"),
		RabbitMQExchange:       v.GetString("rabbitmq.exchange"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.UploadMaxSizeMB <= 0 {
		cfg.UploadMaxSizeMB = 10
	}

	if cfg.AIGradeRateLimit <= 0 {
		cfg.AIGradeRateLimit = 10
	}

	switch cfg.StorageProvider {
	case "cloudinary", "minio":
	default:
		return Config{}, fmt.Errorf("unsupported storage provider %q", cfg.StorageProvider)
	}

	switch cfg.OCRProvider {
	case "openai", "http":
	default:
		return Config{}, fmt.Errorf("unsupported ocr provider %q", cfg.OCRProvider)
	}

	switch cfg.EventsProvider {
	case "none", "nats", "rabbitmq":
	default:
		return Config{}, fmt.Errorf("unsupported events provider %q", cfg.EventsProvider)
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	duration, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return duration, nil
}
