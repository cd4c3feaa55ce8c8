package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Media       MediaConfig
	AWS         AWSConfig
	Transcriber TranscriberConfig
	Refiner     RefinerConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/soundscribe?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// MediaConfig holds local storage settings for uploaded audio files.
type MediaConfig struct {
	Dir           string // root directory for uploads; empty = ./media
	MaxUploadSize int64  // bytes
}

// AWSConfig holds AWS credentials and the optional audio archive bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AudioBucket          string
	PresignExpireMinutes int
}

// TranscriberConfig holds the speech-to-text gateway settings.
type TranscriberConfig struct {
	URL           string
	Token         string
	Language      string
	UploadRetries int
	RetryBackoff  time.Duration
	WarmupDelay   time.Duration // wait before the first poll after convert starts
	PollInterval  time.Duration
	PollCeiling   time.Duration // overall wall-clock bound on the poll loop
	HTTPTimeout   time.Duration
}

// RefinerConfig holds the chat-completion API settings for transcript refinement.
type RefinerConfig struct {
	URL         string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	jwtExpire, _ := strconv.Atoi(getEnv("JWT_EXPIRE_HOURS", "24"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "postgres://localhost:5432/soundscribe?sslmode=disable"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "soundscribe"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: jwtExpire,
		},
		Media: MediaConfig{
			Dir:           getEnv("MEDIA_DIR", "./media"),
			MaxUploadSize: getEnvInt64("MAX_UPLOAD_SIZE_BYTES", 10*1024*1024),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			AudioBucket:          getEnv("AWS_S3_AUDIO_BUCKET", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
		Transcriber: TranscriberConfig{
			URL:           getEnv("TRANSCRIBER_URL", ""),
			Token:         getEnv("TRANSCRIBER_TOKEN", ""),
			Language:      getEnv("TRANSCRIBER_LANG", "fa"),
			UploadRetries: getEnvInt("TRANSCRIBER_UPLOAD_RETRIES", 3),
			RetryBackoff:  getEnvDuration("TRANSCRIBER_RETRY_BACKOFF", 5*time.Second),
			WarmupDelay:   getEnvDuration("TRANSCRIBER_WARMUP_DELAY", 10*time.Second),
			PollInterval:  getEnvDuration("TRANSCRIBER_POLL_INTERVAL", 5*time.Second),
			PollCeiling:   getEnvDuration("TRANSCRIBER_POLL_CEILING", 15*time.Minute),
			HTTPTimeout:   getEnvDuration("TRANSCRIBER_HTTP_TIMEOUT", 60*time.Second),
		},
		Refiner: RefinerConfig{
			URL:         getEnv("REFINER_URL", ""),
			APIKey:      getEnv("REFINER_API_KEY", ""),
			Model:       getEnv("REFINER_MODEL", "Qwen/Qwen2.5-72B-Instruct"),
			MaxTokens:   getEnvInt("REFINER_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("REFINER_TEMPERATURE", 0.7),
			Timeout:     getEnvDuration("REFINER_TIMEOUT", 120*time.Second),
		},
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
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
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
