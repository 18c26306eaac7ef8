package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageLocal = "local"
	StorageMinio = "minio"
)

// Config stores the application configuration.
type Config struct {
	Addr          string // HTTP listen address, e.g. ":8000"
	PublicBaseURL string // Prefix of the retrieval URL returned after an upload
	DatabaseURL   string // postgres://, mysql://, or sqlite:// connection string

	FFmpegPath   string
	AudioBitrate string // e.g., "192k"
	AudioDir     string // Local content store root for MP3 files
	TempDir      string // Scratch space for raw WAV and freshly encoded MP3 files

	MaxUploadBytes    int64
	CORSAllowedOrigin string
	// StrictLogin requires the token as well as the username on /login/.
	StrictLogin bool

	StorageBackend string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string

	// Redis配置, empty host disables the record cache
	RedisHost      string
	RedisPort      string
	RedisPassword  string
	RedisDB        int
	RecordCacheTTL time.Duration

	WatchStore bool

	LogLevel      string
	LogFile       string
	LogMaxSize    int
	LogMaxBackups int
	LogMaxAge     int
	LogCompress   bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	audioDir := getEnv("AUDIO_DIR", "audio")

	return &Config{
		Addr:          getEnv("HTTP_ADDR", ":8000"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8000"), "/"),
		DatabaseURL:   getEnv("DATABASE_URL", "sqlite://audiovault.db"),

		FFmpegPath:   getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate: getEnv("AUDIO_BITRATE", "192k"),
		AudioDir:     audioDir,
		TempDir:      getEnv("TEMP_DIR", filepath.Join(audioDir, "tmp")),

		MaxUploadBytes:    getEnvInt64("MAX_UPLOAD_BYTES", 100<<20),
		CORSAllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", "http://localhost:3000"),
		StrictLogin:       getEnvBool("STRICT_LOGIN", false),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", StorageLocal)),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"), // no default for secrets
		MinioBucket:    getEnv("MINIO_BUCKET", "audiovault"),
		MinioRegion:    getEnv("MINIO_REGION", ""),

		RedisHost:      getEnv("REDIS_HOST", ""),
		RedisPort:      getEnv("REDIS_PORT", "6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RecordCacheTTL: getEnvDuration("RECORD_CACHE_TTL", 10*time.Minute),

		WatchStore: getEnvBool("WATCH_STORE", false),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSize:    getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAge:     getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// RedisEnabled reports whether a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}
