package config

import (
	"os"
	"strconv"
	"time"
)

// DatabaseConfig holds PostgreSQL database connection settings.
// Driver "memory" runs the service on in-process repositories.
type DatabaseConfig struct {
	Driver             string
	Host               string
	Port               string
	User               string
	Password           string
	Name               string
	SSLMode            string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetimeSec int
}

// StorageConfig selects the object storage backend: minio, gcs or memory.
type StorageConfig struct {
	Backend string
	MinIO   MinIOConfig
	GCS     GCSConfig
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// GCSConfig holds Google Cloud Storage settings.
type GCSConfig struct {
	Bucket          string
	CredentialsFile string
}

// VertexConfig configures the Gemini model used for field extraction.
type VertexConfig struct {
	ProjectID string
	Region    string
	Model     string
	Timeout   time.Duration
}

// RedisConfig configures the distributed lock. An empty Addr selects in-process locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// AuthConfig holds the shared secret used to verify bearer tokens.
type AuthConfig struct {
	JWTSecret string
}

// BulkConfig bounds the bulk analyze loop.
type BulkConfig struct {
	ChunkSize     int
	MaxIterations int
	Workers       int
}

// UploadConfig bounds a single multi-file upload.
type UploadConfig struct {
	MaxFiles     int
	MaxFileBytes int64
	MaxTotal     int64
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

// AppConfig is the centralized configuration struct for the application.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	Env      string
	Port     string
	Database DatabaseConfig
	Storage  StorageConfig
	Vertex   VertexConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Bulk     BulkConfig
	Upload   UploadConfig
	Log      LogConfig
}

// Load reads configuration from environment variables.
// A .env file is auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// Real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		Env:      getEnv("APP_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		Database: DatabaseConfig{
			Driver:             getEnv("DB_DRIVER", "postgres"),
			Host:               getEnv("DB_HOST", ""),
			Port:               getEnv("DB_PORT", "5432"),
			User:               getEnv("DB_USER", ""),
			Password:           getEnv("DB_PASSWORD", ""),
			Name:               getEnv("DB_NAME", ""),
			SSLMode:            getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:       getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:       getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetimeSec: getEnvInt("DB_CONN_MAX_LIFETIME_SEC", 300),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", "minio"),
			MinIO: MinIOConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", ""),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			},
		},
		Vertex: VertexConfig{
			ProjectID: getEnv("VERTEX_PROJECT_ID", ""),
			Region:    getEnv("VERTEX_REGION", "us-central1"),
			Model:     getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
			Timeout:   getEnvDuration("VERTEX_TIMEOUT", 90*time.Second),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			LockTTL:  getEnvDuration("REDIS_LOCK_TTL", 2*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET_KEY", ""),
		},
		Bulk: BulkConfig{
			ChunkSize:     getEnvInt("BULK_CHUNK_SIZE", 5),
			MaxIterations: getEnvInt("BULK_MAX_ITERATIONS", 50),
			Workers:       getEnvInt("BULK_JOB_WORKERS", 2),
		},
		Upload: UploadConfig{
			MaxFiles:     getEnvInt("UPLOAD_MAX_FILES", 70),
			MaxFileBytes: int64(getEnvInt("UPLOAD_MAX_FILE_BYTES", 10<<20)),
			MaxTotal:     int64(getEnvInt("UPLOAD_MAX_TOTAL_BYTES", 100<<20)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}
