// Package config provides configuration management for the asset orchestration service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the server and worker processes.
type Config struct {
	// Server settings
	Port     string
	GRPCAddr string

	// Database settings
	DatabaseURL    string
	DatabaseDriver string
	MigrationsPath string
	InMemoryStore  bool

	// Temporal settings
	TemporalAddress   string
	TemporalNamespace string
	TemporalTaskQueue string

	// Batch settings
	AWSRegion         string
	BatchEndpoint     string
	BatchRateLimit    float64
	BatchRateBurst    int
	BatchMaxAttempts  int
	FakeBatch         bool
	PollInterval      time.Duration
	PollCyclesPerRun  int
	SchedulerMaxRound int
	ChunkSize         int
	JobProfilesFile   string
	StatusURL         string

	// Writer database secrets handed to batch jobs
	Writer DBSecret

	// Staging settings
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioRegion    string
	StagingBucket  string
	StagingRoot    string
	UploadRoot     string
}

// DBSecret mirrors the JSON secret layout used for database credentials.
type DBSecret struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"dbname"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	writer := loadSecret("DB_WRITER_SECRET")

	return &Config{
		Port:     getEnv("ASSETS_API_PORT", "8008"),
		GRPCAddr: getEnv("ASSETS_GRPC_ADDR", ":9099"),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		MigrationsPath: getEnv("ASSETS_MIGRATIONS_PATH", "./migrations"),
		InMemoryStore:  getEnvBool("ASSETS_IN_MEMORY_STORE", false),

		TemporalAddress:   getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", "default"),
		TemporalTaskQueue: getEnv("TEMPORAL_TASK_QUEUE", "assets"),

		AWSRegion:         getEnv("AWS_REGION", "us-east-1"),
		BatchEndpoint:     getEnv("BATCH_ENDPOINT_URL", ""),
		BatchRateLimit:    getEnvFloat("BATCH_RATE_LIMIT", 5),
		BatchRateBurst:    getEnvInt("BATCH_RATE_BURST", 10),
		BatchMaxAttempts:  getEnvInt("BATCH_MAX_ATTEMPTS", 5),
		FakeBatch:         getEnvBool("ASSETS_FAKE_BATCH", false),
		PollInterval:      getEnvDuration("POLL_WAIT_TIME", 30*time.Second),
		PollCyclesPerRun:  getEnvInt("POLL_CYCLES_PER_RUN", 500),
		SchedulerMaxRound: getEnvInt("SCHEDULER_MAX_ROUNDS", 64),
		ChunkSize:         getEnvInt("CHUNK_SIZE", 100),
		JobProfilesFile:   getEnv("JOB_PROFILES_FILE", ""),
		StatusURL:         getEnv("STATUS_URL", "http://localhost:8008/tasks"),

		Writer: DBSecret{
			Host:     getEnv("DB_HOST", orDefault(writer.Host, "localhost")),
			Port:     getEnvInt("DB_PORT", orDefaultInt(writer.Port, 5432)),
			DBName:   getEnv("DATABASE", writer.DBName),
			Username: getEnv("DB_USER", writer.Username),
			Password: getEnv("DB_PASSWORD", writer.Password),
		},

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", ""),
		StagingBucket:  getEnv("BUCKET", "gfw-data-lake"),
		StagingRoot:    getEnv("STAGING_ROOT", ""),
		UploadRoot:     getEnv("UPLOAD_ROOT", ""),
	}
}

// Validate checks settings the orchestration engine cannot run without.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.ChunkSize)
	}
	if c.SchedulerMaxRound <= 0 {
		return fmt.Errorf("SCHEDULER_MAX_ROUNDS must be positive, got %d", c.SchedulerMaxRound)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("POLL_WAIT_TIME must be positive, got %s", c.PollInterval)
	}
	if c.PollCyclesPerRun <= 0 {
		return fmt.Errorf("POLL_CYCLES_PER_RUN must be positive, got %d", c.PollCyclesPerRun)
	}
	switch c.DatabaseDriver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be postgres or pgx, got %q", c.DatabaseDriver)
	}
	return nil
}

// loadSecret parses a JSON database secret. Missing or malformed secrets
// yield the zero value so discrete variables can fill in.
func loadSecret(key string) DBSecret {
	var s DBSecret
	if raw := os.Getenv(key); raw != "" {
		_ = json.Unmarshal([]byte(raw), &s)
	}
	return s
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("45s") or a bare number of seconds.
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

func orDefault(value, def string) string {
	if value == "" {
		return def
	}
	return value
}

func orDefaultInt(value, def int) int {
	if value == 0 {
		return def
	}
	return value
}
