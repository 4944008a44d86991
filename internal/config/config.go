package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"fluxconn/internal/driver"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// AppEnv is the running environment (development/production).
	AppEnv string
	// DBDriver selects the adapter: mysql, postgres, sqlite or mongo.
	DBDriver string
	// DBDSN is the driver-specific data source name.
	DBDSN string
	// DBUser and DBPassword are merged into the DSN by the adapter.
	DBUser     string
	DBPassword string
	// DBOptions are driver options given as "k=v,k=v".
	DBOptions map[string]string
	// StmtCache enables the prepared statement cache.
	StmtCache bool
	// AutoConnect opens the connection at startup instead of on first use.
	AutoConnect bool
	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration
	// IdlePause pauses the connection after this much inactivity. Zero disables it.
	IdlePause time.Duration
	// WorkerCount is the number of concurrent batch jobs allowed.
	WorkerCount int
	// MaxDBConcurrency restricts the global number of concurrent DB connections.
	MaxDBConcurrency int64
	// DefaultTimeout is the maximum duration for one job.
	DefaultTimeout time.Duration
	// StorageType determines where to save exports: "local" or "s3".
	StorageType string
	// LocalStoragePath is the directory for local exports.
	LocalStoragePath string
	// AWSRegion is the AWS region for S3 uploads.
	AWSRegion string
	// S3Bucket is the target S3 bucket name.
	S3Bucket string
	// S3Endpoint is an optional custom endpoint (for non-AWS S3 providers like MinIO).
	S3Endpoint string
	// S3PathStyle enables path-style addressing (required for some S3 providers).
	S3PathStyle bool
	// Compression enables Gzip compression for exports.
	Compression bool
	// ReactorURL is the websocket endpoint the agent connects to.
	ReactorURL string
	// AgentKey identifies the agent to the reactor.
	AgentKey string
	// AgentSecret verifies job signatures. Empty disables verification.
	AgentSecret string
}

func Load() *Config {
	return &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		DBDriver:         getEnv("DB_DRIVER", "mysql"),
		DBDSN:            getEnv("DB_DSN", "tcp(localhost:3306)/dbname"),
		DBUser:           getEnv("DB_USER", ""),
		DBPassword:       getEnv("DB_PASSWORD", ""),
		DBOptions:        getEnvMap("DB_OPTIONS", nil),
		StmtCache:        getEnvBool("DB_STMT_CACHE", true),
		AutoConnect:      getEnvBool("DB_AUTOCONNECT", true),
		ProbeTimeout:     getEnvDuration("DB_PROBE_TIMEOUT", 5*time.Second),
		IdlePause:        getEnvDuration("IDLE_PAUSE", 0),
		WorkerCount:      getEnvInt("WORKER_COUNT", 5),
		MaxDBConcurrency: int64(getEnvInt("MAX_DB_CONCURRENCY", 3)),
		DefaultTimeout:   getEnvDuration("DEFAULT_TIMEOUT", 15*time.Minute),
		StorageType:      getEnv("STORAGE_TYPE", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./exports"),
		AWSRegion:        getEnv("AWS_REGION", "us-east-1"),
		S3Bucket:         getEnv("S3_BUCKET", ""),
		S3Endpoint:       getEnv("S3_ENDPOINT", ""),
		S3PathStyle:      getEnvBool("S3_PATH_STYLE", false),
		Compression:      getEnvBool("COMPRESSION", false),
		ReactorURL:       getEnv("REACTOR_URL", ""),
		AgentKey:         getEnv("AGENT_KEY", ""),
		AgentSecret:      getEnv("AGENT_SECRET", ""),
	}
}

// Descriptor returns what the connection needs to (re)open itself.
func (c *Config) Descriptor() driver.Descriptor {
	return driver.Descriptor{
		DSN: c.DBDSN,
		Credentials: driver.Credentials{
			User:     c.DBUser,
			Password: c.DBPassword,
		},
		Options: c.DBOptions,
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// getEnvMap parses "k=v,k=v". Entries without '=' are skipped.
func getEnvMap(key string, fallback map[string]string) map[string]string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	result := make(map[string]string)
	for _, pair := range strings.Split(value, ",") {
		k, v, found := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !found || k == "" {
			continue
		}
		result[k] = strings.TrimSpace(v)
	}
	return result
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
