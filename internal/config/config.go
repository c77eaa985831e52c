package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/postpack/internal/codec"
	"github.com/dgallion1/postpack/internal/media"
)

// Store backends.
const (
	BackendRedis     = "redis"
	BackendPathstore = "pathstore"
)

type Config struct {
	Port string

	// Auth
	PostpackAPIKey string

	// Media reconstruction
	CloudinaryCloudName string
	CloudinaryURL       string
	MediaHost           string

	// Codec
	MaxDocDepth int

	// Upload limits
	MaxUploadBytes int64

	// Storage
	StoreBackend    string
	RedisURL        string
	RedisKeyPrefix  string
	PathstoreURL    string
	PathstoreAPIKey string

	// Expanded document cache
	CacheSize int
	CacheTTL  time.Duration

	// Worker pool
	WorkerCount  int
	MaxQueueSize int

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Number of compaction samples kept for percentile stats.
	StatsWindow int
}

func Load() Config {
	cfg := Config{
		Port: envOr("PORT", "8090"),

		PostpackAPIKey: os.Getenv("POSTPACK_API_KEY"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryURL:       os.Getenv("CLOUDINARY_URL"),
		MediaHost:           os.Getenv("MEDIA_HOST"),

		MaxDocDepth: envInt("MAX_DOC_DEPTH", 64),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 52428800), // 50MB

		StoreBackend:    envOr("STORE_BACKEND", BackendRedis),
		RedisURL:        envOr("REDIS_URL", "redis://localhost:6379/0"),
		RedisKeyPrefix:  envOr("REDIS_KEY_PREFIX", "postpack:"),
		PathstoreURL:    envOr("PATHSTORE_URL", "http://localhost:8080"),
		PathstoreAPIKey: os.Getenv("PATHSTORE_API_KEY"),

		CacheSize: envInt("CACHE_SIZE", 512),
		CacheTTL:  envDuration("CACHE_TTL", 10*time.Minute),

		WorkerCount:  envInt("WORKER_COUNT", 4),
		MaxQueueSize: envInt("MAX_QUEUE_SIZE", 100),

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		StatsWindow: envInt("STATS_WINDOW", 1000),
	}

	if cfg.CloudinaryCloudName == "" && cfg.CloudinaryURL != "" {
		if cloud, err := media.CloudFromURL(cfg.CloudinaryURL); err == nil {
			cfg.CloudinaryCloudName = cloud
		}
	}

	if cfg.MaxDocDepth <= 0 {
		cfg.MaxDocDepth = 64
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = 1000
	}

	return cfg
}

func (c Config) Validate() error {
	if c.PostpackAPIKey == "" {
		return fmt.Errorf("POSTPACK_API_KEY is required")
	}
	if c.CloudinaryURL != "" {
		if _, err := media.CloudFromURL(c.CloudinaryURL); err != nil {
			return fmt.Errorf("CLOUDINARY_URL: %w", err)
		}
	}
	switch c.StoreBackend {
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis backend")
		}
	case BackendPathstore:
		if c.PathstoreAPIKey == "" {
			return fmt.Errorf("PATHSTORE_API_KEY is required for the pathstore backend")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendRedis, BackendPathstore, c.StoreBackend)
	}
	return nil
}

// MediaContext returns the reconstruction context used to expand stored
// documents.
func (c Config) MediaContext() codec.Context {
	return codec.Context{CloudName: c.CloudinaryCloudName, MediaHost: c.MediaHost}
}

// CodecConfig returns codec settings derived from the environment.
func (c Config) CodecConfig() codec.Config {
	cc := codec.DefaultConfig()
	cc.MaxDepth = c.MaxDocDepth
	return cc
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
