// Package config loads broker configuration from environment variables,
// following the getenv/intFromEnv helper family used throughout Chartly's
// service cmd/ programs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Config holds every tunable the broker reads at startup. PORT and
// LOG_LEVEL are the two variables named in spec.md §6; the rest are
// broker-internal knobs with the spec's own defaults baked in.
type Config struct {
	Addr     string
	LogLevel telemetry.Level

	MaxFrameBytes      int
	RateLimitPerWindow int
	RateLimitWindow    time.Duration
	RateBucketSweep    time.Duration
	RateBucketMaxIdle  time.Duration

	KeepaliveInterval time.Duration
	StatusReadTimeout time.Duration
	ShutdownTimeout   time.Duration

	ProtectedIdentitiesFile string
}

func Load() Config {
	return Config{
		Addr:     ":" + getenv("PORT", "8080"),
		LogLevel: telemetry.ParseLevel(getenv("LOG_LEVEL", "INFO")),

		MaxFrameBytes:      intFromEnv("BROKER_MAX_FRAME_BYTES", 64*1024),
		RateLimitPerWindow: intFromEnv("BROKER_RATE_LIMIT", 50),
		RateLimitWindow:    durationFromEnv("BROKER_RATE_WINDOW", time.Second),
		RateBucketSweep:    durationFromEnv("BROKER_RATE_SWEEP_INTERVAL", 10*time.Second),
		RateBucketMaxIdle:  durationFromEnv("BROKER_RATE_BUCKET_MAX_IDLE", 2*time.Second),

		KeepaliveInterval: durationFromEnv("BROKER_KEEPALIVE_INTERVAL", 30*time.Second),
		StatusReadTimeout: durationFromEnv("BROKER_STATUS_TIMEOUT", 30*time.Second),
		ShutdownTimeout:   durationFromEnv("BROKER_SHUTDOWN_TIMEOUT", 10*time.Second),

		ProtectedIdentitiesFile: getenv("BROKER_PROTECTED_IDENTITIES_FILE", ""),
	}
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durationFromEnv(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
