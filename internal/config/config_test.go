package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	clearBrokerEnv(t)

	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Fatalf("got addr %q, want :8080", cfg.Addr)
	}
	if cfg.MaxFrameBytes != 64*1024 {
		t.Fatalf("got max frame %d, want 65536", cfg.MaxFrameBytes)
	}
	if cfg.RateLimitPerWindow != 50 {
		t.Fatalf("got rate limit %d, want 50", cfg.RateLimitPerWindow)
	}
	if cfg.RateLimitWindow != time.Second {
		t.Fatalf("got rate window %v, want 1s", cfg.RateLimitWindow)
	}
	if cfg.KeepaliveInterval != 30*time.Second {
		t.Fatalf("got keepalive %v, want 30s", cfg.KeepaliveInterval)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Fatalf("got shutdown timeout %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoadHonorsOverrides(t *testing.T) {
	clearBrokerEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("BROKER_RATE_LIMIT", "10")

	cfg := Load()
	if cfg.Addr != ":9090" {
		t.Fatalf("got addr %q, want :9090", cfg.Addr)
	}
	if cfg.RateLimitPerWindow != 10 {
		t.Fatalf("got rate limit %d, want 10", cfg.RateLimitPerWindow)
	}
}

func TestIntFromEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv("BROKER_TEST_INT", "not-a-number")
	if got := intFromEnv("BROKER_TEST_INT", 7); got != 7 {
		t.Fatalf("got %d, want fallback 7", got)
	}
	t.Setenv("BROKER_TEST_INT", "-5")
	if got := intFromEnv("BROKER_TEST_INT", 7); got != 7 {
		t.Fatalf("got %d, want fallback 7 for non-positive value", got)
	}
}

func clearBrokerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "BROKER_MAX_FRAME_BYTES", "BROKER_RATE_LIMIT",
		"BROKER_RATE_WINDOW", "BROKER_RATE_SWEEP_INTERVAL", "BROKER_RATE_BUCKET_MAX_IDLE",
		"BROKER_KEEPALIVE_INTERVAL", "BROKER_STATUS_TIMEOUT", "BROKER_SHUTDOWN_TIMEOUT",
		"BROKER_PROTECTED_IDENTITIES_FILE",
	} {
		os.Unsetenv(k)
	}
}
