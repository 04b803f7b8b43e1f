package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "PORT", "LOG_LEVEL", "JOIN_COOLDOWN", "CHAT_HISTORY_LIMIT",
		"RUN_HISTORY_LIMIT", "SEND_QUEUE_SIZE", "CORS_ORIGINS", "REDIS_ADDR",
		"STATS_SCHEDULE", "AI_PROVIDER", "SANDBOX_ENABLED", "SANDBOX_WALL_TIME",
		"SANDBOX_MEMORY_MB",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.JoinCooldown != time.Second || cfg.RunHistoryLimit != 20 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.FeedEnabled() {
		t.Fatalf("feed should be disabled without REDIS_ADDR")
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("JOIN_COOLDOWN", "250ms")
	t.Setenv("CHAT_HISTORY_LIMIT", "100")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SANDBOX_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "9000" || cfg.JoinCooldown != 250*time.Millisecond || cfg.ChatHistoryLimit != 100 {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("unexpected cors origins: %v", cfg.CORSOrigins)
	}
	if !cfg.FeedEnabled() || !cfg.SandboxEnabled {
		t.Fatalf("expected feed and sandbox enabled: %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "velvet.yaml")
	body := "port: \"7000\"\nlog_level: debug\nrun_history_limit: 5\njoin_cooldown: 2s\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Port != "7000" || cfg.RunHistoryLimit != 5 || cfg.JoinCooldown != 2*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("env should override file, got %s", cfg.LogLevel)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"JOIN_COOLDOWN":      "soon",
		"CHAT_HISTORY_LIMIT": "-1",
		"SEND_QUEUE_SIZE":    "0",
		"AI_PROVIDER":        "unknown",
		"SANDBOX_ENABLED":    "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("UNIT_TEST_ENV", "value")
	if got := getEnvOrDefault("UNIT_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("expected env value, got %s", got)
	}

	t.Setenv("UNIT_TEST_ENV", "")
	if got := getEnvOrDefault("UNIT_TEST_ENV", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value, got %s", got)
	}
}
