package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SESSION_STORE", "SESSION_IDLE_TIMEOUT", "INGEST_VERIFY_MEDIA_REFERENCES"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "5000" {
		t.Errorf("Expected default port 5000, got %s", cfg.Port)
	}
	if cfg.SessionStore != SessionStoreMemory {
		t.Errorf("Expected memory session store, got %s", cfg.SessionStore)
	}
	if cfg.SessionIdleTimeout != 30*time.Minute {
		t.Errorf("Expected 30m idle timeout, got %v", cfg.SessionIdleTimeout)
	}
	if cfg.VerifyMediaReferences {
		t.Error("Media reference verification should be off by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SESSION_STORE", "Redis")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("TELEGRAM_WEBHOOK_URL", "https://bot.example.com/")
	t.Setenv("INGEST_RATE_LIMIT_PER_MINUTE", "5")

	cfg := Load()
	if cfg.SessionStore != SessionStoreRedis {
		t.Errorf("Expected redis session store, got %s", cfg.SessionStore)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Errorf("Expected 10m idle timeout, got %v", cfg.SessionIdleTimeout)
	}
	if cfg.TelegramWebhookURL != "https://bot.example.com" {
		t.Errorf("Expected trailing slash trimmed, got %s", cfg.TelegramWebhookURL)
	}
	if cfg.IngestRateLimit != 5 {
		t.Errorf("Expected rate limit 5, got %d", cfg.IngestRateLimit)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			DatabaseURL:        "sqlite://:memory:",
			SessionStore:       SessionStoreMemory,
			SessionIdleTimeout: time.Minute,
		}
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("Expected valid config, got %v", err)
	}

	cfg := base()
	cfg.DatabaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for missing DATABASE_URL")
	}

	cfg = base()
	cfg.SessionStore = SessionStoreRedis
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for redis store without REDIS_URL")
	}

	cfg = base()
	cfg.SessionStore = "etcd"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for unknown session store")
	}

	cfg = base()
	cfg.TelegramWebhookURL = "https://bot.example.com"
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for webhook without secret")
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	content := "categories:\n  - Action\n  - \" Comedy \"\n  - Action\n  - \"\"\ndjs:\n  - DJ Spin\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}

	if len(seed.Categories) != 2 || seed.Categories[0] != "Action" || seed.Categories[1] != "Comedy" {
		t.Errorf("Unexpected categories: %v", seed.Categories)
	}
	if len(seed.DJs) != 1 || seed.DJs[0] != "DJ Spin" {
		t.Errorf("Unexpected DJs: %v", seed.DJs)
	}
}

func TestLoadSeed_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("categories: [unclosed"), 0o644); err != nil {
		t.Fatalf("Failed to write seed file: %v", err)
	}

	if _, err := LoadSeed(path); err == nil {
		t.Fatal("Expected parse error")
	}
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Expected read error")
	}
}
