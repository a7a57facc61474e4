package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"chattour/internal/config"
)

func clearServerEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"ENV", "DB_DSN", "JWT_SECRET", "REDIS_ADDR", "STORE", "HISTORY_LIMIT"} {
		t.Setenv(k, "")
	}
	t.Chdir(t.TempDir()) // keep a developer's .env out of the test
}

func TestLoadServerDefaults(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("STORE", "memory")

	cfg, err := config.LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if !cfg.IsDevelopment() {
		t.Fatalf("expected development env, got %q", cfg.Env)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
	if cfg.HistoryLimit != 100 {
		t.Fatalf("unexpected history limit %d", cfg.HistoryLimit)
	}
	if cfg.JWTSecret == "" {
		t.Fatal("expected a development secret")
	}
}

func TestLoadServerRequiresSecretOutsideDevelopment(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("STORE", "memory")

	if _, err := config.LoadServer(); err == nil {
		t.Fatal("expected missing JWT_SECRET error")
	}
}

func TestLoadServerRequiresDSNForPostgres(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("JWT_SECRET", "s")

	if _, err := config.LoadServer(); err == nil {
		t.Fatal("expected missing DB_DSN error")
	}
}

func TestLoadServerIgnoresBadHistoryLimit(t *testing.T) {
	clearServerEnv(t)
	t.Setenv("STORE", "memory")
	t.Setenv("HISTORY_LIMIT", "-3")

	cfg, err := config.LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.HistoryLimit != 100 {
		t.Fatalf("expected default history limit, got %d", cfg.HistoryLimit)
	}
}

func TestLoadClientFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
url = "http://chat.example:9000/"

[auth]
enabled = false

[chat]
author = "Ada"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHATTOUR_CONFIG", path)
	t.Setenv("CHATTOUR_LOG_LEVEL", "debug")

	cfg, err := config.LoadClient()
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.Server.URL != "http://chat.example:9000" {
		t.Fatalf("unexpected server url %q", cfg.Server.URL)
	}
	if cfg.Auth.Enabled {
		t.Fatal("expected auth disabled")
	}
	if cfg.Chat.Author != "Ada" {
		t.Fatalf("unexpected author %q", cfg.Chat.Author)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected env override of log level, got %q", cfg.Log.Level)
	}
}

func TestLoadClientMissingExplicitFile(t *testing.T) {
	t.Setenv("CHATTOUR_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := config.LoadClient(); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}
