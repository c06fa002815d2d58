package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("env overrides defaults", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("ADMIN_EMAILS", " owner@pharmacy.example, ,clerk@pharmacy.example")
		t.Setenv("OPERATION_TIMEOUT", "5s")
		t.Setenv("CATEGORY_MODE", "DERIVED")
		t.Setenv("PORT", "9090")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if len(cfg.Auth.AdminEmails) != 2 {
			t.Errorf("admins: expected 2, got %v", cfg.Auth.AdminEmails)
		}
		if cfg.Inventory.OperationTimeout != 5*time.Second {
			t.Errorf("timeout: got %v", cfg.Inventory.OperationTimeout)
		}
		if cfg.Inventory.CategoryMode != CategoryModeDerived {
			t.Errorf("mode: got %q", cfg.Inventory.CategoryMode)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("port: got %d", cfg.Server.Port)
		}
		if cfg.NotifyTTL != 3*time.Second {
			t.Errorf("notify ttl: got %v", cfg.NotifyTTL)
		}
	})

	t.Run("yaml file is applied before env", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := []byte(`
storage:
  backend: sqlite
  db_path: /tmp/from-file.db
auth:
  jwt_secret: file-secret
  admin_emails: [owner@pharmacy.example]
inventory:
  category_mode: managed
`)
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", path)
		t.Setenv("DB_PATH", "/tmp/from-env.db")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if cfg.Auth.JWTSecret != "file-secret" {
			t.Errorf("secret: got %q", cfg.Auth.JWTSecret)
		}
		if cfg.Storage.DBPath != "/tmp/from-env.db" {
			t.Errorf("db path: got %q", cfg.Storage.DBPath)
		}
	})

	t.Run("missing secret is rejected", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		if _, err := Load(); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("bad duration is rejected", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("SESSION_TTL", "forever")
		if _, err := Load(); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Auth.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config with secret should be valid: %v", err)
	}

	cfg.Storage.Backend = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Error("expected unknown backend to fail")
	}
}
