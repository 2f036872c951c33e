package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
app:
  name: "YardBooks"
  environment: "production"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
api:
  host: "0.0.0.0"
  port: 8080
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
    issuer: "yardbooks-test"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if !cfg.App.IsProduction() {
		t.Error("IsProduction() = false for environment=production")
	}
	if cfg.Security.JWT.Issuer != "yardbooks-test" {
		t.Errorf("JWT.Issuer = %q, want %q", cfg.Security.JWT.Issuer, "yardbooks-test")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Fatal("Load() expected error for missing JWT secret, got nil")
	}
	if !strings.Contains(err.Error(), "jwt.secret") {
		t.Errorf("error = %v, want mention of jwt.secret", err)
	}
}

func TestLoad_ShortJWTSecret(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "too-short"
`
	_, err := Load(writeConfig(t, content))
	if err == nil {
		t.Error("Load() expected error for short JWT secret, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	content := `
database:
  path: "/tmp/from-file.db"
security:
  jwt:
    secret: "file-secret-key-at-least-32-chars!!"
`
	t.Setenv("YARDBOOKS_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("YARDBOOKS_JWT_SECRET", "env-secret-key-at-least-32-chars!!!")
	t.Setenv("YARDBOOKS_API_PORT", "9090")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Security.JWT.Secret != "env-secret-key-at-least-32-chars!!!" {
		t.Error("JWT.Secret should come from environment")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
}

func TestDefaults(t *testing.T) {
	content := `
database:
  path: "/tmp/test.db"
security:
  jwt:
    secret: "test-secret-key-at-least-32-chars!"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Security.JWT.AccessTTL(); got != 15*time.Minute {
		t.Errorf("AccessTTL() = %v, want 15m", got)
	}
	if got := cfg.Security.JWT.RefreshTTL(); got != 7*24*time.Hour {
		t.Errorf("RefreshTTL() = %v, want 168h", got)
	}
	if got := cfg.Security.JWT.TwoFactorTTL(); got != 5*time.Minute {
		t.Errorf("TwoFactorTTL() = %v, want 5m", got)
	}
	if !cfg.Security.RateLimit.Enabled {
		t.Error("rate limiting should default to enabled")
	}
	if cfg.App.IsProduction() {
		t.Error("default environment should not be production")
	}
}

func TestCookiesSecure(t *testing.T) {
	cfg := defaultConfig()
	if cfg.CookiesSecure() {
		t.Error("CookiesSecure() = true in development with secure=false")
	}

	cfg.App.Environment = "production"
	if !cfg.CookiesSecure() {
		t.Error("CookiesSecure() = false in production; HSTS implies secure cookies")
	}

	cfg.App.Environment = "development"
	cfg.Security.Cookies.Secure = true
	if !cfg.CookiesSecure() {
		t.Error("CookiesSecure() = false with explicit secure=true")
	}
}
