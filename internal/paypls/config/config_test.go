package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RobinCoderZhao/paypls-mcp/pkg/storage"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PAYPLS_API_URL", "PAYPLS_TOKEN", "PAYPLS_API_TIMEOUT", "PAYPLS_API_RPM",
		"PAYPLS_HTTP_ADDR", "PAYPLS_HTTP_TOKEN", "PAYPLS_JOURNAL_DSN", "PAYPLS_JOURNAL_DRIVER",
		"PAYPLS_LOG_LEVEL", "PAYPLS_LOG_FORMAT",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

// isolate runs the test in an empty working and home directory.
func isolate(t *testing.T) string {
	t.Helper()
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)
	return dir
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.API.BaseURL != "https://api.paypls.io" {
		t.Fatalf("unexpected base URL %q", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 0 || cfg.API.RequestsPerMinute != 0 {
		t.Fatal("expected no timeout and no rate limit by default")
	}
	if cfg.Journal.Enabled() {
		t.Fatal("journal should be disabled by default")
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Fatalf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	isolate(t)
	t.Setenv("PAYPLS_TOKEN", "tok_env")
	t.Setenv("PAYPLS_API_URL", "https://test.paypls.io")
	t.Setenv("PAYPLS_API_TIMEOUT", "15s")
	t.Setenv("PAYPLS_JOURNAL_DSN", "journal.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Token != "tok_env" || cfg.API.BaseURL != "https://test.paypls.io" {
		t.Fatalf("env not applied: %+v", cfg.API)
	}
	if cfg.API.Timeout != 15*time.Second {
		t.Fatalf("expected 15s timeout, got %v", cfg.API.Timeout)
	}
	if !cfg.Journal.Enabled() || cfg.Journal.Driver != storage.SQLite {
		t.Fatalf("unexpected journal config: %+v", cfg.Journal)
	}
}

func TestLoad_ProjectFileThenEnv(t *testing.T) {
	dir := isolate(t)
	content := `
api:
  base_url: https://test.paypls.io
  token: tok_file
  requests_per_minute: 30
http:
  addr: ":8090"
log:
  level: debug
`
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PAYPLS_TOKEN", "tok_env")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.API.Token != "tok_env" {
		t.Fatalf("expected env to override file, got %q", cfg.API.Token)
	}
	if cfg.API.RequestsPerMinute != 30 || cfg.HTTP.Addr != ":8090" || cfg.Log.Level != "debug" {
		t.Fatalf("file values not loaded: %+v", cfg)
	}
	if cfg.Log.Format != "text" {
		t.Fatalf("expected default format to survive, got %q", cfg.Log.Format)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	dir := isolate(t)
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestLoad_MalformedEnv(t *testing.T) {
	isolate(t)
	t.Setenv("PAYPLS_API_RPM", "lots")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for malformed PAYPLS_API_RPM")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.Validate()

	var startupErr *StartupConfigError
	if !errors.As(err, &startupErr) {
		t.Fatalf("expected *StartupConfigError, got %v", err)
	}
	if startupErr.Key != "PAYPLS_TOKEN" || startupErr.Hint != TokenHint {
		t.Fatalf("unexpected error: %+v", startupErr)
	}

	cfg.API.Token = "tok"
	cfg.API.BaseURL = "  "
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if cfg.API.BaseURL != "https://api.paypls.io" {
		t.Fatalf("expected base URL default, got %q", cfg.API.BaseURL)
	}

	cfg.Log.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}
}
