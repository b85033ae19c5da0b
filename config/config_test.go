package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

const sample = `
http:
  port: 9090
  timeout: 5s
log:
  level: debug
  file: logs/churnserve.log
model:
  type: logistic_regression
  path: models/churn.json
telemetry:
  session_file: .telemetry.yaml
`

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 9090 || cfg.Http.Timeout != 5*time.Second {
		t.Fatalf("unexpected http config: %+v", cfg.Http)
	}
	if cfg.Model.Type != "logistic_regression" || cfg.Model.Path != "models/churn.json" {
		t.Fatalf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Model.LabelKey != "churn" {
		t.Fatalf("expected default label key, got %q", cfg.Model.LabelKey)
	}
	if cfg.Telemetry.DatasetName != "my_deployed_model" || cfg.Telemetry.SessionFile != ".telemetry.yaml" {
		t.Fatalf("unexpected telemetry config: %+v", cfg.Telemetry)
	}
	if cfg.Http.MaxBodyBytes != 1<<20 {
		t.Fatalf("expected default body limit, got %d", cfg.Http.MaxBodyBytes)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvPort, "7000")
	t.Setenv(EnvModelPath, "/models/other.json")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(writeConfig(t, t.TempDir(), sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 7000 || cfg.Model.Path != "/models/other.json" || cfg.Log.Level != "warn" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	if _, err := Load(writeConfig(t, t.TempDir(), "http:\n  port: 70000\n")); err == nil {
		t.Fatal("expected error for invalid port")
	}
	if _, err := Load(writeConfig(t, t.TempDir(), "model:\n  path: \"\"\n")); err == nil {
		t.Fatal("expected error for empty model path")
	}
	t.Setenv(EnvPort, "eighty")
	if _, err := Load(writeConfig(t, t.TempDir(), sample)); err == nil {
		t.Fatal("expected error for non-numeric port")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sample)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	errc := make(chan error, 1)
	go func() {
		errc <- Watch(ctx, path, zap.NewNop(), func(c *Config) {
			select {
			case changes <- c:
			default:
			}
		})
	}()

	// give the watcher time to register before editing
	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(sample, "level: debug", "level: error", 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-changes:
		if cfg.Log.Level != "error" {
			t.Fatalf("expected reloaded level error, got %q", cfg.Log.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
