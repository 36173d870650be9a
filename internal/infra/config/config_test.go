package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.Data.Dir != "./data" {
		t.Errorf("Data.Dir = %q, want %q", cfg.Data.Dir, "./data")
	}
	if cfg.Engine.UserAgent != "haul/1.0" {
		t.Errorf("Engine.UserAgent = %q, want %q", cfg.Engine.UserAgent, "haul/1.0")
	}
	if cfg.Engine.Retries != 3 {
		t.Errorf("Engine.Retries = %d, want 3", cfg.Engine.Retries)
	}
	if cfg.Engine.ProgressInterval != 200*time.Millisecond {
		t.Errorf("Engine.ProgressInterval = %s, want 200ms", cfg.Engine.ProgressInterval)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if !cfg.Log.IncludeStdout {
		t.Error("Log.IncludeStdout = false, want true")
	}
}

func TestLoadDerivesDataPaths(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := map[string]string{
		"ActivePath":   filepath.Join("./data", "active.json"),
		"HistoryPath":  filepath.Join("./data", "history.db"),
		"SpoolDir":     filepath.Join("./data", "spool"),
		"CompletedDir": filepath.Join("./data", "completed"),
	}
	got := map[string]string{
		"ActivePath":   cfg.Data.ActivePath,
		"HistoryPath":  cfg.Data.HistoryPath,
		"SpoolDir":     cfg.Data.SpoolDir,
		"CompletedDir": cfg.Data.CompletedDir,
	}
	for name, wantPath := range want {
		if got[name] != wantPath {
			t.Errorf("Data.%s = %q, want %q", name, got[name], wantPath)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := strings.Join([]string{
		"port: \"9090\"",
		"data:",
		"  dir: /var/lib/haul",
		"engine:",
		"  user_agent: haul-test/0.1",
		"  rate_limit: 1048576",
		"  retries: 5",
		"  progress_interval: 50ms",
		"sink:",
		"  bucket: mem://payloads",
		"log:",
		"  level: debug",
		"  include_stdout: false",
	}, "\n")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error = %v", path, err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.Data.Dir != "/var/lib/haul" {
		t.Errorf("Data.Dir = %q, want %q", cfg.Data.Dir, "/var/lib/haul")
	}
	if cfg.Data.SpoolDir != filepath.Join("/var/lib/haul", "spool") {
		t.Errorf("Data.SpoolDir = %q, want derived from Data.Dir", cfg.Data.SpoolDir)
	}
	if cfg.Engine.UserAgent != "haul-test/0.1" {
		t.Errorf("Engine.UserAgent = %q, want %q", cfg.Engine.UserAgent, "haul-test/0.1")
	}
	if cfg.Engine.RateLimit != 1048576 {
		t.Errorf("Engine.RateLimit = %d, want 1048576", cfg.Engine.RateLimit)
	}
	if cfg.Engine.Retries != 5 {
		t.Errorf("Engine.Retries = %d, want 5", cfg.Engine.Retries)
	}
	if cfg.Engine.ProgressInterval != 50*time.Millisecond {
		t.Errorf("Engine.ProgressInterval = %s, want 50ms", cfg.Engine.ProgressInterval)
	}
	if cfg.Sink.Bucket != "mem://payloads" {
		t.Errorf("Sink.Bucket = %q, want %q", cfg.Sink.Bucket, "mem://payloads")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.IncludeStdout {
		t.Error("Log.IncludeStdout = true, want false")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HAUL_PORT", "7070")
	t.Setenv("HAUL_LOG_LEVEL", "error")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != "7070" {
		t.Errorf("Port = %q, want env override %q", cfg.Port, "7070")
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %q, want env override %q", cfg.Log.Level, "error")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() with a missing explicit file should fail")
	}
}

func TestLoadRejectsNegativeRateLimit(t *testing.T) {
	yaml := "engine:\n  rate_limit: -1\n"
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() with a negative rate limit should fail")
	}
}
