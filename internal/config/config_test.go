package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"foldercache"
	"foldercache/internal/logging"
)

func noEnv(string) (string, bool) {
	return "", false
}

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("", foldercache.DefaultConfig, noEnv)
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if cfg.Listen != "127.0.0.1:8788" {
		t.Fatalf("unexpected listen address %q", cfg.Listen)
	}
	if cfg.Watch.Debounce != 100*time.Millisecond {
		t.Fatalf("expected 100ms debounce, got %s", cfg.Watch.Debounce)
	}
	if cfg.Folder.ReloadDelay != 100*time.Millisecond {
		t.Fatalf("expected 100ms reload delay, got %s", cfg.Folder.ReloadDelay)
	}
	if !cfg.Mounts.Enabled || cfg.Mounts.Table != "/proc/self/mountinfo" {
		t.Fatalf("unexpected mounts config %+v", cfg.Mounts)
	}
	if cfg.LogLevel() != logging.LevelInfo {
		t.Fatalf("expected info level, got %q", cfg.LogLevel())
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foldercache.yaml")
	payload := "folder:\n  reload_delay: 250ms\n  defer_content_test: true\nlisting:\n  workers: 2\n"
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, foldercache.DefaultConfig, noEnv)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Folder.ReloadDelay != 250*time.Millisecond || !cfg.Folder.DeferContentTest {
		t.Fatalf("expected file values, got %+v", cfg.Folder)
	}
	if cfg.Listing.Workers != 2 {
		t.Fatalf("expected 2 workers, got %d", cfg.Listing.Workers)
	}
	if cfg.Watch.MaxWatches != 1024 {
		t.Fatalf("expected default max watches to survive, got %d", cfg.Watch.MaxWatches)
	}
}

func TestLoadEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foldercache.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warning\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path, foldercache.DefaultConfig, envMap(map[string]string{
		"FOLDERCACHE_LOG_LEVEL":       "debug",
		"FOLDERCACHE_LISTEN":          ":9000",
		"FOLDERCACHE_MOUNTS_ENABLED":  "false",
		"FOLDERCACHE_WATCH_DEBOUNCE":  "1s",
		"FOLDERCACHE_LISTING_WORKERS": " ",
	}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.LogLevel() != logging.LevelDebug {
		t.Fatalf("expected env level to win, got %q", cfg.Log.Level)
	}
	if cfg.Listen != ":9000" || cfg.Mounts.Enabled || cfg.Watch.Debounce != time.Second {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Listing.Workers != 8 {
		t.Fatalf("expected blank env value to be ignored, got %d", cfg.Listing.Workers)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load("", foldercache.DefaultConfig, envMap(map[string]string{
		"FOLDERCACHE_WATCH_MAX_WATCHES":   "many",
		"FOLDERCACHE_FOLDER_RELOAD_DELAY": "soon",
	}))
	if err == nil {
		t.Fatal("expected env parse errors")
	}
	for _, want := range []string{"FOLDERCACHE_WATCH_MAX_WATCHES", "FOLDERCACHE_FOLDER_RELOAD_DELAY"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in error, got %v", want, err)
		}
	}

	_, err = Load("", foldercache.DefaultConfig, envMap(map[string]string{"FOLDERCACHE_LOG_LEVEL": "loud"}))
	if err == nil || !strings.Contains(err.Error(), "log.level") {
		t.Fatalf("expected log level error, got %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "foldercache.yaml")
	if err := os.WriteFile(path, []byte("folders:\n  reload_delay: 1s\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path, foldercache.DefaultConfig, noEnv); err == nil {
		t.Fatal("expected unknown key to be rejected")
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), foldercache.DefaultConfig, noEnv)
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestValidateMountsTable(t *testing.T) {
	cfg := Config{Log: LogConfig{Level: "info"}, Mounts: MountsConfig{Enabled: true}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected missing mount table to fail validation")
	}
	cfg.Mounts.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
