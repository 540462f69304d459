// Package config loads foldercache settings from the embedded defaults, an
// optional YAML file and FOLDERCACHE_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"foldercache/internal/logging"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "FOLDERCACHE_"

type Config struct {
	Listen    string        `yaml:"listen"`
	AuthToken string        `yaml:"auth_token"`
	Log       LogConfig     `yaml:"log"`
	Watch     WatchConfig   `yaml:"watch"`
	Folder    FolderConfig  `yaml:"folder"`
	Listing   ListingConfig `yaml:"listing"`
	Mounts    MountsConfig  `yaml:"mounts"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type WatchConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	MaxWatches int           `yaml:"max_watches"`
}

type FolderConfig struct {
	ReloadDelay      time.Duration `yaml:"reload_delay"`
	DeferContentTest bool          `yaml:"defer_content_test"`
}

type ListingConfig struct {
	Workers int `yaml:"workers"`
}

type MountsConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Table        string        `yaml:"table"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Load decodes defaults, then the file at path when one is given, then the
// environment. lookup defaults to os.LookupEnv.
func Load(path string, defaults []byte, lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	if err := decode(defaults, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode defaults: %w", err)
	}

	if path = strings.TrimSpace(path); path != "" {
		payload, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := decode(payload, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if lookup == nil {
		lookup = os.LookupEnv
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decode(payload []byte, cfg *Config) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(payload))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	var errs []error
	value := func(key string) (string, bool) {
		raw, ok := lookup(EnvPrefix + key)
		raw = strings.TrimSpace(raw)
		return raw, ok && raw != ""
	}
	fail := func(key string, err error) {
		errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
	}
	str := func(key string, target *string) {
		if raw, ok := lookup(EnvPrefix + key); ok {
			*target = strings.TrimSpace(raw)
		}
	}
	integer := func(key string, target *int) {
		if raw, ok := value(key); ok {
			parsed, err := strconv.Atoi(raw)
			if err != nil {
				fail(key, err)
				return
			}
			*target = parsed
		}
	}
	duration := func(key string, target *time.Duration) {
		if raw, ok := value(key); ok {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				fail(key, err)
				return
			}
			*target = parsed
		}
	}
	boolean := func(key string, target *bool) {
		if raw, ok := value(key); ok {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				fail(key, err)
				return
			}
			*target = parsed
		}
	}

	str("LISTEN", &cfg.Listen)
	str("AUTH_TOKEN", &cfg.AuthToken)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	integer("LOG_MAX_SIZE_MB", &cfg.Log.MaxSizeMB)
	integer("LOG_MAX_BACKUPS", &cfg.Log.MaxBackups)
	duration("WATCH_DEBOUNCE", &cfg.Watch.Debounce)
	integer("WATCH_MAX_WATCHES", &cfg.Watch.MaxWatches)
	duration("FOLDER_RELOAD_DELAY", &cfg.Folder.ReloadDelay)
	boolean("FOLDER_DEFER_CONTENT_TEST", &cfg.Folder.DeferContentTest)
	integer("LISTING_WORKERS", &cfg.Listing.Workers)
	boolean("MOUNTS_ENABLED", &cfg.Mounts.Enabled)
	str("MOUNTS_TABLE", &cfg.Mounts.Table)
	duration("MOUNTS_POLL_INTERVAL", &cfg.Mounts.PollInterval)

	return errors.Join(errs...)
}

// Validate reports settings that cannot be used.
func (cfg Config) Validate() error {
	var errs []error
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", cfg.Log.Level))
	}
	if cfg.Watch.Debounce < 0 {
		errs = append(errs, errors.New("watch.debounce must not be negative"))
	}
	if cfg.Watch.MaxWatches < 0 {
		errs = append(errs, errors.New("watch.max_watches must not be negative"))
	}
	if cfg.Folder.ReloadDelay < 0 {
		errs = append(errs, errors.New("folder.reload_delay must not be negative"))
	}
	if cfg.Listing.Workers < 0 {
		errs = append(errs, errors.New("listing.workers must not be negative"))
	}
	if cfg.Mounts.Enabled && strings.TrimSpace(cfg.Mounts.Table) == "" {
		errs = append(errs, errors.New("mounts.table is required when mounts are enabled"))
	}
	return errors.Join(errs...)
}

// LogLevel returns the parsed log level, falling back to info.
func (cfg Config) LogLevel() logging.Level {
	if level, ok := logging.ParseLevel(cfg.Log.Level); ok {
		return level
	}
	return logging.LevelInfo
}
