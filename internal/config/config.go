// Package config loads RefScope server configuration.
//
// Configuration comes from a TOML file with environment overrides. The
// file is looked up in order: the explicit path given by the caller (CLI
// --config flag), $REFSCOPE_CONFIG, then ~/.refscope/config.toml. A
// missing file is not an error; defaults apply.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the full server configuration.
type Config struct {
	Storage  StorageConfig  `toml:"storage"`
	Indexing IndexingConfig `toml:"indexing"`
	Watch    WatchConfig    `toml:"watch"`
	Log      LogConfig      `toml:"log"`
}

// StorageConfig controls the sqlite database location.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// IndexingConfig controls the repository walker.
type IndexingConfig struct {
	// MaxFileSizeMB caps the size of files read during indexing.
	MaxFileSizeMB int `toml:"max_file_size_mb"`

	// Workers is the indexing concurrency; 0 uses the CPU count.
	Workers int `toml:"workers"`

	// Exclude adds glob patterns on top of the built-in excludes.
	// Empty means built-in defaults only.
	Exclude []string `toml:"exclude"`
}

// WatchConfig controls the optional filesystem watcher.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMS int  `toml:"debounce_ms"`
}

// LogConfig mirrors the logging package settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			DBPath: "~/.refscope/refscope.db",
		},
		Indexing: IndexingConfig{
			MaxFileSizeMB: 10,
			Workers:       0,
		},
		Watch: WatchConfig{
			Enabled:    false,
			DebounceMS: 500,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from path, or from the standard locations when
// path is empty, and applies environment overrides. A nonexistent file
// yields defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	resolved := path
	if resolved == "" {
		resolved = os.Getenv("REFSCOPE_CONFIG")
	}
	if resolved == "" {
		resolved = "~/.refscope/config.toml"
	}

	expanded, err := ExpandPath(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving config path: %w", err)
	}

	if _, statErr := os.Stat(expanded); statErr == nil {
		if _, err := toml.DecodeFile(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", expanded, err)
		}
	} else if path != "" {
		// An explicitly requested file must exist.
		return nil, fmt.Errorf("config file %s: %w", expanded, statErr)
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("REFSCOPE_DB_PATH"); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv("REFSCOPE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("REFSCOPE_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// DatabasePath returns the storage path with ~ expanded.
func (c *Config) DatabasePath() (string, error) {
	return ExpandPath(c.Storage.DBPath)
}

// Render encodes the active configuration back to TOML.
func (c *Config) Render() (string, error) {
	var sb strings.Builder
	if err := toml.NewEncoder(&sb).Encode(c); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return sb.String(), nil
}

// ExpandPath expands a leading ~ to the user home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("finding home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}
