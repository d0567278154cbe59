// Package config loads the cache's configuration from a TOML file, the way
// bt-go/internal/config does for its own Config, layered with
// environment-variable overrides for the handful of settings that make
// sense to override per-process, the way
// alexjbarnes-vault-sync/internal/config does with struct env tags.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config is the cache's top-level configuration.
type Config struct {
	// DatabasePath is the SQLite file path, or ":memory:" for a process-local
	// database. Overridable via CACHE_DATABASE_PATH.
	DatabasePath string `toml:"database_path" env:"CACHE_DATABASE_PATH"`

	// PathCacheSize bounds the Path Resolver's LRU, in resolved paths.
	PathCacheSize int `toml:"path_cache_size"`

	// Metadata selects the metadata decoder; its PublicKeyPath/PrivateKeyPath
	// point at the age identity used by the AgeDecoder reference
	// implementation.
	Metadata MetadataConfig `toml:"metadata"`
}

// MetadataConfig configures the metadata decoder.
type MetadataConfig struct {
	Type           string `toml:"type"` // "plain" (default, for tests) or "age"
	PublicKeyPath  string `toml:"public_key_path,omitempty"`
	PrivateKeyPath string `toml:"private_key_path,omitempty"`
}

// Default returns a Config with sane defaults for local/test use.
func Default() Config {
	return Config{
		DatabasePath:  ":memory:",
		PathCacheSize: 4096,
		Metadata:      MetadataConfig{Type: "plain"},
	}
}

// Load reads a Config from path, then applies any environment-variable
// overrides declared via env struct tags.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return Config{}, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Read decodes a Config from r and applies environment overrides.
func Read(r io.Reader) (Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("applying environment overrides: %w", err)
	}
	return cfg, nil
}

// Write encodes cfg to w as TOML.
func Write(w io.Writer, cfg Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}
