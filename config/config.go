// Package config holds the explicit configuration value threaded through
// every component constructor in cmd/pyresolve, rather than any
// process-wide singleton (per SPEC_FULL.md §9's "global configuration"
// design note).
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is loaded from an optional TOML file and then overridden by
// command-line flags; see cmd/pyresolve/main.go.
type Config struct {
	IndexURL            string        `toml:"index_url"`
	CacheDir            string        `toml:"cache_dir"`
	StoreDir            string        `toml:"store_dir"`
	PrereleaseAllowlist []string      `toml:"prerelease_allowlist"`
	NetworkTimeout      time.Duration `toml:"network_timeout"`
	Concurrency         int           `toml:"concurrency"`
}

// Default returns the configuration used when no TOML file is given and
// no flag overrides a field.
func Default() *Config {
	return &Config{
		IndexURL:       "https://pypi.org/simple/",
		CacheDir:       ".pyresolve/cache",
		StoreDir:       ".pyresolve/store",
		NetworkTimeout: 30 * time.Second,
		Concurrency:    8,
	}
}

// Load reads path as TOML over top of Default, or returns Default
// unchanged if path is empty.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return cfg, nil
}
