// Package config resolves the angelshark daemon's settings from,
// in increasing priority, built-in defaults, an optional YAML overlay
// file, and environment variables.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	EnvAddr          = "ANGELSHARKD_ADDR"
	EnvOrigin        = "ANGELSHARKD_ORIGIN"
	EnvLogins        = "ANGELSHARKD_LOGINS"
	EnvDebug         = "ANGELSHARKD_DEBUG"
	EnvExtSearchACMs = "ANGELSHARKD_EXT_SEARCH_ACMS"
	EnvConfigFile    = "ANGELSHARKD_CONFIG"

	defaultBindAddr   = "127.0.0.1:8080"
	defaultLoginsPath = "./asa.cfg"
	defaultAuditDB    = "./angelshark-audit.db"
)

// Config holds everything the daemon needs to start. The CLI does not use
// it; it takes its login file from a flag.
type Config struct {
	BindAddr        string
	Origin          string
	LoginsPath      string
	Debug           bool
	ExtSearchACMs   string
	RateLimitPerSec float64
	AuditDBPath     string
}

// fileConfig mirrors Config's overlay-able fields as they appear in the
// optional YAML file named by EnvConfigFile.
type fileConfig struct {
	BindAddr        string  `yaml:"bind_addr"`
	Origin          string  `yaml:"origin"`
	LoginsPath      string  `yaml:"logins_path"`
	Debug           bool    `yaml:"debug"`
	ExtSearchACMs   string  `yaml:"ext_search_acms"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	AuditDBPath     string  `yaml:"audit_db_path"`
}

// Load resolves a Config from defaults, an optional YAML file (path taken
// from EnvConfigFile, if set), and environment variables, in that priority
// order (later wins). A missing YAML file is not an error; a malformed one
// is.
func Load() (*Config, error) {
	cfg := &Config{
		BindAddr:        defaultBindAddr,
		LoginsPath:      defaultLoginsPath,
		RateLimitPerSec: 5,
		AuditDBPath:     defaultAuditDB,
	}

	if path := os.Getenv(EnvConfigFile); path != "" {
		file, err := loadFileConfig(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		applyFileConfig(cfg, file)
	}

	applyEnv(cfg)

	if _, _, err := net.SplitHostPort(cfg.BindAddr); err != nil {
		return nil, fmt.Errorf("failed to parse bind address %q: %w", cfg.BindAddr, err)
	}

	return cfg, nil
}

func loadFileConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &fileConfig{}, nil
		}
		return nil, err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, err
	}
	return &fc, nil
}

func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.BindAddr != "" {
		cfg.BindAddr = fc.BindAddr
	}
	if fc.Origin != "" {
		cfg.Origin = fc.Origin
	}
	if fc.LoginsPath != "" {
		cfg.LoginsPath = fc.LoginsPath
	}
	if fc.Debug {
		cfg.Debug = true
	}
	if fc.ExtSearchACMs != "" {
		cfg.ExtSearchACMs = fc.ExtSearchACMs
	}
	if fc.RateLimitPerSec != 0 {
		cfg.RateLimitPerSec = fc.RateLimitPerSec
	}
	if fc.AuditDBPath != "" {
		cfg.AuditDBPath = fc.AuditDBPath
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.BindAddr = v
	}
	if v := os.Getenv(EnvOrigin); v != "" {
		cfg.Origin = v
	}
	if v := os.Getenv(EnvLogins); v != "" {
		cfg.LoginsPath = v
	}
	if _, ok := os.LookupEnv(EnvDebug); ok {
		cfg.Debug = true
	}
	if v := os.Getenv(EnvExtSearchACMs); v != "" {
		cfg.ExtSearchACMs = v
	}
	if v := os.Getenv("ANGELSHARKD_RATE_LIMIT_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitPerSec = f
		}
	}
}

// PermissiveCORS reports whether the daemon should reflect any request
// origin: debug mode and an unset or wildcard origin both count as
// permissive.
func (c *Config) PermissiveCORS() bool {
	return c.Debug || c.Origin == "*" || c.Origin == ""
}
