// Package config decodes the process's viper-sourced configuration into
// a typed Config, one entry per endpoint plus the ambient knobs (bind
// address, optional remote backend DSN, auth, rate limit, cache cleanup,
// logging).
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Endpoint binds a chain's path-segment name to its upstream JSON-RPC
// URL, as consumed from the external collaborator's parsed config.
type Endpoint struct {
	Name        string `mapstructure:"name"`
	UpstreamURL string `mapstructure:"upstream_url"`
}

type Config struct {
	Bind      string     `mapstructure:"bind"`
	Port      string     `mapstructure:"port"`
	Endpoints []Endpoint `mapstructure:"endpoints"`

	// DatabaseDSN selects the pooled PostgreSQL backend when present;
	// its absence selects the in-memory backend.
	DatabaseDSN string `mapstructure:"database_dsn"`

	AuthToken         string  `mapstructure:"auth_token"`
	MaxCacheSize      string  `mapstructure:"max_cache_size_bytes"`
	CleanupSlackRatio float64 `mapstructure:"cleanup_slack_ratio"`
	RateLimit         float64 `mapstructure:"rate_limit"`

	LogFormat string `mapstructure:"log_format"`
	LogLevel  string `mapstructure:"log_level"`
}

// Validate checks the invariants main.go relies on before it starts
// building chain state.
func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("config: at least one endpoint is required")
	}
	seen := make(map[string]struct{}, len(c.Endpoints))
	for _, e := range c.Endpoints {
		if e.Name == "" {
			return fmt.Errorf("config: endpoint is missing a name")
		}
		if e.UpstreamURL == "" {
			return fmt.Errorf("config: endpoint %q is missing an upstream_url", e.Name)
		}
		key := strings.ToUpper(e.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: duplicate endpoint name %q", e.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (c *Config) GetMaxCacheSizeBytes() (int64, error) {
	return ParseBytes(c.MaxCacheSize)
}

func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	s = strings.ToUpper(s)

	var multiplier int64 = 1
	if strings.HasSuffix(s, "K") || strings.HasSuffix(s, "KB") {
		multiplier = 1024
		s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "K")
	} else if strings.HasSuffix(s, "M") || strings.HasSuffix(s, "MB") {
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "M")
	} else if strings.HasSuffix(s, "G") || strings.HasSuffix(s, "GB") {
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(strings.TrimSuffix(s, "B"), "G")
	}

	val, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	return val * multiplier, nil
}
