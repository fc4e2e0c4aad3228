package ratelimit

import (
	"net/http"
	"time"
)

// EndpointConfig represents rate limiting configuration for a specific endpoint.
type EndpointConfig struct {
	Path   string        `mapstructure:"path"`   // exact path, or a prefix when it ends in "/"
	Method string        `mapstructure:"method"` // HTTP method
	Limit  int           `mapstructure:"limit"`  // requests per window
	Window time.Duration `mapstructure:"window"`
	Burst  int           `mapstructure:"burst"` // defaults to Limit if 0
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled         bool             `mapstructure:"enabled"`
	DefaultLimit    int              `mapstructure:"default_limit" validate:"gte=0"`
	DefaultWindow   time.Duration    `mapstructure:"default_window"`
	CleanupInterval time.Duration    `mapstructure:"cleanup_interval"`
	IdleTTL         time.Duration    `mapstructure:"idle_ttl"`
	Whitelist       []string         `mapstructure:"whitelist"`
	Blacklist       []string         `mapstructure:"blacklist"`
	EndpointConfigs []EndpointConfig `mapstructure:"endpoints"`
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		DefaultLimit:    1000,
		DefaultWindow:   time.Minute,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Document extraction is the most expensive call.
		{Path: "/extractions", Method: http.MethodPost, Limit: 30, Window: time.Minute, Burst: 5},

		// Vocabulary changes invalidate every match record.
		{Path: "/taxonomy/", Method: http.MethodPost, Limit: 60, Window: time.Minute, Burst: 10},
		{Path: "/invalidate", Method: http.MethodPost, Limit: 20, Window: time.Minute, Burst: 5},

		// Writes.
		{Path: "/candidates/", Method: http.MethodPut, Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/candidates/", Method: http.MethodDelete, Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: http.MethodPut, Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: http.MethodDelete, Limit: 100, Window: time.Minute, Burst: 10},

		// Reads use the default limit; /health and /metrics are unlimited.
	}
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, ip := range list {
		if ip != "" {
			set[ip] = true
		}
	}
	return set
}
