package config

import (
	"fmt"
	"time"
)

// MinSecretLength is the shortest HS256 secret accepted.
const MinSecretLength = 32

// AuthConfig holds configuration for bearer token verification.
type AuthConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Secret  string        `mapstructure:"secret"`
	Leeway  time.Duration `mapstructure:"leeway"`
}

// normalize validates the configuration.
func (c *AuthConfig) normalize() error {
	if !c.Enabled {
		return nil
	}
	if c.Secret == "" {
		return fmt.Errorf("config error: auth.secret is required when auth is enabled")
	}
	if len(c.Secret) < MinSecretLength {
		return fmt.Errorf("config error: auth.secret must be at least %d bytes, got %d", MinSecretLength, len(c.Secret))
	}
	if c.Leeway < 0 {
		return fmt.Errorf("config error: auth.leeway must not be negative, got %s", c.Leeway)
	}
	return nil
}
