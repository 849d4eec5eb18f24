package token

import (
	"os"
	"strings"
	"time"
)

// MinSecretBytes is the shortest HMAC secret accepted.
const MinSecretBytes = 32

// Config controls token signing and validation.
type Config struct {
	// Secret is the HS256 key. At least MinSecretBytes long.
	Secret []byte

	// Issuer is written to and required in the "iss" claim.
	Issuer string

	// TTL is the token lifetime.
	TTL time.Duration

	// ClockSkew extends expiry during verification. Zero means none.
	ClockSkew time.Duration
}

// DefaultConfig returns everything but the secret.
func DefaultConfig() Config {
	return Config{
		Issuer: "tourdesk",
		TTL:    7 * 24 * time.Hour,
	}
}

// Validate reports ErrConfig when any field is out of range.
func (c Config) Validate() error {
	switch {
	case len(c.Secret) < MinSecretBytes:
		return ErrConfig
	case strings.TrimSpace(c.Issuer) == "":
		return ErrConfig
	case c.TTL <= 0:
		return ErrConfig
	case c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute:
		return ErrConfig
	}
	return nil
}

// LoadConfigFromEnv loads token configuration from environment variables.
//
// Required:
//   - TOURDESK_TOKEN_SECRET
//
// Optional (durations are Go duration strings):
//   - TOURDESK_TOKEN_ISSUER
//   - TOURDESK_TOKEN_TTL
//   - TOURDESK_TOKEN_CLOCK_SKEW
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("TOURDESK_TOKEN_ISSUER")); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("TOURDESK_TOKEN_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, ErrConfig
		}
		cfg.TTL = d
	}

	if v := os.Getenv("TOURDESK_TOKEN_CLOCK_SKEW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, ErrConfig
		}
		cfg.ClockSkew = d
	}

	cfg.Secret = []byte(os.Getenv("TOURDESK_TOKEN_SECRET"))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
