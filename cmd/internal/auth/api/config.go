package api

import (
	"time"

	"tourdesk/cmd/internal/envcfg"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// Per-IP login token bucket: LoginPerMinute refills, LoginBurst capacity.
	LoginPerMinute int
	LoginBurst     int
	// LoginLimiterIdle evicts buckets for addresses not seen for this long.
	LoginLimiterIdle time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	return Config{
		TrustProxy:       envcfg.Bool("TOURDESK_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:     envcfg.Int64("TOURDESK_AUTH_MAX_BODY_BYTES", 64<<10),
		LoginPerMinute:   envcfg.Int("TOURDESK_AUTH_LOGIN_PER_MINUTE", 10),
		LoginBurst:       envcfg.Int("TOURDESK_AUTH_LOGIN_BURST", 5),
		LoginLimiterIdle: envcfg.Duration("TOURDESK_AUTH_LOGIN_LIMITER_IDLE", 15*time.Minute),
	}
}
