package api

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Defaults(t *testing.T) {
	cfg := LoadConfigFromEnv()
	if cfg.TrustProxy {
		t.Fatalf("trust proxy must default to false")
	}
	if cfg.LoginPerMinute != 10 || cfg.LoginBurst != 5 {
		t.Fatalf("unexpected limiter defaults: %+v", cfg)
	}
	if cfg.MaxBodyBytes != 64<<10 {
		t.Fatalf("max body = %d", cfg.MaxBodyBytes)
	}
}

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("TOURDESK_AUTH_TRUST_PROXY", "true")
	t.Setenv("TOURDESK_AUTH_LOGIN_PER_MINUTE", "30")
	t.Setenv("TOURDESK_AUTH_LOGIN_BURST", "0") // invalid, keeps default
	t.Setenv("TOURDESK_AUTH_LOGIN_LIMITER_IDLE", "1h")

	cfg := LoadConfigFromEnv()
	if !cfg.TrustProxy || cfg.LoginPerMinute != 30 || cfg.LoginBurst != 5 || cfg.LoginLimiterIdle != time.Hour {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
