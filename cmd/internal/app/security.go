package app

import (
	"errors"
	"fmt"
	"slices"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/security/password"
)

// ValidateSecurityConfig fails startup on settings that would weaken the
// server: wildcard CORS with credentials, a bootstrap admin without a
// policy-compliant password, or an inconsistent pool.
func ValidateSecurityConfig(cfg Config, hasher password.Hasher) error {
	var errs []error

	if cfg.CORSAllowCredentials && slices.Contains(cfg.CORSAllowedOrigins, "*") {
		errs = append(errs, errors.New("security policy: TOURDESK_CORS_ALLOW_CREDENTIALS=true cannot be combined with origin \"*\""))
	}

	if cfg.BootstrapAdminEmail != "" {
		if !identity.LooksLikeEmail(identity.NormalizeEmail(cfg.BootstrapAdminEmail)) {
			errs = append(errs, errors.New("security policy: TOURDESK_BOOTSTRAP_ADMIN_EMAIL is not an email address"))
		}
		if err := hasher.Validate(cfg.BootstrapAdminPassword); err != nil {
			errs = append(errs, fmt.Errorf("security policy: TOURDESK_BOOTSTRAP_ADMIN_PASSWORD: %w", err))
		}
	}

	if cfg.DBMaxConns > 0 && cfg.DBMinConns > cfg.DBMaxConns {
		errs = append(errs, fmt.Errorf("db pool: min conns (%d) > max conns (%d)", cfg.DBMinConns, cfg.DBMaxConns))
	}

	return errors.Join(errs...)
}
