package app

import (
	"fmt"
	"time"

	"tourdesk/cmd/internal/envcfg"
)

// Config is the server runtime configuration. Every field is read from a
// TOURDESK_* environment variable; a config file, when given, only fills
// variables that are not already set.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string // "json" or "pretty"

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	DatabaseURL string
	DBSchema    string
	DBMaxConns  int32
	DBMinConns  int32

	// ReadinessRequireDB makes /readyz fail unless Postgres is configured and reachable.
	ReadinessRequireDB bool

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int

	MetricsEnabled bool

	// BootstrapAdminEmail, when set, creates an admin account at startup if
	// no user with that email exists yet.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

// LoadConfig reads Config from the environment with defaults.
func LoadConfig() Config {
	return Config{
		HTTPAddr:  envcfg.String("TOURDESK_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  envcfg.String("TOURDESK_LOG_LEVEL", "info"),
		LogFormat: envcfg.String("TOURDESK_LOG_FORMAT", "json"),

		ReadHeaderTimeout: envcfg.Duration("TOURDESK_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       envcfg.Duration("TOURDESK_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      envcfg.Duration("TOURDESK_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       envcfg.Duration("TOURDESK_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   envcfg.Duration("TOURDESK_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxHeaderBytes:    envcfg.Int("TOURDESK_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL: envcfg.String("TOURDESK_DATABASE_URL", ""),
		DBSchema:    envcfg.String("TOURDESK_DB_SCHEMA", "tourdesk"),
		DBMaxConns:  envcfg.Int32("TOURDESK_DB_MAX_CONNS", 10),
		DBMinConns:  envcfg.Int32("TOURDESK_DB_MIN_CONNS", 0),

		ReadinessRequireDB: envcfg.Bool("TOURDESK_READINESS_REQUIRE_DB", false),

		CORSAllowedOrigins:   envcfg.CSV("TOURDESK_CORS_ALLOWED_ORIGINS", nil),
		CORSAllowCredentials: envcfg.Bool("TOURDESK_CORS_ALLOW_CREDENTIALS", false),
		CORSMaxAgeSeconds:    envcfg.Int("TOURDESK_CORS_MAX_AGE_SECONDS", 600),

		MetricsEnabled: envcfg.Bool("TOURDESK_METRICS_ENABLED", true),

		BootstrapAdminEmail:    envcfg.String("TOURDESK_BOOTSTRAP_ADMIN_EMAIL", ""),
		BootstrapAdminPassword: envcfg.String("TOURDESK_BOOTSTRAP_ADMIN_PASSWORD", ""),
	}
}

// LoadConfigWithFile applies path (YAML or TOML) underneath the environment
// and then loads Config. An empty path falls back to TOURDESK_CONFIG_FILE.
// It returns the keys the file supplied.
func LoadConfigWithFile(path string) (Config, []string, error) {
	if path == "" {
		path = envcfg.String("TOURDESK_CONFIG_FILE", "")
	}
	var applied []string
	if path != "" {
		var err error
		applied, err = envcfg.ApplyFile(path)
		if err != nil {
			return Config{}, nil, fmt.Errorf("config file: %w", err)
		}
	}
	return LoadConfig(), applied, nil
}
