// Package app wires the tourdesk server runtime: configuration, logging,
// metrics, stores, HTTP routes and the activity feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/access"
	"tourdesk/cmd/internal/audit"
	"tourdesk/cmd/internal/auth/api"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/auth/token"
	"tourdesk/cmd/internal/catalog"
	"tourdesk/cmd/internal/feed"
	"tourdesk/cmd/security/password"
)

// App is the assembled server.
type App struct {
	cfg Config
	log Logger

	pool    *pgxpool.Pool
	metrics *Metrics
	hub     *feed.Hub
	handler http.Handler
}

// stores groups the persistence backends chosen at startup.
type stores struct {
	identity identity.Store
	catalog  catalog.Store
	audit    audit.Recorder
}

// New builds the App. Token, password, auth and feed settings are read from
// the environment by their own packages. Without TOURDESK_DATABASE_URL the
// server runs on in-memory stores.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, err
	}
	if err := ValidateSecurityConfig(cfg, hasher); err != nil {
		return nil, err
	}

	tokCfg, err := token.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(tokCfg)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: log}
	if cfg.MetricsEnabled {
		a.metrics = NewMetrics()
	}

	st, err := a.openStores(ctx)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok && a.pool != nil {
			a.pool.Close()
		}
	}()

	creds, err := identity.NewCredentials(st.identity, hasher)
	if err != nil {
		return nil, err
	}
	if err := ensureBootstrapAdmin(ctx, log, st.identity, creds, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}

	gateOpts := []gate.Option{gate.WithLogger(log)}
	if a.metrics != nil {
		gateOpts = append(gateOpts, gate.WithObserver(a.metrics.ObserveGate))
	}
	g := gate.New(tokens, api.NewResolver(st.identity), gateOpts...)

	authCfg := api.LoadConfigFromEnv()
	authH, err := api.NewHandler(log, authCfg, st.identity, creds, tokens, g, api.WithAuditRecorder(st.audit))
	if err != nil {
		return nil, err
	}

	var onCount func(int)
	if a.metrics != nil {
		onCount = a.metrics.SetFeedClients
	}
	a.hub = feed.NewHub(log, onCount)
	gw := feed.NewGateway(log, a.hub, feed.LoadConfigFromEnv(cfg.CORSAllowedOrigins))

	catH, err := catalog.NewHandler(log, st.catalog, g,
		catalog.WithPublisher(a.hub),
		catalog.WithAuditRecorder(st.audit),
		catalog.WithMaxBodyBytes(authCfg.MaxBodyBytes),
		catalog.WithTrustProxy(authCfg.TrustProxy),
	)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, routes{
		log:     log,
		cfg:     cfg,
		pool:    a.pool,
		metrics: a.metrics,
		apis: []registrar{
			authH,
			access.NewHandler(log, st.identity, g),
			catH,
			registerFunc(func(mux *http.ServeMux) { gw.Register(mux, g) }),
		},
	})
	a.handler = WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log, a.metrics)

	ok = true
	return a, nil
}

type registerFunc func(mux *http.ServeMux)

func (f registerFunc) Register(mux *http.ServeMux) { f(mux) }

func (a *App) openStores(ctx context.Context) (stores, error) {
	if a.cfg.DatabaseURL == "" {
		a.log.Info("db.disabled.inmemory_store")
		return stores{
			identity: identity.NewMemoryStore(),
			catalog:  catalog.NewMemoryStore(),
			audit:    audit.LogRecorder{Log: a.log},
		}, nil
	}

	pool, err := NewDBPool(ctx, a.cfg)
	if err != nil {
		return stores{}, fmt.Errorf("db: %w", err)
	}
	a.pool = pool

	ids, err := identity.NewPostgresStore(pool, identity.WithSchema(a.cfg.DBSchema))
	if err != nil {
		return stores{}, err
	}
	if err := ids.EnsureSchema(ctx); err != nil {
		return stores{}, err
	}
	cat, err := catalog.NewPostgresStore(pool, a.cfg.DBSchema)
	if err != nil {
		return stores{}, err
	}
	if err := cat.EnsureSchema(ctx); err != nil {
		return stores{}, err
	}

	a.log.Info("db.enabled.postgres_store", "schema", a.cfg.DBSchema)
	return stores{
		identity: ids,
		catalog:  cat,
		audit:    audit.NewPostgresRecorder(pool, a.cfg.DBSchema, a.log),
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Run serves until ctx is cancelled or the listener fails, then drains.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	base := runtimeBaseURL(a.cfg.HTTPAddr)
	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"base_url", base,
		"feed_url", wsBaseURL(base)+"/api/v1/feed",
		"db_enabled", a.pool != nil,
		"metrics_enabled", a.metrics != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.Close()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	// Hijacked websockets are not tracked by Shutdown.
	a.hub.CloseAll()
	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
	}
	a.Close()
	a.log.Info("server.stopped")
	return err
}

// Close releases the database pool, if any.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
