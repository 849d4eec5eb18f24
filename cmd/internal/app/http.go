package app

import (
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// registrar is anything that mounts its own routes.
type registrar interface {
	Register(mux *http.ServeMux)
}

// routes collects what registerHTTP mounts.
type routes struct {
	log     Logger
	cfg     Config
	pool    *pgxpool.Pool
	metrics *Metrics
	apis    []registrar
}

// registerHTTP binds the operational endpoints (ungated) and every API
// package's routes. Gating is decided by each package at registration.
func registerHTTP(mux *http.ServeMux, rt routes) {
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.ReadinessRequireDB && rt.pool == nil {
			http.Error(w, "db not configured", http.StatusServiceUnavailable)
			return
		}
		if rt.pool != nil {
			if err := PingDB(r.Context(), rt.pool, 2*time.Second); err != nil {
				rt.log.Info("readyz.db.not_ready", "err", err)
				http.Error(w, "db not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready\n"))
	})

	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	for _, api := range rt.apis {
		if api != nil {
			api.Register(mux)
		}
	}
}
