// Package audit records security-relevant actions (logins, logouts, catalog writes).
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event is one audit row.
type Event struct {
	Action    string
	ActorID   string
	Target    string
	IP        net.IP
	UserAgent string
	Meta      map[string]any
}

// Recorder stores audit events. Record never fails the caller's request;
// implementations log their own errors.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// PostgresRecorder inserts into <schema>.audit_log.
type PostgresRecorder struct {
	pool  *pgxpool.Pool
	table string
	log   *slog.Logger
}

// NewPostgresRecorder writes into the audit_log table of schema. The table is
// created by identity.PostgresStore.EnsureSchema.
func NewPostgresRecorder(pool *pgxpool.Pool, schema string, log *slog.Logger) *PostgresRecorder {
	if log == nil {
		log = slog.Default()
	}
	return &PostgresRecorder{
		pool:  pool,
		table: pgx.Identifier{schema, "audit_log"}.Sanitize(),
		log:   log,
	}
}

func (p *PostgresRecorder) Record(ctx context.Context, ev Event) {
	action := strings.TrimSpace(ev.Action)
	if p == nil || p.pool == nil || action == "" {
		return
	}

	var ipVal any
	if ev.IP != nil {
		ipVal = ev.IP.String()
	}
	meta := "{}"
	if len(ev.Meta) > 0 {
		if b, err := json.Marshal(ev.Meta); err == nil {
			meta = string(b)
		}
	}

	_, err := p.pool.Exec(ctx, `
		INSERT INTO `+p.table+` (
			action, actor_user_id, target, ip, user_agent, meta
		) VALUES ($1, $2, $3, $4, $5, $6::jsonb)
	`, action, trimOrNil(ev.ActorID), trimOrNil(ev.Target), ipVal, trimOrNil(ev.UserAgent), meta)
	if err != nil {
		p.log.Error("audit.insert.fail", "err", err, "action", action)
	}
}

// LogRecorder writes events to a logger. Used when no database is configured.
type LogRecorder struct {
	Log *slog.Logger
}

func (l LogRecorder) Record(_ context.Context, ev Event) {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"action", ev.Action}
	if ev.ActorID != "" {
		attrs = append(attrs, "actor_id", ev.ActorID)
	}
	if ev.Target != "" {
		attrs = append(attrs, "target", ev.Target)
	}
	if ev.IP != nil {
		attrs = append(attrs, "ip", ev.IP.String())
	}
	if len(ev.Meta) > 0 {
		attrs = append(attrs, "meta", ev.Meta)
	}
	log.Info("audit", attrs...)
}

// MemoryRecorder keeps events in memory; tests read them back with Events.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemoryRecorder) Record(_ context.Context, ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

// Events returns a copy of everything recorded so far.
func (m *MemoryRecorder) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Actions returns the recorded action names in order.
func (m *MemoryRecorder) Actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Action)
	}
	return out
}

func trimOrNil(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
