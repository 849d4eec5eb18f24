package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/httpjson"
)

// Subprotocol is the only websocket subprotocol the gateway speaks.
const Subprotocol = "tourdesk.feed.v1"

// bearerSubprotocolPrefix lets browsers, which cannot set headers on a
// websocket handshake, pass the token as an offered subprotocol.
const bearerSubprotocolPrefix = "bearer."

// Gateway upgrades authenticated requests and streams hub events.
type Gateway struct {
	log *slog.Logger
	hub *Hub
	cfg Config

	// Derived host patterns for websocket.Accept, which rejects cross-origin
	// handshakes unless the origin host matches one of these.
	originPatterns []string

	now func() time.Time
}

// NewGateway constructs a Gateway.
func NewGateway(log *slog.Logger, hub *Hub, cfg Config) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Gateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
		now:            time.Now,
	}
}

// Register mounts the feed behind the gate.
func (g *Gateway) Register(mux *http.ServeMux, gt *gate.Gate) {
	mux.Handle("GET /api/v1/feed", BearerFromSubprotocol(gt.Middleware(g)))
}

// ServeHTTP runs one websocket session until the peer leaves, the heartbeat
// fails or the caller's token expires.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.FromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("feed.reject.origin", "err", err, "origin", r.Header.Get("Origin"))
		httpjson.WriteError(w, http.StatusForbidden, "forbidden", "origin not allowed")
		return
	}

	// The server's read/write timeouts would otherwise cut long-lived sockets.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Info("feed.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	if sp := conn.Subprotocol(); sp != Subprotocol {
		_ = conn.Close(websocket.StatusPolicyViolation, "subprotocol "+Subprotocol+" required")
		return
	}
	conn.SetReadLimit(maxInboundFrameBytes)

	// The feed is push-only; CloseRead handles control frames and cancels ctx
	// when the peer goes away or sends data.
	ctx := conn.CloseRead(r.Context())
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !id.ExpiresAt.IsZero() {
		var expCancel context.CancelFunc
		ctx, expCancel = context.WithDeadline(ctx, id.ExpiresAt)
		defer expCancel()
	}

	client := NewClient(uuid.NewString(), id.UserID, g.cfg.QueueSize)
	// Queue the greeting before joining so it is always first.
	client.Send <- Event{Type: TypeHello, ID: client.ID, At: g.now().UTC()}
	g.hub.Join(client)
	defer g.hub.Leave(client.ID)

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		g.heartbeat(ctx, conn, client, cancel)
	}()

	status, reason := g.writeLoop(ctx, conn, client)
	cancel()
	<-heartbeatDone
	_ = conn.Close(status, reason)
}

func (g *Gateway) writeLoop(ctx context.Context, conn *websocket.Conn, client *Client) (websocket.StatusCode, string) {
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return websocket.StatusPolicyViolation, "token expired"
			}
			return websocket.StatusNormalClosure, "bye"
		case <-client.Done():
			return websocket.StatusGoingAway, "shutting down"
		case ev := <-client.Send:
			if err := writeEvent(ctx, conn, ev, g.cfg.WriteTimeout); err != nil {
				g.log.Info("feed.write.fail", "client_id", client.ID, "close_status", websocket.CloseStatus(err), "err", err)
				return websocket.StatusAbnormalClosure, "write failed"
			}
		}
	}
}

func (g *Gateway) heartbeat(ctx context.Context, conn *websocket.Conn, client *Client, stop context.CancelFunc) {
	t := time.NewTicker(g.cfg.HeartbeatInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
			err := conn.Ping(hbCtx)
			hbCancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			g.log.Info("feed.ping.fail", "client_id", client.ID, "failures", failures, "err", err)
			if failures >= maxPingFailures {
				stop()
				return
			}
		}
	}
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// BearerFromSubprotocol copies a "bearer.<token>" subprotocol offer into the
// Authorization header when no header is present.
func BearerFromSubprotocol(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			for _, v := range r.Header.Values("Sec-WebSocket-Protocol") {
				for _, p := range strings.Split(v, ",") {
					p = strings.TrimSpace(p)
					if tok, ok := strings.CutPrefix(p, bearerSubprotocolPrefix); ok && tok != "" {
						r = r.Clone(r.Context())
						r.Header.Set("Authorization", "Bearer "+tok)
						next.ServeHTTP(w, r)
						return
					}
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return nil
	}
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(origin, a) {
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func originPatterns(allowed []string) []string {
	var out []string
	for _, a := range allowed {
		if strings.TrimSpace(a) == "*" {
			return []string{"*"}
		}
		if h := originHost(a); h != "" && !slices.Contains(out, h) {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return out
}
