package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/audit"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/auth/token"
	"tourdesk/cmd/internal/httpjson"
)

// Issuer mints session tokens.
type Issuer interface {
	Issue(sub token.Subject, now time.Time) (string, time.Time, error)
}

// Handler wires HTTP auth endpoints to the identity store and token issuer.
type Handler struct {
	log *slog.Logger
	cfg Config

	store   identity.Store
	creds   *identity.Credentials
	tokens  Issuer
	gate    *gate.Gate
	limiter *loginLimiter
	audit   audit.Recorder
	now     func() time.Time
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithAuditRecorder overrides the default log-based audit recorder.
func WithAuditRecorder(rec audit.Recorder) HandlerOption {
	return func(h *Handler) {
		if rec != nil {
			h.audit = rec
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, store identity.Store, creds *identity.Credentials, tokens Issuer, g *gate.Gate, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	switch {
	case store == nil:
		return nil, errors.New("auth: nil identity store")
	case creds == nil:
		return nil, errors.New("auth: nil credentials")
	case tokens == nil:
		return nil, errors.New("auth: nil token issuer")
	case g == nil:
		return nil, errors.New("auth: nil gate")
	}

	h := &Handler{
		log:     log,
		cfg:     cfg,
		store:   store,
		creds:   creds,
		tokens:  tokens,
		gate:    g,
		limiter: newLoginLimiter(cfg.LoginPerMinute, cfg.LoginBurst, cfg.LoginLimiterIdle),
		audit:   audit.LogRecorder{Log: log},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /api/v1/auth/login", h.handleLogin)
	mux.Handle("GET /api/v1/auth/me", h.gate.Middleware(http.HandlerFunc(h.handleMe)))
	mux.Handle("POST /api/v1/auth/logout", h.gate.Middleware(http.HandlerFunc(h.handleLogout)))
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpjson.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := identity.NormalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := httpjson.ClientIP(r, h.cfg.TrustProxy)
	ua := strings.TrimSpace(r.UserAgent())

	ipKey := "unknown"
	if ip != nil {
		ipKey = ip.String()
	}
	if ok, retryAfter := h.limiter.allow(ipKey, now); !ok {
		h.log.Warn("auth.login.rate_limited", "ip", ipKey)
		h.auditLoginRateLimited(ctx, ip, ua, email, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	u, err := h.creds.Authenticate(ctx, email, req.Password)
	if err != nil {
		if identity.IsInvalidCredentials(err) {
			h.log.Info("auth.login.fail", "email", email)
			h.auditLoginFailed(ctx, "", ip, ua, email, "invalid_credentials")
			httpjson.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
			return
		}
		h.log.Error("auth.login.lookup.fail", "err", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	p, err := identity.ResolvePrincipal(ctx, h.store, u.ID)
	if err != nil {
		h.log.Error("auth.login.principal.fail", "err", err, "user_id", u.ID)
		httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	tok, exp, err := h.tokens.Issue(token.Subject{UserID: u.ID, Roles: u.Roles}, now)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	h.log.Info("auth.login.success", "user_id", u.ID)
	h.auditLoginSuccess(ctx, u.ID, ip, ua, email)

	httpjson.WriteJSON(w, http.StatusOK, loginResponse{
		Token:     tok,
		ExpiresAt: exp,
		User:      toUserResponse(p),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.FromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, meResponse{User: identityToUserResponse(id)})
}

// handleLogout only records the action; tokens are stateless and stay valid until expiry.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	id, ok := gate.FromContext(r.Context())
	if !ok {
		httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
		return
	}
	h.log.Info("auth.logout", "user_id", id.UserID)
	h.auditLogout(r.Context(), id.UserID, id.TokenID, httpjson.ClientIP(r, h.cfg.TrustProxy), strings.TrimSpace(r.UserAgent()))
	w.WriteHeader(http.StatusNoContent)
}
