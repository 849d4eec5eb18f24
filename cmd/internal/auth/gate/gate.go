package gate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tourdesk/cmd/internal/auth/token"
	"tourdesk/cmd/internal/httpjson"
)

// Verifier checks a raw token as of now.
type Verifier interface {
	Verify(tok string, now time.Time) (token.Claims, error)
}

// IdentityResolver turns verified claims into a request identity.
// It returns ErrUnknownSubject for missing or disabled users.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, claims token.Claims) (Identity, error)
}

// Decision outcomes reported to the observer.
const (
	ResultAllowed   = "allowed"
	ResultForbidden = "forbidden"
	ResultError     = "error"
)

// Gate authenticates requests. Construct with New.
type Gate struct {
	verifier Verifier
	resolver IdentityResolver
	now      func() time.Time
	observe  func(result string)
	log      *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides time.Now for verification.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithObserver registers a callback invoked once per decision with a
// Result* constant or a Reason* constant.
func WithObserver(fn func(result string)) Option {
	return func(g *Gate) { g.observe = fn }
}

// WithLogger sets the logger used for rejection and lookup failures.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) {
		if log != nil {
			g.log = log
		}
	}
}

// New builds a gate. A nil resolver trusts the token alone: the identity
// carries the roles snapshot and no permissions.
func New(v Verifier, r IdentityResolver, opts ...Option) *Gate {
	g := &Gate{
		verifier: v,
		resolver: r,
		now:      time.Now,
		observe:  func(string) {},
		log:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.observe == nil {
		g.observe = func(string) {}
	}
	return g
}

// Authorize authenticates r and returns a copy whose context carries the Identity.
//
// Authentication failures are *AuthError values (errors.Is ErrUnauthenticated).
// Any other error means the identity lookup itself failed.
func (g *Gate) Authorize(r *http.Request) (*http.Request, error) {
	raw := BearerToken(r)
	if raw == "" {
		return nil, &AuthError{Reason: ReasonMissingToken}
	}

	claims, err := g.verifier.Verify(raw, g.now())
	if err != nil {
		if errors.Is(err, token.ErrExpiredToken) {
			return nil, &AuthError{Reason: ReasonExpiredToken, Err: err}
		}
		return nil, &AuthError{Reason: ReasonInvalidToken, Err: err}
	}

	id := Identity{
		UserID:    claims.UserID,
		Roles:     claims.Roles,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt,
	}
	if g.resolver != nil {
		resolved, err := g.resolver.ResolveIdentity(r.Context(), claims)
		if err != nil {
			if errors.Is(err, ErrUnknownSubject) {
				return nil, &AuthError{Reason: ReasonUnknownSubject, Err: err}
			}
			return nil, err
		}
		resolved.TokenID = claims.ID
		resolved.ExpiresAt = claims.ExpiresAt
		id = resolved
	}

	return r.WithContext(WithIdentity(r.Context(), &id)), nil
}

// Middleware rejects unauthenticated requests with 401 before next runs.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed, err := g.Authorize(r)
		if err != nil {
			if reason := Reason(err); reason != "" {
				g.observe(reason)
				g.log.Debug("auth.gate.reject", "reason", reason, "path", r.URL.Path)
				writeUnauthenticated(w, reason)
				return
			}
			g.observe(ResultError)
			g.log.Error("auth.gate.lookup.fail", "err", err, "path", r.URL.Path)
			httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
			return
		}
		g.observe(ResultAllowed)
		next.ServeHTTP(w, authed)
	})
}

// RequirePermission wraps next so it only runs when the authenticated identity
// holds every listed permission. It must sit behind Middleware.
func (g *Gate) RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok {
				writeUnauthenticated(w, ReasonMissingToken)
				return
			}
			if err := CheckPermissions(id, perms...); err != nil {
				var pe *PermissionError
				errors.As(err, &pe)
				g.observe(ResultForbidden)
				g.log.Info("auth.gate.forbidden", "user_id", id.UserID, "permission", pe.Permission, "path", r.URL.Path)
				httpjson.WriteError(w, http.StatusForbidden, "forbidden", "missing permission "+pe.Permission)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect is Middleware followed by RequirePermission(perms...).
func (g *Gate) Protect(next http.Handler, perms ...string) http.Handler {
	if len(perms) == 0 {
		return g.Middleware(next)
	}
	return g.Middleware(g.RequirePermission(perms...)(next))
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
// The scheme is matched case-insensitively.
func BearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

var reasonMessages = map[string]string{
	ReasonMissingToken:   "missing bearer token",
	ReasonInvalidToken:   "invalid token",
	ReasonExpiredToken:   "token expired",
	ReasonUnknownSubject: "unknown or disabled user",
}

func writeUnauthenticated(w http.ResponseWriter, reason string) {
	challenge := `Bearer realm="tourdesk"`
	if reason != ReasonMissingToken {
		challenge += `, error="invalid_token"`
	}
	w.Header().Set("WWW-Authenticate", challenge)
	httpjson.WriteError(w, http.StatusUnauthorized, "unauthenticated", reasonMessages[reason])
}
