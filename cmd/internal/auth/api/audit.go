package api

import (
	"context"
	"net"
	"time"

	"tourdesk/cmd/internal/audit"
)

func (h *Handler) auditLoginFailed(ctx context.Context, userID string, ip net.IP, ua, email, reason string) {
	h.audit.Record(ctx, audit.Event{
		Action: "auth.login.failed", ActorID: userID, IP: ip, UserAgent: ua,
		Meta: map[string]any{"email": email, "reason": reason},
	})
}

func (h *Handler) auditLoginSuccess(ctx context.Context, userID string, ip net.IP, ua, email string) {
	h.audit.Record(ctx, audit.Event{
		Action: "auth.login.success", ActorID: userID, IP: ip, UserAgent: ua,
		Meta: map[string]any{"email": email},
	})
}

func (h *Handler) auditLoginRateLimited(ctx context.Context, ip net.IP, ua, email string, retryAfter time.Duration) {
	h.audit.Record(ctx, audit.Event{
		Action: "auth.login.rate_limited", IP: ip, UserAgent: ua,
		Meta: map[string]any{"email": email, "retry_after_s": int64(retryAfter.Seconds())},
	})
}

func (h *Handler) auditLogout(ctx context.Context, userID, tokenID string, ip net.IP, ua string) {
	h.audit.Record(ctx, audit.Event{
		Action: "auth.logout", ActorID: userID, Target: tokenID, IP: ip, UserAgent: ua,
	})
}
