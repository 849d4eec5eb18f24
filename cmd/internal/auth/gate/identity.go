package gate

import (
	"context"
	"slices"
	"time"
)

// Identity is the authenticated caller for the lifetime of one request.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
	Permissions []string

	TokenID   string
	ExpiresAt time.Time
}

// Has reports whether the identity holds perm.
func (id *Identity) Has(perm string) bool {
	if id == nil {
		return false
	}
	return slices.Contains(id.Permissions, perm)
}

// CheckPermissions returns a *PermissionError (errors.Is ErrForbidden) for
// the first of perms that id lacks.
func CheckPermissions(id *Identity, perms ...string) error {
	for _, p := range perms {
		if !id.Has(p) {
			return &PermissionError{Permission: p}
		}
	}
	return nil
}

type identityKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity attached by the gate, if any.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
