package api

import (
	"context"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/auth/token"
)

// Resolver adapts an identity.Store to gate.IdentityResolver. Roles and
// permissions come from the store, not from the token's roles snapshot, so
// role changes apply to existing tokens on their next request.
type Resolver struct {
	store identity.Store
}

var _ gate.IdentityResolver = (*Resolver)(nil)

// NewResolver returns a resolver backed by store.
func NewResolver(store identity.Store) *Resolver {
	return &Resolver{store: store}
}

func (r *Resolver) ResolveIdentity(ctx context.Context, claims token.Claims) (gate.Identity, error) {
	p, err := identity.ResolvePrincipal(ctx, r.store, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			return gate.Identity{}, gate.ErrUnknownSubject
		}
		return gate.Identity{}, err
	}
	if p.User.Disabled {
		return gate.Identity{}, gate.ErrUnknownSubject
	}

	u := toUserResponse(p)
	return gate.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Roles:       u.Roles,
		Permissions: u.Permissions,
	}, nil
}
