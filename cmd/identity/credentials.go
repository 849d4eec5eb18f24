package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tourdesk/cmd/security/password"
)

// Credentials checks email/password pairs against a Store.
type Credentials struct {
	store     Store
	hasher    password.Hasher
	dummyHash string
}

// NewCredentials precomputes a dummy hash so that unknown emails cost the same
// as a wrong password.
func NewCredentials(store Store, hasher password.Hasher) (*Credentials, error) {
	if store == nil {
		return nil, fmt.Errorf("identity: nil store")
	}
	dummy, err := hasher.Hash(strings.Repeat("x", max(hasher.MinLength, 1)))
	if err != nil {
		return nil, fmt.Errorf("identity: dummy hash: %w", err)
	}
	return &Credentials{store: store, hasher: hasher, dummyHash: dummy}, nil
}

// Authenticate returns the user owning email when password matches.
// Unknown email, wrong password and disabled accounts all yield ErrInvalidCredentials.
func (c *Credentials) Authenticate(ctx context.Context, email, pw string) (User, error) {
	const op = "identity.Authenticate"

	ua, err := c.store.GetUserAuthByEmail(ctx, email)
	if err != nil {
		if !IsNotFound(err) {
			return User{}, err
		}
		_, _ = c.hasher.Verify(c.dummyHash, pw)
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}

	ok, err := c.hasher.Verify(ua.PasswordHash, pw)
	if err != nil || !ok || ua.User.Disabled {
		return User{}, OpError{Op: op, Kind: ErrInvalidCredentials}
	}
	return ua.User, nil
}

// CreateUserInput carries a plaintext password; CreateUser hashes it.
type CreateUserInput struct {
	Email       string
	DisplayName string
	Password    string
	Roles       []string
	Now         time.Time
}

// CreateUser validates the password policy, hashes it and stores the user.
func (c *Credentials) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	hash, err := c.hasher.Hash(in.Password)
	if err != nil {
		return User{}, invalid(op, err.Error())
	}
	return c.store.CreateUser(ctx, NewUser{
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PasswordHash: hash,
		Roles:        in.Roles,
		Now:          in.Now,
	})
}
