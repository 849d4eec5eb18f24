package identity

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"tourdesk/cmd/identity/ids"
)

// MemoryStore is an in-process Store used by tests and single-node dev runs.
// It is seeded with BuiltinRoles.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]UserAuth // by id
	byEmail map[string]string   // email_norm -> id
	roles   map[string]Role
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store with the built-in roles installed.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		users:   make(map[string]UserAuth),
		byEmail: make(map[string]string),
		roles:   make(map[string]Role),
	}
	for _, r := range BuiltinRoles() {
		s.roles[r.ID] = r
	}
	return s
}

func (s *MemoryStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range u.Roles {
		if _, ok := s.roles[r]; !ok {
			return User{}, NotFoundError{Op: op, Resource: "role " + r}
		}
	}
	if _, taken := s.byEmail[u.EmailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}

	s.users[u.ID] = UserAuth{User: u, PasswordHash: in.PasswordHash}
	s.byEmail[u.EmailNorm] = u.ID
	return cloneUser(u), nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ua, ok := s.users[id]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return cloneUser(ua.User), nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByEmail", Resource: "user"}
	}
	ua := s.users[id]
	ua.User = cloneUser(ua.User)
	return ua, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]User, 0, len(s.users))
	for _, ua := range s.users {
		out = append(out, cloneUser(ua.User))
	}
	s.mu.RUnlock()

	// ULIDs sort by creation time.
	slices.SortFunc(out, func(a, b User) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

// SetDisabled flips the disabled flag. Disabled users can no longer log in or pass the gate.
func (s *MemoryStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.users[id]
	if !ok {
		return NotFoundError{Op: "identity.SetDisabled", Resource: "user"}
	}
	ua.User.Disabled = disabled
	s.users[id] = ua
	return nil
}

func (s *MemoryStore) ListRoles(ctx context.Context) ([]Role, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Role) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) GetRole(ctx context.Context, id string) (Role, error) {
	if err := ctx.Err(); err != nil {
		return Role{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return Role{}, NotFoundError{Op: "identity.GetRole", Resource: "role"}
	}
	return cloneRole(r), nil
}

func (s *MemoryStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(AllPermissions), nil
}

// prepareUser validates and normalizes input shared by every Store implementation.
func prepareUser(op string, in NewUser) (User, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return User{}, invalid(op, "email is required")
	}
	if !LooksLikeEmail(email) {
		return User{}, invalid(op, "email is malformed")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return User{}, invalid(op, "password hash is required")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	id, err := ids.New(now)
	if err != nil {
		return User{}, err
	}

	roles := slices.Clone(in.Roles)
	slices.Sort(roles)
	roles = slices.Compact(roles)

	return User{
		ID:          id,
		Email:       email,
		EmailNorm:   NormalizeEmail(email),
		DisplayName: strings.TrimSpace(in.DisplayName),
		Roles:       roles,
		CreatedAt:   now,
	}, nil
}

func cloneUser(u User) User {
	u.Roles = slices.Clone(u.Roles)
	return u
}

func cloneRole(r Role) Role {
	r.Permissions = slices.Clone(r.Permissions)
	return r
}
