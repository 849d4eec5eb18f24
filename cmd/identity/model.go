package identity

import (
	"context"
	"slices"
	"time"
)

// Permission is a capability identifier checked by route guards ("bookings.write").
type Permission string

const (
	PermSuppliersRead   Permission = "suppliers.read"
	PermSuppliersWrite  Permission = "suppliers.write"
	PermCategoriesRead  Permission = "categories.read"
	PermCategoriesWrite Permission = "categories.write"
	PermBookingsRead    Permission = "bookings.read"
	PermBookingsWrite   Permission = "bookings.write"
	PermPermissionsRead Permission = "permissions.read"
	PermUsersRead       Permission = "users.read"
)

// AllPermissions lists every permission the back office knows about, in display order.
var AllPermissions = []Permission{
	PermSuppliersRead,
	PermSuppliersWrite,
	PermCategoriesRead,
	PermCategoriesWrite,
	PermBookingsRead,
	PermBookingsWrite,
	PermPermissionsRead,
	PermUsersRead,
}

// Built-in role ids.
const (
	RoleAdmin  = "admin"
	RoleAgent  = "agent"
	RoleViewer = "viewer"
)

// Role groups permissions under a stable id.
type Role struct {
	ID          string
	Name        string
	Permissions []Permission
}

// BuiltinRoles returns the roles every deployment starts with.
func BuiltinRoles() []Role {
	return []Role{
		{
			ID:          RoleAdmin,
			Name:        "Administrator",
			Permissions: slices.Clone(AllPermissions),
		},
		{
			ID:   RoleAgent,
			Name: "Booking agent",
			Permissions: []Permission{
				PermSuppliersRead,
				PermCategoriesRead,
				PermBookingsRead,
				PermBookingsWrite,
				PermPermissionsRead,
			},
		},
		{
			ID:   RoleViewer,
			Name: "Read-only",
			Permissions: []Permission{
				PermSuppliersRead,
				PermCategoriesRead,
				PermBookingsRead,
				PermPermissionsRead,
			},
		},
	}
}

// User is a back-office staff account.
type User struct {
	ID          string
	Email       string
	EmailNorm   string
	DisplayName string
	Roles       []string
	Disabled    bool
	CreatedAt   time.Time
}

// UserAuth pairs a user with its stored password hash. It never leaves the server.
type UserAuth struct {
	User         User
	PasswordHash string
}

// NewUser is the persistence input for CreateUser. PasswordHash is already encoded.
type NewUser struct {
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []string
	Now          time.Time
}

// Principal is a user plus the union of permissions granted by its roles.
type Principal struct {
	User        User
	Permissions []Permission
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in NewUser) (User, error)
	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)
	ListUsers(ctx context.Context) ([]User, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id string) (Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// ResolvePrincipal loads a user and expands its roles into a sorted, de-duplicated permission set.
// Unknown roles contribute nothing.
func ResolvePrincipal(ctx context.Context, s Store, userID string) (Principal, error) {
	u, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return Principal{}, err
	}

	var perms []Permission
	for _, roleID := range u.Roles {
		r, err := s.GetRole(ctx, roleID)
		if err != nil {
			if IsNotFound(err) {
				continue
			}
			return Principal{}, err
		}
		perms = append(perms, r.Permissions...)
	}
	slices.Sort(perms)
	return Principal{User: u, Permissions: slices.Compact(perms)}, nil
}
