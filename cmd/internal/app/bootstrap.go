package app

import (
	"context"

	"tourdesk/cmd/identity"
)

// ensureBootstrapAdmin creates the configured admin account once. An existing
// account with that email is left untouched, whatever its roles.
func ensureBootstrapAdmin(ctx context.Context, log Logger, store identity.Store, creds *identity.Credentials, email, password string) error {
	if email == "" {
		return nil
	}

	_, err := store.GetUserAuthByEmail(ctx, email)
	if err == nil {
		log.Info("bootstrap.admin.exists", "email", identity.NormalizeEmail(email))
		return nil
	}
	if !identity.IsNotFound(err) {
		return err
	}

	u, err := creds.CreateUser(ctx, identity.CreateUserInput{
		Email:       email,
		DisplayName: "Administrator",
		Password:    password,
		Roles:       []string{identity.RoleAdmin},
	})
	if identity.IsConflict(err) {
		// Another instance won the race.
		return nil
	}
	if err != nil {
		return err
	}
	log.Info("bootstrap.admin.created", "user_id", u.ID, "email", u.Email)
	return nil
}
