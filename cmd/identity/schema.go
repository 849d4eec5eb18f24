package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// EnsureSchema creates the identity tables when missing and upserts the
// permission catalogue and built-in roles. It is safe to run on every start.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := pgx.Identifier{s.schema}.Sanitize()
	users := pgIdent(s.schema, "users")
	roles := pgIdent(s.schema, "roles")
	perms := pgIdent(s.schema, "permissions")
	rolePerms := pgIdent(s.schema, "role_permissions")
	userRoles := pgIdent(s.schema, "user_roles")
	audit := pgIdent(s.schema, "audit_log")

	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[2]s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  display_name TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  disabled BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS %[3]s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS %[4]s (
  id TEXT PRIMARY KEY,
  position INT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS %[5]s (
  role_id TEXT NOT NULL REFERENCES %[3]s(id) ON DELETE CASCADE,
  permission TEXT NOT NULL REFERENCES %[4]s(id) ON DELETE CASCADE,
  PRIMARY KEY (role_id, permission)
);

CREATE TABLE IF NOT EXISTS %[6]s (
  user_id TEXT NOT NULL REFERENCES %[2]s(id) ON DELETE CASCADE,
  role_id TEXT NOT NULL REFERENCES %[3]s(id) ON DELETE RESTRICT,
  PRIMARY KEY (user_id, role_id)
);

CREATE TABLE IF NOT EXISTS %[7]s (
  id BIGSERIAL PRIMARY KEY,
  occurred_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  action TEXT NOT NULL,
  actor_user_id TEXT NULL,
  target TEXT NULL,
  ip TEXT NULL,
  user_agent TEXT NULL,
  meta JSONB NOT NULL DEFAULT '{}'::jsonb
);
`, schema, users, roles, perms, rolePerms, userRoles, audit)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("identity: apply schema: %w", err)
	}

	for i, p := range AllPermissions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+perms+` (id, position) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET position = EXCLUDED.position`,
			string(p), i,
		); err != nil {
			return fmt.Errorf("identity: seed permission %s: %w", p, err)
		}
	}

	for _, r := range BuiltinRoles() {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+roles+` (id, name) VALUES ($1, $2)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
			r.ID, r.Name,
		); err != nil {
			return fmt.Errorf("identity: seed role %s: %w", r.ID, err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM `+rolePerms+` WHERE role_id = $1`, r.ID); err != nil {
			return err
		}
		for _, p := range sortedPermissionIDs(r.Permissions) {
			if _, err := tx.Exec(ctx,
				`INSERT INTO `+rolePerms+` (role_id, permission) VALUES ($1, $2)`,
				r.ID, p,
			); err != nil {
				return fmt.Errorf("identity: seed role %s: %w", r.ID, err)
			}
		}
	}

	return tx.Commit(ctx)
}
