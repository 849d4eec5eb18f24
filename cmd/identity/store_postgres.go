package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over PostgreSQL.
//
// The pgx pool is owned by the caller; this store never closes it.
// Schema and table identifiers are quoted through pgx.Identifier.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema (default "tourdesk").
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{pool: pool, schema: "tourdesk"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

// Schema returns the configured schema name.
func (s *PostgresStore) Schema() string { return s.schema }

func (s *PostgresStore) CreateUser(ctx context.Context, in NewUser) (User, error) {
	const op = "identity.CreateUser"

	u, err := prepareUser(op, in)
	if err != nil {
		return User{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return User{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "users")+` (
		     id, email, email_norm, display_name, password_hash, disabled, created_at
		   ) VALUES ($1, $2, $3, $4, $5, false, $6)`,
		u.ID, u.Email, u.EmailNorm, u.DisplayName, in.PasswordHash, u.CreatedAt,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, err
	}

	for _, r := range u.Roles {
		_, err = tx.Exec(ctx,
			`INSERT INTO `+pgIdent(s.schema, "user_roles")+` (user_id, role_id) VALUES ($1, $2)`,
			u.ID, r,
		)
		if err != nil {
			if pgIsForeignKeyViolation(err) {
				return User{}, NotFoundError{Op: op, Resource: "role " + r}
			}
			return User{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	u, _, err := s.scanUser(ctx, `u.id = $1`, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	return u, err
}

func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	u, hash, err := s.scanUser(ctx, `u.email_norm = $1`, NormalizeEmail(email))
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, err
	}
	return UserAuth{User: u, PasswordHash: hash}, nil
}

func (s *PostgresStore) scanUser(ctx context.Context, where string, arg any) (User, string, error) {
	var (
		u    User
		hash string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT u.id, u.email, u.email_norm, u.display_name, u.disabled, u.created_at, u.password_hash,
		        COALESCE(array_agg(ur.role_id ORDER BY ur.role_id COLLATE "C") FILTER (WHERE ur.role_id IS NOT NULL), '{}')
		   FROM `+pgIdent(s.schema, "users")+` u
		   LEFT JOIN `+pgIdent(s.schema, "user_roles")+` ur ON ur.user_id = u.id
		  WHERE `+where+`
		  GROUP BY u.id`,
		arg,
	).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.Disabled, &u.CreatedAt, &hash, &u.Roles)
	if err != nil {
		return User{}, "", err
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, hash, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.email_norm, u.display_name, u.disabled, u.created_at,
		        COALESCE(array_agg(ur.role_id ORDER BY ur.role_id COLLATE "C") FILTER (WHERE ur.role_id IS NOT NULL), '{}')
		   FROM `+pgIdent(s.schema, "users")+` u
		   LEFT JOIN `+pgIdent(s.schema, "user_roles")+` ur ON ur.user_id = u.id
		  GROUP BY u.id
		  ORDER BY u.id COLLATE "C"`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.EmailNorm, &u.DisplayName, &u.Disabled, &u.CreatedAt, &u.Roles); err != nil {
			return nil, err
		}
		u.CreatedAt = u.CreatedAt.UTC()
		out = append(out, u)
	}
	return out, rows.Err()
}

// SetDisabled flips the disabled flag.
func (s *PostgresStore) SetDisabled(ctx context.Context, id string, disabled bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE `+pgIdent(s.schema, "users")+` SET disabled = $2 WHERE id = $1`,
		id, disabled,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: "identity.SetDisabled", Resource: "user"}
	}
	return nil
}

func (s *PostgresStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT r.id, r.name,
		        COALESCE(array_agg(rp.permission ORDER BY rp.permission COLLATE "C") FILTER (WHERE rp.permission IS NOT NULL), '{}')
		   FROM `+pgIdent(s.schema, "roles")+` r
		   LEFT JOIN `+pgIdent(s.schema, "role_permissions")+` rp ON rp.role_id = r.id
		  GROUP BY r.id
		  ORDER BY r.id COLLATE "C"`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetRole(ctx context.Context, id string) (Role, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT r.id, r.name,
		        COALESCE(array_agg(rp.permission ORDER BY rp.permission COLLATE "C") FILTER (WHERE rp.permission IS NOT NULL), '{}')
		   FROM `+pgIdent(s.schema, "roles")+` r
		   LEFT JOIN `+pgIdent(s.schema, "role_permissions")+` rp ON rp.role_id = r.id
		  WHERE r.id = $1
		  GROUP BY r.id`,
		id,
	)
	r, err := scanRole(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, NotFoundError{Op: "identity.GetRole", Resource: "role"}
	}
	return r, err
}

func (s *PostgresStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM `+pgIdent(s.schema, "permissions")+` ORDER BY position, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Permission
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, Permission(p))
	}
	return out, rows.Err()
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		r     Role
		perms []string
	)
	if err := row.Scan(&r.ID, &r.Name, &perms); err != nil {
		return Role{}, err
	}
	r.Permissions = make([]Permission, 0, len(perms))
	for _, p := range perms {
		r.Permissions = append(r.Permissions, Permission(p))
	}
	return r, nil
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm", strings.Contains(c, "email"):
		return "email", true
	case c == "users_pkey":
		return "id", true
	default:
		return "unknown", true
	}
}

// sortedPermissionIDs is used when seeding so that inserts are deterministic.
func sortedPermissionIDs(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	slices.Sort(out)
	return out
}
