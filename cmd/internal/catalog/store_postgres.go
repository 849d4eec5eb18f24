package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tourdesk/cmd/identity/ids"
)

// PostgresStore implements Store over PostgreSQL. The pool is owned by the caller.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

var _ Store = (*PostgresStore)(nil)

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// NewPostgresStore constructs a PostgresStore in schema (default "tourdesk").
func NewPostgresStore(pool *pgxpool.Pool, schema string) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("catalog: nil pool")
	}
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "tourdesk"
	}
	if !pgIdentRe.MatchString(schema) {
		return nil, errors.New("catalog: invalid schema identifier")
	}
	return &PostgresStore{pool: pool, schema: schema}, nil
}

func (s *PostgresStore) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

const (
	supplierCols = `id, name, slug, description, COALESCE(category_id, '') AS category_id, city, active, created_at, updated_at`
	categoryCols = `id, name, slug, COALESCE(parent_id, '') AS parent_id, created_at, updated_at`
	bookingCols  = `id, supplier_id, customer_name, customer_email, travel_date::text AS travel_date, party_size, status, notes, created_at, updated_at`
)

func collect[T any](ctx context.Context, pool *pgxpool.Pool, sql string, fix func(*T), args ...any) ([]T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, err
	}
	for i := range out {
		fix(&out[i])
	}
	return out, nil
}

func collectOne[T any](ctx context.Context, pool *pgxpool.Pool, op, resource, sql string, fix func(*T), args ...any) (T, error) {
	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	v, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[T])
	if errors.Is(err, pgx.ErrNoRows) {
		return v, NotFoundError{Op: op, Resource: resource}
	}
	if err != nil {
		return v, classify(op, err)
	}
	fix(&v)
	return v, nil
}

func fixSupplier(v *Supplier) { v.CreatedAt, v.UpdatedAt = v.CreatedAt.UTC(), v.UpdatedAt.UTC() }
func fixCategory(v *Category) { v.CreatedAt, v.UpdatedAt = v.CreatedAt.UTC(), v.UpdatedAt.UTC() }
func fixBooking(v *Booking)   { v.CreatedAt, v.UpdatedAt = v.CreatedAt.UTC(), v.UpdatedAt.UTC() }

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// classify maps constraint violations onto catalog error kinds.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	c := strings.ToLower(pgErr.ConstraintName)
	switch pgErr.Code {
	case "23505": // unique_violation
		if strings.Contains(c, "slug") {
			return ConflictError{Op: op, Field: "slug"}
		}
		return ConflictError{Op: op, Field: "id"}
	case "23503": // foreign_key_violation
		if strings.Contains(c, "category") {
			return invalid(op, "unknown category_id")
		}
		return invalid(op, "unknown supplier_id")
	}
	return err
}

func (s *PostgresStore) deleteByID(ctx context.Context, op, resource, table, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table(table)+` WHERE id = $1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		// The violating table is the one still holding references.
		return ConflictError{Op: op, Field: pgErr.TableName}
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: resource}
	}
	return nil
}

// ---- suppliers ----

func (s *PostgresStore) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	return collect(ctx, s.pool,
		`SELECT `+supplierCols+` FROM `+s.table("suppliers")+` ORDER BY id COLLATE "C"`,
		fixSupplier)
}

func (s *PostgresStore) GetSupplier(ctx context.Context, id string) (Supplier, error) {
	return collectOne(ctx, s.pool, "catalog.GetSupplier", "supplier",
		`SELECT `+supplierCols+` FROM `+s.table("suppliers")+` WHERE id = $1`,
		fixSupplier, id)
}

func (s *PostgresStore) CreateSupplier(ctx context.Context, in SupplierInput, now time.Time) (Supplier, error) {
	const op = "catalog.CreateSupplier"
	in, err := in.normalize(op)
	if err != nil {
		return Supplier{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Supplier{}, err
	}
	return collectOne(ctx, s.pool, op, "supplier",
		`INSERT INTO `+s.table("suppliers")+` (id, name, slug, description, category_id, city, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 RETURNING `+supplierCols,
		fixSupplier, id, in.Name, in.Slug, in.Description, nullable(in.CategoryID), in.City, *in.Active, now.UTC())
}

func (s *PostgresStore) UpdateSupplier(ctx context.Context, id string, in SupplierInput, now time.Time) (Supplier, error) {
	const op = "catalog.UpdateSupplier"
	in, err := in.normalize(op)
	if err != nil {
		return Supplier{}, err
	}
	return collectOne(ctx, s.pool, op, "supplier",
		`UPDATE `+s.table("suppliers")+`
		    SET name = $2, slug = $3, description = $4, category_id = $5, city = $6, active = $7, updated_at = $8
		  WHERE id = $1
		 RETURNING `+supplierCols,
		fixSupplier, id, in.Name, in.Slug, in.Description, nullable(in.CategoryID), in.City, *in.Active, now.UTC())
}

func (s *PostgresStore) DeleteSupplier(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "catalog.DeleteSupplier", "supplier", "suppliers", id)
}

// ---- categories ----

func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	return collect(ctx, s.pool,
		`SELECT `+categoryCols+` FROM `+s.table("categories")+` ORDER BY id COLLATE "C"`,
		fixCategory)
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (Category, error) {
	return collectOne(ctx, s.pool, "catalog.GetCategory", "category",
		`SELECT `+categoryCols+` FROM `+s.table("categories")+` WHERE id = $1`,
		fixCategory, id)
}

func (s *PostgresStore) CreateCategory(ctx context.Context, in CategoryInput, now time.Time) (Category, error) {
	const op = "catalog.CreateCategory"
	in, err := in.normalize(op)
	if err != nil {
		return Category{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Category{}, err
	}
	return collectOne(ctx, s.pool, op, "category",
		`INSERT INTO `+s.table("categories")+` (id, name, slug, parent_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 RETURNING `+categoryCols,
		fixCategory, id, in.Name, in.Slug, nullable(in.ParentID), now.UTC())
}

func (s *PostgresStore) UpdateCategory(ctx context.Context, id string, in CategoryInput, now time.Time) (Category, error) {
	const op = "catalog.UpdateCategory"
	in, err := in.normalize(op)
	if err != nil {
		return Category{}, err
	}
	if in.ParentID == id {
		return Category{}, invalid(op, "parent_id cannot reference the category itself")
	}
	return collectOne(ctx, s.pool, op, "category",
		`UPDATE `+s.table("categories")+`
		    SET name = $2, slug = $3, parent_id = $4, updated_at = $5
		  WHERE id = $1
		 RETURNING `+categoryCols,
		fixCategory, id, in.Name, in.Slug, nullable(in.ParentID), now.UTC())
}

func (s *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "catalog.DeleteCategory", "category", "categories", id)
}

// ---- bookings ----

func (s *PostgresStore) ListBookings(ctx context.Context) ([]Booking, error) {
	return collect(ctx, s.pool,
		`SELECT `+bookingCols+` FROM `+s.table("bookings")+` ORDER BY id COLLATE "C"`,
		fixBooking)
}

func (s *PostgresStore) GetBooking(ctx context.Context, id string) (Booking, error) {
	return collectOne(ctx, s.pool, "catalog.GetBooking", "booking",
		`SELECT `+bookingCols+` FROM `+s.table("bookings")+` WHERE id = $1`,
		fixBooking, id)
}

func (s *PostgresStore) CreateBooking(ctx context.Context, in BookingInput, now time.Time) (Booking, error) {
	const op = "catalog.CreateBooking"
	in, err := in.normalize(op)
	if err != nil {
		return Booking{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Booking{}, err
	}
	return collectOne(ctx, s.pool, op, "booking",
		`INSERT INTO `+s.table("bookings")+` (id, supplier_id, customer_name, customer_email, travel_date, party_size, status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5::date, $6, $7, $8, $9, $9)
		 RETURNING `+bookingCols,
		fixBooking, id, in.SupplierID, in.CustomerName, in.CustomerEmail, in.TravelDate, in.PartySize, string(in.Status), in.Notes, now.UTC())
}

func (s *PostgresStore) UpdateBooking(ctx context.Context, id string, in BookingInput, now time.Time) (Booking, error) {
	const op = "catalog.UpdateBooking"
	in, err := in.normalize(op)
	if err != nil {
		return Booking{}, err
	}
	return collectOne(ctx, s.pool, op, "booking",
		`UPDATE `+s.table("bookings")+`
		    SET supplier_id = $2, customer_name = $3, customer_email = $4, travel_date = $5::date,
		        party_size = $6, status = $7, notes = $8, updated_at = $9
		  WHERE id = $1
		 RETURNING `+bookingCols,
		fixBooking, id, in.SupplierID, in.CustomerName, in.CustomerEmail, in.TravelDate, in.PartySize, string(in.Status), in.Notes, now.UTC())
}

func (s *PostgresStore) DeleteBooking(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "catalog.DeleteBooking", "booking", "bookings", id)
}

// EnsureSchema creates the catalog tables when missing. Safe to run on every start.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[2]s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  parent_id TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT uq_categories_slug UNIQUE (slug)
);

CREATE TABLE IF NOT EXISTS %[3]s (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  category_id TEXT NULL,
  city TEXT NOT NULL DEFAULT '',
  active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT uq_suppliers_slug UNIQUE (slug),
  CONSTRAINT fk_suppliers_category FOREIGN KEY (category_id) REFERENCES %[2]s(id) ON DELETE RESTRICT
);

CREATE TABLE IF NOT EXISTS %[4]s (
  id TEXT PRIMARY KEY,
  supplier_id TEXT NOT NULL,
  customer_name TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  travel_date DATE NOT NULL,
  party_size INT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  notes TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL,

  CONSTRAINT chk_bookings_party_size CHECK (party_size >= 1),
  CONSTRAINT chk_bookings_status CHECK (status IN ('pending', 'confirmed', 'cancelled')),
  CONSTRAINT fk_bookings_supplier FOREIGN KEY (supplier_id) REFERENCES %[3]s(id) ON DELETE RESTRICT
);

CREATE INDEX IF NOT EXISTS idx_bookings_supplier ON %[4]s (supplier_id);
`, pgx.Identifier{s.schema}.Sanitize(), s.table("categories"), s.table("suppliers"), s.table("bookings"))

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("catalog: apply schema: %w", err)
	}
	return nil
}
