package catalog

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"tourdesk/cmd/identity/ids"
)

// MemoryStore is an in-process Store for tests and single-node dev runs.
type MemoryStore struct {
	mu         sync.RWMutex
	suppliers  map[string]Supplier
	categories map[string]Category
	bookings   map[string]Booking
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		suppliers:  make(map[string]Supplier),
		categories: make(map[string]Category),
		bookings:   make(map[string]Booking),
	}
}

func sortedByID[T any](m map[string]T, id func(T) string) []T {
	out := make([]T, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b T) int { return cmp.Compare(id(a), id(b)) })
	return out
}

// ---- suppliers ----

func (s *MemoryStore) ListSuppliers(ctx context.Context) ([]Supplier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByID(s.suppliers, func(v Supplier) string { return v.ID }), nil
}

func (s *MemoryStore) GetSupplier(ctx context.Context, id string) (Supplier, error) {
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, NotFoundError{Op: "catalog.GetSupplier", Resource: "supplier"}
	}
	return v, nil
}

func (s *MemoryStore) CreateSupplier(ctx context.Context, in SupplierInput, now time.Time) (Supplier, error) {
	const op = "catalog.CreateSupplier"
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Supplier{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Supplier{}, err
	}
	now = now.UTC()
	v := Supplier{ID: id, CreatedAt: now}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkSupplierLocked(op, id, in); err != nil {
		return Supplier{}, err
	}
	v = applySupplier(v, in, now)
	s.suppliers[id] = v
	return v, nil
}

func (s *MemoryStore) UpdateSupplier(ctx context.Context, id string, in SupplierInput, now time.Time) (Supplier, error) {
	const op = "catalog.UpdateSupplier"
	if err := ctx.Err(); err != nil {
		return Supplier{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Supplier{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.suppliers[id]
	if !ok {
		return Supplier{}, NotFoundError{Op: op, Resource: "supplier"}
	}
	if err := s.checkSupplierLocked(op, id, in); err != nil {
		return Supplier{}, err
	}
	v = applySupplier(v, in, now.UTC())
	s.suppliers[id] = v
	return v, nil
}

func (s *MemoryStore) checkSupplierLocked(op, id string, in SupplierInput) error {
	if in.CategoryID != "" {
		if _, ok := s.categories[in.CategoryID]; !ok {
			return invalid(op, "unknown category_id")
		}
	}
	for _, other := range s.suppliers {
		if other.ID != id && other.Slug == in.Slug {
			return ConflictError{Op: op, Field: "slug"}
		}
	}
	return nil
}

func applySupplier(v Supplier, in SupplierInput, now time.Time) Supplier {
	v.Name = in.Name
	v.Slug = in.Slug
	v.Description = in.Description
	v.CategoryID = in.CategoryID
	v.City = in.City
	v.Active = *in.Active
	v.UpdatedAt = now
	return v
}

func (s *MemoryStore) DeleteSupplier(ctx context.Context, id string) error {
	const op = "catalog.DeleteSupplier"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[id]; !ok {
		return NotFoundError{Op: op, Resource: "supplier"}
	}
	for _, b := range s.bookings {
		if b.SupplierID == id {
			return ConflictError{Op: op, Field: "bookings"}
		}
	}
	delete(s.suppliers, id)
	return nil
}

// ---- categories ----

func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByID(s.categories, func(v Category) string { return v.ID }), nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (Category, error) {
	if err := ctx.Err(); err != nil {
		return Category{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.categories[id]
	if !ok {
		return Category{}, NotFoundError{Op: "catalog.GetCategory", Resource: "category"}
	}
	return v, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, in CategoryInput, now time.Time) (Category, error) {
	const op = "catalog.CreateCategory"
	if err := ctx.Err(); err != nil {
		return Category{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Category{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Category{}, err
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkCategoryLocked(op, id, in); err != nil {
		return Category{}, err
	}
	v := applyCategory(Category{ID: id, CreatedAt: now}, in, now)
	s.categories[id] = v
	return v, nil
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, id string, in CategoryInput, now time.Time) (Category, error) {
	const op = "catalog.UpdateCategory"
	if err := ctx.Err(); err != nil {
		return Category{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Category{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.categories[id]
	if !ok {
		return Category{}, NotFoundError{Op: op, Resource: "category"}
	}
	if err := s.checkCategoryLocked(op, id, in); err != nil {
		return Category{}, err
	}
	v = applyCategory(v, in, now.UTC())
	s.categories[id] = v
	return v, nil
}

func (s *MemoryStore) checkCategoryLocked(op, id string, in CategoryInput) error {
	if in.ParentID == id {
		return invalid(op, "parent_id cannot reference the category itself")
	}
	for _, other := range s.categories {
		if other.ID != id && other.Slug == in.Slug {
			return ConflictError{Op: op, Field: "slug"}
		}
	}
	return nil
}

func applyCategory(v Category, in CategoryInput, now time.Time) Category {
	v.Name = in.Name
	v.Slug = in.Slug
	v.ParentID = in.ParentID
	v.UpdatedAt = now
	return v
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id string) error {
	const op = "catalog.DeleteCategory"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return NotFoundError{Op: op, Resource: "category"}
	}
	for _, sup := range s.suppliers {
		if sup.CategoryID == id {
			return ConflictError{Op: op, Field: "suppliers"}
		}
	}
	delete(s.categories, id)
	return nil
}

// ---- bookings ----

func (s *MemoryStore) ListBookings(ctx context.Context) ([]Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedByID(s.bookings, func(v Booking) string { return v.ID }), nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, id string) (Booking, error) {
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bookings[id]
	if !ok {
		return Booking{}, NotFoundError{Op: "catalog.GetBooking", Resource: "booking"}
	}
	return v, nil
}

func (s *MemoryStore) CreateBooking(ctx context.Context, in BookingInput, now time.Time) (Booking, error) {
	const op = "catalog.CreateBooking"
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Booking{}, err
	}
	id, err := ids.New(now)
	if err != nil {
		return Booking{}, err
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.suppliers[in.SupplierID]; !ok {
		return Booking{}, invalid(op, "unknown supplier_id")
	}
	v := applyBooking(Booking{ID: id, CreatedAt: now}, in, now)
	s.bookings[id] = v
	return v, nil
}

func (s *MemoryStore) UpdateBooking(ctx context.Context, id string, in BookingInput, now time.Time) (Booking, error) {
	const op = "catalog.UpdateBooking"
	if err := ctx.Err(); err != nil {
		return Booking{}, err
	}
	in, err := in.normalize(op)
	if err != nil {
		return Booking{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.bookings[id]
	if !ok {
		return Booking{}, NotFoundError{Op: op, Resource: "booking"}
	}
	if _, ok := s.suppliers[in.SupplierID]; !ok {
		return Booking{}, invalid(op, "unknown supplier_id")
	}
	v = applyBooking(v, in, now.UTC())
	s.bookings[id] = v
	return v, nil
}

func applyBooking(v Booking, in BookingInput, now time.Time) Booking {
	v.SupplierID = in.SupplierID
	v.CustomerName = in.CustomerName
	v.CustomerEmail = in.CustomerEmail
	v.TravelDate = in.TravelDate
	v.PartySize = in.PartySize
	v.Status = in.Status
	v.Notes = in.Notes
	v.UpdatedAt = now
	return v
}

func (s *MemoryStore) DeleteBooking(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bookings[id]; !ok {
		return NotFoundError{Op: "catalog.DeleteBooking", Resource: "booking"}
	}
	delete(s.bookings, id)
	return nil
}
