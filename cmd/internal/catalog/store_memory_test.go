package catalog

import (
	"context"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedSupplier(t *testing.T, s Store, name, categoryID string) Supplier {
	t.Helper()
	v, err := s.CreateSupplier(context.Background(), SupplierInput{Name: name, CategoryID: categoryID, City: "Antalya"}, t0)
	if err != nil {
		t.Fatalf("CreateSupplier(%q): %v", name, err)
	}
	return v
}

func bookingFor(supplierID string) BookingInput {
	return BookingInput{
		SupplierID:    supplierID,
		CustomerName:  "Grace Hopper",
		CustomerEmail: "grace@example.com",
		TravelDate:    "2026-07-14",
		PartySize:     3,
	}
}

func TestMemoryStore_SupplierLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	created := seedSupplier(t, s, "Sea Kayak Co", "")
	if created.ID == "" || created.Slug != "sea-kayak-co" || !created.Active {
		t.Fatalf("created = %+v", created)
	}
	if !created.CreatedAt.Equal(t0) || !created.UpdatedAt.Equal(t0) {
		t.Fatalf("timestamps = %v / %v", created.CreatedAt, created.UpdatedAt)
	}

	inactive := false
	t1 := t0.Add(time.Hour)
	updated, err := s.UpdateSupplier(ctx, created.ID, SupplierInput{Name: "Sea Kayak Company", Slug: "sea-kayak-co", Active: &inactive}, t1)
	if err != nil {
		t.Fatalf("UpdateSupplier: %v", err)
	}
	if updated.Name != "Sea Kayak Company" || updated.Active || updated.City != "" {
		t.Fatalf("updated = %+v", updated)
	}
	if !updated.CreatedAt.Equal(t0) || !updated.UpdatedAt.Equal(t1) {
		t.Fatalf("timestamps = %v / %v", updated.CreatedAt, updated.UpdatedAt)
	}

	got, err := s.GetSupplier(ctx, created.ID)
	if err != nil || got != updated {
		t.Fatalf("GetSupplier = %+v, %v", got, err)
	}

	if err := s.DeleteSupplier(ctx, created.ID); err != nil {
		t.Fatalf("DeleteSupplier: %v", err)
	}
	if _, err := s.GetSupplier(ctx, created.ID); !IsNotFound(err) {
		t.Fatalf("GetSupplier after delete err = %v", err)
	}
	if err := s.DeleteSupplier(ctx, created.ID); !IsNotFound(err) {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestMemoryStore_SlugConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := seedSupplier(t, s, "Old Town Walks", "")
	b := seedSupplier(t, s, "Harbour Cruises", "")

	if _, err := s.CreateSupplier(ctx, SupplierInput{Name: "Old Town  Walks!"}, t0); !IsConflict(err) {
		t.Fatalf("duplicate derived slug err = %v", err)
	}
	if _, err := s.UpdateSupplier(ctx, b.ID, SupplierInput{Name: "Harbour", Slug: a.Slug}, t0); !IsConflict(err) {
		t.Fatalf("update onto taken slug err = %v", err)
	}
	// Keeping one's own slug is fine.
	if _, err := s.UpdateSupplier(ctx, a.ID, SupplierInput{Name: "Old Town Walks", Slug: a.Slug}, t0); err != nil {
		t.Fatalf("self update: %v", err)
	}

	if _, err := s.CreateCategory(ctx, CategoryInput{Name: "Tours"}, t0); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateCategory(ctx, CategoryInput{Name: "tours"}, t0); !IsConflict(err) {
		t.Fatalf("duplicate category slug err = %v", err)
	}
}

func TestMemoryStore_References(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.CreateSupplier(ctx, SupplierInput{Name: "Ghost", CategoryID: "missing"}, t0); !IsInvalidInput(err) {
		t.Fatalf("unknown category err = %v", err)
	}
	if _, err := s.CreateBooking(ctx, bookingFor("missing"), t0); !IsInvalidInput(err) {
		t.Fatalf("unknown supplier err = %v", err)
	}

	cat, err := s.CreateCategory(ctx, CategoryInput{Name: "Boat Trips"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	sup := seedSupplier(t, s, "Blue Cruise", cat.ID)
	bk, err := s.CreateBooking(ctx, bookingFor(sup.ID), t0)
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if bk.Status != StatusPending || bk.PartySize != 3 {
		t.Fatalf("booking = %+v", bk)
	}

	if err := s.DeleteCategory(ctx, cat.ID); !IsConflict(err) {
		t.Fatalf("delete referenced category err = %v", err)
	}
	if err := s.DeleteSupplier(ctx, sup.ID); !IsConflict(err) {
		t.Fatalf("delete referenced supplier err = %v", err)
	}

	if err := s.DeleteBooking(ctx, bk.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSupplier(ctx, sup.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCategory(ctx, cat.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := s.UpdateCategory(ctx, "nope", CategoryInput{Name: "X"}, t0); !IsNotFound(err) {
		t.Fatalf("update missing category err = %v", err)
	}
}

func TestMemoryStore_CategoryParentCannotBeSelf(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	c, err := s.CreateCategory(ctx, CategoryInput{Name: "Museums", ParentID: "opaque-parent"}, t0)
	if err != nil {
		t.Fatal(err)
	}
	if c.ParentID != "opaque-parent" {
		t.Fatalf("parent = %q", c.ParentID)
	}
	if _, err := s.UpdateCategory(ctx, c.ID, CategoryInput{Name: "Museums", ParentID: c.ID}, t0); !IsInvalidInput(err) {
		t.Fatalf("self parent err = %v", err)
	}
}

func TestMemoryStore_ListsSortedByID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, n := range []string{"Charlie", "Alpha", "Bravo"} {
		seedSupplier(t, s, n, "")
	}
	list, err := s.ListSuppliers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].ID >= list[i].ID {
			t.Fatalf("not sorted: %s >= %s", list[i-1].ID, list[i].ID)
		}
	}

	empty, err := s.ListBookings(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("ListBookings = %v, %v", empty, err)
	}
}

func TestMemoryStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewMemoryStore()
	if _, err := s.ListCategories(ctx); err == nil {
		t.Fatal("expected context error")
	}
	if _, err := s.CreateCategory(ctx, CategoryInput{Name: "X"}, t0); err == nil {
		t.Fatal("expected context error")
	}
}
