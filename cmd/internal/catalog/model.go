package catalog

import (
	"context"
	"time"
)

// Entity names, used in routes, permissions and feed events.
const (
	EntitySuppliers  = "suppliers"
	EntityCategories = "categories"
	EntityBookings   = "bookings"
)

// BookingStatus is the lifecycle label of a booking. Transitions are not enforced.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Supplier is an attraction, hotel or operator the agency books with.
type Supplier struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Slug        string    `json:"slug" db:"slug"`
	Description string    `json:"description" db:"description"`
	CategoryID  string    `json:"category_id,omitempty" db:"category_id"`
	City        string    `json:"city" db:"city"`
	Active      bool      `json:"active" db:"active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Category groups suppliers. ParentID is stored as given; no hierarchy is enforced.
type Category struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	ParentID  string    `json:"parent_id,omitempty" db:"parent_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Booking is a reservation with a supplier. TravelDate is YYYY-MM-DD.
type Booking struct {
	ID            string        `json:"id" db:"id"`
	SupplierID    string        `json:"supplier_id" db:"supplier_id"`
	CustomerName  string        `json:"customer_name" db:"customer_name"`
	CustomerEmail string        `json:"customer_email" db:"customer_email"`
	TravelDate    string        `json:"travel_date" db:"travel_date"`
	PartySize     int           `json:"party_size" db:"party_size"`
	Status        BookingStatus `json:"status" db:"status"`
	Notes         string        `json:"notes" db:"notes"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// SupplierInput is the writable part of a Supplier. Active defaults to true.
type SupplierInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	CategoryID  string `json:"category_id"`
	City        string `json:"city"`
	Active      *bool  `json:"active"`
}

// CategoryInput is the writable part of a Category.
type CategoryInput struct {
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id"`
}

// BookingInput is the writable part of a Booking. Status defaults to pending.
type BookingInput struct {
	SupplierID    string        `json:"supplier_id"`
	CustomerName  string        `json:"customer_name"`
	CustomerEmail string        `json:"customer_email"`
	TravelDate    string        `json:"travel_date"`
	PartySize     int           `json:"party_size"`
	Status        BookingStatus `json:"status"`
	Notes         string        `json:"notes"`
}

// Store persists catalog records. Updates replace every writable field.
//
// References are checked by the store: a supplier's category and a booking's
// supplier must exist (ErrInvalidInput otherwise), and a record still
// referenced cannot be deleted (ConflictError).
type Store interface {
	ListSuppliers(ctx context.Context) ([]Supplier, error)
	GetSupplier(ctx context.Context, id string) (Supplier, error)
	CreateSupplier(ctx context.Context, in SupplierInput, now time.Time) (Supplier, error)
	UpdateSupplier(ctx context.Context, id string, in SupplierInput, now time.Time) (Supplier, error)
	DeleteSupplier(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	CreateCategory(ctx context.Context, in CategoryInput, now time.Time) (Category, error)
	UpdateCategory(ctx context.Context, id string, in CategoryInput, now time.Time) (Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListBookings(ctx context.Context) ([]Booking, error)
	GetBooking(ctx context.Context, id string) (Booking, error)
	CreateBooking(ctx context.Context, in BookingInput, now time.Time) (Booking, error)
	UpdateBooking(ctx context.Context, id string, in BookingInput, now time.Time) (Booking, error)
	DeleteBooking(ctx context.Context, id string) error
}
