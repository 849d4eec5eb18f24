package catalog

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tourdesk/cmd/internal/audit"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/feed"
	"tourdesk/cmd/internal/httpjson"
)

// Handler serves the catalog CRUD endpoints.
type Handler struct {
	log   *slog.Logger
	store Store
	gate  *gate.Gate

	feed         feed.Publisher
	audit        audit.Recorder
	now          func() time.Time
	maxBodyBytes int64
	trustProxy   bool
}

// HandlerOption configures optional dependencies.
type HandlerOption func(*Handler)

// WithPublisher sends change events to p (default: discarded).
func WithPublisher(p feed.Publisher) HandlerOption {
	return func(h *Handler) {
		if p != nil {
			h.feed = p
		}
	}
}

// WithAuditRecorder overrides the log-based audit recorder.
func WithAuditRecorder(rec audit.Recorder) HandlerOption {
	return func(h *Handler) {
		if rec != nil {
			h.audit = rec
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// WithMaxBodyBytes bounds request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithTrustProxy makes audit records use forwarding headers for the client IP.
func WithTrustProxy(trust bool) HandlerOption {
	return func(h *Handler) { h.trustProxy = trust }
}

// NewHandler constructs a catalog Handler.
func NewHandler(log *slog.Logger, store Store, g *gate.Gate, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if store == nil {
		return nil, errors.New("catalog: nil store")
	}
	if g == nil {
		return nil, errors.New("catalog: nil gate")
	}
	h := &Handler{
		log:          log,
		store:        store,
		gate:         g,
		feed:         feed.Discard{},
		audit:        audit.LogRecorder{Log: log},
		now:          time.Now,
		maxBodyBytes: httpjson.DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Register mounts /api/v1/{suppliers,categories,bookings}. Reads need
// <entity>.read, writes <entity>.write.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	registerResource(h, mux, resource[Supplier, SupplierInput]{
		entity: EntitySuppliers, singular: "supplier",
		list: h.store.ListSuppliers, get: h.store.GetSupplier,
		create: h.store.CreateSupplier, update: h.store.UpdateSupplier, remove: h.store.DeleteSupplier,
		id: func(v Supplier) string { return v.ID },
	})
	registerResource(h, mux, resource[Category, CategoryInput]{
		entity: EntityCategories, singular: "category",
		list: h.store.ListCategories, get: h.store.GetCategory,
		create: h.store.CreateCategory, update: h.store.UpdateCategory, remove: h.store.DeleteCategory,
		id: func(v Category) string { return v.ID },
	})
	registerResource(h, mux, resource[Booking, BookingInput]{
		entity: EntityBookings, singular: "booking",
		list: h.store.ListBookings, get: h.store.GetBooking,
		create: h.store.CreateBooking, update: h.store.UpdateBooking, remove: h.store.DeleteBooking,
		id: func(v Booking) string { return v.ID },
	})
}

// resource binds one entity's store methods to its routes.
type resource[T, In any] struct {
	entity   string // plural, as in the URL
	singular string

	list   func(context.Context) ([]T, error)
	get    func(context.Context, string) (T, error)
	create func(context.Context, In, time.Time) (T, error)
	update func(context.Context, string, In, time.Time) (T, error)
	remove func(context.Context, string) error
	id     func(T) string
}

func registerResource[T, In any](h *Handler, mux *http.ServeMux, res resource[T, In]) {
	base := "/api/v1/" + res.entity
	read := res.entity + ".read"
	write := res.entity + ".write"

	mux.Handle("GET "+base, h.gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items, err := res.list(r.Context())
		if err != nil {
			h.writeStoreError(w, res.entity, "list", err)
			return
		}
		if items == nil {
			items = []T{}
		}
		httpjson.WriteJSON(w, http.StatusOK, map[string]any{res.entity: items})
	}), read))

	mux.Handle("GET "+base+"/{id}", h.gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := res.get(r.Context(), r.PathValue("id"))
		if err != nil {
			h.writeStoreError(w, res.entity, "get", err)
			return
		}
		httpjson.WriteJSON(w, http.StatusOK, map[string]any{res.singular: v})
	}), read))

	mux.Handle("POST "+base, h.gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := httpjson.DecodeJSON(w, r, h.maxBodyBytes, &in); err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		v, err := res.create(r.Context(), in, h.now())
		if err != nil {
			h.writeStoreError(w, res.entity, "create", err)
			return
		}
		h.changed(r, res.entity, res.id(v), feed.ActionCreated)
		httpjson.WriteJSON(w, http.StatusCreated, map[string]any{res.singular: v})
	}), write))

	mux.Handle("PUT "+base+"/{id}", h.gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in In
		if err := httpjson.DecodeJSON(w, r, h.maxBodyBytes, &in); err != nil {
			httpjson.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
			return
		}
		v, err := res.update(r.Context(), r.PathValue("id"), in, h.now())
		if err != nil {
			h.writeStoreError(w, res.entity, "update", err)
			return
		}
		h.changed(r, res.entity, res.id(v), feed.ActionUpdated)
		httpjson.WriteJSON(w, http.StatusOK, map[string]any{res.singular: v})
	}), write))

	mux.Handle("DELETE "+base+"/{id}", h.gate.Protect(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if err := res.remove(r.Context(), id); err != nil {
			h.writeStoreError(w, res.entity, "delete", err)
			return
		}
		h.changed(r, res.entity, id, feed.ActionDeleted)
		w.WriteHeader(http.StatusNoContent)
	}), write))
}

// changed publishes the feed event and audit record for a successful write.
func (h *Handler) changed(r *http.Request, entity, id, action string) {
	var actor string
	if ident, ok := gate.FromContext(r.Context()); ok {
		actor = ident.UserID
	}
	now := h.now().UTC()

	h.log.Info("catalog.write", "entity", entity, "id", id, "action", action, "user_id", actor)
	h.feed.Publish(feed.Event{
		Type:   feed.TypeCatalogChanged,
		Entity: entity,
		ID:     id,
		Action: action,
		Actor:  actor,
		At:     now,
	})
	h.audit.Record(r.Context(), audit.Event{
		Action:    "catalog." + entity + "." + action,
		ActorID:   actor,
		Target:    entity + "/" + id,
		IP:        httpjson.ClientIP(r, h.trustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, entity, op string, err error) {
	var opErr OpError
	var conflict ConflictError
	switch {
	case errors.As(err, &opErr) && IsInvalidInput(err):
		httpjson.WriteError(w, http.StatusBadRequest, "invalid_request", opErr.Msg)
	case IsNotFound(err):
		httpjson.WriteError(w, http.StatusNotFound, "not_found", "not found")
	case errors.As(err, &conflict):
		msg := conflict.Field + " already in use"
		if conflict.Field == "bookings" || conflict.Field == "suppliers" {
			msg = "still referenced by " + conflict.Field
		}
		httpjson.WriteError(w, http.StatusConflict, "conflict", msg)
	default:
		h.log.Error("catalog.store.fail", "entity", entity, "op", op, "err", err)
		httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
