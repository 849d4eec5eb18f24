// Package access exposes the read-only role and permission catalogue and
// the staff account listing.
package access

import (
	"log/slog"
	"net/http"
	"time"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/httpjson"
)

// Handler serves /api/v1/permissions, /api/v1/roles and /api/v1/users.
type Handler struct {
	log   *slog.Logger
	store identity.Store
	gate  *gate.Gate
}

// NewHandler returns a Handler. Catalogue routes require permissions.read;
// the user listing requires users.read.
func NewHandler(log *slog.Logger, store identity.Store, g *gate.Gate) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, store: store, gate: g}
}

// Register wires routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	perm := string(identity.PermPermissionsRead)
	mux.Handle("GET /api/v1/permissions", h.gate.Protect(http.HandlerFunc(h.handleListPermissions), perm))
	mux.Handle("GET /api/v1/roles", h.gate.Protect(http.HandlerFunc(h.handleListRoles), perm))
	mux.Handle("GET /api/v1/roles/{id}/permissions", h.gate.Protect(http.HandlerFunc(h.handleRolePermissions), perm))
	mux.Handle("GET /api/v1/users", h.gate.Protect(http.HandlerFunc(h.handleListUsers), string(identity.PermUsersRead)))
}

type permissionsResponse struct {
	Permissions []string `json:"permissions"`
}

type roleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

type rolesResponse struct {
	Roles []roleResponse `json:"roles"`
}

type rolePermissionsResponse struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

type userResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Roles       []string  `json:"roles"`
	Disabled    bool      `json:"disabled"`
	CreatedAt   time.Time `json:"created_at"`
}

type usersResponse struct {
	Users []userResponse `json:"users"`
}

func (h *Handler) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.store.ListPermissions(r.Context())
	if err != nil {
		h.internal(w, "access.permissions.list.fail", err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, permissionsResponse{Permissions: toStrings(perms)})
}

func (h *Handler) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.internal(w, "access.roles.list.fail", err)
		return
	}
	out := rolesResponse{Roles: make([]roleResponse, 0, len(roles))}
	for _, role := range roles {
		out.Roles = append(out.Roles, roleResponse{ID: role.ID, Name: role.Name, Permissions: toStrings(role.Permissions)})
	}
	httpjson.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleRolePermissions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if identity.IsNotFound(err) {
			httpjson.WriteError(w, http.StatusNotFound, "not_found", "role not found")
			return
		}
		h.internal(w, "access.role.get.fail", err)
		return
	}
	httpjson.WriteJSON(w, http.StatusOK, rolePermissionsResponse{Role: role.ID, Permissions: toStrings(role.Permissions)})
}

// handleListUsers never exposes password hashes.
func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.internal(w, "access.users.list.fail", err)
		return
	}
	out := usersResponse{Users: make([]userResponse, 0, len(users))}
	for _, u := range users {
		roles := u.Roles
		if roles == nil {
			roles = []string{}
		}
		out.Users = append(out.Users, userResponse{
			ID:          u.ID,
			Email:       u.Email,
			DisplayName: u.DisplayName,
			Roles:       roles,
			Disabled:    u.Disabled,
			CreatedAt:   u.CreatedAt,
		})
	}
	httpjson.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) internal(w http.ResponseWriter, event string, err error) {
	h.log.Error(event, "err", err)
	httpjson.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
}

func toStrings(perms []identity.Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
