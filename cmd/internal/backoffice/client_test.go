package backoffice

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const goodToken = "good-token"

type stubAPI struct {
	srv     *httptest.Server
	logouts atomic.Int32
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "unauthenticated", "message": "invalid token"}})
}

func newStubAPI(t *testing.T) *stubAPI {
	t.Helper()
	s := &stubAPI{}
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+goodToken {
				unauthorized(w)
				return
			}
			h(w, r)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["email"] != agent.Email || in["password"] != "correct horse" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": map[string]string{"code": "invalid_credentials", "message": "invalid credentials"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"token": goodToken, "expires_at": "2026-01-01T00:00:00Z", "user": agent})
	})
	mux.HandleFunc("GET /api/v1/auth/me", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": agent})
	}))
	mux.HandleFunc("POST /api/v1/auth/logout", authed(func(w http.ResponseWriter, r *http.Request) {
		s.logouts.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	mux.HandleFunc("GET /api/v1/permissions", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"permissions": []string{"bookings.read", "bookings.write"}})
	}))
	mux.HandleFunc("GET /api/v1/roles/{id}/permissions", authed(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "agent" {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": map[string]string{"code": "not_found", "message": "role not found"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"role": "agent", "permissions": []string{"bookings.read"}})
	}))
	mux.HandleFunc("GET /api/v1/users", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"users": []map[string]any{
			{"id": agent.ID, "email": agent.Email, "display_name": "Booking Agent", "roles": []string{"agent"}},
			{"id": "u-2", "email": "old@tourdesk.test", "roles": []string{}, "disabled": true},
		}})
	}))
	mux.HandleFunc("GET /api/v1/roles", authed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": map[string]string{"code": "forbidden", "message": "missing permission permissions.read"}})
	}))

	s.srv = httptest.NewServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

func newTestClient(t *testing.T, baseURL string, store TokenStore) *Client {
	t.Helper()
	c, err := NewClient(baseURL, NewSession(store))
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient("ftp://x", NewSession(nil))
	require.Error(t, err)
	_, err = NewClient("http://", NewSession(nil))
	require.Error(t, err)
	_, err = NewClient("http://localhost:8080/", nil)
	require.Error(t, err)
}

func TestClient_LoginAndQueries(t *testing.T) {
	api := newStubAPI(t)
	store := &MemoryTokenStore{}
	c := newTestClient(t, api.srv.URL, store)
	ctx := context.Background()

	_, err := c.Login(ctx, agent.Email, "wrong")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid_credentials", apiErr.Code)
	assert.Equal(t, StateLoading, c.Session().State())

	u, err := c.Login(ctx, agent.Email, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, agent.ID, u.ID)
	assert.Equal(t, StateAuthenticated, c.Session().State())
	persisted, _ := store.Load()
	assert.Equal(t, goodToken, persisted)

	perms, err := c.GetAllPermissions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"bookings.read", "bookings.write"}, perms)

	perms, err = c.GetPermissionsByRole(ctx, "agent")
	require.NoError(t, err)
	assert.Equal(t, []string{"bookings.read"}, perms)

	_, err = c.GetPermissionsByRole(ctx, "ghost")
	require.Error(t, err)
	assert.Equal(t, StateAuthenticated, c.Session().State(), "404 must not end the session")

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, agent.Email, users[0].Email)
	assert.Equal(t, []string{"agent"}, users[0].Roles)
	assert.True(t, users[1].Disabled)

	_, err = c.ListRoles(ctx)
	assert.True(t, IsForbidden(err))
	assert.Equal(t, StateAuthenticated, c.Session().State(), "403 must not end the session")

	require.NoError(t, c.Logout(ctx))
	assert.Equal(t, int32(1), api.logouts.Load())
	assert.Equal(t, StateUnauthenticated, c.Session().State())
	persisted, _ = store.Load()
	assert.Empty(t, persisted)

	_, err = c.GetAllPermissions(ctx)
	assert.True(t, IsUnauthenticated(err))
}

func TestClient_401EndsSession(t *testing.T) {
	api := newStubAPI(t)
	store := &MemoryTokenStore{}
	c := newTestClient(t, api.srv.URL, store)
	require.NoError(t, c.Session().Login("revoked", agent))

	_, err := c.Me(context.Background())
	require.True(t, IsUnauthenticated(err))
	assert.Equal(t, StateUnauthenticated, c.Session().State())
	persisted, _ := store.Load()
	assert.Empty(t, persisted)
}

func TestClient_RestoreSession(t *testing.T) {
	api := newStubAPI(t)

	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(goodToken))
	c := newTestClient(t, api.srv.URL, store)
	require.NoError(t, c.RestoreSession(context.Background()))
	assert.Equal(t, StateAuthenticated, c.Session().State())

	stale := &MemoryTokenStore{}
	require.NoError(t, stale.Save("stale"))
	c = newTestClient(t, api.srv.URL, stale)
	require.NoError(t, c.RestoreSession(context.Background()))
	assert.Equal(t, StateUnauthenticated, c.Session().State())
	persisted, _ := stale.Load()
	assert.Empty(t, persisted)
}

func TestClient_RestoreSessionTransportFailureKeepsToken(t *testing.T) {
	api := newStubAPI(t)
	url := api.srv.URL
	api.srv.Close()

	store := &MemoryTokenStore{}
	require.NoError(t, store.Save(goodToken))
	c := newTestClient(t, url, store)

	err := c.RestoreSession(context.Background())
	require.Error(t, err)
	assert.True(t, IsTransport(err))
	assert.Equal(t, StateUnauthenticated, c.Session().State())
	persisted, _ := store.Load()
	assert.Equal(t, goodToken, persisted)
}

func TestClient_Late401ForReplacedTokenKeepsSession(t *testing.T) {
	arrived := make(chan struct{})
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/permissions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer old" {
			close(arrived)
			<-release
		}
		unauthorized(w)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	store := &MemoryTokenStore{}
	c := newTestClient(t, srv.URL, store)
	require.NoError(t, c.Session().Login("old", agent))

	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetAllPermissions(context.Background())
		errCh <- err
	}()

	<-arrived
	require.NoError(t, c.Session().Logout())
	other := User{ID: "01HUSER2", Email: "second@tourdesk.test", Roles: []string{"viewer"}}
	require.NoError(t, c.Session().Login("new", other))
	close(release)

	err := <-errCh
	require.True(t, IsUnauthenticated(err))
	assert.Equal(t, StateAuthenticated, c.Session().State())
	assert.Equal(t, "new", c.Session().Token())
	persisted, _ := store.Load()
	assert.Equal(t, "new", persisted)
	u, ok := c.Session().User()
	require.True(t, ok)
	assert.Equal(t, other.Email, u.Email)
}
