package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"tourdesk/cmd/identity"
	"tourdesk/cmd/internal/audit"
	"tourdesk/cmd/internal/auth/gate"
	"tourdesk/cmd/internal/auth/token"
	"tourdesk/cmd/internal/httpjson"
	"tourdesk/cmd/security/password"
)

const (
	agentEmail    = "agent@tourdesk.test"
	agentPassword = "santorini-sunset-42"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	srv    *httptest.Server
	store  *identity.MemoryStore
	audit  *audit.MemoryRecorder
	clock  *testClock
	userID string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	hasher := password.DefaultHasher()
	hasher.Params.MemoryKiB = 8 * 1024
	hasher.Params.Iterations = 1
	hasher.Params.Parallelism = 1

	store := identity.NewMemoryStore()
	creds, err := identity.NewCredentials(store, hasher)
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}

	u, err := creds.CreateUser(context.Background(), identity.CreateUserInput{
		Email:       agentEmail,
		DisplayName: "Booking Agent",
		Password:    agentPassword,
		Roles:       []string{identity.RoleAgent},
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	tcfg := token.DefaultConfig()
	tcfg.Secret = []byte(strings.Repeat("t", 32))
	tcfg.TTL = time.Hour
	tokens, err := token.NewManager(tcfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	clock := &testClock{now: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := gate.New(tokens, NewResolver(store), gate.WithClock(clock.Now), gate.WithLogger(log))

	rec := &audit.MemoryRecorder{}
	h, err := NewHandler(log, cfg, store, creds, tokens, g, WithAuditRecorder(rec), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return &fixture{srv: srv, store: store, audit: rec, clock: clock, userID: u.ID}
}

func testConfig() Config {
	return Config{MaxBodyBytes: 4096, LoginPerMinute: 60, LoginBurst: 20, LoginLimiterIdle: time.Minute}
}

func (f *fixture) do(t *testing.T, method, path, bearer string, body any) *http.Response {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := f.srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("status=%d want=%d body=%s", resp.StatusCode, want, raw)
	}
}

func expectErrorCode(t *testing.T, resp *http.Response, want string) {
	t.Helper()
	if got := decode[httpjson.ErrorResponse](t, resp).Error.Code; got != want {
		t.Fatalf("error code=%q want=%q", got, want)
	}
}

func (f *fixture) login(t *testing.T) loginResponse {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: agentEmail, Password: agentPassword})
	expectStatus(t, resp, http.StatusOK)
	return decode[loginResponse](t, resp)
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t, testConfig())

	out := f.login(t)
	if out.Token == "" {
		t.Fatalf("empty token")
	}
	if want := f.clock.Now().Add(time.Hour); !out.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt=%v want=%v", out.ExpiresAt, want)
	}
	if out.User.ID != f.userID {
		t.Fatalf("user id=%q want=%q", out.User.ID, f.userID)
	}
	if !slices.Equal(out.User.Roles, []string{identity.RoleAgent}) {
		t.Fatalf("roles=%v", out.User.Roles)
	}
	if !slices.Contains(out.User.Permissions, string(identity.PermBookingsWrite)) {
		t.Fatalf("agent should hold %s: %v", identity.PermBookingsWrite, out.User.Permissions)
	}
	if slices.Contains(out.User.Permissions, string(identity.PermSuppliersWrite)) {
		t.Fatalf("agent must not hold %s", identity.PermSuppliersWrite)
	}
	if got := f.audit.Actions(); !slices.Equal(got, []string{"auth.login.success"}) {
		t.Fatalf("audit=%v", got)
	}
}

func TestLogin_UniformFailure(t *testing.T) {
	f := newFixture(t, testConfig())

	disabled, err := f.store.CreateUser(context.Background(), identity.NewUser{
		Email: "gone@tourdesk.test", PasswordHash: "$argon2id$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$a2V5a2V5a2V5a2V5a2V5a2V5",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := f.store.SetDisabled(context.Background(), disabled.ID, true); err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}

	cases := []loginRequest{
		{Email: agentEmail, Password: "wrong-password-123"},
		{Email: "nobody@tourdesk.test", Password: agentPassword},
		{Email: "gone@tourdesk.test", Password: agentPassword},
	}
	var bodies []string
	for _, c := range cases {
		resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", c)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("%s: status=%d", c.Email, resp.StatusCode)
		}
		raw, _ := io.ReadAll(resp.Body)
		bodies = append(bodies, string(raw))
	}
	if bodies[0] != bodies[1] {
		t.Fatalf("unknown email distinguishable from bad password:\n%s\n%s", bodies[0], bodies[1])
	}
	if bodies[0] != bodies[2] {
		t.Fatalf("disabled account distinguishable from bad password:\n%s\n%s", bodies[0], bodies[2])
	}
	if !strings.Contains(bodies[0], `"invalid_credentials"`) {
		t.Fatalf("body=%s", bodies[0])
	}
}

func TestLogin_BadRequests(t *testing.T) {
	f := newFixture(t, testConfig())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"not json", "email=a", "invalid_json"},
		{"unknown field", `{"email":"a@b.co","password":"x","remember":true}`, "invalid_json"},
		{"trailing data", `{"email":"a@b.co","password":"x"} {}`, "invalid_json"},
		{"missing password", `{"email":"a@b.co"}`, "invalid_request"},
		{"blank email", `{"email":"   ","password":"x"}`, "invalid_request"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", tc.body)
			expectStatus(t, resp, http.StatusBadRequest)
			expectErrorCode(t, resp, tc.code)
		})
	}
}

func TestLogin_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LoginPerMinute = 1
	cfg.LoginBurst = 2
	f := newFixture(t, cfg)

	bad := loginRequest{Email: agentEmail, Password: "wrong-password-123"}
	for i := 0; i < 2; i++ {
		expectStatus(t, f.do(t, http.MethodPost, "/api/v1/auth/login", "", bad), http.StatusUnauthorized)
	}

	resp := f.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Email: agentEmail, Password: agentPassword})
	expectStatus(t, resp, http.StatusTooManyRequests)
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	expectErrorCode(t, resp, "rate_limited")

	f.clock.Advance(time.Minute)
	f.login(t)
}

func TestMe(t *testing.T) {
	f := newFixture(t, testConfig())
	tok := f.login(t).Token

	resp := f.do(t, http.MethodGet, "/api/v1/auth/me", tok, nil)
	expectStatus(t, resp, http.StatusOK)
	me := decode[meResponse](t, resp)
	if me.User.ID != f.userID || me.User.Email != agentEmail || me.User.DisplayName != "Booking Agent" {
		t.Fatalf("me=%+v", me.User)
	}

	t.Run("no token", func(t *testing.T) {
		resp := f.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
		expectStatus(t, resp, http.StatusUnauthorized)
		expectErrorCode(t, resp, "unauthenticated")
	})

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(2 * time.Hour)
		t.Cleanup(func() { f.clock.Advance(-2 * time.Hour) })
		expectStatus(t, f.do(t, http.MethodGet, "/api/v1/auth/me", tok, nil), http.StatusUnauthorized)
	})

	t.Run("disabled after login", func(t *testing.T) {
		if err := f.store.SetDisabled(context.Background(), f.userID, true); err != nil {
			t.Fatalf("SetDisabled: %v", err)
		}
		t.Cleanup(func() { _ = f.store.SetDisabled(context.Background(), f.userID, false) })
		expectStatus(t, f.do(t, http.MethodGet, "/api/v1/auth/me", tok, nil), http.StatusUnauthorized)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t, testConfig())
	tok := f.login(t).Token

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/auth/logout", tok, nil), http.StatusNoContent)
	if got, want := f.audit.Actions(), []string{"auth.login.success", "auth.logout"}; !slices.Equal(got, want) {
		t.Fatalf("audit=%v want=%v", got, want)
	}

	expectStatus(t, f.do(t, http.MethodPost, "/api/v1/auth/logout", "", nil), http.StatusUnauthorized)
}

func TestRoutes_MethodMismatch(t *testing.T) {
	f := newFixture(t, testConfig())
	expectStatus(t, f.do(t, http.MethodGet, "/api/v1/auth/login", "", nil), http.StatusMethodNotAllowed)
}

func TestResolver(t *testing.T) {
	store := identity.NewMemoryStore()
	u, err := store.CreateUser(context.Background(), identity.NewUser{Email: "v@tourdesk.test", PasswordHash: "h", Roles: []string{identity.RoleViewer}})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	r := NewResolver(store)
	id, err := r.ResolveIdentity(context.Background(), token.Claims{UserID: u.ID})
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if !id.Has(string(identity.PermBookingsRead)) {
		t.Fatalf("viewer should read bookings")
	}
	if id.Has(string(identity.PermBookingsWrite)) {
		t.Fatalf("viewer must not write bookings")
	}

	if _, err := r.ResolveIdentity(context.Background(), token.Claims{UserID: "missing"}); !errors.Is(err, gate.ErrUnknownSubject) {
		t.Fatalf("err=%v want ErrUnknownSubject", err)
	}
}
