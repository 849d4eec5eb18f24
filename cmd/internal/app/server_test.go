package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const (
	testAdminEmail    = "admin@tourdesk.test"
	testAdminPassword = "correct horse battery"
)

func testEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TOURDESK_TOKEN_SECRET", strings.Repeat("k", 32))
	t.Setenv("TOURDESK_ARGON2_MEMORY_KIB", "8192")
	t.Setenv("TOURDESK_ARGON2_ITERATIONS", "1")
}

func newTestServer(t *testing.T, mutate func(*Config)) *httptest.Server {
	t.Helper()
	testEnv(t)

	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.BootstrapAdminEmail = testAdminEmail
	cfg.BootstrapAdminPassword = testAdminPassword
	if mutate != nil {
		mutate(&cfg)
	}

	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url, bearer string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status=%d want=%d body=%s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, b)
	}
}

func TestServer_HealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("X-Content-Type-Options=%q", got)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Fatalf("missing %s", RequestIDHeader)
	}

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/readyz", "", nil), http.StatusOK)

	resp = doJSON(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	expectStatus(t, resp, http.StatusOK)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(body), "tourdesk_http_requests_total") {
		t.Fatalf("metrics output lacks request counter")
	}
}

func TestServer_ReadinessRequiresDB(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.ReadinessRequireDB = true
		c.MetricsEnabled = false
	})

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/readyz", "", nil), http.StatusServiceUnavailable)
	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/metrics", "", nil), http.StatusNotFound)
}

func TestServer_LoginThenManageCatalog(t *testing.T) {
	srv := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/auth/login", "", map[string]string{
		"email":    "Admin@TourDesk.test",
		"password": testAdminPassword,
	})
	expectStatus(t, resp, http.StatusOK)
	var login struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&login); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if login.Token == "" {
		t.Fatalf("empty token")
	}

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/auth/me", login.Token, nil), http.StatusOK)
	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/users", login.Token, nil), http.StatusOK)

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/v1/suppliers", login.Token, map[string]any{
		"name": "Lagoon Kayaks",
		"city": "Split",
	})
	expectStatus(t, resp, http.StatusCreated)
	var created struct {
		Supplier struct {
			ID   string `json:"id"`
			Slug string `json:"slug"`
		} `json:"supplier"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode supplier: %v", err)
	}
	if created.Supplier.Slug != "lagoon-kayaks" {
		t.Fatalf("slug=%q", created.Supplier.Slug)
	}

	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/suppliers/"+created.Supplier.ID, login.Token, nil), http.StatusOK)
	expectStatus(t, doJSON(t, http.MethodGet, srv.URL+"/api/v1/suppliers", "", nil), http.StatusUnauthorized)
}

func TestServer_RejectsForeignOrigin(t *testing.T) {
	srv := newTestServer(t, func(c *Config) {
		c.CORSAllowedOrigins = []string{"https://desk.tourdesk.test"}
	})

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/healthz", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Origin", "https://evil.test")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status=%d want=403", resp.StatusCode)
	}
}

func TestNew_RejectsWeakBootstrapPassword(t *testing.T) {
	testEnv(t)
	cfg := LoadConfig()
	cfg.DatabaseURL = ""
	cfg.BootstrapAdminEmail = testAdminEmail
	cfg.BootstrapAdminPassword = "short"

	_, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	if err == nil || !strings.Contains(err.Error(), "TOURDESK_BOOTSTRAP_ADMIN_PASSWORD") {
		t.Fatalf("err=%v", err)
	}
}

func TestNew_RequiresTokenSecret(t *testing.T) {
	testEnv(t)
	t.Setenv("TOURDESK_TOKEN_SECRET", "")

	if _, err := New(context.Background(), LoadConfig(), slog.New(slog.DiscardHandler)); err == nil {
		t.Fatalf("expected error without a token secret")
	}
}
