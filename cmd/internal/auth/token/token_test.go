package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef-test")

func newTestManager(t *testing.T, mut ...func(*Config)) *Manager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Secret = testSecret
	cfg.TTL = time.Hour
	for _, f := range mut {
		f(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func signRaw(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestIssueVerify_RoundTrip(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

	tok, exp, err := m.Issue(Subject{UserID: "01JUSER", Roles: []string{"agent"}}, now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("exp = %v, want %v", exp, now.Add(time.Hour))
	}

	c, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if c.UserID != "01JUSER" || len(c.Roles) != 1 || c.Roles[0] != "agent" {
		t.Fatalf("unexpected claims: %+v", c)
	}
	if !c.IssuedAt.Equal(now) || !c.ExpiresAt.Equal(exp) {
		t.Fatalf("times = %v/%v", c.IssuedAt, c.ExpiresAt)
	}
	if c.Issuer != "tourdesk" || c.ID == "" {
		t.Fatalf("issuer/jti = %q/%q", c.Issuer, c.ID)
	}
}

func TestIssue_UniqueTokenIDs(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()

	a, _, _ := m.Issue(Subject{UserID: "u"}, now)
	b, _, _ := m.Issue(Subject{UserID: "u"}, now)
	if a == b {
		t.Fatalf("two issues at the same instant produced identical tokens")
	}
}

func TestIssue_EmptySubject(t *testing.T) {
	m := newTestManager(t)
	if _, _, err := m.Issue(Subject{UserID: "  "}, time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestVerify_ExpiryBoundary(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tok, exp, _ := m.Issue(Subject{UserID: "u"}, now)

	if _, err := m.Verify(tok, exp.Add(-time.Second)); err != nil {
		t.Fatalf("one second before expiry: %v", err)
	}
	if _, err := m.Verify(tok, exp); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("at expiry: expected ErrExpiredToken, got %v", err)
	}
	if _, err := m.Verify(tok, exp.Add(24*time.Hour)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("after expiry: expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_ClockSkew(t *testing.T) {
	m := newTestManager(t, func(c *Config) { c.ClockSkew = 30 * time.Second })
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tok, exp, _ := m.Issue(Subject{UserID: "u"}, now)

	if _, err := m.Verify(tok, exp.Add(10*time.Second)); err != nil {
		t.Fatalf("within skew: %v", err)
	}
	if _, err := m.Verify(tok, exp.Add(30*time.Second)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("past skew: expected ErrExpiredToken, got %v", err)
	}
}

func TestVerify_BeforeIssuedAt(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	tok, _, _ := m.Issue(Subject{UserID: "u"}, now)

	if _, err := m.Verify(tok, now); err != nil {
		t.Fatalf("at issued-at: %v", err)
	}
	_, err := m.Verify(tok, now.Add(-time.Hour))
	if !errors.Is(err, ErrMalformedToken) {
		t.Fatalf("an hour before issued-at: expected ErrMalformedToken, got %v", err)
	}
	if errors.Is(err, ErrExpiredToken) {
		t.Fatalf("not-yet-valid token reported as expired: %v", err)
	}

	skewed := newTestManager(t, func(c *Config) { c.ClockSkew = 30 * time.Second })
	tok, _, _ = skewed.Issue(Subject{UserID: "u"}, now)
	if _, err := skewed.Verify(tok, now.Add(-10*time.Second)); err != nil {
		t.Fatalf("within skew of issued-at: %v", err)
	}
}

func TestVerify_Malformed(t *testing.T) {
	m := newTestManager(t)
	now := time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)
	good, _, _ := m.Issue(Subject{UserID: "u"}, now)

	registered := func(sub, iss string) jwt.RegisteredClaims {
		return jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    iss,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}
	}

	other := newTestManager(t, func(c *Config) { c.Secret = []byte(strings.Repeat("z", 40)) })
	foreign, _, _ := other.Issue(Subject{UserID: "u"}, now)

	cases := []struct {
		name string
		tok  string
	}{
		{"empty", ""},
		{"garbage", "not-a-jwt"},
		{"three junk segments", "a.b.c"},
		{"truncated", good[:len(good)-6]},
		{"tampered payload", tamper(good)},
		{"wrong secret", foreign},
		{"alg none", signRaw(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, wireClaims{RegisteredClaims: registered("u", "tourdesk")})},
		{"alg HS512", signRaw(t, jwt.SigningMethodHS512, testSecret, wireClaims{RegisteredClaims: registered("u", "tourdesk")})},
		{"wrong issuer", signRaw(t, jwt.SigningMethodHS256, testSecret, wireClaims{RegisteredClaims: registered("u", "someone-else")})},
		{"missing subject", signRaw(t, jwt.SigningMethodHS256, testSecret, wireClaims{RegisteredClaims: registered("", "tourdesk")})},
		{"missing expiry", signRaw(t, jwt.SigningMethodHS256, testSecret, wireClaims{RegisteredClaims: jwt.RegisteredClaims{
			Subject: "u", Issuer: "tourdesk", IssuedAt: jwt.NewNumericDate(now),
		}})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Verify(tc.tok, now.Add(time.Minute))
			if !errors.Is(err, ErrMalformedToken) {
				t.Fatalf("expected ErrMalformedToken, got %v", err)
			}
		})
	}
}

func TestVerify_Idempotent(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	tok, _, _ := m.Issue(Subject{UserID: "u", Roles: []string{"viewer"}}, now)

	first, err1 := m.Verify(tok, now)
	second, err2 := m.Verify(tok, now)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v / %v", err1, err2)
	}
	if first.ID != second.ID || first.UserID != second.UserID || !first.ExpiresAt.Equal(second.ExpiresAt) {
		t.Fatalf("verify is not idempotent: %+v vs %+v", first, second)
	}
}

// tamper flips one character in the payload segment.
func tamper(tok string) string {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 || len(parts[1]) < 2 {
		return tok + "x"
	}
	b := []byte(parts[1])
	if b[1] == 'A' {
		b[1] = 'B'
	} else {
		b[1] = 'A'
	}
	parts[1] = string(b)
	return strings.Join(parts, ".")
}
