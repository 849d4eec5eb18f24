package token

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Subject is what gets embedded in a token at login.
type Subject struct {
	UserID string
	Roles  []string
}

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	Roles     []string
	ID        string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Manager issues and verifies tokens. It holds only immutable configuration
// and is safe for concurrent use.
type Manager struct {
	secret    []byte
	issuer    string
	ttl       time.Duration
	clockSkew time.Duration
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		secret:    slices.Clone(cfg.Secret),
		issuer:    cfg.Issuer,
		ttl:       cfg.TTL,
		clockSkew: cfg.ClockSkew,
	}, nil
}

// TTL returns the configured token lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Issue signs a token for sub valid from now until now+TTL.
// The returned expiry is the one embedded in the token (second precision).
func (m *Manager) Issue(sub Subject, now time.Time) (string, time.Time, error) {
	if strings.TrimSpace(sub.UserID) == "" {
		return "", time.Time{}, fmt.Errorf("token: empty subject")
	}
	if now.IsZero() {
		now = time.Now()
	}

	iat := jwt.NewNumericDate(now)
	exp := jwt.NewNumericDate(now.Add(m.ttl))

	claims := wireClaims{
		Roles: slices.Clone(sub.Roles),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			Issuer:    m.issuer,
			IssuedAt:  iat,
			ExpiresAt: exp,
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, exp.Time.UTC(), nil
}

// Verify checks signature, algorithm, issuer, issued-at and expiry as of now.
//
// It returns ErrExpiredToken when now is at or past the expiry (plus clock
// skew) and ErrMalformedToken for anything else that fails, including a token
// presented before its own issued-at.
func (m *Manager) Verify(tokenStr string, now time.Time) (Claims, error) {
	if now.IsZero() {
		now = time.Now()
	}

	// A fresh parser per call keeps the supplied clock local to this verification.
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	var wc wireClaims
	tok, err := p.ParseWithClaims(tokenStr, &wc, func(*jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenInvalidIssuer) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if !tok.Valid || strings.TrimSpace(wc.Subject) == "" || wc.IssuedAt == nil {
		return Claims{}, ErrMalformedToken
	}

	return Claims{
		UserID:    wc.Subject,
		Roles:     wc.Roles,
		ID:        wc.ID,
		Issuer:    wc.Issuer,
		IssuedAt:  wc.IssuedAt.Time.UTC(),
		ExpiresAt: wc.ExpiresAt.Time.UTC(),
	}, nil
}
