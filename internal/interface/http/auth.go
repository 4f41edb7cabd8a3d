package http

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/alem-hub/proximity-attendance/internal/domain/attendance"
	"github.com/alem-hub/proximity-attendance/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BEARER TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// ErrInvalidToken is returned for missing, malformed, forged or expired tokens.
var ErrInvalidToken = shared.NewDomainError("identity", "VerifyToken", shared.ErrUnauthorized, "invalid or expired token")

type personClaims struct {
	Name string          `json:"name"`
	Role attendance.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer signs HS256 tokens naming the acting person.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the clock used for issuing and expiry checks.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTokenIssuer creates an issuer. Tokens are valid for ttl.
func NewTokenIssuer(secret, issuer string, ttl time.Duration, opts ...TokenOption) *TokenIssuer {
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Issue signs a token for p and returns it with its expiry.
func (t *TokenIssuer) Issue(p attendance.Person) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := personClaims{
		Name: p.Name,
		Role: p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   p.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks signature, issuer and expiry and returns the person.
func (t *TokenIssuer) Verify(raw string) (attendance.Person, error) {
	var claims personClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return attendance.Person{}, shared.WrapError("identity", "VerifyToken", shared.ErrUnauthorized, "invalid or expired token", err)
	}
	if claims.Subject == "" || !claims.Role.IsValid() {
		return attendance.Person{}, ErrInvalidToken
	}
	return attendance.Person{ID: claims.Subject, Name: claims.Name, Role: claims.Role}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CALLER CONTEXT
// ══════════════════════════════════════════════════════════════════════════════

type callerKey struct{}

func withCaller(ctx context.Context, p attendance.Person) context.Context {
	return context.WithValue(ctx, callerKey{}, p)
}

// callerFrom returns the authenticated person. Handlers behind
// requireAuth can rely on it being present.
func callerFrom(ctx context.Context) (attendance.Person, bool) {
	p, ok := ctx.Value(callerKey{}).(attendance.Person)
	return p, ok
}
