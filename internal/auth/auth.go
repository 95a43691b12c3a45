// Package auth verifies access tokens and decides whether a principal may act
// at a given permission level.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer = "auctora"

	// CookieName carries the token for browser clients.
	CookieName = "access_token"
)

// Level is the permission a route requires.
type Level int

const (
	LevelAll Level = iota
	LevelAuthenticated
	LevelClient
	LevelAdmin
)

func (l Level) String() string {
	switch l {
	case LevelAll:
		return "ALL"
	case LevelAuthenticated:
		return "AUTHENTICATED"
	case LevelClient:
		return "CLIENT"
	case LevelAdmin:
		return "ADMIN"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// Principal is the verified caller.
type Principal struct {
	UserID   string      `json:"user_id"`
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == models.RoleAdmin }

// Claims is the token body.
type Claims struct {
	Email    string      `json:"email"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

var methods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Verifier checks HMAC-signed tokens.
type Verifier struct {
	secret []byte
	method jwt.SigningMethod
	now    func() time.Time
}

// NewVerifier builds a verifier for secret and algorithm (HS256 when empty).
func NewVerifier(secret, algorithm string) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: secret is required")
	}
	if algorithm == "" {
		algorithm = "HS256"
	}
	m, ok := methods[strings.ToUpper(algorithm)]
	if !ok {
		return nil, fmt.Errorf("auth: unsupported algorithm %q", algorithm)
	}
	return &Verifier{secret: []byte(secret), method: m, now: time.Now}, nil
}

// WithClock overrides the time source. Used by tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// Issue signs a token for p. Login lives outside this service; Issue serves
// development seeding and tests.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	if strings.TrimSpace(p.UserID) == "" {
		return "", errors.New("auth: user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be positive")
	}
	now := v.now().UTC()
	claims := Claims{
		Email:    p.Email,
		Username: p.Username,
		Role:     p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(v.method, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token and returns its principal. Every failure is
// ErrUnauthenticated.
func (v *Verifier) Verify(token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("auth: %w - missing token", biddingerrors.ErrUnauthenticated)
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != v.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return v.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Principal{}, fmt.Errorf("auth: %w - %v", biddingerrors.ErrUnauthenticated, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return Principal{}, fmt.Errorf("auth: %w - invalid claims", biddingerrors.ErrUnauthenticated)
	}
	return Principal{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Username: claims.Username,
		Role:     claims.Role,
	}, nil
}

// TokenFromRequest reads a bearer header first, then the access cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(CookieName); err == nil {
		return c.Value
	}
	return ""
}

// Authorize checks actor against level. A non-empty ownerID additionally
// restricts the action to that user; admins pass every check.
func Authorize(actor *Principal, level Level, ownerID string) error {
	if level == LevelAll {
		return nil
	}
	if actor == nil {
		return fmt.Errorf("auth: %w", biddingerrors.ErrUnauthenticated)
	}
	if actor.IsAdmin() {
		return nil
	}
	switch level {
	case LevelAdmin:
		return fmt.Errorf("auth: %w - admin only", biddingerrors.ErrForbidden)
	case LevelClient:
		if actor.Role != models.RoleClient {
			return fmt.Errorf("auth: %w - clients only", biddingerrors.ErrForbidden)
		}
	}
	if ownerID != "" && ownerID != actor.UserID {
		return fmt.Errorf("auth: %w - not the owner", biddingerrors.ErrForbidden)
	}
	return nil
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
