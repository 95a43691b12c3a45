package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	"auction-engine/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func verifier(t *testing.T, secret string) *Verifier {
	t.Helper()
	v, err := NewVerifier(secret, "HS256")
	require.NoError(t, err)
	return v.WithClock(func() time.Time { return now })
}

func TestIssueAndVerify(t *testing.T) {
	t.Parallel()

	v := verifier(t, "s3cret")
	alice := Principal{UserID: "u1", Email: "alice@x", Username: "alice", Role: models.RoleClient}
	token, err := v.Issue(alice, 30*time.Minute)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, alice, got)

	v.WithClock(func() time.Time { return now.Add(31 * time.Minute) })
	_, err = v.Verify(token)
	require.ErrorIs(t, err, biddingerrors.ErrUnauthenticated)
}

func TestVerifyRejects(t *testing.T) {
	t.Parallel()

	v := verifier(t, "s3cret")
	other := verifier(t, "other")
	foreign, err := other.Issue(Principal{UserID: "u1"}, time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer, Subject: "u1"},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	wrongIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", Subject: "u1", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: "  "},
		{name: "garbage", token: "not.a.token"},
		{name: "foreign_secret", token: foreign},
		{name: "alg_none", token: unsigned},
		{name: "no_expiry", token: noExpiry},
		{name: "wrong_issuer", token: wrongIssuer},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := v.Verify(tc.token)
			require.ErrorIs(t, err, biddingerrors.ErrUnauthenticated)
		})
	}
}

func TestNewVerifier(t *testing.T) {
	t.Parallel()

	_, err := NewVerifier("", "HS256")
	require.Error(t, err)
	_, err = NewVerifier("k", "RS256")
	require.Error(t, err)
	v, err := NewVerifier("k", "")
	require.NoError(t, err)
	require.Equal(t, "HS256", v.method.Alg())
}

func TestTokenFromRequest(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	require.Empty(t, TokenFromRequest(r))

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "from-cookie"})
	require.Equal(t, "from-cookie", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer from-header")
	require.Equal(t, "from-header", TokenFromRequest(r))

	r.Header.Set("Authorization", "Basic abc")
	require.Equal(t, "from-cookie", TokenFromRequest(r))
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	client := &Principal{UserID: "u1", Role: models.RoleClient}
	admin := &Principal{UserID: "root", Role: models.RoleAdmin}
	tests := []struct {
		name    string
		actor   *Principal
		level   Level
		owner   string
		wantErr error
	}{
		{name: "anonymous_all", level: LevelAll},
		{name: "anonymous_authenticated", level: LevelAuthenticated, wantErr: biddingerrors.ErrUnauthenticated},
		{name: "client_authenticated", actor: client, level: LevelAuthenticated},
		{name: "client_client", actor: client, level: LevelClient},
		{name: "client_admin", actor: client, level: LevelAdmin, wantErr: biddingerrors.ErrForbidden},
		{name: "client_owner", actor: client, level: LevelClient, owner: "u1"},
		{name: "client_not_owner", actor: client, level: LevelClient, owner: "u2", wantErr: biddingerrors.ErrForbidden},
		{name: "admin_not_owner", actor: admin, level: LevelClient, owner: "u2"},
		{name: "admin_admin", actor: admin, level: LevelAdmin},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Authorize(tc.actor, tc.level, tc.owner)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	require.False(t, ok)

	p := Principal{UserID: "u1"}
	got, ok := FromContext(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	require.Equal(t, p, got)
	require.Equal(t, "CLIENT", LevelClient.String())
}
