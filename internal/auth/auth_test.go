package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/testutil"
)

func newDeviceVerifier(t *testing.T) *HMACVerifier {
	v, err := NewHMACVerifier("gate-secret", "marketplace-gate")
	require.NoError(t, err)
	return v
}

func TestHMACVerifierRoundTrip(t *testing.T) {
	v := newDeviceVerifier(t)
	token, err := v.Issue("gate-7", []string{RoleModerator}, time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "gate-7", id.UserID)
	assert.True(t, id.HasRole(RoleModerator))
	assert.False(t, id.Privileged())
	assert.NotEmpty(t, id.TokenID)
}

func TestHMACVerifierRejects(t *testing.T) {
	v := newDeviceVerifier(t)
	other, err := NewHMACVerifier("other-secret", "marketplace-gate")
	require.NoError(t, err)
	foreign, err := other.Issue("gate-7", nil, time.Hour)
	require.NoError(t, err)
	expired, err := v.Issue("gate-7", nil, -time.Minute)
	require.NoError(t, err)
	wrongIssuer, err := (&HMACVerifier{secret: []byte("gate-secret"), issuer: "elsewhere"}).Issue("gate-7", nil, time.Hour)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"foreign secret": foreign,
		"expired":        expired,
		"wrong issuer":   wrongIssuer,
		"garbage":        "not-a-jwt",
	} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}

	_, err = NewHMACVerifier("", "")
	assert.Error(t, err)
}

func TestChainFallsThrough(t *testing.T) {
	first, err := NewHMACVerifier("first", "")
	require.NoError(t, err)
	second := newDeviceVerifier(t)
	token, err := second.Issue("gate-1", nil, time.Hour)
	require.NoError(t, err)

	id, err := Chain{first, second}.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "gate-1", id.UserID)

	_, err = Chain{}.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "Basic abc")
	_, err = ExtractTokenFromRequest(r)
	assert.Error(t, err)

	r.Header.Set("Authorization", "bearer abc")
	token, err := ExtractTokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	v := newDeviceVerifier(t)
	client, _ := testutil.NewRedis(t)
	revocations := NewRevocations(client)

	var seen *Identity
	handler := Authenticate(v, revocations, logger.NewNop())(RequireRole(RoleModerator, RoleAdmin)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		})))

	call := func(token string) int {
		r := httptest.NewRequest(http.MethodGet, "/scans", nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, r)
		return rec.Code
	}

	moderator, err := v.Issue("mod-1", []string{RoleModerator}, time.Hour)
	require.NoError(t, err)
	buyer, err := v.Issue("user-1", []string{RoleBuyer}, time.Hour)
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, call(""))
	assert.Equal(t, http.StatusUnauthorized, call("junk"))
	assert.Equal(t, http.StatusForbidden, call(buyer))
	assert.Equal(t, http.StatusNoContent, call(moderator))
	require.NotNil(t, seen)
	assert.Equal(t, "mod-1", seen.UserID)

	id, err := v.Verify(context.Background(), moderator)
	require.NoError(t, err)
	require.NoError(t, revocations.Revoke(context.Background(), id.TokenID, time.Now().Add(time.Hour)))
	assert.Equal(t, http.StatusUnauthorized, call(moderator))
}

func TestRevokeAfterExpiryIsNoop(t *testing.T) {
	client, mr := testutil.NewRedis(t)
	revocations := NewRevocations(client)

	require.NoError(t, revocations.Revoke(context.Background(), "jti-1", time.Now().Add(-time.Minute)))
	assert.False(t, mr.Exists(revokedPrefix+"jti-1"))

	require.NoError(t, revocations.Revoke(context.Background(), "jti-2", time.Now().Add(time.Minute)))
	gone, err := revocations.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.True(t, gone)

	mr.FastForward(2 * time.Minute)
	gone, err = revocations.IsRevoked(context.Background(), "jti-2")
	require.NoError(t, err)
	assert.False(t, gone)
}

func TestUserIDAnonymous(t *testing.T) {
	assert.Equal(t, "", UserID(context.Background()))
	ctx := WithIdentity(context.Background(), &Identity{UserID: "u-1", Roles: []string{RoleAdmin}})
	assert.Equal(t, "u-1", UserID(ctx))
	assert.True(t, FromContext(ctx).Privileged())
}
