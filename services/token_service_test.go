package services

import (
	"context"
	"testing"
	"time"

	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTokenService(t *testing.T, db *gorm.DB) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(db, testutil.TestConfig())
	require.NoError(t, err)
	return tokens
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService(nil, &config.Config{JWTIssuer: "iss", JWTAudience: "aud"})
	assert.Error(t, err)
}

func TestIssueAndParseToken(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "Bob", models.RoleDistributor)
	tokens := newTokenService(t, db)

	pair, err := tokens.IssuePair(user)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(3600), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	claims, err := tokens.ParseToken(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	userID, err := SubjectUserID(claims)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
	assert.NotEmpty(t, claims.RegisteredClaims.ID)

	custom, ok := claims.CustomClaims.(*TokenClaims)
	require.True(t, ok)
	assert.Equal(t, models.RoleDistributor, custom.Role)
	assert.Equal(t, TokenAccess, custom.TokenType)
	assert.Equal(t, user.Email, custom.Email)
}

func TestParseToken_Rejections(t *testing.T) {
	db := testutil.NewTestDB(t)
	user := testutil.CreateUser(t, db, "Bob", models.RoleCustomer)
	tokens := newTokenService(t, db)

	otherCfg := testutil.TestConfig()
	otherCfg.JWTSecret = "a-completely-different-signing-secret"
	forger, err := NewTokenService(db, otherCfg)
	require.NoError(t, err)
	forged, err := forger.IssuePair(user)
	require.NoError(t, err)

	expiredIssuer := newTokenService(t, db)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.IssuePair(user)
	require.NoError(t, err)

	tests := map[string]string{
		"garbage":      "not.a.token",
		"wrong secret": forged.AccessToken,
		"expired":      expired.AccessToken,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := tokens.ParseToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestRefresh(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "Bob", models.RoleCustomer)
	tokens := newTokenService(t, db)

	pair, err := tokens.IssuePair(user)
	require.NoError(t, err)

	_, _, err = tokens.Refresh(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "access tokens cannot be used to refresh")

	refreshed, refreshedUser, err := tokens.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, refreshedUser.ID)
	assert.NotEmpty(t, refreshed.AccessToken)

	_, _, err = tokens.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized, "refresh tokens are single use")

	_, err = NewUserService(db).SetStatus(ctx, user.ID, models.UserStatusSuspended)
	require.NoError(t, err)
	_, _, err = tokens.Refresh(ctx, refreshed.RefreshToken)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCurrentUser(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "Ada", models.RoleAdmin)
	users := NewUserService(db)
	tokens := newTokenService(t, db)

	earlier := newTokenService(t, db)
	earlier.now = func() time.Time { return time.Now().Add(-10 * time.Minute) }
	stale, err := earlier.IssuePair(admin)
	require.NoError(t, err)
	staleClaims, err := tokens.ParseToken(ctx, stale.AccessToken)
	require.NoError(t, err)

	current, err := tokens.CurrentUser(ctx, staleClaims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, current.Role)

	_, err = users.SetRole(ctx, admin.ID, models.RoleCustomer)
	require.NoError(t, err)
	current, err = tokens.CurrentUser(ctx, staleClaims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, current.Role, "the role comes from the user record, not the token")

	_, err = users.RevokeSessions(ctx, admin.ID)
	require.NoError(t, err)
	_, err = tokens.CurrentUser(ctx, staleClaims)
	assert.ErrorIs(t, err, ErrSessionRevoked)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, _, err = tokens.Refresh(ctx, stale.RefreshToken)
	assert.ErrorIs(t, err, ErrSessionRevoked, "revoked sessions cannot be refreshed")

	fresh, err := tokens.IssuePair(admin)
	require.NoError(t, err)
	freshClaims, err := tokens.ParseToken(ctx, fresh.AccessToken)
	require.NoError(t, err)
	_, err = tokens.CurrentUser(ctx, freshClaims)
	assert.NoError(t, err, "tokens issued after the revocation are accepted")

	_, err = users.SetStatus(ctx, admin.ID, models.UserStatusSuspended)
	require.NoError(t, err)
	_, err = tokens.CurrentUser(ctx, freshClaims)
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, db.Delete(&models.User{}, admin.ID).Error)
	_, err = tokens.CurrentUser(ctx, freshClaims)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRevokeAndPurge(t *testing.T) {
	db := testutil.NewTestDB(t)
	ctx := context.Background()
	tokens := newTokenService(t, db)

	require.NoError(t, tokens.Revoke(ctx, "jti-live", 1, time.Now().Add(time.Hour)))
	require.NoError(t, tokens.Revoke(ctx, "jti-live", 1, time.Now().Add(time.Hour)), "revoking twice is a no-op")
	require.NoError(t, tokens.Revoke(ctx, "jti-old", 1, time.Now().Add(-time.Hour)))
	assert.ErrorIs(t, tokens.Revoke(ctx, "", 1, time.Now()), ErrValidation)

	revoked, err := tokens.IsRevoked(ctx, "jti-live")
	require.NoError(t, err)
	assert.True(t, revoked)

	purged, err := tokens.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	revoked, err = tokens.IsRevoked(ctx, "jti-old")
	require.NoError(t, err)
	assert.False(t, revoked)
}
