package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenType distinguishes access tokens from refresh tokens
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

// TokenClaims are the application claims carried next to the registered JWT claims
type TokenClaims struct {
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	TokenType TokenType       `json:"token_type"`
}

// Validate satisfies validator.CustomClaims
func (c *TokenClaims) Validate(ctx context.Context) error {
	if c.TokenType != TokenAccess && c.TokenType != TokenRefresh {
		return fmt.Errorf("unknown token type %q", c.TokenType)
	}
	if !c.Role.Valid() {
		return fmt.Errorf("unknown role %q", c.Role)
	}
	return nil
}

// TokenPair is returned on login and refresh
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// TokenService issues, verifies and revokes HS256 tokens
type TokenService struct {
	db         *gorm.DB
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	validator  *validator.Validator
	now        func() time.Time
}

// NewTokenService creates a token service from the JWT settings in cfg
func NewTokenService(db *gorm.DB, cfg *config.Config) (*TokenService, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is required")
	}
	s := &TokenService{
		db:         db,
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		now:        time.Now,
	}

	jwtValidator, err := validator.New(
		func(ctx context.Context) (interface{}, error) {
			return s.secret, nil
		},
		validator.HS256,
		s.issuer,
		[]string{s.audience},
		validator.WithCustomClaims(
			func() validator.CustomClaims {
				return &TokenClaims{}
			},
		),
		validator.WithAllowedClockSkew(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the jwt validator: %w", err)
	}
	s.validator = jwtValidator
	return s, nil
}

// IssuePair signs a new access and refresh token for user
func (s *TokenService) IssuePair(user *models.User) (*TokenPair, error) {
	access, err := s.sign(user, TokenAccess, s.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(user, TokenRefresh, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenService) sign(user *models.User, tokenType TokenType, ttl time.Duration) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create signer: %w", err)
	}

	now := s.now()
	registered := jwt.Claims{
		Subject:  strconv.FormatUint(uint64(user.ID), 10),
		Issuer:   s.issuer,
		Audience: jwt.Audience{s.audience},
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(ttl)),
		ID:       uuid.NewString(),
	}
	custom := TokenClaims{Email: user.Email, Role: user.Role, TokenType: tokenType}

	token, err := jwt.Signed(signer).Claims(registered).Claims(custom).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// ValidateToken is the validation function handed to the JWT middleware
func (s *TokenService) ValidateToken(ctx context.Context, token string) (interface{}, error) {
	return s.validator.ValidateToken(ctx, token)
}

// ParseToken verifies a token and returns its claims
func (s *TokenService) ParseToken(ctx context.Context, token string) (*validator.ValidatedClaims, error) {
	raw, err := s.validator.ValidateToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	claims, ok := raw.(*validator.ValidatedClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type", ErrUnauthorized)
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new pair. The old refresh token is revoked.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *models.User, error) {
	claims, err := s.ParseToken(ctx, refreshToken)
	if err != nil {
		return nil, nil, err
	}
	custom, ok := claims.CustomClaims.(*TokenClaims)
	if !ok || custom.TokenType != TokenRefresh {
		return nil, nil, fmt.Errorf("%w: not a refresh token", ErrUnauthorized)
	}

	revoked, err := s.IsRevoked(ctx, claims.RegisteredClaims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, fmt.Errorf("%w: refresh token has been revoked", ErrUnauthorized)
	}

	user, err := s.CurrentUser(ctx, claims)
	if err != nil {
		return nil, nil, err
	}

	expiresAt := time.Unix(claims.RegisteredClaims.Expiry, 0)
	if err := s.Revoke(ctx, claims.RegisteredClaims.ID, user.ID, expiresAt); err != nil {
		return nil, nil, err
	}

	pair, err := s.IssuePair(user)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// CurrentUser loads the token's subject as it is now. Tokens of deleted users and tokens
// issued before the user's sessions were revoked are unauthorized; inactive accounts are forbidden.
func (s *TokenService) CurrentUser(ctx context.Context, claims *validator.ValidatedClaims) (*models.User, error) {
	userID, err := SubjectUserID(claims)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user no longer exists", ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive() {
		return nil, fmt.Errorf("%w: account is %s", ErrForbidden, user.Status)
	}
	if user.TokensValidAfter != nil && claims.RegisteredClaims.IssuedAt < user.TokensValidAfter.Unix() {
		return nil, ErrSessionRevoked
	}
	return &user, nil
}

// Revoke blacklists a token id until its expiry; revoking twice is a no-op
func (s *TokenService) Revoke(ctx context.Context, jti string, userID uint, expiresAt time.Time) error {
	if jti == "" {
		return fmt.Errorf("%w: token id is required", ErrValidation)
	}
	entry := models.TokenBlacklist{TokenID: jti, UserID: userID, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token_id"}},
		DoNothing: true,
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token id is blacklisted
func (s *TokenService) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.TokenBlacklist{}).Where("token_id = ?", jti).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check token blacklist: %w", err)
	}
	return count > 0, nil
}

// PurgeExpired deletes blacklist rows for tokens that have expired anyway
func (s *TokenService) PurgeExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", s.now()).Delete(&models.TokenBlacklist{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge token blacklist: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// SubjectUserID parses the numeric user id out of the sub claim
func SubjectUserID(claims *validator.ValidatedClaims) (uint, error) {
	id, err := strconv.ParseUint(claims.RegisteredClaims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: malformed subject", ErrUnauthorized)
	}
	return uint(id), nil
}
