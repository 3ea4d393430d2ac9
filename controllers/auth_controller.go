package controllers

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/middleware"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// RegisterRequest represents the request body for signing up
type RegisterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	Name         string `json:"name" binding:"required"`
	Phone        string `json:"phone"`
	ReferralCode string `json:"referral_code"`
}

// LoginRequest represents the request body for signing in
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutRequest optionally carries the refresh token to revoke with the access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// AuthResponse is returned on register, login and refresh
type AuthResponse struct {
	User   *models.User        `json:"user"`
	Tokens *services.TokenPair `json:"tokens"`
}

func tokenService() (*services.TokenService, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return services.NewTokenService(config.GetDB(), cfg)
}

func secureCookies() bool {
	cfg := config.GetConfig()
	return cfg != nil && cfg.IsProduction()
}

// Register handles POST /api/v1/auth/register
func Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, err := services.NewUserService(config.GetDB()).Register(c.Request.Context(), services.RegisterParams{
		Email:        req.Email,
		Password:     req.Password,
		Name:         req.Name,
		Phone:        req.Phone,
		ReferralCode: req.ReferralCode,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tokens, err := tokenService()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	pair, err := tokens.IssuePair(user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.IssueCSRFToken(c, secureCookies())
	log.Printf("User %d registered", user.ID)
	respondOK(c, http.StatusCreated, AuthResponse{User: user, Tokens: pair})
}

// Login handles POST /api/v1/auth/login
func Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, err := services.NewUserService(config.GetDB()).Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tokens, err := tokenService()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	pair, err := tokens.IssuePair(user)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	middleware.IssueCSRFToken(c, secureCookies())
	respondOK(c, http.StatusOK, AuthResponse{User: user, Tokens: pair})
}

// Refresh handles POST /api/v1/auth/refresh
func Refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	tokens, err := tokenService()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	pair, user, err := tokens.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, AuthResponse{User: user, Tokens: pair})
}

// Logout handles POST /api/v1/auth/logout - revokes the access token and, when given, the refresh token
func Logout(c *gin.Context) {
	claims, err := middleware.GetClaims(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not retrieve token claims")
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req LogoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindingError(c, err)
			return
		}
	}

	tokens, err := tokenService()
	if err != nil {
		respondServiceError(c, err)
		return
	}
	ctx := c.Request.Context()

	expiresAt := time.Unix(claims.RegisteredClaims.Expiry, 0)
	if err := tokens.Revoke(ctx, claims.RegisteredClaims.ID, userID, expiresAt); err != nil {
		respondServiceError(c, err)
		return
	}

	if req.RefreshToken != "" {
		refreshClaims, err := tokens.ParseToken(ctx, req.RefreshToken)
		if err == nil {
			refreshExpiry := time.Unix(refreshClaims.RegisteredClaims.Expiry, 0)
			if err := tokens.Revoke(ctx, refreshClaims.RegisteredClaims.ID, userID, refreshExpiry); err != nil {
				respondServiceError(c, err)
				return
			}
		}
	}

	if purged, err := tokens.PurgeExpired(ctx); err != nil {
		log.Printf("Failed to purge token blacklist: %v", err)
	} else if purged > 0 {
		log.Printf("Purged %d expired blacklist entries", purged)
	}

	c.SetCookie(middleware.CSRFCookieName, "", -1, "/", "", secureCookies(), false)
	respondOK(c, http.StatusOK, gin.H{"message": "Logged out"})
}

// Verify handles GET /api/v1/auth/verify - reports who the bearer token belongs to
func Verify(c *gin.Context) {
	claims, err := middleware.GetClaims(c)
	if err != nil {
		respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Could not retrieve token claims")
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	role, _ := middleware.GetRole(c)

	respondOK(c, http.StatusOK, gin.H{
		"user_id":    userID,
		"role":       role,
		"expires_at": time.Unix(claims.RegisteredClaims.Expiry, 0).UTC(),
	})
}

// CSRFToken handles GET /api/v1/auth/csrf - issues a double-submit token
func CSRFToken(c *gin.Context) {
	token := middleware.IssueCSRFToken(c, secureCookies())
	respondOK(c, http.StatusOK, gin.H{"csrf_token": token})
}
