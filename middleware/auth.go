package middleware

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

const (
	userIDKey = "user_id"
	roleKey   = "user_role"
	claimsKey = "validated_claims"
)

// TokenVerifier validates bearer tokens, reports revoked token ids and loads the token's user
type TokenVerifier interface {
	ValidateToken(ctx context.Context, token string) (interface{}, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
	CurrentUser(ctx context.Context, claims *validator.ValidatedClaims) (*models.User, error)
}

// EnsureValidToken is a middleware that will check the validity of our JWT.
// Only unrevoked access tokens of active users are accepted, and the role is
// read from the user record rather than the token.
func EnsureValidToken(tokens TokenVerifier) gin.HandlerFunc {
	errorHandler := func(w http.ResponseWriter, r *http.Request, err error) {
		log.Printf("Encountered error while validating JWT: %v", err)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		if _, writeErr := w.Write([]byte(`{"success":false,"error":{"code":"INVALID_TOKEN","message":"Failed to validate JWT."}}`)); writeErr != nil {
			log.Printf("Failed to write error response: %v", writeErr)
		}
	}

	middleware := jwtmiddleware.New(
		tokens.ValidateToken,
		jwtmiddleware.WithErrorHandler(errorHandler),
	)

	return func(c *gin.Context) {
		passed := false
		var handler http.HandlerFunc = func(w http.ResponseWriter, r *http.Request) {
			passed = true
			token := r.Context().Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)

			custom, ok := token.CustomClaims.(*services.TokenClaims)
			if !ok || custom.TokenType != services.TokenAccess {
				abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN_TYPE", "An access token is required")
				return
			}

			revoked, err := tokens.IsRevoked(r.Context(), token.RegisteredClaims.ID)
			if err != nil {
				log.Printf("Failed to check token blacklist: %v", err)
				abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate token")
				return
			}
			if revoked {
				abortWithError(c, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
				return
			}

			user, err := tokens.CurrentUser(r.Context(), token)
			switch {
			case errors.Is(err, services.ErrSessionRevoked):
				abortWithError(c, http.StatusUnauthorized, "TOKEN_REVOKED", "Token has been revoked")
				return
			case errors.Is(err, services.ErrForbidden):
				abortWithError(c, http.StatusForbidden, "ACCOUNT_INACTIVE", "Account is not active")
				return
			case errors.Is(err, services.ErrUnauthorized):
				abortWithError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Failed to validate JWT.")
				return
			case err != nil:
				log.Printf("Failed to load token user: %v", err)
				abortWithError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to validate token")
				return
			}

			c.Request = r
			c.Set(userIDKey, user.ID)
			c.Set(roleKey, user.Role)
			c.Set(claimsKey, token)

			c.Next()
		}

		middleware.CheckJWT(handler).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
		}
	}
}

// GetUserID extracts the user ID from the Gin context
func GetUserID(c *gin.Context) (uint, error) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return 0, &AuthError{Code: "MISSING_USER_ID", Message: "User ID not found in context"}
	}

	id, ok := userID.(uint)
	if !ok {
		return 0, &AuthError{Code: "INVALID_USER_ID", Message: "User ID is not numeric"}
	}

	return id, nil
}

// GetRole extracts the user role from the Gin context
func GetRole(c *gin.Context) (models.UserRole, error) {
	role, exists := c.Get(roleKey)
	if !exists {
		return "", &AuthError{Code: "MISSING_ROLE", Message: "Role not found in context"}
	}

	userRole, ok := role.(models.UserRole)
	if !ok {
		return "", &AuthError{Code: "INVALID_ROLE", Message: "Role is not in the expected format"}
	}

	return userRole, nil
}

// GetClaims extracts the validated JWT claims from the Gin context
func GetClaims(c *gin.Context) (*validator.ValidatedClaims, error) {
	claims, exists := c.Get(claimsKey)
	if !exists {
		return nil, &AuthError{Code: "MISSING_CLAIMS", Message: "Claims not found in context"}
	}

	validatedClaims, ok := claims.(*validator.ValidatedClaims)
	if !ok {
		return nil, &AuthError{Code: "INVALID_CLAIMS", Message: "Claims are not in the expected format"}
	}

	return validatedClaims, nil
}

// RequireRole is a middleware that checks the caller's role is one of roles
func RequireRole(roles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, err := GetRole(c)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, "MISSING_CLAIMS", "Could not retrieve token claims")
			return
		}

		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		abortWithError(c, http.StatusForbidden, "INSUFFICIENT_ROLE", "Insufficient permissions to access this resource")
	}
}

// AuthError represents an authentication error
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}
