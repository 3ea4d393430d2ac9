package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// UpdateProfileRequest represents the request body for updating the caller's profile
type UpdateProfileRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
	Email *string `json:"email" binding:"omitempty,email"`
}

// ChangePasswordRequest represents the request body for changing a password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// WholesaleApplicationRequest represents the request body for applying for wholesale
type WholesaleApplicationRequest struct {
	BusinessName string `json:"business_name" binding:"required"`
	TaxID        string `json:"tax_id"`
	Message      string `json:"message"`
}

// SetRoleRequest represents the request body for changing a user's role
type SetRoleRequest struct {
	Role models.UserRole `json:"role" binding:"required,user_role"`
}

// TransferCartRequest moves the cart of the path user to another user
type TransferCartRequest struct {
	ToUserID uint `json:"to_user_id" binding:"required"`
}

// ReviewApplicationRequest represents an admin decision on a wholesale application
type ReviewApplicationRequest struct {
	Approve *bool  `json:"approve" binding:"required"`
	Notes   string `json:"notes"`
}

// GetCurrentUser handles GET /api/v1/users/me
func GetCurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := services.NewUserService(config.GetDB()).GetUser(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// UpdateCurrentUser handles PUT /api/v1/users/me
func UpdateCurrentUser(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, err := services.NewUserService(config.GetDB()).UpdateProfile(c.Request.Context(), userID, services.ProfileUpdate{
		Name:  req.Name,
		Phone: req.Phone,
		Email: req.Email,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// ChangePassword handles PUT /api/v1/users/me/password
func ChangePassword(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	if err := services.NewUserService(config.GetDB()).ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"message": "Password changed"})
}

// GetMyReferrals handles GET /api/v1/users/me/referrals
func GetMyReferrals(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	referrals, err := services.NewUserService(config.GetDB()).GetReferrals(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, referrals)
}

// ApplyForWholesale handles POST /api/v1/users/me/wholesale-application
func ApplyForWholesale(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req WholesaleApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	application, err := services.NewUserService(config.GetDB()).ApplyForWholesale(c.Request.Context(), userID, services.WholesaleApplicationInput{
		BusinessName: req.BusinessName,
		TaxID:        req.TaxID,
		Message:      req.Message,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, application)
}

// ListUsers handles GET /api/v1/admin/users
func ListUsers(c *gin.Context) {
	var filter services.UserFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}

	page, err := services.NewUserService(config.GetDB()).ListUsers(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// ActivateUser handles POST /api/v1/admin/users/:id/activate
func ActivateUser(c *gin.Context) {
	setUserStatus(c, models.UserStatusActive)
}

// SuspendUser handles POST /api/v1/admin/users/:id/suspend
func SuspendUser(c *gin.Context) {
	setUserStatus(c, models.UserStatusSuspended)
}

func setUserStatus(c *gin.Context, status models.UserStatus) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	if adminID == id && status != models.UserStatusActive {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Admins cannot suspend themselves")
		return
	}

	user, err := services.NewUserService(config.GetDB()).SetStatus(c.Request.Context(), id, status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// RevokeUserSessions handles POST /api/v1/admin/users/:id/logout - signs the user out everywhere
func RevokeUserSessions(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	user, err := services.NewUserService(config.GetDB()).RevokeSessions(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// SetUserRole handles PUT /api/v1/admin/users/:id/role
func SetUserRole(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	user, err := services.NewUserService(config.GetDB()).SetRole(c.Request.Context(), id, req.Role)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, user)
}

// TransferUserCart handles POST /api/v1/admin/users/:id/cart/transfer
func TransferUserCart(c *gin.Context) {
	fromID, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req TransferCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	moved, err := services.NewCartService(config.GetDB()).TransferCart(c.Request.Context(), fromID, req.ToUserID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"transferred_items": moved})
}

// ListWholesaleApplications handles GET /api/v1/admin/wholesale-applications
func ListWholesaleApplications(c *gin.Context) {
	status := models.ApplicationStatus(c.Query("status"))

	applications, err := services.NewUserService(config.GetDB()).ListWholesaleApplications(c.Request.Context(), status)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, applications)
}

// ReviewWholesaleApplication handles POST /api/v1/admin/wholesale-applications/:id/review
func ReviewWholesaleApplication(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ReviewApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	application, err := services.NewUserService(config.GetDB()).ReviewWholesaleApplication(c.Request.Context(), id, *req.Approve, req.Notes, adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, application)
}
