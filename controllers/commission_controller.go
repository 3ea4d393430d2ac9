package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// CancelCommissionRequest represents the request body for cancelling a commission
type CancelCommissionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// PayoutRequest represents the request body for paying out approved commissions
type PayoutRequest struct {
	CommissionIDs    []uint `json:"commission_ids" binding:"required,min=1,dive,gt=0"`
	PaymentMethod    string `json:"payment_method" binding:"required"`
	PaymentReference string `json:"payment_reference"`
}

// MyCommissions handles GET /api/v1/commissions/me - stats plus a page of the caller's commissions
func MyCommissions(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var filter services.CommissionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}
	filter.UserID = userID

	commissions := services.NewCommissionService(config.GetDB())
	stats, err := commissions.GetUserCommissionStats(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	page, err := commissions.ListCommissions(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"stats":       stats,
		"commissions": page,
	})
}

// AdminListCommissions handles GET /api/v1/admin/commissions
func AdminListCommissions(c *gin.Context) {
	var filter services.CommissionFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}

	page, err := services.NewCommissionService(config.GetDB()).ListCommissions(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// PayableCommissions handles GET /api/v1/admin/commissions/payable
func PayableCommissions(c *gin.Context) {
	commissions, err := services.NewCommissionService(config.GetDB()).GetPayableCommissions(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, commissions)
}

// ApproveCommission handles POST /api/v1/admin/commissions/:id/approve
func ApproveCommission(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	commission, err := services.NewCommissionService(config.GetDB()).ApproveCommission(c.Request.Context(), id, adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, commission)
}

// CancelCommission handles POST /api/v1/admin/commissions/:id/cancel
func CancelCommission(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req CancelCommissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	commission, err := services.NewCommissionService(config.GetDB()).CancelCommission(c.Request.Context(), id, req.Reason)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, commission)
}

// ProcessPayout handles POST /api/v1/admin/commissions/payout
func ProcessPayout(c *gin.Context) {
	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	result, err := services.NewCommissionService(config.GetDB()).ProcessCommissionPayout(c.Request.Context(), req.CommissionIDs, req.PaymentMethod, req.PaymentReference)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
