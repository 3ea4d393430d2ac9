package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// ManualPaymentRequest represents an admin confirmation of an e-transfer or Bitcoin payment
type ManualPaymentRequest struct {
	OrderID       string `json:"orderId" binding:"required,uuid"`
	TransactionID string `json:"transactionId" binding:"required"`
	Notes         string `json:"notes"`
	SenderName    string `json:"senderName"`
}

// FailPaymentRequest represents an admin rejection of a manual payment
type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ConfirmETransfer handles POST /api/v1/payments/manual/etransfer-confirm (admin)
func ConfirmETransfer(c *gin.Context) {
	confirmManualPayment(c, models.PaymentMethodETransfer)
}

// ConfirmBitcoin handles POST /api/v1/payments/manual/bitcoin-confirm (admin)
func ConfirmBitcoin(c *gin.Context) {
	confirmManualPayment(c, models.PaymentMethodBitcoin)
}

func confirmManualPayment(c *gin.Context, method models.PaymentMethod) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	orderID := uuid.MustParse(req.OrderID)

	payments := services.NewPaymentService(config.GetDB())
	payment, err := payments.GetPaymentForOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if payment.PaymentMethod != method {
		respondError(c, http.StatusBadRequest, "PAYMENT_METHOD_MISMATCH", "Order was not paid by "+string(method))
		return
	}

	order, err := payments.ConfirmManualPayment(c.Request.Context(), services.ManualConfirmation{
		OrderID:       orderID,
		TransactionID: req.TransactionID,
		AdminUserID:   adminID,
		Notes:         req.Notes,
		SenderName:    req.SenderName,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// FailPayment handles POST /api/v1/admin/payments/:orderId/fail
func FailPayment(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "orderId")
	if !ok {
		return
	}

	var req FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	payment, err := services.NewPaymentService(config.GetDB()).MarkPaymentFailed(c.Request.Context(), orderID, req.Reason, adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, payment)
}
