package controllers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/middleware"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// CheckoutRequest represents the request body for placing an order from the cart
type CheckoutRequest struct {
	ShippingAddress models.Address       `json:"shipping_address" binding:"required"`
	BillingAddress  *models.Address      `json:"billing_address"`
	PaymentMethod   models.PaymentMethod `json:"payment_method" binding:"required,payment_method"`
	IsWholesale     bool                 `json:"is_wholesale"`
	DiscountCode    string               `json:"discount_code"`
	ReferralCode    string               `json:"referral_code"`
}

// UpdateOrderStatusRequest represents the request body for an admin status change
type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required,order_status"`
	Notes  string             `json:"notes"`
}

// AssignDistributorRequest represents the request body for assigning a distributor
type AssignDistributorRequest struct {
	DistributorID uint `json:"distributor_id" binding:"required"`
}

// FulfillOrderRequest is sent as JSON or multipart form; multipart may carry a "proof" image
type FulfillOrderRequest struct {
	TrackingNumber string `json:"tracking_number" form:"tracking_number"`
	Carrier        string `json:"carrier" form:"carrier"`
	Notes          string `json:"notes" form:"notes"`
}

// CancelOrderRequest represents the request body for cancelling an order
type CancelOrderRequest struct {
	Notes string `json:"notes"`
}

// Checkout handles POST /api/v1/orders - places an order from the caller's cart
func Checkout(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}
	billing := req.ShippingAddress
	if req.BillingAddress != nil {
		billing = *req.BillingAddress
	}

	order, err := services.NewOrderService(config.GetDB()).Checkout(c.Request.Context(), services.CheckoutParams{
		UserID:          userID,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  billing,
		PaymentMethod:   req.PaymentMethod,
		IsWholesale:     req.IsWholesale,
		DiscountCode:    req.DiscountCode,
		ReferralCode:    req.ReferralCode,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, order)
}

// ListMyOrders handles GET /api/v1/orders/me
func ListMyOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var filter services.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}

	page, err := services.NewOrderService(config.GetDB()).GetUserOrders(c.Request.Context(), userID, filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// GetOrder handles GET /api/v1/orders/:id - visible to the purchaser, the assigned distributor and admins
func GetOrder(c *gin.Context) {
	order, ok := loadVisibleOrder(c)
	if !ok {
		return
	}

	if order.Fulfillment != nil && order.Fulfillment.ProofKey != "" {
		if storage := services.GetProofStorage(); storage != nil {
			url, err := storage.URL(c.Request.Context(), order.Fulfillment.ProofKey)
			if err != nil {
				log.Printf("Failed to presign proof for order %s: %v", order.ID, err)
			}
			order.Fulfillment.ProofURL = url
		}
	}
	respondOK(c, http.StatusOK, order)
}

// GetOrderHistory handles GET /api/v1/orders/:id/history
func GetOrderHistory(c *gin.Context) {
	order, ok := loadVisibleOrder(c)
	if !ok {
		return
	}
	respondOK(c, http.StatusOK, order.History)
}

// loadVisibleOrder loads the path order and checks the caller may see it. Strangers get 404.
func loadVisibleOrder(c *gin.Context) (*models.Order, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return nil, false
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}

	order, err := services.NewOrderService(config.GetDB()).GetOrder(c.Request.Context(), orderID)
	if err != nil {
		respondServiceError(c, err)
		return nil, false
	}

	role, _ := middleware.GetRole(c)
	isDistributor := order.DistributorID != nil && *order.DistributorID == userID
	if role != models.RoleAdmin && order.UserID != userID && !isDistributor {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "not found: order")
		return nil, false
	}
	return order, true
}

// UpdateOrderStatus handles PUT /api/v1/orders/:id/status (admin)
func UpdateOrderStatus(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req UpdateOrderStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := services.NewOrderService(config.GetDB()).UpdateOrderStatus(c.Request.Context(), orderID, req.Status, req.Notes, &adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// AdminListOrders handles GET /api/v1/admin/orders
func AdminListOrders(c *gin.Context) {
	var filter services.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}

	page, err := services.NewOrderService(config.GetDB()).GetAdminOrders(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// AssignDistributor handles POST /api/v1/admin/orders/:id/assign
func AssignDistributor(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req AssignDistributorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	order, err := services.NewOrderService(config.GetDB()).AssignDistributor(c.Request.Context(), orderID, req.DistributorID, &adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// CancelOrder handles POST /api/v1/admin/orders/:id/cancel
func CancelOrder(c *gin.Context) {
	adminID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req CancelOrderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindingError(c, err)
			return
		}
	}

	order, err := services.NewOrderService(config.GetDB()).CancelOrder(c.Request.Context(), orderID, req.Notes, &adminID)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// AdminFulfillOrder handles POST /api/v1/admin/orders/:id/fulfill
func AdminFulfillOrder(c *gin.Context) {
	fulfillOrder(c, false)
}

// DistributorListOrders handles GET /api/v1/distributor/orders
func DistributorListOrders(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var filter services.OrderFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		respondBindingError(c, err)
		return
	}

	page, err := services.NewOrderService(config.GetDB()).GetDistributorOrders(c.Request.Context(), userID, filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, page)
}

// DistributorFulfillOrder handles POST /api/v1/distributor/orders/:id/fulfill - multipart with a proof image
func DistributorFulfillOrder(c *gin.Context) {
	fulfillOrder(c, true)
}

func fulfillOrder(c *gin.Context, assignedOnly bool) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	orderID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	orders := services.NewOrderService(config.GetDB())
	if assignedOnly {
		order, err := orders.GetOrder(c.Request.Context(), orderID)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		if order.DistributorID == nil || *order.DistributorID != userID {
			respondError(c, http.StatusForbidden, "FORBIDDEN", "Order is not assigned to you")
			return
		}
	}

	var req FulfillOrderRequest
	if err := c.ShouldBind(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	proofKey, ok := uploadProof(c)
	if !ok {
		return
	}

	order, err := orders.RecordFulfillment(c.Request.Context(), orderID, services.FulfillmentData{
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		ProofKey:       proofKey,
		Notes:          req.Notes,
	}, &userID)
	if err != nil {
		if proofKey != "" {
			if delErr := services.GetProofStorage().Delete(c.Request.Context(), proofKey); delErr != nil {
				log.Printf("Failed to delete orphaned proof %s: %v", proofKey, delErr)
			}
		}
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, order)
}

// uploadProof stores the optional "proof" form file and returns its key
func uploadProof(c *gin.Context) (string, bool) {
	fileHeader, err := c.FormFile("proof")
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return "", true
	}
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FILE", "Could not read proof file")
		return "", false
	}

	storage := services.GetProofStorage()
	if storage == nil {
		respondError(c, http.StatusServiceUnavailable, "PROOF_STORAGE_UNAVAILABLE", "Proof uploads are not configured")
		return "", false
	}

	key, err := storage.Upload(c.Request.Context(), fileHeader)
	if err != nil {
		respondServiceError(c, err)
		return "", false
	}
	return key, true
}
