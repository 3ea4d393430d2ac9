package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// AddCartItemRequest represents the request body for adding to the cart
type AddCartItemRequest struct {
	VariationID uint `json:"variation_id" binding:"required"`
	Quantity    int  `json:"quantity" binding:"required,gt=0"`
}

// UpdateCartItemRequest sets a line's quantity; zero removes the line
type UpdateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required,gte=0"`
}

// GetCart handles GET /api/v1/cart
func GetCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	cart, err := services.NewCartService(config.GetDB()).GetCart(c.Request.Context(), userID, c.Query("wholesale") == "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cart)
}

// AddCartItem handles POST /api/v1/cart/items
func AddCartItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req AddCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	item, err := services.NewCartService(config.GetDB()).AddItem(c.Request.Context(), userID, req.VariationID, req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, item)
}

// UpdateCartItem handles PUT /api/v1/cart/items/:variationId
func UpdateCartItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	variationID, ok := uintParam(c, "variationId")
	if !ok {
		return
	}

	var req UpdateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	item, err := services.NewCartService(config.GetDB()).UpdateQuantity(c.Request.Context(), userID, variationID, *req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	if item == nil {
		respondOK(c, http.StatusOK, gin.H{"variation_id": variationID, "removed": true})
		return
	}
	respondOK(c, http.StatusOK, item)
}

// RemoveCartItem handles DELETE /api/v1/cart/items/:variationId
func RemoveCartItem(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}
	variationID, ok := uintParam(c, "variationId")
	if !ok {
		return
	}

	if err := services.NewCartService(config.GetDB()).RemoveItem(c.Request.Context(), userID, variationID); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"variation_id": variationID, "removed": true})
}

// ClearCart handles DELETE /api/v1/cart
func ClearCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := services.NewCartService(config.GetDB()).ClearCart(c.Request.Context(), userID); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"cleared": true})
}

// ValidateCart handles GET /api/v1/cart/validate?wholesale=true
func ValidateCart(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	carts := services.NewCartService(config.GetDB())
	validation, err := carts.ValidateCart(c.Request.Context(), userID, c.Query("wholesale") == "true")
	if err != nil {
		respondServiceError(c, err)
		return
	}
	shortfalls, err := carts.ValidateInventory(c.Request.Context(), userID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"is_valid":         validation.IsValid && len(shortfalls) == 0,
		"quantity":         validation,
		"inventory_errors": shortfalls,
	})
}
