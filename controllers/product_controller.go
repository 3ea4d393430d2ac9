package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// SetInventoryRequest sets the stock of a variation at a location. The location is
// identified by id, or by code (created on first use with the given name).
type SetInventoryRequest struct {
	VariationID  uint   `json:"variation_id" binding:"required"`
	LocationID   uint   `json:"location_id"`
	LocationCode string `json:"location_code" binding:"required_without=LocationID"`
	LocationName string `json:"location_name"`
	Quantity     *int   `json:"quantity" binding:"required,gte=0"`
}

func productService() *services.ProductService {
	return services.NewProductService(config.GetDB(), cache.Default())
}

// ListProducts handles GET /api/v1/products - active catalog, optionally by category
func ListProducts(c *gin.Context) {
	products, err := productService().ListProducts(c.Request.Context(), c.Query("category"), true)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, products)
}

// GetProduct handles GET /api/v1/products/:id
func GetProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	product, err := productService().GetActiveProduct(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// GetVariationStock handles GET /api/v1/variations/:id/stock
func GetVariationStock(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	products := productService()
	variation, err := products.GetVariation(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	stock, err := products.GetTotalStock(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{
		"variation_id": variation.ID,
		"sku":          variation.SKU,
		"stock":        stock,
		"in_stock":     stock > 0,
	})
}

// AdminListProducts handles GET /api/v1/admin/products - includes inactive products
func AdminListProducts(c *gin.Context) {
	products, err := productService().ListProducts(c.Request.Context(), c.Query("category"), false)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, products)
}

// CreateProduct handles POST /api/v1/admin/products
func CreateProduct(c *gin.Context) {
	var req services.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	product, err := productService().CreateProduct(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, product)
}

// UpdateProduct handles PUT /api/v1/admin/products/:id
func UpdateProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	product, err := productService().UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/admin/products/:id
func DeleteProduct(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	if err := productService().DeleteProduct(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, gin.H{"id": id, "deleted": true})
}

// CreateVariation handles POST /api/v1/admin/products/:id/variations
func CreateVariation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.VariationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	variation, err := productService().CreateVariation(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusCreated, variation)
}

// UpdateVariation handles PUT /api/v1/admin/variations/:id
func UpdateVariation(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}

	var req services.VariationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	variation, err := productService().UpdateVariation(c.Request.Context(), id, req)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, variation)
}

// SetInventory handles PUT /api/v1/admin/inventory
func SetInventory(c *gin.Context) {
	var req SetInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindingError(c, err)
		return
	}

	products := productService()
	locationID := req.LocationID
	if locationID == 0 {
		name := req.LocationName
		if name == "" {
			name = req.LocationCode
		}
		location, err := products.UpsertLocation(c.Request.Context(), req.LocationCode, name)
		if err != nil {
			respondServiceError(c, err)
			return
		}
		locationID = location.ID
	}

	inventory, err := products.SetInventory(c.Request.Context(), req.VariationID, locationID, *req.Quantity)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, inventory)
}

// AdjustInventory handles POST /api/v1/admin/inventory/adjust?variation_id=&location_id=&delta=
func AdjustInventory(c *gin.Context) {
	variationID, err1 := strconv.ParseUint(c.Query("variation_id"), 10, 64)
	locationID, err2 := strconv.ParseUint(c.Query("location_id"), 10, 64)
	delta, err3 := strconv.Atoi(c.Query("delta"))
	if err1 != nil || err2 != nil || err3 != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "variation_id, location_id and delta are required")
		return
	}

	inventory, err := productService().AdjustInventory(c.Request.Context(), uint(variationID), uint(locationID), delta)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, inventory)
}
