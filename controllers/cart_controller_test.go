package controllers

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartEndpoints(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	mint := testutil.CreateVariation(t, db, "6.50", 20)
	citrus := testutil.CreateVariation(t, db, "7.00", 3)

	router := newRouter(customer)
	router.GET("/cart", GetCart)
	router.DELETE("/cart", ClearCart)
	router.POST("/cart/items", AddCartItem)
	router.PUT("/cart/items/:variationId", UpdateCartItem)
	router.DELETE("/cart/items/:variationId", RemoveCartItem)
	router.GET("/cart/validate", ValidateCart)

	t.Run("Add items", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/cart/items", map[string]interface{}{"variation_id": mint.ID, "quantity": 2})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = doJSON(router, http.MethodPost, "/cart/items", map[string]interface{}{"variation_id": mint.ID, "quantity": 1})
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, float64(3), dataOf(t, w)["quantity"], "adding again merges the line")
	})

	t.Run("Add rejects bad input", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/cart/items", map[string]interface{}{"variation_id": mint.ID, "quantity": 0})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, w))

		w = doJSON(router, http.MethodPost, "/cart/items", map[string]interface{}{"variation_id": 9999, "quantity": 1})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Validate below minimum", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/cart/validate", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, w)
		assert.Equal(t, false, data["is_valid"])
		quantity := data["quantity"].(map[string]interface{})
		assert.Equal(t, "Minimum order quantity is 5 units. You have 3 units in your cart.", quantity["message"])
		assert.Empty(t, data["inventory_errors"])
	})

	t.Run("Validate stock shortfall", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, "/cart/items", map[string]interface{}{"variation_id": citrus.ID, "quantity": 4})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(router, http.MethodGet, "/cart/validate", nil)
		require.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, w)
		assert.Equal(t, false, data["is_valid"])
		assert.Equal(t, true, data["quantity"].(map[string]interface{})["is_valid"])
		assert.Len(t, data["inventory_errors"], 1)
	})

	t.Run("Update quantity", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, fmt.Sprintf("/cart/items/%d", citrus.ID), map[string]int{"quantity": 3})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(3), dataOf(t, w)["quantity"])

		w = doJSON(router, http.MethodGet, "/cart/validate", nil)
		assert.Equal(t, true, dataOf(t, w)["is_valid"])
	})

	t.Run("Get cart totals", func(t *testing.T) {
		w := doJSON(router, http.MethodGet, "/cart", nil)

		require.Equal(t, http.StatusOK, w.Code)
		data := dataOf(t, w)
		assert.Equal(t, float64(6), data["total_quantity"])
		subtotal := decimal.RequireFromString(data["subtotal"].(string))
		assert.True(t, subtotal.Equal(decimal.RequireFromString("40.50")), "subtotal %s", subtotal)
	})

	t.Run("Zero quantity removes the line", func(t *testing.T) {
		w := doJSON(router, http.MethodPut, fmt.Sprintf("/cart/items/%d", citrus.ID), map[string]int{"quantity": 0})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, true, dataOf(t, w)["removed"])
	})

	t.Run("Remove missing line", func(t *testing.T) {
		w := doJSON(router, http.MethodDelete, fmt.Sprintf("/cart/items/%d", citrus.ID), nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", errorCodeOf(t, w))
	})

	t.Run("Clear", func(t *testing.T) {
		w := doJSON(router, http.MethodDelete, "/cart", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(router, http.MethodGet, "/cart", nil)
		data := dataOf(t, w)
		assert.Empty(t, data["items"])
		assert.Equal(t, float64(0), data["total_quantity"])
	})
}
