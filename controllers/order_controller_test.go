package controllers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkoutBody(method string) map[string]interface{} {
	return map[string]interface{}{
		"shipping_address": testutil.TestAddress(),
		"payment_method":   method,
	}
}

func TestCheckout(t *testing.T) {
	tests := []struct {
		name           string
		quantity       int
		body           map[string]interface{}
		expectedStatus int
		expectedError  string
		checkResponse  func(t *testing.T, data map[string]interface{})
	}{
		{
			name:           "Successfully place an order",
			quantity:       5,
			body:           checkoutBody("etransfer"),
			expectedStatus: http.StatusCreated,
			checkResponse: func(t *testing.T, data map[string]interface{}) {
				assert.Equal(t, "Pending", data["status"])
				assert.Equal(t, "Pending", data["payment_status"])
				assert.Equal(t, "etransfer", data["payment_method"])
				total := decimal.RequireFromString(data["total_amount"].(string))
				assert.True(t, total.Equal(decimal.RequireFromString("32.50")), "total %s", total)
				assert.Len(t, data["items"], 1)
			},
		},
		{
			name:           "Below the retail minimum",
			quantity:       4,
			body:           checkoutBody("card"),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Unknown payment method",
			quantity:       5,
			body:           checkoutBody("paypal"),
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:           "Missing shipping address",
			quantity:       5,
			body:           map[string]interface{}{"payment_method": "card"},
			expectedStatus: http.StatusBadRequest,
			expectedError:  "VALIDATION_ERROR",
		},
		{
			name:     "Wholesale without eligibility",
			quantity: 100,
			body: map[string]interface{}{
				"shipping_address": testutil.TestAddress(),
				"payment_method":   "card",
				"is_wholesale":     true,
			},
			expectedStatus: http.StatusForbidden,
			expectedError:  "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := testutil.NewTestDB(t)
			customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
			variation := testutil.CreateVariation(t, db, "6.50", 200)
			testutil.AddToCart(t, db, customer.ID, variation.ID, tt.quantity)

			router := newRouter(customer)
			router.POST("/orders", Checkout)

			w := doJSON(router, http.MethodPost, "/orders", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCodeOf(t, w))

				var count int64
				db.Model(&models.CartItem{}).Where("user_id = ?", customer.ID).Count(&count)
				assert.Equal(t, int64(1), count, "cart is kept when checkout fails")
				return
			}
			if tt.checkResponse != nil {
				tt.checkResponse(t, dataOf(t, w))
			}
		})
	}
}

func TestGetOrderVisibility(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "Owner", models.RoleCustomer)
	stranger := testutil.CreateUser(t, db, "Stranger", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	otherDistributor := testutil.CreateUser(t, db, "Other Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedAssignedOrder(t, db, owner, distributor, variation)

	tests := []struct {
		name           string
		caller         *models.User
		path           string
		expectedStatus int
		expectedError  string
	}{
		{name: "Purchaser", caller: owner, path: "/orders/" + order.ID.String(), expectedStatus: http.StatusOK},
		{name: "Admin", caller: admin, path: "/orders/" + order.ID.String(), expectedStatus: http.StatusOK},
		{name: "Assigned distributor", caller: distributor, path: "/orders/" + order.ID.String(), expectedStatus: http.StatusOK},
		{name: "Stranger gets not found", caller: stranger, path: "/orders/" + order.ID.String(), expectedStatus: http.StatusNotFound, expectedError: "NOT_FOUND"},
		{name: "Other distributor gets not found", caller: otherDistributor, path: "/orders/" + order.ID.String(), expectedStatus: http.StatusNotFound, expectedError: "NOT_FOUND"},
		{name: "Unknown order", caller: admin, path: "/orders/6f1c2a0e-4b8d-4c1e-9a7f-000000000000", expectedStatus: http.StatusNotFound, expectedError: "NOT_FOUND"},
		{name: "Malformed id", caller: owner, path: "/orders/not-a-uuid", expectedStatus: http.StatusBadRequest, expectedError: "INVALID_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(tt.caller)
			router.GET("/orders/:id", GetOrder)

			w := doJSON(router, http.MethodGet, tt.path, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCodeOf(t, w))
				return
			}
			data := dataOf(t, w)
			assert.Equal(t, order.ID.String(), data["id"])
			assert.Equal(t, "Assigned", data["status"])
		})
	}
}

func TestGetOrderHistory(t *testing.T) {
	db := testutil.NewTestDB(t)
	owner := testutil.CreateUser(t, db, "Owner", models.RoleCustomer)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedAssignedOrder(t, db, owner, distributor, variation)

	router := newRouter(owner)
	router.GET("/orders/:id/history", GetOrderHistory)

	w := doJSON(router, http.MethodGet, "/orders/"+order.ID.String()+"/history", nil)

	require.Equal(t, http.StatusOK, w.Code)
	history := decodeResponse(t, w)["data"].([]interface{})
	statuses := make([]string, 0, len(history))
	for _, entry := range history {
		statuses = append(statuses, entry.(map[string]interface{})["status"].(string))
	}
	assert.Equal(t, []string{"Pending", "PaymentReceived", "Processing", "Assigned"}, statuses)
}

func TestListMyOrders(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	other := testutil.CreateUser(t, db, "Other", models.RoleCustomer)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	seedOrder(t, db, customer, variation, 5, models.PaymentMethodCard)
	seedOrder(t, db, customer, variation, 6, models.PaymentMethodBitcoin)
	seedOrder(t, db, other, variation, 5, models.PaymentMethodCard)

	router := newRouter(customer)
	router.GET("/orders/me", ListMyOrders)

	w := doJSON(router, http.MethodGet, "/orders/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := dataOf(t, w)
	assert.Equal(t, float64(2), data["total"])
	assert.Len(t, data["items"], 2)

	w = doJSON(router, http.MethodGet, "/orders/me?page=1&page_size=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data = dataOf(t, w)
	assert.Len(t, data["items"], 1)
	assert.Equal(t, float64(2), data["total_pages"])
}

func TestUpdateOrderStatus(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedOrder(t, db, customer, variation, 5, models.PaymentMethodCard)
	path := "/orders/" + order.ID.String() + "/status"

	router := newRouter(admin)
	router.PUT("/orders/:id/status", UpdateOrderStatus)

	tests := []struct {
		name           string
		status         string
		expectedStatus int
		expectedError  string
	}{
		{name: "Skipping ahead is rejected", status: "Delivered", expectedStatus: http.StatusBadRequest, expectedError: "INVALID_TRANSITION"},
		{name: "Unknown status", status: "Shipped", expectedStatus: http.StatusBadRequest, expectedError: "VALIDATION_ERROR"},
		{name: "Allowed transition", status: "PaymentReceived", expectedStatus: http.StatusOK},
		{name: "Repeating the transition", status: "PaymentReceived", expectedStatus: http.StatusBadRequest, expectedError: "INVALID_TRANSITION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPut, path, map[string]string{"status": tt.status, "notes": "test"})

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedError != "" {
				assert.Equal(t, tt.expectedError, errorCodeOf(t, w))
				return
			}
			assert.Equal(t, tt.status, dataOf(t, w)["status"])
		})
	}

	var count int64
	db.Model(&models.OrderStatusHistory{}).Where("order_id = ?", order.ID).Count(&count)
	assert.Equal(t, int64(2), count, "only the accepted transition adds history")
}

func TestAssignDistributorEndpoint(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedOrder(t, db, customer, variation, 5, models.PaymentMethodCard)
	path := "/admin/orders/" + order.ID.String() + "/assign"

	router := newRouter(admin)
	router.POST("/admin/orders/:id/assign", AssignDistributor)

	w := doJSON(router, http.MethodPost, path, map[string]uint{"distributor_id": customer.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorCodeOf(t, w))

	w = doJSON(router, http.MethodPost, path, map[string]uint{"distributor_id": 9999})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodPost, path, map[string]uint{"distributor_id": distributor.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code, "unpaid orders cannot be assigned")
	assert.Equal(t, "INVALID_TRANSITION", errorCodeOf(t, w))

	orders := services.NewOrderService(db)
	for _, status := range []models.OrderStatus{models.OrderPaymentReceived, models.OrderProcessing} {
		_, err := orders.UpdateOrderStatus(context.Background(), order.ID, status, "", nil)
		require.NoError(t, err)
	}

	w = doJSON(router, http.MethodPost, path, map[string]uint{"distributor_id": distributor.ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := dataOf(t, w)
	assert.Equal(t, float64(distributor.ID), data["distributor_id"])
	assert.Equal(t, "Assigned", data["status"])
}

func TestCancelOrderEndpoint(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedOrder(t, db, customer, variation, 5, models.PaymentMethodETransfer)
	path := "/admin/orders/" + order.ID.String() + "/cancel"

	router := newRouter(admin)
	router.POST("/admin/orders/:id/cancel", CancelOrder)

	w := doJSON(router, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Cancelled", dataOf(t, w)["status"])

	w = doJSON(router, http.MethodPost, path, map[string]string{"notes": "again"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_TRANSITION", errorCodeOf(t, w))
}

func fulfillRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	body, contentType := testutil.MultipartBody(t, map[string]string{
		"tracking_number": "1Z999",
		"carrier":         "Canada Post",
	}, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestDistributorFulfillOrder(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	otherDistributor := testutil.CreateUser(t, db, "Other Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)

	storage := services.NewMockProofStorage()
	storage.SetAsMockForTesting()
	t.Cleanup(func() { services.SetProofStorage(nil) })

	t.Run("Unassigned distributor is forbidden", func(t *testing.T) {
		order := seedAssignedOrder(t, db, customer, distributor, variation)
		router := newRouter(otherDistributor)
		router.POST("/distributor/orders/:id/fulfill", DistributorFulfillOrder)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, fulfillRequest(t, "/distributor/orders/"+order.ID.String()+"/fulfill", "proof.png", testutil.PNGHeader))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "FORBIDDEN", errorCodeOf(t, w))
		assert.Equal(t, 0, storage.Count())
	})

	t.Run("Rejects a non-image proof", func(t *testing.T) {
		order := seedAssignedOrder(t, db, customer, distributor, variation)
		router := newRouter(distributor)
		router.POST("/distributor/orders/:id/fulfill", DistributorFulfillOrder)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, fulfillRequest(t, "/distributor/orders/"+order.ID.String()+"/fulfill", "proof.txt", []byte("plain text")))

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_FILE_FORMAT", errorCodeOf(t, w))
		assert.Equal(t, 0, storage.Count())
	})

	t.Run("Fulfills with proof", func(t *testing.T) {
		storage.Clear()
		order := seedAssignedOrder(t, db, customer, distributor, variation)
		path := "/distributor/orders/" + order.ID.String() + "/fulfill"
		router := newRouter(distributor)
		router.POST("/distributor/orders/:id/fulfill", DistributorFulfillOrder)
		router.GET("/orders/:id", GetOrder)

		w := httptest.NewRecorder()
		router.ServeHTTP(w, fulfillRequest(t, path, "proof.png", testutil.PNGHeader))

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := dataOf(t, w)
		assert.Equal(t, "Fulfilled", data["status"])
		fulfillment := data["fulfillment"].(map[string]interface{})
		assert.Equal(t, "1Z999", fulfillment["tracking_number"])
		proofKey := fulfillment["proof_key"].(string)
		assert.True(t, storage.FileExists(proofKey))

		w = doJSON(router, http.MethodGet, "/orders/"+order.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)
		fulfillment = dataOf(t, w)["fulfillment"].(map[string]interface{})
		assert.Contains(t, fulfillment["proof_url"], proofKey)

		var commission models.Commission
		require.NoError(t, db.Where("user_id = ? AND type = ?", distributor.ID, models.CommissionDistributorFulfillment).First(&commission).Error)
		assert.Equal(t, models.CommissionPending, commission.Status)

		// a second attempt is rejected and its upload removed
		w = httptest.NewRecorder()
		router.ServeHTTP(w, fulfillRequest(t, path, "again.png", testutil.PNGHeader))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "INVALID_TRANSITION", errorCodeOf(t, w))
		assert.Equal(t, 1, storage.Count())
	})
}

func TestAdminFulfillOrderWithoutProof(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	admin := testutil.CreateUser(t, db, "Admin", models.RoleAdmin)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	order := seedAssignedOrder(t, db, customer, distributor, variation)
	services.SetProofStorage(nil)

	router := newRouter(admin)
	router.POST("/admin/orders/:id/fulfill", AdminFulfillOrder)

	t.Run("Proof upload without storage", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, fulfillRequest(t, "/admin/orders/"+order.ID.String()+"/fulfill", "proof.png", testutil.PNGHeader))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "PROOF_STORAGE_UNAVAILABLE", errorCodeOf(t, w))
	})

	t.Run("JSON body without proof", func(t *testing.T) {
		w := doJSON(router, http.MethodPost, fmt.Sprintf("/admin/orders/%s/fulfill", order.ID), map[string]string{
			"tracking_number": "TRK-1",
			"carrier":         "UPS",
		})

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := dataOf(t, w)
		assert.Equal(t, "Fulfilled", data["status"])
		assert.NotContains(t, data["fulfillment"], "proof_key")
	})
}

func TestDistributorListOrders(t *testing.T) {
	db := testutil.NewTestDB(t)
	customer := testutil.CreateUser(t, db, "Customer", models.RoleCustomer)
	distributor := testutil.CreateUser(t, db, "Distributor", models.RoleDistributor)
	variation := testutil.CreateVariation(t, db, "6.50", 50)
	seedAssignedOrder(t, db, customer, distributor, variation)
	seedOrder(t, db, customer, variation, 5, models.PaymentMethodCard)

	router := newRouter(distributor)
	router.GET("/distributor/orders", DistributorListOrders)

	w := doJSON(router, http.MethodGet, "/distributor/orders", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), dataOf(t, w)["total"])
}
