package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
	"github.com/kendall-kelly/pouch-store-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// newTestRouter builds the full application router over a fresh in-memory database
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	services.BcryptCost = bcrypt.MinCost

	testutil.NewTestDB(t)
	cfg := testutil.TestConfig()
	store := cache.NewMemoryStore(0)
	cache.SetDefault(store)
	t.Cleanup(func() { store.Close() })

	router, err := setupRouter(cfg, store)
	require.NoError(t, err)
	return router
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()

	var response struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), w.Body.String())
	assert.False(t, response.Success)
	return response.Error.Code
}

// TestHealthEndpointIntegration tests the /api/v1/health endpoint with full routing
func TestHealthEndpointIntegration(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, httptest.NewRequest("GET", "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code, "Expected status 200 OK")

	var response map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err, "Response should be valid JSON")
	assert.Equal(t, true, response["success"])
	assert.Equal(t, "Pouch Store API is running", response["message"])
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
}

// TestHealthEndpointMethod tests that only GET method is allowed
func TestHealthEndpointMethod(t *testing.T) {
	router := newTestRouter(t)

	for _, method := range []string{"POST", "PUT", "DELETE"} {
		w := serve(router, httptest.NewRequest(method, "/api/v1/health", nil))
		assert.Equal(t, http.StatusNotFound, w.Code, "%s should not be allowed", method)
	}
}

// TestAPIV1Prefix tests that the endpoints require the /api/v1 prefix
func TestAPIV1Prefix(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusNotFound, w.Code, "Endpoint should require /api/v1 prefix")

	w = serve(router, httptest.NewRequest("GET", "/products", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(router, httptest.NewRequest("GET", "/api/v1/products", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestCORSPreflight tests that configured origins may call the API with credentials
func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("OPTIONS", "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-CSRF-Token")
	w := serve(router, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest("OPTIONS", "/api/v1/cart/items", nil)
	req.Header.Set("Origin", "http://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w = serve(router, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

// TestProtectedRoutesRequireToken tests that authenticated routes reject anonymous callers
func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t)

	paths := []string{"/api/v1/users/me", "/api/v1/cart", "/api/v1/orders/me", "/api/v1/commissions/me", "/api/v1/admin/users", "/api/v1/distributor/orders"}
	for _, path := range paths {
		w := serve(router, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, "INVALID_TOKEN", errorCode(t, w), path)
	}
}

// TestStateChangingRoutesRequireCSRF tests the double-submit check on authenticated writes
func TestStateChangingRoutesRequireCSRF(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest("POST", "/api/v1/cart/items", strings.NewReader(`{"variation_id":1,"quantity":5}`))
	req.Header.Set("Content-Type", "application/json")
	w := serve(router, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "CSRF_TOKEN_INVALID", errorCode(t, w))
}

// TestRoleRestrictedRoutes tests that customers cannot reach admin or distributor routes
func TestRoleRestrictedRoutes(t *testing.T) {
	router := newTestRouter(t)
	client := newAPIClient(t, router)
	client.register("shopper@example.com", "")

	for _, path := range []string{"/api/v1/admin/users", "/api/v1/admin/tasks", "/api/v1/distributor/orders"} {
		w := client.do("GET", path, nil)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, "INSUFFICIENT_ROLE", errorCode(t, w), path)
	}

	w := client.do("GET", "/api/v1/users/me", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(models.RoleCustomer), client.data(w)["role"])
}

// TestRateLimitHeaders tests that API responses carry the rate limit budget
func TestRateLimitHeaders(t *testing.T) {
	router := newTestRouter(t)

	w := serve(router, httptest.NewRequest("GET", "/api/v1/products", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "999", w.Header().Get("X-RateLimit-Remaining"))
}
