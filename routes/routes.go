package routes

import (
	"fmt"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/controllers"
	"github.com/kendall-kelly/pouch-store-api/middleware"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/services"
)

// csrfExempt lists the auth endpoints that are reachable before a csrf cookie exists
var csrfExempt = []string{"/auth/login", "/auth/register", "/auth/logout", "/auth/verify", "/auth/refresh"}

// CORS builds the cors middleware for the configured origins
func CORS(cfg *config.Config) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:     cfg.CORSAllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.CSRFHeaderName},
		ExposeHeaders:    []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	})
}

// Register wires every store endpoint onto v1
func Register(v1 *gin.RouterGroup, cfg *config.Config, store cache.Store) error {
	controllers.RegisterValidators()

	tokens, err := services.NewTokenService(config.GetDB(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	requireAuth := middleware.EnsureValidToken(tokens)
	admin := middleware.RequireRole(models.RoleAdmin)

	v1.Use(middleware.RateLimit(store, cfg.RateLimitRequests, cfg.RateLimitWindow))
	v1.Use(middleware.CSRFProtection(csrfExempt...))

	auth := v1.Group("/auth")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
		auth.POST("/refresh", controllers.Refresh)
		auth.POST("/logout", requireAuth, controllers.Logout)
		auth.GET("/verify", requireAuth, controllers.Verify)
		auth.GET("/csrf", controllers.CSRFToken)
	}

	v1.GET("/products", controllers.ListProducts)
	v1.GET("/products/:id", controllers.GetProduct)
	v1.GET("/variations/:id/stock", controllers.GetVariationStock)

	authed := v1.Group("", requireAuth)
	{
		authed.GET("/users/me", controllers.GetCurrentUser)
		authed.PUT("/users/me", controllers.UpdateCurrentUser)
		authed.PUT("/users/me/password", controllers.ChangePassword)
		authed.GET("/users/me/referrals", controllers.GetMyReferrals)
		authed.POST("/users/me/wholesale-application", controllers.ApplyForWholesale)

		authed.GET("/cart", controllers.GetCart)
		authed.POST("/cart/items", controllers.AddCartItem)
		authed.PUT("/cart/items/:variationId", controllers.UpdateCartItem)
		authed.DELETE("/cart/items/:variationId", controllers.RemoveCartItem)
		authed.DELETE("/cart", controllers.ClearCart)
		authed.GET("/cart/validate", controllers.ValidateCart)

		authed.POST("/orders", controllers.Checkout)
		authed.GET("/orders/me", controllers.ListMyOrders)
		authed.GET("/orders/:id", controllers.GetOrder)
		authed.GET("/orders/:id/history", controllers.GetOrderHistory)
		authed.PUT("/orders/:id/status", admin, controllers.UpdateOrderStatus)

		authed.GET("/commissions/me", controllers.MyCommissions)

		authed.POST("/payments/manual/etransfer-confirm", admin, controllers.ConfirmETransfer)
		authed.POST("/payments/manual/bitcoin-confirm", admin, controllers.ConfirmBitcoin)
	}

	distributor := authed.Group("/distributor", middleware.RequireRole(models.RoleDistributor))
	{
		distributor.GET("/orders", controllers.DistributorListOrders)
		distributor.POST("/orders/:id/fulfill", controllers.DistributorFulfillOrder)
	}

	adminGroup := authed.Group("/admin", admin)
	{
		adminGroup.GET("/users", controllers.ListUsers)
		adminGroup.POST("/users/:id/activate", controllers.ActivateUser)
		adminGroup.POST("/users/:id/suspend", controllers.SuspendUser)
		adminGroup.PUT("/users/:id/role", controllers.SetUserRole)
		adminGroup.POST("/users/:id/logout", controllers.RevokeUserSessions)
		adminGroup.POST("/users/:id/cart/transfer", controllers.TransferUserCart)

		adminGroup.GET("/wholesale-applications", controllers.ListWholesaleApplications)
		adminGroup.POST("/wholesale-applications/:id/review", controllers.ReviewWholesaleApplication)

		adminGroup.GET("/products", controllers.AdminListProducts)
		adminGroup.POST("/products", controllers.CreateProduct)
		adminGroup.PUT("/products/:id", controllers.UpdateProduct)
		adminGroup.DELETE("/products/:id", controllers.DeleteProduct)
		adminGroup.POST("/products/:id/variations", controllers.CreateVariation)
		adminGroup.PUT("/variations/:id", controllers.UpdateVariation)
		adminGroup.PUT("/inventory", controllers.SetInventory)
		adminGroup.POST("/inventory/adjust", controllers.AdjustInventory)

		adminGroup.GET("/orders", controllers.AdminListOrders)
		adminGroup.POST("/orders/:id/assign", controllers.AssignDistributor)
		adminGroup.POST("/orders/:id/fulfill", controllers.AdminFulfillOrder)
		adminGroup.POST("/orders/:id/cancel", controllers.CancelOrder)

		adminGroup.POST("/payments/:orderId/fail", controllers.FailPayment)

		adminGroup.GET("/commissions", controllers.AdminListCommissions)
		adminGroup.GET("/commissions/payable", controllers.PayableCommissions)
		adminGroup.POST("/commissions/:id/approve", controllers.ApproveCommission)
		adminGroup.POST("/commissions/:id/cancel", controllers.CancelCommission)
		adminGroup.POST("/commissions/payout", controllers.ProcessPayout)

		adminGroup.GET("/tasks", controllers.ListTasks)
		adminGroup.POST("/tasks/:id/complete", controllers.CompleteTask)
	}

	return nil
}
