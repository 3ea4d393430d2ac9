package main

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/kendall-kelly/pouch-store-api/routes"
	"github.com/kendall-kelly/pouch-store-api/services"
)

func main() {
	log.Println("Starting Pouch Store API server...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := config.ConnectDatabase(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.Migrate(config.GetDB()); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database migration completed successfully")

	store := connectCache(cfg)
	defer store.Close()

	if cfg.HasS3() {
		if _, err := services.InitProofStorage(cfg); err != nil {
			log.Fatalf("Failed to initialize proof storage: %v", err)
		}
		log.Printf("Proof storage initialized (bucket %s)", cfg.AWSS3Bucket)
	} else {
		log.Println("AWS S3 not configured, fulfillment proof uploads are disabled")
	}

	router, err := setupRouter(cfg, store)
	if err != nil {
		log.Fatalf("Failed to set up routes: %v", err)
	}

	port := ":" + cfg.Port
	log.Printf("Server is running on http://localhost%s", port)
	if err := router.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// connectCache uses redis when REDIS_URL is set and an in-memory store otherwise
func connectCache(cfg *config.Config) cache.Store {
	if cfg.RedisURL != "" {
		store, err := cache.ConnectRedis(cfg.RedisURL)
		if err == nil {
			cache.SetDefault(store)
			log.Println("Redis cache connected")
			return store
		}
		log.Printf("Redis unavailable, falling back to in-memory cache: %v", err)
	}
	store := cache.Default()
	log.Println("Using in-memory cache")
	return store
}

// setupRouter builds the gin engine with every route mounted
func setupRouter(cfg *config.Config, store cache.Store) (*gin.Engine, error) {
	router := gin.Default()
	router.Use(routes.CORS(cfg))

	v1 := router.Group("/api/v1")
	v1.GET("/health", healthCheck)
	v1.GET("/database/status", databaseStatus)

	if err := routes.Register(v1, cfg, store); err != nil {
		return nil, err
	}
	return router, nil
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Pouch Store API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()

	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	if err := sqlDB.Ping(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	tables, err := db.Migrator().GetTables()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
