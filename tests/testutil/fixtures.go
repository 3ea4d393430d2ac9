package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kendall-kelly/pouch-store-api/config"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestPassword is the password of every user created by CreateUser
const TestPassword = "password123"

var fixtureSeq atomic.Int64

func nextSeq() int64 {
	return fixtureSeq.Add(1)
}

// NewTestDB opens a migrated in-memory SQLite database and installs it with config.SetDB.
// The pool is capped at one connection so every query sees the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	config.SetDB(db)

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// TestConfig returns a configuration suitable for tests and installs it with config.SetConfig
func TestConfig() *config.Config {
	cfg := &config.Config{
		DatabaseURL:        "sqlite://:memory:",
		Port:               "8080",
		GoEnv:              "test",
		JWTSecret:          "test-secret-that-is-long-enough-for-hs256",
		JWTIssuer:          "pouch-store-api",
		JWTAudience:        "pouch-store",
		AccessTokenTTL:     time.Hour,
		RefreshTokenTTL:    24 * time.Hour,
		CORSAllowedOrigins: []string{"http://localhost:3000"},
		RateLimitRequests:  1000,
		RateLimitWindow:    time.Minute,
		AWSRegion:          "us-east-1",
		LogLevel:           "silent",
	}
	config.SetConfig(cfg)
	return cfg
}

// CreateUser inserts an active user with TestPassword
func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(TestPassword), bcrypt.MinCost)
	require.NoError(t, err)

	seq := nextSeq()
	user := &models.User{
		Email:             fmt.Sprintf("user%d@example.com", seq),
		PasswordHash:      string(hash),
		Name:              name,
		Role:              role,
		Status:            models.UserStatusActive,
		ReferralCode:      fmt.Sprintf("REF%05d", seq),
		CommissionBalance: decimal.Zero,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateReferredUser inserts a customer referred by referrer
func CreateReferredUser(t *testing.T, db *gorm.DB, name string, referrer *models.User) *models.User {
	t.Helper()

	user := CreateUser(t, db, name, models.RoleCustomer)
	require.NoError(t, db.Model(user).Update("referred_by", referrer.ID).Error)
	user.ReferredBy = &referrer.ID
	return user
}

// CreateVariation inserts an active product with one variation priced at price and stocked
// with stock units at a single location
func CreateVariation(t *testing.T, db *gorm.DB, price string, stock int) *models.ProductVariation {
	t.Helper()

	seq := nextSeq()
	product := &models.Product{
		Name:     fmt.Sprintf("Pouch %d", seq),
		Slug:     fmt.Sprintf("pouch-%d", seq),
		Category: "nicotine",
		IsActive: true,
	}
	require.NoError(t, db.Create(product).Error)

	variation := &models.ProductVariation{
		ProductID: product.ID,
		Flavor:    "Mint",
		Strength:  "6mg",
		SKU:       fmt.Sprintf("SKU-%d", seq),
		Price:     decimal.RequireFromString(price),
		IsActive:  true,
	}
	require.NoError(t, db.Create(variation).Error)

	if stock > 0 {
		location := &models.InventoryLocation{Code: fmt.Sprintf("WH-%d", seq), Name: "Warehouse"}
		require.NoError(t, db.Create(location).Error)
		require.NoError(t, db.Create(&models.Inventory{VariationID: variation.ID, LocationID: location.ID, Quantity: stock}).Error)
	}

	variation.Product = product
	return variation
}

// AddToCart inserts a cart line directly
func AddToCart(t *testing.T, db *gorm.DB, userID, variationID uint, quantity int) {
	t.Helper()
	require.NoError(t, db.Create(&models.CartItem{UserID: userID, VariationID: variationID, Quantity: quantity}).Error)
}

// TestAddress returns a complete shipping address
func TestAddress() models.Address {
	return models.Address{
		Name:       "Test Customer",
		Line1:      "123 Main St",
		City:       "Toronto",
		Province:   "ON",
		PostalCode: "M5V 2T6",
		Country:    "CA",
	}
}
