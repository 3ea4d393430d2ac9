package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kendall-kelly/pouch-store-api/cache"
	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const productCacheTTL = 5 * time.Minute

// ProductService manages the catalog and per-location inventory
type ProductService struct {
	db    *gorm.DB
	cache cache.Store
}

// NewProductService creates a new product service instance backed by store for cached reads
func NewProductService(db *gorm.DB, store cache.Store) *ProductService {
	return &ProductService{db: db, cache: store}
}

// ProductInput holds writable product fields; empty strings and nil pointers are left unchanged on update
type ProductInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
	IsActive    *bool  `json:"is_active"`
}

// VariationInput holds writable variation fields
type VariationInput struct {
	Flavor         string           `json:"flavor"`
	Strength       string           `json:"strength"`
	SKU            string           `json:"sku"`
	Price          *decimal.Decimal `json:"price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	IsActive       *bool            `json:"is_active"`
}

// CreateProduct adds a product to the catalog
func (s *ProductService) CreateProduct(ctx context.Context, input ProductInput) (*models.Product, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	slug := input.Slug
	if slug == "" {
		slug = slugify(input.Name)
	}
	product := models.Product{
		Name:        input.Name,
		Slug:        slug,
		Description: input.Description,
		Category:    input.Category,
		ImageURL:    input.ImageURL,
		IsActive:    input.IsActive == nil || *input.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(&product).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: a product with slug %q already exists", ErrConflict, slug)
		}
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.invalidate(ctx, product.ID)
	return &product, nil
}

// UpdateProduct changes the provided fields of a product
func (s *ProductService) UpdateProduct(ctx context.Context, id uint, input ProductInput) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, id).Error; err != nil {
		return nil, notFound(err, "product")
	}

	updates := make(map[string]interface{})
	if input.Name != "" {
		updates["name"] = input.Name
	}
	if input.Slug != "" {
		updates["slug"] = input.Slug
	}
	if input.Description != "" {
		updates["description"] = input.Description
	}
	if input.Category != "" {
		updates["category"] = input.Category
	}
	if input.ImageURL != "" {
		updates["image_url"] = input.ImageURL
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&product).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: slug already in use", ErrConflict)
			}
			return nil, fmt.Errorf("failed to update product: %w", err)
		}
		s.invalidate(ctx, id)
	}

	return s.loadProduct(ctx, id)
}

// DeleteProduct soft-deletes a product and its variations
func (s *ProductService) DeleteProduct(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&models.Product{}, id)
		if result.Error != nil {
			return fmt.Errorf("failed to delete product: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: product", ErrNotFound)
		}
		if err := tx.Where("product_id = ?", id).Delete(&models.ProductVariation{}).Error; err != nil {
			return fmt.Errorf("failed to delete variations: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// GetProduct returns a product with its variations, served from cache when possible
func (s *ProductService) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	return cache.Remember(ctx, s.cache, productKey(id), productCacheTTL, func() (*models.Product, error) {
		return s.loadProduct(ctx, id)
	})
}

// GetActiveProduct returns a product as the storefront sees it: inactive products are not
// found and inactive variations are left out
func (s *ProductService) GetActiveProduct(ctx context.Context, id uint) (*models.Product, error) {
	product, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !product.IsActive {
		return nil, fmt.Errorf("%w: product", ErrNotFound)
	}

	visible := *product
	visible.Variations = make([]models.ProductVariation, 0, len(product.Variations))
	for _, variation := range product.Variations {
		if variation.IsActive {
			visible.Variations = append(visible.Variations, variation)
		}
	}
	return &visible, nil
}

func (s *ProductService) loadProduct(ctx context.Context, id uint) (*models.Product, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).
		Preload("Variations", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&product, id).Error; err != nil {
		return nil, notFound(err, "product")
	}
	return &product, nil
}

// ListProducts returns the catalog, optionally restricted to a category and to active products
func (s *ProductService) ListProducts(ctx context.Context, category string, activeOnly bool) ([]models.Product, error) {
	key := fmt.Sprintf("products:all:%t", activeOnly)
	if category != "" {
		key = fmt.Sprintf("products:category:%s:%t", category, activeOnly)
	}
	return cache.Remember(ctx, s.cache, key, productCacheTTL, func() ([]models.Product, error) {
		query := s.db.WithContext(ctx).Order("name ASC")
		variations := func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }
		if activeOnly {
			query = query.Where("is_active = ?", true)
			variations = func(db *gorm.DB) *gorm.DB { return db.Where("is_active = ?", true).Order("id ASC") }
		}
		if category != "" {
			query = query.Where("category = ?", category)
		}
		var products []models.Product
		if err := query.Preload("Variations", variations).Find(&products).Error; err != nil {
			return nil, fmt.Errorf("failed to list products: %w", err)
		}
		return products, nil
	})
}

// CreateVariation adds a flavor/strength to a product
func (s *ProductService) CreateVariation(ctx context.Context, productID uint, input VariationInput) (*models.ProductVariation, error) {
	if input.Flavor == "" || input.SKU == "" {
		return nil, fmt.Errorf("%w: flavor and sku are required", ErrValidation)
	}
	if input.Price == nil || input.Price.IsNegative() || input.Price.IsZero() {
		return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
	}

	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, productID).Error; err != nil {
		return nil, notFound(err, "product")
	}

	variation := models.ProductVariation{
		ProductID: productID,
		Flavor:    input.Flavor,
		Strength:  input.Strength,
		SKU:       input.SKU,
		Price:     roundMoney(*input.Price),
		IsActive:  input.IsActive == nil || *input.IsActive,
	}
	if input.WholesalePrice != nil {
		variation.WholesalePrice = decimal.NewNullDecimal(roundMoney(*input.WholesalePrice))
	}
	if err := s.db.WithContext(ctx).Create(&variation).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: sku %q already exists", ErrConflict, input.SKU)
		}
		return nil, fmt.Errorf("failed to create variation: %w", err)
	}
	s.invalidate(ctx, productID)
	return &variation, nil
}

// UpdateVariation changes the provided fields of a variation. Existing order items keep their price snapshot.
func (s *ProductService) UpdateVariation(ctx context.Context, id uint, input VariationInput) (*models.ProductVariation, error) {
	variation, err := s.GetVariation(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := make(map[string]interface{})
	if input.Flavor != "" {
		updates["flavor"] = input.Flavor
	}
	if input.Strength != "" {
		updates["strength"] = input.Strength
	}
	if input.SKU != "" {
		updates["sku"] = input.SKU
	}
	if input.Price != nil {
		if !input.Price.IsPositive() {
			return nil, fmt.Errorf("%w: price must be positive", ErrValidation)
		}
		updates["price"] = roundMoney(*input.Price)
	}
	if input.WholesalePrice != nil {
		updates["wholesale_price"] = decimal.NewNullDecimal(roundMoney(*input.WholesalePrice))
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&models.ProductVariation{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			if isUniqueViolation(err) {
				return nil, fmt.Errorf("%w: sku already in use", ErrConflict)
			}
			return nil, fmt.Errorf("failed to update variation: %w", err)
		}
		s.invalidate(ctx, variation.ProductID)
	}
	return s.GetVariation(ctx, id)
}

// SetVariationActive shows or hides a variation in the storefront
func (s *ProductService) SetVariationActive(ctx context.Context, id uint, active bool) (*models.ProductVariation, error) {
	return s.UpdateVariation(ctx, id, VariationInput{IsActive: &active})
}

// GetVariation returns a variation with its product
func (s *ProductService) GetVariation(ctx context.Context, id uint) (*models.ProductVariation, error) {
	var variation models.ProductVariation
	if err := s.db.WithContext(ctx).Preload("Product").First(&variation, id).Error; err != nil {
		return nil, notFound(err, "variation")
	}
	return &variation, nil
}

// UpsertLocation creates or renames an inventory location by code
func (s *ProductService) UpsertLocation(ctx context.Context, code, name string) (*models.InventoryLocation, error) {
	if code == "" || name == "" {
		return nil, fmt.Errorf("%w: location code and name are required", ErrValidation)
	}
	location := models.InventoryLocation{Code: code, Name: name}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "code"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(&location).Error; err != nil {
		return nil, fmt.Errorf("failed to save location: %w", err)
	}
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&location).Error; err != nil {
		return nil, fmt.Errorf("failed to load location: %w", err)
	}
	return &location, nil
}

// SetInventory sets the absolute stock of a variation at a location
func (s *ProductService) SetInventory(ctx context.Context, variationID, locationID uint, quantity int) (*models.Inventory, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}
	if _, err := s.GetVariation(ctx, variationID); err != nil {
		return nil, err
	}
	var location models.InventoryLocation
	if err := s.db.WithContext(ctx).First(&location, locationID).Error; err != nil {
		return nil, notFound(err, "location")
	}

	inventory := models.Inventory{VariationID: variationID, LocationID: locationID, Quantity: quantity}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "variation_id"}, {Name: "location_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"quantity", "updated_at"}),
	}).Create(&inventory).Error; err != nil {
		return nil, fmt.Errorf("failed to set inventory: %w", err)
	}

	var saved models.Inventory
	if err := s.db.WithContext(ctx).Preload("Location").
		Where("variation_id = ? AND location_id = ?", variationID, locationID).First(&saved).Error; err != nil {
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}
	return &saved, nil
}

// AdjustInventory adds delta to the stock at a location; stock never drops below zero
func (s *ProductService) AdjustInventory(ctx context.Context, variationID, locationID uint, delta int) (*models.Inventory, error) {
	var inventory models.Inventory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("variation_id = ? AND location_id = ?", variationID, locationID).First(&inventory).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			inventory = models.Inventory{VariationID: variationID, LocationID: locationID}
		} else if err != nil {
			return fmt.Errorf("failed to load inventory: %w", err)
		}
		if inventory.Quantity+delta < 0 {
			return fmt.Errorf("%w: only %d units in stock at this location", ErrValidation, inventory.Quantity)
		}
		inventory.Quantity += delta
		if err := tx.Save(&inventory).Error; err != nil {
			return fmt.Errorf("failed to adjust inventory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inventory, nil
}

// GetTotalStock sums the stock of a variation across all locations
func (s *ProductService) GetTotalStock(ctx context.Context, variationID uint) (int, error) {
	stock, err := totalStock(s.db.WithContext(ctx), []uint{variationID})
	if err != nil {
		return 0, err
	}
	return stock[variationID], nil
}

// ValidateWholesaleMinimum rejects wholesale orders below the wholesale minimum
func (s *ProductService) ValidateWholesaleMinimum(totalQuantity int) error {
	if totalQuantity < WholesaleMinimumQuantity {
		return fmt.Errorf("%w: wholesale orders require at least %d units, got %d", ErrValidation, WholesaleMinimumQuantity, totalQuantity)
	}
	return nil
}

func (s *ProductService) invalidate(ctx context.Context, productID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, productKey(productID)); err != nil {
		log.Printf("Failed to delete product cache %d: %v", productID, err)
	}
	if err := s.cache.DeletePrefix(ctx, "products:"); err != nil {
		log.Printf("Failed to delete product list cache: %v", err)
	}
}

func productKey(id uint) string {
	return fmt.Sprintf("product:%d", id)
}

// totalStock sums stock across locations for each variation id
func totalStock(db *gorm.DB, variationIDs []uint) (map[uint]int, error) {
	var rows []struct {
		VariationID uint
		Total       int
	}
	if err := db.Model(&models.Inventory{}).
		Select("variation_id, COALESCE(SUM(quantity), 0) AS total").
		Where("variation_id IN ?", variationIDs).
		Group("variation_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to sum inventory: %w", err)
	}
	stock := make(map[uint]int, len(rows))
	for _, row := range rows {
		stock[row.VariationID] = row.Total
	}
	return stock, nil
}

// deductStock removes quantity units of a variation, drawing from the best-stocked locations first
func deductStock(tx *gorm.DB, variationID uint, quantity int) error {
	var rows []models.Inventory
	if err := tx.Where("variation_id = ? AND quantity > 0", variationID).
		Order("quantity DESC, id ASC").
		Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to load inventory: %w", err)
	}

	remaining := quantity
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		take := row.Quantity
		if take > remaining {
			take = remaining
		}
		result := tx.Model(&models.Inventory{}).
			Where("id = ? AND quantity >= ?", row.ID, take).
			Update("quantity", gorm.Expr("quantity - ?", take))
		if result.Error != nil {
			return fmt.Errorf("failed to deduct inventory: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: inventory changed during checkout", ErrConflict)
		}
		remaining -= take
	}
	if remaining > 0 {
		return fmt.Errorf("%w: insufficient stock for variation %d", ErrValidation, variationID)
	}
	return nil
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
