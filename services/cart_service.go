package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/pouch-store-api/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// RetailMinimumQuantity is the smallest retail order, in units
	RetailMinimumQuantity = 5
	// WholesaleMinimumQuantity is the smallest wholesale order, in units
	WholesaleMinimumQuantity = 100
)

// CartService manages shopping carts
type CartService struct {
	db *gorm.DB
}

// NewCartService creates a new cart service instance
func NewCartService(db *gorm.DB) *CartService {
	return &CartService{db: db}
}

// Cart is a user's cart with derived totals
type Cart struct {
	Items         []models.CartItem `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
}

// CartValidation is the outcome of a minimum-quantity check
type CartValidation struct {
	IsValid         bool   `json:"is_valid"`
	Message         string `json:"message,omitempty"`
	TotalQuantity   int    `json:"total_quantity"`
	MinimumRequired int    `json:"minimum_required"`
}

// ValidateCartQuantity checks a cart's total unit count against the retail or wholesale minimum
func ValidateCartQuantity(totalQuantity int, isWholesale bool) CartValidation {
	result := CartValidation{IsValid: true, TotalQuantity: totalQuantity, MinimumRequired: RetailMinimumQuantity}
	if isWholesale {
		result.MinimumRequired = WholesaleMinimumQuantity
	}
	if totalQuantity >= result.MinimumRequired {
		return result
	}

	result.IsValid = false
	if isWholesale {
		result.Message = fmt.Sprintf("Wholesale orders require a minimum of %d units. You have %d units in your cart.", WholesaleMinimumQuantity, totalQuantity)
	} else {
		result.Message = fmt.Sprintf("Minimum order quantity is %d units. You have %d units in your cart.", RetailMinimumQuantity, totalQuantity)
	}
	return result
}

// ValidateQuantities checks the active lines of a cart against the retail or wholesale minimum
func ValidateQuantities(lines []models.CartItem, isWholesale bool) CartValidation {
	return ValidateCartQuantity(activeQuantity(lines), isWholesale)
}

// purchasable reports whether a cart line's variation and its product are both still sold
func purchasable(line models.CartItem) bool {
	if !line.Variation.IsActive {
		return false
	}
	return line.Variation.Product == nil || line.Variation.Product.IsActive
}

// purchasableLines drops lines whose variation or product has been retired
func purchasableLines(lines []models.CartItem) []models.CartItem {
	kept := make([]models.CartItem, 0, len(lines))
	for _, line := range lines {
		if purchasable(line) {
			kept = append(kept, line)
		}
	}
	return kept
}

// activeQuantity sums the quantities of lines that can still be bought
func activeQuantity(lines []models.CartItem) int {
	total := 0
	for _, line := range purchasableLines(lines) {
		total += line.Quantity
	}
	return total
}

// loadCartLines returns a user's cart lines with their variations and products
func loadCartLines(db *gorm.DB, userID uint) ([]models.CartItem, error) {
	var lines []models.CartItem
	if err := db.Preload("Variation.Product").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return lines, nil
}

// GetCart returns the cart with its totals, priced at retail or wholesale
func (s *CartService) GetCart(ctx context.Context, userID uint, wholesale bool) (*Cart, error) {
	lines, err := loadCartLines(s.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}
	cart := &Cart{Items: lines, Subtotal: decimal.Zero}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	for _, line := range lines {
		cart.TotalQuantity += line.Quantity
		price := line.Variation.UnitPrice(wholesale)
		cart.Subtotal = cart.Subtotal.Add(price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	cart.Subtotal = roundMoney(cart.Subtotal)
	return cart, nil
}

// AddItem adds quantity units of a variation, merging with an existing line
func (s *CartService) AddItem(ctx context.Context, userID, variationID uint, quantity int) (*models.CartItem, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	var item models.CartItem
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var variation models.ProductVariation
		if err := tx.Preload("Product").First(&variation, variationID).Error; err != nil {
			return notFound(err, "variation")
		}
		if !variation.IsActive || (variation.Product != nil && !variation.Product.IsActive) {
			return fmt.Errorf("%w: %s is not available", ErrValidation, variation.Flavor)
		}

		err := tx.Where("user_id = ? AND variation_id = ?", userID, variationID).First(&item).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			item = models.CartItem{UserID: userID, VariationID: variationID, Quantity: quantity}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("failed to add cart item: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to load cart item: %w", err)
		default:
			if err := tx.Model(&item).Update("quantity", item.Quantity+quantity).Error; err != nil {
				return fmt.Errorf("failed to update cart item: %w", err)
			}
			item.Quantity += quantity
		}
		item.Variation = variation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpdateQuantity sets the quantity of a cart line; zero removes the line
func (s *CartService) UpdateQuantity(ctx context.Context, userID, variationID uint, quantity int) (*models.CartItem, error) {
	if quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrValidation)
	}
	if quantity == 0 {
		return nil, s.RemoveItem(ctx, userID, variationID)
	}

	var item models.CartItem
	if err := s.db.WithContext(ctx).Where("user_id = ? AND variation_id = ?", userID, variationID).First(&item).Error; err != nil {
		return nil, notFound(err, "cart item")
	}
	if err := s.db.WithContext(ctx).Model(&item).Update("quantity", quantity).Error; err != nil {
		return nil, fmt.Errorf("failed to update cart item: %w", err)
	}
	item.Quantity = quantity
	return &item, nil
}

// RemoveItem deletes one cart line
func (s *CartService) RemoveItem(ctx context.Context, userID, variationID uint) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND variation_id = ?", userID, variationID).Delete(&models.CartItem{})
	if result.Error != nil {
		return fmt.Errorf("failed to remove cart item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: cart item", ErrNotFound)
	}
	return nil
}

// ClearCart empties a user's cart
func (s *CartService) ClearCart(ctx context.Context, userID uint) error {
	return clearCart(s.db.WithContext(ctx), userID)
}

func clearCart(db *gorm.DB, userID uint) error {
	if err := db.Where("user_id = ?", userID).Delete(&models.CartItem{}).Error; err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// ValidateCart checks the cart's active quantity against the retail or wholesale minimum
func (s *CartService) ValidateCart(ctx context.Context, userID uint, isWholesale bool) (CartValidation, error) {
	lines, err := loadCartLines(s.db.WithContext(ctx), userID)
	if err != nil {
		return CartValidation{}, err
	}
	return ValidateQuantities(lines, isWholesale), nil
}

// ValidateInventory lists one message per cart line that exceeds available stock; an empty list means the cart can be filled
func (s *CartService) ValidateInventory(ctx context.Context, userID uint) ([]string, error) {
	db := s.db.WithContext(ctx)
	lines, err := loadCartLines(db, userID)
	if err != nil {
		return nil, err
	}
	return inventoryShortfalls(db, purchasableLines(lines))
}

func inventoryShortfalls(db *gorm.DB, lines []models.CartItem) ([]string, error) {
	shortfalls := []string{}
	if len(lines) == 0 {
		return shortfalls, nil
	}

	ids := make([]uint, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.VariationID)
	}
	stock, err := totalStock(db, ids)
	if err != nil {
		return nil, err
	}

	for _, line := range lines {
		available := stock[line.VariationID]
		if line.Quantity > available {
			shortfalls = append(shortfalls, fmt.Sprintf("Only %d units of %s available (requested %d)",
				available, variationLabel(line.Variation), line.Quantity))
		}
	}
	return shortfalls, nil
}

func variationLabel(v models.ProductVariation) string {
	label := v.Flavor
	if v.Strength != "" {
		label += " " + v.Strength
	}
	if v.Product != nil && v.Product.Name != "" {
		label = v.Product.Name + " " + label
	}
	return label
}

// TransferCart moves every line from one user's cart into another's, summing quantities on overlap.
// Used when a guest cart is claimed at login.
func (s *CartService) TransferCart(ctx context.Context, fromUserID, toUserID uint) (int, error) {
	if fromUserID == toUserID {
		return 0, fmt.Errorf("%w: cannot transfer a cart to itself", ErrValidation)
	}

	moved := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lines []models.CartItem
		if err := tx.Where("user_id = ?", fromUserID).Find(&lines).Error; err != nil {
			return fmt.Errorf("failed to load cart: %w", err)
		}

		for _, line := range lines {
			var existing models.CartItem
			err := tx.Where("user_id = ? AND variation_id = ?", toUserID, line.VariationID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				if err := tx.Create(&models.CartItem{UserID: toUserID, VariationID: line.VariationID, Quantity: line.Quantity}).Error; err != nil {
					return fmt.Errorf("failed to transfer cart item: %w", err)
				}
			case err != nil:
				return fmt.Errorf("failed to load cart item: %w", err)
			default:
				if err := tx.Model(&existing).Update("quantity", existing.Quantity+line.Quantity).Error; err != nil {
					return fmt.Errorf("failed to merge cart item: %w", err)
				}
			}
			moved++
		}

		return clearCart(tx, fromUserID)
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}
