package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Product groups the variations (flavor/strength) of one pouch line
type Product struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	Name        string             `gorm:"not null" json:"name"`
	Slug        string             `gorm:"uniqueIndex;not null" json:"slug"`
	Description string             `gorm:"type:text" json:"description"`
	Category    string             `gorm:"index" json:"category"`
	ImageURL    string             `json:"image_url,omitempty"`
	IsActive    bool               `gorm:"not null;default:true" json:"is_active"`
	Variations  []ProductVariation `gorm:"foreignKey:ProductID" json:"variations,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	DeletedAt   gorm.DeletedAt     `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// ProductVariation is a purchasable flavor/strength of a product
type ProductVariation struct {
	ID             uint                `gorm:"primaryKey" json:"id"`
	ProductID      uint                `gorm:"not null;index" json:"product_id"`
	Product        *Product            `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Flavor         string              `gorm:"not null" json:"flavor"`
	Strength       string              `json:"strength"`
	SKU            string              `gorm:"uniqueIndex;not null" json:"sku"`
	Price          decimal.Decimal     `gorm:"type:decimal(12,2);not null" json:"price"`
	WholesalePrice decimal.NullDecimal `gorm:"type:decimal(12,2)" json:"wholesale_price"` // nullable, falls back to Price
	IsActive       bool                `gorm:"not null;default:true" json:"is_active"`
	Inventory      []Inventory         `gorm:"foreignKey:VariationID" json:"inventory,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	DeletedAt      gorm.DeletedAt      `gorm:"index" json:"-"`
}

// TableName specifies the table name for the ProductVariation model
func (ProductVariation) TableName() string {
	return "product_variations"
}

// UnitPrice returns the price charged for the variation, honoring wholesale pricing when set
func (v *ProductVariation) UnitPrice(wholesale bool) decimal.Decimal {
	if wholesale && v.WholesalePrice.Valid {
		return v.WholesalePrice.Decimal
	}
	return v.Price
}

// InventoryLocation is a warehouse or distributor stock point
type InventoryLocation struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Code      string    `gorm:"uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the InventoryLocation model
func (InventoryLocation) TableName() string {
	return "inventory_locations"
}

// Inventory is the stock level of one variation at one location
type Inventory struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	VariationID uint              `gorm:"not null;uniqueIndex:idx_inventory_variation_location" json:"variation_id"`
	LocationID  uint              `gorm:"not null;uniqueIndex:idx_inventory_variation_location" json:"location_id"`
	Location    InventoryLocation `gorm:"foreignKey:LocationID" json:"location"`
	Quantity    int               `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TableName specifies the table name for the Inventory model
func (Inventory) TableName() string {
	return "inventory"
}
