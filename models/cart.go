package models

import "time"

// CartItem is one line of a user's cart
type CartItem struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	UserID      uint             `gorm:"not null;uniqueIndex:idx_cart_user_variation" json:"user_id"`
	VariationID uint             `gorm:"not null;uniqueIndex:idx_cart_user_variation" json:"variation_id"`
	Variation   ProductVariation `gorm:"foreignKey:VariationID" json:"variation"`
	Quantity    int              `gorm:"not null;check:quantity > 0" json:"quantity"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the CartItem model
func (CartItem) TableName() string {
	return "cart_items"
}
