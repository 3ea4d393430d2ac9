package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment tracks the settlement of an order
type Payment struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	OrderID       uuid.UUID       `gorm:"type:varchar(36);not null;index" json:"order_id"`
	PaymentMethod PaymentMethod   `gorm:"type:varchar(16);not null" json:"payment_method"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status        PaymentStatus   `gorm:"type:varchar(32);not null;index" json:"status"`
	TransactionID string          `json:"transaction_id,omitempty"`
	SenderName    string          `json:"sender_name,omitempty"`
	Notes         string          `gorm:"type:text" json:"notes,omitempty"`
	ConfirmedBy   *uint           `json:"confirmed_by,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TableName specifies the table name for the Payment model
func (Payment) TableName() string {
	return "payments"
}
