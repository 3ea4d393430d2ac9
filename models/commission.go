package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType is why a commission is owed
type CommissionType string

const (
	CommissionOrderReferral          CommissionType = "Order Referral"
	CommissionWholesaleReferral      CommissionType = "Wholesale Referral"
	CommissionDistributorFulfillment CommissionType = "Distributor Fulfillment"
	CommissionBonus                  CommissionType = "Bonus"
)

// Valid reports whether the type is known
func (t CommissionType) Valid() bool {
	switch t {
	case CommissionOrderReferral, CommissionWholesaleReferral, CommissionDistributorFulfillment, CommissionBonus:
		return true
	}
	return false
}

// CommissionStatus moves Pending -> Approved -> Paid, or to Cancelled
type CommissionStatus string

const (
	CommissionPending   CommissionStatus = "Pending"
	CommissionApproved  CommissionStatus = "Approved"
	CommissionPaid      CommissionStatus = "Paid"
	CommissionCancelled CommissionStatus = "Cancelled"
)

// Commission is money owed to a user for a referral or a fulfillment
type Commission struct {
	ID               uint             `gorm:"primaryKey" json:"id"`
	UserID           uint             `gorm:"not null;index" json:"user_id"`
	User             User             `gorm:"foreignKey:UserID" json:"user"`
	Amount           decimal.Decimal  `gorm:"type:decimal(12,2);not null" json:"amount"`
	Rate             decimal.Decimal  `gorm:"type:decimal(5,4);not null" json:"rate"`
	Type             CommissionType   `gorm:"type:varchar(32);not null" json:"type"`
	Status           CommissionStatus `gorm:"type:varchar(16);not null;default:'Pending';index" json:"status"`
	Related          RelatedRef       `gorm:"embedded;embeddedPrefix:related_" json:"related"`
	Notes            string           `gorm:"type:text" json:"notes,omitempty"`
	ApprovedBy       *uint            `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time       `json:"approved_at,omitempty"`
	PayoutBatchID    string           `gorm:"type:varchar(36);index" json:"payout_batch_id,omitempty"`
	PaymentMethod    string           `json:"payment_method,omitempty"`
	PaymentReference string           `json:"payment_reference,omitempty"`
	PaymentDate      *time.Time       `json:"payment_date,omitempty"`
	CreatedAt        time.Time        `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the Commission model
func (Commission) TableName() string {
	return "commissions"
}
