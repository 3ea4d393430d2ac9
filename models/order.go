package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is a state of the order lifecycle
type OrderStatus string

const (
	OrderPending         OrderStatus = "Pending"
	OrderPaymentReceived OrderStatus = "PaymentReceived"
	OrderProcessing      OrderStatus = "Processing"
	OrderAssigned        OrderStatus = "Assigned"
	OrderFulfilled       OrderStatus = "Fulfilled"
	OrderDelivered       OrderStatus = "Delivered"
	OrderCancelled       OrderStatus = "Cancelled"
)

// orderTransitions is the allow-list of status changes.
// Delivered and Cancelled are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:         {OrderPaymentReceived, OrderCancelled},
	OrderPaymentReceived: {OrderProcessing, OrderCancelled},
	OrderProcessing:      {OrderAssigned, OrderCancelled},
	OrderAssigned:        {OrderFulfilled, OrderCancelled},
	OrderFulfilled:       {OrderDelivered, OrderCancelled},
	OrderDelivered:       nil,
	OrderCancelled:       nil,
}

// Valid reports whether the status is part of the lifecycle
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves the status
func (s OrderStatus) IsTerminal() bool {
	return s.Valid() && len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the payment state recorded on an order and on a payment
type PaymentStatus string

const (
	PaymentPending             PaymentStatus = "Pending"
	PaymentPendingConfirmation PaymentStatus = "PendingConfirmation"
	PaymentCompleted           PaymentStatus = "Completed"
	PaymentFailed              PaymentStatus = "Failed"
)

// PaymentMethod is how the customer pays
type PaymentMethod string

const (
	PaymentMethodETransfer PaymentMethod = "etransfer"
	PaymentMethodBitcoin   PaymentMethod = "bitcoin"
	PaymentMethodCard      PaymentMethod = "card"
	PaymentMethodCash      PaymentMethod = "cash"
)

// Valid reports whether the method is accepted
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodETransfer, PaymentMethodBitcoin, PaymentMethodCard, PaymentMethodCash:
		return true
	}
	return false
}

// IsManual reports whether an admin has to confirm the payment by hand
func (m PaymentMethod) IsManual() bool {
	return m == PaymentMethodETransfer || m == PaymentMethodBitcoin
}

// Address is a postal address stored inline on the order
type Address struct {
	Name       string `json:"name" binding:"required"`
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

// Order is a placed customer order
type Order struct {
	ID               uuid.UUID            `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID           uint                 `gorm:"not null;index" json:"user_id"`
	User             User                 `gorm:"foreignKey:UserID" json:"user"`
	Status           OrderStatus          `gorm:"type:varchar(32);not null;default:'Pending';index" json:"status"`
	PaymentStatus    PaymentStatus        `gorm:"type:varchar(32);not null;default:'Pending'" json:"payment_status"`
	PaymentMethod    PaymentMethod        `gorm:"type:varchar(16);not null" json:"payment_method"`
	TotalAmount      decimal.Decimal      `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	DistributorID    *uint                `gorm:"index" json:"distributor_id,omitempty"` // nullable, set on assignment
	Distributor      *User                `gorm:"foreignKey:DistributorID" json:"distributor,omitempty"`
	CommissionAmount decimal.Decimal      `gorm:"type:decimal(12,2);not null;default:0" json:"commission_amount"`
	ShippingAddress  Address              `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	BillingAddress   Address              `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`
	DiscountCode     string               `json:"discount_code,omitempty"`
	ReferralCode     string               `json:"referral_code,omitempty"`
	IsWholesale      bool                 `gorm:"not null;default:false" json:"is_wholesale"`
	Items            []OrderItem          `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	History          []OrderStatusHistory `gorm:"foreignKey:OrderID" json:"history,omitempty"`
	Fulfillment      *OrderFulfillment    `gorm:"foreignKey:OrderID" json:"fulfillment,omitempty"`
	CreatedAt        time.Time            `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
	DeletedAt        gorm.DeletedAt       `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// BeforeCreate assigns a UUID when the caller did not
func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// OrderItem is a purchased line; Price is a snapshot taken when the order is created
type OrderItem struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	OrderID     uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"order_id"`
	VariationID uint              `gorm:"not null;index" json:"variation_id"`
	Variation   *ProductVariation `gorm:"foreignKey:VariationID" json:"variation,omitempty"`
	Quantity    int               `gorm:"not null;check:quantity > 0" json:"quantity"`
	Price       decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"price"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TableName specifies the table name for the OrderItem model
func (OrderItem) TableName() string {
	return "order_items"
}

// LineTotal is price times quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusHistory is an append-only record of status changes
type OrderStatusHistory struct {
	ID        uint        `gorm:"primaryKey" json:"id"`
	OrderID   uuid.UUID   `gorm:"type:varchar(36);not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"type:varchar(32);not null" json:"status"`
	Notes     string      `gorm:"type:text" json:"notes,omitempty"`
	ChangedBy *uint       `json:"changed_by,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// TableName specifies the table name for the OrderStatusHistory model
func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

// OrderFulfillment records how an order was shipped
type OrderFulfillment struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrderID        uuid.UUID `gorm:"type:varchar(36);not null;uniqueIndex" json:"order_id"`
	DistributorID  *uint     `gorm:"index" json:"distributor_id,omitempty"`
	TrackingNumber string    `json:"tracking_number"`
	Carrier        string    `json:"carrier"`
	ProofKey       string    `json:"proof_key,omitempty"`
	ProofURL       string    `gorm:"-" json:"proof_url,omitempty"` // computed, presigned URL for the proof image
	Notes          string    `gorm:"type:text" json:"notes,omitempty"`
	RecordedBy     *uint     `json:"recorded_by,omitempty"`
	FulfilledAt    time.Time `json:"fulfilled_at"`
}

// TableName specifies the table name for the OrderFulfillment model
func (OrderFulfillment) TableName() string {
	return "order_fulfillments"
}
