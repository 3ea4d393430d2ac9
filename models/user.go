package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserRole is the access role of a user
type UserRole string

const (
	RoleCustomer        UserRole = "Customer"
	RoleDistributor     UserRole = "Distributor"
	RoleAdmin           UserRole = "Admin"
	RoleWholesaleBuyer  UserRole = "Wholesale Buyer"
	RoleReferralPartner UserRole = "Referral Partner"
)

// Valid reports whether the role is one of the known roles
func (r UserRole) Valid() bool {
	switch r {
	case RoleCustomer, RoleDistributor, RoleAdmin, RoleWholesaleBuyer, RoleReferralPartner:
		return true
	}
	return false
}

// UserStatus is the account status of a user
type UserStatus string

const (
	UserStatusActive    UserStatus = "Active"
	UserStatusSuspended UserStatus = "Suspended"
	UserStatusPending   UserStatus = "Pending"
)

// Valid reports whether the status is one of the known statuses
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusSuspended, UserStatusPending:
		return true
	}
	return false
}

// User represents an account in the store (customer, distributor, admin, wholesale buyer or referral partner)
type User struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Email             string          `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash      string          `gorm:"not null" json:"-"`
	Name              string          `json:"name"`
	Phone             string          `json:"phone,omitempty"`
	Role              UserRole        `gorm:"type:varchar(32);not null;default:'Customer'" json:"role"`
	Status            UserStatus      `gorm:"type:varchar(16);not null;default:'Active'" json:"status"`
	ReferralCode      string          `gorm:"type:varchar(16);uniqueIndex;not null" json:"referral_code"`
	ReferredBy        *uint           `gorm:"index" json:"referred_by,omitempty"` // nullable, id of the referring user
	Referrer          *User           `gorm:"foreignKey:ReferredBy" json:"-"`
	CommissionBalance decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"commission_balance"`
	WholesaleEligible bool            `gorm:"not null;default:false" json:"wholesale_eligible"`
	LastLoginAt       *time.Time      `json:"last_login_at,omitempty"`
	TokensValidAfter  *time.Time      `json:"-"` // tokens issued before this are rejected
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         gorm.DeletedAt  `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsActive reports whether the user can sign in
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// ApplicationStatus is the review status of a wholesale application
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "Pending"
	ApplicationApproved ApplicationStatus = "Approved"
	ApplicationRejected ApplicationStatus = "Rejected"
)

// WholesaleApplication is a customer's request to buy at wholesale volume
type WholesaleApplication struct {
	ID           uint              `gorm:"primaryKey" json:"id"`
	UserID       uint              `gorm:"not null;index" json:"user_id"`
	User         User              `gorm:"foreignKey:UserID" json:"user"`
	BusinessName string            `gorm:"not null" json:"business_name"`
	TaxID        string            `json:"tax_id,omitempty"`
	Message      string            `gorm:"type:text" json:"message,omitempty"`
	Status       ApplicationStatus `gorm:"type:varchar(16);not null;default:'Pending';index" json:"status"`
	ReviewedBy   *uint             `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time        `json:"reviewed_at,omitempty"`
	ReviewNotes  string            `gorm:"type:text" json:"review_notes,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// TableName specifies the table name for the WholesaleApplication model
func (WholesaleApplication) TableName() string {
	return "wholesale_applications"
}

// TokenBlacklist holds revoked token ids until they expire
type TokenBlacklist struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TokenID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"token_id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the TokenBlacklist model
func (TokenBlacklist) TableName() string {
	return "token_blacklist"
}
