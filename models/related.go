package models

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// RelatedKind names the entity a RelatedRef points at
type RelatedKind string

const (
	RelatedKindOrder                RelatedKind = "Order"
	RelatedKindUser                 RelatedKind = "User"
	RelatedKindCommission           RelatedKind = "Commission"
	RelatedKindWholesaleApplication RelatedKind = "WholesaleApplication"
)

// RelatedRef is a reference to another entity, tagged with the entity kind.
// Build it with the RelatedTo* constructors and read it back with the typed
// accessors so that an order id can never be read as a user id.
type RelatedRef struct {
	Kind RelatedKind `gorm:"column:kind;type:varchar(32);index" json:"kind"`
	ID   string      `gorm:"column:id;type:varchar(64);index" json:"id"`
}

// RelatedToOrder references an order
func RelatedToOrder(id uuid.UUID) RelatedRef {
	return RelatedRef{Kind: RelatedKindOrder, ID: id.String()}
}

// RelatedToUser references a user
func RelatedToUser(id uint) RelatedRef {
	return RelatedRef{Kind: RelatedKindUser, ID: strconv.FormatUint(uint64(id), 10)}
}

// RelatedToCommission references a commission
func RelatedToCommission(id uint) RelatedRef {
	return RelatedRef{Kind: RelatedKindCommission, ID: strconv.FormatUint(uint64(id), 10)}
}

// RelatedToWholesaleApplication references a wholesale application
func RelatedToWholesaleApplication(id uint) RelatedRef {
	return RelatedRef{Kind: RelatedKindWholesaleApplication, ID: strconv.FormatUint(uint64(id), 10)}
}

// OrderID returns the referenced order id when the reference points at an order
func (r RelatedRef) OrderID() (uuid.UUID, bool) {
	if r.Kind != RelatedKindOrder {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// UserID returns the referenced user id when the reference points at a user
func (r RelatedRef) UserID() (uint, bool) {
	return r.numericID(RelatedKindUser)
}

// CommissionID returns the referenced commission id when the reference points at a commission
func (r RelatedRef) CommissionID() (uint, bool) {
	return r.numericID(RelatedKindCommission)
}

// WholesaleApplicationID returns the referenced application id
func (r RelatedRef) WholesaleApplicationID() (uint, bool) {
	return r.numericID(RelatedKindWholesaleApplication)
}

func (r RelatedRef) numericID(kind RelatedKind) (uint, bool) {
	if r.Kind != kind {
		return 0, false
	}
	id, err := strconv.ParseUint(r.ID, 10, 64)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// IsZero reports whether the reference is unset
func (r RelatedRef) IsZero() bool {
	return r.Kind == "" && r.ID == ""
}

func (r RelatedRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}
