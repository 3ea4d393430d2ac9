package models

import (
	"fmt"

	"gorm.io/gorm"
)

const commissionRelatedTypeIndex = "idx_commissions_related_type"

// All lists every model managed by Migrate
func All() []interface{} {
	return []interface{}{
		&User{},
		&WholesaleApplication{},
		&TokenBlacklist{},
		&Product{},
		&ProductVariation{},
		&InventoryLocation{},
		&Inventory{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&OrderFulfillment{},
		&Payment{},
		&Commission{},
		&Task{},
	}
}

// Migrate creates or updates the schema.
// At most one commission of each type may reference the same entity.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("failed to migrate models: %w", err)
	}

	if !db.Migrator().HasIndex(&Commission{}, commissionRelatedTypeIndex) {
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX %s ON commissions (related_kind, related_id, type)", commissionRelatedTypeIndex)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create commission index: %w", err)
		}
	}

	return nil
}
