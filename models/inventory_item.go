package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InventoryItem is a deposited unique item eligible to be won. Exactly one
// row exists per mint identity per scope. The active flag and weight are
// persisted so concurrent spins race on a conditional update instead of an
// in-memory lock: winning flips the flag off and zeroes the weight in the
// same transaction that records the pending prize.
type InventoryItem struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Scope         string          `gorm:"type:varchar(64);uniqueIndex:idx_scope_mint;not null" json:"scope"`
	MintIdentity  string          `gorm:"type:varchar(128);uniqueIndex:idx_scope_mint;not null" json:"mint_identity"`
	DisplayName   string          `gorm:"type:varchar(128);not null" json:"display_name"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_price"`
	WeightPercent decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"weight_percent"`
	IsDeposited   bool            `gorm:"not null;default:true" json:"is_deposited"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `json:"-"`
	UpdatedAt     time.Time       `json:"-"`
}

func (InventoryItem) TableName() string {
	return "inventory_items"
}
