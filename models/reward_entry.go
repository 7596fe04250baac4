package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RewardKind distinguishes payout-denominated rewards from unique items.
type RewardKind string

const (
	RewardKindFungible RewardKind = "fungible"
	RewardKindNFT      RewardKind = "nft"
)

// RewardEntry is one configured slice of a scope's reward wheel.
// Active fungible entries in a scope must sum to 100 percent.
type RewardEntry struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Scope         string          `gorm:"type:varchar(64);index;not null" json:"scope"`
	Kind          RewardKind      `gorm:"type:varchar(16);not null" json:"kind"`
	DisplayName   string          `gorm:"type:varchar(128);not null" json:"display_name"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"unit_price"`
	WeightPercent decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"weight_percent"`
	IsActive      bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time       `json:"-"`
	UpdatedAt     time.Time       `json:"-"`
}

func (RewardEntry) TableName() string {
	return "reward_entries"
}
