package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingPrize is an unclaimed ledger row created at spin time.
// A unique item may accumulate several rows for the same user before the
// claim lands; claiming marks every row carrying the same mint identity.
type PendingPrize struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID       string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Scope        string          `gorm:"type:varchar(64);index;not null" json:"scope"`
	Kind         RewardKind      `gorm:"type:varchar(16);not null" json:"kind"`
	RewardName   string          `gorm:"type:varchar(128);not null" json:"reward_name"`
	MintIdentity *string         `gorm:"type:varchar(128);index" json:"mint_identity,omitempty"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	// DrawValue is the uniform random value that produced this prize,
	// kept for auditability of unique-item draws.
	DrawValue float64    `gorm:"not null" json:"draw_value"`
	IsClaimed bool       `gorm:"not null;default:false;index" json:"is_claimed"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (PendingPrize) TableName() string {
	return "pending_prizes"
}
