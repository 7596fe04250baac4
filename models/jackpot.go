package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// JackpotPool accumulates a share of every spin until somebody wins it.
type JackpotPool struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	Name             string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	MinAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"min_amount"`
	MaxAmount        decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"max_amount"`
	CurrentAmount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"current_amount"`
	ContributionRate decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"contribution_rate"`
	IsActive         bool            `gorm:"not null;default:true" json:"is_active"`
	LastWonAt        *time.Time      `json:"last_won_at,omitempty"`
	CreatedAt        time.Time       `json:"-"`
	UpdatedAt        time.Time       `json:"-"`
}

func (JackpotPool) TableName() string {
	return "jackpot_pools"
}

// JackpotContribution is an append-only record of one spin's share into a pool.
// Winner selection weighs users by their summed contributions since the last win.
type JackpotContribution struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	PoolID    uint            `gorm:"index;not null" json:"pool_id"`
	UserID    string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	SpinID    string          `gorm:"type:varchar(36);not null" json:"spin_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
}

func (JackpotContribution) TableName() string {
	return "jackpot_contributions"
}

// JackpotWinRecord is written in the same transaction that resets the pool.
type JackpotWinRecord struct {
	ID        string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	PoolID    uint            `gorm:"index;not null" json:"pool_id"`
	UserID    string          `gorm:"type:varchar(64);index;not null" json:"user_id"`
	Amount    decimal.Decimal `gorm:"type:decimal(20,8);not null" json:"amount"`
	IsClaimed bool            `gorm:"not null;default:false" json:"is_claimed"`
	CreatedAt time.Time       `json:"created_at"`
}

func (JackpotWinRecord) TableName() string {
	return "jackpot_win_records"
}
