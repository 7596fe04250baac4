package kafka

import (
	"time"

	"github.com/shopspring/decimal"
)

// Topic keys looked up in the configured topics map.
const (
	TopicSpins       = "spins"
	TopicPrizes      = "prizes"
	TopicPoolUpdates = "pool_updates"
)

// SpinEvent is published after every completed spin.
type SpinEvent struct {
	SpinID     string          `json:"spin_id"`
	UserID     string          `json:"user_id"`
	Scope      string          `json:"scope"`
	RewardName string          `json:"reward_name"`
	Kind       string          `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	JackpotWon bool            `json:"jackpot_won"`
	Timestamp  time.Time       `json:"timestamp"`
}

// PrizeClaimedEvent is published when a pending prize is first claimed.
type PrizeClaimedEvent struct {
	PrizeID   string    `json:"prize_id"`
	UserID    string    `json:"user_id"`
	Scope     string    `json:"scope"`
	Timestamp time.Time `json:"timestamp"`
}

// PoolUpdateEvent carries a pool balance change between nodes.
type PoolUpdateEvent struct {
	PoolID    uint            `json:"pool_id"`
	PoolName  string          `json:"pool_name"`
	Amount    decimal.Decimal `json:"amount"`
	Event     string          `json:"event"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
