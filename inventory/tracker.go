package inventory

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/config"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
)

// Tracker manages the unique-item inventory of each scope. Available items
// collectively hold a fixed percentage budget of the wheel and split it
// equally, so each item's share shrinks as more items are deposited.
type Tracker struct {
	db     *gorm.DB
	logger zerolog.Logger
	budget decimal.Decimal
}

// NewTracker creates an inventory tracker.
func NewTracker(db *gorm.DB, logger zerolog.Logger, cfg config.CatalogConfig) *Tracker {
	return &Tracker{
		db:     db,
		logger: logger.With().Str("component", "inventory").Logger(),
		budget: decimal.NewFromFloat(cfg.NFTBudgetPercent),
	}
}

// Available returns the deposited items of a scope that are active and not
// referenced by any unclaimed pending prize. An item sitting in the ledger
// waiting to be claimed must never be drawable again.
func (t *Tracker) Available(ctx context.Context, scope string) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := t.db.WithContext(ctx).
		Where("scope = ? AND is_deposited = ? AND is_active = ?", scope, true, true).
		Where("mint_identity NOT IN (?)",
			t.db.Model(&models.PendingPrize{}).
				Select("mint_identity").
				Where("scope = ? AND is_claimed = ? AND mint_identity IS NOT NULL", scope, false),
		).
		Order("id ASC").
		Find(&items).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load inventory")
	}
	return items, nil
}

// AvailableMints returns just the mint identities of Available.
func (t *Tracker) AvailableMints(ctx context.Context, scope string) ([]string, error) {
	items, err := t.Available(ctx, scope)
	if err != nil {
		return nil, err
	}
	return lo.Map(items, func(it models.InventoryItem, _ int) string {
		return it.MintIdentity
	}), nil
}

// Deposit registers a unique item into the vault and rebalances the equal
// split across every available item of the scope.
func (t *Tracker) Deposit(ctx context.Context, item *models.InventoryItem) error {
	if item.Scope == "" || item.MintIdentity == "" {
		return apperrors.New(apperrors.ErrValidation, "scope and mint identity are required")
	}

	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.InventoryItem
		err := tx.Where("scope = ? AND mint_identity = ?", item.Scope, item.MintIdentity).
			First(&existing).Error
		switch {
		case err == nil:
			// Re-deposit of a known mint revives the existing row, no duplicate.
			if err := tx.Model(&existing).Updates(map[string]interface{}{
				"is_deposited": true,
				"is_active":    true,
			}).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to revive inventory item")
			}
		case err == gorm.ErrRecordNotFound:
			item.IsDeposited = true
			item.IsActive = true
			if err := tx.Create(item).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to deposit inventory item")
			}
		default:
			return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to look up inventory item")
		}

		return t.splitBudget(tx, item.Scope)
	})
}

// MarkWon retires an item the instant it is drawn. The update is conditional
// on the active flag so two spins racing over the same mint cannot both
// succeed; the loser gets InventoryRaceError and retries with a fresh
// snapshot. Callers run this inside the transaction that records the
// pending prize.
func (t *Tracker) MarkWon(tx *gorm.DB, scope, mintIdentity string) error {
	res := tx.Model(&models.InventoryItem{}).
		Where("scope = ? AND mint_identity = ? AND is_active = ?", scope, mintIdentity, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"weight_percent": decimal.Zero,
		})
	if res.Error != nil {
		return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to retire inventory item")
	}
	if res.RowsAffected == 0 {
		return apperrors.NewWithDebug(apperrors.ErrInventoryRace,
			"item already won", "mint "+mintIdentity+" was retired by a concurrent spin")
	}
	return nil
}

// MarkAvailable returns a previously won item to the wheel, for example
// after a claim rollback, and recomputes the equal split.
func (t *Tracker) MarkAvailable(ctx context.Context, scope, mintIdentity string) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryItem{}).
			Where("scope = ? AND mint_identity = ? AND is_deposited = ?", scope, mintIdentity, true).
			Update("is_active", true)
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to reactivate inventory item")
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.ErrNotFound, "inventory item not found")
		}
		return t.splitBudget(tx, scope)
	})
}

// Withdraw removes an item from the vault entirely and rebalances the rest.
func (t *Tracker) Withdraw(ctx context.Context, scope, mintIdentity string) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.InventoryItem{}).
			Where("scope = ? AND mint_identity = ? AND is_deposited = ?", scope, mintIdentity, true).
			Updates(map[string]interface{}{
				"is_deposited":   false,
				"is_active":      false,
				"weight_percent": decimal.Zero,
			})
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to withdraw inventory item")
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.ErrNotFound, "inventory item not found")
		}
		return t.splitBudget(tx, scope)
	})
}

// splitBudget assigns budget/N to every active deposited item of the scope.
func (t *Tracker) splitBudget(tx *gorm.DB, scope string) error {
	var count int64
	if err := tx.Model(&models.InventoryItem{}).
		Where("scope = ? AND is_deposited = ? AND is_active = ?", scope, true, true).
		Count(&count).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to count inventory")
	}
	if count == 0 {
		return nil
	}

	share := t.budget.Div(decimal.NewFromInt(count)).Round(2)
	if err := tx.Model(&models.InventoryItem{}).
		Where("scope = ? AND is_deposited = ? AND is_active = ?", scope, true, true).
		Update("weight_percent", share).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to split inventory budget")
	}

	t.logger.Debug().
		Str("scope", scope).
		Int64("items", count).
		Str("share", share.String()).
		Msg("inventory budget split")
	return nil
}
