package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/catalog"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/events/kafka"
	"github.com/lootvault/rewards-engine/inventory"
	"github.com/lootvault/rewards-engine/jackpot"
	"github.com/lootvault/rewards-engine/ledger"
	"github.com/lootvault/rewards-engine/models"
	"github.com/lootvault/rewards-engine/provider"
	"github.com/lootvault/rewards-engine/selector"
)

// Unique items sit after every fungible tier in the deterministic walk
// order regardless of row ids in either table.
const uniqueEntryOffset = 1 << 20

// Engine ties the catalog, inventory, selector, ledger and jackpot together
// into the spin and claim flows.
type Engine struct {
	db        *gorm.DB
	catalog   *catalog.Service
	inventory *inventory.Tracker
	ledger    *ledger.Service
	jackpot   *jackpot.Service
	drawer    *selector.Drawer
	payout    provider.PayoutProvider
	producer  *kafka.Producer
	logger    zerolog.Logger
}

// New creates an engine. payout and producer may be nil.
func New(
	db *gorm.DB,
	cat *catalog.Service,
	inv *inventory.Tracker,
	led *ledger.Service,
	jp *jackpot.Service,
	drawer *selector.Drawer,
	payout provider.PayoutProvider,
	producer *kafka.Producer,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		db:        db,
		catalog:   cat,
		inventory: inv,
		ledger:    led,
		jackpot:   jp,
		drawer:    drawer,
		payout:    payout,
		producer:  producer,
		logger:    logger.With().Str("component", "engine").Logger(),
	}
}

// SpinRequest is one paid spin of a scope's wheel.
type SpinRequest struct {
	UserID     string
	Scope      string
	SpinAmount decimal.Decimal
}

// SpinResult is what the spin awarded plus the jackpot outcome.
type SpinResult struct {
	Prize   models.PendingPrize `json:"prize"`
	Jackpot jackpot.WinResult   `json:"jackpot"`
}

// Spin resolves one spin end to end: snapshot the wheel, draw, persist the
// prize (retiring a unique item in the same transaction), accrue the
// jackpot pools and roll for a jackpot win. A spin against a non-empty
// catalog always yields exactly one prize.
func (e *Engine) Spin(ctx context.Context, req SpinRequest) (SpinResult, error) {
	if req.UserID == "" || req.Scope == "" {
		return SpinResult{}, apperrors.New(apperrors.ErrValidation, "user id and scope are required")
	}
	if req.SpinAmount.IsNegative() {
		return SpinResult{}, apperrors.New(apperrors.ErrValidation, "spin amount must not be negative")
	}

	prize, err := e.drawAndPersist(ctx, req, nil)
	if apperrors.IsCode(err, apperrors.ErrInventoryRace) {
		// A concurrent spin took the same unique item between snapshot and
		// commit. Retry exactly once with that mint excluded.
		raced := prize.MintIdentity
		e.logger.Warn().
			Str("scope", req.Scope).
			Str("user_id", req.UserID).
			Msg("unique item raced, retrying spin with fresh snapshot")
		exclude := map[string]struct{}{}
		if raced != nil {
			exclude[*raced] = struct{}{}
		}
		prize, err = e.drawAndPersist(ctx, req, exclude)
	}
	if err != nil {
		return SpinResult{}, err
	}

	if _, err := e.jackpot.Contribute(ctx, req.UserID, prize.ID, req.SpinAmount); err != nil {
		// Accrual failure must not undo an already-persisted prize.
		e.logger.Error().Err(err).Str("spin_id", prize.ID).Msg("jackpot accrual failed")
	}

	win, err := e.jackpot.EvaluateSpin(ctx, req.UserID, req.SpinAmount)
	if err != nil {
		e.logger.Error().Err(err).Str("spin_id", prize.ID).Msg("jackpot evaluation failed")
		win = jackpot.WinResult{Won: false}
	}

	e.publishSpin(prize, win)

	return SpinResult{Prize: prize, Jackpot: win}, nil
}

// drawAndPersist runs one snapshot-draw-commit cycle. On an inventory race
// the raced prize (with its mint) is returned alongside the error so the
// caller can exclude the mint on retry.
func (e *Engine) drawAndPersist(ctx context.Context, req SpinRequest, exclude map[string]struct{}) (models.PendingPrize, error) {
	snapshot, err := e.snapshot(ctx, req.Scope, exclude)
	if err != nil {
		return models.PendingPrize{}, err
	}

	res, err := e.drawer.Draw(snapshot)
	if err != nil {
		return models.PendingPrize{}, err
	}

	prize := models.PendingPrize{
		UserID:     req.UserID,
		Scope:      req.Scope,
		Kind:       res.Entry.Kind,
		RewardName: res.Entry.DisplayName,
		Amount:     res.Entry.UnitPrice,
		DrawValue:  res.DrawValue,
	}
	if res.Entry.Kind == models.RewardKindNFT {
		mint := res.Entry.MintIdentity
		prize.MintIdentity = &mint
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if prize.MintIdentity != nil {
			if err := e.inventory.MarkWon(tx, req.Scope, *prize.MintIdentity); err != nil {
				return err
			}
		}
		return e.ledger.RecordPending(tx, &prize)
	})
	if err != nil {
		return prize, err
	}

	e.logger.Info().
		Str("scope", req.Scope).
		Str("user_id", req.UserID).
		Str("prize_id", prize.ID).
		Str("reward", prize.RewardName).
		Float64("draw_value", prize.DrawValue).
		Msg("spin resolved")
	return prize, nil
}

// snapshot assembles the wheel for one draw: active fungible tiers with
// their configured weights plus one entry per available unique item
// carrying its equal-split share. With no items available the wheel is
// fungible-only and its total may legitimately sit under 100.
func (e *Engine) snapshot(ctx context.Context, scope string, exclude map[string]struct{}) ([]selector.Entry, error) {
	entries, err := e.catalog.ListActive(ctx, scope)
	if err != nil {
		return nil, err
	}

	snapshot := make([]selector.Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Kind != models.RewardKindFungible {
			// Unique items enter the wheel per inventory item below.
			continue
		}
		snapshot = append(snapshot, selector.Entry{
			ID:          entry.ID,
			Kind:        entry.Kind,
			DisplayName: entry.DisplayName,
			UnitPrice:   entry.UnitPrice,
			Weight:      entry.WeightPercent,
		})
	}

	items, err := e.inventory.Available(ctx, scope)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, skip := exclude[item.MintIdentity]; skip {
			continue
		}
		snapshot = append(snapshot, selector.Entry{
			ID:           uniqueEntryOffset + item.ID,
			Kind:         models.RewardKindNFT,
			DisplayName:  item.DisplayName,
			UnitPrice:    item.UnitPrice,
			Weight:       item.WeightPercent,
			MintIdentity: item.MintIdentity,
		})
	}

	return snapshot, nil
}

// ClaimPrize marks a prize claimed and settles it through the payout
// provider. Repeated claims succeed without a second settlement. A payout
// failure leaves the prize claimed and surfaces the error; operators
// reconcile from the settlement log rather than re-opening the prize.
func (e *Engine) ClaimPrize(ctx context.Context, prizeID, userID string) (ledger.ClaimResult, error) {
	result, err := e.ledger.Claim(ctx, prizeID, userID)
	if err != nil {
		return ledger.ClaimResult{}, err
	}
	if result.AlreadyClaimed {
		return result, nil
	}

	if e.payout != nil {
		prize := result.Prize
		var payoutErr error
		if prize.MintIdentity != nil {
			_, payoutErr = e.payout.TransferUnique(ctx, userID, *prize.MintIdentity, prize.ID)
		} else {
			_, payoutErr = e.payout.PayFungible(ctx, userID, prize.Amount, prize.ID)
		}
		if payoutErr != nil {
			return result, payoutErr
		}
	}

	if e.producer != nil {
		_ = e.producer.PublishPrizeClaimed(kafka.PrizeClaimedEvent{
			PrizeID:   prizeID,
			UserID:    userID,
			Scope:     result.Prize.Scope,
			Timestamp: time.Now().UTC(),
		})
	}

	return result, nil
}

// CatalogView is the public read model of a scope's wheel.
type CatalogView struct {
	Scope       string                 `json:"scope"`
	Entries     []models.RewardEntry   `json:"entries"`
	UniqueItems []models.InventoryItem `json:"unique_items"`
	TotalWeight decimal.Decimal        `json:"total_weight"`
	// WeightDrift flags a total outside 100 by more than the configured
	// tolerance.
	WeightDrift bool `json:"weight_drift"`
}

// GetCatalog returns the current wheel of a scope with its weight total.
// A drifted total is flagged for admins, never auto-corrected here.
func (e *Engine) GetCatalog(ctx context.Context, scope string) (CatalogView, error) {
	entries, err := e.catalog.ListActive(ctx, scope)
	if err != nil {
		return CatalogView{}, err
	}
	items, err := e.inventory.Available(ctx, scope)
	if err != nil {
		return CatalogView{}, err
	}

	total := catalog.TotalWeight(entries)
	total = lo.Reduce(items, func(sum decimal.Decimal, it models.InventoryItem, _ int) decimal.Decimal {
		return sum.Add(it.WeightPercent)
	}, total)

	return CatalogView{
		Scope:       scope,
		Entries:     entries,
		UniqueItems: items,
		TotalWeight: total,
		WeightDrift: e.catalog.DriftExceeded(total),
	}, nil
}

// PendingPrizes lists a user's unclaimed prizes in a scope.
func (e *Engine) PendingPrizes(ctx context.Context, scope, userID string) ([]models.PendingPrize, error) {
	return e.ledger.ListPending(ctx, scope, userID)
}

// PrizeHistory lists a user's claimed prizes in a scope.
func (e *Engine) PrizeHistory(ctx context.Context, scope, userID string, limit int) ([]models.PendingPrize, error) {
	return e.ledger.History(ctx, scope, userID, limit)
}

// EvaluateJackpot rolls the jackpot for a spin without touching the wheel,
// for callers that settle the reward draw elsewhere.
func (e *Engine) EvaluateJackpot(ctx context.Context, userID string, spinAmount decimal.Decimal) (jackpot.WinResult, error) {
	if userID == "" {
		return jackpot.WinResult{}, apperrors.New(apperrors.ErrValidation, "user id is required")
	}
	if spinAmount.IsNegative() {
		return jackpot.WinResult{}, apperrors.New(apperrors.ErrValidation, "spin amount must not be negative")
	}
	return e.jackpot.EvaluateSpin(ctx, userID, spinAmount)
}

func (e *Engine) publishSpin(prize models.PendingPrize, win jackpot.WinResult) {
	if e.producer == nil {
		return
	}
	_ = e.producer.PublishSpin(kafka.SpinEvent{
		SpinID:     prize.ID,
		UserID:     prize.UserID,
		Scope:      prize.Scope,
		RewardName: prize.RewardName,
		Kind:       string(prize.Kind),
		Amount:     prize.Amount,
		JackpotWon: win.Won,
		Timestamp:  time.Now().UTC(),
	})
	if win.Won {
		_ = e.producer.PublishPoolUpdate(kafka.PoolUpdateEvent{
			PoolID:    win.PoolID,
			PoolName:  win.PoolName,
			Amount:    decimal.Zero,
			Event:     "win",
			UserID:    prize.UserID,
			Timestamp: time.Now().UTC(),
		})
	}
}
