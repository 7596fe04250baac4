package catalog

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

var oneHundred = decimal.NewFromInt(100)

// Service manages per-scope reward catalogs.
// Active entries of a scope are expected to hold 100 percent of the wheel
// between them; mutations preserve that invariant, reads verify it.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
	cfg    config.CatalogConfig
}

// NewService creates a catalog service.
func NewService(db *gorm.DB, logger zerolog.Logger, cfg config.CatalogConfig) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "catalog").Logger(),
		cfg:    cfg,
	}
}

// ListActive returns the active entries of a scope ordered by unit price
// ascending, ties broken by id for a stable listing.
func (s *Service) ListActive(ctx context.Context, scope string) ([]models.RewardEntry, error) {
	var entries []models.RewardEntry
	err := s.db.WithContext(ctx).
		Where("scope = ? AND is_active = ?", scope, true).
		Order("unit_price ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load catalog")
	}

	s.warnOnDrift(scope, entries)
	return entries, nil
}

// ListAll returns every entry of a scope, active or not, ordered by id.
func (s *Service) ListAll(ctx context.Context, scope string) ([]models.RewardEntry, error) {
	var entries []models.RewardEntry
	err := s.db.WithContext(ctx).
		Where("scope = ?", scope).
		Order("id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load catalog")
	}
	return entries, nil
}

// CreateEntry validates and persists a new catalog entry.
func (s *Service) CreateEntry(ctx context.Context, entry *models.RewardEntry) error {
	if entry.Scope == "" {
		return apperrors.New(apperrors.ErrValidation, "scope is required")
	}
	if entry.Kind != models.RewardKindFungible && entry.Kind != models.RewardKindNFT {
		return apperrors.New(apperrors.ErrValidation, "kind must be fungible or nft")
	}
	if err := validateWeight(entry.WeightPercent); err != nil {
		return err
	}
	if entry.UnitPrice.IsNegative() {
		return apperrors.New(apperrors.ErrValidation, "unit price must not be negative")
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to create catalog entry")
	}

	s.logger.Info().
		Str("scope", entry.Scope).
		Uint("entry_id", entry.ID).
		Str("weight", entry.WeightPercent.String()).
		Msg("catalog entry created")
	return nil
}

// SetWeight replaces one entry's weight after validating the new value.
// It does not rebalance siblings; callers that need the 100 percent
// invariant restored follow up with Rebalance.
func (s *Service) SetWeight(ctx context.Context, id uint, weight decimal.Decimal) error {
	if err := validateWeight(weight); err != nil {
		return err
	}

	res := s.db.WithContext(ctx).
		Model(&models.RewardEntry{}).
		Where("id = ?", id).
		Update("weight_percent", weight)
	if res.Error != nil {
		return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to update weight")
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrNotFound, "catalog entry not found")
	}

	s.logger.Info().
		Uint("entry_id", id).
		Str("weight", weight.String()).
		Msg("catalog weight updated")
	return nil
}

// SetActive toggles an entry in or out of the wheel.
func (s *Service) SetActive(ctx context.Context, id uint, active bool) error {
	res := s.db.WithContext(ctx).
		Model(&models.RewardEntry{}).
		Where("id = ?", id).
		Update("is_active", active)
	if res.Error != nil {
		return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to update entry")
	}
	if res.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrNotFound, "catalog entry not found")
	}
	return nil
}

// Rebalance scales every active weight of a scope by the same factor so the
// entries collectively fit inside 100 minus reservedPercent, rounding each
// scaled weight to two decimals. The caller that reserved the slice inserts
// its new entry afterwards at exactly reservedPercent. Rounding residue is
// left where it falls rather than being pushed onto one entry, so the final
// total can sit a few hundredths off target.
func (s *Service) Rebalance(ctx context.Context, scope string, reservedPercent decimal.Decimal) ([]models.RewardEntry, error) {
	if reservedPercent.IsNegative() || reservedPercent.GreaterThanOrEqual(oneHundred) {
		return nil, apperrors.New(apperrors.ErrValidation, "reserved percent must be in [0, 100)")
	}

	var rebalanced []models.RewardEntry

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.RewardEntry
		if err := tx.
			Where("scope = ? AND is_active = ?", scope, true).
			Order("id ASC").
			Find(&entries).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load catalog")
		}
		if len(entries) == 0 {
			return apperrors.New(apperrors.ErrEmptyCatalog, "no active entries to rebalance")
		}

		total := TotalWeight(entries)
		if total.IsZero() {
			return apperrors.New(apperrors.ErrValidation, "total weight is zero")
		}

		factor := oneHundred.Sub(reservedPercent).Div(total)
		for i := range entries {
			scaled := entries[i].WeightPercent.Mul(factor).Round(2)
			entries[i].WeightPercent = scaled
			if err := tx.Model(&models.RewardEntry{}).
				Where("id = ?", entries[i].ID).
				Update("weight_percent", scaled).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to store rebalanced weight")
			}
		}

		rebalanced = entries
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("scope", scope).
		Int("entries", len(rebalanced)).
		Str("reserved", reservedPercent.String()).
		Str("total", TotalWeight(rebalanced).String()).
		Msg("catalog rebalanced")
	return rebalanced, nil
}

// TotalWeight sums the weight of the given entries.
func TotalWeight(entries []models.RewardEntry) decimal.Decimal {
	return lo.Reduce(entries, func(sum decimal.Decimal, e models.RewardEntry, _ int) decimal.Decimal {
		return sum.Add(e.WeightPercent)
	}, decimal.Zero)
}

// DriftExceeded reports whether a wheel total sits outside 100 by more
// than the configured tolerance.
func (s *Service) DriftExceeded(total decimal.Decimal) bool {
	return total.Sub(oneHundred).Abs().GreaterThan(decimal.NewFromFloat(s.cfg.DriftTolerance))
}

func (s *Service) warnOnDrift(scope string, entries []models.RewardEntry) {
	if len(entries) == 0 {
		return
	}
	total := TotalWeight(entries)
	drift := total.Sub(oneHundred).Abs()
	if s.DriftExceeded(total) {
		s.logger.Warn().
			Str("scope", scope).
			Str("total_weight", total.String()).
			Str("drift", drift.String()).
			Msg("active catalog weights do not sum to 100")
	}
}

func validateWeight(w decimal.Decimal) error {
	if w.IsNegative() {
		return apperrors.New(apperrors.ErrValidation, "weight must not be negative")
	}
	if w.GreaterThan(oneHundred) {
		return apperrors.New(apperrors.ErrValidation, "weight must not exceed 100")
	}
	return nil
}
