package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
)

// Service owns the pending-prize ledger. Claims are idempotent: marking an
// already-claimed prize reports success without side effects, so a retried
// claim request can never trigger a second payout.
type Service struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewService creates a ledger service.
func NewService(db *gorm.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// RecordPending inserts a pending prize inside the caller's transaction.
// Spin flow runs this together with the inventory retirement so a unique
// item can never sit won-but-unrecorded.
func (s *Service) RecordPending(tx *gorm.DB, prize *models.PendingPrize) error {
	if prize.ID == "" {
		prize.ID = uuid.New().String()
	}
	if prize.UserID == "" || prize.Scope == "" {
		return apperrors.New(apperrors.ErrValidation, "user id and scope are required")
	}
	if err := tx.Create(prize).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to record pending prize")
	}
	return nil
}

// ClaimResult reports what a claim call did.
type ClaimResult struct {
	Prize          models.PendingPrize
	AlreadyClaimed bool
	RowsMarked     int64
}

// Claim marks a prize claimed for the owning user. For unique items every
// pending row carrying the same mint identity and user is marked in one
// update, collapsing duplicate rows produced by earlier retries. Claiming a
// prize that is already claimed is a success, not an error.
func (s *Service) Claim(ctx context.Context, prizeID, userID string) (ClaimResult, error) {
	var result ClaimResult

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prize models.PendingPrize
		if err := tx.Where("id = ? AND user_id = ?", prizeID, userID).
			First(&prize).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apperrors.New(apperrors.ErrPrizeNotFound, "prize not found")
			}
			return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load prize")
		}

		now := time.Now().UTC()
		q := tx.Model(&models.PendingPrize{}).
			Where("user_id = ? AND is_claimed = ?", userID, false)
		if prize.MintIdentity != nil {
			q = q.Where("mint_identity = ?", *prize.MintIdentity)
		} else {
			q = q.Where("id = ?", prize.ID)
		}

		res := q.Updates(map[string]interface{}{
			"is_claimed": true,
			"claimed_at": now,
		})
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to mark prize claimed")
		}

		result = ClaimResult{
			Prize:          prize,
			AlreadyClaimed: res.RowsAffected == 0,
			RowsMarked:     res.RowsAffected,
		}
		return nil
	})
	if err != nil {
		return ClaimResult{}, err
	}

	event := s.logger.Info().
		Str("prize_id", prizeID).
		Str("user_id", userID).
		Int64("rows_marked", result.RowsMarked)
	if result.AlreadyClaimed {
		event.Msg("prize claim repeated, no-op")
	} else {
		event.Msg("prize claimed")
	}
	return result, nil
}

// ListPending returns a user's unclaimed prizes in a scope, oldest first.
// Unique items are collapsed to one row per mint identity so a mint that
// accumulated several pending rows shows up once; fungible rows are each a
// distinct payout and are all listed.
func (s *Service) ListPending(ctx context.Context, scope, userID string) ([]models.PendingPrize, error) {
	var rows []models.PendingPrize
	err := s.db.WithContext(ctx).
		Where("scope = ? AND user_id = ? AND is_claimed = ?", scope, userID, false).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to list pending prizes")
	}

	seen := make(map[string]struct{})
	out := rows[:0]
	for _, row := range rows {
		if row.Kind == models.RewardKindNFT && row.MintIdentity != nil {
			if _, dup := seen[*row.MintIdentity]; dup {
				continue
			}
			seen[*row.MintIdentity] = struct{}{}
		}
		out = append(out, row)
	}
	return out, nil
}

// Get loads one prize row by id.
func (s *Service) Get(ctx context.Context, prizeID string) (models.PendingPrize, error) {
	var prize models.PendingPrize
	err := s.db.WithContext(ctx).Where("id = ?", prizeID).First(&prize).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return models.PendingPrize{}, apperrors.New(apperrors.ErrPrizeNotFound, "prize not found")
		}
		return models.PendingPrize{}, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load prize")
	}
	return prize, nil
}

// History returns a user's claimed prizes in a scope, newest first.
func (s *Service) History(ctx context.Context, scope, userID string, limit int) ([]models.PendingPrize, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []models.PendingPrize
	err := s.db.WithContext(ctx).
		Where("scope = ? AND user_id = ? AND is_claimed = ?", scope, userID, true).
		Order("claimed_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to list prize history")
	}
	return rows, nil
}
