package jackpot

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/config"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
	"github.com/lootvault/rewards-engine/selector"
)

// DefaultBroadcastInterval is the default interval for flushing buffered updates.
const DefaultBroadcastInterval = 2 * time.Second

const cacheTTL = 5 * time.Minute

// Cache is the slice of the Redis client the service needs for pool
// balance reads. It is an interface so tests can run against a map.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Service owns jackpot accrual, win evaluation and winner selection. Pool
// balances live in the relational store; Redis carries a best-effort cached
// total per pool so the read path stays off the database. Updates are
// buffered and flushed to listeners on an interval.
type Service struct {
	db     *gorm.DB
	cache  Cache
	src    selector.Source
	logger zerolog.Logger

	baseChance float64

	mu       sync.Mutex
	buffer   map[uint]Update
	broad    *Broadcaster
	ticker   *time.Ticker
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService creates a jackpot service and starts its flush loop.
// cache may be nil, in which case every read recomputes from the store.
func NewService(db *gorm.DB, cache Cache, logger zerolog.Logger, cfg config.JackpotConfig, src selector.Source) *Service {
	interval := cfg.BroadcastInterval
	if interval <= 0 {
		interval = DefaultBroadcastInterval
	}
	if src == nil {
		src = selector.CryptoSource{}
	}
	s := &Service{
		db:         db,
		cache:      cache,
		src:        src,
		logger:     logger.With().Str("component", "jackpot").Logger(),
		baseChance: cfg.BaseChance,
		buffer:     make(map[uint]Update),
		broad:      NewBroadcaster(128),
		ticker:     time.NewTicker(interval),
		stopChan:   make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// CreatePool registers a new pool.
func (s *Service) CreatePool(ctx context.Context, pool *models.JackpotPool) error {
	if pool.Name == "" {
		return apperrors.New(apperrors.ErrValidation, "pool name is required")
	}
	if pool.ContributionRate.IsNegative() || pool.ContributionRate.GreaterThan(decimal.NewFromInt(1)) {
		return apperrors.New(apperrors.ErrValidation, "contribution rate must be in [0, 1]")
	}
	if pool.CurrentAmount.IsZero() && !pool.MinAmount.IsZero() {
		pool.CurrentAmount = pool.MinAmount
	}
	if err := s.db.WithContext(ctx).Create(pool).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to create pool")
	}
	s.logger.Info().
		Uint("pool_id", pool.ID).
		Str("name", pool.Name).
		Str("rate", pool.ContributionRate.String()).
		Msg("jackpot pool created")
	return nil
}

// ListActivePools returns active pools, largest balance first, ties broken
// by id for a stable listing.
func (s *Service) ListActivePools(ctx context.Context) ([]models.JackpotPool, error) {
	var pools []models.JackpotPool
	err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("current_amount DESC, id ASC").
		Find(&pools).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load pools")
	}
	return pools, nil
}

// PoolAmount returns a pool's current balance, serving from the cache when
// possible and falling back to the store.
func (s *Service) PoolAmount(ctx context.Context, poolID uint) (decimal.Decimal, error) {
	if s.cache != nil {
		raw, err := s.cache.Get(ctx, poolKey(poolID))
		if err == nil {
			if amount, perr := decimal.NewFromString(raw); perr == nil {
				return amount, nil
			}
		}
	}

	var pool models.JackpotPool
	if err := s.db.WithContext(ctx).First(&pool, poolID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, apperrors.New(apperrors.ErrNotFound, "pool not found")
		}
		return decimal.Zero, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load pool")
	}

	s.cacheSet(ctx, pool.ID, pool.CurrentAmount)
	return pool.CurrentAmount, nil
}

// Contribute accrues spinAmount times each active pool's rate, appending a
// contribution row and incrementing the balance atomically per pool.
func (s *Service) Contribute(ctx context.Context, userID, spinID string, spinAmount decimal.Decimal) ([]models.JackpotContribution, error) {
	if spinAmount.IsNegative() {
		return nil, apperrors.New(apperrors.ErrValidation, "spin amount must not be negative")
	}

	pools, err := s.ListActivePools(ctx)
	if err != nil {
		return nil, err
	}

	contribs := make([]models.JackpotContribution, 0, len(pools))
	for _, pool := range pools {
		delta := spinAmount.Mul(pool.ContributionRate)
		if delta.IsZero() {
			continue
		}

		contrib := models.JackpotContribution{
			PoolID: pool.ID,
			UserID: userID,
			SpinID: spinID,
			Amount: delta,
		}
		var newTotal decimal.Decimal
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&contrib).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to record contribution")
			}
			if err := tx.Model(&models.JackpotPool{}).
				Where("id = ?", pool.ID).
				UpdateColumn("current_amount", gorm.Expr("current_amount + ?", delta)).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to accrue pool")
			}
			// The broadcast carries the settled balance, not the pre-read
			// plus delta, so concurrent accruals are never streamed stale.
			var fresh models.JackpotPool
			if err := tx.First(&fresh, pool.ID).Error; err != nil {
				return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to reload pool")
			}
			newTotal = fresh.CurrentAmount
			return nil
		})
		if err != nil {
			return contribs, err
		}

		s.cacheSet(ctx, pool.ID, newTotal)
		s.bufferUpdate(Update{
			PoolID:    pool.ID,
			PoolName:  pool.Name,
			Amount:    newTotal,
			Event:     "contribution",
			Timestamp: time.Now().UTC(),
		})
		contribs = append(contribs, contrib)
	}

	return contribs, nil
}

// WinResult is the outcome of one jackpot evaluation.
type WinResult struct {
	Won       bool            `json:"won"`
	PoolID    uint            `json:"pool_id,omitempty"`
	PoolName  string          `json:"pool_name,omitempty"`
	WinAmount decimal.Decimal `json:"win_amount,omitempty"`
	RecordID  string          `json:"record_id,omitempty"`
}

// WinChance computes the per-spin trigger probability. Larger stakes raise
// the odds monotonically but sub-linearly.
func WinChance(baseChance float64, spinAmount decimal.Decimal) float64 {
	return baseChance * (1 + math.Log10(spinAmount.InexactFloat64()+1))
}

// EvaluateSpin rolls for a jackpot trigger and, on success, picks a pool
// weighted by its current balance, records the win and zeroes the pool in
// one transaction. A successful roll with no active pools is a quiet no-win.
func (s *Service) EvaluateSpin(ctx context.Context, userID string, spinAmount decimal.Decimal) (WinResult, error) {
	chance := WinChance(s.baseChance, spinAmount)
	roll, err := s.src.Float64()
	if err != nil {
		return WinResult{}, apperrors.Wrap(err, apperrors.ErrInternalServerError, "random source failed")
	}
	if roll >= chance {
		return WinResult{Won: false}, nil
	}

	pools, err := s.ListActivePools(ctx)
	if err != nil {
		return WinResult{}, err
	}
	snapshot := lo.FilterMap(pools, func(p models.JackpotPool, _ int) (selector.Entry, bool) {
		if !p.CurrentAmount.IsPositive() {
			return selector.Entry{}, false
		}
		return selector.Entry{ID: p.ID, Weight: p.CurrentAmount}, true
	})
	if len(snapshot) == 0 {
		// The roll succeeded but there is nothing to pay out of.
		s.logger.Debug().Str("user_id", userID).Msg("jackpot roll hit with no funded pools")
		return WinResult{Won: false}, nil
	}

	poolRoll, err := s.src.Float64()
	if err != nil {
		return WinResult{}, apperrors.Wrap(err, apperrors.ErrInternalServerError, "random source failed")
	}
	picked, err := selector.Draw(snapshot, poolRoll)
	if err != nil {
		return WinResult{}, err
	}

	result, err := s.settleWin(ctx, userID, picked.ID)
	if apperrors.IsCode(err, apperrors.ErrConflict) {
		// A contribution landed between the read and the reset; settle once
		// more against the fresh balance.
		result, err = s.settleWin(ctx, userID, picked.ID)
	}
	if err != nil {
		return WinResult{}, err
	}

	s.afterWin(ctx, result, userID)
	return result, nil
}

// settleWin records the win and zeroes the pool in one transaction. The
// reset is conditional on the balance read inside the transaction, so a
// concurrent contribution surfaces as ErrConflict instead of silently
// discarding accrued funds.
func (s *Service) settleWin(ctx context.Context, userID string, poolID uint) (WinResult, error) {
	var result WinResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pool models.JackpotPool
		if err := tx.First(&pool, poolID).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load pool")
		}

		record := models.JackpotWinRecord{
			ID:     uuid.New().String(),
			PoolID: pool.ID,
			UserID: userID,
			Amount: pool.CurrentAmount,
		}
		if err := tx.Create(&record).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrStoreError, "failed to record win")
		}

		now := time.Now().UTC()
		res := tx.Model(&models.JackpotPool{}).
			Where("id = ? AND current_amount = ?", pool.ID, pool.CurrentAmount).
			Updates(map[string]interface{}{
				"current_amount": decimal.Zero,
				"last_won_at":    now,
			})
		if res.Error != nil {
			return apperrors.Wrap(res.Error, apperrors.ErrStoreError, "failed to reset pool")
		}
		if res.RowsAffected == 0 {
			return apperrors.New(apperrors.ErrConflict, "pool balance changed during win settlement")
		}

		result = WinResult{
			Won:       true,
			PoolID:    pool.ID,
			PoolName:  pool.Name,
			WinAmount: record.Amount,
			RecordID:  record.ID,
		}
		return nil
	})
	if err != nil {
		return WinResult{}, err
	}
	return result, nil
}

func (s *Service) afterWin(ctx context.Context, result WinResult, userID string) {
	if s.cache != nil {
		if err := s.cache.Delete(ctx, poolKey(result.PoolID)); err != nil {
			s.logger.Warn().Err(err).Uint("pool_id", result.PoolID).Msg("failed to drop cached pool balance")
		}
	}
	s.bufferUpdate(Update{
		PoolID:    result.PoolID,
		PoolName:  result.PoolName,
		Amount:    decimal.Zero,
		Event:     "win",
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	})
	s.logger.Info().
		Uint("pool_id", result.PoolID).
		Str("user_id", userID).
		Str("amount", result.WinAmount.String()).
		Msg("jackpot won")
}

// PickWinner draws one winner among a pool's contributors since the last
// win, weighting each contribution row by its amount. A row population with
// zero total amount falls back to a uniform draw over rows.
func (s *Service) PickWinner(ctx context.Context, poolID uint) (string, error) {
	var pool models.JackpotPool
	if err := s.db.WithContext(ctx).First(&pool, poolID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return "", apperrors.New(apperrors.ErrNotFound, "pool not found")
		}
		return "", apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load pool")
	}

	q := s.db.WithContext(ctx).Where("pool_id = ?", poolID)
	if pool.LastWonAt != nil {
		q = q.Where("created_at > ?", *pool.LastWonAt)
	}
	var rows []models.JackpotContribution
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load contributions")
	}
	if len(rows) == 0 {
		return "", apperrors.New(apperrors.ErrNotFound, "pool has no contributions")
	}

	roll, err := s.src.Float64()
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrInternalServerError, "random source failed")
	}

	total := lo.Reduce(rows, func(sum decimal.Decimal, c models.JackpotContribution, _ int) decimal.Decimal {
		return sum.Add(c.Amount)
	}, decimal.Zero)

	if !total.IsPositive() {
		// Uniform over rows when amounts carry no information.
		idx := int(roll * float64(len(rows)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		return rows[idx].UserID, nil
	}

	r := total.Mul(decimal.NewFromFloat(roll))
	cum := decimal.Zero
	for _, row := range rows {
		cum = cum.Add(row.Amount)
		if r.LessThan(cum) {
			return row.UserID, nil
		}
	}
	return rows[len(rows)-1].UserID, nil
}

// WinHistory returns recent win records, newest first.
func (s *Service) WinHistory(ctx context.Context, limit int) ([]models.JackpotWinRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []models.JackpotWinRecord
	err := s.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStoreError, "failed to load win history")
	}
	return records, nil
}

// Listen returns a channel of flushed updates plus a cancel function.
func (s *Service) Listen(ctx context.Context) (<-chan Update, context.CancelFunc) {
	return s.broad.Listen(ctx)
}

// HandleExternalUpdate buffers a pool update received from another node,
// for example via the Kafka consumer.
func (s *Service) HandleExternalUpdate(update Update) {
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.buffer[update.PoolID]; ok && update.Timestamp.Before(existing.Timestamp) {
		return
	}
	s.buffer[update.PoolID] = update
}

// Stop halts the flush loop.
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		s.ticker.Stop()
		close(s.stopChan)
	})
}

func (s *Service) flushLoop() {
	for {
		select {
		case <-s.stopChan:
			return
		case <-s.ticker.C:
			s.flush()
		}
	}
}

// flush broadcasts buffered updates and clears the buffer.
func (s *Service) flush() {
	s.mu.Lock()
	if len(s.buffer) == 0 {
		s.mu.Unlock()
		return
	}
	updates := lo.Values(s.buffer)
	s.buffer = make(map[uint]Update)
	s.mu.Unlock()

	for _, u := range updates {
		s.broad.Send(u)
	}
}

func (s *Service) bufferUpdate(update Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer[update.PoolID] = update
}

func (s *Service) cacheSet(ctx context.Context, poolID uint, amount decimal.Decimal) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, poolKey(poolID), amount.String(), cacheTTL); err != nil {
		s.logger.Warn().Err(err).Uint("pool_id", poolID).Msg("failed to cache pool balance")
	}
}

func poolKey(poolID uint) string {
	return fmt.Sprintf("jackpot:pool:%d", poolID)
}
