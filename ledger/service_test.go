package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/database"
	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := database.OpenForTest()
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	return NewService(db, zerolog.Nop()), db
}

func recordFungible(t *testing.T, svc *Service, db *gorm.DB, id, userID string, amount float64) models.PendingPrize {
	t.Helper()
	prize := models.PendingPrize{
		ID:         id,
		UserID:     userID,
		Scope:      "arcade",
		Kind:       models.RewardKindFungible,
		RewardName: "coins",
		Amount:     decimal.NewFromFloat(amount),
	}
	if err := svc.RecordPending(db, &prize); err != nil {
		t.Fatalf("failed to record prize: %v", err)
	}
	return prize
}

func recordNFT(t *testing.T, svc *Service, db *gorm.DB, id, userID, mint string) models.PendingPrize {
	t.Helper()
	prize := models.PendingPrize{
		ID:           id,
		UserID:       userID,
		Scope:        "arcade",
		Kind:         models.RewardKindNFT,
		RewardName:   "item " + mint,
		MintIdentity: &mint,
	}
	if err := svc.RecordPending(db, &prize); err != nil {
		t.Fatalf("failed to record prize: %v", err)
	}
	return prize
}

func TestRecordPendingGeneratesID(t *testing.T) {
	svc, db := newTestService(t)

	prize := models.PendingPrize{
		UserID:     "user-1",
		Scope:      "arcade",
		Kind:       models.RewardKindFungible,
		RewardName: "coins",
		Amount:     decimal.NewFromInt(10),
	}
	if err := svc.RecordPending(db, &prize); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prize.ID == "" {
		t.Error("expected a generated prize id")
	}

	if err := svc.RecordPending(db, &models.PendingPrize{Scope: "arcade"}); err == nil {
		t.Error("expected validation error for missing user id")
	}
}

func TestClaimIsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	prize := recordFungible(t, svc, db, "prize-1", "user-1", 25)

	first, err := svc.Claim(ctx, prize.ID, "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.AlreadyClaimed {
		t.Error("first claim should not report already claimed")
	}
	if first.RowsMarked != 1 {
		t.Errorf("expected 1 row marked, got %d", first.RowsMarked)
	}

	second, err := svc.Claim(ctx, prize.ID, "user-1")
	if err != nil {
		t.Fatalf("repeated claim must not error: %v", err)
	}
	if !second.AlreadyClaimed {
		t.Error("repeated claim should report already claimed")
	}
	if second.RowsMarked != 0 {
		t.Errorf("repeated claim should mark no rows, got %d", second.RowsMarked)
	}
}

func TestClaimWrongUser(t *testing.T) {
	svc, db := newTestService(t)

	prize := recordFungible(t, svc, db, "prize-1", "user-1", 25)

	_, err := svc.Claim(context.Background(), prize.ID, "user-2")
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrPrizeNotFound {
		t.Errorf("expected prize-not-found for another user, got %v", err)
	}
}

func TestClaimMarksAllRowsForMint(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Retries produced three pending rows for the same mint and user.
	recordNFT(t, svc, db, "prize-1", "user-1", "mint-a")
	recordNFT(t, svc, db, "prize-2", "user-1", "mint-a")
	recordNFT(t, svc, db, "prize-3", "user-1", "mint-a")
	// A different user's row for another mint stays untouched.
	other := recordNFT(t, svc, db, "prize-4", "user-2", "mint-b")

	result, err := svc.Claim(ctx, "prize-2", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.RowsMarked != 3 {
		t.Errorf("expected all 3 duplicate rows marked, got %d", result.RowsMarked)
	}

	var unclaimed int64
	if err := db.Model(&models.PendingPrize{}).
		Where("user_id = ? AND is_claimed = ?", "user-1", false).
		Count(&unclaimed).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if unclaimed != 0 {
		t.Errorf("expected no unclaimed rows for user-1, got %d", unclaimed)
	}

	reloaded, err := svc.Get(ctx, other.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.IsClaimed {
		t.Error("another user's prize must not be affected")
	}
}

func TestListPendingDeduplicatesMints(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	recordNFT(t, svc, db, "prize-1", "user-1", "mint-a")
	recordNFT(t, svc, db, "prize-2", "user-1", "mint-a")
	recordFungible(t, svc, db, "prize-3", "user-1", 10)
	recordFungible(t, svc, db, "prize-4", "user-1", 10)

	rows, err := svc.ListPending(ctx, "arcade", "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One row for the mint, both fungible rows.
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}

	nftRows := 0
	for _, row := range rows {
		if row.Kind == models.RewardKindNFT {
			nftRows++
		}
	}
	if nftRows != 1 {
		t.Errorf("expected mint collapsed to 1 row, got %d", nftRows)
	}
}

func TestHistory(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	older := recordFungible(t, svc, db, "prize-1", "user-1", 10)
	newer := recordFungible(t, svc, db, "prize-2", "user-1", 20)
	recordFungible(t, svc, db, "prize-3", "user-1", 30) // stays pending

	past := time.Now().UTC().Add(-time.Hour)
	if err := db.Model(&models.PendingPrize{}).Where("id = ?", older.ID).
		Updates(map[string]interface{}{"is_claimed": true, "claimed_at": past}).Error; err != nil {
		t.Fatalf("failed to backdate claim: %v", err)
	}
	if _, err := svc.Claim(ctx, newer.ID, "user-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rows, err := svc.History(ctx, "arcade", "user-1", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 claimed rows, got %d", len(rows))
	}
	if rows[0].ID != newer.ID {
		t.Errorf("expected newest claim first, got %s", rows[0].ID)
	}
}
