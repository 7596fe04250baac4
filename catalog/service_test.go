package catalog

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/lootvault/rewards-engine/config"
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
	cfg := config.CatalogConfig{NFTBudgetPercent: 50, DriftTolerance: 0.01}
	return NewService(db, zerolog.Nop(), cfg), db
}

func seedEntry(t *testing.T, db *gorm.DB, scope string, price, weight float64, active bool) models.RewardEntry {
	t.Helper()
	entry := models.RewardEntry{
		Scope:         scope,
		Kind:          models.RewardKindFungible,
		DisplayName:   "tier",
		UnitPrice:     decimal.NewFromFloat(price),
		WeightPercent: decimal.NewFromFloat(weight),
		IsActive:      active,
	}
	if err := db.Create(&entry).Error; err != nil {
		t.Fatalf("failed to seed entry: %v", err)
	}
	// gorm drops zero values for fields tagged default:true on Create, so an
	// inactive seed has to be demoted with an explicit update.
	if !active {
		if err := db.Model(&entry).Update("is_active", false).Error; err != nil {
			t.Fatalf("failed to deactivate seeded entry: %v", err)
		}
	}
	return entry
}

func TestListActiveOrdering(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Insert out of price order, plus a tie and an inactive row.
	seedEntry(t, db, "arcade", 5.00, 40, true)
	seedEntry(t, db, "arcade", 0.10, 30, true)
	seedEntry(t, db, "arcade", 0.10, 20, true)
	seedEntry(t, db, "arcade", 1.00, 10, false)
	seedEntry(t, db, "other", 0.01, 100, true)

	entries, err := svc.ListActive(ctx, "arcade")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if !entries[0].UnitPrice.Equal(decimal.NewFromFloat(0.10)) {
		t.Errorf("expected cheapest first, got price %s", entries[0].UnitPrice)
	}
	if entries[0].ID > entries[1].ID {
		t.Errorf("price tie not broken by id: %d before %d", entries[0].ID, entries[1].ID)
	}
	if !entries[2].UnitPrice.Equal(decimal.NewFromFloat(5.00)) {
		t.Errorf("expected most expensive last, got price %s", entries[2].UnitPrice)
	}
}

func TestCreateEntryValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		entry models.RewardEntry
	}{
		{
			name: "missing scope",
			entry: models.RewardEntry{
				Kind:          models.RewardKindFungible,
				WeightPercent: decimal.NewFromInt(10),
			},
		},
		{
			name: "bad kind",
			entry: models.RewardEntry{
				Scope:         "arcade",
				Kind:          "mystery",
				WeightPercent: decimal.NewFromInt(10),
			},
		},
		{
			name: "negative weight",
			entry: models.RewardEntry{
				Scope:         "arcade",
				Kind:          models.RewardKindFungible,
				WeightPercent: decimal.NewFromInt(-1),
			},
		},
		{
			name: "weight over 100",
			entry: models.RewardEntry{
				Scope:         "arcade",
				Kind:          models.RewardKindFungible,
				WeightPercent: decimal.NewFromFloat(100.01),
			},
		},
		{
			name: "negative price",
			entry: models.RewardEntry{
				Scope:         "arcade",
				Kind:          models.RewardKindFungible,
				WeightPercent: decimal.NewFromInt(10),
				UnitPrice:     decimal.NewFromInt(-5),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateEntry(ctx, &tt.entry)
			appErr, ok := err.(*apperrors.AppError)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != apperrors.ErrValidation {
				t.Errorf("expected validation code, got %d", appErr.Code)
			}
		})
	}
}

func TestSetWeight(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	entry := seedEntry(t, db, "arcade", 1, 40, true)

	// Zero is a legal weight; the entry just never wins.
	if err := svc.SetWeight(ctx, entry.ID, decimal.Zero); err != nil {
		t.Fatalf("expected zero weight to be accepted: %v", err)
	}

	var stored models.RewardEntry
	if err := db.First(&stored, entry.ID).Error; err != nil {
		t.Fatalf("failed to reload entry: %v", err)
	}
	if !stored.WeightPercent.IsZero() {
		t.Errorf("expected stored weight 0, got %s", stored.WeightPercent)
	}

	if err := svc.SetWeight(ctx, entry.ID, decimal.NewFromInt(-1)); err == nil {
		t.Error("expected negative weight to be rejected")
	}
	if err := svc.SetWeight(ctx, entry.ID, decimal.NewFromInt(101)); err == nil {
		t.Error("expected weight over 100 to be rejected")
	}

	err := svc.SetWeight(ctx, 9999, decimal.NewFromInt(10))
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrNotFound {
		t.Errorf("expected not-found for unknown entry, got %v", err)
	}
}

func TestRebalance(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	seedEntry(t, db, "arcade", 1, 50, true)
	seedEntry(t, db, "arcade", 2, 30, true)
	seedEntry(t, db, "arcade", 3, 20, true)
	inactive := seedEntry(t, db, "arcade", 4, 77, false)

	entries, err := svc.Rebalance(ctx, "arcade", decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 rebalanced entries, got %d", len(entries))
	}

	// Each weight scales by 0.9: 45, 27, 18.
	want := []string{"45", "27", "18"}
	for i, w := range want {
		expected, _ := decimal.NewFromString(w)
		if !entries[i].WeightPercent.Equal(expected) {
			t.Errorf("entry %d: expected weight %s, got %s", i, w, entries[i].WeightPercent)
		}
	}

	var untouched models.RewardEntry
	if err := db.First(&untouched, inactive.ID).Error; err != nil {
		t.Fatalf("failed to reload inactive entry: %v", err)
	}
	if !untouched.WeightPercent.Equal(decimal.NewFromInt(77)) {
		t.Errorf("inactive entry weight changed to %s", untouched.WeightPercent)
	}
}

func TestRebalanceDriftStaysSmall(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Awkward weights that do not divide cleanly.
	for i := 0; i < 20; i++ {
		seedEntry(t, db, "arcade", float64(i+1), 5, true)
	}

	entries, err := svc.Rebalance(ctx, "arcade", decimal.NewFromFloat(7.77))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	total := TotalWeight(entries)
	target := decimal.NewFromFloat(92.23)
	drift := total.Sub(target).Abs()
	if drift.GreaterThan(decimal.NewFromFloat(0.05)) {
		t.Errorf("rounding drift too large: total %s, target %s", total, target)
	}
}

func TestRebalanceValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Rebalance(ctx, "arcade", decimal.NewFromInt(100)); err == nil {
		t.Error("expected reserved percent 100 to be rejected")
	}
	if _, err := svc.Rebalance(ctx, "arcade", decimal.NewFromInt(-1)); err == nil {
		t.Error("expected negative reserved percent to be rejected")
	}

	// Empty scope has nothing to scale.
	_, err := svc.Rebalance(ctx, "arcade", decimal.NewFromInt(10))
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrEmptyCatalog {
		t.Errorf("expected empty-catalog error, got %v", err)
	}

	// All-zero weights cannot be scaled to a target.
	entry := seedEntry(t, db, "arcade", 1, 0, true)
	_ = entry
	if _, err := svc.Rebalance(ctx, "arcade", decimal.NewFromInt(10)); err == nil {
		t.Error("expected zero total weight to be rejected")
	}
}

func TestSetActiveUnknownEntry(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.SetActive(context.Background(), 12345, false)
	appErr, ok := err.(*apperrors.AppError)
	if !ok || appErr.Code != apperrors.ErrNotFound {
		t.Errorf("expected not-found, got %v", err)
	}
}
