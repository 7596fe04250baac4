package selector

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
)

func snapshotOf(weights ...float64) []Entry {
	entries := make([]Entry, 0, len(weights))
	for i, w := range weights {
		entries = append(entries, Entry{
			ID:          uint(i + 1),
			Kind:        models.RewardKindFungible,
			DisplayName: "tier",
			Weight:      decimal.NewFromFloat(w),
		})
	}
	return entries
}

func TestDraw(t *testing.T) {
	tests := []struct {
		name     string
		snapshot []Entry
		u        float64
		wantID   uint
		wantErr  bool
	}{
		{
			name:     "first slice",
			snapshot: snapshotOf(50, 30, 20),
			u:        0.0,
			wantID:   1,
		},
		{
			name:     "boundary falls to next slice",
			snapshot: snapshotOf(50, 30, 20),
			u:        0.5,
			wantID:   2,
		},
		{
			name:     "last slice",
			snapshot: snapshotOf(50, 30, 20),
			u:        0.99,
			wantID:   3,
		},
		{
			name:     "normalizes under 100",
			snapshot: snapshotOf(40, 40),
			u:        0.6,
			wantID:   2,
		},
		{
			name:     "zero weights are skipped",
			snapshot: snapshotOf(0, 0, 10),
			u:        0.5,
			wantID:   3,
		},
		{
			name:     "empty snapshot",
			snapshot: nil,
			u:        0.5,
			wantErr:  true,
		},
		{
			name:     "all zero weights",
			snapshot: snapshotOf(0, 0),
			u:        0.5,
			wantErr:  true,
		},
		{
			name:     "u out of range",
			snapshot: snapshotOf(100),
			u:        1.0,
			wantErr:  true,
		},
		{
			name:     "negative u",
			snapshot: snapshotOf(100),
			u:        -0.1,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := Draw(tt.snapshot, tt.u)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got entry %d", entry.ID)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if entry.ID != tt.wantID {
				t.Errorf("expected entry %d, got %d", tt.wantID, entry.ID)
			}
		})
	}
}

func TestDrawIsDeterministic(t *testing.T) {
	snapshot := snapshotOf(10, 25, 65)
	for i := 0; i < 100; i++ {
		u := float64(i) / 100
		first, err := Draw(snapshot, u)
		if err != nil {
			t.Fatalf("unexpected error at u=%v: %v", u, err)
		}
		second, err := Draw(snapshot, u)
		if err != nil {
			t.Fatalf("unexpected error at u=%v: %v", u, err)
		}
		if first.ID != second.ID {
			t.Fatalf("draw at u=%v not deterministic: %d vs %d", u, first.ID, second.ID)
		}
	}
}

func TestDrawOrderIndependence(t *testing.T) {
	// The walk sorts by id, so the result must not depend on slice order.
	forward := snapshotOf(50, 30, 20)
	reversed := []Entry{forward[2], forward[0], forward[1]}

	for _, u := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
		a, err := Draw(forward, u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := Draw(reversed, u)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if a.ID != b.ID {
			t.Errorf("u=%v: got %d from forward, %d from reversed", u, a.ID, b.ID)
		}
	}
}

func TestDrawEmptyCatalogCode(t *testing.T) {
	_, err := Draw(nil, 0.5)
	appErr, ok := err.(*apperrors.AppError)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if appErr.Code != apperrors.ErrEmptyCatalog {
		t.Errorf("expected code %d, got %d", apperrors.ErrEmptyCatalog, appErr.Code)
	}
}

type scriptedSource struct {
	values []float64
	idx    int
}

func (s *scriptedSource) Float64() (float64, error) {
	if s.idx >= len(s.values) {
		s.idx = 0
	}
	v := s.values[s.idx]
	s.idx++
	return v, nil
}

func TestDrawerRecordsDrawValue(t *testing.T) {
	drawer := NewDrawerWithSource(&scriptedSource{values: []float64{0.75}})
	result, err := drawer.Draw(snapshotOf(50, 50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.DrawValue != 0.75 {
		t.Errorf("expected draw value 0.75, got %v", result.DrawValue)
	}
	if result.Entry.ID != 2 {
		t.Errorf("expected entry 2, got %d", result.Entry.ID)
	}
}

func TestDrawFrequenciesMatchWeights(t *testing.T) {
	snapshot := snapshotOf(50, 30, 20)
	expected := map[uint]float64{1: 0.50, 2: 0.30, 3: 0.20}

	rng := rand.New(rand.NewSource(42))
	const n = 100000
	counts := make(map[uint]int, len(expected))
	for i := 0; i < n; i++ {
		entry, err := Draw(snapshot, rng.Float64())
		if err != nil {
			t.Fatalf("unexpected error on draw %d: %v", i, err)
		}
		counts[entry.ID]++
	}

	// 0.01 absolute tolerance is over six standard deviations at n=100000
	// for the largest slice.
	for id, p := range expected {
		got := float64(counts[id]) / n
		if math.Abs(got-p) > 0.01 {
			t.Errorf("entry %d: frequency %.4f deviates from weight share %.2f", id, got, p)
		}
	}
}

func TestCryptoSourceRange(t *testing.T) {
	src := CryptoSource{}
	for i := 0; i < 1000; i++ {
		v, err := src.Float64()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if v < 0 || v >= 1 {
			t.Fatalf("value out of range: %v", v)
		}
	}
}
