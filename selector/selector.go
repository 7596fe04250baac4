package selector

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"

	"github.com/shopspring/decimal"

	apperrors "github.com/lootvault/rewards-engine/errors"
	"github.com/lootvault/rewards-engine/models"
)

// Entry is one slice of a catalog snapshot taken at spin time. Unique items
// carry their mint identity; fungible tiers leave it empty.
type Entry struct {
	ID           uint
	Kind         models.RewardKind
	DisplayName  string
	UnitPrice    decimal.Decimal
	Weight       decimal.Decimal
	MintIdentity string
}

// Result pairs the winning entry with the uniform value that produced it,
// which is persisted for auditability of unique-item draws.
type Result struct {
	Entry     Entry
	DrawValue float64
}

// Draw picks exactly one entry from the snapshot given a uniform value u in
// [0, 1). It normalizes within the snapshot's own total, so a total under
// 100 (unique items excluded when none are available) still yields a winner.
// The walk runs in ascending id order, making the outcome a pure function
// of (snapshot, u).
func Draw(snapshot []Entry, u float64) (Entry, error) {
	if u < 0 || u >= 1 {
		return Entry{}, apperrors.New(apperrors.ErrValidation, "draw value must be in [0, 1)")
	}

	ordered := make([]Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if e.Weight.IsPositive() {
			ordered = append(ordered, e)
		}
	}
	if len(ordered) == 0 {
		return Entry{}, apperrors.New(apperrors.ErrEmptyCatalog, "catalog snapshot has no weighted entries")
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	total := decimal.Zero
	for _, e := range ordered {
		total = total.Add(e.Weight)
	}

	r := total.Mul(decimal.NewFromFloat(u))
	cum := decimal.Zero
	for _, e := range ordered {
		cum = cum.Add(e.Weight)
		if r.LessThan(cum) {
			return e, nil
		}
	}
	// Unreachable for u < 1, kept as a guard against rounding at the edge.
	return ordered[len(ordered)-1], nil
}

// Source produces uniform values in [0, 1).
type Source interface {
	Float64() (float64, error)
}

// CryptoSource draws from crypto/rand with 53 bits of precision.
type CryptoSource struct{}

const float53 = 1 << 53

func (CryptoSource) Float64() (float64, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(float53))
	if err != nil {
		return 0, fmt.Errorf("failed to read random source: %w", err)
	}
	return float64(v.Int64()) / float53, nil
}

// Drawer binds a random source to the pure draw.
type Drawer struct {
	src Source
}

// NewDrawer creates a drawer backed by the CSPRNG.
func NewDrawer() *Drawer {
	return &Drawer{src: CryptoSource{}}
}

// NewDrawerWithSource creates a drawer with an injected source.
func NewDrawerWithSource(src Source) *Drawer {
	return &Drawer{src: src}
}

// Draw rolls the source once and resolves the snapshot.
func (d *Drawer) Draw(snapshot []Entry) (Result, error) {
	u, err := d.src.Float64()
	if err != nil {
		return Result{}, apperrors.Wrap(err, apperrors.ErrInternalServerError, "random source failed")
	}
	entry, err := Draw(snapshot, u)
	if err != nil {
		return Result{}, err
	}
	return Result{Entry: entry, DrawValue: u}, nil
}

// Float64 exposes one roll of the drawer's source, used where a raw uniform
// value is needed outside a catalog draw.
func (d *Drawer) Float64() (float64, error) {
	return d.src.Float64()
}
