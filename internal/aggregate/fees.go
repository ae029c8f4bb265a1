package aggregate

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/model"
)

// Fees sums subject-side fee proceeds per subject address. Self-trades
// (trader == subject) are excluded: a trader dealing in their own shares
// does not generate subject-side fee revenue. Subjects with no qualifying
// trades read as zero, never absent, at compose time.
type Fees struct {
	mu      sync.RWMutex
	earned  map[string]decimal.Decimal
	version uint64
}

// NewFees creates an empty fee aggregator at version 0.
func NewFees() *Fees {
	return &Fees{earned: make(map[string]decimal.Decimal)}
}

// Rebuild recomputes fee totals from the complete trade ledger. Duplicate
// transaction hashes must already be filtered by the caller.
func (f *Fees) Rebuild(trades []model.Trade, version uint64) {
	earned := make(map[string]decimal.Decimal)
	for i := range trades {
		t := &trades[i]
		if t.Trader == t.Subject {
			continue
		}
		earned[t.Subject] = earned[t.Subject].Add(t.SubjectEthAmount)
	}

	f.mu.Lock()
	f.earned = earned
	f.version = version
	f.mu.Unlock()
}

// Apply folds one trade into the running totals.
func (f *Fees) Apply(t *model.Trade) {
	if t.Trader == t.Subject {
		return
	}
	f.mu.Lock()
	f.earned[t.Subject] = f.earned[t.Subject].Add(t.SubjectEthAmount)
	f.mu.Unlock()
}

// Earned returns a subject's accumulated fees (zero when absent).
func (f *Fees) Earned(subject string) decimal.Decimal {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.earned[subject]
}

// SetVersion advances the version stamp after an incremental fold.
func (f *Fees) SetVersion(version uint64) {
	f.mu.Lock()
	f.version = version
	f.mu.Unlock()
}

// Version returns the version stamp of the current state.
func (f *Fees) Version() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.version
}
