package aggregate

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Valuation derives per-trader portfolio value: Σ over positively held
// subjects of net_shares × subject buy_price. This is point-in-time
// valuation against the live price, not cost basis.
//
// A reverse index subject → {holder: net} is maintained so a buy_price
// change touches only the holders of that subject instead of recomputing
// every trader. Subjects with no Share record contribute at price 0
// (MissingSubjectPrice degrades gracefully; the engine logs it).
type Valuation struct {
	mu      sync.RWMutex
	value   map[string]decimal.Decimal // trader → portfolio value
	holders map[string]map[string]int64 // subject → trader → positive net
	prices  map[string]decimal.Decimal // subject → buy_price
	version uint64
}

// NewValuation creates an empty valuation aggregator at version 0.
func NewValuation() *Valuation {
	return &Valuation{
		value:   make(map[string]decimal.Decimal),
		holders: make(map[string]map[string]int64),
		prices:  make(map[string]decimal.Decimal),
	}
}

func positive(n int64) int64 {
	if n > 0 {
		return n
	}
	return 0
}

// Rebuild recomputes all portfolio values from a net-position iteration
// and a price table, stamping the result with the given version.
func (v *Valuation) Rebuild(each func(func(Pair, int64)), prices map[string]decimal.Decimal, version uint64) {
	value := make(map[string]decimal.Decimal)
	holders := make(map[string]map[string]int64)

	each(func(pair Pair, net int64) {
		if net <= 0 {
			return
		}
		h, ok := holders[pair.Subject]
		if !ok {
			h = make(map[string]int64)
			holders[pair.Subject] = h
		}
		h[pair.Trader] = net

		contribution := decimal.NewFromInt(net).Mul(prices[pair.Subject])
		value[pair.Trader] = value[pair.Trader].Add(contribution)
	})

	v.mu.Lock()
	v.value = value
	v.holders = holders
	v.prices = prices
	v.version = version
	v.mu.Unlock()
}

// UpdatePosition adjusts one trader's value after a net-position change on
// one pair, and keeps the reverse index consistent.
func (v *Valuation) UpdatePosition(pair Pair, oldNet, newNet int64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	diff := positive(newNet) - positive(oldNet)
	if diff != 0 {
		change := decimal.NewFromInt(diff).Mul(v.prices[pair.Subject])
		next := v.value[pair.Trader].Add(change)
		if next.IsZero() {
			delete(v.value, pair.Trader)
		} else {
			v.value[pair.Trader] = next
		}
	}

	if newNet > 0 {
		h, ok := v.holders[pair.Subject]
		if !ok {
			h = make(map[string]int64)
			v.holders[pair.Subject] = h
		}
		h[pair.Trader] = newNet
	} else if h, ok := v.holders[pair.Subject]; ok {
		delete(h, pair.Trader)
		if len(h) == 0 {
			delete(v.holders, pair.Subject)
		}
	}
}

// RepriceSubject updates the live price of one subject and adjusts only
// that subject's holders. Cheap even for widely-held subjects: cost is
// proportional to holder count, not trader count.
func (v *Valuation) RepriceSubject(subject string, price decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	old := v.prices[subject]
	if price.Equal(old) {
		return
	}
	v.prices[subject] = price

	diff := price.Sub(old)
	for trader, net := range v.holders[subject] {
		next := v.value[trader].Add(decimal.NewFromInt(net).Mul(diff))
		if next.IsZero() {
			delete(v.value, trader)
		} else {
			v.value[trader] = next
		}
	}
}

// HasPrice reports whether a live price is known for the subject.
func (v *Valuation) HasPrice(subject string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.prices[subject]
	return ok
}

// Value returns a trader's portfolio value (zero when absent).
func (v *Valuation) Value(trader string) decimal.Decimal {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.value[trader]
}

// SetVersion advances the version stamp after an incremental fold.
func (v *Valuation) SetVersion(version uint64) {
	v.mu.Lock()
	v.version = version
	v.mu.Unlock()
}

// Version returns the version stamp of the current state.
func (v *Valuation) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}
