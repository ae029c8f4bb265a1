package aggregate

import "sync"

// Cardinality derives distinct-count views from positive net positions:
// holders(subject) — how many traders hold a positive position in that
// subject — and holdings(trader) — how many subjects that trader positively
// holds. An address known only on one side reads as zero on the other
// (full outer join semantics, resolved at compose time).
type Cardinality struct {
	mu       sync.RWMutex
	holders  map[string]int64 // subject → distinct positive holders
	holdings map[string]int64 // trader → distinct positive holdings
	version  uint64
}

// NewCardinality creates an empty cardinality aggregator at version 0.
func NewCardinality() *Cardinality {
	return &Cardinality{
		holders:  make(map[string]int64),
		holdings: make(map[string]int64),
	}
}

// Rebuild recomputes both counts from a net-position iteration, stamping
// the result with the given version.
func (c *Cardinality) Rebuild(each func(func(Pair, int64)), version uint64) {
	holders := make(map[string]int64)
	holdings := make(map[string]int64)

	each(func(pair Pair, net int64) {
		if net <= 0 {
			return
		}
		holders[pair.Subject]++
		holdings[pair.Trader]++
	})

	c.mu.Lock()
	c.holders = holders
	c.holdings = holdings
	c.version = version
	c.mu.Unlock()
}

// UpdatePosition adjusts both counts after a net-position change on one
// pair. Only the positive/non-positive transition matters.
func (c *Cardinality) UpdatePosition(pair Pair, oldNet, newNet int64) {
	wasHolder := oldNet > 0
	isHolder := newNet > 0
	if wasHolder == isHolder {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if isHolder {
		c.holders[pair.Subject]++
		c.holdings[pair.Trader]++
		return
	}

	if c.holders[pair.Subject]--; c.holders[pair.Subject] == 0 {
		delete(c.holders, pair.Subject)
	}
	if c.holdings[pair.Trader]--; c.holdings[pair.Trader] == 0 {
		delete(c.holdings, pair.Trader)
	}
}

// Counts returns (holders as subject, holdings as trader) for one address,
// zero when absent on either side.
func (c *Cardinality) Counts(address string) (holders, holdings int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holders[address], c.holdings[address]
}

// SetVersion advances the version stamp after an incremental fold.
func (c *Cardinality) SetVersion(version uint64) {
	c.mu.Lock()
	c.version = version
	c.mu.Unlock()
}

// Version returns the version stamp of the current state.
func (c *Cardinality) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}
