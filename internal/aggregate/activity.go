package aggregate

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/model"
)

const secondsPerDay = 86400

// traderActivity accumulates one trader's trading totals. Active days are
// bucketed as UTC days since epoch; a trade with no timestamp cannot
// fabricate an active day.
type traderActivity struct {
	bought decimal.Decimal
	sold   decimal.Decimal
	days   map[int64]struct{}
}

// Activity derives per-trader bought/sold value totals and distinct
// active-day counts from the trade ledger.
//
// When trader and subject coincide, the fee components flow back to the
// same party and are folded into the principal instead of counted as a
// separate inflow/outflow:
//
//	buy,  trader≠subject: eth + protocol_fee + subject_fee
//	buy,  trader=subject: eth + protocol_fee
//	sell, trader≠subject: eth
//	sell, trader=subject: eth + subject_fee
type Activity struct {
	mu      sync.RWMutex
	traders map[string]*traderActivity
	version uint64
}

// NewActivity creates an empty activity aggregator at version 0.
func NewActivity() *Activity {
	return &Activity{traders: make(map[string]*traderActivity)}
}

func foldActivity(traders map[string]*traderActivity, t *model.Trade) {
	ta, ok := traders[t.Trader]
	if !ok {
		ta = &traderActivity{days: make(map[int64]struct{})}
		traders[t.Trader] = ta
	}

	self := t.Trader == t.Subject
	if t.IsBuy {
		v := t.EthAmount.Add(t.ProtocolEthAmount)
		if !self {
			v = v.Add(t.SubjectEthAmount)
		}
		ta.bought = ta.bought.Add(v)
	} else {
		v := t.EthAmount
		if self {
			v = v.Add(t.SubjectEthAmount)
		}
		ta.sold = ta.sold.Add(v)
	}

	if t.Timestamp > 0 {
		ta.days[t.Timestamp/secondsPerDay] = struct{}{}
	}
}

// Rebuild recomputes all activity from the complete trade ledger.
// Duplicate transaction hashes must already be filtered by the caller.
func (a *Activity) Rebuild(trades []model.Trade, version uint64) {
	traders := make(map[string]*traderActivity)
	for i := range trades {
		foldActivity(traders, &trades[i])
	}

	a.mu.Lock()
	a.traders = traders
	a.version = version
	a.mu.Unlock()
}

// Apply folds one trade into the running totals.
func (a *Activity) Apply(t *model.Trade) {
	a.mu.Lock()
	foldActivity(a.traders, t)
	a.mu.Unlock()
}

// Totals returns a trader's bought/sold value and active-day count,
// all zero when the trader never traded.
func (a *Activity) Totals(trader string) (bought, sold decimal.Decimal, activeDays int64) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ta, ok := a.traders[trader]
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, 0
	}
	return ta.bought, ta.sold, int64(len(ta.days))
}

// SetVersion advances the version stamp after an incremental fold.
func (a *Activity) SetVersion(version uint64) {
	a.mu.Lock()
	a.version = version
	a.mu.Unlock()
}

// Version returns the version stamp of the current state.
func (a *Activity) Version() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.version
}
