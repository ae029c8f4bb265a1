// Package aggregate is the aggregation engine: it folds the append-only
// trade ledger into five derived views — net positions, portfolio
// valuation, fee attribution, holder/holding cardinality, and trading
// activity — and composes them into consistent per-address snapshots.
//
// Every refresh cycle carries a monotonic version stamp. A refresh either
// rebuilds everything from the full ledger (FULL) or folds a bounded batch
// of new trades into existing state (INCREMENTAL); both produce identical
// results for the same trade set. The composer only joins aggregates whose
// stamps agree, so no reader ever observes valuation from one trade set
// joined with fees from another.
//
// Conservation of supply (Σ positive net_shares vs. on-curve supply) is a
// documented assumption, not enforced here: the subject's free first share
// is curve-side and outside this ledger.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/metrics"
	"github.com/sharescan/engine/internal/model"
	"github.com/sharescan/engine/internal/store"
)

// Mode selects how Refresh recomputes aggregate state.
type Mode int

const (
	// ModeFull rebuilds every aggregate from the entire trade ledger.
	// Used for bootstrap and after any invariant-violation repair.
	ModeFull Mode = iota

	// ModeIncremental folds a bounded batch of new trades into existing
	// aggregate state.
	ModeIncremental
)

func (m Mode) String() string {
	if m == ModeFull {
		return "full"
	}
	return "incremental"
}

// ParseMode parses "FULL" or "INCREMENTAL" (case-sensitive, the API wire
// values).
func ParseMode(s string) (Mode, error) {
	switch s {
	case "FULL":
		return ModeFull, nil
	case "INCREMENTAL":
		return ModeIncremental, nil
	}
	return 0, fmt.Errorf("aggregate: unknown refresh mode %q", s)
}

// Engine owns the five aggregators and the refresh cycle. Refreshes are
// serialized: a FULL rebuild is the exclusive section, INCREMENTAL folds
// take per-pair partition locks inside Positions. Snapshot reads proceed
// concurrently with ingestion and are only version-checked at the join.
type Engine struct {
	store store.Store

	positions   *Positions
	valuation   *Valuation
	fees        *Fees
	cardinality *Cardinality
	activity    *Activity

	refreshMu sync.Mutex
	version   uint64
	lastBlock int64 // highest block folded into aggregate state
}

// NewEngine creates an engine with empty aggregate state at version 0.
// Callers normally run a FULL refresh immediately after construction.
func NewEngine(st store.Store) *Engine {
	return &Engine{
		store:       st,
		positions:   NewPositions(),
		valuation:   NewValuation(),
		fees:        NewFees(),
		cardinality: NewCardinality(),
		activity:    NewActivity(),
	}
}

// Version returns the version stamp of the last successful refresh.
func (e *Engine) Version() uint64 {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()
	return e.version
}

// Refresh recomputes aggregate state and returns the new version stamp.
//
// ModeFull ignores batch and rebuilds from the whole ledger. In
// ModeIncremental a nil batch means "pull everything not yet applied" from
// the store. On error the previous state stays servable at its old stamp:
// stale-but-consistent beats fresh-but-broken.
func (e *Engine) Refresh(ctx context.Context, mode Mode, batch []model.Trade) (uint64, error) {
	e.refreshMu.Lock()
	defer e.refreshMu.Unlock()

	start := time.Now()
	var (
		version uint64
		err     error
	)
	if mode == ModeFull {
		version, err = e.refreshFull(ctx)
	} else {
		version, err = e.refreshIncremental(ctx, batch)
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RefreshTotal.WithLabelValues(mode.String(), outcome).Inc()
	metrics.RefreshDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	if err == nil {
		metrics.SnapshotVersion.Set(float64(version))
	}
	return version, err
}

// dedupeByHash drops repeated transaction hashes, keeping first
// occurrence. The ledger's unique key makes this a no-op for store reads;
// caller-supplied batches get the same guarantee.
func dedupeByHash(trades []model.Trade) []model.Trade {
	seen := make(map[string]struct{}, len(trades))
	out := trades[:0:0]
	for i := range trades {
		if _, dup := seen[trades[i].TransactionHash]; dup {
			continue
		}
		seen[trades[i].TransactionHash] = struct{}{}
		out = append(out, trades[i])
	}
	return out
}

func maxBlock(trades []model.Trade, base int64) int64 {
	for i := range trades {
		if trades[i].BlockNumber > base {
			base = trades[i].BlockNumber
		}
	}
	return base
}

func (e *Engine) refreshFull(ctx context.Context) (uint64, error) {
	trades, err := e.store.ListTrades(ctx)
	if err != nil {
		return e.version, fmt.Errorf("refresh full: list trades: %w", err)
	}
	trades = dedupeByHash(trades)

	shares, err := e.store.ListShares(ctx)
	if err != nil {
		return e.version, fmt.Errorf("refresh full: list shares: %w", err)
	}
	prices := make(map[string]decimal.Decimal, len(shares))
	for i := range shares {
		prices[shares[i].Address] = shares[i].BuyPrice
	}

	next := e.version + 1
	if err := e.positions.Rebuild(trades, next); err != nil {
		metrics.NegativeHoldings.Inc()
		return e.version, err
	}

	// Subjects held without a Share record contribute at price 0.
	missing := make(map[string]struct{})
	e.positions.Each(func(pair Pair, net int64) {
		if _, ok := prices[pair.Subject]; !ok && net > 0 {
			missing[pair.Subject] = struct{}{}
		}
	})
	for subject := range missing {
		slog.Warn("no share record for held subject, valuing at zero", "subject", subject)
	}

	e.fees.Rebuild(trades, next)
	e.activity.Rebuild(trades, next)
	e.valuation.Rebuild(e.positions.Each, prices, next)
	e.cardinality.Rebuild(e.positions.Each, next)

	metrics.TradesApplied.Add(float64(len(trades)))
	e.lastBlock = maxBlock(trades, 0)
	e.version = next

	slog.Info("full refresh complete",
		"version", next,
		"trades", len(trades),
		"shares", len(shares),
		"last_block", e.lastBlock,
	)
	return next, nil
}

func (e *Engine) refreshIncremental(ctx context.Context, batch []model.Trade) (uint64, error) {
	if batch == nil {
		var err error
		batch, err = e.store.TradesAfterBlock(ctx, e.lastBlock)
		if err != nil {
			return e.version, fmt.Errorf("refresh incremental: load batch: %w", err)
		}
	}

	// Duplicate hashes are skipped idempotently, not errors.
	fresh := batch[:0:0]
	for i := range batch {
		if e.positions.Applied(batch[i].TransactionHash) {
			metrics.DuplicateTrades.Inc()
			continue
		}
		fresh = append(fresh, batch[i])
	}
	fresh = dedupeByHash(fresh)
	if len(fresh) == 0 {
		return e.version, nil
	}

	deltas, err := e.positions.Plan(fresh)
	if err != nil {
		metrics.NegativeHoldings.Inc()
		return e.version, err
	}

	// Resolve live prices before touching any aggregate state: a failing
	// store read must fail the whole refresh with the prior snapshot intact.
	// Only a missing Share record degrades to a zero price.
	subjects := make(map[string]struct{})
	for pair := range deltas {
		subjects[pair.Subject] = struct{}{}
	}
	prices := make(map[string]decimal.Decimal, len(subjects))
	for subject := range subjects {
		sh, err := e.store.GetShare(ctx, subject)
		switch {
		case err == nil:
			prices[subject] = sh.BuyPrice
		case errors.Is(err, store.ErrNotFound):
			slog.Warn("no share record for traded subject, valuing at zero", "subject", subject)
			prices[subject] = decimal.Decimal{}
		default:
			return e.version, fmt.Errorf("refresh incremental: price for %s: %w", subject, err)
		}
	}

	next := e.version + 1

	// Advance the positions stamp before the first mutation. Mid-fold the
	// five stamps cannot all agree, so a concurrent compose retries instead
	// of joining a half-applied batch; the other stamps catch up only after
	// every fold below has run.
	e.positions.MarkApplied(fresh, next)

	// Reprice affected subjects before folding positions so new and old
	// holdings alike are valued at the live price. Prices only move when
	// a subject is traded, so the batch's subjects are the full set.
	for subject, price := range prices {
		e.valuation.RepriceSubject(subject, price)
	}

	for pair, d := range deltas {
		oldNet, newNet := e.positions.ApplyPair(pair, d)
		e.cardinality.UpdatePosition(pair, oldNet, newNet)
		e.valuation.UpdatePosition(pair, oldNet, newNet)
	}
	for i := range fresh {
		e.fees.Apply(&fresh[i])
		e.activity.Apply(&fresh[i])
	}

	e.fees.SetVersion(next)
	e.activity.SetVersion(next)
	e.valuation.SetVersion(next)
	e.cardinality.SetVersion(next)

	metrics.TradesApplied.Add(float64(len(fresh)))
	e.lastBlock = maxBlock(fresh, e.lastBlock)
	e.version = next

	slog.Info("incremental refresh complete",
		"version", next,
		"trades", len(fresh),
		"pairs", len(deltas),
		"last_block", e.lastBlock,
	)
	return next, nil
}
