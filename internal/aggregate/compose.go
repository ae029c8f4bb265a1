package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sharescan/engine/internal/metrics"
	"github.com/sharescan/engine/internal/model"
	"github.com/sharescan/engine/internal/store"
)

// composeRetries bounds how many times the composer re-reads the
// aggregates when their version stamps diverge mid-read.
const composeRetries = 3

// compose builds one record from a share row and the aggregate views.
// This is the single point where "known to Share but absent from every
// trade-derived aggregate" normalizes to zero-valued defaults.
func (e *Engine) compose(sh *model.Share, version uint64) model.ComposedRecord {
	holders, holdings := e.cardinality.Counts(sh.Address)
	bought, sold, days := e.activity.Totals(sh.Address)

	return model.ComposedRecord{
		Address:         sh.Address,
		TwitterUsername: sh.TwitterUsername,
		TwitterName:     sh.TwitterName,
		TwitterScore:    sh.TwitterScore,
		Registered:      sh.Registered,
		LastTransaction: sh.LastTransaction,
		Balance:         sh.Balance,
		BuyPrice:        sh.BuyPrice,
		SellPrice:       sh.SellPrice,
		Supply:          sh.Supply,
		Rank:            sh.Rank,

		PortfolioValue:     e.valuation.Value(sh.Address),
		FeesEarned:         e.fees.Earned(sh.Address),
		Holders:            holders,
		Holdings:           holdings,
		TotalValueBought:   bought,
		TotalValueSold:     sold,
		NumberOfActiveDays: days,

		Version: version,
	}
}

// stampsAgree reports whether all five aggregates currently carry the
// given version stamp.
func (e *Engine) stampsAgree(version uint64) bool {
	return e.fees.Version() == version &&
		e.activity.Version() == version &&
		e.valuation.Version() == version &&
		e.cardinality.Version() == version &&
		e.positions.Version() == version
}

// Snapshot composes one record per Share, joined across all aggregates at
// a single version stamp. On stamp divergence (a refresh publishing
// mid-read) the join is retried a bounded number of times before
// surfacing ErrStaleJoin as a transient error.
func (e *Engine) Snapshot(ctx context.Context) ([]model.ComposedRecord, uint64, error) {
	shares, err := e.store.ListShares(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("snapshot: list shares: %w", err)
	}

	for attempt := 0; attempt < composeRetries; attempt++ {
		version := e.positions.Version()

		records := make([]model.ComposedRecord, 0, len(shares))
		for i := range shares {
			records = append(records, e.compose(&shares[i], version))
		}

		if e.stampsAgree(version) {
			return records, version, nil
		}
		metrics.StaleJoinRetries.Inc()
		slog.Debug("stale snapshot join, retrying", "attempt", attempt+1, "version", version)
	}
	return nil, 0, ErrStaleJoin
}

// SnapshotFor composes the record for one address, or ErrUnknownAddress
// when no Share exists for it.
func (e *Engine) SnapshotFor(ctx context.Context, address string) (*model.ComposedRecord, error) {
	sh, err := e.store.GetShare(ctx, address)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownAddress, address)
		}
		return nil, err
	}

	for attempt := 0; attempt < composeRetries; attempt++ {
		version := e.positions.Version()
		record := e.compose(sh, version)
		if e.stampsAgree(version) {
			return &record, nil
		}
		metrics.StaleJoinRetries.Inc()
	}
	return nil, ErrStaleJoin
}
