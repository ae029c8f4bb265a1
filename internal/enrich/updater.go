package enrich

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/store"
)

// Sentinel values written when a profile cannot be fetched, so the share
// is not re-selected on every cycle.
const (
	notFoundUsername = "not_found"
	notFoundName     = "Not Found"
)

// Updater periodically fills in missing social data, highest-balance
// shares first.
type Updater struct {
	store       store.Store
	client      *Client
	batchSize   int
	maxAttempts int
}

// NewUpdater creates an updater processing batchSize shares per cycle
// with maxAttempts fetch attempts per share.
func NewUpdater(st store.Store, client *Client, batchSize, maxAttempts int) *Updater {
	return &Updater{
		store:       st,
		client:      client,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// RunOnce enriches one batch of shares missing social data.
func (u *Updater) RunOnce(ctx context.Context) error {
	shares, err := u.store.ListSharesMissingSocial(ctx, u.batchSize)
	if err != nil {
		return err
	}
	if len(shares) == 0 {
		slog.Debug("no shares missing social data")
		return nil
	}

	updated := 0
	for i := range shares {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := u.enrichShare(ctx, shares[i].Address); err != nil {
			slog.Warn("enrichment failed", "address", shares[i].Address, "err", err)
			continue
		}
		updated++
	}

	slog.Info("social enrichment cycle complete", "selected", len(shares), "updated", updated)
	return nil
}

func (u *Updater) enrichShare(ctx context.Context, address string) error {
	var profile *Profile
	var lastErr error

	for attempt := 0; attempt < u.maxAttempts; attempt++ {
		p, err := u.client.ProfileByAddress(ctx, address)
		if err == nil {
			profile = p
			break
		}
		lastErr = err
		if attempt == u.maxAttempts-1 {
			break
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	info := store.SocialInfo{}
	if profile == nil {
		// All attempts exhausted: write defaults so the share stops
		// being re-selected every cycle.
		slog.Info("profile unavailable, writing defaults", "address", address, "err", lastErr)
		username, name := notFoundUsername, notFoundName
		var rank int64
		zero := decimal.Decimal{}
		info.TwitterUsername = &username
		info.TwitterName = &name
		info.Rank = &rank
		info.TwitterScore = &zero
	} else {
		score, err := u.client.Score(ctx, profile.TwitterUsername)
		if err != nil {
			slog.Warn("score fetch failed, defaulting to zero",
				"username", profile.TwitterUsername, "err", err)
			score = decimal.Decimal{}
		}
		info.TwitterUsername = &profile.TwitterUsername
		info.TwitterName = &profile.TwitterName
		info.Rank = &profile.Rank
		info.TwitterScore = &score
	}

	return u.store.UpdateShareSocial(ctx, address, info)
}

// Run enriches on a fixed interval until the context is cancelled.
func (u *Updater) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := u.RunOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Error("enrichment cycle failed", "err", err)
			}
		}
	}
}
