// Package store defines persistence for the share analytics engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache for share rows), and in-memory (for testing).
//
// The trades table is append-only and keyed by transaction_hash; inserting
// an already-known hash is a silent no-op so re-scanned block ranges never
// double-count.
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/model"
)

// ErrNotFound is returned when a requested share does not exist.
var ErrNotFound = errors.New("store: not found")

// SocialInfo is the externally fetched profile data applied to a share.
type SocialInfo struct {
	TwitterUsername *string
	TwitterName     *string
	TwitterScore    *decimal.Decimal
	Rank            *int64
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer for share rows.
type Store interface {
	// --- Immutable trade ledger ---

	// InsertTrades appends trades, skipping transaction hashes already
	// present. Returns the trades actually inserted, so callers can settle
	// derived state from new trades only.
	InsertTrades(ctx context.Context, trades []model.Trade) ([]model.Trade, error)

	// ListTrades returns the whole ledger ordered by block_number.
	ListTrades(ctx context.Context) ([]model.Trade, error)

	// TradesAfterBlock returns trades with block_number > block, ordered
	// by block_number.
	TradesAfterBlock(ctx context.Context, block int64) ([]model.Trade, error)

	// LastBlock returns the highest recorded block number (0 when the
	// ledger is empty). Used as the scan/refresh resume point.
	LastBlock(ctx context.Context) (int64, error)

	// --- Share records ---

	// UpsertShare creates the share or updates its trade-settled fields
	// (last_transaction, balance, buy_price, sell_price, supply).
	// Registered is set only on create.
	UpsertShare(ctx context.Context, share *model.Share) error

	// GetShare retrieves one share by normalized address.
	GetShare(ctx context.Context, address string) (*model.Share, error)

	// ListShares returns all shares.
	ListShares(ctx context.Context) ([]model.Share, error)

	// ListSharesMissingSocial returns up to limit shares without a
	// twitter_username, highest balance first.
	ListSharesMissingSocial(ctx context.Context, limit int) ([]model.Share, error)

	// UpdateShareSocial applies fetched profile data to a share.
	UpdateShareSocial(ctx context.Context, address string, info SocialInfo) error
}
