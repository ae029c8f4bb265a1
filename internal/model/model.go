// Package model defines the core domain types shared across the share
// analytics engine. All monetary values use shopspring/decimal — never
// float64 for money. Amounts are wei-scale.
package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAddress is returned when an address is not 0x-prefixed
// 20-byte hex.
var ErrInvalidAddress = errors.New("model: invalid address")

// NormalizeAddress validates an ethereum address and lowercases it.
// Addresses are stored and keyed in this normalized form everywhere.
func NormalizeAddress(addr string) (string, error) {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	lower := strings.ToLower(addr)
	for _, c := range lower[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
	}
	return lower, nil
}

// Share is one tradeable address. Created on its first trade (or explicit
// registration), mutated whenever it is the subject of a trade, never
// deleted. Address is unique and immutable once created.
type Share struct {
	Address         string           `json:"address" db:"address"`
	TwitterUsername *string          `json:"twitter_username" db:"twitter_username"`
	TwitterName     *string          `json:"twitter_name" db:"twitter_name"`
	TwitterScore    *decimal.Decimal `json:"twitter_score" db:"twitter_score"`
	Registered      *int64           `json:"registered" db:"registered"` // epoch seconds
	LastTransaction int64            `json:"last_transaction" db:"last_transaction"`
	Balance         decimal.Decimal  `json:"balance" db:"balance"` // wei held by the curve
	BuyPrice        decimal.Decimal  `json:"buy_price" db:"buy_price"`
	SellPrice       decimal.Decimal  `json:"sell_price" db:"sell_price"`
	Supply          int64            `json:"supply" db:"supply"`
	Rank            *int64           `json:"rank" db:"rank"` // externally assigned
}

// Trade is an immutable record of one executed buy/sell. TransactionHash is
// globally unique and serves as the idempotency key: reprocessing the same
// hash must never double-count. The trade ledger is the sole source of truth
// for every derived aggregate.
type Trade struct {
	Trader            string          `json:"trader" db:"trader"`
	Subject           string          `json:"subject" db:"subject"`
	IsBuy             bool            `json:"is_buy" db:"is_buy"`
	ShareAmount       int64           `json:"share_amount" db:"share_amount"`
	EthAmount         decimal.Decimal `json:"eth_amount" db:"eth_amount"`
	ProtocolEthAmount decimal.Decimal `json:"protocol_eth_amount" db:"protocol_eth_amount"`
	SubjectEthAmount  decimal.Decimal `json:"subject_eth_amount" db:"subject_eth_amount"`
	Supply            int64           `json:"supply" db:"supply"` // post-trade supply snapshot
	TransactionHash   string          `json:"transaction_hash" db:"transaction_hash"`
	BlockNumber       int64           `json:"block_number" db:"block_number"`
	Timestamp         int64           `json:"timestamp" db:"timestamp"` // epoch seconds, 0 = unknown
}

// Validate checks the trade-level invariants that do not require ledger
// state. Negative-holdings checks happen during aggregation.
func (t *Trade) Validate() error {
	if t.TransactionHash == "" {
		return errors.New("model: trade missing transaction_hash")
	}
	if t.ShareAmount <= 0 {
		return fmt.Errorf("model: trade %s: share_amount must be positive, got %d",
			t.TransactionHash, t.ShareAmount)
	}
	if _, err := NormalizeAddress(t.Trader); err != nil {
		return err
	}
	if _, err := NormalizeAddress(t.Subject); err != nil {
		return err
	}
	return nil
}

// ComposedRecord is the denormalized per-address view served to consumers:
// Share base attributes left-joined with every trade-derived aggregate.
// Absent aggregates default to zero, never null; only the Share's own
// nullable social/rank fields pass through as null.
type ComposedRecord struct {
	Address         string           `json:"address"`
	TwitterUsername *string          `json:"twitter_username"`
	TwitterName     *string          `json:"twitter_name"`
	TwitterScore    *decimal.Decimal `json:"twitter_score"`
	Registered      *int64           `json:"registered"`
	LastTransaction int64            `json:"last_transaction"`
	Balance         decimal.Decimal  `json:"balance"`
	BuyPrice        decimal.Decimal  `json:"buy_price"`
	SellPrice       decimal.Decimal  `json:"sell_price"`
	Supply          int64            `json:"supply"`
	Rank            *int64           `json:"rank"`

	PortfolioValue     decimal.Decimal `json:"portfolio_value"`
	FeesEarned         decimal.Decimal `json:"fees_earned"`
	Holders            int64           `json:"holders"`
	Holdings           int64           `json:"holdings"`
	TotalValueBought   decimal.Decimal `json:"total_value_bought"`
	TotalValueSold     decimal.Decimal `json:"total_value_sold"`
	NumberOfActiveDays int64           `json:"number_of_active_days"`

	Version uint64 `json:"version"` // aggregate refresh cycle that produced this record
}
