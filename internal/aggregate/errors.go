package aggregate

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleJoin is returned when the composer cannot observe all
	// aggregates at one version stamp within the bounded retries.
	ErrStaleJoin = errors.New("aggregate: stale join: aggregate versions diverged")

	// ErrUnknownAddress is returned when a snapshot is requested for an
	// address with no Share record.
	ErrUnknownAddress = errors.New("aggregate: unknown address")
)

// NegativeHoldingsError is a fatal data-integrity error: a sell batch would
// leave a (trader, subject) net position below zero. It halts incremental
// application for the batch and must be surfaced for manual reconciliation,
// never clamped.
type NegativeHoldingsError struct {
	Trader  string
	Subject string
	Net     int64
}

func (e *NegativeHoldingsError) Error() string {
	return fmt.Sprintf("aggregate: negative holdings: trader %s subject %s net %d",
		e.Trader, e.Subject, e.Net)
}
