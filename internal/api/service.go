// Package api provides the HTTP handlers for serving composed share
// snapshots, triggering aggregate refreshes, and recording new trades.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sharescan/engine/internal/aggregate"
	"github.com/sharescan/engine/internal/curve"
	"github.com/sharescan/engine/internal/metrics"
	"github.com/sharescan/engine/internal/model"
	"github.com/sharescan/engine/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Service handles snapshot queries and the trade ingest boundary.
type Service struct {
	store  store.Store
	engine *aggregate.Engine
	wsHub  *WSHub // optional WebSocket hub for real-time broadcasts
}

// NewService creates a new API service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, engine *aggregate.Engine, hub *WSHub) *Service {
	return &Service{
		store:  st,
		engine: engine,
		wsHub:  hub,
	}
}

// --- Request/Response types ---

// RefreshRequest is the JSON body for POST /refresh.
type RefreshRequest struct {
	Mode   string        `json:"mode"`             // "FULL" or "INCREMENTAL"
	Trades []model.Trade `json:"trades,omitempty"` // optional explicit batch for INCREMENTAL
}

// RefreshResponse carries the version stamp of a successful refresh.
type RefreshResponse struct {
	Version uint64 `json:"version"`
}

// IngestRequest is the JSON body for POST /trades.
type IngestRequest struct {
	Trades []model.Trade `json:"trades"`
}

// IngestResponse reports what a trade batch did.
type IngestResponse struct {
	BatchID  string `json:"batch_id"`
	Received int    `json:"received"`
	Inserted int    `json:"inserted"`
	Version  uint64 `json:"version"`
}

// --- HTTP Handlers ---

// GetSnapshot handles GET /api/v1/shares/{address}
func (s *Service) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	address, err := model.NormalizeAddress(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	record, err := s.engine.SnapshotFor(r.Context(), address)
	switch {
	case errors.Is(err, aggregate.ErrUnknownAddress):
		writeError(w, "share not found", http.StatusNotFound)
		return
	case errors.Is(err, aggregate.ErrStaleJoin):
		writeError(w, "snapshot temporarily inconsistent, retry", http.StatusServiceUnavailable)
		return
	case err != nil:
		writeError(w, "failed to compose snapshot", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(record)
}

// ListSnapshots handles GET /api/v1/shares
// Query: ?order=balance|rank|portfolio_value&limit=N&offset=N
func (s *Service) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	order := r.URL.Query().Get("order")
	if order == "" {
		order = "balance"
	}
	if order != "balance" && order != "rank" && order != "portfolio_value" {
		writeError(w, "order must be balance, rank, or portfolio_value", http.StatusBadRequest)
		return
	}

	records, version, err := s.engine.Snapshot(r.Context())
	if err != nil {
		if errors.Is(err, aggregate.ErrStaleJoin) {
			writeError(w, "snapshot temporarily inconsistent, retry", http.StatusServiceUnavailable)
			return
		}
		writeError(w, "failed to compose snapshots", http.StatusInternalServerError)
		return
	}

	sortRecords(records, order)
	limit, offset := pageParams(r)
	page := paginate(records, limit, offset)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"version": version,
		"count":   len(page),
		"shares":  page,
	})
}

// Refresh handles POST /api/v1/refresh
// Rebuilds (FULL) or folds new trades into (INCREMENTAL) the aggregates.
// An explicit INCREMENTAL batch must already be durably recorded in the
// trade ledger: this endpoint folds without persisting, and a FULL rebuild
// reads only the ledger. Use POST /trades to record and fold in one call.
// On error the previously served snapshot stays available at its old
// version stamp.
func (s *Service) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	mode, err := aggregate.ParseMode(req.Mode)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	version, err := s.engine.Refresh(r.Context(), mode, req.Trades)
	if err != nil {
		var nh *aggregate.NegativeHoldingsError
		if errors.As(err, &nh) {
			// Data-integrity violation: surface for reconciliation, never mask.
			slog.Error("refresh rejected: negative holdings",
				"trader", nh.Trader, "subject", nh.Subject, "net", nh.Net)
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("refresh requested", "mode", mode.String(), "version", version)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RefreshResponse{Version: version})
}

// IngestTrades handles POST /api/v1/trades
// The thin ingest boundary: durably records a trade batch (idempotent by
// transaction hash), settles the affected subjects' Share rows from the
// post-trade supply, then folds the batch into the aggregates.
func (s *Service) IngestTrades(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Trades) == 0 {
		writeError(w, "trades must be non-empty", http.StatusBadRequest)
		return
	}

	batchID := uuid.New().String()
	ctx := r.Context()

	trades := make([]model.Trade, 0, len(req.Trades))
	for i := range req.Trades {
		t := req.Trades[i]
		if err := t.Validate(); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		t.Trader, _ = model.NormalizeAddress(t.Trader)
		t.Subject, _ = model.NormalizeAddress(t.Subject)
		trades = append(trades, t)
	}

	inserted, err := s.store.InsertTrades(ctx, trades)
	if err != nil {
		writeError(w, "failed to record trades", http.StatusInternalServerError)
		return
	}
	metrics.TradesIngested.Add(float64(len(inserted)))

	// Settle only what was actually recorded: replayed hashes have already
	// settled their subjects.
	if err := s.settleShares(ctx, inserted); err != nil {
		writeError(w, "failed to settle shares: "+err.Error(), http.StatusInternalServerError)
		return
	}

	version, err := s.engine.Refresh(ctx, aggregate.ModeIncremental, trades)
	if err != nil {
		var nh *aggregate.NegativeHoldingsError
		if errors.As(err, &nh) {
			writeError(w, err.Error(), http.StatusConflict)
			return
		}
		writeError(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("trade batch ingested",
		"batch_id", batchID,
		"received", len(trades),
		"inserted", len(inserted),
		"version", version,
	)

	if s.wsHub != nil {
		s.wsHub.Broadcast(WSMessage{
			Type:    "trades_ingested",
			BatchID: batchID,
			Trades:  len(trades),
			Version: version,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(IngestResponse{
		BatchID:  batchID,
		Received: len(trades),
		Inserted: len(inserted),
		Version:  version,
	})
}

// settleShares updates each traded subject's Share row from that
// subject's most recent trade in the batch: prices from the post-trade
// supply via the bonding curve, balance folded from principal flows,
// registered set on first sight.
func (s *Service) settleShares(ctx context.Context, trades []model.Trade) error {
	latest := make(map[string]*model.Trade)
	for i := range trades {
		t := &trades[i]
		cur, ok := latest[t.Subject]
		if !ok || t.Timestamp > cur.Timestamp ||
			(t.Timestamp == cur.Timestamp && t.BlockNumber > cur.BlockNumber) {
			latest[t.Subject] = t
		}
	}

	for subject, t := range latest {
		buyPrice, err := curve.BuyPriceAfterFee(t.Supply, 1)
		if err != nil {
			return err
		}
		sellPrice, err := curve.SellPriceAfterFee(t.Supply, 1)
		if err != nil {
			return err
		}

		sh := &model.Share{
			Address:         subject,
			LastTransaction: t.Timestamp,
			BuyPrice:        buyPrice,
			SellPrice:       sellPrice,
			Supply:          t.Supply,
		}

		existing, err := s.store.GetShare(ctx, subject)
		switch {
		case err == nil:
			sh.Balance = existing.Balance
		case errors.Is(err, store.ErrNotFound):
			registered := t.Timestamp
			sh.Registered = &registered
		default:
			return err
		}

		// Balance tracks principal held by the curve: buys flow in,
		// sells flow out.
		for i := range trades {
			bt := &trades[i]
			if bt.Subject != subject {
				continue
			}
			if bt.IsBuy {
				sh.Balance = sh.Balance.Add(bt.EthAmount)
			} else {
				sh.Balance = sh.Balance.Sub(bt.EthAmount)
			}
		}

		if err := s.store.UpsertShare(ctx, sh); err != nil {
			return err
		}
	}
	return nil
}

// --- helpers ---

func sortRecords(records []model.ComposedRecord, order string) {
	switch order {
	case "rank":
		// Ranked shares first, ascending; unranked last by address.
		sort.SliceStable(records, func(i, j int) bool {
			ri, rj := records[i].Rank, records[j].Rank
			switch {
			case ri != nil && rj != nil:
				return *ri < *rj
			case ri != nil:
				return true
			case rj != nil:
				return false
			default:
				return records[i].Address < records[j].Address
			}
		})
	case "portfolio_value":
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].PortfolioValue.GreaterThan(records[j].PortfolioValue)
		})
	default: // balance
		sort.SliceStable(records, func(i, j int) bool {
			return records[i].Balance.GreaterThan(records[j].Balance)
		})
	}
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func paginate(records []model.ComposedRecord, limit, offset int) []model.ComposedRecord {
	if offset >= len(records) {
		return []model.ComposedRecord{}
	}
	end := offset + limit
	if end > len(records) {
		end = len(records)
	}
	return records[offset:end]
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
