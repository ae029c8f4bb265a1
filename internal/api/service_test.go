package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/aggregate"
	"github.com/sharescan/engine/internal/api"
	"github.com/sharescan/engine/internal/model"
	"github.com/sharescan/engine/internal/store"
)

const (
	addrX = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrY = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrZ = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func d(i int64) decimal.Decimal {
	return decimal.NewFromInt(i)
}

// newTestEnv creates a test Service with in-memory store and chi router.
func newTestEnv(t *testing.T) (*store.MemoryStore, *aggregate.Engine, chi.Router) {
	t.Helper()
	ms := store.NewMemoryStore()
	engine := aggregate.NewEngine(ms)
	svc := api.NewService(ms, engine, nil)

	r := chi.NewRouter()
	r.Get("/api/v1/shares", svc.ListSnapshots)
	r.Get("/api/v1/shares/{address}", svc.GetSnapshot)
	r.Post("/api/v1/refresh", svc.Refresh)
	r.Post("/api/v1/trades", svc.IngestTrades)

	return ms, engine, r
}

var hashSeq int

func testTrade(trader, subject string, buy bool, amount, supply int64) model.Trade {
	hashSeq++
	return model.Trade{
		Trader:            trader,
		Subject:           subject,
		IsBuy:             buy,
		ShareAmount:       amount,
		EthAmount:         d(10),
		ProtocolEthAmount: d(1),
		SubjectEthAmount:  d(1),
		Supply:            supply,
		TransactionHash:   fmt.Sprintf("0xapi%06d", hashSeq),
		BlockNumber:       int64(hashSeq),
		Timestamp:         1_700_000_000 + int64(hashSeq),
	}
}

func doJSON(t *testing.T, router chi.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// --- Ingest ---

func TestIngestTrades_RecordsAndSettles(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{
		Trades: []model.Trade{testTrade(addrX, addrY, true, 5, 6)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp api.IngestResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Inserted != 1 || resp.Received != 1 {
		t.Errorf("expected 1/1 inserted/received, got %d/%d", resp.Inserted, resp.Received)
	}
	if resp.Version == 0 {
		t.Error("expected a refresh version stamp")
	}

	// Subject share settled from the post-trade supply.
	w = doJSON(t, router, "GET", "/api/v1/shares/"+addrY, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var rec model.ComposedRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if rec.Supply != 6 {
		t.Errorf("expected settled supply 6, got %d", rec.Supply)
	}
	if !rec.BuyPrice.IsPositive() {
		t.Errorf("expected settled buy price, got %s", rec.BuyPrice)
	}
	if !rec.FeesEarned.Equal(d(1)) {
		t.Errorf("expected fees_earned 1, got %s", rec.FeesEarned)
	}
	if !rec.Balance.Equal(d(10)) {
		t.Errorf("expected balance 10 from principal inflow, got %s", rec.Balance)
	}
}

func TestIngestTrades_DuplicateIsIdempotent(t *testing.T) {
	_, engine, router := newTestEnv(t)

	tr := testTrade(addrX, addrY, true, 5, 6)
	w := doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{Trades: []model.Trade{tr}})
	if w.Code != http.StatusOK {
		t.Fatalf("first ingest: expected 200, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{Trades: []model.Trade{tr}})
	if w.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.IngestResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Inserted != 0 {
		t.Errorf("replayed trade must not insert, got %d", resp.Inserted)
	}

	if n := engine.Version(); n == 0 {
		t.Error("expected version from first ingest to persist")
	}
	w = doJSON(t, router, "GET", "/api/v1/shares/"+addrY, nil)
	var rec model.ComposedRecord
	json.Unmarshal(w.Body.Bytes(), &rec)
	if !rec.FeesEarned.Equal(d(1)) {
		t.Errorf("replay must not double-count fees, got %s", rec.FeesEarned)
	}
	if !rec.Balance.Equal(d(10)) {
		t.Errorf("replay must not re-settle balance, got %s", rec.Balance)
	}
}

func TestIngestTrades_Validation(t *testing.T) {
	_, _, router := newTestEnv(t)

	bad := testTrade(addrX, addrY, true, 5, 6)
	bad.ShareAmount = 0
	w := doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{Trades: []model.Trade{bad}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero share_amount, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty batch, got %d", w.Code)
	}
}

func TestIngestTrades_OversellRejected(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "POST", "/api/v1/trades", api.IngestRequest{
		Trades: []model.Trade{testTrade(addrX, addrY, false, 5, 1)},
	})
	if w.Code != http.StatusConflict {
		t.Errorf("expected 409 for negative holdings, got %d: %s", w.Code, w.Body.String())
	}
}

// --- Snapshots ---

func TestGetSnapshot_NotFound(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/shares/"+addrZ, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}

func TestGetSnapshot_BadAddress(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/shares/nonsense", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func seedShareWithBalance(t *testing.T, ms *store.MemoryStore, addr string, balance int64) {
	t.Helper()
	err := ms.UpsertShare(context.Background(), &model.Share{
		Address: addr,
		Balance: d(balance),
	})
	if err != nil {
		t.Fatalf("failed to seed share: %v", err)
	}
}

type listResponse struct {
	Version uint64                 `json:"version"`
	Count   int                    `json:"count"`
	Shares  []model.ComposedRecord `json:"shares"`
}

func TestListSnapshots_OrderByBalance(t *testing.T) {
	ms, engine, router := newTestEnv(t)
	seedShareWithBalance(t, ms, addrX, 5)
	seedShareWithBalance(t, ms, addrY, 50)
	seedShareWithBalance(t, ms, addrZ, 20)
	if _, err := engine.Refresh(context.Background(), aggregate.ModeFull, nil); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	w := doJSON(t, router, "GET", "/api/v1/shares?order=balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp listResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 3 {
		t.Fatalf("expected 3 records, got %d", resp.Count)
	}
	if resp.Shares[0].Address != addrY || resp.Shares[2].Address != addrX {
		t.Errorf("wrong balance order: %s %s %s",
			resp.Shares[0].Address, resp.Shares[1].Address, resp.Shares[2].Address)
	}
}

func TestListSnapshots_Pagination(t *testing.T) {
	ms, engine, router := newTestEnv(t)
	seedShareWithBalance(t, ms, addrX, 5)
	seedShareWithBalance(t, ms, addrY, 50)
	seedShareWithBalance(t, ms, addrZ, 20)
	if _, err := engine.Refresh(context.Background(), aggregate.ModeFull, nil); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	w := doJSON(t, router, "GET", "/api/v1/shares?limit=1&offset=1", nil)
	var resp listResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 1 {
		t.Fatalf("expected 1 record, got %d", resp.Count)
	}
	if resp.Shares[0].Address != addrZ {
		t.Errorf("expected second-ranked address %s, got %s", addrZ, resp.Shares[0].Address)
	}

	w = doJSON(t, router, "GET", "/api/v1/shares?offset=99", nil)
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Count != 0 {
		t.Errorf("expected empty page past the end, got %d", resp.Count)
	}
}

func TestListSnapshots_BadOrder(t *testing.T) {
	_, _, router := newTestEnv(t)

	w := doJSON(t, router, "GET", "/api/v1/shares?order=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// --- Refresh ---

func TestRefresh_FullAndBadMode(t *testing.T) {
	ms, _, router := newTestEnv(t)
	seedShareWithBalance(t, ms, addrX, 5)

	w := doJSON(t, router, "POST", "/api/v1/refresh", api.RefreshRequest{Mode: "FULL"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp api.RefreshResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Version != 1 {
		t.Errorf("expected version 1 after first full refresh, got %d", resp.Version)
	}

	w = doJSON(t, router, "POST", "/api/v1/refresh", api.RefreshRequest{Mode: "partial"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad mode, got %d", w.Code)
	}
}
