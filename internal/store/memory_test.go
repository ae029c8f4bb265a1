package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sharescan/engine/internal/model"
)

const (
	addrA = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	addrB = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	addrC = "0xcccccccccccccccccccccccccccccccccccccccc"
)

func memTrade(hash string, block int64) model.Trade {
	return model.Trade{
		Trader:          addrA,
		Subject:         addrB,
		IsBuy:           true,
		ShareAmount:     1,
		EthAmount:       decimal.NewFromInt(1),
		Supply:          1,
		TransactionHash: hash,
		BlockNumber:     block,
	}
}

func TestMemoryStore_InsertTradesDedupes(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	inserted, err := ms.InsertTrades(ctx, []model.Trade{memTrade("0x1", 10), memTrade("0x2", 11)})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(inserted) != 2 {
		t.Fatalf("expected 2 inserted, got %d", len(inserted))
	}

	inserted, err = ms.InsertTrades(ctx, []model.Trade{memTrade("0x2", 11), memTrade("0x3", 12)})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if len(inserted) != 1 || inserted[0].TransactionHash != "0x3" {
		t.Errorf("expected only the new trade inserted on replay overlap, got %v", inserted)
	}

	trades, _ := ms.ListTrades(ctx)
	if len(trades) != 3 {
		t.Errorf("expected 3 stored trades, got %d", len(trades))
	}
}

func TestMemoryStore_TradesSortedByBlock(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	ms.InsertTrades(ctx, []model.Trade{memTrade("0x3", 30), memTrade("0x1", 10), memTrade("0x2", 20)})

	trades, _ := ms.ListTrades(ctx)
	for i := 1; i < len(trades); i++ {
		if trades[i].BlockNumber < trades[i-1].BlockNumber {
			t.Fatalf("trades out of block order: %d before %d",
				trades[i-1].BlockNumber, trades[i].BlockNumber)
		}
	}
}

func TestMemoryStore_TradesAfterBlockAndLastBlock(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	ms.InsertTrades(ctx, []model.Trade{memTrade("0x1", 10), memTrade("0x2", 20), memTrade("0x3", 30)})

	last, err := ms.LastBlock(ctx)
	if err != nil {
		t.Fatalf("LastBlock failed: %v", err)
	}
	if last != 30 {
		t.Errorf("expected last block 30, got %d", last)
	}

	after, _ := ms.TradesAfterBlock(ctx, 10)
	if len(after) != 2 {
		t.Errorf("expected 2 trades after block 10, got %d", len(after))
	}
	after, _ = ms.TradesAfterBlock(ctx, 30)
	if len(after) != 0 {
		t.Errorf("expected no trades after block 30, got %d", len(after))
	}
}

func TestMemoryStore_UpsertShareKeepsSocialAndRegistered(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	registered := int64(1_700_000_000)
	username := "alice"
	ms.UpsertShare(ctx, &model.Share{
		Address:    addrA,
		Registered: &registered,
		Supply:     1,
	})
	ms.UpdateShareSocial(ctx, addrA, SocialInfo{TwitterUsername: &username})

	// A later trade settlement must not touch social fields or registration.
	ms.UpsertShare(ctx, &model.Share{
		Address: addrA,
		Supply:  2,
		Balance: decimal.NewFromInt(5),
	})

	sh, err := ms.GetShare(ctx, addrA)
	if err != nil {
		t.Fatalf("GetShare failed: %v", err)
	}
	if sh.Supply != 2 || !sh.Balance.Equal(decimal.NewFromInt(5)) {
		t.Errorf("trade-settled fields not updated: supply=%d balance=%s", sh.Supply, sh.Balance)
	}
	if sh.TwitterUsername == nil || *sh.TwitterUsername != "alice" {
		t.Error("social fields must survive upsert")
	}
	if sh.Registered == nil || *sh.Registered != registered {
		t.Error("registered must survive upsert")
	}
}

func TestMemoryStore_GetShareNotFound(t *testing.T) {
	ms := NewMemoryStore()

	_, err := ms.GetShare(context.Background(), addrC)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := ms.UpdateShareSocial(context.Background(), addrC, SocialInfo{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound from UpdateShareSocial, got %v", err)
	}
}

func TestMemoryStore_GetShareReturnsCopy(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()
	ms.UpsertShare(ctx, &model.Share{Address: addrA, Supply: 1})

	sh, _ := ms.GetShare(ctx, addrA)
	sh.Supply = 99

	again, _ := ms.GetShare(ctx, addrA)
	if again.Supply != 1 {
		t.Errorf("mutating a returned share must not affect the store, got supply %d", again.Supply)
	}
}

func TestMemoryStore_ListSharesMissingSocial(t *testing.T) {
	ctx := context.Background()
	ms := NewMemoryStore()

	username := "bob"
	ms.UpsertShare(ctx, &model.Share{Address: addrA, Balance: decimal.NewFromInt(5)})
	ms.UpsertShare(ctx, &model.Share{Address: addrB, Balance: decimal.NewFromInt(50)})
	ms.UpsertShare(ctx, &model.Share{Address: addrC, Balance: decimal.NewFromInt(20)})
	ms.UpdateShareSocial(ctx, addrC, SocialInfo{TwitterUsername: &username})

	missing, err := ms.ListSharesMissingSocial(ctx, 10)
	if err != nil {
		t.Fatalf("ListSharesMissingSocial failed: %v", err)
	}
	if len(missing) != 2 {
		t.Fatalf("expected 2 shares missing social, got %d", len(missing))
	}
	// Richest first.
	if missing[0].Address != addrB || missing[1].Address != addrA {
		t.Errorf("wrong order: %s, %s", missing[0].Address, missing[1].Address)
	}

	missing, _ = ms.ListSharesMissingSocial(ctx, 1)
	if len(missing) != 1 || missing[0].Address != addrB {
		t.Errorf("limit must keep the richest share, got %v", missing)
	}
}
