package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sharescan/engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	shares  map[string]*model.Share
	trades  []model.Trade
	byHash  map[string]struct{}
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		shares: make(map[string]*model.Share),
		byHash: make(map[string]struct{}),
	}
}

func (s *MemoryStore) InsertTrades(_ context.Context, trades []model.Trade) ([]model.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var inserted []model.Trade
	for i := range trades {
		t := trades[i]
		if _, dup := s.byHash[t.TransactionHash]; dup {
			continue
		}
		s.byHash[t.TransactionHash] = struct{}{}
		s.trades = append(s.trades, t)
		inserted = append(inserted, t)
	}
	sort.SliceStable(s.trades, func(i, j int) bool {
		return s.trades[i].BlockNumber < s.trades[j].BlockNumber
	})
	return inserted, nil
}

func (s *MemoryStore) ListTrades(_ context.Context) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Trade, len(s.trades))
	copy(out, s.trades)
	return out, nil
}

func (s *MemoryStore) TradesAfterBlock(_ context.Context, block int64) ([]model.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Trade
	for _, t := range s.trades {
		if t.BlockNumber > block {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *MemoryStore) LastBlock(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var last int64
	for _, t := range s.trades {
		if t.BlockNumber > last {
			last = t.BlockNumber
		}
	}
	return last, nil
}

func (s *MemoryStore) UpsertShare(_ context.Context, share *model.Share) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.shares[share.Address]
	if !ok {
		// Store a copy to avoid external mutation.
		cp := *share
		s.shares[share.Address] = &cp
		return nil
	}

	existing.LastTransaction = share.LastTransaction
	existing.Balance = share.Balance
	existing.BuyPrice = share.BuyPrice
	existing.SellPrice = share.SellPrice
	existing.Supply = share.Supply
	return nil
}

func (s *MemoryStore) GetShare(_ context.Context, address string) (*model.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sh, ok := s.shares[address]
	if !ok {
		return nil, fmt.Errorf("%w: share %s", ErrNotFound, address)
	}
	cp := *sh
	return &cp, nil
}

func (s *MemoryStore) ListShares(_ context.Context) ([]model.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shares := make([]model.Share, 0, len(s.shares))
	for _, sh := range s.shares {
		shares = append(shares, *sh)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].Address < shares[j].Address })
	return shares, nil
}

func (s *MemoryStore) ListSharesMissingSocial(_ context.Context, limit int) ([]model.Share, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var shares []model.Share
	for _, sh := range s.shares {
		if sh.TwitterUsername == nil {
			shares = append(shares, *sh)
		}
	}
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].Balance.GreaterThan(shares[j].Balance)
	})
	if limit > 0 && len(shares) > limit {
		shares = shares[:limit]
	}
	return shares, nil
}

func (s *MemoryStore) UpdateShareSocial(_ context.Context, address string, info SocialInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shares[address]
	if !ok {
		return fmt.Errorf("%w: share %s", ErrNotFound, address)
	}
	sh.TwitterUsername = info.TwitterUsername
	sh.TwitterName = info.TwitterName
	sh.TwitterScore = info.TwitterScore
	sh.Rank = info.Rank
	return nil
}
