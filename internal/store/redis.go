package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sharescan/engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for share rows. Writes go to the primary store and invalidate the
// cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) UpsertShare(ctx context.Context, sh *model.Share) error {
	if err := s.primary.UpsertShare(ctx, sh); err != nil {
		return err
	}
	s.rdb.Del(ctx, shareKey(sh.Address))
	return nil
}

func (s *CachedStore) UpdateShareSocial(ctx context.Context, address string, info SocialInfo) error {
	if err := s.primary.UpdateShareSocial(ctx, address, info); err != nil {
		return err
	}
	s.rdb.Del(ctx, shareKey(address))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetShare(ctx context.Context, address string) (*model.Share, error) {
	data, err := s.rdb.Get(ctx, shareKey(address)).Bytes()
	if err == nil {
		var sh model.Share
		if json.Unmarshal(data, &sh) == nil {
			return &sh, nil
		}
	}

	// Cache miss: read from primary.
	sh, err := s.primary.GetShare(ctx, address)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(sh); err == nil {
		s.rdb.Set(ctx, shareKey(address), data, s.ttl)
	}
	return sh, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) InsertTrades(ctx context.Context, trades []model.Trade) ([]model.Trade, error) {
	return s.primary.InsertTrades(ctx, trades)
}

func (s *CachedStore) ListTrades(ctx context.Context) ([]model.Trade, error) {
	return s.primary.ListTrades(ctx)
}

func (s *CachedStore) TradesAfterBlock(ctx context.Context, block int64) ([]model.Trade, error) {
	return s.primary.TradesAfterBlock(ctx, block)
}

func (s *CachedStore) LastBlock(ctx context.Context) (int64, error) {
	return s.primary.LastBlock(ctx)
}

func (s *CachedStore) ListShares(ctx context.Context) ([]model.Share, error) {
	return s.primary.ListShares(ctx)
}

func (s *CachedStore) ListSharesMissingSocial(ctx context.Context, limit int) ([]model.Share, error) {
	return s.primary.ListSharesMissingSocial(ctx, limit)
}

func shareKey(address string) string { return fmt.Sprintf("share:%s", address) }
