package aggregate

import (
	"hash/fnv"
	"sync"

	"github.com/sharescan/engine/internal/model"
)

// Pair keys a net position: the trader holding, the subject held.
type Pair struct {
	Trader  string
	Subject string
}

const positionShards = 64

type positionShard struct {
	mu  sync.RWMutex
	net map[Pair]int64
}

// Positions reduces the trade ledger into net share counts per
// (trader, subject) pair. Buys add ShareAmount, sells subtract it.
// Every applied transaction hash is remembered so reapplying a trade is a
// no-op (idempotency). State is sharded by pair so incremental updates to
// independent partitions never contend; a full rebuild locks every shard.
type Positions struct {
	shards [positionShards]positionShard

	mu      sync.RWMutex // guards applied + version
	applied map[string]struct{}
	version uint64
}

// NewPositions creates an empty net-position aggregator at version 0.
func NewPositions() *Positions {
	p := &Positions{applied: make(map[string]struct{})}
	for i := range p.shards {
		p.shards[i].net = make(map[Pair]int64)
	}
	return p
}

func shardIndex(pair Pair) uint32 {
	h := fnv.New32a()
	h.Write([]byte(pair.Trader))
	h.Write([]byte(pair.Subject))
	return h.Sum32() % positionShards
}

func delta(t *model.Trade) int64 {
	if t.IsBuy {
		return t.ShareAmount
	}
	return -t.ShareAmount
}

// Rebuild replaces all state with a fold over the complete trade ledger,
// stamping the result with the given version. A pair left negative by the
// full ledger is a data-integrity error and the previous state is kept.
func (p *Positions) Rebuild(trades []model.Trade, version uint64) error {
	net := make(map[Pair]int64, len(trades))
	applied := make(map[string]struct{}, len(trades))

	for i := range trades {
		t := &trades[i]
		if _, dup := applied[t.TransactionHash]; dup {
			continue
		}
		applied[t.TransactionHash] = struct{}{}
		pair := Pair{t.Trader, t.Subject}
		if n := net[pair] + delta(t); n == 0 {
			delete(net, pair)
		} else {
			net[pair] = n
		}
	}

	for pair, n := range net {
		if n < 0 {
			return &NegativeHoldingsError{Trader: pair.Trader, Subject: pair.Subject, Net: n}
		}
	}

	sharded := make([]map[Pair]int64, positionShards)
	for i := range sharded {
		sharded[i] = make(map[Pair]int64)
	}
	for pair, n := range net {
		sharded[shardIndex(pair)][pair] = n
	}

	for i := range p.shards {
		s := &p.shards[i]
		s.mu.Lock()
		s.net = sharded[i]
		s.mu.Unlock()
	}

	p.mu.Lock()
	p.applied = applied
	p.version = version
	p.mu.Unlock()
	return nil
}

// Plan validates an incremental batch against current state without
// applying it. It returns, per affected pair, the net delta of the batch's
// unapplied trades, or a NegativeHoldingsError if the batch would leave any
// pair negative. Net amounts may dip negative between trades within the
// batch (out-of-order application); only the terminal value is checked.
func (p *Positions) Plan(batch []model.Trade) (map[Pair]int64, error) {
	p.mu.RLock()
	deltas := make(map[Pair]int64)
	seen := make(map[string]struct{}, len(batch))
	for i := range batch {
		t := &batch[i]
		if _, dup := p.applied[t.TransactionHash]; dup {
			continue
		}
		if _, dup := seen[t.TransactionHash]; dup {
			continue
		}
		seen[t.TransactionHash] = struct{}{}
		deltas[Pair{t.Trader, t.Subject}] += delta(t)
	}
	p.mu.RUnlock()

	for pair, d := range deltas {
		if n := p.Net(pair) + d; n < 0 {
			return nil, &NegativeHoldingsError{Trader: pair.Trader, Subject: pair.Subject, Net: n}
		}
	}
	return deltas, nil
}

// ApplyPair folds one pair's planned delta into its shard under that
// shard's lock, returning the old and new net values. Marking hashes
// applied is the caller's job via MarkApplied once the whole batch has
// been folded.
func (p *Positions) ApplyPair(pair Pair, d int64) (oldNet, newNet int64) {
	s := &p.shards[shardIndex(pair)]
	s.mu.Lock()
	defer s.mu.Unlock()

	oldNet = s.net[pair]
	newNet = oldNet + d
	if newNet == 0 {
		delete(s.net, pair)
	} else {
		s.net[pair] = newNet
	}
	return oldNet, newNet
}

// MarkApplied records a batch's transaction hashes and advances the
// version stamp after all pair deltas have been folded in.
func (p *Positions) MarkApplied(batch []model.Trade, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range batch {
		p.applied[batch[i].TransactionHash] = struct{}{}
	}
	p.version = version
}

// Net returns the current net position for a pair (0 when absent).
func (p *Positions) Net(pair Pair) int64 {
	s := &p.shards[shardIndex(pair)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.net[pair]
}

// Applied reports whether a transaction hash has already been folded in.
func (p *Positions) Applied(hash string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.applied[hash]
	return ok
}

// Version returns the version stamp of the current state.
func (p *Positions) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Each calls fn for every (pair, net) entry, shard by shard. Iteration
// order is unspecified; callers must not depend on it.
func (p *Positions) Each(fn func(Pair, int64)) {
	for i := range p.shards {
		s := &p.shards[i]
		s.mu.RLock()
		for pair, n := range s.net {
			fn(pair, n)
		}
		s.mu.RUnlock()
	}
}
