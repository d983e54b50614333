package consolidation

import (
	"context"
	"sync"
	"sync/atomic"

	"inventoryconsolidator/internal/inventory"

	"github.com/cespare/xxhash/v2"
)

const memoryShards = 64

// MemoryStore keeps records in process memory. Each key has its own mutation
// slot and an atomically swapped snapshot, so readers never wait on writers.
type MemoryStore struct {
	shards [memoryShards]memoryShard
	locks  *keyLocks
}

type memoryShard struct {
	mu      sync.RWMutex
	records map[inventory.Key]*atomic.Pointer[inventory.Record]
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{locks: newKeyLocks(memoryShards)}
	for i := range s.shards {
		s.shards[i].records = make(map[inventory.Key]*atomic.Pointer[inventory.Record])
	}
	return s
}

func (s *MemoryStore) shard(key inventory.Key) *memoryShard {
	return &s.shards[xxhash.Sum64String(key.String())%memoryShards]
}

func (s *MemoryStore) load(key inventory.Key) (inventory.Record, bool) {
	sh := s.shard(key)
	sh.mu.RLock()
	p, ok := sh.records[key]
	sh.mu.RUnlock()
	if !ok {
		return inventory.Record{}, false
	}
	return p.Load().Clone(), true
}

// Get returns a snapshot of the record for key.
func (s *MemoryStore) Get(_ context.Context, key inventory.Key) (inventory.Record, bool, error) {
	rec, ok := s.load(key)
	return rec, ok, nil
}

// Upsert runs fn with the key's mutation slot held and publishes the result.
func (s *MemoryStore) Upsert(ctx context.Context, key inventory.Key, fn MutateFunc) (inventory.Record, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return inventory.Record{}, err
	}
	defer unlock()

	current, found := s.load(key)
	next, changed := fn(current, found)
	if !changed {
		return current, nil
	}

	stored := next.Clone()
	sh := s.shard(key)
	sh.mu.Lock()
	p, ok := sh.records[key]
	if !ok {
		p = new(atomic.Pointer[inventory.Record])
		sh.records[key] = p
	}
	p.Store(&stored)
	sh.mu.Unlock()

	return next, nil
}

// ListByStore returns every record held for storeID, tombstones included.
func (s *MemoryStore) ListByStore(_ context.Context, storeID string) ([]inventory.Record, error) {
	return s.collect(func(k inventory.Key) bool { return k.StoreID == storeID }), nil
}

// ListBySKU returns the records for sku across all stores, tombstones included.
func (s *MemoryStore) ListBySKU(_ context.Context, sku string) ([]inventory.Record, error) {
	return s.collect(func(k inventory.Key) bool { return k.SKU == sku }), nil
}

func (s *MemoryStore) collect(match func(inventory.Key) bool) []inventory.Record {
	var out []inventory.Record
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, p := range sh.records {
			if match(k) {
				out = append(out, p.Load().Clone())
			}
		}
		sh.mu.RUnlock()
	}
	sortRecords(out)
	return out
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }
