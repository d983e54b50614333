package consolidation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"inventoryconsolidator/internal/inventory"

	"github.com/redis/go-redis/v9"
)

const (
	redisRecordPrefix = "inventory:record:"
	redisStorePrefix  = "inventory:store:"
	redisSKUPrefix    = "inventory:sku:"

	redisMaxTxAttempts = 10
)

// RedisStore keeps one JSON document per key plus two index sets (SKUs per
// store and stores per SKU). Mutations of one key are serialized in-process
// by a key lock and across processes by WATCH/MULTI on the record key.
type RedisStore struct {
	client redis.UniversalClient
	locks  *keyLocks
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, locks: newKeyLocks(memoryShards)}
}

func redisRecordKey(key inventory.Key) string { return redisRecordPrefix + key.String() }

func decodeRecord(raw []byte) (inventory.Record, error) {
	var rec inventory.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return inventory.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (s *RedisStore) Get(ctx context.Context, key inventory.Key) (inventory.Record, bool, error) {
	raw, err := s.client.Get(ctx, redisRecordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return inventory.Record{}, false, nil
	}
	if err != nil {
		return inventory.Record{}, false, unavailable("consolidation/redis: get", err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return inventory.Record{}, false, unavailable("consolidation/redis: get", err)
	}
	return rec, true, nil
}

func (s *RedisStore) Upsert(ctx context.Context, key inventory.Key, fn MutateFunc) (inventory.Record, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return inventory.Record{}, unavailable("consolidation/redis: lock", err)
	}
	defer unlock()

	rk := redisRecordKey(key)
	var out inventory.Record
	txn := func(tx *redis.Tx) error {
		current, found := inventory.Record{}, false
		raw, err := tx.Get(ctx, rk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if current, err = decodeRecord(raw); err != nil {
				return err
			}
			found = true
		}

		next, changed := fn(current, found)
		if !changed {
			out = current
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, 0)
			pipe.SAdd(ctx, redisStorePrefix+key.StoreID, key.SKU)
			pipe.SAdd(ctx, redisSKUPrefix+key.SKU, key.StoreID)
			return nil
		})
		if err != nil {
			return err
		}
		out = next
		return nil
	}

	for range redisMaxTxAttempts {
		err := s.client.Watch(ctx, txn, rk)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return inventory.Record{}, unavailable("consolidation/redis: upsert "+key.String(), err)
	}
	return inventory.Record{}, unavailable("consolidation/redis: upsert "+key.String(), redis.TxFailedErr)
}

func (s *RedisStore) ListByStore(ctx context.Context, storeID string) ([]inventory.Record, error) {
	skus, err := s.client.SMembers(ctx, redisStorePrefix+storeID).Result()
	if err != nil {
		return nil, unavailable("consolidation/redis: list by store", err)
	}
	keys := make([]string, 0, len(skus))
	for _, sku := range skus {
		keys = append(keys, redisRecordKey(inventory.Key{StoreID: storeID, SKU: sku}))
	}
	return s.load(ctx, "consolidation/redis: list by store", keys)
}

func (s *RedisStore) ListBySKU(ctx context.Context, sku string) ([]inventory.Record, error) {
	stores, err := s.client.SMembers(ctx, redisSKUPrefix+sku).Result()
	if err != nil {
		return nil, unavailable("consolidation/redis: list by sku", err)
	}
	keys := make([]string, 0, len(stores))
	for _, storeID := range stores {
		keys = append(keys, redisRecordKey(inventory.Key{StoreID: storeID, SKU: sku}))
	}
	return s.load(ctx, "consolidation/redis: list by sku", keys)
}

func (s *RedisStore) load(ctx context.Context, op string, keys []string) ([]inventory.Record, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(op, err)
	}
	out := make([]inventory.Record, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecord([]byte(str))
		if err != nil {
			return nil, unavailable(op, err)
		}
		out = append(out, rec)
	}
	sortRecords(out)
	return out, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the connection for health probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
