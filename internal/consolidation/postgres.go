package consolidation

import (
	"context"
	"errors"
	"fmt"

	"inventoryconsolidator/internal/inventory"
	"inventoryconsolidator/internal/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS consolidated_inventory (
	store_id         TEXT        NOT NULL,
	sku              TEXT        NOT NULL,
	product_id       TEXT        NOT NULL DEFAULT '',
	name             TEXT        NOT NULL DEFAULT '',
	quantity         BIGINT      NOT NULL CHECK (quantity >= 0),
	unit_price       NUMERIC     NOT NULL DEFAULT 0,
	active           BOOLEAN     NOT NULL,
	deleted          BOOLEAN     NOT NULL DEFAULT FALSE,
	last_sequence    BIGINT      NOT NULL,
	last_event_at    TIMESTAMPTZ NOT NULL,
	modified_at      TIMESTAMPTZ NOT NULL,
	recent_event_ids TEXT[]      NOT NULL DEFAULT '{}',
	PRIMARY KEY (store_id, sku)
);
CREATE INDEX IF NOT EXISTS consolidated_inventory_sku_idx ON consolidated_inventory (sku);
ALTER TABLE consolidated_inventory ALTER COLUMN unit_price TYPE NUMERIC;
`

const recordColumns = `store_id, sku, product_id, name, quantity, unit_price::text, active, deleted,
	last_sequence, last_event_at, modified_at, recent_event_ids`

const upsertRecord = `
INSERT INTO consolidated_inventory (store_id, sku, product_id, name, quantity, unit_price, active,
	deleted, last_sequence, last_event_at, modified_at, recent_event_ids)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12)
ON CONFLICT (store_id, sku) DO UPDATE SET
	product_id = EXCLUDED.product_id,
	name = EXCLUDED.name,
	quantity = EXCLUDED.quantity,
	unit_price = EXCLUDED.unit_price,
	active = EXCLUDED.active,
	deleted = EXCLUDED.deleted,
	last_sequence = EXCLUDED.last_sequence,
	last_event_at = EXCLUDED.last_event_at,
	modified_at = EXCLUDED.modified_at,
	recent_event_ids = EXCLUDED.recent_event_ids`

// PostgresStore keeps records in the consolidated_inventory table. A
// transaction-scoped advisory lock on the key serializes mutations of one key
// across every consumer process.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the table and index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return unavailable("consolidation/postgres: ensure schema", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (inventory.Record, error) {
	var (
		rec   inventory.Record
		price string
		seq   int64
	)
	err := row.Scan(&rec.StoreID, &rec.SKU, &rec.ProductID, &rec.Name, &rec.Quantity, &price,
		&rec.Active, &rec.Deleted, &seq, &rec.LastEventAt, &rec.ModifiedAt, &rec.RecentEventIDs)
	if err != nil {
		return inventory.Record{}, err
	}
	if rec.UnitPrice, err = decimal.NewFromString(price); err != nil {
		return inventory.Record{}, fmt.Errorf("parse unit_price %q: %w", price, err)
	}
	rec.LastSequence = uint64(seq)
	rec.LastEventAt = rec.LastEventAt.UTC()
	rec.ModifiedAt = rec.ModifiedAt.UTC()
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, key inventory.Key) (inventory.Record, bool, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM consolidated_inventory WHERE store_id = $1 AND sku = $2`,
		key.StoreID, key.SKU))
	if errors.Is(err, pgx.ErrNoRows) {
		return inventory.Record{}, false, nil
	}
	if err != nil {
		return inventory.Record{}, false, unavailable("consolidation/postgres: get", err)
	}
	return rec, true, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, key inventory.Key, fn MutateFunc) (inventory.Record, error) {
	var out inventory.Record
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
			return fmt.Errorf("advisory lock: %w", err)
		}

		current, err := scanRecord(tx.QueryRow(ctx,
			`SELECT `+recordColumns+` FROM consolidated_inventory WHERE store_id = $1 AND sku = $2`,
			key.StoreID, key.SKU))
		found := err == nil
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("select: %w", err)
		}

		next, changed := fn(current, found)
		if !changed {
			out = current
			return nil
		}

		ids := next.RecentEventIDs
		if ids == nil {
			ids = []string{}
		}
		_, err = tx.Exec(ctx, upsertRecord,
			key.StoreID, key.SKU, next.ProductID, next.Name, next.Quantity, next.UnitPrice.String(),
			next.Active, next.Deleted, int64(next.LastSequence), next.LastEventAt, next.ModifiedAt, ids)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		out = next
		return nil
	})
	if err != nil {
		return inventory.Record{}, unavailable("consolidation/postgres: upsert "+key.String(), err)
	}
	return out, nil
}

func (s *PostgresStore) ListByStore(ctx context.Context, storeID string) ([]inventory.Record, error) {
	return s.list(ctx, "consolidation/postgres: list by store",
		`SELECT `+recordColumns+` FROM consolidated_inventory WHERE store_id = $1 ORDER BY store_id, sku`, storeID)
}

func (s *PostgresStore) ListBySKU(ctx context.Context, sku string) ([]inventory.Record, error) {
	return s.list(ctx, "consolidation/postgres: list by sku",
		`SELECT `+recordColumns+` FROM consolidated_inventory WHERE sku = $1 ORDER BY store_id, sku`, sku)
}

func (s *PostgresStore) list(ctx context.Context, op, query string, arg string) ([]inventory.Record, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, unavailable(op, err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (inventory.Record, error) {
		return scanRecord(row)
	})
	if err != nil {
		return nil, unavailable(op, err)
	}
	sortRecords(recs)
	return recs, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the pool for health probes.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
