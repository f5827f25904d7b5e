/*
Package postgres provides a PostgreSQL implementation of ledger.TxStore.

PURPOSE:
  Same tables and semantics as store/sqlite, for multi-node deployments.
  Connections come from a pgxpool.Pool.

ISOLATION:
  Every transaction runs at SERIALIZABLE. Two usages racing for the last
  units of an item cannot both commit: one fails with SQLSTATE 40001,
  which maps to ledger.ErrConflict and is retried by the service.

ENCODING:
  Money and quantities are NUMERIC. They cross the wire as text
  (-> $n::text::numeric, <- col::text) and are parsed into
  decimal.Decimal, so no value ever passes through float64.

ERROR MAPPING:
  40001 serialization_failure  -> ledger.ErrConflict
  40P01 deadlock_detected      -> ledger.ErrConflict
  23505 unique_violation       -> ledger.ErrConflict
  23503 foreign_key_violation  -> ledger.ErrInUse
  23514 check_violation        -> ledger.ValidationError
  no rows                      -> ledger.ErrNotFound

SEE ALSO:
  - store/sqlite: SQLite implementation
  - ledger/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Cronanaut/veronagrow/ledger"
)

// Store implements ledger.TxStore on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, verifies the connection and applies migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// SCHEMA
// =============================================================================

var migrations = []string{
	`
	CREATE TABLE inventory_items (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		unit TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		is_persistent BOOLEAN NOT NULL DEFAULT FALSE,
		unit_cost NUMERIC CHECK (unit_cost >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_items_owner_name ON inventory_items(owner_id, name);

	CREATE TABLE lots (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES inventory_items(id),
		owner_id TEXT NOT NULL,
		lot_code TEXT NOT NULL,
		quantity NUMERIC NOT NULL CHECK (quantity >= 0.000001),
		unit_cost NUMERIC CHECK (unit_cost >= 0),
		received_at DATE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_lots_owner_item ON lots(owner_id, item_id);

	CREATE TABLE plant_batches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'seedling'
			CHECK (stage IN ('seedling', 'veg', 'flower', 'dry', 'cure')),
		start_date DATE,
		strain TEXT NOT NULL DEFAULT '',
		breeder TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		harvested_at DATE,
		yield_bud NUMERIC CHECK (yield_bud >= 0),
		yield_trim NUMERIC CHECK (yield_trim >= 0),
		ctp_total NUMERIC(14, 2) NOT NULL DEFAULT 0 CHECK (ctp_total >= 0),
		created_at TIMESTAMPTZ NOT NULL,
		CHECK (harvested_at IS NOT NULL OR (yield_bud IS NULL AND yield_trim IS NULL))
	);
	CREATE INDEX idx_batches_owner ON plant_batches(owner_id, created_at DESC);

	CREATE TABLE usage_records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		item_id TEXT NOT NULL REFERENCES inventory_items(id),
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		quantity NUMERIC NOT NULL CHECK (quantity > 0),
		note TEXT NOT NULL DEFAULT '',
		used_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_usage_owner_item ON usage_records(owner_id, item_id, used_at DESC);
	CREATE INDEX idx_usage_owner_batch ON usage_records(owner_id, batch_id, used_at DESC);

	CREATE TABLE diary_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		note TEXT NOT NULL,
		entry_date DATE NOT NULL,
		usage_link_id TEXT UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_diary_owner_batch ON diary_entries(owner_id, batch_id, entry_date DESC);

	CREATE TABLE cost_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		cost_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount NUMERIC NOT NULL CHECK (amount >= 0),
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX idx_costs_owner_batch ON cost_entries(owner_id, batch_id);

	CREATE TABLE profiles (
		owner_id TEXT PRIMARY KEY,
		water_cost_per_unit NUMERIC CHECK (water_cost_per_unit >= 0),
		electricity_cost_per_kwh NUMERIC CHECK (electricity_cost_per_kwh >= 0),
		unit_system TEXT NOT NULL DEFAULT 'metric',
		temperature_unit TEXT NOT NULL DEFAULT 'C',
		updated_at TIMESTAMPTZ NOT NULL
	);
	`,
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL)`); err != nil {
		return err
	}
	var current int
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, migrations[i]); err != nil {
				return fmt.Errorf("migration %d: %w", i+1, err)
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES ($1, now())`, i+1)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn within a SERIALIZABLE transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(fmt.Errorf("postgres: begin tx: %w", err))
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError(fmt.Errorf("postgres: commit tx: %w", err))
	}

	return nil
}

type txStore struct {
	tx pgx.Tx
}

var _ ledger.Store = (*txStore)(nil)

func (ts *txStore) exec(ctx context.Context, what, query string, args ...any) error {
	tag, err := ts.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapError(fmt.Errorf("postgres: %s: %w", what, err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", what, ledger.ErrNotFound)
	}
	return nil
}

func (ts *txStore) insert(ctx context.Context, what, query string, args ...any) error {
	if _, err := ts.tx.Exec(ctx, query, args...); err != nil {
		return mapError(fmt.Errorf("postgres: %s: %w", what, err))
	}
	return nil
}

func (ts *txStore) deleteRow(ctx context.Context, what, query string, args ...any) (bool, error) {
	tag, err := ts.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, mapError(fmt.Errorf("postgres: %s: %w", what, err))
	}
	return tag.RowsAffected() > 0, nil
}

func queryAll[T any](ctx context.Context, tx pgx.Tx, scan func(pgx.Row) (T, error), query string, args ...any) ([]T, error) {
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("postgres: query: %w", err))
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, mapError(rows.Err())
}

func queryOne[T any](ctx context.Context, tx pgx.Tx, kind string, scan func(pgx.Row) (T, error), query string, args ...any) (T, error) {
	v, err := scan(tx.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s: %w", kind, ledger.ErrNotFound)
	}
	return v, err
}

// =============================================================================
// ITEMS
// =============================================================================

const itemColumns = `id, owner_id, name, unit, category, is_persistent, unit_cost::text, created_at`

func scanItem(row pgx.Row) (ledger.InventoryItem, error) {
	var (
		it       ledger.InventoryItem
		unitCost *string
	)
	if err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Unit, &it.Category,
		&it.IsPersistent, &unitCost, &it.CreatedAt); err != nil {
		return it, scanError("item", err)
	}
	var err error
	if it.UnitCost, err = parseNull(unitCost); err != nil {
		return it, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	return it, nil
}

func (ts *txStore) GetItem(ctx context.Context, owner ledger.UserID, id ledger.ItemID) (ledger.InventoryItem, error) {
	return queryOne(ctx, ts.tx, "item "+string(id), scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) ListItems(ctx context.Context, owner ledger.UserID) ([]ledger.InventoryItem, error) {
	return queryAll(ctx, ts.tx, scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = $1 ORDER BY lower(name), created_at`, owner)
}

func (ts *txStore) FindItemsByName(ctx context.Context, owner ledger.UserID, name string) ([]ledger.InventoryItem, error) {
	return queryAll(ctx, ts.tx, scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = $1 AND name = $2 ORDER BY created_at DESC`, owner, name)
}

func (ts *txStore) InsertItem(ctx context.Context, it ledger.InventoryItem) error {
	return ts.insert(ctx, "insert item",
		`INSERT INTO inventory_items (id, owner_id, name, unit, category, is_persistent, unit_cost, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::text::numeric, $8)`,
		it.ID, it.OwnerID, it.Name, it.Unit, it.Category, it.IsPersistent, nullNum(it.UnitCost), it.CreatedAt)
}

func (ts *txStore) UpdateItem(ctx context.Context, it ledger.InventoryItem) error {
	return ts.exec(ctx, "update item",
		`UPDATE inventory_items SET name = $3, unit = $4, category = $5, is_persistent = $6, unit_cost = $7::text::numeric
		 WHERE owner_id = $1 AND id = $2`,
		it.OwnerID, it.ID, it.Name, it.Unit, it.Category, it.IsPersistent, nullNum(it.UnitCost))
}

func (ts *txStore) DeleteItem(ctx context.Context, owner ledger.UserID, id ledger.ItemID) error {
	return ts.exec(ctx, "delete item", `DELETE FROM inventory_items WHERE owner_id = $1 AND id = $2`, owner, id)
}

// =============================================================================
// LOTS
// =============================================================================

const lotColumns = `id, item_id, owner_id, lot_code, quantity::text, unit_cost::text, received_at, created_at`

func scanLot(row pgx.Row) (ledger.Lot, error) {
	var (
		l        ledger.Lot
		quantity string
		unitCost *string
	)
	if err := row.Scan(&l.ID, &l.ItemID, &l.OwnerID, &l.LotCode, &quantity,
		&unitCost, &l.ReceivedAt, &l.CreatedAt); err != nil {
		return l, scanError("lot", err)
	}
	var err error
	if l.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return l, err
	}
	if l.UnitCost, err = parseNull(unitCost); err != nil {
		return l, err
	}
	l.ReceivedAt = utcDate(l.ReceivedAt)
	l.CreatedAt = l.CreatedAt.UTC()
	return l, nil
}

func (ts *txStore) GetLot(ctx context.Context, owner ledger.UserID, id ledger.LotID) (ledger.Lot, error) {
	return queryOne(ctx, ts.tx, "lot "+string(id), scanLot,
		`SELECT `+lotColumns+` FROM lots WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) ListLots(ctx context.Context, owner ledger.UserID, item ledger.ItemID) ([]ledger.Lot, error) {
	return queryAll(ctx, ts.tx, scanLot,
		`SELECT `+lotColumns+` FROM lots WHERE owner_id = $1 AND item_id = $2
		 ORDER BY received_at ASC NULLS LAST, created_at`, owner, item)
}

func (ts *txStore) InsertLot(ctx context.Context, l ledger.Lot) error {
	return ts.insert(ctx, "insert lot",
		`INSERT INTO lots (id, item_id, owner_id, lot_code, quantity, unit_cost, received_at, created_at)
		 VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric, $7, $8)`,
		l.ID, l.ItemID, l.OwnerID, l.LotCode, l.Quantity.String(), nullNum(l.UnitCost), l.ReceivedAt, l.CreatedAt)
}

func (ts *txStore) UpdateLot(ctx context.Context, l ledger.Lot) error {
	return ts.exec(ctx, "update lot",
		`UPDATE lots SET lot_code = $3, quantity = $4::text::numeric, unit_cost = $5::text::numeric, received_at = $6
		 WHERE owner_id = $1 AND id = $2`,
		l.OwnerID, l.ID, l.LotCode, l.Quantity.String(), nullNum(l.UnitCost), l.ReceivedAt)
}

func (ts *txStore) DeleteLot(ctx context.Context, owner ledger.UserID, id ledger.LotID) error {
	return ts.exec(ctx, "delete lot", `DELETE FROM lots WHERE owner_id = $1 AND id = $2`, owner, id)
}

// =============================================================================
// USAGE
// =============================================================================

const usageColumns = `id, item_id, batch_id, owner_id, quantity::text, note, used_at, created_at`

func scanUsage(row pgx.Row) (ledger.UsageRecord, error) {
	var (
		u        ledger.UsageRecord
		quantity string
	)
	if err := row.Scan(&u.ID, &u.ItemID, &u.BatchID, &u.OwnerID, &quantity,
		&u.Note, &u.UsedAt, &u.CreatedAt); err != nil {
		return u, scanError("usage", err)
	}
	var err error
	if u.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return u, err
	}
	u.UsedAt = u.UsedAt.UTC()
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func (ts *txStore) GetUsage(ctx context.Context, owner ledger.UserID, id ledger.UsageID) (ledger.UsageRecord, error) {
	return queryOne(ctx, ts.tx, "usage "+string(id), scanUsage,
		`SELECT `+usageColumns+` FROM usage_records WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) ListUsage(ctx context.Context, owner ledger.UserID, f ledger.UsageFilter) ([]ledger.UsageRecord, error) {
	return queryAll(ctx, ts.tx, scanUsage,
		`SELECT `+usageColumns+` FROM usage_records
		 WHERE owner_id = $1 AND ($2 = '' OR item_id = $2) AND ($3 = '' OR batch_id = $3)
		 ORDER BY used_at DESC, created_at DESC`,
		owner, string(f.ItemID), string(f.BatchID))
}

func (ts *txStore) InsertUsage(ctx context.Context, u ledger.UsageRecord) error {
	return ts.insert(ctx, "insert usage",
		`INSERT INTO usage_records (id, item_id, batch_id, owner_id, quantity, note, used_at, created_at)
		 VALUES ($1, $2, $3, $4, $5::text::numeric, $6, $7, $8)`,
		u.ID, u.ItemID, u.BatchID, u.OwnerID, u.Quantity.String(), u.Note, u.UsedAt, u.CreatedAt)
}

func (ts *txStore) DeleteUsage(ctx context.Context, owner ledger.UserID, id ledger.UsageID) (bool, error) {
	return ts.deleteRow(ctx, "delete usage", `DELETE FROM usage_records WHERE owner_id = $1 AND id = $2`, owner, id)
}

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, owner_id, name, stage, start_date, strain, breeder, notes,
	harvested_at, yield_bud::text, yield_trim::text, ctp_total::text, created_at`

func scanBatch(row pgx.Row) (ledger.PlantBatch, error) {
	var (
		b                   ledger.PlantBatch
		yieldBud, yieldTrim *string
		ctp                 string
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Stage, &b.StartDate, &b.Strain, &b.Breeder, &b.Notes,
		&b.HarvestedAt, &yieldBud, &yieldTrim, &ctp, &b.CreatedAt); err != nil {
		return b, scanError("batch", err)
	}
	var err error
	if b.YieldBud, err = parseNull(yieldBud); err != nil {
		return b, err
	}
	if b.YieldTrim, err = parseNull(yieldTrim); err != nil {
		return b, err
	}
	if b.CTPTotal, err = decimal.NewFromString(ctp); err != nil {
		return b, err
	}
	b.StartDate = utcDate(b.StartDate)
	b.HarvestedAt = utcDate(b.HarvestedAt)
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (ts *txStore) GetBatch(ctx context.Context, owner ledger.UserID, id ledger.BatchID) (ledger.PlantBatch, error) {
	return queryOne(ctx, ts.tx, "batch "+string(id), scanBatch,
		`SELECT `+batchColumns+` FROM plant_batches WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) ListBatches(ctx context.Context, owner ledger.UserID) ([]ledger.PlantBatch, error) {
	return queryAll(ctx, ts.tx, scanBatch,
		`SELECT `+batchColumns+` FROM plant_batches WHERE owner_id = $1 ORDER BY created_at DESC`, owner)
}

func (ts *txStore) InsertBatch(ctx context.Context, b ledger.PlantBatch) error {
	return ts.insert(ctx, "insert batch",
		`INSERT INTO plant_batches (id, owner_id, name, stage, start_date, strain, breeder, notes,
		   harvested_at, yield_bud, yield_trim, ctp_total, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text::numeric, $11::text::numeric, $12::text::numeric, $13)`,
		b.ID, b.OwnerID, b.Name, string(b.Stage), b.StartDate, b.Strain, b.Breeder, b.Notes,
		b.HarvestedAt, nullNum(b.YieldBud), nullNum(b.YieldTrim), b.CTPTotal.String(), b.CreatedAt)
}

func (ts *txStore) UpdateBatch(ctx context.Context, b ledger.PlantBatch) error {
	return ts.exec(ctx, "update batch",
		`UPDATE plant_batches SET name = $3, stage = $4, start_date = $5, strain = $6, breeder = $7, notes = $8,
		   harvested_at = $9, yield_bud = $10::text::numeric, yield_trim = $11::text::numeric
		 WHERE owner_id = $1 AND id = $2`,
		b.OwnerID, b.ID, b.Name, string(b.Stage), b.StartDate, b.Strain, b.Breeder, b.Notes,
		b.HarvestedAt, nullNum(b.YieldBud), nullNum(b.YieldTrim))
}

func (ts *txStore) SetBatchCTP(ctx context.Context, owner ledger.UserID, id ledger.BatchID, total decimal.Decimal) error {
	return ts.exec(ctx, "set batch ctp",
		`UPDATE plant_batches SET ctp_total = $3::text::numeric WHERE owner_id = $1 AND id = $2`,
		owner, id, total.String())
}

func (ts *txStore) DeleteBatch(ctx context.Context, owner ledger.UserID, id ledger.BatchID) error {
	return ts.exec(ctx, "delete batch", `DELETE FROM plant_batches WHERE owner_id = $1 AND id = $2`, owner, id)
}

// =============================================================================
// DIARY
// =============================================================================

const diaryColumns = `id, batch_id, owner_id, note, entry_date, usage_link_id, created_at`

func scanDiary(row pgx.Row) (ledger.DiaryEntry, error) {
	var (
		d    ledger.DiaryEntry
		link *string
	)
	if err := row.Scan(&d.ID, &d.BatchID, &d.OwnerID, &d.Note, &d.EntryDate, &link, &d.CreatedAt); err != nil {
		return d, scanError("diary entry", err)
	}
	if link != nil {
		id := ledger.UsageID(*link)
		d.UsageLinkID = &id
	}
	d.EntryDate = ledger.DateOf(d.EntryDate)
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}

func (ts *txStore) GetDiaryEntry(ctx context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (ledger.DiaryEntry, error) {
	return queryOne(ctx, ts.tx, "diary entry "+string(id), scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) FindDiaryEntryByUsage(ctx context.Context, owner ledger.UserID, usage ledger.UsageID) (ledger.DiaryEntry, error) {
	return queryOne(ctx, ts.tx, "diary entry for usage "+string(usage), scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = $1 AND usage_link_id = $2`, owner, usage)
}

func (ts *txStore) ListDiaryEntries(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.DiaryEntry, error) {
	return queryAll(ctx, ts.tx, scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = $1 AND batch_id = $2
		 ORDER BY entry_date DESC, created_at DESC`, owner, batch)
}

func (ts *txStore) InsertDiaryEntry(ctx context.Context, d ledger.DiaryEntry) error {
	var link *string
	if d.UsageLinkID != nil {
		s := string(*d.UsageLinkID)
		link = &s
	}
	return ts.insert(ctx, "insert diary entry",
		`INSERT INTO diary_entries (id, batch_id, owner_id, note, entry_date, usage_link_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.BatchID, d.OwnerID, d.Note, d.EntryDate, link, d.CreatedAt)
}

func (ts *txStore) DeleteDiaryEntry(ctx context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (bool, error) {
	return ts.deleteRow(ctx, "delete diary entry", `DELETE FROM diary_entries WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) DeleteDiaryEntriesByBatch(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) error {
	_, err := ts.deleteRow(ctx, "delete diary entries",
		`DELETE FROM diary_entries WHERE owner_id = $1 AND batch_id = $2`, owner, batch)
	return err
}

// =============================================================================
// COSTS
// =============================================================================

const costColumns = `id, batch_id, owner_id, cost_type, description, amount::text, created_at`

func scanCost(row pgx.Row) (ledger.CostEntry, error) {
	var (
		c      ledger.CostEntry
		amount string
	)
	if err := row.Scan(&c.ID, &c.BatchID, &c.OwnerID, &c.CostType, &c.Description, &amount, &c.CreatedAt); err != nil {
		return c, scanError("cost entry", err)
	}
	var err error
	if c.Amount, err = decimal.NewFromString(amount); err != nil {
		return c, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

func (ts *txStore) GetCostEntry(ctx context.Context, owner ledger.UserID, id ledger.CostEntryID) (ledger.CostEntry, error) {
	return queryOne(ctx, ts.tx, "cost entry "+string(id), scanCost,
		`SELECT `+costColumns+` FROM cost_entries WHERE owner_id = $1 AND id = $2`, owner, id)
}

func (ts *txStore) ListCostEntries(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.CostEntry, error) {
	return queryAll(ctx, ts.tx, scanCost,
		`SELECT `+costColumns+` FROM cost_entries WHERE owner_id = $1 AND batch_id = $2 ORDER BY created_at`, owner, batch)
}

func (ts *txStore) InsertCostEntry(ctx context.Context, c ledger.CostEntry) error {
	return ts.insert(ctx, "insert cost entry",
		`INSERT INTO cost_entries (id, batch_id, owner_id, cost_type, description, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7)`,
		c.ID, c.BatchID, c.OwnerID, c.CostType, c.Description, c.Amount.String(), c.CreatedAt)
}

func (ts *txStore) DeleteCostEntry(ctx context.Context, owner ledger.UserID, id ledger.CostEntryID) (bool, error) {
	return ts.deleteRow(ctx, "delete cost entry", `DELETE FROM cost_entries WHERE owner_id = $1 AND id = $2`, owner, id)
}

// =============================================================================
// PROFILES
// =============================================================================

func (ts *txStore) GetProfile(ctx context.Context, owner ledger.UserID) (ledger.Profile, error) {
	var (
		p                  ledger.Profile
		water, electricity *string
		unitSystem, temp   string
	)
	err := ts.tx.QueryRow(ctx,
		`SELECT owner_id, water_cost_per_unit::text, electricity_cost_per_kwh::text, unit_system, temperature_unit, updated_at
		 FROM profiles WHERE owner_id = $1`, owner,
	).Scan(&p.OwnerID, &water, &electricity, &unitSystem, &temp, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.DefaultProfile(owner), nil
	}
	if err != nil {
		return ledger.Profile{}, scanError("profile", err)
	}
	if p.WaterCostPerUnit, err = parseNull(water); err != nil {
		return ledger.Profile{}, err
	}
	if p.ElectricityCostPerKWh, err = parseNull(electricity); err != nil {
		return ledger.Profile{}, err
	}
	p.UnitSystem = ledger.UnitSystem(unitSystem)
	p.TemperatureUnit = ledger.TemperatureUnit(temp)
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func (ts *txStore) UpsertProfile(ctx context.Context, p ledger.Profile) error {
	return ts.insert(ctx, "upsert profile",
		`INSERT INTO profiles (owner_id, water_cost_per_unit, electricity_cost_per_kwh, unit_system, temperature_unit, updated_at)
		 VALUES ($1, $2::text::numeric, $3::text::numeric, $4, $5, $6)
		 ON CONFLICT (owner_id) DO UPDATE SET
		   water_cost_per_unit = EXCLUDED.water_cost_per_unit,
		   electricity_cost_per_kwh = EXCLUDED.electricity_cost_per_kwh,
		   unit_system = EXCLUDED.unit_system,
		   temperature_unit = EXCLUDED.temperature_unit,
		   updated_at = EXCLUDED.updated_at`,
		p.OwnerID, nullNum(p.WaterCostPerUnit), nullNum(p.ElectricityCostPerKWh),
		string(p.UnitSystem), string(p.TemperatureUnit), p.UpdatedAt)
}

// =============================================================================
// HELPERS
// =============================================================================

func nullNum(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNull(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("postgres: parse numeric %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

func utcDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := ledger.DateOf(*t)
	return &d
}

// mapError translates PostgreSQL errors to ledger sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "40001", "40P01", "23505":
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	case "23503":
		return fmt.Errorf("%w: %v", ledger.ErrInUse, err)
	case "23514":
		return &ledger.ValidationError{Field: pgErr.ConstraintName, Message: pgErr.Message}
	}
	return err
}

func scanError(kind string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	return mapError(fmt.Errorf("postgres: scan %s: %w", kind, err))
}
