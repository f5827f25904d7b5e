/*
Package sqlite provides a SQLite-backed implementation of ledger.TxStore.

PURPOSE:
  Stores items, lots, usage, batches, diary entries, cost entries and
  profiles in one SQLite database. This is the default driver for a
  single-node deployment.

KEY TABLES:
  inventory_items: Consumables; is_persistent marks untracked supply
  lots:            Stock receipts (FK inventory_items)
  plant_batches:   Cost aggregation roots with the cached ctp_total
  usage_records:   Consumption events (FK items and batches)
  diary_entries:   Notes; usage_link_id is UNIQUE
  cost_entries:    Explicit costs (FK plant_batches)
  profiles:        Per-user settings

ENCODING:
  Decimals are stored as canonical decimal TEXT, never REAL. Timestamps
  are fixed-width UTC text so that ORDER BY on them is chronological.
  Dates are YYYY-MM-DD.

CONCURRENCY:
  Transactions are opened with BEGIN IMMEDIATE (_txlock=immediate), so
  the stock check and the usage insert hold the write lock together. A
  process-level mutex serializes WithTx; SQLITE_BUSY/LOCKED from another
  process maps to ledger.ErrConflict and is retried by the service.

USAGE:
  store, err := sqlite.New("./data/veronagrow.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, ledger.Options{})

MIGRATION:
  Ordered migrations run on New() and are recorded in schema_migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/postgres: PostgreSQL implementation
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/Cronanaut/veronagrow/ledger"
)

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := dbPath + "?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.PingContext(ctx)
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
		is_persistent INTEGER NOT NULL DEFAULT 0,
		unit_cost TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_items_owner_name ON inventory_items(owner_id, name);

	CREATE TABLE lots (
		id TEXT PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES inventory_items(id),
		owner_id TEXT NOT NULL,
		lot_code TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit_cost TEXT,
		received_at TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_lots_owner_item ON lots(owner_id, item_id);

	CREATE TABLE plant_batches (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'seedling',
		start_date TEXT,
		strain TEXT NOT NULL DEFAULT '',
		breeder TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		harvested_at TEXT,
		yield_bud TEXT,
		yield_trim TEXT,
		ctp_total TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL,
		CHECK (harvested_at IS NOT NULL OR (yield_bud IS NULL AND yield_trim IS NULL))
	);
	CREATE INDEX idx_batches_owner ON plant_batches(owner_id, created_at);

	CREATE TABLE usage_records (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		item_id TEXT NOT NULL REFERENCES inventory_items(id),
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		quantity TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		used_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_usage_owner_item ON usage_records(owner_id, item_id, used_at DESC);
	CREATE INDEX idx_usage_owner_batch ON usage_records(owner_id, batch_id, used_at DESC);

	CREATE TABLE diary_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		note TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		usage_link_id TEXT UNIQUE,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_diary_owner_batch ON diary_entries(owner_id, batch_id, entry_date DESC);

	CREATE TABLE cost_entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		batch_id TEXT NOT NULL REFERENCES plant_batches(id),
		cost_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX idx_costs_owner_batch ON cost_entries(owner_id, batch_id);

	CREATE TABLE profiles (
		owner_id TEXT PRIMARY KEY,
		water_cost_per_unit TEXT,
		electricity_cost_per_kwh TEXT,
		unit_system TEXT NOT NULL DEFAULT 'metric',
		temperature_unit TEXT NOT NULL DEFAULT 'C',
		updated_at TEXT NOT NULL
	);
	`,
}

// migrate applies pending migrations in order.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return err
	}
	var current int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
			i+1, formatTime(time.Now())); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapError(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return mapError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

var _ ledger.Store = (*txStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

// exec runs a write and reports ErrNotFound when no row matched.
func (ts *txStore) exec(ctx context.Context, what string, query string, args ...any) error {
	res, err := ts.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return mapError(fmt.Errorf("failed to %s: %w", what, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ledger.ErrNotFound)
	}
	return nil
}

// deleteRow runs a delete and reports whether a row was removed.
func (ts *txStore) deleteRow(ctx context.Context, what string, query string, args ...any) (bool, error) {
	res, err := ts.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, mapError(fmt.Errorf("failed to %s: %w", what, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to %s: %w", what, err)
	}
	return n > 0, nil
}

func queryAll[T any](ctx context.Context, tx *sql.Tx, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(fmt.Errorf("failed to query: %w", err))
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

func queryOne[T any](ctx context.Context, tx *sql.Tx, kind string, scan func(scanner) (T, error), query string, args ...any) (T, error) {
	v, err := scan(tx.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		var zero T
		return zero, fmt.Errorf("%s: %w", kind, ledger.ErrNotFound)
	}
	return v, err
}

// =============================================================================
// ITEMS
// =============================================================================

const itemColumns = `id, owner_id, name, unit, category, is_persistent, unit_cost, created_at`

func scanItem(row scanner) (ledger.InventoryItem, error) {
	var (
		it        ledger.InventoryItem
		createdAt string
	)
	if err := row.Scan(&it.ID, &it.OwnerID, &it.Name, &it.Unit, &it.Category,
		&it.IsPersistent, &it.UnitCost, &createdAt); err != nil {
		return it, mapScanError("item", err)
	}
	it.CreatedAt = parseTime(createdAt)
	return it, nil
}

func (ts *txStore) GetItem(ctx context.Context, owner ledger.UserID, id ledger.ItemID) (ledger.InventoryItem, error) {
	return queryOne(ctx, ts.tx, "item "+string(id), scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) ListItems(ctx context.Context, owner ledger.UserID) ([]ledger.InventoryItem, error) {
	return queryAll(ctx, ts.tx, scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = ? ORDER BY name COLLATE NOCASE, created_at`, owner)
}

func (ts *txStore) FindItemsByName(ctx context.Context, owner ledger.UserID, name string) ([]ledger.InventoryItem, error) {
	return queryAll(ctx, ts.tx, scanItem,
		`SELECT `+itemColumns+` FROM inventory_items WHERE owner_id = ? AND name = ? ORDER BY created_at DESC`, owner, name)
}

func (ts *txStore) InsertItem(ctx context.Context, it ledger.InventoryItem) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO inventory_items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OwnerID, it.Name, it.Unit, it.Category, it.IsPersistent, it.UnitCost, formatTime(it.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert item: %w", err))
	}
	return nil
}

func (ts *txStore) UpdateItem(ctx context.Context, it ledger.InventoryItem) error {
	return ts.exec(ctx, "update item",
		`UPDATE inventory_items SET name = ?, unit = ?, category = ?, is_persistent = ?, unit_cost = ?
		 WHERE owner_id = ? AND id = ?`,
		it.Name, it.Unit, it.Category, it.IsPersistent, it.UnitCost, it.OwnerID, it.ID)
}

func (ts *txStore) DeleteItem(ctx context.Context, owner ledger.UserID, id ledger.ItemID) error {
	return ts.exec(ctx, "delete item", `DELETE FROM inventory_items WHERE owner_id = ? AND id = ?`, owner, id)
}

// =============================================================================
// LOTS
// =============================================================================

const lotColumns = `id, item_id, owner_id, lot_code, quantity, unit_cost, received_at, created_at`

func scanLot(row scanner) (ledger.Lot, error) {
	var (
		l          ledger.Lot
		receivedAt sql.NullString
		createdAt  string
	)
	if err := row.Scan(&l.ID, &l.ItemID, &l.OwnerID, &l.LotCode, &l.Quantity,
		&l.UnitCost, &receivedAt, &createdAt); err != nil {
		return l, mapScanError("lot", err)
	}
	l.ReceivedAt = parseNullDate(receivedAt)
	l.CreatedAt = parseTime(createdAt)
	return l, nil
}

func (ts *txStore) GetLot(ctx context.Context, owner ledger.UserID, id ledger.LotID) (ledger.Lot, error) {
	return queryOne(ctx, ts.tx, "lot "+string(id), scanLot,
		`SELECT `+lotColumns+` FROM lots WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) ListLots(ctx context.Context, owner ledger.UserID, item ledger.ItemID) ([]ledger.Lot, error) {
	return queryAll(ctx, ts.tx, scanLot,
		`SELECT `+lotColumns+` FROM lots WHERE owner_id = ? AND item_id = ?
		 ORDER BY received_at IS NULL, received_at, created_at`, owner, item)
}

func (ts *txStore) InsertLot(ctx context.Context, l ledger.Lot) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO lots (`+lotColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.ItemID, l.OwnerID, l.LotCode, l.Quantity, l.UnitCost, nullDate(l.ReceivedAt), formatTime(l.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert lot: %w", err))
	}
	return nil
}

func (ts *txStore) UpdateLot(ctx context.Context, l ledger.Lot) error {
	return ts.exec(ctx, "update lot",
		`UPDATE lots SET lot_code = ?, quantity = ?, unit_cost = ?, received_at = ? WHERE owner_id = ? AND id = ?`,
		l.LotCode, l.Quantity, l.UnitCost, nullDate(l.ReceivedAt), l.OwnerID, l.ID)
}

func (ts *txStore) DeleteLot(ctx context.Context, owner ledger.UserID, id ledger.LotID) error {
	return ts.exec(ctx, "delete lot", `DELETE FROM lots WHERE owner_id = ? AND id = ?`, owner, id)
}

// =============================================================================
// USAGE
// =============================================================================

const usageColumns = `id, item_id, batch_id, owner_id, quantity, note, used_at, created_at`

func scanUsage(row scanner) (ledger.UsageRecord, error) {
	var (
		u                 ledger.UsageRecord
		usedAt, createdAt string
	)
	if err := row.Scan(&u.ID, &u.ItemID, &u.BatchID, &u.OwnerID, &u.Quantity,
		&u.Note, &usedAt, &createdAt); err != nil {
		return u, mapScanError("usage", err)
	}
	u.UsedAt = parseTime(usedAt)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (ts *txStore) GetUsage(ctx context.Context, owner ledger.UserID, id ledger.UsageID) (ledger.UsageRecord, error) {
	return queryOne(ctx, ts.tx, "usage "+string(id), scanUsage,
		`SELECT `+usageColumns+` FROM usage_records WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) ListUsage(ctx context.Context, owner ledger.UserID, f ledger.UsageFilter) ([]ledger.UsageRecord, error) {
	query := `SELECT ` + usageColumns + ` FROM usage_records WHERE owner_id = ?`
	args := []any{owner}
	if f.ItemID != "" {
		query += ` AND item_id = ?`
		args = append(args, f.ItemID)
	}
	if f.BatchID != "" {
		query += ` AND batch_id = ?`
		args = append(args, f.BatchID)
	}
	query += ` ORDER BY used_at DESC, created_at DESC`
	return queryAll(ctx, ts.tx, scanUsage, query, args...)
}

func (ts *txStore) InsertUsage(ctx context.Context, u ledger.UsageRecord) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO usage_records (`+usageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ItemID, u.BatchID, u.OwnerID, u.Quantity, u.Note, formatTime(u.UsedAt), formatTime(u.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert usage: %w", err))
	}
	return nil
}

func (ts *txStore) DeleteUsage(ctx context.Context, owner ledger.UserID, id ledger.UsageID) (bool, error) {
	return ts.deleteRow(ctx, "delete usage", `DELETE FROM usage_records WHERE owner_id = ? AND id = ?`, owner, id)
}

// =============================================================================
// BATCHES
// =============================================================================

const batchColumns = `id, owner_id, name, stage, start_date, strain, breeder, notes,
	harvested_at, yield_bud, yield_trim, ctp_total, created_at`

func scanBatch(row scanner) (ledger.PlantBatch, error) {
	var (
		b                      ledger.PlantBatch
		startDate, harvestedAt sql.NullString
		createdAt              string
	)
	if err := row.Scan(&b.ID, &b.OwnerID, &b.Name, &b.Stage, &startDate, &b.Strain, &b.Breeder, &b.Notes,
		&harvestedAt, &b.YieldBud, &b.YieldTrim, &b.CTPTotal, &createdAt); err != nil {
		return b, mapScanError("batch", err)
	}
	b.StartDate = parseNullDate(startDate)
	b.HarvestedAt = parseNullDate(harvestedAt)
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

func (ts *txStore) GetBatch(ctx context.Context, owner ledger.UserID, id ledger.BatchID) (ledger.PlantBatch, error) {
	return queryOne(ctx, ts.tx, "batch "+string(id), scanBatch,
		`SELECT `+batchColumns+` FROM plant_batches WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) ListBatches(ctx context.Context, owner ledger.UserID) ([]ledger.PlantBatch, error) {
	return queryAll(ctx, ts.tx, scanBatch,
		`SELECT `+batchColumns+` FROM plant_batches WHERE owner_id = ? ORDER BY created_at DESC`, owner)
}

func (ts *txStore) InsertBatch(ctx context.Context, b ledger.PlantBatch) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO plant_batches (`+batchColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.OwnerID, b.Name, b.Stage, nullDate(b.StartDate), b.Strain, b.Breeder, b.Notes,
		nullDate(b.HarvestedAt), b.YieldBud, b.YieldTrim, b.CTPTotal, formatTime(b.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert batch: %w", err))
	}
	return nil
}

func (ts *txStore) UpdateBatch(ctx context.Context, b ledger.PlantBatch) error {
	return ts.exec(ctx, "update batch",
		`UPDATE plant_batches SET name = ?, stage = ?, start_date = ?, strain = ?, breeder = ?, notes = ?,
		 harvested_at = ?, yield_bud = ?, yield_trim = ?
		 WHERE owner_id = ? AND id = ?`,
		b.Name, b.Stage, nullDate(b.StartDate), b.Strain, b.Breeder, b.Notes,
		nullDate(b.HarvestedAt), b.YieldBud, b.YieldTrim, b.OwnerID, b.ID)
}

func (ts *txStore) SetBatchCTP(ctx context.Context, owner ledger.UserID, id ledger.BatchID, total decimal.Decimal) error {
	return ts.exec(ctx, "set batch ctp",
		`UPDATE plant_batches SET ctp_total = ? WHERE owner_id = ? AND id = ?`, total, owner, id)
}

func (ts *txStore) DeleteBatch(ctx context.Context, owner ledger.UserID, id ledger.BatchID) error {
	return ts.exec(ctx, "delete batch", `DELETE FROM plant_batches WHERE owner_id = ? AND id = ?`, owner, id)
}

// =============================================================================
// DIARY
// =============================================================================

const diaryColumns = `id, batch_id, owner_id, note, entry_date, usage_link_id, created_at`

func scanDiary(row scanner) (ledger.DiaryEntry, error) {
	var (
		d                    ledger.DiaryEntry
		entryDate, createdAt string
		link                 sql.NullString
	)
	if err := row.Scan(&d.ID, &d.BatchID, &d.OwnerID, &d.Note, &entryDate, &link, &createdAt); err != nil {
		return d, mapScanError("diary entry", err)
	}
	if t := parseNullDate(sql.NullString{String: entryDate, Valid: true}); t != nil {
		d.EntryDate = *t
	}
	if link.Valid {
		id := ledger.UsageID(link.String)
		d.UsageLinkID = &id
	}
	d.CreatedAt = parseTime(createdAt)
	return d, nil
}

func (ts *txStore) GetDiaryEntry(ctx context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (ledger.DiaryEntry, error) {
	return queryOne(ctx, ts.tx, "diary entry "+string(id), scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) FindDiaryEntryByUsage(ctx context.Context, owner ledger.UserID, usage ledger.UsageID) (ledger.DiaryEntry, error) {
	return queryOne(ctx, ts.tx, "diary entry for usage "+string(usage), scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = ? AND usage_link_id = ?`, owner, usage)
}

func (ts *txStore) ListDiaryEntries(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.DiaryEntry, error) {
	return queryAll(ctx, ts.tx, scanDiary,
		`SELECT `+diaryColumns+` FROM diary_entries WHERE owner_id = ? AND batch_id = ?
		 ORDER BY entry_date DESC, created_at DESC`, owner, batch)
}

func (ts *txStore) InsertDiaryEntry(ctx context.Context, d ledger.DiaryEntry) error {
	var link sql.NullString
	if d.UsageLinkID != nil {
		link = sql.NullString{String: string(*d.UsageLinkID), Valid: true}
	}
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO diary_entries (`+diaryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.BatchID, d.OwnerID, d.Note, formatDate(d.EntryDate), link, formatTime(d.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert diary entry: %w", err))
	}
	return nil
}

func (ts *txStore) DeleteDiaryEntry(ctx context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (bool, error) {
	return ts.deleteRow(ctx, "delete diary entry", `DELETE FROM diary_entries WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) DeleteDiaryEntriesByBatch(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) error {
	_, err := ts.deleteRow(ctx, "delete diary entries", `DELETE FROM diary_entries WHERE owner_id = ? AND batch_id = ?`, owner, batch)
	return err
}

// =============================================================================
// COSTS
// =============================================================================

const costColumns = `id, batch_id, owner_id, cost_type, description, amount, created_at`

func scanCost(row scanner) (ledger.CostEntry, error) {
	var (
		c         ledger.CostEntry
		createdAt string
	)
	if err := row.Scan(&c.ID, &c.BatchID, &c.OwnerID, &c.CostType, &c.Description, &c.Amount, &createdAt); err != nil {
		return c, mapScanError("cost entry", err)
	}
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (ts *txStore) GetCostEntry(ctx context.Context, owner ledger.UserID, id ledger.CostEntryID) (ledger.CostEntry, error) {
	return queryOne(ctx, ts.tx, "cost entry "+string(id), scanCost,
		`SELECT `+costColumns+` FROM cost_entries WHERE owner_id = ? AND id = ?`, owner, id)
}

func (ts *txStore) ListCostEntries(ctx context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.CostEntry, error) {
	return queryAll(ctx, ts.tx, scanCost,
		`SELECT `+costColumns+` FROM cost_entries WHERE owner_id = ? AND batch_id = ? ORDER BY created_at`, owner, batch)
}

func (ts *txStore) InsertCostEntry(ctx context.Context, c ledger.CostEntry) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO cost_entries (`+costColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.BatchID, c.OwnerID, c.CostType, c.Description, c.Amount, formatTime(c.CreatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to insert cost entry: %w", err))
	}
	return nil
}

func (ts *txStore) DeleteCostEntry(ctx context.Context, owner ledger.UserID, id ledger.CostEntryID) (bool, error) {
	return ts.deleteRow(ctx, "delete cost entry", `DELETE FROM cost_entries WHERE owner_id = ? AND id = ?`, owner, id)
}

// =============================================================================
// PROFILES
// =============================================================================

func (ts *txStore) GetProfile(ctx context.Context, owner ledger.UserID) (ledger.Profile, error) {
	var (
		p         ledger.Profile
		updatedAt string
	)
	err := ts.tx.QueryRowContext(ctx,
		`SELECT owner_id, water_cost_per_unit, electricity_cost_per_kwh, unit_system, temperature_unit, updated_at
		 FROM profiles WHERE owner_id = ?`, owner,
	).Scan(&p.OwnerID, &p.WaterCostPerUnit, &p.ElectricityCostPerKWh, &p.UnitSystem, &p.TemperatureUnit, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.DefaultProfile(owner), nil
	}
	if err != nil {
		return ledger.Profile{}, mapScanError("profile", err)
	}
	p.UpdatedAt = parseTime(updatedAt)
	return p, nil
}

func (ts *txStore) UpsertProfile(ctx context.Context, p ledger.Profile) error {
	_, err := ts.tx.ExecContext(ctx,
		`INSERT INTO profiles (owner_id, water_cost_per_unit, electricity_cost_per_kwh, unit_system, temperature_unit, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id) DO UPDATE SET
		   water_cost_per_unit = excluded.water_cost_per_unit,
		   electricity_cost_per_kwh = excluded.electricity_cost_per_kwh,
		   unit_system = excluded.unit_system,
		   temperature_unit = excluded.temperature_unit,
		   updated_at = excluded.updated_at`,
		p.OwnerID, p.WaterCostPerUnit, p.ElectricityCostPerKWh, p.UnitSystem, p.TemperatureUnit, formatTime(p.UpdatedAt))
	if err != nil {
		return mapError(fmt.Errorf("failed to upsert profile: %w", err))
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so text order equals time order.
const (
	timeLayout = "2006-01-02T15:04:05.000000000Z"
	dateLayout = "2006-01-02"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}

func formatDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func parseNullDate(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// mapError translates driver errors to ledger sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	case se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
		return fmt.Errorf("%w: %v", ledger.ErrConflict, err)
	case se.ExtendedCode == sqlite3.ErrConstraintForeignKey:
		return fmt.Errorf("%w: %v", ledger.ErrInUse, err)
	case se.ExtendedCode == sqlite3.ErrConstraintCheck:
		return &ledger.ValidationError{Field: "record", Message: se.Error()}
	}
	return err
}

func mapScanError(kind string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return mapError(fmt.Errorf("failed to scan %s: %w", kind, err))
}
