/*
store.go - Persistence interface for the ledger core

PURPOSE:
  Defines the interface between the ledger logic and the database.
  Every method is scoped by owner: implementations add an explicit
  owner predicate to every query, so a record owned by another user
  behaves exactly like a missing one (ErrNotFound).

KEY INTERFACES:
  Store:   The per-transaction view (reads and writes)
  TxStore: Opens transactions; the only entry point the Service uses

TRANSACTIONS:
  All Service operations run inside TxStore.WithTx. If fn returns an
  error the transaction is rolled back, otherwise committed. Stores map
  serialization failures and busy databases to ErrConflict so the
  Service can retry the whole transaction.

IMPLEMENTATIONS:
  - store/sqlite: SQLite (default)
  - store/postgres: PostgreSQL via pgx
  - ledger/store: In-memory for tests and development

SEE ALSO:
  - service.go: Uses TxStore
  - errors.go: ErrNotFound, ErrConflict
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// ItemStore persists inventory items.
type ItemStore interface {
	GetItem(ctx context.Context, owner UserID, id ItemID) (InventoryItem, error)
	ListItems(ctx context.Context, owner UserID) ([]InventoryItem, error)
	// FindItemsByName returns items with exactly this name, newest first.
	FindItemsByName(ctx context.Context, owner UserID, name string) ([]InventoryItem, error)
	InsertItem(ctx context.Context, item InventoryItem) error
	UpdateItem(ctx context.Context, item InventoryItem) error
	DeleteItem(ctx context.Context, owner UserID, id ItemID) error
}

// LotStore persists lots. Lots are exclusively owned by one item.
type LotStore interface {
	GetLot(ctx context.Context, owner UserID, id LotID) (Lot, error)
	// ListLots returns lots of an item ordered by received date, then creation.
	ListLots(ctx context.Context, owner UserID, item ItemID) ([]Lot, error)
	InsertLot(ctx context.Context, lot Lot) error
	UpdateLot(ctx context.Context, lot Lot) error
	DeleteLot(ctx context.Context, owner UserID, id LotID) error
}

// UsageStore persists usage records.
type UsageStore interface {
	GetUsage(ctx context.Context, owner UserID, id UsageID) (UsageRecord, error)
	// ListUsage returns records matching every non-empty filter field, newest first.
	ListUsage(ctx context.Context, owner UserID, filter UsageFilter) ([]UsageRecord, error)
	InsertUsage(ctx context.Context, usage UsageRecord) error
	// DeleteUsage removes the record. deleted is false if it did not exist.
	DeleteUsage(ctx context.Context, owner UserID, id UsageID) (deleted bool, err error)
}

// BatchStore persists plant batches.
type BatchStore interface {
	GetBatch(ctx context.Context, owner UserID, id BatchID) (PlantBatch, error)
	ListBatches(ctx context.Context, owner UserID) ([]PlantBatch, error)
	InsertBatch(ctx context.Context, batch PlantBatch) error
	// UpdateBatch writes every field except CTPTotal.
	UpdateBatch(ctx context.Context, batch PlantBatch) error
	SetBatchCTP(ctx context.Context, owner UserID, id BatchID, total decimal.Decimal) error
	DeleteBatch(ctx context.Context, owner UserID, id BatchID) error
}

// DiaryStore persists diary entries.
type DiaryStore interface {
	GetDiaryEntry(ctx context.Context, owner UserID, id DiaryEntryID) (DiaryEntry, error)
	// FindDiaryEntryByUsage returns the entry generated for a usage, or ErrNotFound.
	FindDiaryEntryByUsage(ctx context.Context, owner UserID, usage UsageID) (DiaryEntry, error)
	// ListDiaryEntries returns entries of a batch, newest entry date first.
	ListDiaryEntries(ctx context.Context, owner UserID, batch BatchID) ([]DiaryEntry, error)
	InsertDiaryEntry(ctx context.Context, entry DiaryEntry) error
	DeleteDiaryEntry(ctx context.Context, owner UserID, id DiaryEntryID) (deleted bool, err error)
	DeleteDiaryEntriesByBatch(ctx context.Context, owner UserID, batch BatchID) error
}

// CostStore persists explicit cost entries.
type CostStore interface {
	GetCostEntry(ctx context.Context, owner UserID, id CostEntryID) (CostEntry, error)
	ListCostEntries(ctx context.Context, owner UserID, batch BatchID) ([]CostEntry, error)
	InsertCostEntry(ctx context.Context, entry CostEntry) error
	DeleteCostEntry(ctx context.Context, owner UserID, id CostEntryID) (deleted bool, err error)
}

// ProfileStore persists per-user settings.
type ProfileStore interface {
	// GetProfile returns the stored profile, or DefaultProfile(owner).
	GetProfile(ctx context.Context, owner UserID) (Profile, error)
	UpsertProfile(ctx context.Context, profile Profile) error
}

// Store is the full per-transaction view.
type Store interface {
	ItemStore
	LotStore
	UsageStore
	BatchStore
	DiaryStore
	CostStore
	ProfileStore
}

// TxStore executes fn within a transaction.
// If fn returns error, the transaction is rolled back.
// If fn returns nil, the transaction is committed.
type TxStore interface {
	WithTx(ctx context.Context, fn func(Store) error) error
}
