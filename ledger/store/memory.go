// Package store provides an in-memory ledger.TxStore.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Cronanaut/veronagrow/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// tables holds every row in insertion order.
type tables struct {
	items    []ledger.InventoryItem
	lots     []ledger.Lot
	usages   []ledger.UsageRecord
	batches  []ledger.PlantBatch
	diary    []ledger.DiaryEntry
	costs    []ledger.CostEntry
	profiles []ledger.Profile
}

func (t *tables) clone() *tables {
	return &tables{
		items:    append([]ledger.InventoryItem(nil), t.items...),
		lots:     append([]ledger.Lot(nil), t.lots...),
		usages:   append([]ledger.UsageRecord(nil), t.usages...),
		batches:  append([]ledger.PlantBatch(nil), t.batches...),
		diary:    append([]ledger.DiaryEntry(nil), t.diary...),
		costs:    append([]ledger.CostEntry(nil), t.costs...),
		profiles: append([]ledger.Profile(nil), t.profiles...),
	}
}

// Memory is a ledger.TxStore backed by slices. Transactions are serialized
// by a single mutex and rolled back by restoring a snapshot.
type Memory struct {
	mu sync.Mutex
	t  *tables
}

func NewMemory() *Memory {
	return &Memory{t: &tables{}}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.t.clone()
	if err := fn(&view{t: m.t}); err != nil {
		m.t = snapshot
		return err
	}
	return nil
}

// view is the per-transaction Store. It is only valid inside WithTx.
type view struct {
	t *tables
}

var _ ledger.Store = (*view)(nil)

func indexOf[T any](rows []T, match func(T) bool) int {
	for i, r := range rows {
		if match(r) {
			return i
		}
	}
	return -1
}

func filter[T any](rows []T, match func(T) bool) []T {
	out := make([]T, 0)
	for _, r := range rows {
		if match(r) {
			out = append(out, r)
		}
	}
	return out
}

func remove[T any](rows []T, i int) []T {
	return append(rows[:i:i], rows[i+1:]...)
}

func notFound(kind string, id any) error {
	return fmt.Errorf("%s %v: %w", kind, id, ledger.ErrNotFound)
}

// =============================================================================
// ITEMS
// =============================================================================

func (v *view) itemIndex(owner ledger.UserID, id ledger.ItemID) int {
	return indexOf(v.t.items, func(it ledger.InventoryItem) bool { return it.ID == id && it.OwnerID == owner })
}

func (v *view) GetItem(_ context.Context, owner ledger.UserID, id ledger.ItemID) (ledger.InventoryItem, error) {
	i := v.itemIndex(owner, id)
	if i < 0 {
		return ledger.InventoryItem{}, notFound("item", id)
	}
	return v.t.items[i], nil
}

func (v *view) ListItems(_ context.Context, owner ledger.UserID) ([]ledger.InventoryItem, error) {
	items := filter(v.t.items, func(it ledger.InventoryItem) bool { return it.OwnerID == owner })
	sort.SliceStable(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func (v *view) FindItemsByName(_ context.Context, owner ledger.UserID, name string) ([]ledger.InventoryItem, error) {
	items := filter(v.t.items, func(it ledger.InventoryItem) bool { return it.OwnerID == owner && it.Name == name })
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
	return items, nil
}

func (v *view) InsertItem(_ context.Context, item ledger.InventoryItem) error {
	v.t.items = append(v.t.items, item)
	return nil
}

func (v *view) UpdateItem(_ context.Context, item ledger.InventoryItem) error {
	i := v.itemIndex(item.OwnerID, item.ID)
	if i < 0 {
		return notFound("item", item.ID)
	}
	v.t.items[i] = item
	return nil
}

func (v *view) DeleteItem(_ context.Context, owner ledger.UserID, id ledger.ItemID) error {
	i := v.itemIndex(owner, id)
	if i < 0 {
		return notFound("item", id)
	}
	v.t.items = remove(v.t.items, i)
	return nil
}

// =============================================================================
// LOTS
// =============================================================================

func (v *view) lotIndex(owner ledger.UserID, id ledger.LotID) int {
	return indexOf(v.t.lots, func(l ledger.Lot) bool { return l.ID == id && l.OwnerID == owner })
}

func (v *view) GetLot(_ context.Context, owner ledger.UserID, id ledger.LotID) (ledger.Lot, error) {
	i := v.lotIndex(owner, id)
	if i < 0 {
		return ledger.Lot{}, notFound("lot", id)
	}
	return v.t.lots[i], nil
}

func (v *view) ListLots(_ context.Context, owner ledger.UserID, item ledger.ItemID) ([]ledger.Lot, error) {
	lots := filter(v.t.lots, func(l ledger.Lot) bool { return l.OwnerID == owner && l.ItemID == item })
	sort.SliceStable(lots, func(i, j int) bool {
		a, b := lots[i].ReceivedAt, lots[j].ReceivedAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.Before(*b)
		case (a == nil) != (b == nil):
			return a != nil
		}
		return lots[i].CreatedAt.Before(lots[j].CreatedAt)
	})
	return lots, nil
}

func (v *view) InsertLot(_ context.Context, lot ledger.Lot) error {
	if v.itemIndex(lot.OwnerID, lot.ItemID) < 0 {
		return notFound("item", lot.ItemID)
	}
	v.t.lots = append(v.t.lots, lot)
	return nil
}

func (v *view) UpdateLot(_ context.Context, lot ledger.Lot) error {
	i := v.lotIndex(lot.OwnerID, lot.ID)
	if i < 0 {
		return notFound("lot", lot.ID)
	}
	v.t.lots[i] = lot
	return nil
}

func (v *view) DeleteLot(_ context.Context, owner ledger.UserID, id ledger.LotID) error {
	i := v.lotIndex(owner, id)
	if i < 0 {
		return notFound("lot", id)
	}
	v.t.lots = remove(v.t.lots, i)
	return nil
}

// =============================================================================
// USAGE
// =============================================================================

func (v *view) usageIndex(owner ledger.UserID, id ledger.UsageID) int {
	return indexOf(v.t.usages, func(u ledger.UsageRecord) bool { return u.ID == id && u.OwnerID == owner })
}

func (v *view) GetUsage(_ context.Context, owner ledger.UserID, id ledger.UsageID) (ledger.UsageRecord, error) {
	i := v.usageIndex(owner, id)
	if i < 0 {
		return ledger.UsageRecord{}, notFound("usage", id)
	}
	return v.t.usages[i], nil
}

func (v *view) ListUsage(_ context.Context, owner ledger.UserID, f ledger.UsageFilter) ([]ledger.UsageRecord, error) {
	usages := filter(v.t.usages, func(u ledger.UsageRecord) bool {
		return u.OwnerID == owner &&
			(f.ItemID == "" || u.ItemID == f.ItemID) &&
			(f.BatchID == "" || u.BatchID == f.BatchID)
	})
	sort.SliceStable(usages, func(i, j int) bool {
		if !usages[i].UsedAt.Equal(usages[j].UsedAt) {
			return usages[i].UsedAt.After(usages[j].UsedAt)
		}
		return usages[i].CreatedAt.After(usages[j].CreatedAt)
	})
	return usages, nil
}

func (v *view) InsertUsage(_ context.Context, usage ledger.UsageRecord) error {
	if v.itemIndex(usage.OwnerID, usage.ItemID) < 0 {
		return notFound("item", usage.ItemID)
	}
	if v.batchIndex(usage.OwnerID, usage.BatchID) < 0 {
		return notFound("batch", usage.BatchID)
	}
	v.t.usages = append(v.t.usages, usage)
	return nil
}

func (v *view) DeleteUsage(_ context.Context, owner ledger.UserID, id ledger.UsageID) (bool, error) {
	i := v.usageIndex(owner, id)
	if i < 0 {
		return false, nil
	}
	v.t.usages = remove(v.t.usages, i)
	return true, nil
}

// =============================================================================
// BATCHES
// =============================================================================

func (v *view) batchIndex(owner ledger.UserID, id ledger.BatchID) int {
	return indexOf(v.t.batches, func(b ledger.PlantBatch) bool { return b.ID == id && b.OwnerID == owner })
}

func (v *view) GetBatch(_ context.Context, owner ledger.UserID, id ledger.BatchID) (ledger.PlantBatch, error) {
	i := v.batchIndex(owner, id)
	if i < 0 {
		return ledger.PlantBatch{}, notFound("batch", id)
	}
	return v.t.batches[i], nil
}

func (v *view) ListBatches(_ context.Context, owner ledger.UserID) ([]ledger.PlantBatch, error) {
	batches := filter(v.t.batches, func(b ledger.PlantBatch) bool { return b.OwnerID == owner })
	sort.SliceStable(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

func (v *view) InsertBatch(_ context.Context, batch ledger.PlantBatch) error {
	v.t.batches = append(v.t.batches, batch)
	return nil
}

func (v *view) UpdateBatch(_ context.Context, batch ledger.PlantBatch) error {
	i := v.batchIndex(batch.OwnerID, batch.ID)
	if i < 0 {
		return notFound("batch", batch.ID)
	}
	batch.CTPTotal = v.t.batches[i].CTPTotal
	v.t.batches[i] = batch
	return nil
}

func (v *view) SetBatchCTP(_ context.Context, owner ledger.UserID, id ledger.BatchID, total decimal.Decimal) error {
	i := v.batchIndex(owner, id)
	if i < 0 {
		return notFound("batch", id)
	}
	v.t.batches[i].CTPTotal = total
	return nil
}

func (v *view) DeleteBatch(_ context.Context, owner ledger.UserID, id ledger.BatchID) error {
	i := v.batchIndex(owner, id)
	if i < 0 {
		return notFound("batch", id)
	}
	v.t.batches = remove(v.t.batches, i)
	return nil
}

// =============================================================================
// DIARY
// =============================================================================

func (v *view) diaryIndex(owner ledger.UserID, id ledger.DiaryEntryID) int {
	return indexOf(v.t.diary, func(d ledger.DiaryEntry) bool { return d.ID == id && d.OwnerID == owner })
}

func (v *view) GetDiaryEntry(_ context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (ledger.DiaryEntry, error) {
	i := v.diaryIndex(owner, id)
	if i < 0 {
		return ledger.DiaryEntry{}, notFound("diary entry", id)
	}
	return v.t.diary[i], nil
}

func (v *view) FindDiaryEntryByUsage(_ context.Context, owner ledger.UserID, usage ledger.UsageID) (ledger.DiaryEntry, error) {
	i := indexOf(v.t.diary, func(d ledger.DiaryEntry) bool {
		return d.OwnerID == owner && d.UsageLinkID != nil && *d.UsageLinkID == usage
	})
	if i < 0 {
		return ledger.DiaryEntry{}, notFound("diary entry for usage", usage)
	}
	return v.t.diary[i], nil
}

func (v *view) ListDiaryEntries(_ context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.DiaryEntry, error) {
	entries := filter(v.t.diary, func(d ledger.DiaryEntry) bool { return d.OwnerID == owner && d.BatchID == batch })
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].EntryDate.Equal(entries[j].EntryDate) {
			return entries[i].EntryDate.After(entries[j].EntryDate)
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
	return entries, nil
}

func (v *view) InsertDiaryEntry(_ context.Context, entry ledger.DiaryEntry) error {
	if v.batchIndex(entry.OwnerID, entry.BatchID) < 0 {
		return notFound("batch", entry.BatchID)
	}
	if entry.UsageLinkID != nil {
		dup := indexOf(v.t.diary, func(d ledger.DiaryEntry) bool {
			return d.UsageLinkID != nil && *d.UsageLinkID == *entry.UsageLinkID
		})
		if dup >= 0 {
			return fmt.Errorf("usage %s already linked: %w", *entry.UsageLinkID, ledger.ErrConflict)
		}
	}
	v.t.diary = append(v.t.diary, entry)
	return nil
}

func (v *view) DeleteDiaryEntry(_ context.Context, owner ledger.UserID, id ledger.DiaryEntryID) (bool, error) {
	i := v.diaryIndex(owner, id)
	if i < 0 {
		return false, nil
	}
	v.t.diary = remove(v.t.diary, i)
	return true, nil
}

func (v *view) DeleteDiaryEntriesByBatch(_ context.Context, owner ledger.UserID, batch ledger.BatchID) error {
	v.t.diary = filter(v.t.diary, func(d ledger.DiaryEntry) bool { return d.OwnerID != owner || d.BatchID != batch })
	return nil
}

// =============================================================================
// COSTS
// =============================================================================

func (v *view) costIndex(owner ledger.UserID, id ledger.CostEntryID) int {
	return indexOf(v.t.costs, func(c ledger.CostEntry) bool { return c.ID == id && c.OwnerID == owner })
}

func (v *view) GetCostEntry(_ context.Context, owner ledger.UserID, id ledger.CostEntryID) (ledger.CostEntry, error) {
	i := v.costIndex(owner, id)
	if i < 0 {
		return ledger.CostEntry{}, notFound("cost entry", id)
	}
	return v.t.costs[i], nil
}

func (v *view) ListCostEntries(_ context.Context, owner ledger.UserID, batch ledger.BatchID) ([]ledger.CostEntry, error) {
	entries := filter(v.t.costs, func(c ledger.CostEntry) bool { return c.OwnerID == owner && c.BatchID == batch })
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].CreatedAt.Before(entries[j].CreatedAt) })
	return entries, nil
}

func (v *view) InsertCostEntry(_ context.Context, entry ledger.CostEntry) error {
	if v.batchIndex(entry.OwnerID, entry.BatchID) < 0 {
		return notFound("batch", entry.BatchID)
	}
	v.t.costs = append(v.t.costs, entry)
	return nil
}

func (v *view) DeleteCostEntry(_ context.Context, owner ledger.UserID, id ledger.CostEntryID) (bool, error) {
	i := v.costIndex(owner, id)
	if i < 0 {
		return false, nil
	}
	v.t.costs = remove(v.t.costs, i)
	return true, nil
}

// =============================================================================
// PROFILES
// =============================================================================

func (v *view) GetProfile(_ context.Context, owner ledger.UserID) (ledger.Profile, error) {
	i := indexOf(v.t.profiles, func(p ledger.Profile) bool { return p.OwnerID == owner })
	if i < 0 {
		return ledger.DefaultProfile(owner), nil
	}
	return v.t.profiles[i], nil
}

func (v *view) UpsertProfile(_ context.Context, p ledger.Profile) error {
	i := indexOf(v.t.profiles, func(x ledger.Profile) bool { return x.OwnerID == p.OwnerID })
	if i < 0 {
		v.t.profiles = append(v.t.profiles, p)
		return nil
	}
	v.t.profiles[i] = p
	return nil
}
