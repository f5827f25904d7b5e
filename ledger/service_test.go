/*
service_test.go - Behavior tests for the ledger Service

ORGANIZATION:
  1. Stock never goes negative
  2. Persistent items are unbounded and have no lots
  3. Cost recompute is idempotent
  4. Every usage has exactly one linked diary entry
  5. DeleteUsage is idempotent
  6. Partial failures are visible and retryable
  7. Conflict retries
  8. The CalMag walkthrough

Each test has GIVEN/WHEN/THEN comments explaining the scenario. Faults
are injected with faultStore, which wraps the in-memory store.
*/
package ledger_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
	"github.com/Cronanaut/veronagrow/ledger/store"
)

// =============================================================================
// TEST INFRASTRUCTURE
// =============================================================================

const owner = ledger.UserID("grower-1")

var testNow = time.Date(2026, time.March, 10, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func costOf(s string) decimal.NullDecimal { return decimal.NewNullDecimal(dec(s)) }

var errInjected = errors.New("injected failure")

// faultStore wraps a TxStore and fails selected writes.
type faultStore struct {
	ledger.TxStore

	mu              sync.Mutex
	failDiaryInsert bool
	failDiaryDelete bool
	failSetCTP      bool
	// conflicts is the number of upcoming transactions to fail with ErrConflict.
	conflicts int
}

func (f *faultStore) set(fn func(*faultStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *faultStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	f.mu.Lock()
	if f.conflicts > 0 {
		f.conflicts--
		f.mu.Unlock()
		return ledger.ErrConflict
	}
	tx := faultTx{diaryInsert: f.failDiaryInsert, diaryDelete: f.failDiaryDelete, setCTP: f.failSetCTP}
	f.mu.Unlock()
	return f.TxStore.WithTx(ctx, func(s ledger.Store) error {
		tx.Store = s
		return fn(tx)
	})
}

type faultTx struct {
	ledger.Store
	diaryInsert, diaryDelete, setCTP bool
}

func (t faultTx) InsertDiaryEntry(ctx context.Context, e ledger.DiaryEntry) error {
	if t.diaryInsert {
		return errInjected
	}
	return t.Store.InsertDiaryEntry(ctx, e)
}

func (t faultTx) DeleteDiaryEntry(ctx context.Context, o ledger.UserID, id ledger.DiaryEntryID) (bool, error) {
	if t.diaryDelete {
		return false, errInjected
	}
	return t.Store.DeleteDiaryEntry(ctx, o, id)
}

func (t faultTx) SetBatchCTP(ctx context.Context, o ledger.UserID, id ledger.BatchID, total decimal.Decimal) error {
	if t.setCTP {
		return errInjected
	}
	return t.Store.SetBatchCTP(ctx, o, id, total)
}

// countingRecorder counts metrics events.
type countingRecorder struct {
	mu      sync.Mutex
	states  map[ledger.State]int
	retries int
}

func (c *countingRecorder) UsageRecorded(s ledger.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.states == nil {
		c.states = make(map[ledger.State]int)
	}
	c.states[s]++
}

func (c *countingRecorder) ConflictRetried(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retries++
}

func (c *countingRecorder) CostRecomputed(time.Duration) {}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	svc    *ledger.Service
	faults *faultStore
	rec    *countingRecorder
}

func newFixture(t *testing.T, opts ...func(*ledger.Options)) *fixture {
	t.Helper()
	faults := &faultStore{TxStore: store.NewMemory()}
	rec := &countingRecorder{}
	o := ledger.Options{
		Now:     func() time.Time { return testNow },
		Metrics: rec,
		Retry:   ledger.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 1},
	}
	for _, fn := range opts {
		fn(&o)
	}
	return &fixture{t: t, ctx: context.Background(), svc: ledger.NewService(faults, o), faults: faults, rec: rec}
}

func (f *fixture) item(name, unit string) ledger.InventoryItem {
	f.t.Helper()
	item, err := f.svc.CreateItem(f.ctx, owner, ledger.ItemInput{Name: name, Unit: unit})
	require.NoError(f.t, err)
	return item
}

func (f *fixture) lot(item ledger.InventoryItem, qty, unitCost string) ledger.Lot {
	f.t.Helper()
	in := ledger.LotInput{LotCode: "LOT-" + qty, Quantity: dec(qty)}
	if unitCost != "" {
		in.UnitCost = costOf(unitCost)
	}
	lot, err := f.svc.ReceiveLot(f.ctx, owner, item.ID, in)
	require.NoError(f.t, err)
	return lot
}

func (f *fixture) batch(name string) ledger.PlantBatch {
	f.t.Helper()
	b, err := f.svc.CreateBatch(f.ctx, owner, ledger.BatchInput{Name: name})
	require.NoError(f.t, err)
	return b
}

func (f *fixture) use(item ledger.InventoryItem, batch ledger.PlantBatch, qty string) (ledger.UsageResult, error) {
	f.t.Helper()
	return f.svc.RecordUsage(f.ctx, owner, ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: dec(qty)})
}

func (f *fixture) onHand(item ledger.InventoryItem) ledger.OnHand {
	f.t.Helper()
	o, err := f.svc.OnHand(f.ctx, owner, item.ID)
	require.NoError(f.t, err)
	return o
}

func (f *fixture) ctp(batch ledger.PlantBatch) decimal.Decimal {
	f.t.Helper()
	b, err := f.svc.GetBatch(f.ctx, owner, batch.ID)
	require.NoError(f.t, err)
	return b.CTPTotal
}

func (f *fixture) diary(batch ledger.PlantBatch) []ledger.DiaryEntry {
	f.t.Helper()
	entries, err := f.svc.ListDiary(f.ctx, owner, batch.ID)
	require.NoError(f.t, err)
	return entries
}

func (f *fixture) usages(batch ledger.PlantBatch) []ledger.UsageLine {
	f.t.Helper()
	lines, err := f.svc.ListUsage(f.ctx, owner, ledger.UsageFilter{BatchID: batch.ID})
	require.NoError(f.t, err)
	return lines
}

// =============================================================================
// 1. NON-NEGATIVE STOCK
// =============================================================================

func TestRecordUsage_RejectsOverdraw(t *testing.T) {
	// GIVEN: 10 units on hand
	f := newFixture(t)
	item := f.item("Perlite", "L")
	batch := f.batch("Tent A")
	f.lot(item, "10", "1")

	_, err := f.use(item, batch, "7")
	require.NoError(t, err)

	// WHEN: 4 more are requested
	result, err := f.use(item, batch, "4")

	// THEN: It is rejected with the shortfall and nothing is written
	var stock *ledger.InsufficientStockError
	require.ErrorAs(t, err, &stock)
	assert.True(t, stock.Available.Equal(dec("3")))
	assert.True(t, stock.Shortfall().Equal(dec("1")))
	assert.Equal(t, ledger.StateRolledBack, result.State)
	assert.True(t, f.onHand(item).Quantity.Equal(dec("3")))
	assert.Len(t, f.usages(batch), 1)
	assert.Len(t, f.diary(batch), 1)
}

func TestRecordUsage_ConcurrentConsumersNeverOverdraw(t *testing.T) {
	// GIVEN: 5 units and 12 concurrent requests for 1 unit each
	f := newFixture(t)
	item := f.item("Rockwool", "cube")
	batch := f.batch("Tent A")
	f.lot(item, "5", "")

	var ok, short atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordUsage(f.ctx, owner, ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: dec("1")})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ledger.ErrInsufficientStock):
				short.Add(1)
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly the stock on hand was consumed
	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(7), short.Load())
	assert.True(t, f.onHand(item).Quantity.IsZero())
}

func TestAllowNegativeStock(t *testing.T) {
	f := newFixture(t, func(o *ledger.Options) { o.AllowNegativeStock = true })
	item := f.item("Perlite", "L")
	batch := f.batch("Tent A")
	f.lot(item, "2", "")

	_, err := f.use(item, batch, "5")
	require.NoError(t, err)
	assert.True(t, f.onHand(item).Quantity.Equal(dec("-3")))
}

func TestLotChanges_CannotUncoverConsumedStock(t *testing.T) {
	// GIVEN: Two lots (10 + 5) and 12 units consumed
	f := newFixture(t)
	item := f.item("Coco", "L")
	batch := f.batch("Tent A")
	first := f.lot(item, "10", "")
	second := f.lot(item, "5", "")
	_, err := f.use(item, batch, "12")
	require.NoError(t, err)

	// WHEN: A lot is shrunk or deleted below what was consumed
	_, errShrink := f.svc.UpdateLot(f.ctx, owner, second.ID, ledger.LotInput{LotCode: "B", Quantity: dec("1")})
	errDelete := f.svc.DeleteLot(f.ctx, owner, first.ID)

	// THEN: Both are refused and the lots are unchanged
	assert.ErrorIs(t, errShrink, ledger.ErrInsufficientStock)
	assert.ErrorIs(t, errDelete, ledger.ErrInsufficientStock)
	lots, err := f.svc.ListLots(f.ctx, owner, item.ID)
	require.NoError(t, err)
	assert.Len(t, lots, 2)
	assert.True(t, f.onHand(item).Quantity.Equal(dec("3")))

	// Shrinking within the remaining stock is fine
	_, err = f.svc.UpdateLot(f.ctx, owner, second.ID, ledger.LotInput{LotCode: "B", Quantity: dec("2")})
	assert.NoError(t, err)
}

func TestValidationRejectsBeforeWriting(t *testing.T) {
	f := newFixture(t)
	item := f.item("Perlite", "L")
	batch := f.batch("Tent A")
	f.lot(item, "10", "")

	tests := []struct {
		name  string
		in    ledger.UsageInput
		field string
	}{
		{"zero quantity", ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: decimal.Zero}, "quantity"},
		{"negative quantity", ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: dec("-1")}, "quantity"},
		{"no item", ledger.UsageInput{BatchID: batch.ID, Quantity: dec("1")}, "item_id"},
		{"no batch", ledger.UsageInput{ItemID: item.ID, Quantity: dec("1")}, "batch_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordUsage(f.ctx, owner, tt.in)
			var v *ledger.ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.field, v.Field)
		})
	}
	assert.Empty(t, f.usages(batch))

	_, err := f.svc.ReceiveLot(f.ctx, owner, item.ID, ledger.LotInput{LotCode: "X", Quantity: dec("0.0000001")})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestOwnershipIsEnforced(t *testing.T) {
	f := newFixture(t)
	item := f.item("Perlite", "L")
	batch := f.batch("Tent A")
	f.lot(item, "10", "")

	_, err := f.svc.RecordUsage(f.ctx, "grower-2", ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	_, err = f.svc.OnHand(f.ctx, "grower-2", item.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// 2. PERSISTENT ITEMS
// =============================================================================

func TestPersistentItem_UnboundedWithoutLots(t *testing.T) {
	// GIVEN: A persistent item priced per unit
	f := newFixture(t)
	water, err := f.svc.CreateItem(f.ctx, owner, ledger.ItemInput{
		Name: "RO Water", Unit: "gal", IsPersistent: true, UnitCost: costOf("0.05"),
	})
	require.NoError(t, err)
	batch := f.batch("Tent A")

	// WHEN: Any quantity is used
	result, err := f.use(water, batch, "1000000")

	// THEN: It succeeds, stock stays unbounded, cost uses the item price
	require.NoError(t, err)
	assert.True(t, f.onHand(water).Unbounded)
	assert.Equal(t, "unbounded", f.onHand(water).String())
	assert.True(t, result.CTPTotal.Equal(dec("50000")))

	// AND: Lot operations are refused
	_, err = f.svc.ReceiveLot(f.ctx, owner, water.ID, ledger.LotInput{LotCode: "W", Quantity: dec("1")})
	assert.ErrorIs(t, err, ledger.ErrPersistentItem)
	lots, err := f.svc.ListLots(f.ctx, owner, water.ID)
	require.NoError(t, err)
	assert.Empty(t, lots)
}

func TestPersistentItem_ConversionRules(t *testing.T) {
	f := newFixture(t)
	item := f.item("Nutrient", "ml")
	f.lot(item, "100", "0.1")

	// Tracked item with lots cannot become persistent
	_, err := f.svc.UpdateItem(f.ctx, owner, item.ID, ledger.ItemInput{Name: "Nutrient", Unit: "ml", IsPersistent: true})
	assert.ErrorIs(t, err, ledger.ErrInUse)

	// Persistent item with usage cannot become tracked without covering stock
	water, err := f.svc.CreateItem(f.ctx, owner, ledger.ItemInput{Name: "Tap", Unit: "L", IsPersistent: true})
	require.NoError(t, err)
	batch := f.batch("Tent A")
	_, err = f.use(water, batch, "20")
	require.NoError(t, err)
	_, err = f.svc.UpdateItem(f.ctx, owner, water.ID, ledger.ItemInput{Name: "Tap", Unit: "L"})
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestEnsureWaterItem(t *testing.T) {
	// GIVEN: A profile with a water price
	f := newFixture(t)
	_, err := f.svc.UpdateProfile(f.ctx, owner, ledger.ProfileInput{WaterCostPerUnit: costOf("0.01")})
	require.NoError(t, err)

	// WHEN: The water item is ensured twice
	first, err := f.svc.EnsureWaterItem(f.ctx, owner, nil)
	require.NoError(t, err)
	second, err := f.svc.EnsureWaterItem(f.ctx, owner, nil)
	require.NoError(t, err)

	// THEN: One persistent item exists, priced from the profile
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, ledger.WaterItemName, first.Name)
	assert.Equal(t, ledger.WaterItemUnit, first.Unit)
	assert.True(t, first.IsPersistent)
	assert.True(t, first.UnitCost.Decimal.Equal(dec("0.01")))

	// AND: An explicit price wins and reprices batches that used water
	batch := f.batch("Tent A")
	_, err = f.use(first, batch, "100")
	require.NoError(t, err)
	assert.True(t, f.ctp(batch).Equal(dec("1")))

	price := dec("0.02")
	repriced, err := f.svc.EnsureWaterItem(f.ctx, owner, &price)
	require.NoError(t, err)
	assert.True(t, repriced.UnitCost.Decimal.Equal(dec("0.02")))
	assert.True(t, f.ctp(batch).Equal(dec("2")))

	// AND: A profile price change is pushed to the item
	_, err = f.svc.UpdateProfile(f.ctx, owner, ledger.ProfileInput{WaterCostPerUnit: costOf("0.03")})
	require.NoError(t, err)
	assert.True(t, f.ctp(batch).Equal(dec("3")))
}

func TestEnsureWaterItem_DropsDuplicates(t *testing.T) {
	// GIVEN: Two persistent items named Water, one already used
	f := newFixture(t)
	older, err := f.svc.CreateItem(f.ctx, owner, ledger.ItemInput{Name: "Water", Unit: "gal", IsPersistent: true})
	require.NoError(t, err)
	batch := f.batch("Tent A")
	_, err = f.use(older, batch, "3")
	require.NoError(t, err)

	later := ledger.NewService(f.faults, ledger.Options{Now: func() time.Time { return testNow.Add(time.Hour) }})
	newer, err := later.CreateItem(f.ctx, owner, ledger.ItemInput{Name: "Water", Unit: "gal", IsPersistent: true})
	require.NoError(t, err)

	// WHEN: The water item is ensured
	kept, err := f.svc.EnsureWaterItem(f.ctx, owner, nil)
	require.NoError(t, err)

	// THEN: The newest is kept; the used duplicate is renamed and keeps its supply
	assert.Equal(t, newer.ID, kept.ID)
	renamed, err := f.svc.GetItem(f.ctx, owner, older.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.WaterDuplicateName, renamed.Name)
	assert.True(t, renamed.IsPersistent)
	assert.True(t, f.onHand(renamed).Unbounded)
	assert.Len(t, f.usages(batch), 1)

	// THEN: Ensuring again finds a single Water item and changes nothing
	again, err := f.svc.EnsureWaterItem(f.ctx, owner, nil)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, again.ID)
	still, err := f.svc.GetItem(f.ctx, owner, older.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.WaterDuplicateName, still.Name)
}

func TestEnsureWaterItem_DeletesUnusedDuplicates(t *testing.T) {
	// GIVEN: Two unused persistent items named Water
	f := newFixture(t)
	older, err := f.svc.CreateItem(f.ctx, owner, ledger.ItemInput{Name: "Water", Unit: "gal", IsPersistent: true})
	require.NoError(t, err)
	later := ledger.NewService(f.faults, ledger.Options{Now: func() time.Time { return testNow.Add(time.Hour) }})
	newer, err := later.CreateItem(f.ctx, owner, ledger.ItemInput{Name: "Water", Unit: "gal", IsPersistent: true})
	require.NoError(t, err)

	// WHEN: The water item is ensured
	kept, err := f.svc.EnsureWaterItem(f.ctx, owner, nil)
	require.NoError(t, err)

	// THEN: Only the newest remains
	assert.Equal(t, newer.ID, kept.ID)
	_, err = f.svc.GetItem(f.ctx, owner, older.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

// =============================================================================
// 3. COST RECOMPUTE
// =============================================================================

func TestRecomputeCost_IsIdempotent(t *testing.T) {
	// GIVEN: Usage of two items and an explicit cost
	f := newFixture(t)
	a := f.item("Bloom A", "ml")
	b := f.item("Bloom B", "ml")
	f.lot(a, "100", "0.10")
	f.lot(a, "300", "0.30")
	f.lot(b, "1000", "0.003")
	batch := f.batch("Tent A")
	_, err := f.use(a, batch, "10")
	require.NoError(t, err)
	_, err = f.use(b, batch, "333")
	require.NoError(t, err)
	_, err = f.svc.AddCost(f.ctx, owner, batch.ID, ledger.CostInput{CostType: "seeds", Amount: dec("4.5")})
	require.NoError(t, err)

	// WHEN: Recompute runs twice
	first, err := f.svc.RecomputeCost(f.ctx, owner, batch.ID)
	require.NoError(t, err)
	second, err := f.svc.RecomputeCost(f.ctx, owner, batch.ID)
	require.NoError(t, err)

	// THEN: Both equal the sum of sources: 10*0.25 + 333*0.003 + 4.5 = 7.999 -> 8.00
	assert.True(t, first.Equal(second))
	assert.Equal(t, "8.00", first.StringFixed(2))
	assert.True(t, f.ctp(batch).Equal(first))
}

func TestCostChanges_TriggerRecompute(t *testing.T) {
	f := newFixture(t)
	item := f.item("Silica", "ml")
	lot := f.lot(item, "100", "0.10")
	batch := f.batch("Tent A")
	_, err := f.use(item, batch, "10")
	require.NoError(t, err)
	require.True(t, f.ctp(batch).Equal(dec("1")))

	_, err = f.svc.UpdateLot(f.ctx, owner, lot.ID, ledger.LotInput{LotCode: lot.LotCode, Quantity: dec("100"), UnitCost: costOf("0.20")})
	require.NoError(t, err)
	assert.True(t, f.ctp(batch).Equal(dec("2")))

	cost, err := f.svc.AddCost(f.ctx, owner, batch.ID, ledger.CostInput{CostType: "power", Amount: dec("3")})
	require.NoError(t, err)
	assert.True(t, f.ctp(batch).Equal(dec("5")))

	require.NoError(t, f.svc.DeleteCost(f.ctx, owner, cost.ID))
	require.NoError(t, f.svc.DeleteCost(f.ctx, owner, cost.ID))
	assert.True(t, f.ctp(batch).Equal(dec("2")))
}

func TestReceiveLot_RepricesPastUsage(t *testing.T) {
	// GIVEN: 10 ml used from a lot priced 0.10
	f := newFixture(t)
	item := f.item("Silica", "ml")
	f.lot(item, "100", "0.10")
	batch := f.batch("Tent A")
	_, err := f.use(item, batch, "10")
	require.NoError(t, err)
	require.Equal(t, "1.00", f.ctp(batch).StringFixed(2))

	// WHEN: A second lot arrives at 0.30
	f.lot(item, "100", "0.30")

	// THEN: The earlier usage is costed at the new average, (10 + 30) / 200 = 0.20
	assert.Equal(t, "2.00", f.ctp(batch).StringFixed(2))
}

// =============================================================================
// 4. USAGE -> DIARY LINK
// =============================================================================

func TestRecordUsage_LinksExactlyOneDiaryEntry(t *testing.T) {
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")

	result, err := f.svc.RecordUsage(f.ctx, owner, ledger.UsageInput{
		ItemID: item.ID, BatchID: batch.ID, Quantity: dec("5"), Note: "  top dress  ",
	})
	require.NoError(t, err)
	require.NotNil(t, result.Diary)
	assert.Equal(t, "Applied 5 mL of CalMag\n\ntop dress", result.Diary.Note)

	// Retrying the link returns the same entry
	again, err := f.svc.RetryDiaryLink(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Diary.ID, again.ID)

	entries := f.diary(batch)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].UsageLinkID)
	assert.Equal(t, result.Usage.ID, *entries[0].UsageLinkID)

	// Generated entries cannot be deleted on their own
	err = f.svc.DeleteDiaryEntry(f.ctx, owner, entries[0].ID)
	assert.ErrorIs(t, err, ledger.ErrInUse)
}

func TestManualDiaryEntries(t *testing.T) {
	f := newFixture(t)
	batch := f.batch("Tent A")

	_, err := f.svc.AddDiaryEntry(f.ctx, owner, batch.ID, ledger.DiaryInput{Note: "   "})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	entry, err := f.svc.AddDiaryEntry(f.ctx, owner, batch.ID, ledger.DiaryInput{Note: "flipped to 12/12"})
	require.NoError(t, err)
	assert.Equal(t, ledger.DateOf(testNow), entry.EntryDate)
	assert.Nil(t, entry.UsageLinkID)

	require.NoError(t, f.svc.DeleteDiaryEntry(f.ctx, owner, entry.ID))
	require.NoError(t, f.svc.DeleteDiaryEntry(f.ctx, owner, entry.ID))
	assert.Empty(t, f.diary(batch))
}

// =============================================================================
// 5. DELETE IDEMPOTENCY
// =============================================================================

func TestDeleteUsage_IsIdempotent(t *testing.T) {
	// GIVEN: A recorded usage
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	result, err := f.use(item, batch, "50")
	require.NoError(t, err)

	// WHEN: It is deleted twice
	first, err := f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)
	second, err := f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)

	// THEN: The first removes usage and diary, the second is a no-op
	assert.True(t, first.Deleted)
	assert.True(t, first.DiaryRemoved)
	assert.True(t, first.CTPTotal.IsZero())
	assert.False(t, second.Deleted)
	assert.False(t, second.DiaryRemoved)
	assert.Empty(t, f.usages(batch))
	assert.Empty(t, f.diary(batch))
	assert.True(t, f.onHand(item).Quantity.Equal(dec("500")))
}

func TestDeleteUsage_DiaryCleanupIsBestEffort(t *testing.T) {
	// GIVEN: A usage whose diary entry cannot be deleted right now
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	result, err := f.use(item, batch, "50")
	require.NoError(t, err)
	f.faults.set(func(s *faultStore) { s.failDiaryDelete = true })

	// WHEN: The usage is deleted
	deleted, err := f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)

	// THEN: The delete succeeds, flags the cleanup, and still recomputes
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.True(t, deleted.DiaryCleanupFailed)
	assert.True(t, f.ctp(batch).IsZero())
	assert.Len(t, f.diary(batch), 1)

	// AND: Deleting again finishes the cleanup
	f.faults.set(func(s *faultStore) { s.failDiaryDelete = false })
	retry, err := f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)
	assert.False(t, retry.Deleted)
	assert.True(t, retry.DiaryRemoved)
	assert.Empty(t, f.diary(batch))
}

// =============================================================================
// 6. PARTIAL FAILURE
// =============================================================================

func TestRecordUsage_DiaryFailureIsPartial(t *testing.T) {
	// GIVEN: Diary inserts fail
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	f.faults.set(func(s *faultStore) { s.failDiaryInsert = true })

	// WHEN: Usage is recorded
	result, err := f.use(item, batch, "50")

	// THEN: The operation reports a partial failure, not success or rollback
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrPartialFailure)
	assert.ErrorIs(t, err, errInjected)
	var pf *ledger.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.Failed(ledger.StepLinkDiary))
	assert.False(t, pf.Failed(ledger.StepRecomputeCost))
	assert.Equal(t, result.Usage.ID, pf.UsageID)
	assert.Equal(t, ledger.StatePartialFailure, result.State)
	assert.Nil(t, result.Diary)
	assert.Equal(t, 1, f.rec.states[ledger.StatePartialFailure])

	// AND: The usage is retrievable and the cost was still recomputed
	require.Len(t, f.usages(batch), 1)
	assert.True(t, f.ctp(batch).Equal(dec("1")))
	assert.Empty(t, f.diary(batch))

	// AND: The diary step can be retried alone
	f.faults.set(func(s *faultStore) { s.failDiaryInsert = false })
	entry, err := f.svc.RetryDiaryLink(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)
	assert.Equal(t, "Applied 50 mL of CalMag", entry.Note)
	assert.Len(t, f.diary(batch), 1)
}

func TestRecordUsage_RecomputeFailureIsPartial(t *testing.T) {
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	f.faults.set(func(s *faultStore) { s.failSetCTP = true })

	result, err := f.use(item, batch, "50")

	var pf *ledger.PartialFailureError
	require.ErrorAs(t, err, &pf)
	assert.True(t, pf.Failed(ledger.StepRecomputeCost))
	assert.NotNil(t, result.Diary)
	assert.True(t, f.ctp(batch).IsZero())

	f.faults.set(func(s *faultStore) { s.failSetCTP = false })
	total, err := f.svc.RecomputeCost(f.ctx, owner, batch.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("1")))
}

func TestRecordUsage_CancelledBeforeCommit(t *testing.T) {
	// GIVEN: A caller whose context is already cancelled
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// WHEN: Usage is recorded
	result, err := f.svc.RecordUsage(ctx, owner, ledger.UsageInput{ItemID: item.ID, BatchID: batch.ID, Quantity: dec("1")})

	// THEN: Nothing was committed
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ledger.StateRolledBack, result.State)
	assert.Empty(t, f.usages(batch))
}

// =============================================================================
// 7. CONFLICT RETRIES
// =============================================================================

func TestConflictsAreRetried(t *testing.T) {
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")

	f.faults.set(func(s *faultStore) { s.conflicts = 2 })
	_, err := f.use(item, batch, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, f.rec.retries)

	f.faults.set(func(s *faultStore) { s.conflicts = 3 })
	result, err := f.use(item, batch, "1")
	assert.ErrorIs(t, err, ledger.ErrConflict)
	assert.Equal(t, ledger.StateRolledBack, result.State)
	assert.Len(t, f.usages(batch), 1)
}

// =============================================================================
// 8. CALMAG WALKTHROUGH
// =============================================================================

func TestCalMagScenario(t *testing.T) {
	// GIVEN: CalMag (mL, tracked) with one 500 mL lot at 0.02/mL
	f := newFixture(t)
	calmag := f.item("CalMag", "mL")
	f.lot(calmag, "500", "0.02")
	batchX := f.batch("Batch X")
	usedAt := time.Date(2026, time.March, 8, 22, 15, 0, 0, time.UTC)

	// WHEN: 50 mL is applied at usedAt
	result, err := f.svc.RecordUsage(f.ctx, owner, ledger.UsageInput{
		ItemID: calmag.ID, BatchID: batchX.ID, Quantity: dec("50"), UsedAt: &usedAt,
	})
	require.NoError(t, err)

	// THEN: 450 mL remain, the diary says so on usedAt's date, CTP is 1.00
	assert.Equal(t, ledger.StateCommitted, result.State)
	assert.True(t, f.onHand(calmag).Quantity.Equal(dec("450")))
	assert.Equal(t, "450 mL", f.onHand(calmag).String())
	require.NotNil(t, result.Diary)
	assert.Equal(t, "Applied 50 mL of CalMag", result.Diary.Note)
	assert.Equal(t, ledger.DateOf(usedAt), result.Diary.EntryDate)
	assert.True(t, f.ctp(batchX).Equal(dec("1.00")))

	// WHEN: 1000 mL is requested
	_, err = f.use(calmag, batchX, "1000")

	// THEN: It is rejected
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)

	// WHEN: The first usage is deleted
	_, err = f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)

	// THEN: Stock and CTP are restored
	assert.True(t, f.onHand(calmag).Quantity.Equal(dec("500")))
	assert.True(t, f.ctp(batchX).IsZero())
}

// =============================================================================
// CATALOG
// =============================================================================

func TestDeleteItemAndBatch_InUse(t *testing.T) {
	f := newFixture(t)
	item := f.item("CalMag", "mL")
	f.lot(item, "500", "0.02")
	batch := f.batch("Tent A")
	result, err := f.use(item, batch, "5")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.DeleteItem(f.ctx, owner, item.ID), ledger.ErrInUse)
	assert.ErrorIs(t, f.svc.DeleteBatch(f.ctx, owner, batch.ID), ledger.ErrInUse)

	_, err = f.svc.DeleteUsage(f.ctx, owner, result.Usage.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteItem(f.ctx, owner, item.ID))
	require.NoError(t, f.svc.DeleteBatch(f.ctx, owner, batch.ID))

	_, err = f.svc.GetItem(f.ctx, owner, item.ID)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestRecordHarvest(t *testing.T) {
	f := newFixture(t)
	batch := f.batch("Tent A")
	assert.Equal(t, ledger.StageSeedling, batch.Stage)

	_, err := f.svc.RecordHarvest(f.ctx, owner, batch.ID, ledger.HarvestInput{YieldBud: costOf("10")})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	harvestedAt := time.Date(2026, time.June, 1, 18, 0, 0, 0, time.UTC)
	got, err := f.svc.RecordHarvest(f.ctx, owner, batch.ID, ledger.HarvestInput{
		HarvestedAt: &harvestedAt, YieldBud: costOf("112.5"), YieldTrim: costOf("40"),
	})
	require.NoError(t, err)
	assert.True(t, got.Harvested())
	assert.Equal(t, ledger.DateOf(harvestedAt), *got.HarvestedAt)

	_, err = f.svc.RecordHarvest(f.ctx, owner, batch.ID, ledger.HarvestInput{
		HarvestedAt: &harvestedAt, YieldBud: costOf("-1"),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}
