/*
Package storetest is a behavior suite shared by every ledger.TxStore.

PURPOSE:
  The in-memory, SQLite and PostgreSQL stores must be interchangeable
  under the Service. Run exercises the contract documented on
  ledger.Store against a fresh store per subtest:

  - owner scoping (foreign records behave as missing)
  - ordering of every List method
  - decimal and date round-trips without precision loss
  - rollback when the transaction function fails
  - the single usage link per diary entry (ErrConflict)
  - idempotent deletes reporting whether a row was removed

USAGE:
  func TestStore(t *testing.T) {
      storetest.Run(t, func(t *testing.T) ledger.TxStore { return NewMemory() })
  }

SEE ALSO:
  - ledger/store.go: The contract
  - ledger/store/memory_test.go, store/sqlite, store/postgres: Callers
*/
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
)

const (
	Owner    = ledger.UserID("store-owner")
	Intruder = ledger.UserID("store-intruder")
)

// base is a whole-second instant so every driver stores it exactly.
var base = time.Date(2026, time.February, 1, 9, 0, 0, 0, time.UTC)

// Run executes the suite. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) ledger.TxStore) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ledger.TxStore)
	}{
		{"Items", testItems},
		{"Lots", testLots},
		{"Usage", testUsage},
		{"Batches", testBatches},
		{"Diary", testDiary},
		{"Costs", testCosts},
		{"Profiles", testProfiles},
		{"Rollback", testRollback},
		{"OwnerScoping", testOwnerScoping},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func day(d int) *time.Time {
	t := time.Date(2026, time.February, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func id[T ~string]() T { return T(uuid.NewString()) }

func tx(t *testing.T, s ledger.TxStore, fn func(ctx context.Context, st ledger.Store)) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), func(st ledger.Store) error {
		fn(context.Background(), st)
		return nil
	}))
}

func assertDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got)
}

func assertTime(t *testing.T, want, got time.Time) {
	t.Helper()
	assert.True(t, want.Equal(got), "want %s, got %s", want, got)
}

func newItem(name string, created time.Time) ledger.InventoryItem {
	return ledger.InventoryItem{
		ID:        id[ledger.ItemID](),
		OwnerID:   Owner,
		Name:      name,
		Unit:      "ml",
		Category:  "nutrient",
		UnitCost:  decimal.NullDecimal{},
		CreatedAt: created,
	}
}

func newBatch(name string, created time.Time) ledger.PlantBatch {
	return ledger.PlantBatch{
		ID:        id[ledger.BatchID](),
		OwnerID:   Owner,
		Name:      name,
		Stage:     ledger.StageVeg,
		CTPTotal:  decimal.Zero,
		CreatedAt: created,
	}
}

// seed inserts one item and one batch.
func seed(t *testing.T, s ledger.TxStore) (ledger.InventoryItem, ledger.PlantBatch) {
	t.Helper()
	item := newItem("CalMag", at(0))
	batch := newBatch("Tent A", at(0))
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertItem(ctx, item))
		require.NoError(t, st.InsertBatch(ctx, batch))
	})
	return item, batch
}

// =============================================================================
// TESTS
// =============================================================================

func testItems(t *testing.T, s ledger.TxStore) {
	// GIVEN: items inserted out of name order, two sharing a name
	zinc := newItem("zinc", at(0))
	calmag := newItem("CalMag", at(1))
	water := newItem("Water", at(2))
	water.IsPersistent = true
	water.Unit = "L"
	water.UnitCost = decimal.NewNullDecimal(dec("0.0035"))
	newerWater := newItem("Water", at(3))
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		for _, it := range []ledger.InventoryItem{zinc, calmag, water, newerWater} {
			require.NoError(t, st.InsertItem(ctx, it))
		}
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: fields round-trip
		got, err := st.GetItem(ctx, Owner, water.ID)
		require.NoError(t, err)
		assert.Equal(t, "Water", got.Name)
		assert.Equal(t, "L", got.Unit)
		assert.True(t, got.IsPersistent)
		require.True(t, got.UnitCost.Valid)
		assertDec(t, "0.0035", got.UnitCost.Decimal)
		assertTime(t, water.CreatedAt, got.CreatedAt)

		// THEN: list is ordered by name, case-insensitively
		items, err := st.ListItems(ctx, Owner)
		require.NoError(t, err)
		require.Len(t, items, 4)
		assert.Equal(t, "CalMag", items[0].Name)
		assert.Equal(t, "zinc", items[3].Name)

		// THEN: name lookup is exact and newest first
		byName, err := st.FindItemsByName(ctx, Owner, "Water")
		require.NoError(t, err)
		require.Len(t, byName, 2)
		assert.Equal(t, newerWater.ID, byName[0].ID)
		none, err := st.FindItemsByName(ctx, Owner, "water")
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	// WHEN: an item is updated then deleted
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		calmag.Name = "CalMag Plus"
		calmag.UnitCost = decimal.NewNullDecimal(dec("0.04"))
		require.NoError(t, st.UpdateItem(ctx, calmag))
		got, err := st.GetItem(ctx, Owner, calmag.ID)
		require.NoError(t, err)
		assert.Equal(t, "CalMag Plus", got.Name)
		assertDec(t, "0.04", got.UnitCost.Decimal)

		require.NoError(t, st.DeleteItem(ctx, Owner, zinc.ID))
		_, err = st.GetItem(ctx, Owner, zinc.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		// THEN: writes to missing rows are ErrNotFound
		assert.ErrorIs(t, st.DeleteItem(ctx, Owner, zinc.ID), ledger.ErrNotFound)
		assert.ErrorIs(t, st.UpdateItem(ctx, zinc), ledger.ErrNotFound)
	})
}

func testLots(t *testing.T, s ledger.TxStore) {
	item, _ := seed(t, s)

	// GIVEN: lots with and without a received date and unit cost
	undated := ledger.Lot{ID: id[ledger.LotID](), ItemID: item.ID, OwnerID: Owner,
		Quantity: dec("0.000001"), CreatedAt: at(1)}
	late := ledger.Lot{ID: id[ledger.LotID](), ItemID: item.ID, OwnerID: Owner, LotCode: "B-2",
		Quantity: dec("250"), UnitCost: decimal.NewNullDecimal(dec("0.0375")), ReceivedAt: day(20), CreatedAt: at(2)}
	early := ledger.Lot{ID: id[ledger.LotID](), ItemID: item.ID, OwnerID: Owner, LotCode: "B-1",
		Quantity: dec("500.125"), UnitCost: decimal.NewNullDecimal(dec("0.02")), ReceivedAt: day(3), CreatedAt: at(3)}
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		for _, l := range []ledger.Lot{undated, late, early} {
			require.NoError(t, st.InsertLot(ctx, l))
		}
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: received date first, undated last
		lots, err := st.ListLots(ctx, Owner, item.ID)
		require.NoError(t, err)
		require.Len(t, lots, 3)
		assert.Equal(t, []ledger.LotID{early.ID, late.ID, undated.ID},
			[]ledger.LotID{lots[0].ID, lots[1].ID, lots[2].ID})

		// THEN: decimals keep their exact value
		assertDec(t, "500.125", lots[0].Quantity)
		assertDec(t, "0.02", lots[0].UnitCost.Decimal)
		assertDec(t, "0.000001", lots[2].Quantity)
		assert.False(t, lots[2].UnitCost.Valid)
		assert.Nil(t, lots[2].ReceivedAt)
		require.NotNil(t, lots[0].ReceivedAt)
		assertTime(t, *day(3), *lots[0].ReceivedAt)
		assert.Equal(t, "B-1", lots[0].LotCode)
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// WHEN: a lot is edited
		late.Quantity = dec("300")
		late.UnitCost = decimal.NullDecimal{}
		require.NoError(t, st.UpdateLot(ctx, late))
		got, err := st.GetLot(ctx, Owner, late.ID)
		require.NoError(t, err)
		assertDec(t, "300", got.Quantity)
		assert.False(t, got.UnitCost.Valid)

		// WHEN: a lot is deleted
		require.NoError(t, st.DeleteLot(ctx, Owner, undated.ID))
		_, err = st.GetLot(ctx, Owner, undated.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		assert.ErrorIs(t, st.DeleteLot(ctx, Owner, undated.ID), ledger.ErrNotFound)
	})
}

func testUsage(t *testing.T, s ledger.TxStore) {
	item, batch := seed(t, s)
	other := newItem("Bloom", at(0))
	otherBatch := newBatch("Tent B", at(0))

	// GIVEN: usages on two items and two batches; two share a used_at
	u1 := ledger.UsageRecord{ID: id[ledger.UsageID](), ItemID: item.ID, BatchID: batch.ID, OwnerID: Owner,
		Quantity: dec("15.5"), Note: "first feed", UsedAt: at(10), CreatedAt: at(10)}
	u2 := ledger.UsageRecord{ID: id[ledger.UsageID](), ItemID: item.ID, BatchID: otherBatch.ID, OwnerID: Owner,
		Quantity: dec("5"), UsedAt: at(20), CreatedAt: at(20)}
	u3 := ledger.UsageRecord{ID: id[ledger.UsageID](), ItemID: other.ID, BatchID: batch.ID, OwnerID: Owner,
		Quantity: dec("2"), UsedAt: at(20), CreatedAt: at(21)}
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertItem(ctx, other))
		require.NoError(t, st.InsertBatch(ctx, otherBatch))
		for _, u := range []ledger.UsageRecord{u1, u2, u3} {
			require.NoError(t, st.InsertUsage(ctx, u))
		}
	})

	ids := func(us []ledger.UsageRecord) []ledger.UsageID {
		out := make([]ledger.UsageID, len(us))
		for i, u := range us {
			out[i] = u.ID
		}
		return out
	}

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: ordered newest used_at first, then newest created
		all, err := st.ListUsage(ctx, Owner, ledger.UsageFilter{})
		require.NoError(t, err)
		assert.Equal(t, []ledger.UsageID{u3.ID, u2.ID, u1.ID}, ids(all))

		byItem, err := st.ListUsage(ctx, Owner, ledger.UsageFilter{ItemID: item.ID})
		require.NoError(t, err)
		assert.Equal(t, []ledger.UsageID{u2.ID, u1.ID}, ids(byItem))

		byBatch, err := st.ListUsage(ctx, Owner, ledger.UsageFilter{BatchID: batch.ID})
		require.NoError(t, err)
		assert.Equal(t, []ledger.UsageID{u3.ID, u1.ID}, ids(byBatch))

		got, err := st.GetUsage(ctx, Owner, u1.ID)
		require.NoError(t, err)
		assertDec(t, "15.5", got.Quantity)
		assert.Equal(t, "first feed", got.Note)
		assertTime(t, u1.UsedAt, got.UsedAt)
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// WHEN: deleted twice
		deleted, err := st.DeleteUsage(ctx, Owner, u1.ID)
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = st.DeleteUsage(ctx, Owner, u1.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = st.GetUsage(ctx, Owner, u1.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
	})
}

func testBatches(t *testing.T, s ledger.TxStore) {
	older := newBatch("Tent A", at(0))
	newer := newBatch("Tent B", at(5))
	newer.StartDate = day(2)
	newer.Strain = "Northern Lights"
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertBatch(ctx, older))
		require.NoError(t, st.InsertBatch(ctx, newer))
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: newest first
		batches, err := st.ListBatches(ctx, Owner)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		assert.Equal(t, newer.ID, batches[0].ID)
		assert.Equal(t, "Northern Lights", batches[0].Strain)
		require.NotNil(t, batches[0].StartDate)
		assertTime(t, *day(2), *batches[0].StartDate)
		assert.Nil(t, batches[1].StartDate)
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// WHEN: CTP is set, then the batch is harvested via UpdateBatch
		require.NoError(t, st.SetBatchCTP(ctx, Owner, newer.ID, dec("13.35")))

		newer.Stage = ledger.StageDry
		newer.HarvestedAt = day(28)
		newer.YieldBud = decimal.NewNullDecimal(dec("112.5"))
		newer.YieldTrim = decimal.NewNullDecimal(dec("40"))
		newer.CTPTotal = decimal.Zero
		require.NoError(t, st.UpdateBatch(ctx, newer))

		// THEN: UpdateBatch leaves CTP alone
		got, err := st.GetBatch(ctx, Owner, newer.ID)
		require.NoError(t, err)
		assertDec(t, "13.35", got.CTPTotal)
		assert.Equal(t, ledger.StageDry, got.Stage)
		assert.True(t, got.Harvested())
		assertDec(t, "112.5", got.YieldBud.Decimal)
		assertDec(t, "40", got.YieldTrim.Decimal)

		require.NoError(t, st.DeleteBatch(ctx, Owner, older.ID))
		_, err = st.GetBatch(ctx, Owner, older.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		assert.ErrorIs(t, st.SetBatchCTP(ctx, Owner, older.ID, decimal.Zero), ledger.ErrNotFound)
	})
}

func testDiary(t *testing.T, s ledger.TxStore) {
	item, batch := seed(t, s)
	usage := ledger.UsageRecord{ID: id[ledger.UsageID](), ItemID: item.ID, BatchID: batch.ID, OwnerID: Owner,
		Quantity: dec("10"), UsedAt: at(10), CreatedAt: at(10)}
	link := usage.ID

	// GIVEN: one linked entry and two manual ones on different dates
	linked := ledger.DiaryEntry{ID: id[ledger.DiaryEntryID](), BatchID: batch.ID, OwnerID: Owner,
		Note: "Used 10 ml of CalMag", EntryDate: *day(10), UsageLinkID: &link, CreatedAt: at(10)}
	older := ledger.DiaryEntry{ID: id[ledger.DiaryEntryID](), BatchID: batch.ID, OwnerID: Owner,
		Note: "topped", EntryDate: *day(4), CreatedAt: at(11)}
	sameDay := ledger.DiaryEntry{ID: id[ledger.DiaryEntryID](), BatchID: batch.ID, OwnerID: Owner,
		Note: "pH 6.2", EntryDate: *day(10), CreatedAt: at(12)}
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertUsage(ctx, usage))
		for _, e := range []ledger.DiaryEntry{linked, older, sameDay} {
			require.NoError(t, st.InsertDiaryEntry(ctx, e))
		}
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		entries, err := st.ListDiaryEntries(ctx, Owner, batch.ID)
		require.NoError(t, err)
		require.Len(t, entries, 3)
		assert.Equal(t, []ledger.DiaryEntryID{sameDay.ID, linked.ID, older.ID},
			[]ledger.DiaryEntryID{entries[0].ID, entries[1].ID, entries[2].ID})

		found, err := st.FindDiaryEntryByUsage(ctx, Owner, usage.ID)
		require.NoError(t, err)
		assert.Equal(t, linked.ID, found.ID)
		require.NotNil(t, found.UsageLinkID)
		assert.Equal(t, usage.ID, *found.UsageLinkID)
		assertTime(t, *day(10), found.EntryDate)

		got, err := st.GetDiaryEntry(ctx, Owner, older.ID)
		require.NoError(t, err)
		assert.Nil(t, got.UsageLinkID)
	})

	// WHEN: a second entry links the same usage
	dup := ledger.DiaryEntry{ID: id[ledger.DiaryEntryID](), BatchID: batch.ID, OwnerID: Owner,
		Note: "again", EntryDate: *day(10), UsageLinkID: &link, CreatedAt: at(13)}
	err := s.WithTx(context.Background(), func(st ledger.Store) error {
		return st.InsertDiaryEntry(context.Background(), dup)
	})
	// THEN: the store refuses it
	assert.ErrorIs(t, err, ledger.ErrConflict)

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		deleted, err := st.DeleteDiaryEntry(ctx, Owner, linked.ID)
		require.NoError(t, err)
		assert.True(t, deleted)
		deleted, err = st.DeleteDiaryEntry(ctx, Owner, linked.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		_, err = st.FindDiaryEntryByUsage(ctx, Owner, usage.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		require.NoError(t, st.DeleteDiaryEntriesByBatch(ctx, Owner, batch.ID))
		entries, err := st.ListDiaryEntries(ctx, Owner, batch.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func testCosts(t *testing.T, s ledger.TxStore) {
	_, batch := seed(t, s)
	seeds := ledger.CostEntry{ID: id[ledger.CostEntryID](), BatchID: batch.ID, OwnerID: Owner,
		CostType: "seeds", Description: "5 pack", Amount: dec("12.50"), CreatedAt: at(1)}
	power := ledger.CostEntry{ID: id[ledger.CostEntryID](), BatchID: batch.ID, OwnerID: Owner,
		CostType: "electricity", Amount: dec("0.333"), CreatedAt: at(2)}
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertCostEntry(ctx, power))
		require.NoError(t, st.InsertCostEntry(ctx, seeds))
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: oldest first, amounts exact
		costs, err := st.ListCostEntries(ctx, Owner, batch.ID)
		require.NoError(t, err)
		require.Len(t, costs, 2)
		assert.Equal(t, seeds.ID, costs[0].ID)
		assertDec(t, "12.50", costs[0].Amount)
		assert.Equal(t, "5 pack", costs[0].Description)
		assertDec(t, "0.333", costs[1].Amount)

		deleted, err := st.DeleteCostEntry(ctx, Owner, seeds.ID)
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = st.GetCostEntry(ctx, Owner, seeds.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		deleted, err = st.DeleteCostEntry(ctx, Owner, seeds.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func testProfiles(t *testing.T, s ledger.TxStore) {
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: an unsaved profile is the default
		p, err := st.GetProfile(ctx, Owner)
		require.NoError(t, err)
		assert.Equal(t, ledger.DefaultProfile(Owner).UnitSystem, p.UnitSystem)
		assert.Equal(t, ledger.Celsius, p.TemperatureUnit)
		assert.False(t, p.WaterCostPerUnit.Valid)

		// WHEN: saved twice
		p.WaterCostPerUnit = decimal.NewNullDecimal(dec("0.002"))
		p.UpdatedAt = at(1)
		require.NoError(t, st.UpsertProfile(ctx, p))
		p.UnitSystem = ledger.UnitSystemImperial
		p.TemperatureUnit = ledger.Fahrenheit
		p.ElectricityCostPerKWh = decimal.NewNullDecimal(dec("0.31"))
		p.UpdatedAt = at(2)
		require.NoError(t, st.UpsertProfile(ctx, p))

		// THEN: the last write wins
		got, err := st.GetProfile(ctx, Owner)
		require.NoError(t, err)
		assert.Equal(t, ledger.UnitSystemImperial, got.UnitSystem)
		assert.Equal(t, ledger.Fahrenheit, got.TemperatureUnit)
		assertDec(t, "0.002", got.WaterCostPerUnit.Decimal)
		assertDec(t, "0.31", got.ElectricityCostPerKWh.Decimal)
		assertTime(t, at(2), got.UpdatedAt)
	})
}

func testRollback(t *testing.T, s ledger.TxStore) {
	item, batch := seed(t, s)
	boom := errors.New("boom")

	// WHEN: the transaction function fails after writing
	err := s.WithTx(context.Background(), func(st ledger.Store) error {
		ctx := context.Background()
		require.NoError(t, st.SetBatchCTP(ctx, Owner, batch.ID, dec("99")))
		require.NoError(t, st.InsertLot(ctx, ledger.Lot{ID: id[ledger.LotID](), ItemID: item.ID, OwnerID: Owner,
			Quantity: dec("1"), CreatedAt: at(1)}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: nothing was kept
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		got, err := st.GetBatch(ctx, Owner, batch.ID)
		require.NoError(t, err)
		assert.True(t, got.CTPTotal.IsZero())
		lots, err := st.ListLots(ctx, Owner, item.ID)
		require.NoError(t, err)
		assert.Empty(t, lots)
	})
}

func testOwnerScoping(t *testing.T, s ledger.TxStore) {
	item, batch := seed(t, s)
	usage := ledger.UsageRecord{ID: id[ledger.UsageID](), ItemID: item.ID, BatchID: batch.ID, OwnerID: Owner,
		Quantity: dec("1"), UsedAt: at(1), CreatedAt: at(1)}
	tx(t, s, func(ctx context.Context, st ledger.Store) {
		require.NoError(t, st.InsertUsage(ctx, usage))
	})

	tx(t, s, func(ctx context.Context, st ledger.Store) {
		// THEN: another owner sees nothing and changes nothing
		_, err := st.GetItem(ctx, Intruder, item.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		_, err = st.GetBatch(ctx, Intruder, batch.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)
		_, err = st.GetUsage(ctx, Intruder, usage.ID)
		assert.ErrorIs(t, err, ledger.ErrNotFound)

		items, err := st.ListItems(ctx, Intruder)
		require.NoError(t, err)
		assert.Empty(t, items)
		usages, err := st.ListUsage(ctx, Intruder, ledger.UsageFilter{ItemID: item.ID})
		require.NoError(t, err)
		assert.Empty(t, usages)

		deleted, err := st.DeleteUsage(ctx, Intruder, usage.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
		assert.ErrorIs(t, st.SetBatchCTP(ctx, Intruder, batch.ID, dec("5")), ledger.ErrNotFound)

		stolen := item
		stolen.OwnerID = Intruder
		stolen.Name = "mine now"
		assert.ErrorIs(t, st.UpdateItem(ctx, stolen), ledger.ErrNotFound)

		// THEN: the owner's rows are untouched
		got, err := st.GetItem(ctx, Owner, item.ID)
		require.NoError(t, err)
		assert.Equal(t, "CalMag", got.Name)
		_, err = st.GetUsage(ctx, Owner, usage.ID)
		assert.NoError(t, err)
	})
}
