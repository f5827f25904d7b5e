/*
catalog.go - CRUD operations over items, lots, batches, costs and diary

PURPOSE:
  The record-keeping operations that surround usage. Each runs in one
  store transaction; writes that change attributable cost recompute
  every affected batch after the transaction commits.

RECOMPUTE TRIGGERS:
  - Lot receive/update/delete: every batch that used the item
  - Item unit cost or persistence change: every batch that used the item
  - Cost entry add/delete: the entry's batch

  A recompute failure after commit is reported as PartialFailureError.
  The record write stands; POST /api/batches/{id}/recompute fixes up.

REFERENTIAL RULES:
  - An item with usage cannot be deleted; its lots go with it otherwise
  - A batch with usage or cost entries cannot be deleted (ErrInUse);
    its manual diary entries are deleted with it
  - Lot edits may not drive tracked stock below zero unless negative
    stock is allowed

SEE ALSO:
  - service.go: Usage operations and recompute
  - water.go: EnsureWaterItem
*/
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ITEMS
// =============================================================================

// ItemInput holds the editable fields of an inventory item.
type ItemInput struct {
	Name         string
	Unit         string
	Category     string
	IsPersistent bool
	UnitCost     decimal.NullDecimal
}

func (in ItemInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if strings.TrimSpace(in.Unit) == "" {
		return &ValidationError{Field: "unit", Message: "required"}
	}
	return nonNegative("unit_cost", in.UnitCost)
}

func (in ItemInput) apply(item *InventoryItem) {
	item.Name = strings.TrimSpace(in.Name)
	item.Unit = strings.TrimSpace(in.Unit)
	item.Category = strings.TrimSpace(in.Category)
	item.IsPersistent = in.IsPersistent
	item.UnitCost = in.UnitCost
}

// CreateItem adds an inventory item.
func (s *Service) CreateItem(ctx context.Context, owner UserID, in ItemInput) (InventoryItem, error) {
	if err := in.Validate(); err != nil {
		return InventoryItem{}, err
	}
	item := InventoryItem{ID: newID[ItemID](), OwnerID: owner, CreatedAt: s.now().UTC()}
	in.apply(&item)
	err := s.tx(ctx, "create_item", func(tx Store) error {
		return tx.InsertItem(ctx, item)
	})
	if err != nil {
		return InventoryItem{}, err
	}
	return item, nil
}

func (s *Service) GetItem(ctx context.Context, owner UserID, id ItemID) (InventoryItem, error) {
	var item InventoryItem
	err := s.tx(ctx, "get_item", func(tx Store) error {
		var err error
		item, err = tx.GetItem(ctx, owner, id)
		return err
	})
	return item, err
}

func (s *Service) ListItems(ctx context.Context, owner UserID) ([]InventoryItem, error) {
	var items []InventoryItem
	err := s.tx(ctx, "list_items", func(tx Store) error {
		var err error
		items, err = tx.ListItems(ctx, owner)
		return err
	})
	return items, err
}

// UpdateItem replaces the editable fields of an item. Changing its price or
// persistence recomputes every batch that used it.
func (s *Service) UpdateItem(ctx context.Context, owner UserID, id ItemID, in ItemInput) (InventoryItem, error) {
	if err := in.Validate(); err != nil {
		return InventoryItem{}, err
	}
	var (
		item    InventoryItem
		batches []BatchID
	)
	err := s.tx(ctx, "update_item", func(tx Store) error {
		current, err := tx.GetItem(ctx, owner, id)
		if err != nil {
			return err
		}
		item = current
		in.apply(&item)

		if item.IsPersistent && !current.IsPersistent {
			lots, err := tx.ListLots(ctx, owner, id)
			if err != nil {
				return err
			}
			if len(lots) > 0 {
				return fmt.Errorf("item %s has %d lots: %w", id, len(lots), ErrInUse)
			}
		}
		if !item.IsPersistent && current.IsPersistent {
			// Existing usage must be covered once the item is tracked.
			if err := s.Quantity.Check(ctx, tx, item, decimal.Zero); err != nil {
				return err
			}
		}
		if err := tx.UpdateItem(ctx, item); err != nil {
			return err
		}
		if costChanged(current, item) {
			batches, err = batchesUsing(ctx, tx, owner, id)
		}
		return err
	})
	if err != nil {
		return InventoryItem{}, err
	}
	return item, s.recomputeAll(ctx, owner, "update_item", batches)
}

func costChanged(before, after InventoryItem) bool {
	if before.IsPersistent != after.IsPersistent || before.UnitCost.Valid != after.UnitCost.Valid {
		return true
	}
	return before.UnitCost.Valid && !before.UnitCost.Decimal.Equal(after.UnitCost.Decimal)
}

// DeleteItem removes an item and its lots. Items with usage are kept.
func (s *Service) DeleteItem(ctx context.Context, owner UserID, id ItemID) error {
	return s.tx(ctx, "delete_item", func(tx Store) error {
		if _, err := tx.GetItem(ctx, owner, id); err != nil {
			return err
		}
		usages, err := tx.ListUsage(ctx, owner, UsageFilter{ItemID: id})
		if err != nil {
			return err
		}
		if len(usages) > 0 {
			return fmt.Errorf("item %s has %d usage records: %w", id, len(usages), ErrInUse)
		}
		lots, err := tx.ListLots(ctx, owner, id)
		if err != nil {
			return err
		}
		for _, l := range lots {
			if err := tx.DeleteLot(ctx, owner, l.ID); err != nil {
				return err
			}
		}
		return tx.DeleteItem(ctx, owner, id)
	})
}

// =============================================================================
// LOTS
// =============================================================================

// LotInput holds the editable fields of a lot.
type LotInput struct {
	LotCode    string
	Quantity   decimal.Decimal
	UnitCost   decimal.NullDecimal
	ReceivedAt *time.Time
}

func (in LotInput) Validate() error {
	if strings.TrimSpace(in.LotCode) == "" {
		return &ValidationError{Field: "lot_code", Message: "required"}
	}
	if in.Quantity.LessThan(MinLotQuantity) {
		return &ValidationError{Field: "quantity", Message: fmt.Sprintf("must be >= %s", MinLotQuantity)}
	}
	return nonNegative("unit_cost", in.UnitCost)
}

func (in LotInput) apply(lot *Lot) {
	lot.LotCode = strings.TrimSpace(in.LotCode)
	lot.Quantity = in.Quantity
	lot.UnitCost = in.UnitCost
	lot.ReceivedAt = nil
	if in.ReceivedAt != nil {
		d := DateOf(*in.ReceivedAt)
		lot.ReceivedAt = &d
	}
}

// trackedItem loads an item that lot operations are allowed on.
func trackedItem(ctx context.Context, tx Store, owner UserID, id ItemID) (InventoryItem, error) {
	item, err := tx.GetItem(ctx, owner, id)
	if err != nil {
		return InventoryItem{}, err
	}
	if item.IsPersistent {
		return InventoryItem{}, fmt.Errorf("item %s: %w", id, ErrPersistentItem)
	}
	return item, nil
}

// ReceiveLot records a stock receipt for a tracked item.
func (s *Service) ReceiveLot(ctx context.Context, owner UserID, itemID ItemID, in LotInput) (Lot, error) {
	if err := in.Validate(); err != nil {
		return Lot{}, err
	}
	lot := Lot{ID: newID[LotID](), ItemID: itemID, OwnerID: owner, CreatedAt: s.now().UTC()}
	in.apply(&lot)

	var batches []BatchID
	err := s.tx(ctx, "receive_lot", func(tx Store) error {
		if _, err := trackedItem(ctx, tx, owner, itemID); err != nil {
			return err
		}
		if err := tx.InsertLot(ctx, lot); err != nil {
			return err
		}
		var err error
		batches, err = batchesUsing(ctx, tx, owner, itemID)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	return lot, s.recomputeAll(ctx, owner, "receive_lot", batches)
}

func (s *Service) ListLots(ctx context.Context, owner UserID, itemID ItemID) ([]Lot, error) {
	var lots []Lot
	err := s.tx(ctx, "list_lots", func(tx Store) error {
		if _, err := tx.GetItem(ctx, owner, itemID); err != nil {
			return err
		}
		var err error
		lots, err = tx.ListLots(ctx, owner, itemID)
		return err
	})
	return lots, err
}

// UpdateLot edits a lot. Shrinking it below what has been consumed fails
// with InsufficientStockError.
func (s *Service) UpdateLot(ctx context.Context, owner UserID, id LotID, in LotInput) (Lot, error) {
	if err := in.Validate(); err != nil {
		return Lot{}, err
	}
	var (
		lot     Lot
		batches []BatchID
	)
	err := s.tx(ctx, "update_lot", func(tx Store) error {
		current, err := tx.GetLot(ctx, owner, id)
		if err != nil {
			return err
		}
		item, err := trackedItem(ctx, tx, owner, current.ItemID)
		if err != nil {
			return err
		}
		lot = current
		in.apply(&lot)
		if err := tx.UpdateLot(ctx, lot); err != nil {
			return err
		}
		if lot.Quantity.LessThan(current.Quantity) {
			if err := s.Quantity.Check(ctx, tx, item, decimal.Zero); err != nil {
				return err
			}
		}
		batches, err = batchesUsing(ctx, tx, owner, item.ID)
		return err
	})
	if err != nil {
		return Lot{}, err
	}
	return lot, s.recomputeAll(ctx, owner, "update_lot", batches)
}

// DeleteLot removes a lot unless that would leave consumed stock uncovered.
func (s *Service) DeleteLot(ctx context.Context, owner UserID, id LotID) error {
	var batches []BatchID
	err := s.tx(ctx, "delete_lot", func(tx Store) error {
		lot, err := tx.GetLot(ctx, owner, id)
		if err != nil {
			return err
		}
		item, err := trackedItem(ctx, tx, owner, lot.ItemID)
		if err != nil {
			return err
		}
		if err := tx.DeleteLot(ctx, owner, id); err != nil {
			return err
		}
		if err := s.Quantity.Check(ctx, tx, item, decimal.Zero); err != nil {
			return err
		}
		batches, err = batchesUsing(ctx, tx, owner, item.ID)
		return err
	})
	if err != nil {
		return err
	}
	return s.recomputeAll(ctx, owner, "delete_lot", batches)
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchInput holds the editable fields of a plant batch.
type BatchInput struct {
	Name      string
	Stage     Stage
	StartDate *time.Time
	Strain    string
	Breeder   string
	Notes     string
}

func (in BatchInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	if in.Stage != "" && !in.Stage.Valid() {
		return &ValidationError{Field: "stage", Message: fmt.Sprintf("unknown stage %q", in.Stage)}
	}
	return nil
}

func (in BatchInput) apply(b *PlantBatch) {
	b.Name = strings.TrimSpace(in.Name)
	b.Stage = in.Stage
	if b.Stage == "" {
		b.Stage = StageSeedling
	}
	b.StartDate = nil
	if in.StartDate != nil {
		d := DateOf(*in.StartDate)
		b.StartDate = &d
	}
	b.Strain = strings.TrimSpace(in.Strain)
	b.Breeder = strings.TrimSpace(in.Breeder)
	b.Notes = strings.TrimSpace(in.Notes)
}

func (s *Service) CreateBatch(ctx context.Context, owner UserID, in BatchInput) (PlantBatch, error) {
	if err := in.Validate(); err != nil {
		return PlantBatch{}, err
	}
	batch := PlantBatch{ID: newID[BatchID](), OwnerID: owner, CTPTotal: decimal.Zero, CreatedAt: s.now().UTC()}
	in.apply(&batch)
	err := s.tx(ctx, "create_batch", func(tx Store) error {
		return tx.InsertBatch(ctx, batch)
	})
	if err != nil {
		return PlantBatch{}, err
	}
	return batch, nil
}

func (s *Service) GetBatch(ctx context.Context, owner UserID, id BatchID) (PlantBatch, error) {
	var batch PlantBatch
	err := s.tx(ctx, "get_batch", func(tx Store) error {
		var err error
		batch, err = tx.GetBatch(ctx, owner, id)
		return err
	})
	return batch, err
}

func (s *Service) ListBatches(ctx context.Context, owner UserID) ([]PlantBatch, error) {
	var batches []PlantBatch
	err := s.tx(ctx, "list_batches", func(tx Store) error {
		var err error
		batches, err = tx.ListBatches(ctx, owner)
		return err
	})
	return batches, err
}

// UpdateBatch edits a batch. Harvest data and the CTP total are untouched.
func (s *Service) UpdateBatch(ctx context.Context, owner UserID, id BatchID, in BatchInput) (PlantBatch, error) {
	if err := in.Validate(); err != nil {
		return PlantBatch{}, err
	}
	var batch PlantBatch
	err := s.tx(ctx, "update_batch", func(tx Store) error {
		var err error
		if batch, err = tx.GetBatch(ctx, owner, id); err != nil {
			return err
		}
		in.apply(&batch)
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return PlantBatch{}, err
	}
	return batch, nil
}

// HarvestInput records or clears the harvest of a batch. A nil HarvestedAt
// clears the harvest and requires both yields to be null.
type HarvestInput struct {
	HarvestedAt *time.Time
	YieldBud    decimal.NullDecimal
	YieldTrim   decimal.NullDecimal
}

// RecordHarvest sets the harvest date and yields of a batch.
func (s *Service) RecordHarvest(ctx context.Context, owner UserID, id BatchID, in HarvestInput) (PlantBatch, error) {
	var batch PlantBatch
	err := s.tx(ctx, "record_harvest", func(tx Store) error {
		var err error
		if batch, err = tx.GetBatch(ctx, owner, id); err != nil {
			return err
		}
		batch.HarvestedAt = nil
		if in.HarvestedAt != nil {
			d := DateOf(*in.HarvestedAt)
			batch.HarvestedAt = &d
		}
		batch.YieldBud = in.YieldBud
		batch.YieldTrim = in.YieldTrim
		if err := batch.validateHarvest(); err != nil {
			return err
		}
		return tx.UpdateBatch(ctx, batch)
	})
	if err != nil {
		return PlantBatch{}, err
	}
	return batch, nil
}

// DeleteBatch removes a batch and its manual diary entries. Batches with
// usage records or cost entries are kept (ErrInUse).
func (s *Service) DeleteBatch(ctx context.Context, owner UserID, id BatchID) error {
	return s.tx(ctx, "delete_batch", func(tx Store) error {
		if _, err := tx.GetBatch(ctx, owner, id); err != nil {
			return err
		}
		usages, err := tx.ListUsage(ctx, owner, UsageFilter{BatchID: id})
		if err != nil {
			return err
		}
		if len(usages) > 0 {
			return fmt.Errorf("batch %s has %d usage records: %w", id, len(usages), ErrInUse)
		}
		costs, err := tx.ListCostEntries(ctx, owner, id)
		if err != nil {
			return err
		}
		if len(costs) > 0 {
			return fmt.Errorf("batch %s has %d cost entries: %w", id, len(costs), ErrInUse)
		}
		if err := tx.DeleteDiaryEntriesByBatch(ctx, owner, id); err != nil {
			return err
		}
		return tx.DeleteBatch(ctx, owner, id)
	})
}

// =============================================================================
// COST ENTRIES
// =============================================================================

// CostInput holds the fields of a cost entry.
type CostInput struct {
	CostType    string
	Description string
	Amount      decimal.Decimal
}

func (in CostInput) Validate() error {
	if strings.TrimSpace(in.CostType) == "" {
		return &ValidationError{Field: "cost_type", Message: "required"}
	}
	if in.Amount.IsNegative() {
		return &ValidationError{Field: "amount", Message: "must be >= 0"}
	}
	return nil
}

// AddCost attributes an explicit cost to a batch and recomputes it.
func (s *Service) AddCost(ctx context.Context, owner UserID, batchID BatchID, in CostInput) (CostEntry, error) {
	if err := in.Validate(); err != nil {
		return CostEntry{}, err
	}
	entry := CostEntry{
		ID:          newID[CostEntryID](),
		BatchID:     batchID,
		OwnerID:     owner,
		CostType:    strings.TrimSpace(in.CostType),
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		CreatedAt:   s.now().UTC(),
	}
	err := s.tx(ctx, "add_cost", func(tx Store) error {
		if _, err := tx.GetBatch(ctx, owner, batchID); err != nil {
			return err
		}
		return tx.InsertCostEntry(ctx, entry)
	})
	if err != nil {
		return CostEntry{}, err
	}
	return entry, s.recomputeAll(ctx, owner, "add_cost", []BatchID{batchID})
}

func (s *Service) ListCosts(ctx context.Context, owner UserID, batchID BatchID) ([]CostEntry, error) {
	var entries []CostEntry
	err := s.tx(ctx, "list_costs", func(tx Store) error {
		if _, err := tx.GetBatch(ctx, owner, batchID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListCostEntries(ctx, owner, batchID)
		return err
	})
	return entries, err
}

// DeleteCost removes a cost entry. Deleting a missing entry succeeds.
func (s *Service) DeleteCost(ctx context.Context, owner UserID, id CostEntryID) error {
	var batchID BatchID
	err := s.tx(ctx, "delete_cost", func(tx Store) error {
		entry, err := tx.GetCostEntry(ctx, owner, id)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		batchID = entry.BatchID
		_, err = tx.DeleteCostEntry(ctx, owner, id)
		return err
	})
	if err != nil || batchID == "" {
		return err
	}
	return s.recomputeAll(ctx, owner, "delete_cost", []BatchID{batchID})
}

// =============================================================================
// DIARY
// =============================================================================

// DiaryInput holds the fields of a manual diary entry.
type DiaryInput struct {
	Note string
	// EntryDate defaults to today when nil.
	EntryDate *time.Time
}

// AddDiaryEntry writes a manual note on a batch.
func (s *Service) AddDiaryEntry(ctx context.Context, owner UserID, batchID BatchID, in DiaryInput) (DiaryEntry, error) {
	note := strings.TrimSpace(in.Note)
	if note == "" {
		return DiaryEntry{}, &ValidationError{Field: "note", Message: "required"}
	}
	now := s.now().UTC()
	date := DateOf(now)
	if in.EntryDate != nil {
		date = DateOf(*in.EntryDate)
	}
	entry := DiaryEntry{
		ID:        newID[DiaryEntryID](),
		BatchID:   batchID,
		OwnerID:   owner,
		Note:      note,
		EntryDate: date,
		CreatedAt: now,
	}
	err := s.tx(ctx, "add_diary_entry", func(tx Store) error {
		if _, err := tx.GetBatch(ctx, owner, batchID); err != nil {
			return err
		}
		return tx.InsertDiaryEntry(ctx, entry)
	})
	if err != nil {
		return DiaryEntry{}, err
	}
	return entry, nil
}

func (s *Service) ListDiary(ctx context.Context, owner UserID, batchID BatchID) ([]DiaryEntry, error) {
	var entries []DiaryEntry
	err := s.tx(ctx, "list_diary", func(tx Store) error {
		if _, err := tx.GetBatch(ctx, owner, batchID); err != nil {
			return err
		}
		var err error
		entries, err = tx.ListDiaryEntries(ctx, owner, batchID)
		return err
	})
	return entries, err
}

// DeleteDiaryEntry removes a manual entry. Entries generated from a usage
// go away with the usage and cannot be deleted on their own.
func (s *Service) DeleteDiaryEntry(ctx context.Context, owner UserID, id DiaryEntryID) error {
	return s.tx(ctx, "delete_diary_entry", func(tx Store) error {
		entry, err := tx.GetDiaryEntry(ctx, owner, id)
		if IsNotFound(err) {
			return nil
		}
		if err != nil {
			return err
		}
		if entry.UsageLinkID != nil {
			return fmt.Errorf("diary entry %s is linked to usage %s: %w", id, *entry.UsageLinkID, ErrInUse)
		}
		_, err = tx.DeleteDiaryEntry(ctx, owner, id)
		return err
	})
}

// =============================================================================
// PROFILE
// =============================================================================

// ProfileInput holds the editable user settings.
type ProfileInput struct {
	WaterCostPerUnit      decimal.NullDecimal
	ElectricityCostPerKWh decimal.NullDecimal
	UnitSystem            UnitSystem
	TemperatureUnit       TemperatureUnit
}

func (in ProfileInput) Validate() error {
	if err := nonNegative("water_cost_per_unit", in.WaterCostPerUnit); err != nil {
		return err
	}
	if err := nonNegative("electricity_cost_per_kwh", in.ElectricityCostPerKWh); err != nil {
		return err
	}
	switch in.UnitSystem {
	case "", UnitSystemMetric, UnitSystemImperial:
	default:
		return &ValidationError{Field: "unit_system", Message: fmt.Sprintf("unknown unit system %q", in.UnitSystem)}
	}
	switch in.TemperatureUnit {
	case "", Celsius, Fahrenheit:
	default:
		return &ValidationError{Field: "temperature_unit", Message: fmt.Sprintf("unknown temperature unit %q", in.TemperatureUnit)}
	}
	return nil
}

func (s *Service) GetProfile(ctx context.Context, owner UserID) (Profile, error) {
	var p Profile
	err := s.tx(ctx, "get_profile", func(tx Store) error {
		var err error
		p, err = tx.GetProfile(ctx, owner)
		return err
	})
	return p, err
}

// UpdateProfile saves user settings. A changed water price is pushed to an
// existing Water item and the batches that used it.
func (s *Service) UpdateProfile(ctx context.Context, owner UserID, in ProfileInput) (Profile, error) {
	if err := in.Validate(); err != nil {
		return Profile{}, err
	}
	var (
		p       Profile
		batches []BatchID
	)
	err := s.tx(ctx, "update_profile", func(tx Store) error {
		current, err := tx.GetProfile(ctx, owner)
		if err != nil {
			return err
		}
		p = current
		p.OwnerID = owner
		p.WaterCostPerUnit = in.WaterCostPerUnit
		p.ElectricityCostPerKWh = in.ElectricityCostPerKWh
		if in.UnitSystem != "" {
			p.UnitSystem = in.UnitSystem
		}
		if in.TemperatureUnit != "" {
			p.TemperatureUnit = in.TemperatureUnit
		}
		p.UpdatedAt = s.now().UTC()
		if err := tx.UpsertProfile(ctx, p); err != nil {
			return err
		}

		if !p.WaterCostPerUnit.Valid {
			return nil
		}
		existing, err := tx.FindItemsByName(ctx, owner, WaterItemName)
		if err != nil || len(existing) == 0 {
			return err
		}
		cost := p.WaterCostPerUnit.Decimal
		_, batches, err = s.ensureWater(ctx, tx, owner, &cost)
		return err
	})
	if err != nil {
		return Profile{}, err
	}
	return p, s.recomputeAll(ctx, owner, "update_profile", batches)
}
