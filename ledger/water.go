package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Water item defaults.
const (
	WaterItemName     = "Water"
	WaterItemUnit     = "gal"
	WaterItemCategory = "Water"

	// WaterDuplicateName is given to a used duplicate so it stops matching.
	WaterDuplicateName = "Water (duplicate)"
)

// EnsureWaterItem makes sure the owner has exactly one persistent Water item
// and returns it.
//
// The unit cost comes from unitCost, else the profile's water price; a newly
// created item without either is priced at zero. When several items are named
// Water the newest is kept. Unused duplicates are demoted and deleted with
// their lots. A duplicate with usage stays as it is, renamed to
// WaterDuplicateName, so its stock and cost history are unchanged.
func (s *Service) EnsureWaterItem(ctx context.Context, owner UserID, unitCost *decimal.Decimal) (InventoryItem, error) {
	if unitCost != nil && unitCost.IsNegative() {
		return InventoryItem{}, &ValidationError{Field: "unit_cost", Message: "must be >= 0"}
	}
	var (
		item    InventoryItem
		batches []BatchID
	)
	err := s.tx(ctx, "ensure_water_item", func(tx Store) error {
		var err error
		item, batches, err = s.ensureWater(ctx, tx, owner, unitCost)
		return err
	})
	if err != nil {
		return InventoryItem{}, err
	}
	return item, s.recomputeAll(ctx, owner, "ensure_water_item", batches)
}

// ensureWater returns the water item and the batches whose cost it changed.
func (s *Service) ensureWater(ctx context.Context, tx Store, owner UserID, unitCost *decimal.Decimal) (InventoryItem, []BatchID, error) {
	price := decimal.NullDecimal{}
	if unitCost != nil {
		price = decimal.NewNullDecimal(*unitCost)
	} else {
		profile, err := tx.GetProfile(ctx, owner)
		if err != nil {
			return InventoryItem{}, nil, err
		}
		price = profile.WaterCostPerUnit
	}

	rows, err := tx.FindItemsByName(ctx, owner, WaterItemName)
	if err != nil {
		return InventoryItem{}, nil, err
	}

	if len(rows) == 0 {
		if !price.Valid {
			price = decimal.NewNullDecimal(decimal.Zero)
		}
		item := InventoryItem{
			ID:           newID[ItemID](),
			OwnerID:      owner,
			Name:         WaterItemName,
			Unit:         WaterItemUnit,
			Category:     WaterItemCategory,
			IsPersistent: true,
			UnitCost:     price,
			CreatedAt:    s.now().UTC(),
		}
		return item, nil, tx.InsertItem(ctx, item)
	}

	primary, duplicates := rows[0], rows[1:]
	for _, dup := range duplicates {
		if err := s.dropDuplicateWater(ctx, tx, dup); err != nil {
			return InventoryItem{}, nil, err
		}
	}

	if !primary.IsPersistent {
		lots, err := tx.ListLots(ctx, owner, primary.ID)
		if err != nil {
			return InventoryItem{}, nil, err
		}
		if len(lots) > 0 {
			return InventoryItem{}, nil, &ValidationError{Field: "name", Message: "a tracked Water item with lots already exists"}
		}
	}

	updated := primary
	updated.Unit = WaterItemUnit
	updated.Category = WaterItemCategory
	updated.IsPersistent = true
	if price.Valid {
		updated.UnitCost = price
	}
	if primary.IsPersistent && primary.Unit == updated.Unit && primary.Category == updated.Category &&
		!costChanged(primary, updated) {
		return primary, nil, nil
	}
	if err := tx.UpdateItem(ctx, updated); err != nil {
		return InventoryItem{}, nil, err
	}
	var batches []BatchID
	if costChanged(primary, updated) {
		if batches, err = batchesUsing(ctx, tx, owner, updated.ID); err != nil {
			return InventoryItem{}, nil, err
		}
	}
	return updated, batches, nil
}

func (s *Service) dropDuplicateWater(ctx context.Context, tx Store, dup InventoryItem) error {
	usages, err := tx.ListUsage(ctx, dup.OwnerID, UsageFilter{ItemID: dup.ID})
	if err != nil {
		return err
	}
	if len(usages) > 0 {
		s.logger.Warn("keeping duplicate Water item with usage",
			slog.String("item_id", string(dup.ID)), slog.Int("usages", len(usages)))
		dup.Name = WaterDuplicateName
		return tx.UpdateItem(ctx, dup)
	}

	if dup.IsPersistent {
		dup.IsPersistent = false
		if err := tx.UpdateItem(ctx, dup); err != nil {
			return err
		}
	}
	lots, err := tx.ListLots(ctx, dup.OwnerID, dup.ID)
	if err != nil {
		return err
	}
	for _, l := range lots {
		if err := tx.DeleteLot(ctx, dup.OwnerID, l.ID); err != nil {
			return err
		}
	}
	return tx.DeleteItem(ctx, dup.OwnerID, dup.ID)
}
