/*
cost.go - Cost-to-produce aggregation

PURPOSE:
  Keeps PlantBatch.CTPTotal equal to the sum of costs attributable to the
  batch. The total is always recomputed from source records; it is never
  patched with deltas, so running Recompute twice yields the same value
  and a recompute racing a concurrent write is simply re-run.

ATTRIBUTABLE COSTS:
  1. Usage: usage.quantity x derived unit cost of the item
  2. Explicit: CostEntry.amount

DERIVED UNIT COST:
  The item's current weighted average over lots that carry a unit cost:

    sum(lot.quantity * lot.unit_cost) / sum(lot.quantity)

  Lots without a unit cost are ignored. With no costed lots the item's
  own unit cost is used (this is how persistent items such as water are
  priced), else zero. Lots are not FIFO-matched to usages.

PRECISION:
  Intermediate values keep full decimal precision. Only the final total
  is rounded to MoneyPlaces, half-up.

SEE ALSO:
  - service.go: Triggers Recompute after every write that affects cost
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// CostAggregator recomputes CTP totals.
type CostAggregator struct{}

// DerivedUnitCost computes the unit cost attributed to usages of item.
func DerivedUnitCost(item InventoryItem, lots []Lot) decimal.Decimal {
	weighted := decimal.Zero
	qty := decimal.Zero
	for _, l := range lots {
		if !l.UnitCost.Valid {
			continue
		}
		weighted = weighted.Add(l.Quantity.Mul(l.UnitCost.Decimal))
		qty = qty.Add(l.Quantity)
	}
	if qty.IsPositive() {
		return weighted.Div(qty)
	}
	if item.UnitCost.Valid {
		return item.UnitCost.Decimal
	}
	return decimal.Zero
}

// Total sums usage and explicit costs and rounds the result.
// unitCosts must hold a derived unit cost for every item referenced by usages.
func Total(usages []UsageRecord, unitCosts map[ItemID]decimal.Decimal, entries []CostEntry) decimal.Decimal {
	total := decimal.Zero
	for _, u := range usages {
		total = total.Add(u.Quantity.Mul(unitCosts[u.ItemID]))
	}
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	return RoundMoney(total)
}

// Compute derives the CTP total of a batch without writing it.
func (c *CostAggregator) Compute(ctx context.Context, s Store, owner UserID, batchID BatchID) (decimal.Decimal, error) {
	if _, err := s.GetBatch(ctx, owner, batchID); err != nil {
		return decimal.Zero, err
	}
	usages, err := s.ListUsage(ctx, owner, UsageFilter{BatchID: batchID})
	if err != nil {
		return decimal.Zero, err
	}

	unitCosts := make(map[ItemID]decimal.Decimal)
	for _, u := range usages {
		if _, ok := unitCosts[u.ItemID]; ok {
			continue
		}
		item, err := s.GetItem(ctx, owner, u.ItemID)
		if err != nil {
			return decimal.Zero, err
		}
		var lots []Lot
		if !item.IsPersistent {
			if lots, err = s.ListLots(ctx, owner, item.ID); err != nil {
				return decimal.Zero, err
			}
		}
		unitCosts[u.ItemID] = DerivedUnitCost(item, lots)
	}

	entries, err := s.ListCostEntries(ctx, owner, batchID)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(usages, unitCosts, entries), nil
}

// Recompute derives the CTP total of a batch and stores it.
func (c *CostAggregator) Recompute(ctx context.Context, s Store, owner UserID, batchID BatchID) (decimal.Decimal, error) {
	total, err := c.Compute(ctx, s, owner, batchID)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.SetBatchCTP(ctx, owner, batchID, total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// batchesUsing returns the distinct batches with usage of item.
func batchesUsing(ctx context.Context, s Store, owner UserID, item ItemID) ([]BatchID, error) {
	usages, err := s.ListUsage(ctx, owner, UsageFilter{ItemID: item})
	if err != nil {
		return nil, err
	}
	seen := make(map[BatchID]bool)
	var ids []BatchID
	for _, u := range usages {
		if !seen[u.BatchID] {
			seen[u.BatchID] = true
			ids = append(ids, u.BatchID)
		}
	}
	return ids, nil
}
