/*
quantity.go - On-hand quantity derived from lots and usage

PURPOSE:
  Answers "how much of item X is on hand" by replaying the item's lot
  receipts and usage records. There is no stored quantity counter that
  could drift or be double-decremented on retries:

    on_hand = sum(lot.quantity) - sum(usage.quantity)

  Persistent items (water) are never tracked and are always Unbounded.

POLICY:
  AllowNegativeStock=false (default) rejects consumption beyond on-hand
  with InsufficientStockError. When true, tracked items may go negative.

SEE ALSO:
  - usage.go: Calls Check before inserting a usage
  - catalog.go: Calls Check before shrinking or deleting a lot
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuantityLedger derives on-hand stock.
type QuantityLedger struct {
	AllowNegativeStock bool
}

// OnHand computes current stock for an item.
func (q *QuantityLedger) OnHand(ctx context.Context, s Store, owner UserID, itemID ItemID) (OnHand, error) {
	item, err := s.GetItem(ctx, owner, itemID)
	if err != nil {
		return OnHand{}, err
	}
	return q.onHandFor(ctx, s, item)
}

func (q *QuantityLedger) onHandFor(ctx context.Context, s Store, item InventoryItem) (OnHand, error) {
	if item.IsPersistent {
		return OnHand{Unbounded: true, Unit: item.Unit}, nil
	}
	lots, err := s.ListLots(ctx, item.OwnerID, item.ID)
	if err != nil {
		return OnHand{}, err
	}
	usages, err := s.ListUsage(ctx, item.OwnerID, UsageFilter{ItemID: item.ID})
	if err != nil {
		return OnHand{}, err
	}
	return OnHand{Quantity: replay(lots, usages), Unit: item.Unit}, nil
}

func replay(lots []Lot, usages []UsageRecord) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lots {
		total = total.Add(l.Quantity)
	}
	for _, u := range usages {
		total = total.Sub(u.Quantity)
	}
	return total
}

// CanConsume reports whether quantity may be drawn from stock.
func (q *QuantityLedger) CanConsume(onHand OnHand, quantity decimal.Decimal) bool {
	if onHand.Unbounded || q.AllowNegativeStock {
		return true
	}
	return quantity.LessThanOrEqual(onHand.Quantity)
}

// Check returns InsufficientStockError if quantity cannot be drawn from item.
func (q *QuantityLedger) Check(ctx context.Context, s Store, item InventoryItem, quantity decimal.Decimal) error {
	onHand, err := q.onHandFor(ctx, s, item)
	if err != nil {
		return err
	}
	if q.CanConsume(onHand, quantity) {
		return nil
	}
	return &InsufficientStockError{
		ItemID:    item.ID,
		Available: onHand.Quantity,
		Requested: quantity,
		Unit:      item.Unit,
	}
}
