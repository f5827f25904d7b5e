/*
usage.go - Validation and persistence of consumption events

PURPOSE:
  The UsageRecorder validates a single consumption event and inserts it.
  It has no downstream effects: linking the diary and recomputing cost
  is the Service's job, which keeps this component testable on its own.

CONTRACT:
  Record must be called inside a store transaction so the stock check
  and the insert see the same snapshot. Two concurrent usages of the
  same item cannot both pass a limit only one of them fits under.

  Delete is idempotent: deleting a missing id succeeds with deleted=false.

SEE ALSO:
  - quantity.go: Stock check
  - service.go: Orchestration
*/
package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UsageInput describes a requested consumption.
type UsageInput struct {
	ItemID   ItemID
	BatchID  BatchID
	Quantity decimal.Decimal
	Note     string
	// UsedAt defaults to the current time when nil.
	UsedAt *time.Time
}

// Validate checks the input without touching the store.
func (in UsageInput) Validate() error {
	if in.ItemID == "" {
		return &ValidationError{Field: "item_id", Message: "required"}
	}
	if in.BatchID == "" {
		return &ValidationError{Field: "batch_id", Message: "required"}
	}
	if !in.Quantity.IsPositive() {
		return &ValidationError{Field: "quantity", Message: "must be > 0"}
	}
	return nil
}

// UsageRecorder validates and persists usage records.
type UsageRecorder struct {
	Quantity *QuantityLedger
	Now      func() time.Time
}

// Record validates in and inserts a new usage record.
func (r *UsageRecorder) Record(ctx context.Context, s Store, owner UserID, in UsageInput) (UsageRecord, error) {
	if err := in.Validate(); err != nil {
		return UsageRecord{}, err
	}
	item, err := s.GetItem(ctx, owner, in.ItemID)
	if err != nil {
		return UsageRecord{}, err
	}
	if _, err := s.GetBatch(ctx, owner, in.BatchID); err != nil {
		return UsageRecord{}, err
	}
	if err := r.Quantity.Check(ctx, s, item, in.Quantity); err != nil {
		return UsageRecord{}, err
	}

	now := r.Now().UTC()
	usedAt := now
	if in.UsedAt != nil && !in.UsedAt.IsZero() {
		usedAt = in.UsedAt.UTC()
	}
	usage := UsageRecord{
		ID:        newID[UsageID](),
		ItemID:    item.ID,
		BatchID:   in.BatchID,
		OwnerID:   owner,
		Quantity:  in.Quantity,
		Note:      strings.TrimSpace(in.Note),
		UsedAt:    usedAt,
		CreatedAt: now,
	}
	if err := s.InsertUsage(ctx, usage); err != nil {
		return UsageRecord{}, err
	}
	return usage, nil
}

// Delete removes a usage record, returning the removed record when it existed.
func (r *UsageRecorder) Delete(ctx context.Context, s Store, owner UserID, id UsageID) (UsageRecord, bool, error) {
	usage, err := s.GetUsage(ctx, owner, id)
	if IsNotFound(err) {
		return UsageRecord{}, false, nil
	}
	if err != nil {
		return UsageRecord{}, false, err
	}
	deleted, err := s.DeleteUsage(ctx, owner, id)
	if err != nil {
		return UsageRecord{}, false, err
	}
	return usage, deleted, nil
}
