package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DiaryLinker writes the diary entry that documents a usage event.
type DiaryLinker struct {
	Now func() time.Time
}

// ComposeUsageNote renders the diary text for a usage:
//
//	Applied 50 mL of CalMag
//
//	<free-text note, when present>
func ComposeUsageNote(quantity decimal.Decimal, unit, itemName, note string) string {
	msg := fmt.Sprintf("Applied %s %s of %s", quantity.String(), strings.TrimSpace(unit), strings.TrimSpace(itemName))
	msg = strings.Join(strings.Fields(msg), " ")
	if note = strings.TrimSpace(note); note != "" {
		msg += "\n\n" + note
	}
	return msg
}

// Link inserts the entry generated for usage. If one already exists it is
// returned unchanged, so Link is safe to retry after a partial failure.
func (d *DiaryLinker) Link(ctx context.Context, s Store, usage UsageRecord, item InventoryItem) (DiaryEntry, error) {
	existing, err := s.FindDiaryEntryByUsage(ctx, usage.OwnerID, usage.ID)
	if err == nil {
		return existing, nil
	}
	if !IsNotFound(err) {
		return DiaryEntry{}, err
	}

	link := usage.ID
	entry := DiaryEntry{
		ID:          newID[DiaryEntryID](),
		BatchID:     usage.BatchID,
		OwnerID:     usage.OwnerID,
		Note:        ComposeUsageNote(usage.Quantity, item.Unit, item.Name, usage.Note),
		EntryDate:   DateOf(usage.UsedAt),
		UsageLinkID: &link,
		CreatedAt:   d.Now().UTC(),
	}
	if err := s.InsertDiaryEntry(ctx, entry); err != nil {
		return DiaryEntry{}, err
	}
	return entry, nil
}

// Unlink removes the entry generated for usage, if any.
func (d *DiaryLinker) Unlink(ctx context.Context, s Store, owner UserID, usage UsageID) (DiaryEntry, bool, error) {
	entry, err := s.FindDiaryEntryByUsage(ctx, owner, usage)
	if IsNotFound(err) {
		return DiaryEntry{}, false, nil
	}
	if err != nil {
		return DiaryEntry{}, false, err
	}
	deleted, err := s.DeleteDiaryEntry(ctx, owner, entry.ID)
	return entry, deleted, err
}
