package ledger

import "github.com/google/uuid"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type ItemID string
type LotID string
type UsageID string
type BatchID string
type DiaryEntryID string
type CostEntryID string

type identifier interface {
	~string
}

// newID returns a fresh random identifier of the requested kind.
func newID[T identifier]() T {
	return T(uuid.NewString())
}

// ValidID reports whether s is a well-formed identifier.
func ValidID[T identifier](s T) bool {
	_, err := uuid.Parse(string(s))
	return err == nil
}
