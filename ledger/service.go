/*
service.go - Ledger Service orchestration

PURPOSE:
  Composes the quantity ledger, usage recorder, diary linker and cost
  aggregator into the public operations. Every step runs in its own
  store transaction, retried on ErrConflict.

RECORD USAGE STATE MACHINE:
  Start -> ValidateInput -> CheckStock -> InsertUsage -> LinkDiary -> RecomputeCost -> Committed

  Any failure before InsertUsage commits: nothing is persisted and the
  error is returned as-is (rolled back).

  Failure at LinkDiary or RecomputeCost: the usage IS persisted. The
  caller gets the UsageResult (State=partial_failure) together with a
  PartialFailureError naming each failed step. Both steps are idempotent
  and can be retried alone (RetryDiaryLink, RecomputeCost).

  A committed usage is never rolled back. Once InsertUsage commits the
  remaining steps run on a context detached from caller cancellation.

DELETE USAGE:
  Delete the usage, then best-effort remove its generated diary entry
  (failures are logged, not returned), then always recompute the batch.
  Repeating a delete is a successful no-op; it also finishes a diary
  cleanup a previous attempt could not.

COST POLICY:
  Usage is costed at the item's current derived unit cost, never at a
  price captured when the usage was recorded. Receiving, editing or
  deleting a lot, or changing an item's price, recomputes every batch
  that used the item, so existing CTP totals move with the new cost.

SEE ALSO:
  - catalog.go: CRUD passthroughs that also trigger recompute
  - errors.go: PartialFailureError
  - retry.go: Conflict retries
*/
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SERVICE
// =============================================================================

// Recorder receives operational events for metrics.
type Recorder interface {
	UsageRecorded(state State)
	ConflictRetried(op string)
	CostRecomputed(elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) UsageRecorded(State)          {}
func (nopRecorder) ConflictRetried(string)       {}
func (nopRecorder) CostRecomputed(time.Duration) {}

// Options configures a Service. The zero value is usable.
type Options struct {
	AllowNegativeStock bool
	// Retry defaults to DefaultRetryConfig when MaxAttempts is zero.
	Retry   RetryConfig
	Now     func() time.Time
	Logger  *slog.Logger
	Metrics Recorder
}

// Service is the ledger entry point used by the API layer.
//
// CTP totals are derived from the item's current unit cost. A new or edited
// lot reprices past usage of that item in every batch (see DerivedUnitCost).
type Service struct {
	store TxStore

	Quantity *QuantityLedger
	Usage    *UsageRecorder
	Cost     *CostAggregator
	Diary    *DiaryLinker

	retry   RetryConfig
	now     func() time.Time
	logger  *slog.Logger
	metrics Recorder
}

// NewService wires the ledger components over store.
func NewService(store TxStore, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryConfig()
	}
	quantity := &QuantityLedger{AllowNegativeStock: opts.AllowNegativeStock}
	return &Service{
		store:    store,
		Quantity: quantity,
		Usage:    &UsageRecorder{Quantity: quantity, Now: opts.Now},
		Cost:     &CostAggregator{},
		Diary:    &DiaryLinker{Now: opts.Now},
		retry:    opts.Retry,
		now:      opts.Now,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// tx runs fn in a store transaction, retrying conflicts.
func (s *Service) tx(ctx context.Context, op string, fn func(Store) error) error {
	cfg := s.retry
	cfg.OnRetry = func(attempt int, err error) {
		s.logger.Info("retrying ledger transaction",
			slog.String("op", op), slog.Int("attempt", attempt), slog.Any("error", err))
		s.metrics.ConflictRetried(op)
	}
	return Retry(ctx, cfg, func() error {
		return s.store.WithTx(ctx, fn)
	})
}

// =============================================================================
// USAGE
// =============================================================================

// State is the terminal state of a committed usage operation.
type State string

const (
	StateCommitted      State = "committed"
	StatePartialFailure State = "partial_failure"
	StateRolledBack     State = "rolled_back"
)

// UsageResult is the outcome of RecordUsage.
type UsageResult struct {
	Usage    UsageRecord
	Diary    *DiaryEntry
	CTPTotal decimal.Decimal
	State    State
}

// RecordUsage records consumption of an item against a batch, links a diary
// entry and recomputes the batch CTP.
func (s *Service) RecordUsage(ctx context.Context, owner UserID, in UsageInput) (UsageResult, error) {
	if err := in.Validate(); err != nil {
		s.metrics.UsageRecorded(StateRolledBack)
		return UsageResult{State: StateRolledBack}, err
	}

	var usage UsageRecord
	err := s.tx(ctx, "record_usage", func(tx Store) error {
		var err error
		usage, err = s.Usage.Record(ctx, tx, owner, in)
		return err
	})
	if err != nil {
		s.metrics.UsageRecorded(StateRolledBack)
		return UsageResult{State: StateRolledBack}, err
	}

	ctx = context.WithoutCancel(ctx)
	result := UsageResult{Usage: usage, State: StateCommitted}
	var failures []StepFailure

	entry, err := s.linkDiary(ctx, owner, usage)
	if err != nil {
		failures = append(failures, StepFailure{Step: StepLinkDiary, BatchID: usage.BatchID, Err: err})
	} else {
		result.Diary = &entry
	}

	total, err := s.RecomputeCost(ctx, owner, usage.BatchID)
	if err != nil {
		failures = append(failures, StepFailure{Step: StepRecomputeCost, BatchID: usage.BatchID, Err: err})
	} else {
		result.CTPTotal = total
	}

	if len(failures) > 0 {
		result.State = StatePartialFailure
		pf := &PartialFailureError{Operation: "record_usage", UsageID: usage.ID, Failures: failures}
		s.logger.Warn("usage recorded with failed steps",
			slog.String("usage_id", string(usage.ID)), slog.Any("error", pf))
		s.metrics.UsageRecorded(StatePartialFailure)
		return result, pf
	}
	s.metrics.UsageRecorded(StateCommitted)
	return result, nil
}

func (s *Service) linkDiary(ctx context.Context, owner UserID, usage UsageRecord) (DiaryEntry, error) {
	var entry DiaryEntry
	err := s.tx(ctx, "link_diary", func(tx Store) error {
		item, err := tx.GetItem(ctx, owner, usage.ItemID)
		if err != nil {
			return err
		}
		entry, err = s.Diary.Link(ctx, tx, usage, item)
		return err
	})
	return entry, err
}

// RetryDiaryLink creates the diary entry of a committed usage if it is missing.
func (s *Service) RetryDiaryLink(ctx context.Context, owner UserID, id UsageID) (DiaryEntry, error) {
	var usage UsageRecord
	err := s.tx(ctx, "get_usage", func(tx Store) error {
		var err error
		usage, err = tx.GetUsage(ctx, owner, id)
		return err
	})
	if err != nil {
		return DiaryEntry{}, err
	}
	return s.linkDiary(ctx, owner, usage)
}

// DeleteUsageResult is the outcome of DeleteUsage.
type DeleteUsageResult struct {
	Usage        UsageRecord
	Deleted      bool
	DiaryRemoved bool
	// DiaryCleanupFailed is set when the linked entry may still exist.
	// Deleting the usage again retries the cleanup.
	DiaryCleanupFailed bool
	CTPTotal           decimal.Decimal
}

// DeleteUsage removes a usage record, its generated diary entry and its
// cost contribution. Deleting a missing id succeeds.
func (s *Service) DeleteUsage(ctx context.Context, owner UserID, id UsageID) (DeleteUsageResult, error) {
	var result DeleteUsageResult
	err := s.tx(ctx, "delete_usage", func(tx Store) error {
		var err error
		result.Usage, result.Deleted, err = s.Usage.Delete(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return DeleteUsageResult{}, err
	}

	ctx = context.WithoutCancel(ctx)
	batchID := result.Usage.BatchID

	var entry DiaryEntry
	err = s.tx(ctx, "unlink_diary", func(tx Store) error {
		var err error
		entry, result.DiaryRemoved, err = s.Diary.Unlink(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		result.DiaryCleanupFailed = true
		s.logger.Warn("failed to remove diary entry of deleted usage",
			slog.String("usage_id", string(id)), slog.Any("error", err))
	}
	if batchID == "" && result.DiaryRemoved {
		batchID = entry.BatchID
	}
	if batchID == "" {
		return result, nil
	}

	total, err := s.RecomputeCost(ctx, owner, batchID)
	if err != nil {
		return result, &PartialFailureError{
			Operation: "delete_usage",
			UsageID:   id,
			Failures:  []StepFailure{{Step: StepRecomputeCost, BatchID: batchID, Err: err}},
		}
	}
	result.CTPTotal = total
	return result, nil
}

// UsageLine is a usage record decorated for display.
type UsageLine struct {
	UsageRecord
	ItemName  string
	Unit      string
	BatchName string
}

// ListUsage returns usage of an item or of a batch, newest first.
func (s *Service) ListUsage(ctx context.Context, owner UserID, filter UsageFilter) ([]UsageLine, error) {
	if filter.ItemID == "" && filter.BatchID == "" {
		return nil, &ValidationError{Field: "filter", Message: "item_id or batch_id required"}
	}
	var lines []UsageLine
	err := s.tx(ctx, "list_usage", func(tx Store) error {
		if filter.ItemID != "" {
			if _, err := tx.GetItem(ctx, owner, filter.ItemID); err != nil {
				return err
			}
		}
		if filter.BatchID != "" {
			if _, err := tx.GetBatch(ctx, owner, filter.BatchID); err != nil {
				return err
			}
		}
		usages, err := tx.ListUsage(ctx, owner, filter)
		if err != nil {
			return err
		}
		items := make(map[ItemID]InventoryItem)
		batches := make(map[BatchID]PlantBatch)
		lines = make([]UsageLine, 0, len(usages))
		for _, u := range usages {
			item, ok := items[u.ItemID]
			if !ok {
				if item, err = tx.GetItem(ctx, owner, u.ItemID); err != nil {
					return err
				}
				items[u.ItemID] = item
			}
			batch, ok := batches[u.BatchID]
			if !ok {
				if batch, err = tx.GetBatch(ctx, owner, u.BatchID); err != nil {
					return err
				}
				batches[u.BatchID] = batch
			}
			lines = append(lines, UsageLine{UsageRecord: u, ItemName: item.Name, Unit: item.Unit, BatchName: batch.Name})
		}
		return nil
	})
	return lines, err
}

// =============================================================================
// DERIVED VALUES
// =============================================================================

// OnHand returns the current stock of an item.
func (s *Service) OnHand(ctx context.Context, owner UserID, id ItemID) (OnHand, error) {
	var onHand OnHand
	err := s.tx(ctx, "on_hand", func(tx Store) error {
		var err error
		onHand, err = s.Quantity.OnHand(ctx, tx, owner, id)
		return err
	})
	return onHand, err
}

// RecomputeCost recalculates and stores the CTP total of a batch.
func (s *Service) RecomputeCost(ctx context.Context, owner UserID, id BatchID) (decimal.Decimal, error) {
	start := time.Now()
	var total decimal.Decimal
	err := s.tx(ctx, "recompute_cost", func(tx Store) error {
		var err error
		total, err = s.Cost.Recompute(ctx, tx, owner, id)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	s.metrics.CostRecomputed(time.Since(start))
	return total, nil
}

// recomputeAll recomputes each batch after op committed, collecting failures.
func (s *Service) recomputeAll(ctx context.Context, owner UserID, op string, batches []BatchID) error {
	ctx = context.WithoutCancel(ctx)
	var failures []StepFailure
	for _, id := range batches {
		if _, err := s.RecomputeCost(ctx, owner, id); err != nil {
			failures = append(failures, StepFailure{Step: StepRecomputeCost, BatchID: id, Err: err})
		}
	}
	if len(failures) == 0 {
		return nil
	}
	pf := &PartialFailureError{Operation: op, Failures: failures}
	s.logger.Warn("cost recompute failed after commit", slog.String("op", op), slog.Any("error", pf))
	return pf
}
