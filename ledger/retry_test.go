package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, BackoffFactor: 2}
}

func TestRetry_RetriesConflictsOnly(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("tx: %w", ErrConflict)
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Retry(context.Background(), fastRetry(3), func() error {
		calls++
		return ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, calls)
}

func TestRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	var retried []int
	cfg := fastRetry(4)
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Retry(context.Background(), cfg, func() error { return ErrConflict })

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, fastRetry(5), func() error {
		calls++
		cancel()
		return ErrConflict
	})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}

func TestErrorClassification(t *testing.T) {
	stock := &InsufficientStockError{Available: d("1"), Requested: d("3"), Unit: "L"}
	assert.True(t, IsClientError(stock))
	assert.True(t, IsClientError(&ValidationError{Field: "x", Message: "bad"}))
	assert.False(t, IsClientError(ErrConflict))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrConflict)))
	assert.True(t, IsNotFound(fmt.Errorf("item: %w", ErrNotFound)))

	pf := &PartialFailureError{
		Operation: "record_usage",
		Failures:  []StepFailure{{Step: StepLinkDiary, Err: ErrConflict}},
	}
	assert.ErrorIs(t, pf, ErrPartialFailure)
	assert.ErrorIs(t, pf, ErrConflict)
	assert.True(t, pf.Failed(StepLinkDiary))
	assert.Contains(t, pf.Error(), "record_usage committed with failed steps: link_diary")
}
