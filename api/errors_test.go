package api

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Cronanaut/veronagrow/ledger"
)

func TestFailedSteps_RetryHints(t *testing.T) {
	pf := &ledger.PartialFailureError{
		Operation: "record_usage",
		UsageID:   "u-1",
		Failures: []ledger.StepFailure{
			{Step: ledger.StepLinkDiary, BatchID: "b-1", Err: errors.New("diary down")},
			{Step: ledger.StepRecomputeCost, BatchID: "b-1", Err: errors.New("store down")},
		},
	}

	steps := failedSteps(pf)

	require.Len(t, steps, 2)
	assert.Equal(t, "link_diary", steps[0].Step)
	assert.Equal(t, "POST /api/usage/u-1/diary", steps[0].Retry)
	assert.Equal(t, "diary down", steps[0].Error)
	assert.Equal(t, "recompute_cost", steps[1].Step)
	assert.Equal(t, "POST /api/batches/b-1/recompute", steps[1].Retry)
}
