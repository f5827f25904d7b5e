/*
errors.go - Ledger error to HTTP status mapping

MAPPING (checked in this order):
  PartialFailureError    2xx with "status": "partial_failure" (the write committed)
  ValidationError        400
  ErrNotFound            404
  InsufficientStock      422, with a hint to receive a lot
  ErrPersistentItem      409
  ErrInUse               409
  ErrConflict            409 (retries exhausted)
  anything else          500

  A PartialFailureError also unwraps to its step errors, which may be
  ErrNotFound or ErrConflict, so it must be matched first.

SEE ALSO:
  - ledger/errors.go: Sentinels and structured errors
*/
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Cronanaut/veronagrow/ledger"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// FailedStepDTO is one downstream step that failed after a committed write.
type FailedStepDTO struct {
	Step    string `json:"step"`
	BatchID string `json:"batch_id,omitempty"`
	Error   string `json:"error"`
	Retry   string `json:"retry"`
}

// PartialResultDTO wraps the committed result of an operation whose
// follow-up steps failed.
type PartialResultDTO struct {
	Status      string          `json:"status"`
	Operation   string          `json:"operation"`
	Data        any             `json:"data"`
	FailedSteps []FailedStepDTO `json:"failed_steps"`
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeLedgerError maps err to a status code and writes it.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *ledger.ValidationError
		stock      *ledger.InsufficientStockError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation failed",
			Details: validation.Error(),
			Field:   validation.Field,
		})
	case errors.Is(err, ledger.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation failed", err)
	case errors.Is(err, ledger.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found", err)
	case errors.As(err, &stock):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "insufficient stock",
			Details: stock.Error(),
			Hint:    fmt.Sprintf("receive a lot of at least %s %s for item %s", stock.Shortfall(), stock.Unit, stock.ItemID),
		})
	case errors.Is(err, ledger.ErrPersistentItem):
		writeError(w, http.StatusConflict, "item is persistent", err)
	case errors.Is(err, ledger.ErrInUse):
		writeError(w, http.StatusConflict, "record is in use", err)
	case errors.Is(err, ledger.ErrConflict):
		writeError(w, http.StatusConflict, "concurrent modification, try again", err)
	default:
		h.logger.Error("request failed",
			slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal error", nil)
	}
}

// writeResult writes data with status, or a partial result when err is a
// PartialFailureError. Other errors are mapped by writeLedgerError.
func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, status int, data any, err error) {
	if err == nil {
		writeJSON(w, status, data)
		return
	}
	var pf *ledger.PartialFailureError
	if errors.As(err, &pf) {
		writeJSON(w, status, PartialResultDTO{
			Status:      string(ledger.StatePartialFailure),
			Operation:   pf.Operation,
			Data:        data,
			FailedSteps: failedSteps(pf),
		})
		return
	}
	h.writeLedgerError(w, r, err)
}

func failedSteps(pf *ledger.PartialFailureError) []FailedStepDTO {
	steps := make([]FailedStepDTO, len(pf.Failures))
	for i, f := range pf.Failures {
		steps[i] = FailedStepDTO{
			Step:    string(f.Step),
			BatchID: string(f.BatchID),
			Error:   f.Err.Error(),
			Retry:   retryHint(pf, f),
		}
	}
	return steps
}

func retryHint(pf *ledger.PartialFailureError, f ledger.StepFailure) string {
	switch f.Step {
	case ledger.StepLinkDiary:
		return fmt.Sprintf("POST /api/usage/%s/diary", pf.UsageID)
	default:
		return fmt.Sprintf("POST /api/batches/%s/recompute", f.BatchID)
	}
}
