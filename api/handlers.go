/*
handlers.go - HTTP API handlers for the grow ledger

PURPOSE:
  Exposes the ledger service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to ledger.Service. Every handler acts
  on behalf of the owner resolved by Authenticate.

ENDPOINTS:
  Items:
    POST   /api/items                  Create item
    GET    /api/items                  List items (?on_hand=true adds stock)
    POST   /api/items/water            Ensure the persistent Water item
    GET    /api/items/{id}             Item with on-hand stock
    PUT    /api/items/{id}             Update item
    DELETE /api/items/{id}             Delete item and its lots
    GET    /api/items/{id}/on-hand     Current stock
    GET    /api/items/{id}/usage       Usage history
    POST   /api/items/{id}/lots        Receive a lot
    GET    /api/items/{id}/lots        List lots

  Lots:
    PUT    /api/lots/{id}              Update lot
    DELETE /api/lots/{id}              Delete lot

  Usage:
    POST   /api/usage                  Record usage (Idempotency-Key)
    DELETE /api/usage/{id}             Delete usage (idempotent)
    POST   /api/usage/{id}/diary       Retry the diary link

  Batches:
    POST   /api/batches                Create batch
    GET    /api/batches                List batches
    GET    /api/batches/{id}           Get batch
    PUT    /api/batches/{id}           Update batch
    DELETE /api/batches/{id}           Delete batch
    POST   /api/batches/{id}/harvest   Record or clear harvest
    GET    /api/batches/{id}/usage     Usage history
    POST   /api/batches/{id}/recompute Recompute CTP
    POST   /api/batches/{id}/costs     Add cost
    GET    /api/batches/{id}/costs     List costs
    POST   /api/batches/{id}/diary     Add diary note
    GET    /api/batches/{id}/diary     List diary

  Costs / Diary:
    DELETE /api/costs/{id}             Delete cost (idempotent)
    DELETE /api/diary/{id}             Delete manual diary note (idempotent)

  Profile:
    GET    /api/profile                Settings
    PUT    /api/profile                Update settings

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate shape (validator/v10)
  3. Call ledger.Service
  4. Serialize response
  5. Map errors (errors.go)

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Status mapping and partial results
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Cronanaut/veronagrow/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	Service  *ledger.Service
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new handler over svc.
func NewHandler(svc *ledger.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Service: svc, validate: newValidator(), logger: logger}
}

// newValidator reports errors by JSON field name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// decode reads a JSON body into dst and validates its tags. It writes the
// 400 response itself and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation failed",
				Details: fmt.Sprintf("%s failed %q", f.Field(), f.Tag()),
				Field:   f.Field(),
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "validation failed", err)
		return false
	}
	return true
}

// pathID reads the {id} URL parameter. Malformed ids are reported as not
// found, the same as ids owned by someone else.
func pathID[T ~string](w http.ResponseWriter, r *http.Request) (T, bool) {
	id := T(chi.URLParam(r, "id"))
	if !ledger.ValidID(id) {
		writeError(w, http.StatusNotFound, "not found", nil)
		return "", false
	}
	return id, true
}

// parseDate parses an optional calendar date field.
func parseDate(field string, s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, *s)
	if err != nil {
		return nil, &ledger.ValidationError{Field: field, Message: "must be YYYY-MM-DD"}
	}
	return &t, nil
}

func (h *Handler) writeDeleted(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeResult(w, r, http.StatusOK, nil, err)
}

// =============================================================================
// ITEM ENDPOINTS
// =============================================================================

func (h *Handler) itemInput(req ItemRequest) ledger.ItemInput {
	return ledger.ItemInput{
		Name:         req.Name,
		Unit:         req.Unit,
		Category:     req.Category,
		IsPersistent: req.IsPersistent,
		UnitCost:     ptrNull(req.UnitCost),
	}
}

// CreateItem handles POST /api/items.
func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Service.CreateItem(r.Context(), OwnerFrom(r.Context()), h.itemInput(req))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemDTO(item))
}

// ListItems handles GET /api/items.
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := OwnerFrom(ctx)
	withStock, _ := strconv.ParseBool(r.URL.Query().Get("on_hand"))

	items, err := h.Service.ListItems(ctx, owner)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]ItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toItemDTO(item)
		if !withStock {
			continue
		}
		onHand, err := h.Service.OnHand(ctx, owner, item.ID)
		if err != nil {
			h.writeLedgerError(w, r, err)
			return
		}
		stock := toOnHandDTO(onHand)
		dtos[i].OnHand = &stock
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItem handles GET /api/items/{id}.
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	owner := OwnerFrom(ctx)
	item, err := h.Service.GetItem(ctx, owner, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	onHand, err := h.Service.OnHand(ctx, owner, id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dto := toItemDTO(item)
	stock := toOnHandDTO(onHand)
	dto.OnHand = &stock
	writeJSON(w, http.StatusOK, dto)
}

// UpdateItem handles PUT /api/items/{id}.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	var req ItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	item, err := h.Service.UpdateItem(r.Context(), OwnerFrom(r.Context()), id, h.itemInput(req))
	h.writeResult(w, r, http.StatusOK, toItemDTO(item), err)
}

// DeleteItem handles DELETE /api/items/{id}.
func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	h.writeDeleted(w, r, h.Service.DeleteItem(r.Context(), OwnerFrom(r.Context()), id))
}

// GetOnHand handles GET /api/items/{id}/on-hand.
func (h *Handler) GetOnHand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	onHand, err := h.Service.OnHand(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOnHandDTO(onHand))
}

// ListItemUsage handles GET /api/items/{id}/usage.
func (h *Handler) ListItemUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	h.listUsage(w, r, ledger.UsageFilter{ItemID: id})
}

// EnsureWaterItem handles POST /api/items/water.
func (h *Handler) EnsureWaterItem(w http.ResponseWriter, r *http.Request) {
	var req WaterRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	item, err := h.Service.EnsureWaterItem(r.Context(), OwnerFrom(r.Context()), req.UnitCost)
	h.writeResult(w, r, http.StatusOK, toItemDTO(item), err)
}

// =============================================================================
// LOT ENDPOINTS
// =============================================================================

func lotInput(req LotRequest) (ledger.LotInput, error) {
	received, err := parseDate("received_at", req.ReceivedAt)
	if err != nil {
		return ledger.LotInput{}, err
	}
	return ledger.LotInput{
		LotCode:    req.LotCode,
		Quantity:   req.Quantity,
		UnitCost:   ptrNull(req.UnitCost),
		ReceivedAt: received,
	}, nil
}

// ReceiveLot handles POST /api/items/{id}/lots.
func (h *Handler) ReceiveLot(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	var req LotRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := lotInput(req)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	lot, err := h.Service.ReceiveLot(r.Context(), OwnerFrom(r.Context()), itemID, in)
	h.writeResult(w, r, http.StatusCreated, toLotDTO(lot), err)
}

// ListLots handles GET /api/items/{id}/lots.
func (h *Handler) ListLots(w http.ResponseWriter, r *http.Request) {
	itemID, ok := pathID[ledger.ItemID](w, r)
	if !ok {
		return
	}
	lots, err := h.Service.ListLots(r.Context(), OwnerFrom(r.Context()), itemID)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]LotDTO, len(lots))
	for i, l := range lots {
		dtos[i] = toLotDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpdateLot handles PUT /api/lots/{id}.
func (h *Handler) UpdateLot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.LotID](w, r)
	if !ok {
		return
	}
	var req LotRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := lotInput(req)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	lot, err := h.Service.UpdateLot(r.Context(), OwnerFrom(r.Context()), id, in)
	h.writeResult(w, r, http.StatusOK, toLotDTO(lot), err)
}

// DeleteLot handles DELETE /api/lots/{id}.
func (h *Handler) DeleteLot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.LotID](w, r)
	if !ok {
		return
	}
	h.writeDeleted(w, r, h.Service.DeleteLot(r.Context(), OwnerFrom(r.Context()), id))
}

// =============================================================================
// USAGE ENDPOINTS
// =============================================================================

// RecordUsage handles POST /api/usage.
//
// A committed usage is always 201, with status "partial_failure" and the
// failed steps when the diary link or cost recompute did not finish.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req RecordUsageRequest
	if !h.decode(w, r, &req) {
		return
	}
	in := ledger.UsageInput{
		ItemID:   ledger.ItemID(req.ItemID),
		BatchID:  ledger.BatchID(req.BatchID),
		Quantity: req.Quantity,
		Note:     req.Note,
		UsedAt:   req.UsedAt,
	}
	result, err := h.Service.RecordUsage(r.Context(), OwnerFrom(r.Context()), in)

	var pf *ledger.PartialFailureError
	if err != nil && !errors.As(err, &pf) {
		h.writeLedgerError(w, r, err)
		return
	}

	resp := RecordUsageResponse{Status: string(result.State), Usage: toUsageDTO(result.Usage)}
	if result.Diary != nil {
		d := toDiaryDTO(*result.Diary)
		resp.Diary = &d
	}
	if pf == nil || !pf.Failed(ledger.StepRecomputeCost) {
		total := money(result.CTPTotal)
		resp.CTPTotal = &total
	}
	if pf != nil {
		resp.FailedSteps = failedSteps(pf)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// DeleteUsage handles DELETE /api/usage/{id}. Deleting a missing usage
// succeeds with deleted=false.
func (h *Handler) DeleteUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.UsageID](w, r)
	if !ok {
		return
	}
	result, err := h.Service.DeleteUsage(r.Context(), OwnerFrom(r.Context()), id)
	resp := DeleteUsageResponse{
		ID:                 string(id),
		Deleted:            result.Deleted,
		DiaryRemoved:       result.DiaryRemoved,
		DiaryCleanupFailed: result.DiaryCleanupFailed,
	}
	if err == nil {
		total := money(result.CTPTotal)
		resp.CTPTotal = &total
	}
	h.writeResult(w, r, http.StatusOK, resp, err)
}

// RetryDiaryLink handles POST /api/usage/{id}/diary.
func (h *Handler) RetryDiaryLink(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.UsageID](w, r)
	if !ok {
		return
	}
	entry, err := h.Service.RetryDiaryLink(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiaryDTO(entry))
}

func (h *Handler) listUsage(w http.ResponseWriter, r *http.Request, filter ledger.UsageFilter) {
	lines, err := h.Service.ListUsage(r.Context(), OwnerFrom(r.Context()), filter)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]UsageLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = UsageLineDTO{
			UsageDTO:  toUsageDTO(l.UsageRecord),
			ItemName:  l.ItemName,
			Unit:      l.Unit,
			BatchName: l.BatchName,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// BATCH ENDPOINTS
// =============================================================================

func batchInput(req BatchRequest) (ledger.BatchInput, error) {
	start, err := parseDate("start_date", req.StartDate)
	if err != nil {
		return ledger.BatchInput{}, err
	}
	return ledger.BatchInput{
		Name:      req.Name,
		Stage:     ledger.Stage(req.Stage),
		StartDate: start,
		Strain:    req.Strain,
		Breeder:   req.Breeder,
		Notes:     req.Notes,
	}, nil
}

// CreateBatch handles POST /api/batches.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := batchInput(req)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	batch, err := h.Service.CreateBatch(r.Context(), OwnerFrom(r.Context()), in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchDTO(batch))
}

// ListBatches handles GET /api/batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.Service.ListBatches(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]BatchDTO, len(batches))
	for i, b := range batches {
		dtos[i] = toBatchDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBatch handles GET /api/batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	batch, err := h.Service.GetBatch(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// UpdateBatch handles PUT /api/batches/{id}.
func (h *Handler) UpdateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	var req BatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := batchInput(req)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	batch, err := h.Service.UpdateBatch(r.Context(), OwnerFrom(r.Context()), id, in)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// RecordHarvest handles POST /api/batches/{id}/harvest.
func (h *Handler) RecordHarvest(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	var req HarvestRequest
	if !h.decode(w, r, &req) {
		return
	}
	harvested, err := parseDate("harvested_at", req.HarvestedAt)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	batch, err := h.Service.RecordHarvest(r.Context(), OwnerFrom(r.Context()), id, ledger.HarvestInput{
		HarvestedAt: harvested,
		YieldBud:    ptrNull(req.YieldBud),
		YieldTrim:   ptrNull(req.YieldTrim),
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchDTO(batch))
}

// DeleteBatch handles DELETE /api/batches/{id}.
func (h *Handler) DeleteBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	h.writeDeleted(w, r, h.Service.DeleteBatch(r.Context(), OwnerFrom(r.Context()), id))
}

// ListBatchUsage handles GET /api/batches/{id}/usage.
func (h *Handler) ListBatchUsage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	h.listUsage(w, r, ledger.UsageFilter{BatchID: id})
}

// RecomputeBatch handles POST /api/batches/{id}/recompute.
func (h *Handler) RecomputeBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	total, err := h.Service.RecomputeCost(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecomputeResponse{BatchID: string(id), CTPTotal: money(total)})
}

// =============================================================================
// COST ENDPOINTS
// =============================================================================

// AddCost handles POST /api/batches/{id}/costs.
func (h *Handler) AddCost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	var req CostRequest
	if !h.decode(w, r, &req) {
		return
	}
	entry, err := h.Service.AddCost(r.Context(), OwnerFrom(r.Context()), id, ledger.CostInput{
		CostType:    req.CostType,
		Description: req.Description,
		Amount:      req.Amount,
	})
	h.writeResult(w, r, http.StatusCreated, toCostDTO(entry), err)
}

// ListCosts handles GET /api/batches/{id}/costs.
func (h *Handler) ListCosts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	entries, err := h.Service.ListCosts(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]CostDTO, len(entries))
	for i, c := range entries {
		dtos[i] = toCostDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteCost handles DELETE /api/costs/{id}.
func (h *Handler) DeleteCost(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.CostEntryID](w, r)
	if !ok {
		return
	}
	h.writeDeleted(w, r, h.Service.DeleteCost(r.Context(), OwnerFrom(r.Context()), id))
}

// =============================================================================
// DIARY ENDPOINTS
// =============================================================================

// AddDiaryEntry handles POST /api/batches/{id}/diary.
func (h *Handler) AddDiaryEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	var req DiaryRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := parseDate("entry_date", req.EntryDate)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	entry, err := h.Service.AddDiaryEntry(r.Context(), OwnerFrom(r.Context()), id, ledger.DiaryInput{
		Note:      req.Note,
		EntryDate: date,
	})
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDiaryDTO(entry))
}

// ListDiary handles GET /api/batches/{id}/diary.
func (h *Handler) ListDiary(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.BatchID](w, r)
	if !ok {
		return
	}
	entries, err := h.Service.ListDiary(r.Context(), OwnerFrom(r.Context()), id)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	dtos := make([]DiaryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toDiaryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// DeleteDiaryEntry handles DELETE /api/diary/{id}.
func (h *Handler) DeleteDiaryEntry(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID[ledger.DiaryEntryID](w, r)
	if !ok {
		return
	}
	h.writeDeleted(w, r, h.Service.DeleteDiaryEntry(r.Context(), OwnerFrom(r.Context()), id))
}

// =============================================================================
// PROFILE ENDPOINTS
// =============================================================================

// GetProfile handles GET /api/profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.GetProfile(r.Context(), OwnerFrom(r.Context()))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileDTO(p))
}

// UpdateProfile handles PUT /api/profile.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req ProfileRequest
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Service.UpdateProfile(r.Context(), OwnerFrom(r.Context()), ledger.ProfileInput{
		WaterCostPerUnit:      ptrNull(req.WaterCostPerUnit),
		ElectricityCostPerKWh: ptrNull(req.ElectricityCostPerKWh),
		UnitSystem:            ledger.UnitSystem(req.UnitSystem),
		TemperatureUnit:       ledger.TemperatureUnit(req.TemperatureUnit),
	})
	h.writeResult(w, r, http.StatusOK, toProfileDTO(p), err)
}
