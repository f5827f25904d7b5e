/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

NUMBERS:
  Quantities and money are decimals. Responses encode them as JSON
  strings ("12.50") so no precision is lost in float64 clients. Requests
  accept either a string or a bare number.

DATES:
  Calendar dates (start_date, received_at, entry_date, harvested_at) use
  "2006-01-02". Timestamps (used_at, created_at) use RFC 3339.

VALIDATION:
  Request types carry validator/v10 tags for shape checks (required,
  enums, lengths). Domain rules (quantity > 0, stock cover, harvest
  group) stay in the ledger package and come back as ValidationError.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse, PartialFailureDTO
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/Cronanaut/veronagrow/ledger"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// =============================================================================
// ITEMS
// =============================================================================

// ItemDTO represents an inventory item in API responses.
type ItemDTO struct {
	ID           string           `json:"id"`
	Name         string           `json:"name"`
	Unit         string           `json:"unit"`
	Category     string           `json:"category,omitempty"`
	IsPersistent bool             `json:"is_persistent"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
	OnHand       *OnHandDTO       `json:"on_hand,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ItemRequest is the body of POST /api/items and PUT /api/items/{id}.
type ItemRequest struct {
	Name         string           `json:"name" validate:"required,max=200"`
	Unit         string           `json:"unit" validate:"required,max=32"`
	Category     string           `json:"category" validate:"max=100"`
	IsPersistent bool             `json:"is_persistent"`
	UnitCost     *decimal.Decimal `json:"unit_cost"`
}

// WaterRequest is the body of POST /api/items/water. It may be empty.
type WaterRequest struct {
	UnitCost *decimal.Decimal `json:"unit_cost"`
}

// OnHandDTO is the available stock of an item.
type OnHandDTO struct {
	Unbounded bool             `json:"unbounded"`
	Quantity  *decimal.Decimal `json:"quantity"`
	Unit      string           `json:"unit"`
	Display   string           `json:"display"`
}

// =============================================================================
// LOTS
// =============================================================================

// LotDTO represents a stock receipt.
type LotDTO struct {
	ID         string           `json:"id"`
	ItemID     string           `json:"item_id"`
	LotCode    string           `json:"lot_code"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitCost   *decimal.Decimal `json:"unit_cost"`
	ReceivedAt *string          `json:"received_at"`
	CreatedAt  time.Time        `json:"created_at"`
}

// LotRequest is the body of POST /api/items/{id}/lots and PUT /api/lots/{id}.
type LotRequest struct {
	LotCode    string           `json:"lot_code" validate:"required,max=100"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitCost   *decimal.Decimal `json:"unit_cost"`
	ReceivedAt *string          `json:"received_at" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// USAGE
// =============================================================================

// UsageDTO represents a usage record.
type UsageDTO struct {
	ID        string          `json:"id"`
	ItemID    string          `json:"item_id"`
	BatchID   string          `json:"batch_id"`
	Quantity  decimal.Decimal `json:"quantity"`
	Note      string          `json:"note"`
	UsedAt    time.Time       `json:"used_at"`
	CreatedAt time.Time       `json:"created_at"`
}

// UsageLineDTO is a usage record in a history listing.
type UsageLineDTO struct {
	UsageDTO
	ItemName  string `json:"item_name"`
	Unit      string `json:"unit"`
	BatchName string `json:"batch_name"`
}

// RecordUsageRequest is the body of POST /api/usage.
type RecordUsageRequest struct {
	ItemID   string          `json:"item_id" validate:"required"`
	BatchID  string          `json:"batch_id" validate:"required"`
	Quantity decimal.Decimal `json:"quantity"`
	Note     string          `json:"note" validate:"max=2000"`
	UsedAt   *time.Time      `json:"used_at"`
}

// RecordUsageResponse is the result of POST /api/usage. Status is
// "committed" or "partial_failure".
type RecordUsageResponse struct {
	Status      string          `json:"status"`
	Usage       UsageDTO        `json:"usage"`
	Diary       *DiaryDTO       `json:"diary"`
	CTPTotal    *string         `json:"ctp_total"`
	FailedSteps []FailedStepDTO `json:"failed_steps,omitempty"`
}

// DeleteUsageResponse is the result of DELETE /api/usage/{id}.
type DeleteUsageResponse struct {
	ID                 string  `json:"id"`
	Deleted            bool    `json:"deleted"`
	DiaryRemoved       bool    `json:"diary_removed"`
	DiaryCleanupFailed bool    `json:"diary_cleanup_failed"`
	CTPTotal           *string `json:"ctp_total"`
}

// =============================================================================
// BATCHES
// =============================================================================

// BatchDTO represents a plant batch.
type BatchDTO struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Stage       string           `json:"stage"`
	StartDate   *string          `json:"start_date"`
	Strain      string           `json:"strain,omitempty"`
	Breeder     string           `json:"breeder,omitempty"`
	Notes       string           `json:"notes,omitempty"`
	HarvestedAt *string          `json:"harvested_at"`
	YieldBud    *decimal.Decimal `json:"yield_bud"`
	YieldTrim   *decimal.Decimal `json:"yield_trim"`
	CTPTotal    string           `json:"ctp_total"`
	CreatedAt   time.Time        `json:"created_at"`
}

// BatchRequest is the body of POST /api/batches and PUT /api/batches/{id}.
type BatchRequest struct {
	Name      string  `json:"name" validate:"required,max=200"`
	Stage     string  `json:"stage" validate:"omitempty,oneof=seedling veg flower dry cure"`
	StartDate *string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	Strain    string  `json:"strain" validate:"max=200"`
	Breeder   string  `json:"breeder" validate:"max=200"`
	Notes     string  `json:"notes" validate:"max=5000"`
}

// HarvestRequest is the body of POST /api/batches/{id}/harvest. A null
// harvested_at clears the harvest.
type HarvestRequest struct {
	HarvestedAt *string          `json:"harvested_at" validate:"omitempty,datetime=2006-01-02"`
	YieldBud    *decimal.Decimal `json:"yield_bud"`
	YieldTrim   *decimal.Decimal `json:"yield_trim"`
}

// RecomputeResponse is the result of POST /api/batches/{id}/recompute.
type RecomputeResponse struct {
	BatchID  string `json:"batch_id"`
	CTPTotal string `json:"ctp_total"`
}

// =============================================================================
// COSTS & DIARY
// =============================================================================

// CostDTO represents an explicit batch cost.
type CostDTO struct {
	ID          string          `json:"id"`
	BatchID     string          `json:"batch_id"`
	CostType    string          `json:"cost_type"`
	Description string          `json:"description,omitempty"`
	Amount      decimal.Decimal `json:"amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

// CostRequest is the body of POST /api/batches/{id}/costs.
type CostRequest struct {
	CostType    string          `json:"cost_type" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=2000"`
	Amount      decimal.Decimal `json:"amount"`
}

// DiaryDTO represents a diary entry.
type DiaryDTO struct {
	ID          string    `json:"id"`
	BatchID     string    `json:"batch_id"`
	Note        string    `json:"note"`
	EntryDate   string    `json:"entry_date"`
	UsageLinkID *string   `json:"usage_link_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// DiaryRequest is the body of POST /api/batches/{id}/diary.
type DiaryRequest struct {
	Note      string  `json:"note" validate:"required,max=5000"`
	EntryDate *string `json:"entry_date" validate:"omitempty,datetime=2006-01-02"`
}

// =============================================================================
// PROFILE
// =============================================================================

// ProfileDTO represents the caller's settings.
type ProfileDTO struct {
	WaterCostPerUnit      *decimal.Decimal `json:"water_cost_per_unit"`
	ElectricityCostPerKWh *decimal.Decimal `json:"electricity_cost_per_kwh"`
	UnitSystem            string           `json:"unit_system"`
	TemperatureUnit       string           `json:"temperature_unit"`
}

// ProfileRequest is the body of PUT /api/profile.
type ProfileRequest struct {
	WaterCostPerUnit      *decimal.Decimal `json:"water_cost_per_unit"`
	ElectricityCostPerKWh *decimal.Decimal `json:"electricity_cost_per_kwh"`
	UnitSystem            string           `json:"unit_system" validate:"omitempty,oneof=metric imperial"`
	TemperatureUnit       string           `json:"temperature_unit" validate:"omitempty,oneof=C F"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func nullPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func ptrNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func datePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}

func money(d decimal.Decimal) string {
	return ledger.RoundMoney(d).StringFixed(ledger.MoneyPlaces)
}

func toItemDTO(item ledger.InventoryItem) ItemDTO {
	return ItemDTO{
		ID:           string(item.ID),
		Name:         item.Name,
		Unit:         item.Unit,
		Category:     item.Category,
		IsPersistent: item.IsPersistent,
		UnitCost:     nullPtr(item.UnitCost),
		CreatedAt:    item.CreatedAt,
	}
}

func toOnHandDTO(o ledger.OnHand) OnHandDTO {
	dto := OnHandDTO{Unbounded: o.Unbounded, Unit: o.Unit, Display: o.String()}
	if !o.Unbounded {
		q := o.Quantity
		dto.Quantity = &q
	}
	return dto
}

func toLotDTO(l ledger.Lot) LotDTO {
	return LotDTO{
		ID:         string(l.ID),
		ItemID:     string(l.ItemID),
		LotCode:    l.LotCode,
		Quantity:   l.Quantity,
		UnitCost:   nullPtr(l.UnitCost),
		ReceivedAt: datePtr(l.ReceivedAt),
		CreatedAt:  l.CreatedAt,
	}
}

func toUsageDTO(u ledger.UsageRecord) UsageDTO {
	return UsageDTO{
		ID:        string(u.ID),
		ItemID:    string(u.ItemID),
		BatchID:   string(u.BatchID),
		Quantity:  u.Quantity,
		Note:      u.Note,
		UsedAt:    u.UsedAt,
		CreatedAt: u.CreatedAt,
	}
}

func toBatchDTO(b ledger.PlantBatch) BatchDTO {
	return BatchDTO{
		ID:          string(b.ID),
		Name:        b.Name,
		Stage:       string(b.Stage),
		StartDate:   datePtr(b.StartDate),
		Strain:      b.Strain,
		Breeder:     b.Breeder,
		Notes:       b.Notes,
		HarvestedAt: datePtr(b.HarvestedAt),
		YieldBud:    nullPtr(b.YieldBud),
		YieldTrim:   nullPtr(b.YieldTrim),
		CTPTotal:    money(b.CTPTotal),
		CreatedAt:   b.CreatedAt,
	}
}

func toCostDTO(c ledger.CostEntry) CostDTO {
	return CostDTO{
		ID:          string(c.ID),
		BatchID:     string(c.BatchID),
		CostType:    c.CostType,
		Description: c.Description,
		Amount:      c.Amount,
		CreatedAt:   c.CreatedAt,
	}
}

func toDiaryDTO(e ledger.DiaryEntry) DiaryDTO {
	dto := DiaryDTO{
		ID:        string(e.ID),
		BatchID:   string(e.BatchID),
		Note:      e.Note,
		EntryDate: e.EntryDate.Format(DateLayout),
		CreatedAt: e.CreatedAt,
	}
	if e.UsageLinkID != nil {
		id := string(*e.UsageLinkID)
		dto.UsageLinkID = &id
	}
	return dto
}

func toProfileDTO(p ledger.Profile) ProfileDTO {
	return ProfileDTO{
		WaterCostPerUnit:      nullPtr(p.WaterCostPerUnit),
		ElectricityCostPerKWh: nullPtr(p.ElectricityCostPerKWh),
		UnitSystem:            string(p.UnitSystem),
		TemperatureUnit:       string(p.TemperatureUnit),
	}
}
