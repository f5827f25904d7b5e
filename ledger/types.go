/*
Package ledger provides the inventory consumption and cost-accounting core.

PURPOSE:
  Records usage of inventory items against plant batches and keeps every
  derived number consistent with the records it is derived from: the
  on-hand quantity of an item, the diary trail of a usage event, and the
  cost-to-produce (CTP) total of a batch.

KEY CONCEPTS IN THIS FILE (types.go):
  - InventoryItem: something that is consumed (nutrients, media, water)
  - Lot: a discrete receipt of stock for an item, with its own unit cost
  - UsageRecord: one consumption event (item, batch, quantity, when)
  - PlantBatch: the aggregation root that costs are attributed to
  - DiaryEntry: human readable trail entry, optionally linked to a usage
  - CostEntry: explicit cost outside of usage (seeds, electricity)

DESIGN PRINCIPLES:
  1. Derivation: on-hand and CTP are recomputed from source records,
     never patched incrementally
  2. Precision: quantities and money use decimal.Decimal, never float64
  3. Ownership: every record carries its owner and every store call is
     scoped to one owner

SEE ALSO:
  - quantity.go: on-hand derivation
  - usage.go: usage validation and persistence
  - cost.go: CTP aggregation
  - diary.go: usage to diary linking
  - service.go: orchestration of the above
*/
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITIES & MONEY
// =============================================================================

// MinLotQuantity is the smallest quantity a lot may be received with.
var MinLotQuantity = decimal.New(1, -6)

// MoneyPlaces is the number of decimal places stored for money totals.
const MoneyPlaces = 2

// RoundMoney rounds a money value to MoneyPlaces, half-up.
// Money in this package is never negative, so decimal's half-away-from-zero
// rounding is half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// OnHand is the current available stock of an item.
type OnHand struct {
	Unbounded bool
	Quantity  decimal.Decimal
	Unit      string
}

func (o OnHand) String() string {
	if o.Unbounded {
		return "unbounded"
	}
	return strings.TrimSpace(o.Quantity.String() + " " + o.Unit)
}

// =============================================================================
// INVENTORY
// =============================================================================

// InventoryItem is a consumable owned by one user.
//
// A persistent item (IsPersistent) has unbounded, untracked supply. It never
// has lots and its UnitCost is the configured price per unit.
type InventoryItem struct {
	ID           ItemID
	OwnerID      UserID
	Name         string
	Unit         string
	Category     string
	IsPersistent bool
	UnitCost     decimal.NullDecimal
	CreatedAt    time.Time
}

// Lot is a stock receipt for an item.
type Lot struct {
	ID         LotID
	ItemID     ItemID
	OwnerID    UserID
	LotCode    string
	Quantity   decimal.Decimal
	UnitCost   decimal.NullDecimal
	ReceivedAt *time.Time
	CreatedAt  time.Time
}

// UsageRecord is a single consumption event. Append-only except for delete.
type UsageRecord struct {
	ID        UsageID
	ItemID    ItemID
	BatchID   BatchID
	OwnerID   UserID
	Quantity  decimal.Decimal
	Note      string
	UsedAt    time.Time
	CreatedAt time.Time
}

// UsageFilter selects usage records by item or by batch.
type UsageFilter struct {
	ItemID  ItemID
	BatchID BatchID
}

// =============================================================================
// PLANT BATCHES
// =============================================================================

// Stage is the growth stage of a plant batch.
type Stage string

const (
	StageSeedling Stage = "seedling"
	StageVeg      Stage = "veg"
	StageFlower   Stage = "flower"
	StageDry      Stage = "dry"
	StageCure     Stage = "cure"
)

// Stages lists the stages in growth order.
var Stages = []Stage{StageSeedling, StageVeg, StageFlower, StageDry, StageCure}

func (s Stage) Valid() bool {
	for _, st := range Stages {
		if s == st {
			return true
		}
	}
	return false
}

// PlantBatch is a plant or group of plants grown together.
//
// INVARIANTS:
//   - YieldBud and YieldTrim are only set when HarvestedAt is set.
//   - CTPTotal >= 0 and equals the cost attributable to the batch.
type PlantBatch struct {
	ID          BatchID
	OwnerID     UserID
	Name        string
	Stage       Stage
	StartDate   *time.Time
	Strain      string
	Breeder     string
	Notes       string
	HarvestedAt *time.Time
	YieldBud    decimal.NullDecimal
	YieldTrim   decimal.NullDecimal
	CTPTotal    decimal.Decimal
	CreatedAt   time.Time
}

func (b PlantBatch) Harvested() bool { return b.HarvestedAt != nil }

func (b PlantBatch) validateHarvest() error {
	if b.HarvestedAt == nil && (b.YieldBud.Valid || b.YieldTrim.Valid) {
		return &ValidationError{Field: "harvested_at", Message: "yields require a harvest date"}
	}
	if b.YieldBud.Valid && b.YieldBud.Decimal.IsNegative() {
		return &ValidationError{Field: "yield_bud", Message: "must be >= 0"}
	}
	if b.YieldTrim.Valid && b.YieldTrim.Decimal.IsNegative() {
		return &ValidationError{Field: "yield_trim", Message: "must be >= 0"}
	}
	return nil
}

// =============================================================================
// DIARY & COSTS
// =============================================================================

// DiaryEntry is a note on a batch. UsageLinkID is set only for entries
// generated from a usage record; at most one entry links to a given usage.
type DiaryEntry struct {
	ID          DiaryEntryID
	BatchID     BatchID
	OwnerID     UserID
	Note        string
	EntryDate   time.Time
	UsageLinkID *UsageID
	CreatedAt   time.Time
}

// CostEntry is an explicit cost attributed to a batch.
type CostEntry struct {
	ID          CostEntryID
	BatchID     BatchID
	OwnerID     UserID
	CostType    string
	Description string
	Amount      decimal.Decimal
	CreatedAt   time.Time
}

// UnitSystem is the display unit system chosen by a user.
type UnitSystem string

const (
	UnitSystemMetric   UnitSystem = "metric"
	UnitSystemImperial UnitSystem = "imperial"
)

// TemperatureUnit is the display temperature unit chosen by a user.
type TemperatureUnit string

const (
	Celsius    TemperatureUnit = "C"
	Fahrenheit TemperatureUnit = "F"
)

// Profile holds per-user pricing and display settings.
type Profile struct {
	OwnerID               UserID
	WaterCostPerUnit      decimal.NullDecimal
	ElectricityCostPerKWh decimal.NullDecimal
	UnitSystem            UnitSystem
	TemperatureUnit       TemperatureUnit
	UpdatedAt             time.Time
}

// DefaultProfile is the profile of a user who never saved settings.
func DefaultProfile(owner UserID) Profile {
	return Profile{OwnerID: owner, UnitSystem: UnitSystemMetric, TemperatureUnit: Celsius}
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nonNegative(field string, d decimal.NullDecimal) error {
	if d.Valid && d.Decimal.IsNegative() {
		return &ValidationError{Field: field, Message: fmt.Sprintf("must be >= 0, got %s", d.Decimal)}
	}
	return nil
}
