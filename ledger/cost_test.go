package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestDerivedUnitCost(t *testing.T) {
	tests := []struct {
		name string
		item InventoryItem
		lots []Lot
		want string
	}{
		{
			name: "weighted average of costed lots",
			lots: []Lot{
				{Quantity: d("100"), UnitCost: decimal.NewNullDecimal(d("0.10"))},
				{Quantity: d("300"), UnitCost: decimal.NewNullDecimal(d("0.30"))},
			},
			want: "0.25",
		},
		{
			name: "uncosted lots are ignored",
			lots: []Lot{
				{Quantity: d("100"), UnitCost: decimal.NewNullDecimal(d("0.02"))},
				{Quantity: d("900")},
			},
			want: "0.02",
		},
		{
			name: "item price without costed lots",
			item: InventoryItem{IsPersistent: true, UnitCost: decimal.NewNullDecimal(d("0.005"))},
			want: "0.005",
		},
		{
			name: "nothing priced",
			lots: []Lot{{Quantity: d("5")}},
			want: "0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DerivedUnitCost(tt.item, tt.lots)
			assert.True(t, got.Equal(d(tt.want)), "got %s, want %s", got, tt.want)
		})
	}
}

func TestTotal_RoundsOnlyTheFinalSum(t *testing.T) {
	// Rounding each usage (0.3335 -> 0.33) would give 0.99.
	usages := []UsageRecord{
		{ItemID: "a", Quantity: d("1")},
		{ItemID: "a", Quantity: d("1")},
		{ItemID: "a", Quantity: d("1")},
	}
	unitCosts := map[ItemID]decimal.Decimal{"a": d("0.3335")}

	total := Total(usages, unitCosts, []CostEntry{{Amount: d("0.004")}})

	assert.Equal(t, "1.00", total.StringFixed(MoneyPlaces))
}

func TestRoundMoney_HalfUp(t *testing.T) {
	assert.Equal(t, "0.13", RoundMoney(d("0.125")).StringFixed(2))
	assert.Equal(t, "0.12", RoundMoney(d("0.1249")).StringFixed(2))
	assert.Equal(t, "13.35", RoundMoney(d("13.345")).StringFixed(2))
}
