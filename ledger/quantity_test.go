package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReplay(t *testing.T) {
	lots := []Lot{{Quantity: d("500")}, {Quantity: d("250.5")}}
	usages := []UsageRecord{{Quantity: d("50")}, {Quantity: d("0.5")}}
	assert.Equal(t, "700", replay(lots, usages).String())
	assert.True(t, replay(nil, nil).IsZero())
}

func TestCanConsume(t *testing.T) {
	strict := &QuantityLedger{}
	loose := &QuantityLedger{AllowNegativeStock: true}
	have := OnHand{Quantity: d("3"), Unit: "L"}

	assert.True(t, strict.CanConsume(have, d("3")))
	assert.False(t, strict.CanConsume(have, d("3.000001")))
	assert.True(t, loose.CanConsume(have, d("100")))
	assert.True(t, strict.CanConsume(OnHand{Unbounded: true}, d("1e9")))
	assert.False(t, strict.CanConsume(OnHand{Quantity: d("-1")}, d("0")))
}

func TestOnHandString(t *testing.T) {
	assert.Equal(t, "unbounded", OnHand{Unbounded: true, Unit: "gal"}.String())
	assert.Equal(t, "450 mL", OnHand{Quantity: d("450"), Unit: "mL"}.String())
	assert.Equal(t, "2", OnHand{Quantity: d("2")}.String())
}
