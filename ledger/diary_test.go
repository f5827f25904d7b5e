package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComposeUsageNote(t *testing.T) {
	tests := []struct {
		name     string
		quantity string
		unit     string
		item     string
		note     string
		want     string
	}{
		{"plain", "50", "mL", "CalMag", "", "Applied 50 mL of CalMag"},
		{"with note", "2.5", "g", "Kelp", "foliar", "Applied 2.5 g of Kelp\n\nfoliar"},
		{"blank note", "1", "L", "Water", "   ", "Applied 1 L of Water"},
		{"no unit", "3", "", "Clones", "", "Applied 3 of Clones"},
		{"trims names", "10", " ml ", "  Bloom  A ", "", "Applied 10 ml of Bloom A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComposeUsageNote(d(tt.quantity), tt.unit, tt.item, tt.note))
		})
	}
}
