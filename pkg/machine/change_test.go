package machine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"vending/pkg/inventory"
)

func fullReserve() []inventory.Denomination {
	return []inventory.Denomination{
		{Value: 1000, Quantity: 5},
		{Value: 500, Quantity: 20},
		{Value: 100, Quantity: 30},
		{Value: 50, Quantity: 50},
		{Value: 25, Quantity: 25},
	}
}

func TestMakeChange(t *testing.T) {
	tests := []struct {
		name    string
		amount  int
		reserve []inventory.Denomination
		want    Breakdown
		ok      bool
	}{
		{name: "zero amount needs no coins", amount: 0, reserve: nil, want: Breakdown{}, ok: true},
		{name: "single coin", amount: 50, reserve: fullReserve(), want: Breakdown{50: 1}, ok: true},
		{name: "mixed coins", amount: 1900, reserve: fullReserve(), want: Breakdown{500: 3, 100: 4}, ok: true},
		{name: "quarter coins", amount: 75, reserve: fullReserve(), want: Breakdown{50: 1, 25: 1}, ok: true},
		{name: "bills are never dispensed", amount: 1000, reserve: fullReserve(), want: Breakdown{500: 2}, ok: true},
		{name: "limited by reserve", amount: 1000, reserve: []inventory.Denomination{
			{Value: 500, Quantity: 1}, {Value: 100, Quantity: 5},
		}, want: Breakdown{500: 1, 100: 5}, ok: true},
		{name: "unrepresentable amount", amount: 30, reserve: fullReserve(), ok: false},
		{name: "reserve exhausted", amount: 600, reserve: []inventory.Denomination{
			{Value: 500, Quantity: 1}, {Value: 50, Quantity: 1},
		}, ok: false},
		{name: "only bills in reserve", amount: 1000, reserve: []inventory.Denomination{
			{Value: 1000, Quantity: 3},
		}, ok: false},
		{name: "greedy does not backtrack", amount: 75, reserve: []inventory.Denomination{
			{Value: 50, Quantity: 1}, {Value: 25, Quantity: 0},
		}, ok: false},
		{name: "negative amount", amount: -25, reserve: fullReserve(), ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MakeChange(tt.amount, tt.reserve)
			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Nil(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.amount, got.Total())
		})
	}
}

func TestMakeChange_IsDeterministic(t *testing.T) {
	reserve := []inventory.Denomination{
		{Value: 25, Quantity: 3}, {Value: 100, Quantity: 2}, {Value: 500, Quantity: 1}, {Value: 50, Quantity: 4},
	}
	first, ok := MakeChange(875, reserve)
	assert.True(t, ok)
	for i := 0; i < 20; i++ {
		again, ok := MakeChange(875, reserve)
		assert.True(t, ok)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, Breakdown{500: 1, 100: 2, 50: 3, 25: 1}, first)
}

func TestMakeChange_DoesNotMutateReserve(t *testing.T) {
	reserve := fullReserve()
	before := fullReserve()

	_, ok := MakeChange(1975, reserve)
	assert.True(t, ok)
	assert.Equal(t, before, reserve)
}

func TestFormatChangeMessage(t *testing.T) {
	assert.Equal(t, "purchase complete, no change due", FormatChangeMessage(0, Breakdown{}))
	assert.Equal(t, "your change is 50. breakdown: 1 coin of 50", FormatChangeMessage(50, Breakdown{50: 1}))
	assert.Equal(t,
		"your change is 1975. breakdown: 3 coins of 500, 4 coins of 100, 1 coin of 50, 1 coin of 25",
		FormatChangeMessage(1975, Breakdown{25: 1, 100: 4, 50: 1, 500: 3}),
	)
}
