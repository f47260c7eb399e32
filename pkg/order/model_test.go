package order

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrder_UnmarshalKeepsKeyOrder(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"Mocaccino": 1, "Americano": 2, "Cappuccino": 3}`), &o))

	assert.Equal(t, Order{
		{Name: "Mocaccino", Quantity: 1},
		{Name: "Americano", Quantity: 2},
		{Name: "Cappuccino", Quantity: 3},
	}, o)
}

func TestOrder_UnmarshalMergesNamesIgnoringCase(t *testing.T) {
	var o Order
	require.NoError(t, json.Unmarshal([]byte(`{"Americano": 1, "Lates": 1, "americano": 4}`), &o))

	assert.Equal(t, Order{
		{Name: "Americano", Quantity: 5},
		{Name: "Lates", Quantity: 1},
	}, o)
}

func TestOrder_UnmarshalEmptyForms(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"order": null, "payment": {"totalAmount": 1000}}`), &req))
	assert.True(t, req.Order.Empty())
	assert.Equal(t, 1000, req.Payment.TotalAmount)

	require.NoError(t, json.Unmarshal([]byte(`{"order": {}}`), &req))
	assert.True(t, req.Order.Empty())
}

func TestOrder_UnmarshalRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"array":          `["Americano"]`,
		"string value":   `{"Americano": "two"}`,
		"fractional qty": `{"Americano": 1.5}`,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			var o Order
			assert.Error(t, json.Unmarshal([]byte(input), &o))
		})
	}
}

func TestOrder_MarshalRoundTripKeepsOrder(t *testing.T) {
	o := Order{{Name: "Lates", Quantity: 2}, {Name: "Americano", Quantity: 1}}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Equal(t, `{"Lates":2,"Americano":1}`, string(data))
}

func TestRequest_DecodesPayment(t *testing.T) {
	body := `{"order": {"Americano": 1}, "payment": {"totalAmount": 1000, "coins": [500, 500], "bills": []}}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(body), &req))

	assert.Equal(t, Order{{Name: "Americano", Quantity: 1}}, req.Order)
	assert.Equal(t, Payment{TotalAmount: 1000, Coins: []int{500, 500}, Bills: []int{}}, req.Payment)
}
