package order

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Line describes a single product and the quantity requested.
type Line struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Order lists the requested products in the order the customer asked for them.
//
// On the wire an order is a JSON object mapping product names to quantities; the key order of
// the document is kept. Names that differ only by case are folded into the first occurrence.
type Order []Line

// Add appends a line, merging it into an existing line with the same case-insensitive name.
func (o Order) Add(name string, quantity int) Order {
	for i := range o {
		if strings.EqualFold(o[i].Name, name) {
			o[i].Quantity += quantity
			return o
		}
	}
	return append(o, Line{Name: name, Quantity: quantity})
}

// Empty reports whether there is nothing to sell.
func (o Order) Empty() bool {
	return len(o) == 0
}

// UnmarshalJSON decodes {"name": quantity, ...} preserving key order.
func (o *Order) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*o = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("order must be a JSON object of product quantities")
	}

	var lines Order
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return errors.New("order keys must be product names")
		}
		var quantity int
		if err := dec.Decode(&quantity); err != nil {
			return fmt.Errorf("invalid quantity for %s: %w", name, err)
		}
		lines = lines.Add(name, quantity)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*o = lines
	return nil
}

// MarshalJSON renders the order back into its object form, keeping line order.
func (o Order) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, line := range o {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(line.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", line.Quantity)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Payment is what the customer claims to tender alongside the instruments actually inserted.
type Payment struct {
	TotalAmount int   `json:"totalAmount"`
	Coins       []int `json:"coins"`
	Bills       []int `json:"bills"`
}

// Request pairs an order with its payment, as submitted to the machine.
type Request struct {
	Order   Order   `json:"order"`
	Payment Payment `json:"payment"`
}
