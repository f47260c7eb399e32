package inventory

import (
	"fmt"
	"strings"
)

// BillValue is the only bill the machine accepts; the reserve tracks it but never dispenses it.
const BillValue = 1000

// acceptedCoins lists every value the coin slot recognises, 1000 coins included.
var acceptedCoins = [...]int{25, 50, 100, 500, 1000}

// Item is a purchasable product. Name is the case-insensitive key and Price is expressed in the
// smallest currency unit.
type Item struct {
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
}

// Validate checks the invariants every stored item must satisfy.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidItem)
	}
	if i.Price <= 0 {
		return fmt.Errorf("%w: price of %s must be positive", ErrInvalidItem, i.Name)
	}
	if i.Quantity < 0 {
		return fmt.Errorf("%w: quantity of %s must not be negative", ErrInvalidItem, i.Name)
	}
	return nil
}

// Denomination is a coin or bill value with the number of units held in the change reserve.
type Denomination struct {
	Value    int `json:"denomination"`
	Quantity int `json:"quantity"`
}

// Validate rejects values outside the accepted set and negative reserves.
func (d Denomination) Validate() error {
	if !IsAcceptedCoin(d.Value) {
		return fmt.Errorf("%w: %d is not an accepted value", ErrInvalidDenomination, d.Value)
	}
	if d.Quantity < 0 {
		return fmt.Errorf("%w: quantity of %d must not be negative", ErrInvalidDenomination, d.Value)
	}
	return nil
}

// Dispensable reports whether the machine may hand this denomination out as change.
func (d Denomination) Dispensable() bool {
	return IsDispensable(d.Value)
}

// AcceptedCoins returns a copy of the accepted coin values in ascending order.
func AcceptedCoins() []int {
	out := make([]int, len(acceptedCoins))
	copy(out, acceptedCoins[:])
	return out
}

// IsAcceptedCoin reports whether value belongs to the accepted coin set.
func IsAcceptedCoin(value int) bool {
	for _, v := range acceptedCoins {
		if v == value {
			return true
		}
	}
	return false
}

// IsDispensable reports whether value can be paid out as change.
func IsDispensable(value int) bool {
	return value != BillValue && IsAcceptedCoin(value)
}
