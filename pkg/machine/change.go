package machine

import (
	"fmt"
	"sort"
	"strings"

	"vending/pkg/inventory"
)

// Breakdown maps a denomination value to the number of units handed out.
type Breakdown map[int]int

// Total is the amount of money the breakdown represents.
func (b Breakdown) Total() int {
	total := 0
	for value, count := range b {
		total += value * count
	}
	return total
}

// Values lists the denominations in the breakdown, highest first.
func (b Breakdown) Values() []int {
	values := make([]int, 0, len(b))
	for value := range b {
		values = append(values, value)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(values)))
	return values
}

// MakeChange allocates amount from the reserve greedily, largest dispensable denomination first,
// never using more units than the reserve holds. It does not backtrack: when the greedy pass
// leaves a remainder the allocation fails, even if some other combination would have worked.
// Bills are never dispensed.
func MakeChange(amount int, reserve []inventory.Denomination) (Breakdown, bool) {
	if amount == 0 {
		return Breakdown{}, true
	}
	if amount < 0 {
		return nil, false
	}

	dispensable := make([]inventory.Denomination, 0, len(reserve))
	for _, d := range reserve {
		if d.Dispensable() && d.Quantity > 0 {
			dispensable = append(dispensable, d)
		}
	}
	sort.SliceStable(dispensable, func(i, j int) bool { return dispensable[i].Value > dispensable[j].Value })

	remaining := amount
	breakdown := Breakdown{}
	for _, d := range dispensable {
		if remaining == 0 {
			break
		}
		count := min(remaining/d.Value, d.Quantity)
		if count > 0 {
			breakdown[d.Value] += count
			remaining -= count * d.Value
		}
	}
	if remaining != 0 {
		return nil, false
	}
	return breakdown, true
}

// FormatChangeMessage describes the change handed out, highest denomination first.
func FormatChangeMessage(amount int, breakdown Breakdown) string {
	if amount == 0 {
		return msgNoChangeDue
	}
	parts := make([]string, 0, len(breakdown))
	for _, value := range breakdown.Values() {
		count := breakdown[value]
		noun := "coin"
		if count > 1 {
			noun = "coins"
		}
		parts = append(parts, fmt.Sprintf("%d %s of %d", count, noun, value))
	}
	return fmt.Sprintf("your change is %d. breakdown: %s", amount, strings.Join(parts, ", "))
}
