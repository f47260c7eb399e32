package machine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vending/pkg/inventory"
	"vending/pkg/order"
)

// TxStore is the storage surface the engine needs: lookups plus an atomic write scope.
// *inventory.Repository satisfies it.
type TxStore interface {
	inventory.Store
	WithinTx(ctx context.Context, fn func(inventory.Store) error) error
}

// Recorder receives the outcome of every processed transaction.
type Recorder interface {
	ObserveTransaction(outcome string, change int)
}

// Result is what the machine reports back for one purchase attempt.
type Result struct {
	ID              string
	Success         bool
	Kind            Kind
	Message         string
	ChangeAmount    int
	ChangeBreakdown Breakdown
	UpdatedItems    []inventory.Item
}

// outcome carries the values a committed pipeline run produced.
type outcome struct {
	total     int
	change    int
	breakdown Breakdown
	items     []inventory.Item
}

// engine runs the purchase pipeline synchronously. It does no locking of its own; Service
// serializes every call.
type engine struct {
	store    TxStore
	recorder Recorder
	log      zerolog.Logger
}

// process validates and commits one purchase. Every failure leaves the store untouched.
func (e *engine) process(ctx context.Context, req order.Request) (res Result) {
	id := uuid.NewString()
	log := e.log.With().Str("transaction_id", id).Logger()

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("transaction aborted by unexpected fault")
			res = Result{ID: id, Kind: KindInternal, Message: msgInternal}
		}
		if e.recorder != nil {
			e.recorder.ObserveTransaction(res.Kind.String(), res.ChangeAmount)
		}
	}()

	var out outcome
	err := e.store.WithinTx(ctx, func(s inventory.Store) error {
		var err error
		out, err = e.run(ctx, s, req, log)
		return err
	})
	if err != nil {
		var failure *Error
		if !errors.As(err, &failure) {
			log.Error().Err(err).Msg("transaction failed with internal fault")
			return Result{ID: id, Kind: KindInternal, Message: msgInternal}
		}
		log.Info().Str("kind", failure.Kind.String()).Str("reason", failure.Message).Msg("transaction rejected")
		return Result{ID: id, Kind: failure.Kind, Message: failure.Message}
	}

	log.Info().
		Int("total", out.total).
		Int("paid", req.Payment.TotalAmount).
		Int("change", out.change).
		Msg("transaction committed")

	return Result{
		ID:              id,
		Success:         true,
		Kind:            KindNone,
		Message:         FormatChangeMessage(out.change, out.breakdown),
		ChangeAmount:    out.change,
		ChangeBreakdown: out.breakdown,
		UpdatedItems:    out.items,
	}
}

// run is the ordered pipeline. The first failing step returns; writes happen only after every
// check passed, and the surrounding transaction discards them if a write fails.
func (e *engine) run(ctx context.Context, s inventory.Store, req order.Request, log zerolog.Logger) (outcome, error) {
	lines, payment := req.Order, req.Payment

	if lines.Empty() {
		return outcome{}, validationf(msgEmptyOrder)
	}

	total, err := orderTotal(ctx, s, lines)
	if err != nil {
		return outcome{}, err
	}
	if payment.TotalAmount < total {
		return outcome{}, validationf(msgInsufficientFunds)
	}

	stock := make([]inventory.Item, 0, len(lines))
	for _, line := range lines {
		if line.Quantity < 1 {
			return outcome{}, validationf("invalid quantity %d for %s", line.Quantity, line.Name)
		}
		item, ok, err := s.FindItemByName(ctx, line.Name)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			return outcome{}, validationf("item %s is not available", line.Name)
		}
		if item.Quantity < line.Quantity {
			return outcome{}, validationf("not enough %s in the machine", line.Name)
		}
		stock = append(stock, item)
	}

	if err := checkInstruments(payment); err != nil {
		return outcome{}, err
	}
	tendered, err := instrumentSum(payment)
	if err != nil {
		return outcome{}, err
	}
	if tendered != payment.TotalAmount {
		return outcome{}, validationf(msgAmountMismatch)
	}

	change := payment.TotalAmount - total
	reserve, err := s.ListDenominations(ctx)
	if err != nil {
		return outcome{}, err
	}
	breakdown, ok := MakeChange(change, reserve)
	if !ok {
		return outcome{}, &Error{Kind: KindResourceExhausted, Message: msgNoChange}
	}

	for i, line := range lines {
		item := stock[i]
		item.Quantity -= line.Quantity
		if err := s.UpdateItem(ctx, item); err != nil {
			return outcome{}, err
		}
	}

	deltas := reserveDeltas(payment, breakdown)
	for _, value := range sortedKeys(deltas) {
		delta := deltas[value]
		if delta == 0 {
			continue
		}
		d, ok, err := s.FindDenomination(ctx, value)
		if err != nil {
			return outcome{}, err
		}
		if !ok {
			log.Warn().Int("denomination", value).Msg("no reserve slot for tendered instrument")
			continue
		}
		d.Quantity += delta
		if d.Quantity < 0 {
			return outcome{}, fmt.Errorf("reserve for %d would drop to %d", value, d.Quantity)
		}
		if err := s.UpdateDenomination(ctx, d); err != nil {
			return outcome{}, err
		}
	}

	items, err := s.ListItems(ctx)
	if err != nil {
		return outcome{}, err
	}
	return outcome{total: total, change: change, breakdown: breakdown, items: items}, nil
}

// orderTotal sums price × quantity over the items the store knows; unknown names add nothing.
func orderTotal(ctx context.Context, s inventory.Store, lines order.Order) (int, error) {
	total := 0
	for _, line := range lines {
		item, ok, err := s.FindItemByName(ctx, line.Name)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		cost, err := mulChecked(item.Price, line.Quantity)
		if err != nil {
			return 0, fmt.Errorf("cost of %s: %w", line.Name, err)
		}
		if total, err = addChecked(total, cost); err != nil {
			return 0, fmt.Errorf("order total: %w", err)
		}
	}
	return total, nil
}

// checkInstruments rejects the first coin, then the first bill, outside the accepted set.
func checkInstruments(p order.Payment) error {
	for _, coin := range p.Coins {
		if !inventory.IsAcceptedCoin(coin) {
			return validationf("invalid coin: %d. valid coins: %s", coin, acceptedCoinList())
		}
	}
	for _, bill := range p.Bills {
		if bill != inventory.BillValue {
			return validationf("invalid bill: %d. only %d bills are accepted", bill, inventory.BillValue)
		}
	}
	return nil
}

// instrumentSum adds up every inserted coin and bill.
func instrumentSum(p order.Payment) (int, error) {
	sum := 0
	var err error
	for _, v := range p.Coins {
		if sum, err = addChecked(sum, v); err != nil {
			return 0, fmt.Errorf("tendered sum: %w", err)
		}
	}
	for _, v := range p.Bills {
		if sum, err = addChecked(sum, v); err != nil {
			return 0, fmt.Errorf("tendered sum: %w", err)
		}
	}
	return sum, nil
}

// reserveDeltas nets one unit per received instrument against the units paid out as change.
func reserveDeltas(p order.Payment, breakdown Breakdown) map[int]int {
	deltas := make(map[int]int)
	for _, coin := range p.Coins {
		deltas[coin]++
	}
	for _, bill := range p.Bills {
		deltas[bill]++
	}
	for value, count := range breakdown {
		deltas[value] -= count
	}
	return deltas
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))
	return keys
}

func acceptedCoinList() string {
	coins := inventory.AcceptedCoins()
	parts := make([]string, len(coins))
	for i, c := range coins {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}

func addChecked(a, b int) (int, error) {
	c := a + b
	if (c > a) != (b > 0) {
		return 0, errOverflow
	}
	return c, nil
}

func mulChecked(a, b int) (int, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	c := a * b
	if c/b != a || (a == -1 && b == minInt) || (b == -1 && a == minInt) {
		return 0, errOverflow
	}
	return c, nil
}

const minInt = -1 << (strconv.IntSize - 1)
