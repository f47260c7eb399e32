package machine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"vending/pkg/inventory"
	"vending/pkg/order"
)

const defaultQueueTimeout = 2 * time.Second

// command is one unit of work for the machine goroutine.
type command struct {
	action  string
	ctx     context.Context
	request order.Request
	reply   chan commandResult
}

// commandResult carries whatever the action produced back to the caller.
type commandResult struct {
	result        Result
	total         int
	items         []inventory.Item
	denominations []inventory.Denomination
	operational   bool
	err           error
}

// Service owns the only goroutine that touches the machine state, so purchases and reads are
// applied one at a time without a mutex.
type Service struct {
	engine   *engine
	commands chan command
	quit     chan struct{}
	once     sync.Once
	timeout  time.Duration
}

// NewService starts the machine goroutine. recorder may be nil.
func NewService(store TxStore, log zerolog.Logger, recorder Recorder) *Service {
	svc := &Service{
		engine: &engine{
			store:    store,
			recorder: recorder,
			log:      log.With().Str("component", "machine").Logger(),
		},
		commands: make(chan command),
		quit:     make(chan struct{}),
		timeout:  defaultQueueTimeout,
	}
	go svc.loop()
	return svc
}

// loop handles commands sequentially until Close.
func (s *Service) loop() {
	for {
		select {
		case cmd := <-s.commands:
			cmd.reply <- s.handle(cmd)
		case <-s.quit:
			return
		}
	}
}

func (s *Service) handle(cmd command) (res commandResult) {
	defer func() {
		if p := recover(); p != nil {
			s.engine.log.Error().Interface("panic", p).Str("action", cmd.action).Msg("machine command panicked")
			res = commandResult{err: fmt.Errorf("unexpected fault in %s: %v", cmd.action, p)}
		}
	}()

	store := s.engine.store
	switch cmd.action {
	case "process":
		return commandResult{result: s.engine.process(cmd.ctx, cmd.request)}
	case "total":
		total, err := orderTotal(cmd.ctx, store, cmd.request.Order)
		return commandResult{total: total, err: err}
	case "items":
		items, err := store.ListItems(cmd.ctx)
		return commandResult{items: items, err: err}
	case "available":
		items, err := store.ListItems(cmd.ctx)
		if err != nil {
			return commandResult{err: err}
		}
		available := make([]inventory.Item, 0, len(items))
		for _, item := range items {
			if item.Quantity > 0 {
				available = append(available, item)
			}
		}
		return commandResult{items: available}
	case "denominations":
		denominations, err := store.ListDenominations(cmd.ctx)
		return commandResult{denominations: denominations, err: err}
	case "operational":
		denominations, err := store.ListDenominations(cmd.ctx)
		if err != nil {
			return commandResult{err: err}
		}
		for _, d := range denominations {
			if d.Quantity > 0 {
				return commandResult{operational: true}
			}
		}
		return commandResult{}
	default:
		return commandResult{err: errors.New("unknown machine action")}
	}
}

// dispatch hands cmd to the machine goroutine and waits for the answer. Purchases, once
// accepted, are always waited for so the caller learns the real outcome.
func (s *Service) dispatch(ctx context.Context, cmd command) (commandResult, error) {
	cmd.ctx = context.WithoutCancel(ctx)
	cmd.reply = make(chan commandResult, 1)

	select {
	case <-s.quit:
		return commandResult{}, ErrClosed
	default:
	}

	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	case <-s.quit:
		return commandResult{}, ErrClosed
	case <-time.After(s.timeout):
		return commandResult{}, ErrBusy
	}

	if cmd.action == "process" {
		return <-cmd.reply, nil
	}

	select {
	case res := <-cmd.reply:
		return res, nil
	case <-ctx.Done():
		return commandResult{}, ctx.Err()
	case <-time.After(s.timeout):
		return commandResult{}, ErrBusy
	}
}

// ProcessTransaction runs the full purchase pipeline. The returned error is only set when the
// request never reached the machine; pipeline failures are reported through Result.
func (s *Service) ProcessTransaction(ctx context.Context, req order.Request) (Result, error) {
	res, err := s.dispatch(ctx, command{action: "process", request: req})
	if err != nil {
		return Result{}, err
	}
	return res.result, nil
}

// ComputeOrderTotal prices an order against the current catalog. Unknown items contribute zero.
func (s *Service) ComputeOrderTotal(ctx context.Context, o order.Order) (int, error) {
	res, err := s.dispatch(ctx, command{action: "total", request: order.Request{Order: o}})
	if err != nil {
		return 0, err
	}
	return res.total, res.err
}

// Items lists every product, sold-out ones included.
func (s *Service) Items(ctx context.Context) ([]inventory.Item, error) {
	res, err := s.dispatch(ctx, command{action: "items"})
	if err != nil {
		return nil, err
	}
	return res.items, res.err
}

// AvailableItems lists products with at least one unit in stock.
func (s *Service) AvailableItems(ctx context.Context) ([]inventory.Item, error) {
	res, err := s.dispatch(ctx, command{action: "available"})
	if err != nil {
		return nil, err
	}
	return res.items, res.err
}

// Denominations lists the change reserve, highest value first.
func (s *Service) Denominations(ctx context.Context) ([]inventory.Denomination, error) {
	res, err := s.dispatch(ctx, command{action: "denominations"})
	if err != nil {
		return nil, err
	}
	return res.denominations, res.err
}

// Operational reports whether any reserve entry still holds units.
func (s *Service) Operational(ctx context.Context) (bool, error) {
	res, err := s.dispatch(ctx, command{action: "operational"})
	if err != nil {
		return false, err
	}
	return res.operational, res.err
}

// Close stops the machine goroutine. It is safe to call more than once.
func (s *Service) Close() {
	s.once.Do(func() { close(s.quit) })
}
