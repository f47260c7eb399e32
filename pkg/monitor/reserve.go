package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"vending/pkg/inventory"
)

// Source is the read side of the machine the reserve check inspects.
type Source interface {
	Items(ctx context.Context) ([]inventory.Item, error)
	Denominations(ctx context.Context) ([]inventory.Denomination, error)
}

// Gauges receives the levels observed on each run. *metrics.Metrics satisfies it.
type Gauges interface {
	SetReserve(reserve []inventory.Denomination)
	SetStock(items []inventory.Item)
	SetOperational(ok bool)
}

// ReserveJob reports sold-out products and empty change slots, and flags a machine that can no
// longer give change at all.
type ReserveJob struct {
	source  Source
	gauges  Gauges
	log     zerolog.Logger
	timeout time.Duration
}

// NewReserveJob builds the job. gauges may be nil.
func NewReserveJob(source Source, gauges Gauges, log zerolog.Logger) *ReserveJob {
	return &ReserveJob{
		source:  source,
		gauges:  gauges,
		log:     log.With().Str("job", "reserve_check").Logger(),
		timeout: 5 * time.Second,
	}
}

// Name identifies the job in scheduler logs.
func (j *ReserveJob) Name() string { return "reserve_check" }

// Run takes one reading.
func (j *ReserveJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	reserve, err := j.source.Denominations(ctx)
	if err != nil {
		return fmt.Errorf("read reserve: %w", err)
	}
	items, err := j.source.Items(ctx)
	if err != nil {
		return fmt.Errorf("read stock: %w", err)
	}

	operational := false
	for _, d := range reserve {
		if d.Quantity > 0 {
			operational = true
		}
		if d.Dispensable() && d.Quantity == 0 {
			j.log.Warn().Int("denomination", d.Value).Msg("change slot is empty")
		}
	}
	for _, item := range items {
		if item.Quantity == 0 {
			j.log.Warn().Str("item", item.Name).Msg("product sold out")
		}
	}
	if !operational {
		j.log.Error().Msg("change reserve exhausted, machine is not operational")
	}

	if j.gauges != nil {
		j.gauges.SetReserve(reserve)
		j.gauges.SetStock(items)
		j.gauges.SetOperational(operational)
	}
	return nil
}
