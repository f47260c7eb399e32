package monitor

import (
	"bytes"
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vending/pkg/inventory"
)

type stubSource struct {
	items   []inventory.Item
	reserve []inventory.Denomination
	err     error
}

func (s stubSource) Items(context.Context) ([]inventory.Item, error) {
	return s.items, s.err
}

func (s stubSource) Denominations(context.Context) ([]inventory.Denomination, error) {
	return s.reserve, s.err
}

type recordingGauges struct {
	reserve     []inventory.Denomination
	items       []inventory.Item
	operational *bool
}

func (g *recordingGauges) SetReserve(reserve []inventory.Denomination) { g.reserve = reserve }
func (g *recordingGauges) SetStock(items []inventory.Item)             { g.items = items }
func (g *recordingGauges) SetOperational(ok bool)                      { g.operational = &ok }

func TestReserveJob_ReportsEmptySlotsAndSoldOutItems(t *testing.T) {
	var buf bytes.Buffer
	source := stubSource{
		items: []inventory.Item{
			{Name: "Americano", Price: 950, Quantity: 0},
			{Name: "Mocaccino", Price: 1500, Quantity: 3},
		},
		reserve: []inventory.Denomination{
			{Value: 1000, Quantity: 0},
			{Value: 500, Quantity: 2},
			{Value: 25, Quantity: 0},
		},
	}
	gauges := &recordingGauges{}
	job := NewReserveJob(source, gauges, zerolog.New(&buf))

	require.NoError(t, job.Run())

	out := buf.String()
	assert.Contains(t, out, `"item":"Americano"`)
	assert.NotContains(t, out, `"item":"Mocaccino"`)
	assert.Contains(t, out, `"denomination":25`)
	assert.NotContains(t, out, `"denomination":1000`, "bills are never dispensed, an empty bill slot is normal")
	assert.NotContains(t, out, "not operational")

	assert.Equal(t, source.reserve, gauges.reserve)
	assert.Equal(t, source.items, gauges.items)
	require.NotNil(t, gauges.operational)
	assert.True(t, *gauges.operational)
}

func TestReserveJob_FlagsExhaustedReserve(t *testing.T) {
	var buf bytes.Buffer
	gauges := &recordingGauges{}
	job := NewReserveJob(stubSource{
		reserve: []inventory.Denomination{{Value: 500, Quantity: 0}, {Value: 50, Quantity: 0}},
	}, gauges, zerolog.New(&buf))

	require.NoError(t, job.Run())
	assert.Contains(t, buf.String(), "not operational")
	require.NotNil(t, gauges.operational)
	assert.False(t, *gauges.operational)
}

func TestReserveJob_PropagatesSourceErrors(t *testing.T) {
	boom := errors.New("db gone")
	job := NewReserveJob(stubSource{err: boom}, nil, zerolog.Nop())

	assert.ErrorIs(t, job.Run(), boom)
}

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

func (j *countingJob) Name() string { return "counting" }

func TestScheduler_RunsRegisteredJobs(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{err: errors.New("keeps failing")}

	require.NoError(t, s.AddJob("@every 1s", job))
	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	assert.Error(t, s.AddJob("every now and then", &countingJob{}))
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(zerolog.Nop())
	job := &countingJob{}

	require.NoError(t, s.RunNow(job))
	assert.EqualValues(t, 1, job.runs.Load())
}
