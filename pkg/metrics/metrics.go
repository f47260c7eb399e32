package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vending/pkg/inventory"
)

// Metrics groups every collector the machine exports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transactions *prometheus.CounterVec
	changeTotal  prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	reserveUnits *prometheus.GaugeVec
	stockUnits   *prometheus.GaugeVec
	operational  prometheus.Gauge
}

// New registers the collectors on a fresh registry, together with the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "vending_transactions_total",
				Help: "Purchase attempts by outcome",
			},
			[]string{"outcome"},
		),
		changeTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "vending_change_dispensed_total",
			Help: "Money handed back as change, in the smallest currency unit",
		}),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_ms",
				Help:    "Duration of HTTP requests in ms",
				Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
			},
			[]string{"method", "path"},
		),
		reserveUnits: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vending_reserve_units",
				Help: "Units held in the change reserve per denomination",
			},
			[]string{"denomination"},
		),
		stockUnits: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vending_stock_units",
				Help: "Units on hand per product",
			},
			[]string{"item"},
		),
		operational: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vending_operational",
			Help: "1 while the change reserve still holds any units",
		}),
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveTransaction counts one processed purchase.
func (m *Metrics) ObserveTransaction(outcome string, change int) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(outcome).Inc()
	if change > 0 {
		m.changeTotal.Add(float64(change))
	}
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(float64(elapsed.Milliseconds()))
}

// SetReserve publishes the current reserve levels.
func (m *Metrics) SetReserve(reserve []inventory.Denomination) {
	if m == nil {
		return
	}
	for _, d := range reserve {
		m.reserveUnits.WithLabelValues(strconv.Itoa(d.Value)).Set(float64(d.Quantity))
	}
}

// SetStock publishes the current stock levels.
func (m *Metrics) SetStock(items []inventory.Item) {
	if m == nil {
		return
	}
	for _, item := range items {
		m.stockUnits.WithLabelValues(item.Name).Set(float64(item.Quantity))
	}
}

// SetOperational flips the operational gauge.
func (m *Metrics) SetOperational(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.operational.Set(1)
		return
	}
	m.operational.Set(0)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
