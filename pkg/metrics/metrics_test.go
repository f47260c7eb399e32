package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vending/pkg/inventory"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_RecordsTransactionsAndGauges(t *testing.T) {
	m := New()

	m.ObserveTransaction("success", 50)
	m.ObserveTransaction("success", 0)
	m.ObserveTransaction("validation", 0)
	m.ObserveRequest(http.MethodPost, "/api/machine/buy", http.StatusBadRequest, 3*time.Millisecond)
	m.SetReserve([]inventory.Denomination{{Value: 500, Quantity: 20}, {Value: 25, Quantity: 0}})
	m.SetStock([]inventory.Item{{Name: "Americano", Price: 950, Quantity: 9}})
	m.SetOperational(true)

	body := scrape(t, m)
	assert.Contains(t, body, `vending_transactions_total{outcome="success"} 2`)
	assert.Contains(t, body, `vending_transactions_total{outcome="validation"} 1`)
	assert.Contains(t, body, `vending_change_dispensed_total 50`)
	assert.Contains(t, body, `http_requests_total{method="POST",path="/api/machine/buy",status="Bad Request"} 1`)
	assert.Contains(t, body, `vending_reserve_units{denomination="500"} 20`)
	assert.Contains(t, body, `vending_reserve_units{denomination="25"} 0`)
	assert.Contains(t, body, `vending_stock_units{item="Americano"} 9`)
	assert.Contains(t, body, `vending_operational 1`)
	assert.Contains(t, body, `go_goroutines`)
}

func TestMetrics_SeparateInstancesDoNotCollide(t *testing.T) {
	a, b := New(), New()
	a.ObserveTransaction("internal", 0)

	assert.Contains(t, scrape(t, a), `vending_transactions_total{outcome="internal"} 1`)
	assert.NotContains(t, scrape(t, b), `outcome="internal"`)
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveTransaction("success", 10)
		m.ObserveRequest(http.MethodGet, "/", http.StatusOK, time.Millisecond)
		m.SetReserve(nil)
		m.SetStock(nil)
		m.SetOperational(false)
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
