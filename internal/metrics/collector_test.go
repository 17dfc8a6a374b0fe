package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveTransition(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry())

	collector.ObserveTransition("CONFIRMED", nil)
	collector.ObserveTransition("CONFIRMED", errors.New("insufficient stock"))
	collector.ObserveTransition("CANCELLED", nil)

	expected := `
		# HELP order_transitions_total Total number of order status transitions by target status and result
		# TYPE order_transitions_total counter
		order_transitions_total{result="error",to="CONFIRMED"} 1
		order_transitions_total{result="success",to="CANCELLED"} 1
		order_transitions_total{result="success",to="CONFIRMED"} 1
	`
	err := testutil.CollectAndCompare(collector.orderTransitionsTotal, strings.NewReader(expected))
	assert.NoError(t, err)
}

func TestUpdatesAndGauge(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry())

	collector.IncUpdate("message")
	collector.IncUpdate("message")
	collector.IncUpdate("callback")
	collector.IncThrottled()
	collector.ObserveUpdate("message", 20*time.Millisecond)
	collector.SetLowStock(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.botUpdatesTotal.WithLabelValues("message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.botUpdatesTotal.WithLabelValues("callback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.throttledUpdatesTotal))
	assert.Equal(t, 4.0, testutil.ToFloat64(collector.lowStockProducts))
}

func TestNilCollectorIsSafe(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.IncUpdate("message")
		collector.ObserveUpdate("message", time.Second)
		collector.IncThrottled()
		collector.ObserveTransition("CONFIRMED", nil)
		collector.SetLowStock(1)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	collector := NewCollectorWithRegistry(prometheus.NewRegistry())
	collector.SetLowStock(7)

	rec := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "low_stock_products 7")
}
