package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the Prometheus metrics of the bot. A nil *Collector is valid and records nothing.
type Collector struct {
	botUpdatesTotal       *prometheus.CounterVec
	updateDuration        *prometheus.HistogramVec
	throttledUpdatesTotal prometheus.Counter
	orderTransitionsTotal *prometheus.CounterVec
	lowStockProducts      prometheus.Gauge

	gatherer prometheus.Gatherer
}

func NewCollector() *Collector {
	return NewCollectorWithRegistry(nil)
}

// NewCollectorWithRegistry registers the metrics on registry, or on the default registry when nil
func NewCollectorWithRegistry(registry *prometheus.Registry) *Collector {
	var factory promauto.Factory
	var gatherer prometheus.Gatherer
	if registry == nil {
		factory = promauto.With(prometheus.DefaultRegisterer)
		gatherer = prometheus.DefaultGatherer
	} else {
		factory = promauto.With(registry)
		gatherer = registry
	}

	return &Collector{
		botUpdatesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bot_updates_total",
				Help: "Total number of Telegram updates handled",
			},
			[]string{"kind"},
		),

		updateDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bot_update_duration_seconds",
				Help:    "Time spent handling Telegram updates",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),

		throttledUpdatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bot_throttled_updates_total",
				Help: "Total number of updates dropped by the per-user rate limit",
			},
		),

		orderTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Total number of order status transitions by target status and result",
			},
			[]string{"to", "result"},
		),

		lowStockProducts: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "low_stock_products",
				Help: "Number of active products at or below the low stock threshold",
			},
		),

		gatherer: gatherer,
	}
}

func (c *Collector) IncUpdate(kind string) {
	if c == nil {
		return
	}
	c.botUpdatesTotal.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveUpdate(kind string, d time.Duration) {
	if c == nil {
		return
	}
	c.updateDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (c *Collector) IncThrottled() {
	if c == nil {
		return
	}
	c.throttledUpdatesTotal.Inc()
}

// ObserveTransition counts a transition attempt; err decides the result label
func (c *Collector) ObserveTransition(to string, err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.orderTransitionsTotal.WithLabelValues(to, result).Inc()
}

func (c *Collector) SetLowStock(n int) {
	if c == nil {
		return
	}
	c.lowStockProducts.Set(float64(n))
}

// Handler serves the metrics in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
