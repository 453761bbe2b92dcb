// Package metrics exposes poller activity as Prometheus metrics.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/0xmhha/btcwatcher/pkg/types"
)

// Namespace prefixes every metric name.
const Namespace = "btcwatcher"

// Collector owns a private registry with the poller metrics plus the Go
// runtime and process collectors. All methods are safe for concurrent use.
type Collector struct {
	registry *prometheus.Registry

	fetchTotal        *prometheus.CounterVec
	fetchFailures     *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	publishTotal      *prometheus.CounterVec
	staleDiscards     prometheus.Counter
	subscriberDropped *prometheus.CounterVec
	chainHeight       prometheus.Gauge
	feeQueueLength    prometheus.Gauge
	feeRate           *prometheus.GaugeVec

	ready atomic.Bool
}

// NewCollector creates a Collector and registers its metrics.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_total",
			Help:      "Data source fetch attempts",
		}, []string{"source"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "fetch_failures_total",
			Help:      "Data source fetches that failed and were skipped",
		}, []string{"source"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Data source fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "publish_total",
			Help:      "Values published to consumers",
		}, []string{"stream"}),
		staleDiscards: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "stale_discards_total",
			Help:      "Chain states discarded because their height was not newer",
		}),
		subscriberDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "subscriber_dropped_total",
			Help:      "Values dropped because a subscriber fell behind",
		}, []string{"stream"}),
		chainHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "chain_height",
			Help:      "Latest published chain height",
		}),
		feeQueueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fee_queue_length",
			Help:      "Fee estimates waiting to be consumed",
		}),
		feeRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "fee_rate_sat_per_vbyte",
			Help:      "Latest recommended fee rate by tier",
		}, []string{"tier"}),
	}

	c.registry.MustRegister(
		c.fetchTotal,
		c.fetchFailures,
		c.fetchDuration,
		c.publishTotal,
		c.staleDiscards,
		c.subscriberDropped,
		c.chainHeight,
		c.feeQueueLength,
		c.feeRate,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return c
}

// GetRegistry returns the registry backing this collector.
func (c *Collector) GetRegistry() *prometheus.Registry {
	return c.registry
}

// Ready reports whether at least one fetch has succeeded.
func (c *Collector) Ready() bool {
	return c.ready.Load()
}

// ObserveFetch records one fetch attempt against source.
func (c *Collector) ObserveFetch(source string, d time.Duration, err error) {
	c.fetchTotal.WithLabelValues(source).Inc()
	c.fetchDuration.WithLabelValues(source).Observe(d.Seconds())
	if err != nil {
		c.fetchFailures.WithLabelValues(source).Inc()
		return
	}
	c.ready.Store(true)
}

// ObservePublish records a value published on stream.
func (c *Collector) ObservePublish(stream string) {
	c.publishTotal.WithLabelValues(stream).Inc()
}

// ObserveStaleDiscard records a chain state rejected by the height filter.
func (c *Collector) ObserveStaleDiscard() {
	c.staleDiscards.Inc()
}

// ObserveHeight records the latest published height.
func (c *Collector) ObserveHeight(height uint64) {
	c.chainHeight.Set(float64(height))
}

// ObserveFee records a published fee estimate and the resulting queue length.
func (c *Collector) ObserveFee(fee types.FeeEstimate, queueLength int) {
	for _, tier := range fee.Tiers() {
		c.feeRate.WithLabelValues(tier.Name).Set(float64(tier.Rate))
	}
	c.feeQueueLength.Set(float64(queueLength))
}

// DropHook returns a callback counting lag drops on stream.
func (c *Collector) DropHook(stream string) func() {
	counter := c.subscriberDropped.WithLabelValues(stream)
	return func() {
		counter.Inc()
	}
}
