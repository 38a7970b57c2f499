package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/influxdata/tdigest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "motionfeed"

// Collector records poller and feed activity.
type Collector struct {
	registry *prometheus.Registry

	fetches      *prometheus.CounterVec
	empty        prometheus.Counter
	fetchSeconds prometheus.Histogram
	points       *prometheus.CounterVec
	skipped      prometheus.Counter
	cursor       prometheus.Gauge
	feedDrops    prometheus.Counter
	viewers      prometheus.Gauge

	mu       sync.Mutex
	latency  *tdigest.TDigest
	observed int
	maxSeen  time.Duration
}

// New creates a Collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Data source fetches by result (ok, error).",
		}, []string{"result"}),
		empty: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_responses_total",
			Help:      "Successful fetches that carried no new points.",
		}),
		fetchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Data source fetch latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_merged_total",
			Help:      "Points appended to each series.",
		}, []string{"series"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Ticks skipped because a fetch was already in flight.",
		}),
		cursor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "primary_last_index",
			Help:      "Length of the primary series.",
		}),
		feedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_dropped_frames_total",
			Help:      "Frames dropped for slow chart viewers.",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_viewers",
			Help:      "Connected chart viewers.",
		}),
		latency: tdigest.New(),
	}

	c.registry.MustRegister(
		c.fetches,
		c.empty,
		c.fetchSeconds,
		c.points,
		c.skipped,
		c.cursor,
		c.feedDrops,
		c.viewers,
	)

	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveFetch records one fetch and its latency.
func (c *Collector) ObserveFetch(d time.Duration, err error) {
	c.fetchSeconds.Observe(d.Seconds())
	if err != nil {
		c.fetches.WithLabelValues("error").Inc()
	} else {
		c.fetches.WithLabelValues("ok").Inc()
	}

	c.mu.Lock()
	c.latency.Add(float64(d.Microseconds()), 1)
	c.observed++
	if d > c.maxSeen {
		c.maxSeen = d
	}
	c.mu.Unlock()
}

// ObserveEmpty records a successful fetch with no new points.
func (c *Collector) ObserveEmpty() {
	c.empty.Inc()
}

// ObserveMerged records n points appended to a series.
func (c *Collector) ObserveMerged(series string, n int) {
	c.points.WithLabelValues(series).Add(float64(n))
}

// ObserveSkipped records a tick skipped because one was in flight.
func (c *Collector) ObserveSkipped() {
	c.skipped.Inc()
}

// ObserveCursor records the primary series length.
func (c *Collector) ObserveCursor(lastIndex int) {
	c.cursor.Set(float64(lastIndex))
}

// ObserveFeedDrop records a frame dropped for a slow viewer.
func (c *Collector) ObserveFeedDrop() {
	c.feedDrops.Inc()
}

// ObserveViewers records the number of connected viewers.
func (c *Collector) ObserveViewers(n int) {
	c.viewers.Set(float64(n))
}

// LatencySummary is a digest of observed fetch latencies.
type LatencySummary struct {
	Count int
	P50   time.Duration
	P90   time.Duration
	P95   time.Duration
	Max   time.Duration
}

// Latency returns fetch latency quantiles. Zero if nothing was observed.
func (c *Collector) Latency() LatencySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.observed == 0 {
		return LatencySummary{}
	}
	q := func(v float64) time.Duration {
		return time.Duration(c.latency.Quantile(v)) * time.Microsecond
	}
	return LatencySummary{
		Count: c.observed,
		P50:   q(0.5),
		P90:   q(0.9),
		P95:   q(0.95),
		Max:   c.maxSeen,
	}
}
