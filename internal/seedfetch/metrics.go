package seedfetch

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use as a nil pointer, in which case nothing is recorded.
type Metrics struct {
	results       *prometheus.CounterVec
	connectTime   prometheus.Histogram
	fetchDuration prometheus.Histogram
	seedBytes     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		results: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seedfetch",
			Name:      "results_total",
			Help:      "Seed fetch outcomes by HTTP status code or transport failure kind.",
		}, []string{"result"}),
		connectTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seedfetch",
			Name:      "connect_seconds",
			Help:      "Time until the seed server returned response headers.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "seedfetch",
			Name:      "fetch_seconds",
			Help:      "Time to download and store a seed.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		seedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "seedfetch",
			Name:      "seed_bytes",
			Help:      "Size of the last stored seed payload.",
		}),
	}
}

func (m *Metrics) observeStatus(code int) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) observeTransportError(kind string) {
	if m == nil {
		return
	}
	m.results.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeConnect(d time.Duration) {
	if m == nil {
		return
	}
	m.connectTime.Observe(d.Seconds())
}

func (m *Metrics) observeStored(d time.Duration, size int) {
	if m == nil {
		return
	}
	m.fetchDuration.Observe(d.Seconds())
	m.seedBytes.Set(float64(size))
}
