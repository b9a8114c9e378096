package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	entriesEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sharpsend",
		Name:      "queue_entries_enqueued_total",
		Help:      "Queue entries accepted by the store.",
	})
	entriesSent = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sharpsend",
		Name:      "queue_entries_sent_total",
		Help:      "Entries dispatched successfully.",
	})
	entriesFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sharpsend",
		Name:      "queue_entries_failed_total",
		Help:      "Entries that exhausted their retry budget.",
	})
	entriesRequeued = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "sharpsend",
		Name:      "queue_entries_requeued_total",
		Help:      "Failed attempts pushed back to pending with backoff.",
	})
	cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sharpsend",
		Name:      "queue_cycle_duration_seconds",
		Help:      "Duration of one processing cycle.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(entriesEnqueued, entriesSent, entriesFailed, entriesRequeued, cycleDuration)
	})
}

func IncEnqueued()              { entriesEnqueued.Inc() }
func IncSent()                  { entriesSent.Inc() }
func IncFailed()                { entriesFailed.Inc() }
func IncRequeued()              { entriesRequeued.Inc() }
func ObserveCycle(secs float64) { cycleDuration.Observe(secs) }
