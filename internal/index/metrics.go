package index

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "arbor"
const metricsSubsystem = "index"

type metrics struct {
	queries       *prometheus.CounterVec
	matches       prometheus.Counter
	queryDuration prometheus.Histogram
	mutations     *prometheus.CounterVec
	queueDepth    prometheus.Gauge
}

// newMetrics creates the index collectors and registers them on reg when
// it is non-nil. Collectors already registered by another index on the
// same registry are shared.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queries_total",
			Help:      "Supertype queries by waiting policy and outcome.",
		}, []string{"policy", "result"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "matches_total",
			Help:      "Facts visited by supertype queries.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "query_duration_seconds",
			Help:      "Duration of supertype queries.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "mutations_total",
			Help:      "Index mutations by operation and outcome.",
		}, []string{"op", "result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "queue_depth",
			Help:      "Jobs submitted to the index worker and not yet completed.",
		}),
	}
	if reg != nil {
		m.queries = register(reg, m.queries)
		m.matches = register(reg, m.matches)
		m.queryDuration = register(reg, m.queryDuration)
		m.mutations = register(reg, m.mutations)
		m.queueDepth = register(reg, m.queueDepth)
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *metrics) observeQuery(policy Policy, matches int, d time.Duration, err error) {
	m.queries.WithLabelValues(policy.String(), result(err)).Inc()
	m.matches.Add(float64(matches))
	m.queryDuration.Observe(d.Seconds())
}

func (m *metrics) observeMutation(op string, err error) {
	m.mutations.WithLabelValues(op, result(err)).Inc()
}
