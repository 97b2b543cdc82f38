package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "acessolivre"

// Metrics groups the collectors used by storage, the signed url cache and the
// moderation workflow. A nil *Metrics is valid and records nothing.
type Metrics struct {
	storageDuration *prometheus.HistogramVec
	storageErrors   *prometheus.CounterVec
	urlCache        *prometheus.CounterVec
	transitions     *prometheus.CounterVec
}

// New registers all collectors on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		storageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Latency of object storage operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operation_errors_total",
			Help:      "Count of failed object storage operations.",
		}, []string{"operation"}),
		urlCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signed_url",
			Name:      "lookups_total",
			Help:      "Signed URL lookups by result (hit, remote_hit, miss, error).",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "comments",
			Name:      "transitions_total",
			Help:      "Comment moderation transitions by target status.",
		}, []string{"status"}),
	}

	var err error
	if m.storageDuration, err = register(reg, m.storageDuration); err != nil {
		return nil, err
	}
	if m.storageErrors, err = register(reg, m.storageErrors); err != nil {
		return nil, err
	}
	if m.urlCache, err = register(reg, m.urlCache); err != nil {
		return nil, err
	}
	if m.transitions, err = register(reg, m.transitions); err != nil {
		return nil, err
	}
	return m, nil
}

// register returns the already registered collector when the same metric was
// registered before (e.g. several test servers sharing DefaultRegisterer).
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register collector: %w", err)
	}
	return c, nil
}

func (m *Metrics) ObserveStorage(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.storageDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		m.storageErrors.WithLabelValues(operation).Inc()
	}
}

func (m *Metrics) URLLookup(result string) {
	if m == nil {
		return
	}
	m.urlCache.WithLabelValues(result).Inc()
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(status).Inc()
}

// URLCacheCounter exposes the lookup counter for a result label, used by tests.
func (m *Metrics) URLCacheCounter(result string) prometheus.Counter {
	return m.urlCache.WithLabelValues(result)
}

// StorageErrorCounter exposes the error counter for an operation, used by tests.
func (m *Metrics) StorageErrorCounter(operation string) prometheus.Counter {
	return m.storageErrors.WithLabelValues(operation)
}

// TransitionCounter exposes the transition counter for a status, used by tests.
func (m *Metrics) TransitionCounter(status string) prometheus.Counter {
	return m.transitions.WithLabelValues(status)
}
