package observe

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/km-arc/go-resolve/framework/events"
)

// MetricsListener counts registrations and resolutions on its own registry,
// so several containers (and tests) never collide on the default registerer.
type MetricsListener struct {
	registry *prometheus.Registry

	Registrations   *prometheus.CounterVec
	Resolutions     *prometheus.CounterVec
	ResolveDuration *prometheus.HistogramVec
}

// NewMetricsListener creates the collectors under namespace.
func NewMetricsListener(namespace string) *MetricsListener {
	m := &MetricsListener{
		registry: prometheus.NewRegistry(),
		Registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "registrations_total",
				Help:      "Registration and unregistration events by kind and stage",
			},
			[]string{"kind", "stage"},
		),
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Completed resolutions by result",
			},
			[]string{"result"},
		),
		ResolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "resolve_duration_seconds",
				Help:      "Time spent in lifetimes and factories per resolution",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"lifetime"},
		),
	}
	m.registry.MustRegister(m.Registrations, m.Resolutions, m.ResolveDuration)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *MetricsListener) Registry() *prometheus.Registry { return m.registry }

// Gatherer is what an exposition handler reads from.
func (m *MetricsListener) Gatherer() prometheus.Gatherer { return m.registry }

func (m *MetricsListener) OnEvent(ev events.Event) error {
	switch ev.Kind {
	case events.Register, events.Unregister:
		m.Registrations.WithLabelValues(string(ev.Kind), string(ev.Stage)).Inc()
	case events.Resolve:
		if ev.Stage != events.Post {
			return nil
		}
		result := "ok"
		if ev.Err != nil {
			result = "error"
		}
		m.Resolutions.WithLabelValues(result).Inc()
		m.ResolveDuration.WithLabelValues(ev.Lifetime).Observe(ev.Duration.Seconds())
	}
	return nil
}
