// Package providers holds the built-in Modules the kernel installs.
package providers

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/config"
	"github.com/km-arc/go-resolve/framework/container"
	"github.com/km-arc/go-resolve/framework/events"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/observe"
)

// ConfigContract is the contract the options are bound under, next to
// key.Of[*config.Options]().
var ConfigContract = key.Named("config")

// ── OptionsModule ─────────────────────────────────────────────────────────────

// OptionsModule binds the loaded configuration.
//
// Bound contracts:
//   - "config"            → *config.Options
//   - *config.Options     → same instance
type OptionsModule struct {
	container.BaseModule
	Options *config.Options
}

func (m *OptionsModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	opts := m.Options
	if opts == nil {
		opts = config.Defaults()
	}
	reg, err := r.Instance(ConfigContract, opts, container.As(key.Of[*config.Options]()))
	return []container.Disposable{reg}, err
}

// ── LoggingModule ─────────────────────────────────────────────────────────────

// LoggingModule binds the logger and a listener writing every post event to it.
//
// Bound contracts:
//   - *zap.Logger
//   - events.Listener     → *observe.LogListener
type LoggingModule struct {
	container.BaseModule
	Logger *zap.Logger
}

func (m *LoggingModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	reg, err := r.Batch().
		Add(key.Of[*zap.Logger](), container.Value(logger)).
		And(events.ListenerContract, container.Value(events.Listener(observe.NewLogListener(logger)))).
		Commit()
	return []container.Disposable{reg}, err
}

// ── MetricsModule ─────────────────────────────────────────────────────────────

// MetricsModule registers a Prometheus listener as a singleton.
//
// Bound contracts:
//   - *observe.MetricsListener
//   - events.Listener     → same instance
type MetricsModule struct {
	container.BaseModule
	Namespace string
}

func (m *MetricsModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	ns := m.Namespace
	if ns == "" {
		ns = config.Defaults().Metrics.Namespace
	}
	reg, err := r.Instance(key.Of[*observe.MetricsListener](), observe.NewMetricsListener(ns),
		container.As(events.ListenerContract))
	return []container.Disposable{reg}, err
}

// ── TracingModule ─────────────────────────────────────────────────────────────

// TracingModule registers an OpenTelemetry listener. A nil Tracer uses the
// global provider.
//
// Bound contracts:
//   - *observe.TraceListener
//   - events.Listener     → same instance
type TracingModule struct {
	container.BaseModule
	Tracer trace.Tracer
}

func (m *TracingModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	reg, err := r.Instance(key.Of[*observe.TraceListener](), observe.NewTraceListener(m.Tracer),
		container.As(events.ListenerContract))
	return []container.Disposable{reg}, err
}

// ── Runtime ───────────────────────────────────────────────────────────────────

// Runtime pulls in the modules Options asks for. It registers nothing itself.
type Runtime struct {
	Options *config.Options
	Logger  *zap.Logger
	Tracer  trace.Tracer
}

func (m *Runtime) Dependencies(container.Resolver) []container.Module {
	opts := m.Options
	if opts == nil {
		opts = config.Defaults()
	}
	deps := []container.Module{
		&OptionsModule{Options: opts},
		&LoggingModule{Logger: m.Logger},
	}
	if opts.Metrics.Enabled {
		deps = append(deps, &MetricsModule{Namespace: opts.Metrics.Namespace})
	}
	if opts.Tracing.Enabled {
		deps = append(deps, &TracingModule{Tracer: m.Tracer})
	}
	return deps
}

func (m *Runtime) Apply(container.Registrar) ([]container.Disposable, error) { return nil, nil }
