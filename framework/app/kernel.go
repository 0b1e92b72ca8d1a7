package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/config"
	"github.com/km-arc/go-resolve/framework/container"
	"github.com/km-arc/go-resolve/framework/inspect"
	"github.com/km-arc/go-resolve/framework/observe"
	"github.com/km-arc/go-resolve/framework/providers"
)

// shutdownGrace bounds how long Run waits for in-flight inspect requests.
const shutdownGrace = 5 * time.Second

// Application is the root container plus what it was built from. It embeds
// the Container so user code can call app.Bind(), app.Singleton(),
// app.Install() and app.Resolve() directly.
type Application struct {
	*container.Container
	Options *config.Options
	Logger  *zap.Logger
}

// New loads configuration from envFiles (see config.Load) and bootstraps the
// application.
func New(envFiles ...string) (*Application, error) {
	opts, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	return NewWithOptions(opts)
}

// NewWithOptions bootstraps the application from already loaded options:
// it builds the logger, creates the root container with the configured
// defaults and installs the built-in modules.
func NewWithOptions(opts *config.Options) (*Application, error) {
	logger, err := opts.Logger()
	if err != nil {
		return nil, err
	}
	copts, err := opts.ContainerOptions(logger)
	if err != nil {
		return nil, err
	}
	c := container.New(append(copts, container.WithTag("app"))...)

	if _, err := c.Install(&providers.Runtime{Options: opts, Logger: logger}); err != nil {
		_ = c.Dispose()
		return nil, err
	}
	logger.Info("application ready",
		zap.String("lifetime", opts.DefaultLifetime),
		zap.String("conflict_policy", opts.ConflictPolicy),
		zap.Bool("metrics", opts.Metrics.Enabled),
		zap.Bool("tracing", opts.Tracing.Enabled),
	)
	return &Application{Container: c, Options: opts, Logger: logger}, nil
}

// Handler returns the diagnostics handler for the container tree. /metrics is
// served when the metrics module is installed.
func (a *Application) Handler() http.Handler {
	opts := []inspect.Option{inspect.WithLogger(a.Logger)}
	if m, ok, _ := container.TryResolve[*observe.MetricsListener](a.Container); ok {
		opts = append(opts, inspect.WithGatherer(m.Gatherer()))
	}
	return inspect.Handler(a.Container, opts...)
}

// Run serves Handler on Options.Inspect.Addr until ctx is done. Without an
// address it only waits for ctx.
func (a *Application) Run(ctx context.Context) error {
	addr := a.Options.Inspect.Addr
	if addr == "" {
		<-ctx.Done()
		return nil
	}
	srv := &http.Server{Addr: addr, Handler: a.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	a.Logger.Info("inspect listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown disposes the container tree and flushes the logger.
func (a *Application) Shutdown() error {
	err := a.Container.Dispose()
	_ = a.Logger.Sync()
	return err
}

// Version of the runtime.
func (a *Application) Version() string { return "0.1.0" }
