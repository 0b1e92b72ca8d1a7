package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/app"
	"github.com/km-arc/go-resolve/framework/build"
	"github.com/km-arc/go-resolve/framework/container"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/resolution"
	"github.com/km-arc/go-resolve/framework/scope"
)

// ── Example services ──────────────────────────────────────────────────────────

type Clock interface{ Now() string }

type systemClock struct{}

func (systemClock) Now() string { return "now" }

type Store struct{ dsn string }

func (s *Store) Close() error { return nil }

type Greeter struct {
	store *Store
	clock Clock
	name  string
}

func (g *Greeter) Greet() string { return fmt.Sprintf("hello %s (%s via %s)", g.name, g.clock.Now(), g.store.dsn) }

// StorageModule shows a configuration unit with an auto-disposing singleton.
type StorageModule struct{ container.BaseModule }

func (StorageModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	reg, err := r.Singleton(key.Of[*Store](), build.Factory(build.Func1(
		func(dsn string) (*Store, error) { return &Store{dsn: dsn}, nil },
		build.ArgDefault(0, "mem://"),
	)), container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton)))
	return []container.Disposable{reg}, err
}

// GreeterModule depends on StorageModule.
type GreeterModule struct{ container.BaseModule }

func (GreeterModule) Dependencies(container.Resolver) []container.Module {
	return []container.Module{StorageModule{}}
}

func (GreeterModule) Apply(r container.Registrar) ([]container.Disposable, error) {
	reg, err := r.Batch().
		Add(key.Of[Clock](), container.Value(systemClock{}), container.Scoped(scope.Internal)).
		And(key.Of[*Greeter](), build.Factory(build.Func3(
			func(s *Store, c Clock, name string) (*Greeter, error) { return &Greeter{store: s, clock: c, name: name}, nil },
			build.Dep[*Store](),
			build.Dep[Clock](),
			build.ArgDefault(0, "world"),
		))).
		Commit()
	return []container.Disposable{reg}, err
}

func main() {
	a, err := app.New() // loads .env automatically
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = a.Shutdown() }()

	if _, err := a.Install(GreeterModule{}); err != nil {
		a.Logger.Fatal("install", zap.Error(err))
	}

	g, err := container.Resolve[*Greeter](a, resolution.WithArgs("gopher"))
	if err != nil {
		a.Logger.Fatal("resolve", zap.Error(err))
	}
	fmt.Println(g.Greet())

	// Per-request child containers see the root's global entries but not its
	// internal ones.
	req, err := a.CreateChild("request")
	if err != nil {
		a.Logger.Fatal("child", zap.Error(err))
	}
	if _, err := container.Resolve[*Greeter](req); err != nil {
		fmt.Println("from a child:", err)
	}
	_ = req.Dispose()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := a.Run(ctx); err != nil {
		a.Logger.Error("inspect server", zap.Error(err))
	}
}
