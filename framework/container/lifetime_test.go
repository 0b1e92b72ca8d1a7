package container_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-resolve/framework/container"
	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/resolution"
	"github.com/km-arc/go-resolve/framework/scope"
)

type counted struct{ n int32 }

func countingFactory(n *atomic.Int32) func(container.Resolver) (any, error) {
	return func(container.Resolver) (any, error) {
		return &counted{n: n.Add(1)}, nil
	}
}

func TestService1Service2Scenario(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		Add(key.Of[*Service2](), container.Provide(newService2), container.Lifetime(lifetime.Singleton)).
		And(key.Of[*Service1](), container.Provide(newService1)).
		Commit()
	require.NoError(t, err)

	const n = 100_000
	seen := make(map[*Service1]struct{}, n)
	var shared *Service2
	before := service2Builds.Load()
	for i := 0; i < n; i++ {
		s1, err := container.Resolve[*Service1](c)
		require.NoError(t, err)
		seen[s1] = struct{}{}
		if shared == nil {
			shared = s1.Dep
		}
		if s1.Dep != shared {
			t.Fatalf("resolve %d injected a different Service2", i)
		}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, before+1, service2Builds.Load(), "Service2 is built once")
}

func TestService1Service2Scenario_TransientService2IsNotShared(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		Add(key.Of[*Service2](), container.Provide(newService2)).
		And(key.Of[*Service1](), container.Provide(newService1)).
		Commit()
	require.NoError(t, err)

	a := container.MustResolve[*Service1](c)
	b := container.MustResolve[*Service1](c)
	assert.NotSame(t, a.Dep, b.Dep)
	assert.NotEqual(t, a.Dep.id, b.Dep.id)
}

func TestSingleton_ParallelFirstResolves(t *testing.T) {
	c := container.New()
	var builds atomic.Int32
	_, err := c.Singleton(key.Named("slow"), func(container.Resolver) (any, error) {
		builds.Add(1)
		return &counted{}, nil
	})
	require.NoError(t, err)

	const n = 1000
	out := make([]any, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, err := c.Resolve(named("slow"), resolution.WithThread(uint64(i)))
			assert.NoError(t, err)
			out[i] = v
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	for _, v := range out {
		assert.Same(t, out[0], v)
	}
}

func TestPerContainer_ChildGetsOwnInstance(t *testing.T) {
	root := container.New()
	var n atomic.Int32
	_, err := root.Bind(key.Named("pc"), countingFactory(&n), container.Lifetime(lifetime.PerContainer))
	require.NoError(t, err)
	child := mustChild(t, root, "child")

	r1, _ := root.Resolve(named("pc"))
	r2, _ := root.Resolve(named("pc"))
	c1, _ := child.Resolve(named("pc"))
	c2, _ := child.Resolve(named("pc"))

	assert.Same(t, r1, r2)
	assert.Same(t, c1, c2)
	assert.NotSame(t, r1, c1)
	assert.Equal(t, int32(2), n.Load())
}

func TestPerResolve_SharedWithinOneCall(t *testing.T) {
	c := container.New()
	var n atomic.Int32
	type pair struct{ a, b any }
	_, err := c.Batch().
		Add(key.Named("unit"), countingFactory(&n), container.Lifetime(lifetime.PerResolve)).
		And(key.Named("pair"), func(r container.Resolver) (any, error) {
			a, err := r.Resolve(named("unit"))
			if err != nil {
				return nil, err
			}
			b, err := r.Resolve(named("unit"))
			return pair{a, b}, err
		}).
		Commit()
	require.NoError(t, err)

	p1, err := c.Resolve(named("pair"))
	require.NoError(t, err)
	p2, err := c.Resolve(named("pair"))
	require.NoError(t, err)

	assert.Same(t, p1.(pair).a, p1.(pair).b)
	assert.NotSame(t, p1.(pair).a, p2.(pair).a)
	assert.Equal(t, 0, c.Registry().Lookup(named("unit"))[0].Lifetime().Cached(), "per-resolve instances are evicted when the call ends")
}

func TestPerThread(t *testing.T) {
	c := container.New()
	var n atomic.Int32
	_, err := c.Bind(key.Named("pt"), countingFactory(&n), container.Lifetime(lifetime.PerThread))
	require.NoError(t, err)

	a, _ := c.Resolve(named("pt"), resolution.WithThread(1))
	b, _ := c.Resolve(named("pt"), resolution.WithThread(1))
	d, _ := c.Resolve(named("pt"), resolution.WithThread(2))
	assert.Same(t, a, b)
	assert.NotSame(t, a, d)

	x, _ := c.Resolve(named("pt"))
	y, _ := c.Resolve(named("pt"))
	assert.Same(t, x, y, "calls without a thread identity share thread 0")
	assert.Equal(t, int32(3), n.Load())
}

func TestPerState(t *testing.T) {
	c := container.New()
	_, err := c.Bind(key.Named("conn"), func(r container.Resolver) (any, error) {
		dsn, _ := r.Call().Arg(0)
		return &struct{ dsn any }{dsn}, nil
	}, container.Lifetime(lifetime.PerState))
	require.NoError(t, err)

	a, _ := c.Resolve(named("conn"), resolution.WithArgs("db1"))
	b, _ := c.Resolve(named("conn"), resolution.WithArgs("db1"))
	d, _ := c.Resolve(named("conn"), resolution.WithArgs("db2"))
	assert.Same(t, a, b)
	assert.NotSame(t, a, d)
}

func TestSingleton_CyclicAcrossConcurrentCalls(t *testing.T) {
	c := container.New()
	var ready sync.WaitGroup
	ready.Add(2)
	cross := func(dep string) func(container.Resolver) (any, error) {
		return func(r container.Resolver) (any, error) {
			ready.Done()
			ready.Wait()
			return r.Resolve(named(dep))
		}
	}
	_, err := c.Batch().
		Add(key.Named("x"), cross("y"), container.Lifetime(lifetime.Singleton)).
		And(key.Named("y"), cross("x"), container.Lifetime(lifetime.Singleton)).
		Commit()
	require.NoError(t, err)

	errs := make(chan error, 2)
	for _, name := range []string{"x", "y"} {
		go func(name string) {
			_, err := c.Resolve(named(name))
			errs <- err
		}(name)
	}
	for i := 0; i < 2; i++ {
		select {
		case err := <-errs:
			assert.ErrorIs(t, err, rerrors.ErrCircularDependency)
		case <-time.After(5 * time.Second):
			t.Fatal("concurrent resolves of x and y never returned")
		}
	}
	assert.Zero(t, resolution.Waiting())
}

type conn struct{ closed bool }

func (c *conn) Close() error {
	c.closed = true
	return nil
}

type pool struct{ conn *conn }

func newPool(r container.Resolver) (*pool, error) {
	cn, err := container.Resolve[*conn](r)
	if err != nil {
		return nil, err
	}
	return &pool{conn: cn}, nil
}

func TestSingleton_DependenciesComeFromTheOwner(t *testing.T) {
	root := container.New()
	_, err := root.Singleton(key.Of[*pool](), container.Provide(newPool))
	require.NoError(t, err)
	child := mustChild(t, root, "request")
	_, err = child.Singleton(key.Of[*conn](), container.Provide(func(container.Resolver) (*conn, error) { return &conn{}, nil }),
		container.Scoped(scope.Internal), container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton)))
	require.NoError(t, err)

	_, err = container.Resolve[*pool](child)
	require.ErrorIs(t, err, rerrors.ErrNotRegistered, "the child's internal conn is invisible to the root")
	require.NoError(t, child.Dispose())

	_, err = root.Instance(key.Of[*conn](), &conn{})
	require.NoError(t, err)
	p, err := container.Resolve[*pool](root)
	require.NoError(t, err)
	assert.False(t, p.conn.closed)
}

func TestSingleton_SeesOwnersInternalEntriesFromAChild(t *testing.T) {
	root := container.New()
	_, err := root.Batch().
		Add(key.Named("dsn"), container.Value("root-only"), container.Scoped(scope.Internal)).
		And(key.Named("pool"), func(r container.Resolver) (any, error) { return r.Resolve(named("dsn")) },
			container.Lifetime(lifetime.Singleton)).
		Commit()
	require.NoError(t, err)
	child := mustChild(t, root, "request")

	v, err := child.Resolve(named("pool"))
	require.NoError(t, err)
	assert.Equal(t, "root-only", v)
	_, err = child.Resolve(named("dsn"))
	assert.ErrorIs(t, err, rerrors.ErrScopeViolation)
}

func TestTransient_DependenciesComeFromTheRequester(t *testing.T) {
	root := container.New()
	_, err := root.Batch().
		Add(key.Named("env"), container.Value("prod")).
		And(key.Named("banner"), func(r container.Resolver) (any, error) { return r.Resolve(named("env")) }).
		Commit()
	require.NoError(t, err)
	child := mustChild(t, root, "test")
	_, err = child.Instance(key.Named("env"), "test")
	require.NoError(t, err)

	v, err := child.Resolve(named("banner"))
	require.NoError(t, err)
	assert.Equal(t, "test", v)
}
