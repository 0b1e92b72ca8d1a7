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
)

type resource struct {
	disposed atomic.Int32
}

func (r *resource) Dispose() error {
	r.disposed.Add(1)
	return nil
}

func newResource(container.Resolver) (*resource, error) { return &resource{}, nil }

func TestDispose_Idempotent(t *testing.T) {
	c := container.New()
	require.NoError(t, c.Dispose())
	require.NoError(t, c.Dispose())
	assert.True(t, c.Disposed())

	_, err := c.Resolve(named("x"))
	assert.ErrorIs(t, err, rerrors.ErrDisposedContainer)
	_, err = c.Instance(key.Named("x"), 1)
	assert.ErrorIs(t, err, rerrors.ErrDisposedContainer)
	_, err = c.CreateChild("late")
	assert.ErrorIs(t, err, rerrors.ErrDisposedContainer)
	_, err = c.Install()
	assert.ErrorIs(t, err, rerrors.ErrDisposedContainer)
}

func TestDispose_CascadesExactlyOnce(t *testing.T) {
	root := container.New()
	auto := container.Lifetime(lifetime.AutoDisposing(lifetime.PerContainer))
	_, err := root.Bind(key.Of[*resource](), container.Provide(newResource), auto)
	require.NoError(t, err)

	a := mustChild(t, root, "a")
	b := mustChild(t, root, "b")
	grandchild := mustChild(t, a, "a1")

	rootRes := container.MustResolve[*resource](root)
	aRes := container.MustResolve[*resource](a)
	bRes := container.MustResolve[*resource](b)
	gRes := container.MustResolve[*resource](grandchild)

	require.NoError(t, b.Dispose(), "a child disposed independently first")
	assert.Equal(t, int32(1), bRes.disposed.Load())
	assert.Len(t, root.Children(), 1)

	require.NoError(t, root.Dispose())

	for name, r := range map[string]*resource{"root": rootRes, "a": aRes, "b": bRes, "grandchild": gRes} {
		assert.Equal(t, int32(1), r.disposed.Load(), name)
	}
	for _, c := range []*container.Container{root, a, b, grandchild} {
		assert.True(t, c.Disposed())
	}
	assert.Empty(t, root.Children())
}

func TestDispose_AutoDisposingSingletonAndTransients(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		Add(key.Named("single"), container.Provide(newResource), container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton))).
		And(key.Named("each"), container.Provide(newResource), container.Lifetime(lifetime.AutoDisposing(lifetime.Transient))).
		And(key.Named("plain"), container.Provide(newResource), container.Lifetime(lifetime.Singleton)).
		Commit()
	require.NoError(t, err)

	single, _ := c.Resolve(named("single"))
	e1, _ := c.Resolve(named("each"))
	e2, _ := c.Resolve(named("each"))
	plain, _ := c.Resolve(named("plain"))

	require.NoError(t, c.Dispose())
	assert.Equal(t, int32(1), single.(*resource).disposed.Load())
	assert.Equal(t, int32(1), e1.(*resource).disposed.Load())
	assert.Equal(t, int32(1), e2.(*resource).disposed.Load())
	assert.Equal(t, int32(0), plain.(*resource).disposed.Load(), "instances without auto-disposal are left to their owner")
}

func TestDispose_TokenDisposesItsInstances(t *testing.T) {
	c := container.New()
	reg, err := c.Singleton(key.Named("r"), container.Provide(newResource), container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton)))
	require.NoError(t, err)
	v, err := c.Resolve(named("r"))
	require.NoError(t, err)

	require.NoError(t, reg.Dispose())
	assert.Equal(t, int32(1), v.(*resource).disposed.Load())

	require.NoError(t, c.Dispose())
	assert.Equal(t, int32(1), v.(*resource).disposed.Load())
}

func TestDispose_WaitsForInFlightResolve(t *testing.T) {
	c := container.New()
	entered := make(chan struct{})
	unblock := make(chan struct{})
	_, err := c.Singleton(key.Named("slow"), func(container.Resolver) (any, error) {
		close(entered)
		<-unblock
		return &resource{}, nil
	}, container.Lifetime(lifetime.AutoDisposing(lifetime.Singleton)))
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		got  any
		rerr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		got, rerr = c.Resolve(named("slow"))
	}()
	<-entered

	disposed := make(chan error, 1)
	go func() { disposed <- c.Dispose() }()

	select {
	case <-disposed:
		t.Fatal("dispose returned while a resolve was running")
	case <-time.After(50 * time.Millisecond):
	}

	_, err = c.Resolve(named("slow"))
	assert.ErrorIs(t, err, rerrors.ErrDisposedContainer, "resolves started after disposal began fail")

	close(unblock)
	wg.Wait()
	require.NoError(t, <-disposed)

	require.NoError(t, rerr, "the in-flight resolve completes")
	assert.Equal(t, int32(1), got.(*resource).disposed.Load(), "its instance is released by the disposal that waited for it")
}

func TestOnDispose(t *testing.T) {
	c := container.New()
	var order []int
	c.OnDispose(func() { order = append(order, 1) })
	c.OnDispose(func() { order = append(order, 2) })
	require.NoError(t, c.Dispose())
	assert.Equal(t, []int{2, 1}, order)

	c.OnDispose(func() { order = append(order, 3) })
	assert.Equal(t, []int{2, 1, 3}, order)
}
