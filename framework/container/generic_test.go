package container_test

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-resolve/framework/build"
	"github.com/km-arc/go-resolve/framework/container"
	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/resolution"
)

// ── open generics ─────────────────────────────────────────────────────────────

type Cat interface{ Alive() bool }

type ShroedingersCat struct{}

func (ShroedingersCat) Alive() bool { return false }

type Dog struct{}

type Box[T any] interface{ Content() T }

type CardboardBox[T any] struct{ content T }

func (b *CardboardBox[T]) Content() T { return b.content }

func NewCardboardBox[T any](r container.Resolver) (Box[T], error) {
	content, err := container.Resolve[T](r)
	if err != nil {
		return nil, err
	}
	return &CardboardBox[T]{content: content}, nil
}

func TestOpenGeneric_BoxOfCat(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		AddTemplate(key.OpenOf[Box[any]](), container.Specializations(
			container.Specialized(NewCardboardBox[Cat]),
			container.Specialized(NewCardboardBox[Dog]),
		)).
		And(key.Of[Cat](), container.Value(ShroedingersCat{})).
		Commit()
	require.NoError(t, err)

	box, err := container.Resolve[Box[Cat]](c)
	require.NoError(t, err)
	require.IsType(t, &CardboardBox[Cat]{}, box)
	assert.IsType(t, ShroedingersCat{}, box.Content())

	_, err = container.Resolve[Box[Cat]](c)
	require.NoError(t, err)
	tpl := c.Registry().Templates(key.For(key.Of[Box[Cat]]()))[0]
	assert.Equal(t, 1, tpl.Specializations(), "the instantiation is materialized once")

	_, err = container.Resolve[Box[Dog]](c)
	assert.ErrorIs(t, err, rerrors.ErrNotRegistered, "Dog itself is not registered")

	_, err = container.Resolve[Box[string]](c)
	assert.ErrorIs(t, err, rerrors.ErrConstructionFailed, "no instantiation for string")
}

func TestOpenGeneric_ConcreteRegistrationWins(t *testing.T) {
	c := container.New()
	_, err := c.Template(key.OpenOf[Box[any]](), container.Specializations(container.Specialized(NewCardboardBox[Cat])))
	require.NoError(t, err)
	_, err = c.Instance(key.Of[Cat](), ShroedingersCat{})
	require.NoError(t, err)
	special := &CardboardBox[Cat]{}
	_, err = c.Instance(key.Of[Box[Cat]](), Box[Cat](special))
	require.NoError(t, err)

	box, err := container.Resolve[Box[Cat]](c)
	require.NoError(t, err)
	assert.Same(t, special, box)
}

func TestOpenGeneric_TemplateLifetimeApplies(t *testing.T) {
	root := container.New()
	_, err := root.Template(key.OpenOf[Box[any]](),
		container.Specializations(container.Specialized(NewCardboardBox[Cat])),
		container.Lifetime(lifetime.Singleton))
	require.NoError(t, err)
	_, err = root.Instance(key.Of[Cat](), ShroedingersCat{})
	require.NoError(t, err)
	child := mustChild(t, root, "child")

	a := container.MustResolve[Box[Cat]](root)
	b := container.MustResolve[Box[Cat]](child)
	assert.Same(t, a, b)
}

// ── collections, lazy and async ───────────────────────────────────────────────

func TestResolveAll_NearestFirstMostRecentFirst(t *testing.T) {
	root := container.New()
	_, err := root.Instance(key.Of[Greeter](), english{})
	require.NoError(t, err)
	child := mustChild(t, root, "child")
	_, err = child.Instance(key.Of[Greeter](), french{})
	require.NoError(t, err)
	_, err = child.Instance(key.Of[Greeter](), english{}, container.Tagged("ignored"))
	require.NoError(t, err)

	all, err := container.ResolveAll[Greeter](child)
	require.NoError(t, err)
	require.Len(t, all, 2, "the tagged entry does not match the untagged query")
	assert.Equal(t, "bonjour", all[0].Greet())
	assert.Equal(t, "hello", all[1].Greet())

	none, err := container.ResolveAll[*Service1](root)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestResolveAll_FromFactory(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		Add(key.Of[Greeter](), container.Value(english{})).
		And(key.Of[Greeter](), container.Value(french{})).
		And(key.Named("chorus"), func(r container.Resolver) (any, error) {
			gs, err := container.ResolveAll[Greeter](r)
			return len(gs), err
		}).
		Commit()
	require.NoError(t, err)

	n, err := c.Resolve(named("chorus"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestLazy_DefersAndCaches(t *testing.T) {
	c := container.New()
	var builds atomic.Int32
	_, err := c.Bind(key.Of[*Service2](), func(container.Resolver) (any, error) {
		builds.Add(1)
		return &Service2{}, nil
	})
	require.NoError(t, err)

	get := container.Lazy[*Service2](c)
	assert.Equal(t, int32(0), builds.Load())

	a, err := get()
	require.NoError(t, err)
	b, err := get()
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, int32(1), builds.Load())
}

func TestAsync(t *testing.T) {
	c := container.New()
	_, err := c.Singleton(key.Of[*Service2](), container.Provide(newService2))
	require.NoError(t, err)

	f := container.Async[*Service2](c)
	<-f.Done()
	v, err := f.Get()
	require.NoError(t, err)
	assert.Same(t, container.MustResolve[*Service2](c), v)

	_, err = container.Async[*Service1](c).Get()
	assert.ErrorIs(t, err, rerrors.ErrNotRegistered)
}

func TestTryResolveGeneric(t *testing.T) {
	c := container.New()
	_, ok, err := container.TryResolve[*Service2](c)
	assert.False(t, ok)
	assert.NoError(t, err)

	_, err = c.Instance(key.Of[*Service2](), &Service2{})
	require.NoError(t, err)
	v, ok, err := container.TryResolve[*Service2](c)
	assert.True(t, ok)
	assert.NoError(t, err)
	assert.NotNil(t, v)
}

func TestMustResolve_Panics(t *testing.T) {
	c := container.New()
	assert.Panics(t, func() { container.MustResolve[*Service2](c) })
}

// ── build boundary ────────────────────────────────────────────────────────────

type Repo struct{ table string }

type Handler struct {
	repo  *Repo
	greet Greeter
}

func TestBuildProvider_DependenciesAndState(t *testing.T) {
	c := container.New()
	_, err := c.Batch().
		Add(key.Of[*Repo](), build.Factory(build.Func1(
			func(table string) (*Repo, error) { return &Repo{table: table}, nil },
			build.ArgDefault(0, "users"),
		))).
		And(key.Of[Greeter](), container.Value(french{})).
		And(key.Of[*Handler](), build.Factory(build.Func2(
			func(repo *Repo, g Greeter) (*Handler, error) { return &Handler{repo: repo, greet: g}, nil },
		))).
		Commit()
	require.NoError(t, err)

	h, err := container.Resolve[*Handler](c)
	require.NoError(t, err)
	assert.Equal(t, "users", h.repo.table, "nested resolutions do not inherit runtime arguments")
	assert.Equal(t, "bonjour", h.greet.Greet())

	repo, err := container.Resolve[*Repo](c, resolution.WithArgs("orders"))
	require.NoError(t, err)
	assert.Equal(t, "orders", repo.table)
}

func TestBuildProvider_FailureNamesKey(t *testing.T) {
	c := container.New()
	_, err := c.Bind(key.Of[*Repo](), build.Factory(build.Func0(func() (*Repo, error) {
		return nil, errors.New("no database")
	})))
	require.NoError(t, err)

	_, err = container.Resolve[*Repo](c)
	require.ErrorIs(t, err, rerrors.ErrConstructionFailed)
	assert.Contains(t, err.Error(), key.Of[*Repo]().ID())
}
