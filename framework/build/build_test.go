package build_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-resolve/framework/build"
	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/resolution"
)

type DB struct{ dsn string }

type Cache struct{}

type Service struct {
	db    *DB
	cache *Cache
	name  string
}

func NewService(db *DB, cache *Cache, name string) (*Service, error) {
	return &Service{db: db, cache: cache, name: name}, nil
}

// fakeResolver serves values by composite key ID.
type fakeResolver struct {
	values map[string]any
	ctx    *resolution.Context
}

func newResolver(opts ...resolution.Option) *fakeResolver {
	return &fakeResolver{
		values: map[string]any{},
		ctx:    resolution.New(key.For(key.Named("root")), 0, opts...),
	}
}

func (f *fakeResolver) Resolve(k key.Composite, _ ...resolution.Option) (any, error) {
	if v, ok := f.values[k.ID()]; ok {
		return v, nil
	}
	return nil, rerrors.NotRegistered(k.ID())
}

func (f *fakeResolver) TryResolve(k key.Composite, opts ...resolution.Option) (any, bool, error) {
	v, err := f.Resolve(k, opts...)
	return v, err == nil, nil
}

func (f *fakeResolver) ResolveAll(k key.Composite, opts ...resolution.Option) ([]any, error) {
	v, err := f.Resolve(k, opts...)
	if err != nil {
		return nil, nil
	}
	return []any{v}, nil
}

func (f *fakeResolver) Call() *resolution.Context { return f.ctx }

func TestFunc3_DefaultDescriptors(t *testing.T) {
	p := build.Func3(NewService)
	plan := p.Describe()
	require.Len(t, plan.Params, 3)
	assert.Equal(t, build.Dependency, plan.Params[2].Source)
	assert.Equal(t, key.Of[string]().ID(), plan.Params[2].Key.Primary().ID())
}

func TestFactory_ResolvesDependenciesAndState(t *testing.T) {
	db := &DB{dsn: "mem"}
	r := newResolver(resolution.WithArgs("billing"))
	r.values[key.For(key.Of[*DB]()).ID()] = db

	p := build.Func3(NewService,
		build.Dep[*DB](),
		build.Optional(build.Dep[*Cache]()),
		build.Arg[string](0),
	)
	v, err := build.Factory(p)(r)
	require.NoError(t, err)

	svc := v.(*Service)
	assert.Same(t, db, svc.db)
	assert.Nil(t, svc.cache)
	assert.Equal(t, "billing", svc.name)
}

func TestFactory_StateDefault(t *testing.T) {
	r := newResolver()
	r.values[key.For(key.Of[*DB]()).ID()] = &DB{}
	p := build.Func3(NewService, build.Dep[*DB](), build.Optional(build.Dep[*Cache]()), build.ArgDefault(0, "users"))

	v, err := build.Factory(p)(r)
	require.NoError(t, err)
	assert.Equal(t, "users", v.(*Service).name)
}

func TestFactory_MissingState(t *testing.T) {
	r := newResolver()
	p := build.Func1(func(n int) (int, error) { return n, nil }, build.Arg[int](2))
	_, err := build.Factory(p)(r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no runtime argument")
}

func TestFactory_MissingDependency(t *testing.T) {
	r := newResolver()
	_, err := build.Factory(build.Func1(func(db *DB) (*DB, error) { return db, nil }))(r)
	assert.ErrorIs(t, err, rerrors.ErrNotRegistered)
}

func TestFactory_TaggedDependency(t *testing.T) {
	r := newResolver()
	r.values[key.For(key.Of[*DB]()).Tagged("replica").ID()] = &DB{dsn: "replica"}
	p := build.Func1(func(db *DB) (string, error) { return db.dsn, nil }, build.Dep[*DB]("replica"))
	v, err := build.Factory(p)(r)
	require.NoError(t, err)
	assert.Equal(t, "replica", v)
}

func TestBuild_TypeMismatch(t *testing.T) {
	p := build.Func1(func(n int) (int, error) { return n, nil })
	_, err := p.Build([]any{"nope"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want int")

	_, err = p.Build(nil)
	assert.Error(t, err)
}

func TestBuild_ConstructorError(t *testing.T) {
	boom := errors.New("boom")
	p := build.Func0(func() (int, error) { return 0, boom })
	_, err := p.Build(nil)
	assert.ErrorIs(t, err, boom)
}

func TestFunc_WrongDescriptorCountPanics(t *testing.T) {
	assert.Panics(t, func() {
		build.Func2(func(a, b int) (int, error) { return a + b, nil }, build.Arg[int](0))
	})
}

func TestFunc4(t *testing.T) {
	p := build.Func4(func(a, b, c, d int) (int, error) { return a + b + c + d, nil },
		build.Arg[int](0), build.Arg[int](1), build.Arg[int](2), build.ArgDefault(3, 10))
	v, err := build.Factory(p)(newResolver(resolution.WithArgs(1, 2, 3)))
	require.NoError(t, err)
	assert.Equal(t, 16, v)
}
