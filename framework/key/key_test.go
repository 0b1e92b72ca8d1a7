package key_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/km-arc/go-resolve/framework/key"
)

type Cat struct{}

type Box[T any] struct{ Content T }

type Pair[K comparable, V any] struct {
	K K
	V V
}

type color int

const (
	red color = iota
	blue
)

// ── Contracts ─────────────────────────────────────────────────────────────────

func TestContract_OfNamedType(t *testing.T) {
	c := key.Of[Cat]()
	assert.Equal(t, "github.com/km-arc/go-resolve/framework/key_test.Cat", c.ID())
	assert.False(t, c.IsGeneric())
	assert.False(t, c.IsOpen())
	assert.True(t, c.Equal(key.Of[Cat]()))
}

func TestContract_OfPointerAndSlice(t *testing.T) {
	assert.Equal(t, "*"+key.Of[Cat]().ID(), key.Of[*Cat]().ID())
	assert.Equal(t, "[]"+key.Of[Cat]().ID(), key.Of[[]Cat]().ID())
	assert.Equal(t, "int", key.Of[int]().ID())
	assert.False(t, key.Of[Cat]().Equal(key.Of[*Cat]()))
}

func TestContract_GenericDecomposition(t *testing.T) {
	c := key.Of[Box[Cat]]()
	require.True(t, c.IsGeneric())
	assert.Equal(t, 1, c.Arity())
	assert.Equal(t, []key.Contract{key.Of[Cat]()}, c.Args())

	built := key.Generic(c.Family(), key.Of[Cat]())
	assert.True(t, c.Equal(built))
}

func TestContract_GenericTwoArgs(t *testing.T) {
	c := key.Of[Pair[string, *Cat]]()
	require.Equal(t, 2, c.Arity())
	args := c.Args()
	assert.True(t, args[0].Equal(key.Of[string]()))
	assert.True(t, args[1].Equal(key.Of[*Cat]()))
}

func TestContract_OpenTemplateCovers(t *testing.T) {
	open := key.OpenOf[Box[any]]()
	assert.True(t, open.IsOpen())
	assert.Equal(t, 1, open.Arity())

	assert.True(t, open.Covers(key.Of[Box[Cat]]()))
	assert.True(t, open.Covers(key.Of[Box[int]]()))
	assert.False(t, open.Covers(key.Of[Cat]()))
	assert.False(t, open.Covers(key.Of[Pair[int, int]]()))
	assert.False(t, key.Of[Box[Cat]]().Covers(key.Of[Box[int]]()))

	tpl, ok := key.Of[Box[Cat]]().Template()
	require.True(t, ok)
	assert.True(t, tpl.Equal(open))
}

func TestContract_InvalidInputsPanic(t *testing.T) {
	assert.Panics(t, func() { key.Named("") })
	assert.Panics(t, func() { key.Open("x", 0) })
	assert.Panics(t, func() { key.OpenOf[Cat]() })
	assert.Panics(t, func() { key.NewState(-1, key.Of[int](), false) })
	assert.Panics(t, func() { key.TagOf(nil) })
	assert.Panics(t, func() { key.TagOf([]int{1}) })
}

// ── Composite equality ────────────────────────────────────────────────────────

func TestComposite_OrderIrrelevant(t *testing.T) {
	a := key.NewComposite(
		[]key.Contract{key.Of[Cat](), key.Named("pet")},
		[]key.Tag{key.TagOf("a"), key.TagOf(red)},
		[]key.State{key.KeyedState[int](1), key.StateOf[string](0)},
	)
	b := key.NewComposite(
		[]key.Contract{key.Named("pet"), key.Of[Cat](), key.Named("pet")},
		[]key.Tag{key.TagOf(red), key.TagOf("a")},
		[]key.State{key.StateOf[string](0), key.KeyedState[int](1)},
	)
	assert.True(t, key.Equal(key.Exact, a, b))
	assert.Equal(t, key.Hash(key.Exact, a), key.Hash(key.Exact, b))
}

func TestComposite_DifferentSetsNotEqual(t *testing.T) {
	base := key.For(key.Of[Cat]())
	assert.False(t, key.Equal(key.Exact, base, base.Tagged("x")))
	assert.False(t, key.Equal(key.Exact, base, base.WithContracts(key.Named("pet"))))
	assert.False(t, key.Equal(key.Exact, base, base.WithStates(key.StateOf[int](0))))
	assert.False(t, key.Equal(key.Exact, base.Tagged(red), base.Tagged(blue)))
}

func TestComposite_StateEqualityIgnoresFlag(t *testing.T) {
	assert.True(t, key.StateOf[int](0).Equal(key.KeyedState[int](0)))
	assert.False(t, key.StateOf[int](0).Equal(key.StateOf[int](1)))
	assert.False(t, key.StateOf[int](0).Equal(key.StateOf[string](0)))
}

func TestComposite_Validate(t *testing.T) {
	require.ErrorIs(t, key.Composite{}.Validate(), key.ErrNoContract)
	require.ErrorIs(t, key.NewComposite(nil, []key.Tag{key.TagOf("x")}, nil).Validate(), key.ErrNoContract)
	require.NoError(t, key.For(key.Of[Cat]()).Validate())
}

// ── Comparers ─────────────────────────────────────────────────────────────────

func TestComparer_Relaxed(t *testing.T) {
	a := key.For(key.Of[Cat]()).Tagged("a").WithStates(key.KeyedState[int](0))
	b := key.For(key.Of[Cat]()).Tagged("b").WithStates(key.KeyedState[int](0))
	c := key.For(key.Of[Cat]()).Tagged("a")

	assert.False(t, key.Equal(key.Exact, a, b))
	assert.True(t, key.Equal(key.IgnoreTags, a, b))
	assert.False(t, key.Equal(key.IgnoreTags, a, c))
	assert.True(t, key.Equal(key.IgnoreStates, a, c))
	assert.False(t, key.Equal(key.IgnoreStates, a, b))
	assert.True(t, key.Equal(key.IgnoreBoth, b, c))
	assert.Equal(t, key.Hash(key.IgnoreBoth, b), key.Hash(key.IgnoreBoth, c))
}

func TestMatches_QueryContractsCovered(t *testing.T) {
	entry := key.For(key.Of[Cat](), key.Named("pet"))
	assert.True(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat]())))
	assert.True(t, key.Matches(key.Exact, entry, key.For(key.Named("pet"), key.Of[Cat]())))
	assert.False(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat](), key.Named("other"))))
	assert.False(t, key.Matches(key.Exact, entry, key.Composite{}))
}

func TestMatches_FreeFormStatesIgnored(t *testing.T) {
	entry := key.For(key.Of[Cat]()).WithStates(key.StateOf[string](0))
	assert.True(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat]())))

	keyed := key.For(key.Of[Cat]()).WithStates(key.KeyedState[string](0))
	assert.False(t, key.Matches(key.Exact, keyed, key.For(key.Of[Cat]())))
	assert.True(t, key.Matches(key.IgnoreStates, keyed, key.For(key.Of[Cat]())))
}

func TestMatches_TagsUnderComparer(t *testing.T) {
	entry := key.For(key.Of[Cat]()).Tagged("primary")
	assert.True(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat]()).Tagged("primary")))
	assert.False(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat]())))
	assert.True(t, key.Matches(key.IgnoreTags, entry, key.For(key.Of[Cat]())))
	assert.True(t, key.Matches(key.IgnoreTags, entry, key.For(key.Of[Cat]()).Tagged("secondary")))
}

func TestMatches_OpenTemplate(t *testing.T) {
	entry := key.For(key.OpenOf[Box[any]]())
	assert.True(t, key.Matches(key.Exact, entry, key.For(key.Of[Box[Cat]]())))
	assert.False(t, key.Matches(key.Exact, entry, key.For(key.Of[Cat]())))
}

func TestParseComparer(t *testing.T) {
	for _, c := range []key.Comparer{key.Exact, key.IgnoreTags, key.IgnoreStates, key.IgnoreBoth} {
		got, ok := key.Parse(c.Name())
		require.True(t, ok)
		assert.Equal(t, c, got)
	}
	_, ok := key.Parse("nope")
	assert.False(t, ok)
}
