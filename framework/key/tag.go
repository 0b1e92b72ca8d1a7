package key

import (
	"fmt"
	"reflect"
	"strconv"
)

// ── Tag ───────────────────────────────────────────────────────────────────────

// Tag is an opaque discriminator distinguishing several registrations of the
// same contract, e.g. a name or an enum value. Tags compare by value.
type Tag struct {
	value any
}

// TagOf wraps v as a Tag. v must be non-nil and comparable.
//
//	key.For(key.Of[DB]()).WithTags(key.TagOf("primary"))
func TagOf(v any) Tag {
	if v == nil {
		panic("key: nil tag value")
	}
	if !reflect.TypeOf(v).Comparable() {
		panic(fmt.Sprintf("key: tag value of type %T is not comparable", v))
	}
	return Tag{value: v}
}

// Value returns the wrapped value.
func (t Tag) Value() any { return t.value }

// Equal reports value equality.
func (t Tag) Equal(o Tag) bool { return t.value == o.value }

func (t Tag) String() string {
	if s, ok := t.value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprintf("%T(%v)", t.value, t.value)
}

// ── State ─────────────────────────────────────────────────────────────────────

// State identifies a runtime-supplied argument slot by index and declared type.
// A resolvable state participates in registry matching; a free-form one only
// describes an argument the caller supplies at resolve time.
//
// Equality is index + type; the resolvable flag is not part of it.
type State struct {
	index      int
	typ        Contract
	resolvable bool
}

// NewState returns a State for slot index of type typ.
func NewState(index int, typ Contract, resolvable bool) State {
	if index < 0 {
		panic(fmt.Sprintf("key: negative state index %d", index))
	}
	if typ.IsZero() {
		panic("key: state without a type")
	}
	return State{index: index, typ: typ, resolvable: resolvable}
}

// StateOf returns a free-form state slot of Go type T.
func StateOf[T any](index int) State {
	return NewState(index, Of[T](), false)
}

// KeyedState returns a resolvable state slot of Go type T.
func KeyedState[T any](index int) State {
	return NewState(index, Of[T](), true)
}

// Index returns the argument position.
func (s State) Index() int { return s.index }

// Type returns the declared argument type.
func (s State) Type() Contract { return s.typ }

// Resolvable reports whether the slot participates in key matching.
func (s State) Resolvable() bool { return s.resolvable }

// Equal reports index + type equality.
func (s State) Equal(o State) bool { return s.index == o.index && s.typ.id == o.typ.id }

func (s State) String() string {
	return "#" + strconv.Itoa(s.index) + ":" + s.typ.id
}
