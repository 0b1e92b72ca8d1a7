// Package build is the boundary between the runtime and whatever knows how to
// construct a concrete type.
//
// A Provider describes its constructor's parameters once per construction and
// then builds from the assembled argument values. The runtime never inspects
// the implementation type; constructors are adapted explicitly:
//
//	p := build.Func2(NewUserService,
//		build.Dep[*sql.DB](),
//		build.ArgDefault(0, "users"),
//	)
//	c.Bind(key.Of[*UserService](), build.Factory(p))
package build

import (
	"fmt"

	"github.com/km-arc/go-resolve/framework/key"
)

// Provider describes and builds one implementation.
type Provider interface {
	Describe() Plan
	Build(args []any) (any, error)
}

// Plan lists constructor parameters in declaration order.
type Plan struct {
	Params []Param
}

// Source tells where a parameter value comes from.
type Source int

const (
	// Dependency parameters are resolved from the container.
	Dependency Source = iota
	// State parameters are read from the runtime arguments of the call.
	State
)

func (s Source) String() string {
	if s == State {
		return "state"
	}
	return "dependency"
}

// Param is one constructor parameter.
type Param struct {
	Source Source

	// Dependency.
	Key      key.Composite
	Optional bool

	// State.
	State      key.State
	Default    any
	HasDefault bool
}

func (p Param) String() string {
	if p.Source == State {
		return "state " + p.State.String()
	}
	return "dependency " + p.Key.String()
}

// Dep declares a dependency on the Go type T, optionally tagged.
func Dep[T any](tags ...any) Param {
	return DepKey(key.Of[T](), tags...)
}

// DepKey declares a dependency on contract c.
func DepKey(c key.Contract, tags ...any) Param {
	k := key.For(c)
	if len(tags) > 0 {
		k = k.Tagged(tags...)
	}
	return Param{Source: Dependency, Key: k}
}

// Optional marks a dependency that may be missing. A missing optional
// dependency is passed as the zero value.
func Optional(p Param) Param {
	p.Optional = true
	return p
}

// Arg declares the runtime argument at index as a parameter of type T.
func Arg[T any](index int) Param {
	return Param{Source: State, State: key.StateOf[T](index)}
}

// ArgDefault is Arg with a literal used when the call does not supply index.
func ArgDefault[T any](index int, v T) Param {
	p := Arg[T](index)
	p.Default, p.HasDefault = v, true
	return p
}

// ── Func adapters ─────────────────────────────────────────────────────────────

type funcProvider struct {
	plan Plan
	call func(args []any) (any, error)
}

func (f *funcProvider) Describe() Plan {
	return Plan{Params: append([]Param(nil), f.plan.Params...)}
}

func (f *funcProvider) Build(args []any) (any, error) {
	if len(args) != len(f.plan.Params) {
		return nil, fmt.Errorf("build: want %d arguments, got %d", len(f.plan.Params), len(args))
	}
	return f.call(args)
}

func params(given []Param, defaults ...Param) []Param {
	if len(given) == 0 {
		return defaults
	}
	if len(given) != len(defaults) {
		panic(fmt.Sprintf("build: constructor takes %d parameters, %d described", len(defaults), len(given)))
	}
	return given
}

// arg converts args[i] to T; nil becomes T's zero value.
func arg[T any](args []any, i int) (T, error) {
	var zero T
	if args[i] == nil {
		return zero, nil
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("build: argument %d is %T, want %T", i, args[i], zero)
	}
	return v, nil
}

// Func0 adapts a constructor without parameters.
func Func0[R any](fn func() (R, error)) Provider {
	return &funcProvider{call: func([]any) (any, error) { return fn() }}
}

// Func1 adapts a one-parameter constructor. Without descriptors the parameter
// is a dependency on its Go type.
func Func1[A, R any](fn func(A) (R, error), desc ...Param) Provider {
	return &funcProvider{
		plan: Plan{Params: params(desc, Dep[A]())},
		call: func(args []any) (any, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			return fn(a)
		},
	}
}

// Func2 adapts a two-parameter constructor.
func Func2[A, B, R any](fn func(A, B) (R, error), desc ...Param) Provider {
	return &funcProvider{
		plan: Plan{Params: params(desc, Dep[A](), Dep[B]())},
		call: func(args []any) (any, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			return fn(a, b)
		},
	}
}

// Func3 adapts a three-parameter constructor.
func Func3[A, B, C, R any](fn func(A, B, C) (R, error), desc ...Param) Provider {
	return &funcProvider{
		plan: Plan{Params: params(desc, Dep[A](), Dep[B](), Dep[C]())},
		call: func(args []any) (any, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			return fn(a, b, c)
		},
	}
}

// Func4 adapts a four-parameter constructor.
func Func4[A, B, C, D, R any](fn func(A, B, C, D) (R, error), desc ...Param) Provider {
	return &funcProvider{
		plan: Plan{Params: params(desc, Dep[A](), Dep[B](), Dep[C](), Dep[D]())},
		call: func(args []any) (any, error) {
			a, err := arg[A](args, 0)
			if err != nil {
				return nil, err
			}
			b, err := arg[B](args, 1)
			if err != nil {
				return nil, err
			}
			c, err := arg[C](args, 2)
			if err != nil {
				return nil, err
			}
			d, err := arg[D](args, 3)
			if err != nil {
				return nil, err
			}
			return fn(a, b, c, d)
		},
	}
}
