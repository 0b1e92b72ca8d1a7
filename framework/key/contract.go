package key

import (
	"fmt"
	"reflect"
	"strings"
)

// ── Contract ──────────────────────────────────────────────────────────────────

// Contract identifies a requested capability: a type token (the family), the
// ordered generic arguments it is instantiated with, and whether it is an open
// template waiting for specialization.
//
// Two contracts are equal when they have the same family and the same argument
// list. Open templates compare by family and arity.
type Contract struct {
	family string
	args   []Contract
	arity  int
	open   bool
	id     string
}

// Named returns a non-generic contract identified by an arbitrary token.
//
//	key.Named("config")
func Named(name string) Contract {
	if name == "" {
		panic("key: empty contract name")
	}
	return Contract{family: name, id: name}
}

// Generic returns a concrete instantiation of family with the given arguments.
// With no arguments it is equivalent to Named.
//
//	key.Generic("shop.Box", key.Of[Cat]())
func Generic(family string, args ...Contract) Contract {
	if family == "" {
		panic("key: empty contract family")
	}
	if len(args) == 0 {
		return Named(family)
	}
	for _, a := range args {
		if a.IsZero() {
			panic(fmt.Sprintf("key: zero generic argument for %q", family))
		}
		if a.open {
			panic(fmt.Sprintf("key: open template %s used as argument of %q", a, family))
		}
	}
	c := Contract{
		family: family,
		args:   append([]Contract(nil), args...),
		arity:  len(args),
	}
	ids := make([]string, len(args))
	for i, a := range args {
		ids[i] = a.id
	}
	c.id = family + "[" + strings.Join(ids, ",") + "]"
	return c
}

// Open returns the open template of family with the given generic arity.
// A registration under an open template can be specialized for any concrete
// instantiation of the same family and arity.
func Open(family string, arity int) Contract {
	if family == "" {
		panic("key: empty contract family")
	}
	if arity <= 0 {
		panic(fmt.Sprintf("key: open template %q needs a positive arity", family))
	}
	holes := strings.TrimSuffix(strings.Repeat("?,", arity), ",")
	return Contract{family: family, arity: arity, open: true, id: family + "[" + holes + "]"}
}

// Of returns the contract for the Go type T. Instantiated generic types are
// decomposed, so Of[Box[Cat]]() has family "<pkg>.Box" and argument Of[Cat]().
func Of[T any]() Contract {
	return FromType(reflect.TypeOf((*T)(nil)).Elem())
}

// OpenOf returns the open template for the generic family of T. T may be any
// instantiation of that family:
//
//	key.OpenOf[Box[any]]() // open "<pkg>.Box" with arity 1
func OpenOf[T any]() Contract {
	c := Of[T]()
	if len(c.args) == 0 {
		panic(fmt.Sprintf("key: %s is not a generic type", c))
	}
	return Open(c.family, len(c.args))
}

// FromType returns the contract for t.
func FromType(t reflect.Type) Contract {
	if t == nil {
		panic("key: nil reflect.Type")
	}
	if name := t.Name(); name != "" {
		if i := strings.IndexByte(name, '['); i > 0 && strings.HasSuffix(name, "]") {
			family := name[:i]
			if t.PkgPath() != "" {
				family = t.PkgPath() + "." + family
			}
			return Generic(family, parseArgs(name[i+1:len(name)-1])...)
		}
	}
	return Named(typeName(t))
}

// Family returns the type token.
func (c Contract) Family() string { return c.family }

// Args returns a copy of the generic arguments.
func (c Contract) Args() []Contract { return append([]Contract(nil), c.args...) }

// Arity returns the number of generic parameters (0 for non-generic contracts).
func (c Contract) Arity() int { return c.arity }

// IsOpen reports whether c is an open template.
func (c Contract) IsOpen() bool { return c.open }

// IsGeneric reports whether c is a concrete generic instantiation.
func (c Contract) IsGeneric() bool { return !c.open && c.arity > 0 }

// IsZero reports whether c is the zero Contract.
func (c Contract) IsZero() bool { return c.id == "" }

// ID returns the canonical identity string. Equal contracts have equal IDs.
func (c Contract) ID() string { return c.id }

func (c Contract) String() string { return c.id }

// Equal reports whether c and o denote the same contract.
func (c Contract) Equal(o Contract) bool { return c.id == o.id }

// Covers reports whether a registration holding c satisfies a query for q:
// either the same contract, or c is the open template of q's family and arity.
func (c Contract) Covers(q Contract) bool {
	if c.id == q.id {
		return true
	}
	return c.open && q.IsGeneric() && c.family == q.family && c.arity == q.arity
}

// Template returns the open template q would be specialized from.
func (c Contract) Template() (Contract, bool) {
	if !c.IsGeneric() {
		return Contract{}, false
	}
	return Open(c.family, c.arity), true
}

// ── Reflect helpers ───────────────────────────────────────────────────────────

// typeName renders t with package paths in full, matching the way the runtime
// prints type arguments inside an instantiated generic type name.
func typeName(t reflect.Type) string {
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		return t.PkgPath() + "." + t.Name()
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + typeName(t.Elem())
	case reflect.Slice:
		return "[]" + typeName(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), typeName(t.Elem()))
	case reflect.Map:
		return "map[" + typeName(t.Key()) + "]" + typeName(t.Elem())
	}
	return t.String()
}

// parseArgs splits a bracketed generic argument list on top-level commas.
func parseArgs(s string) []Contract {
	var (
		out   []Contract
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, parseArg(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(out, parseArg(s[start:]))
}

func parseArg(s string) Contract {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '[')
	if i <= 0 || !strings.HasSuffix(s, "]") || strings.ContainsAny(s[:1], "*[(") ||
		strings.HasPrefix(s, "map[") || strings.HasPrefix(s, "chan ") || strings.HasPrefix(s, "func(") {
		return Named(s)
	}
	return Generic(s[:i], parseArgs(s[i+1:len(s)-1])...)
}
