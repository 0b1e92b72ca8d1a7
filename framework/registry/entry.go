package registry

import (
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/resolution"
	"github.com/km-arc/go-resolve/framework/scope"
)

// entryIDs numbers entries process-wide so cycle detection can tell entries of
// different containers apart.
var entryIDs atomic.Uint64

// Resolver is what a factory receives: the container building it, bound to the
// current resolve call. Dependencies must be resolved through it so nested
// resolutions share the call identity.
type Resolver interface {
	Resolve(k key.Composite, opts ...resolution.Option) (any, error)
	TryResolve(k key.Composite, opts ...resolution.Option) (any, bool, error)
	ResolveAll(k key.Composite, opts ...resolution.Option) ([]any, error)
	// Call returns the resolution context of the instance being built.
	Call() *resolution.Context
}

// Factory builds one instance.
type Factory func(r Resolver) (any, error)

// Specializer produces the factory of a concrete instantiation of an open
// template from its generic arguments.
type Specializer func(args []key.Contract) (Factory, error)

// Registration is one statement of a batch.
type Registration struct {
	Key     key.Composite
	Factory Factory
	// Specializer is required when Key holds an open template contract.
	Specializer Specializer
	Lifetime    lifetime.Policy
	// Scope defaults to scope.Global.
	Scope scope.Scope
	// Comparer defaults to key.Exact.
	Comparer key.Comparer
}

func (r Registration) template() (key.Contract, bool) {
	for _, c := range r.Key.Contracts() {
		if c.IsOpen() {
			return c, true
		}
	}
	return key.Contract{}, false
}

// ── Entry ─────────────────────────────────────────────────────────────────────

// Entry is a committed registration. It never changes after commit except for
// its active flag and, for templates, the specialization table.
type Entry struct {
	id          uint64
	key         key.Composite
	factory     Factory
	specializer Specializer
	open        key.Contract
	policy      lifetime.Policy
	lifetime    lifetime.Lifetime
	scope       scope.Scope
	comparer    key.Comparer
	owner       scope.Node
	template    *Entry

	active atomic.Bool

	mu          sync.Mutex
	specialized map[string]*Entry
}

func newEntry(r Registration, owner scope.Node) *Entry {
	e := &Entry{
		id:          entryIDs.Add(1),
		key:         r.Key,
		factory:     r.Factory,
		specializer: r.Specializer,
		policy:      r.Lifetime,
		lifetime:    r.Lifetime.New(),
		scope:       r.Scope,
		comparer:    r.Comparer,
		owner:       owner,
	}
	if e.scope == nil {
		e.scope = scope.Global
	}
	if e.comparer == nil {
		e.comparer = key.Exact
	}
	if open, ok := r.template(); ok {
		e.open = open
		e.specialized = make(map[string]*Entry)
	}
	e.active.Store(true)
	return e
}

func (e *Entry) ID() uint64                  { return e.id }
func (e *Entry) Key() key.Composite          { return e.key }
func (e *Entry) Factory() Factory            { return e.factory }
func (e *Entry) Policy() lifetime.Policy     { return e.policy }
func (e *Entry) Lifetime() lifetime.Lifetime { return e.lifetime }
func (e *Entry) Scope() scope.Scope          { return e.scope }
func (e *Entry) Comparer() key.Comparer      { return e.comparer }
func (e *Entry) Owner() scope.Node           { return e.owner }
func (e *Entry) Active() bool                { return e.active.Load() }
func (e *Entry) Label() string               { return e.key.String() }
func (e *Entry) IsTemplate() bool            { return !e.open.IsZero() }

// Template returns the open template e was specialized from, or nil.
func (e *Entry) Template() *Entry { return e.template }

// Matches reports whether e satisfies query under e's comparer.
func (e *Entry) Matches(query key.Composite) bool {
	return key.Matches(e.comparer, e.key, query)
}

// Specializations returns the number of materialized instantiations.
func (e *Entry) Specializations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.specialized)
}

// Dispose releases the entry's lifetime and those of its specializations.
func (e *Entry) Dispose() error {
	e.active.Store(false)
	err := e.lifetime.Dispose()

	e.mu.Lock()
	specs := make([]*Entry, 0, len(e.specialized))
	for _, s := range e.specialized {
		specs = append(specs, s)
	}
	e.mu.Unlock()

	for _, s := range specs {
		err = multierr.Append(err, s.Dispose())
	}
	return err
}
