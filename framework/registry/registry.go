// Package registry holds the per-container table of registration entries.
//
// Readers load an immutable snapshot through an atomic pointer and never wait
// for writers. Writers serialize on a mutex, build the next snapshot and swap
// it in, so a batch becomes visible all at once or not at all.
//
// Entries are kept in registration order. Lookup scans most-recent-first, so a
// newer registration shadows an older one for the same key and removing the
// newer one lets lookups fall through to the older.
package registry

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/scope"
)

// ErrInactive is returned when specializing a template that was unregistered.
var ErrInactive = errors.New("registry: entry is no longer registered")

// ConflictPolicy decides what happens when a batch repeats a live key.
type ConflictPolicy int

const (
	// Shadow lets the newest registration win while older ones stay reachable.
	Shadow ConflictPolicy = iota
	// Reject refuses a batch whose key exactly equals a live entry or another
	// statement of the same batch.
	Reject
)

func (p ConflictPolicy) String() string {
	if p == Reject {
		return "reject"
	}
	return "shadow"
}

// ParseConflictPolicy reads "shadow" or "reject".
func ParseConflictPolicy(s string) (ConflictPolicy, bool) {
	switch strings.ToLower(s) {
	case "", "shadow":
		return Shadow, true
	case "reject":
		return Reject, true
	}
	return Shadow, false
}

// Token owns the entries committed by one batch.
type Token struct {
	reg      *Registry
	entries  []*Entry
	released atomic.Bool
}

// Entries returns the entries committed with the token.
func (t *Token) Entries() []*Entry { return append([]*Entry(nil), t.entries...) }

// Released reports whether the token was unregistered.
func (t *Token) Released() bool { return t.released.Load() }

// snapshot is immutable once published.
type snapshot struct {
	entries    []*Entry            // registration order
	byContract map[string][]*Entry // contract ID -> entries, registration order
}

func buildSnapshot(entries []*Entry) *snapshot {
	s := &snapshot{entries: entries, byContract: make(map[string][]*Entry)}
	for _, e := range entries {
		for _, c := range e.key.Contracts() {
			s.byContract[c.ID()] = append(s.byContract[c.ID()], e)
		}
	}
	return s
}

// Registry is the entry table of one container.
type Registry struct {
	owner  scope.Node
	policy ConflictPolicy

	mu   sync.Mutex
	snap atomic.Pointer[snapshot]
}

// New creates an empty registry owned by the container node owner.
func New(owner scope.Node, policy ConflictPolicy) *Registry {
	r := &Registry{owner: owner, policy: policy}
	r.snap.Store(buildSnapshot(nil))
	return r
}

// Policy returns the conflict policy.
func (r *Registry) Policy() ConflictPolicy { return r.policy }

// ── Writes ────────────────────────────────────────────────────────────────────

// Validate checks a batch without applying it.
func (r *Registry) Validate(batch ...Registration) error {
	return r.validate(r.snap.Load(), batch)
}

func (r *Registry) validate(s *snapshot, batch []Registration) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty batch")
	}
	var problems []error
	seen := make(map[string]int, len(batch))
	for i, reg := range batch {
		label := reg.Key.String()
		if err := reg.Key.Validate(); err != nil {
			problems = append(problems, fmt.Errorf("statement %d: %w", i, err))
			continue
		}
		if _, isTemplate := reg.template(); isTemplate {
			if reg.Specializer == nil {
				problems = append(problems, fmt.Errorf("statement %d %s: open template needs a specializer", i, label))
			}
		} else if reg.Factory == nil {
			problems = append(problems, fmt.Errorf("statement %d %s: no factory", i, label))
		}
		if reg.Scope != nil && !reg.Scope.AllowsRegistration(r.owner) {
			problems = append(problems, fmt.Errorf("statement %d %s: scope %s refuses this container", i, label, reg.Scope.Name()))
		}

		if r.policy != Reject {
			continue
		}
		h := key.Hash(key.Exact, reg.Key)
		if j, dup := seen[h]; dup {
			problems = append(problems, fmt.Errorf("statement %d %s: duplicates statement %d", i, label, j))
		}
		seen[h] = i
		for _, e := range s.byContract[reg.Key.Primary().ID()] {
			if e.Active() && key.Equal(key.Exact, e.key, reg.Key) {
				problems = append(problems, fmt.Errorf("statement %d %s: already registered", i, label))
				break
			}
		}
	}
	return errors.Join(problems...)
}

// Register validates and commits a batch atomically. On failure nothing is
// applied and the returned error lists every problem.
func (r *Registry) Register(batch ...Registration) (*Token, []*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	if err := r.validate(cur, batch); err != nil {
		return nil, nil, err
	}

	tok := &Token{reg: r}
	for _, reg := range batch {
		tok.entries = append(tok.entries, newEntry(reg, r.owner))
	}
	next := make([]*Entry, 0, len(cur.entries)+len(tok.entries))
	next = append(append(next, cur.entries...), tok.entries...)
	r.snap.Store(buildSnapshot(next))
	return tok, tok.Entries(), nil
}

// Unregister removes exactly the token's entries. It returns them so the
// caller can dispose their lifetimes; a second call returns nil.
func (r *Registry) Unregister(tok *Token) []*Entry {
	if tok == nil || tok.reg != r || !tok.released.CompareAndSwap(false, true) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[*Entry]struct{}, len(tok.entries))
	for _, e := range tok.entries {
		e.active.Store(false)
		drop[e] = struct{}{}
	}
	cur := r.snap.Load()
	next := make([]*Entry, 0, len(cur.entries))
	for _, e := range cur.entries {
		if _, gone := drop[e]; !gone {
			next = append(next, e)
		}
	}
	r.snap.Store(buildSnapshot(next))
	return tok.Entries()
}

// Clear removes every entry and returns them in reverse registration order.
func (r *Registry) Clear() []*Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	out := make([]*Entry, 0, len(cur.entries))
	for i := len(cur.entries) - 1; i >= 0; i-- {
		e := cur.entries[i]
		e.active.Store(false)
		out = append(out, e)
	}
	r.snap.Store(buildSnapshot(nil))
	return out
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// Lookup returns the concrete entries matching query, most recent first.
func (r *Registry) Lookup(query key.Composite) []*Entry {
	s := r.snap.Load()
	bucket := s.byContract[query.Primary().ID()]
	var out []*Entry
	for i := len(bucket) - 1; i >= 0; i-- {
		e := bucket[i]
		if e.Active() && !e.IsTemplate() && e.Matches(query) {
			out = append(out, e)
		}
	}
	return out
}

// Templates returns the open template entries that could be specialized for
// any concrete generic contract of query, most recent first.
func (r *Registry) Templates(query key.Composite) []*Entry {
	s := r.snap.Load()
	found := make(map[*Entry]struct{})
	for _, c := range query.Contracts() {
		tpl, ok := c.Template()
		if !ok {
			continue
		}
		for _, e := range s.byContract[tpl.ID()] {
			if e.Active() && e.IsTemplate() && e.Matches(query) {
				found[e] = struct{}{}
			}
		}
	}
	if len(found) == 0 {
		return nil
	}
	out := make([]*Entry, 0, len(found))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if _, ok := found[s.entries[i]]; ok {
			out = append(out, s.entries[i])
		}
	}
	return out
}

// Specialize returns the concrete entry of template tpl for the generic
// contract requested by query, materializing it on first use.
func (r *Registry) Specialize(tpl *Entry, query key.Composite) (*Entry, error) {
	if !tpl.IsTemplate() {
		return tpl, nil
	}
	var concrete key.Contract
	for _, c := range query.Contracts() {
		if tpl.open.Covers(c) {
			concrete = c
			break
		}
	}
	if concrete.IsZero() {
		return nil, fmt.Errorf("registry: %s does not specialize %s", tpl.open, query)
	}

	tpl.mu.Lock()
	defer tpl.mu.Unlock()
	if !tpl.Active() {
		return nil, ErrInactive
	}
	if e, ok := tpl.specialized[concrete.ID()]; ok {
		return e, nil
	}

	factory, err := tpl.specializer(concrete.Args())
	if err != nil {
		return nil, fmt.Errorf("specialize %s: %w", concrete, err)
	}
	contracts := tpl.key.Contracts()
	for i, c := range contracts {
		if c.Equal(tpl.open) {
			contracts[i] = concrete
		}
	}
	e := newEntry(Registration{
		Key:      key.NewComposite(contracts, tpl.key.Tags(), tpl.key.States()),
		Factory:  factory,
		Lifetime: tpl.policy,
		Scope:    tpl.scope,
		Comparer: tpl.comparer,
	}, tpl.owner)
	e.template = tpl
	tpl.specialized[concrete.ID()] = e
	return e, nil
}

// Entries returns the live entries in registration order.
func (r *Registry) Entries() []*Entry {
	return append([]*Entry(nil), r.snap.Load().entries...)
}

// Len returns the number of live entries.
func (r *Registry) Len() int { return len(r.snap.Load().entries) }
