package key

import (
	"errors"
	"sort"
	"strings"
)

// ErrNoContract is returned by Validate for a key without any Contract.
var ErrNoContract = errors.New("key: composite key has no contract")

// ── Composite ─────────────────────────────────────────────────────────────────

// Composite is the full matching key of a registration or a query: a set of
// contracts, a set of tags and a set of states. Membership is unique and order
// is irrelevant; Composite values are immutable.
type Composite struct {
	contracts []Contract
	tags      []Tag
	states    []State
}

// NewComposite builds a Composite, collapsing duplicates.
func NewComposite(contracts []Contract, tags []Tag, states []State) Composite {
	return Composite{
		contracts: uniqueContracts(contracts),
		tags:      uniqueTags(tags),
		states:    uniqueStates(states),
	}
}

// For returns a Composite holding only the given contracts.
//
//	key.For(key.Of[Logger]())
func For(contracts ...Contract) Composite {
	return NewComposite(contracts, nil, nil)
}

// WithContracts returns a copy of k with extra contracts.
func (k Composite) WithContracts(contracts ...Contract) Composite {
	return NewComposite(append(k.Contracts(), contracts...), k.tags, k.states)
}

// WithTags returns a copy of k with extra tags.
func (k Composite) WithTags(tags ...Tag) Composite {
	return NewComposite(k.contracts, append(k.Tags(), tags...), k.states)
}

// Tagged is WithTags for raw values.
func (k Composite) Tagged(values ...any) Composite {
	tags := make([]Tag, len(values))
	for i, v := range values {
		tags[i] = TagOf(v)
	}
	return k.WithTags(tags...)
}

// WithStates returns a copy of k with extra states.
func (k Composite) WithStates(states ...State) Composite {
	return NewComposite(k.contracts, k.tags, append(k.States(), states...))
}

// Contracts returns a copy of the contract set in canonical order.
func (k Composite) Contracts() []Contract { return append([]Contract(nil), k.contracts...) }

// Tags returns a copy of the tag set in canonical order.
func (k Composite) Tags() []Tag { return append([]Tag(nil), k.tags...) }

// States returns a copy of the state set in canonical order.
func (k Composite) States() []State { return append([]State(nil), k.states...) }

// Primary returns the first contract in canonical order, or the zero Contract.
func (k Composite) Primary() Contract {
	if len(k.contracts) == 0 {
		return Contract{}
	}
	return k.contracts[0]
}

// IsZero reports whether k is empty.
func (k Composite) IsZero() bool {
	return len(k.contracts) == 0 && len(k.tags) == 0 && len(k.states) == 0
}

// Validate reports whether k can be used for a registration.
func (k Composite) Validate() error {
	if len(k.contracts) == 0 {
		return ErrNoContract
	}
	return nil
}

// Matchable drops free-form states, which never take part in matching.
func (k Composite) Matchable() Composite {
	states := k.states[:0:0]
	for _, s := range k.states {
		if s.resolvable {
			states = append(states, s)
		}
	}
	return Composite{contracts: k.contracts, tags: k.tags, states: states}
}

// Equal reports exact set equality of all three components.
func (k Composite) Equal(o Composite) bool {
	if len(k.contracts) != len(o.contracts) || len(k.tags) != len(o.tags) || len(k.states) != len(o.states) {
		return false
	}
	for i := range k.contracts {
		if !k.contracts[i].Equal(o.contracts[i]) {
			return false
		}
	}
	return tagSetEqual(k.tags, o.tags) && stateSetEqual(k.states, o.states)
}

// ID returns a canonical string usable as a hash of k under exact comparison.
func (k Composite) ID() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range k.contracts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(c.id)
	}
	if len(k.tags) > 0 {
		b.WriteString("|tags:")
		for i, t := range k.tags {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(t.String())
		}
	}
	if len(k.states) > 0 {
		b.WriteString("|states:")
		for i, s := range k.states {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s.String())
		}
	}
	b.WriteByte('}')
	return b.String()
}

func (k Composite) String() string { return k.ID() }

// ── Set helpers ───────────────────────────────────────────────────────────────

func uniqueContracts(in []Contract) []Contract {
	out := make([]Contract, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		if c.IsZero() {
			continue
		}
		if _, dup := seen[c.id]; dup {
			continue
		}
		seen[c.id] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func uniqueTags(in []Tag) []Tag {
	out := make([]Tag, 0, len(in))
next:
	for _, t := range in {
		if t.value == nil {
			continue
		}
		for _, o := range out {
			if o.Equal(t) {
				continue next
			}
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func uniqueStates(in []State) []State {
	out := make([]State, 0, len(in))
next:
	for _, s := range in {
		for i, o := range out {
			if o.Equal(s) {
				// A slot declared resolvable anywhere stays resolvable.
				out[i].resolvable = o.resolvable || s.resolvable
				continue next
			}
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].index != out[j].index {
			return out[i].index < out[j].index
		}
		return out[i].typ.id < out[j].typ.id
	})
	return out
}

// tagSetEqual compares by value rather than by rendering, so distinct values
// with the same String never collide.
func tagSetEqual(a, b []Tag) bool {
	if len(a) != len(b) {
		return false
	}
next:
	for _, t := range a {
		for _, o := range b {
			if t.Equal(o) {
				continue next
			}
		}
		return false
	}
	return true
}

func stateSetEqual(a, b []State) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
