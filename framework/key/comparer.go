package key

// ── Comparer ──────────────────────────────────────────────────────────────────

// Comparer is an equivalence relation over composite keys. Project strips the
// components the relation ignores; two keys are equal under the comparer when
// their projections are exactly equal.
type Comparer interface {
	Name() string
	Project(k Composite) Composite
}

var (
	// Exact compares contracts, tags and states. It is the default.
	Exact Comparer = exact{}
	// IgnoreTags treats keys differing only in tags as equal.
	IgnoreTags Comparer = ignoring{name: "ignore-tags", tags: true}
	// IgnoreStates treats keys differing only in states as equal.
	IgnoreStates Comparer = ignoring{name: "ignore-states", states: true}
	// IgnoreBoth compares contracts only.
	IgnoreBoth Comparer = ignoring{name: "ignore-both", tags: true, states: true}
)

type exact struct{}

func (exact) Name() string                  { return "exact" }
func (exact) Project(k Composite) Composite { return k }

type ignoring struct {
	name   string
	tags   bool
	states bool
}

func (c ignoring) Name() string { return c.name }

func (c ignoring) Project(k Composite) Composite {
	out := Composite{contracts: k.contracts, tags: k.tags, states: k.states}
	if c.tags {
		out.tags = nil
	}
	if c.states {
		out.states = nil
	}
	return out
}

// Equal reports whether a and b are equal under c. A nil comparer is Exact.
func Equal(c Comparer, a, b Composite) bool {
	if c == nil {
		c = Exact
	}
	return c.Project(a).Equal(c.Project(b))
}

// Hash returns a string that is identical for keys equal under c.
func Hash(c Comparer, k Composite) string {
	if c == nil {
		c = Exact
	}
	return c.Project(k).ID()
}

// Matches reports whether a registration keyed by entry, compared with c,
// satisfies query. Every query contract must be covered by some entry contract
// (directly or through an open template), and c must accept the tag and
// resolvable-state sets of both sides.
func Matches(c Comparer, entry, query Composite) bool {
	if c == nil {
		c = Exact
	}
	if len(query.contracts) == 0 {
		return false
	}
next:
	for _, q := range query.contracts {
		for _, e := range entry.contracts {
			if e.Covers(q) {
				continue next
			}
		}
		return false
	}
	pe := c.Project(entry.Matchable())
	pq := c.Project(query.Matchable())
	return tagSetEqual(pe.tags, pq.tags) && stateSetEqual(pe.states, pq.states)
}

// Parse maps a comparer name back to a built-in Comparer.
func Parse(name string) (Comparer, bool) {
	for _, c := range []Comparer{Exact, IgnoreTags, IgnoreStates, IgnoreBoth} {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}
