// Package lifetime decides whether a registration's factory runs again or a
// previously built instance is reused.
//
// A Policy is chosen at registration time; every registration entry gets its
// own Lifetime created from it, so caches never leak between entries.
//
//	lifetime.Singleton                         // one instance per entry
//	lifetime.PerContainer                      // one per requesting container
//	lifetime.AutoDisposing(lifetime.PerResolve) // disposed when the call ends
package lifetime

import (
	"errors"
	"strings"

	"github.com/km-arc/go-resolve/framework/resolution"
)

// ErrDisposed is returned by a Lifetime whose entry has been unregistered while
// a resolve was still holding it.
var ErrDisposed = errors.New("lifetime: entry disposed")

// Kind names a caching policy.
type Kind string

const (
	KindTransient    Kind = "transient"
	KindSingleton    Kind = "singleton"
	KindPerContainer Kind = "per-container"
	KindPerResolve   Kind = "per-resolve"
	KindPerThread    Kind = "per-thread"
	KindPerState     Kind = "per-state"
)

const autoSuffix = "+auto-dispose"

// Policy is the registration-time description of a lifetime.
type Policy struct {
	kind Kind
	auto bool
}

var (
	// Transient never caches. It is the default.
	Transient = Policy{kind: KindTransient}
	// Singleton caches one instance per entry for the life of its container.
	Singleton = Policy{kind: KindSingleton}
	// PerContainer caches one instance per requesting container.
	PerContainer = Policy{kind: KindPerContainer}
	// PerResolve caches one instance per top-level resolve call.
	PerResolve = Policy{kind: KindPerResolve}
	// PerThread caches one instance per caller-supplied thread identity
	// (resolution.WithThread). Calls that never set one share identity 0 and
	// therefore share one instance.
	PerThread = Policy{kind: KindPerThread}
	// PerState caches one instance per distinct runtime argument tuple.
	PerState = Policy{kind: KindPerState}
)

// AutoDisposing decorates p: produced instances that implement Disposer or
// io.Closer are disposed when evicted from the cache or when the entry goes
// away.
func AutoDisposing(p Policy) Policy {
	p.auto = true
	return p
}

// Kind returns the caching policy.
func (p Policy) Kind() Kind {
	if p.kind == "" {
		return KindTransient
	}
	return p.kind
}

// IsZero reports whether p was left unset.
func (p Policy) IsZero() bool { return p.kind == "" && !p.auto }

// AutoDispose reports whether produced instances are disposed by the runtime.
func (p Policy) AutoDispose() bool { return p.auto }

func (p Policy) String() string {
	if p.auto {
		return string(p.Kind()) + autoSuffix
	}
	return string(p.Kind())
}

// New creates the Lifetime for one registration entry.
func (p Policy) New() Lifetime {
	m := &manager{
		kind:  p.Kind(),
		auto:  p.auto,
		cache:  make(map[string]any),
		owners: make(map[string]resolution.CallID),
	}
	return m
}

// Parse reads a Policy from its String form, e.g. "singleton+auto-dispose".
func Parse(s string) (Policy, bool) {
	auto := strings.HasSuffix(s, autoSuffix)
	s = strings.TrimSuffix(s, autoSuffix)
	for _, p := range []Policy{Transient, Singleton, PerContainer, PerResolve, PerThread, PerState} {
		if string(p.kind) == s {
			p.auto = auto
			return p, true
		}
	}
	if s == "" {
		return Policy{kind: KindTransient, auto: auto}, true
	}
	return Policy{}, false
}

// ── Runtime contracts ─────────────────────────────────────────────────────────

// Owner is the requesting container as a lifetime sees it.
type Owner interface {
	ID() string
	// OnDispose registers fn to run once when the container is disposed.
	OnDispose(fn func())
}

// Request describes one instance request.
type Request struct {
	Requester Owner
	Call      resolution.CallID
	// State holds the runtime arguments ordered by index.
	State []any
	// OnComplete registers fn to run when the top-level call finishes.
	OnComplete func(fn func())
	// Wait is consulted before blocking on a construction owned by another
	// call. It fails when that call is itself waiting on this one; release
	// ends the wait. A nil Wait blocks unconditionally.
	Wait func(owner resolution.CallID) (release func(), err error)
}

// Builder runs the underlying factory.
type Builder func() (any, error)

// Lifetime wraps the factory call of one entry.
type Lifetime interface {
	Kind() Kind
	AutoDispose() bool
	// Instance returns a cached instance for req or builds one. Concurrent
	// callers for the same cache key observe exactly one build.
	Instance(req Request, build Builder) (any, error)
	// Cached returns the number of cached instances.
	Cached() int
	// Dispose evicts every cached instance, disposing auto-disposing ones.
	// It is idempotent.
	Dispose() error
}

// Disposer is implemented by instances that release resources.
type Disposer interface {
	Dispose() error
}
