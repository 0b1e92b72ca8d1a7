// Package resolution carries the per-call state of a resolve: the requested
// key, runtime arguments and the resolve-call identity shared by every nested
// resolution of one top-level call.
//
// The identity is an explicit value rather than goroutine-local state, so
// cycle detection and per-call caching are deterministic and testable without
// real threads.
package resolution

import (
	"strconv"
	"sync"
	"sync/atomic"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
)

// DefaultMaxDepth bounds nested resolutions of one call.
const DefaultMaxDepth = 512

// seq numbers top-level resolve calls process-wide.
var seq atomic.Uint64

// ── Call identity ─────────────────────────────────────────────────────────────

// CallID identifies one top-level resolve call. Thread is supplied by the
// caller (see WithThread); Seq is assigned once per call from a monotonic
// counter.
type CallID struct {
	Thread uint64
	Seq    uint64
}

func (id CallID) String() string {
	return "t" + strconv.FormatUint(id.Thread, 10) + "/c" + strconv.FormatUint(id.Seq, 10)
}

// Args holds runtime argument values by index.
type Args map[int]any

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a top-level call.
type Option func(*settings)

type settings struct {
	thread uint64
	args   Args
}

// WithThread binds the call to a caller-chosen thread identity. Per-thread
// lifetimes cache by this value. The default identity is 0.
func WithThread(id uint64) Option {
	return func(s *settings) { s.thread = id }
}

// WithArgs supplies positional runtime arguments starting at index 0.
func WithArgs(values ...any) Option {
	return func(s *settings) {
		for i, v := range values {
			s.args[i] = v
		}
	}
}

// WithArg supplies the runtime argument at index.
func WithArg(index int, v any) Option {
	return func(s *settings) { s.args[index] = v }
}

// ── Call ──────────────────────────────────────────────────────────────────────

// Call is the state shared by a top-level resolve and all nested resolutions
// triggered while building its graph.
type Call struct {
	id       CallID
	maxDepth int

	mu     sync.Mutex
	active map[uint64]struct{}
	path   []string
	hooks  []func()
	done   bool
}

// ID returns the resolve-call identity.
func (c *Call) ID() CallID { return c.id }

// ── Context ───────────────────────────────────────────────────────────────────

// Context is the per-request view of a Call.
type Context struct {
	key  key.Composite
	args Args
	call *Call
}

// New starts a top-level call for k. maxDepth <= 0 selects DefaultMaxDepth.
func New(k key.Composite, maxDepth int, opts ...Option) *Context {
	s := settings{args: Args{}}
	for _, o := range opts {
		o(&s)
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Context{
		key:  k,
		args: s.args,
		call: &Call{
			id:       CallID{Thread: s.thread, Seq: seq.Add(1)},
			maxDepth: maxDepth,
			active:   make(map[uint64]struct{}),
		},
	}
}

// Nested derives the context of a dependency resolved on behalf of c. It
// shares c's call identity; args may be nil.
func (c *Context) Nested(k key.Composite, args Args) *Context {
	if args == nil {
		args = Args{}
	}
	return &Context{key: k, args: args, call: c.call}
}

// NestedWith is Nested with arguments taken from opts. Thread options are
// ignored; a nested resolution always keeps the call's thread.
func (c *Context) NestedWith(k key.Composite, opts ...Option) *Context {
	s := settings{args: Args{}}
	for _, o := range opts {
		o(&s)
	}
	return c.Nested(k, s.args)
}

// Key returns the requested key.
func (c *Context) Key() key.Composite { return c.key }

// Call returns the shared call.
func (c *Context) Call() *Call { return c.call }

// CallID returns the resolve-call identity.
func (c *Context) CallID() CallID { return c.call.id }

// Arg returns the runtime argument at index.
func (c *Context) Arg(index int) (any, bool) {
	v, ok := c.args[index]
	return v, ok
}

// Args returns a copy of the runtime arguments.
func (c *Context) Args() Args {
	out := make(Args, len(c.args))
	for i, v := range c.args {
		out[i] = v
	}
	return out
}

// Values returns the runtime arguments ordered by index.
func (c *Context) Values() []any {
	if len(c.args) == 0 {
		return nil
	}
	last := -1
	for i := range c.args {
		if i > last {
			last = i
		}
	}
	out := make([]any, last+1)
	for i, v := range c.args {
		out[i] = v
	}
	return out
}

// Enter marks entry as under construction for this call. Re-entering an entry
// before it is left is a circular dependency and fails immediately; waiting
// would deadlock the call against itself. label names the entry in the error
// path.
func (c *Context) Enter(entry uint64, label string) (leave func(), err error) {
	call := c.call
	call.mu.Lock()
	defer call.mu.Unlock()

	if _, busy := call.active[entry]; busy {
		return nil, rerrors.CircularDependency(append(append([]string(nil), call.path...), label))
	}
	if len(call.path) >= call.maxDepth {
		return nil, rerrors.CircularDependency(append(append([]string(nil), call.path...), label)).
			WithContext("max_depth", call.maxDepth)
	}
	call.active[entry] = struct{}{}
	call.path = append(call.path, label)
	depth := len(call.path)

	var once sync.Once
	return func() {
		once.Do(func() {
			call.mu.Lock()
			defer call.mu.Unlock()
			delete(call.active, entry)
			if len(call.path) >= depth {
				call.path = append(call.path[:depth-1], call.path[depth:]...)
			}
		})
	}, nil
}

// Depth returns the number of registrations currently under construction.
func (c *Context) Depth() int {
	c.call.mu.Lock()
	defer c.call.mu.Unlock()
	return len(c.call.path)
}

// OnComplete registers fn to run when the top-level call finishes. After
// Finish, fn runs immediately.
func (c *Context) OnComplete(fn func()) {
	call := c.call
	call.mu.Lock()
	if call.done {
		call.mu.Unlock()
		fn()
		return
	}
	call.hooks = append(call.hooks, fn)
	call.mu.Unlock()
}

// Finish ends the call and runs completion hooks in reverse order. It is
// idempotent.
func (c *Context) Finish() {
	call := c.call
	call.mu.Lock()
	if call.done {
		call.mu.Unlock()
		return
	}
	call.done = true
	hooks := call.hooks
	call.hooks = nil
	call.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// ── Wait-for graph ────────────────────────────────────────────────────────────

// waits records, process-wide, which calls are blocked on a construction
// owned by another call.
var waits = struct {
	mu    sync.Mutex
	edges map[CallID]map[CallID]int
}{edges: make(map[CallID]map[CallID]int)}

// WaitFor records that c's call is about to block on a construction owned by
// the call owner. When owner is already waiting, directly or transitively, on
// c's call, blocking would never end and WaitFor fails with a circular
// dependency instead. release must be called once the wait is over.
func (c *Context) WaitFor(owner CallID) (release func(), err error) {
	me := c.call.id

	waits.mu.Lock()
	defer waits.mu.Unlock()
	if owner == me || waitsOn(owner, me) {
		return nil, rerrors.CircularDependency(c.path()).WithContext("waiting_on", owner.String())
	}
	out := waits.edges[me]
	if out == nil {
		out = make(map[CallID]int)
		waits.edges[me] = out
	}
	out[owner]++

	var once sync.Once
	return func() {
		once.Do(func() {
			waits.mu.Lock()
			defer waits.mu.Unlock()
			out := waits.edges[me]
			if out[owner]--; out[owner] <= 0 {
				delete(out, owner)
			}
			if len(out) == 0 {
				delete(waits.edges, me)
			}
		})
	}, nil
}

// Waiting returns the number of calls currently blocked on another call.
func Waiting() int {
	waits.mu.Lock()
	defer waits.mu.Unlock()
	return len(waits.edges)
}

// waitsOn reports whether from reaches to in the wait-for graph. waits.mu must
// be held.
func waitsOn(from, to CallID) bool {
	seen := make(map[CallID]bool)
	stack := []CallID{from}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == to {
			return true
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		for next := range waits.edges[n] {
			stack = append(stack, next)
		}
	}
	return false
}

func (c *Context) path() []string {
	c.call.mu.Lock()
	defer c.call.mu.Unlock()
	return append([]string(nil), c.call.path...)
}
