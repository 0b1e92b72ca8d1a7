package container

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/events"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/registry"
	"github.com/km-arc/go-resolve/framework/resolution"
)

// evictionRetries bounds lookups repeated because an entry was unregistered
// between lookup and construction.
const evictionRetries = 3

// ── Resolution ────────────────────────────────────────────────────────────────

// Resolve returns an instance for k.
//
// Lookup walks c's registry (concrete entries, then open templates), then each
// ancestor, skipping entries whose scope hides them from c. It fails with
// ErrNotRegistered when nothing matches and ErrScopeViolation when only hidden
// entries match.
//
// A non-nil error together with a non-nil instance means resolution succeeded
// but a listener failed (ErrNotificationFailed).
func (c *Container) Resolve(k key.Composite, opts ...resolution.Option) (any, error) {
	if !c.acquire() {
		return nil, rerrors.DisposedContainer(c.id, "resolve")
	}
	defer c.release()

	ctx := resolution.New(k, c.settings.maxDepth, opts...)
	defer ctx.Finish()

	st := &callState{}
	v, err := c.resolve(ctx, st)
	if err != nil {
		return nil, err
	}
	return v, st.err()
}

// TryResolve is Resolve for optional dependencies: a missing, hidden or failing
// registration reports ok=false with a nil error. Circular dependencies and
// disposed containers are still returned as errors.
func (c *Container) TryResolve(k key.Composite, opts ...resolution.Option) (any, bool, error) {
	v, err := c.Resolve(k, opts...)
	return try(v, err)
}

// ResolveAll returns an instance of every visible entry matching k, nearest
// container first and most recent registration first.
func (c *Container) ResolveAll(k key.Composite, opts ...resolution.Option) ([]any, error) {
	if !c.acquire() {
		return nil, rerrors.DisposedContainer(c.id, "resolve")
	}
	defer c.release()

	ctx := resolution.New(k, c.settings.maxDepth, opts...)
	defer ctx.Finish()

	st := &callState{}
	out, err := c.resolveAll(ctx, st)
	if err != nil {
		return nil, err
	}
	return out, st.err()
}

func try(v any, err error) (any, bool, error) {
	switch {
	case err == nil:
		return v, true, nil
	case v != nil && rerrors.IsNotification(err):
		return v, true, err
	case rerrors.IsRecoverable(err):
		return nil, false, nil
	}
	return nil, false, err
}

func (c *Container) resolve(ctx *resolution.Context, st *callState) (any, error) {
	k := ctx.Key()
	for attempt := 0; ; attempt++ {
		e, err := c.find(k)
		if err != nil {
			if self, ok := c.self(ctx, st, err); ok {
				return self, nil
			}
			return nil, err
		}
		v, err := c.activate(ctx, e, st)
		if errors.Is(err, lifetime.ErrDisposed) && attempt < evictionRetries {
			continue
		}
		return v, err
	}
}

func (c *Container) resolveAll(ctx *resolution.Context, st *callState) ([]any, error) {
	entries, err := c.visible(ctx.Key())
	if err != nil {
		return nil, err
	}
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		v, err := c.activate(ctx, e, st)
		if errors.Is(err, lifetime.ErrDisposed) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// self serves the built-in bindings of the container and the call-bound
// resolver when no registration claims them.
func (c *Container) self(ctx *resolution.Context, st *callState, cause error) (any, bool) {
	if !errors.Is(cause, rerrors.ErrNotRegistered) {
		return nil, false
	}
	contracts := ctx.Key().Contracts()
	if len(contracts) != 1 {
		return nil, false
	}
	switch {
	case contracts[0].Equal(selfContract):
		return c, true
	case contracts[0].Equal(resolverContract):
		return &resolver{c: c, ctx: ctx, st: st}, true
	}
	return nil, false
}

// ── Lookup ────────────────────────────────────────────────────────────────────

// find returns the entry that serves k for requests starting in c.
func (c *Container) find(k key.Composite) (*registry.Entry, error) {
	hidden := false
	for n := c; n != nil; n = n.parent {
		for _, e := range n.registry.Lookup(k) {
			if e.Scope().AllowsResolving(n, c) {
				return e, nil
			}
			hidden = true
		}
		for _, tpl := range n.registry.Templates(k) {
			if !tpl.Scope().AllowsResolving(n, c) {
				hidden = true
				continue
			}
			e, err := n.registry.Specialize(tpl, k)
			if errors.Is(err, registry.ErrInactive) {
				continue
			}
			if err != nil {
				return nil, rerrors.ConstructionFailed(k.String(), err)
			}
			return e, nil
		}
	}
	if hidden {
		return nil, rerrors.ScopeViolation(k.String(), c.id)
	}
	return nil, rerrors.NotRegistered(k.String())
}

// visible returns every entry serving k for requests starting in c, nearest
// container first and most recent first. Each template contributes its
// specialization for k.
func (c *Container) visible(k key.Composite) ([]*registry.Entry, error) {
	var out []*registry.Entry
	for n := c; n != nil; n = n.parent {
		for _, e := range n.registry.Lookup(k) {
			if e.Scope().AllowsResolving(n, c) {
				out = append(out, e)
			}
		}
		for _, tpl := range n.registry.Templates(k) {
			if !tpl.Scope().AllowsResolving(n, c) {
				continue
			}
			e, err := n.registry.Specialize(tpl, k)
			if errors.Is(err, registry.ErrInactive) {
				continue
			}
			if err != nil {
				return nil, rerrors.ConstructionFailed(k.String(), err)
			}
			out = append(out, e)
		}
	}
	return out, nil
}

// ── Activation ────────────────────────────────────────────────────────────────

// activate runs e's lifetime for the request in ctx. Re-entering an entry the
// call is still building fails before the lifetime is consulted, so a cycle
// never waits on its own construction.
func (c *Container) activate(ctx *resolution.Context, e *registry.Entry, st *callState) (any, error) {
	leave, err := ctx.Enter(e.ID(), e.Label())
	if err != nil {
		return nil, err
	}
	defer leave()

	ls := c.observers(st)
	seq := events.NextSeq()
	c.emit(st, ls, events.Event{
		Kind:     events.Resolve,
		Stage:    events.Pre,
		Seq:      seq,
		Key:      ctx.Key(),
		EntryID:  e.ID(),
		Lifetime: e.Policy().String(),
		Scope:    e.Scope().Name(),
		Call:     ctx.CallID(),
	})

	start := time.Now()
	req := lifetime.Request{
		Requester:  c,
		Call:       ctx.CallID(),
		State:      ctx.Values(),
		OnComplete: ctx.OnComplete,
		Wait:       ctx.WaitFor,
	}
	from := c.builderOf(e)
	v, err := e.Lifetime().Instance(req, func() (any, error) {
		return from.construct(ctx, e, st)
	})

	c.emit(st, ls, events.Event{
		Kind:     events.Resolve,
		Stage:    events.Post,
		Seq:      seq,
		Key:      ctx.Key(),
		EntryID:  e.ID(),
		Lifetime: e.Policy().String(),
		Scope:    e.Scope().Name(),
		Call:     ctx.CallID(),
		Instance: v,
		Err:      err,
		Duration: time.Since(start),
	})
	return v, err
}

// builderOf returns the container whose view e's dependencies are resolved
// from. Instances cached for every requester are built from the owning
// container, so they never capture entries hidden from it or owned by a
// shorter-lived child. Per-container, per-resolve and transient instances
// belong to the request and are built from c.
func (c *Container) builderOf(e *registry.Entry) *Container {
	switch e.Policy().Kind() {
	case lifetime.KindSingleton, lifetime.KindPerThread, lifetime.KindPerState:
		if owner, ok := e.Owner().(*Container); ok {
			return owner
		}
	}
	return c
}

// construct runs the factory of e. Factory errors and panics are reported as
// ErrConstructionFailed; cycles and disposal errors from nested resolutions
// pass through unchanged.
func (c *Container) construct(ctx *resolution.Context, e *registry.Entry, st *callState) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("factory panicked", zap.Stringer("key", e.Key()), zap.Any("panic", r))
			v, err = nil, rerrors.ConstructionFailed(e.Label(), fmt.Errorf("panic: %v", r))
		}
	}()

	v, err = e.Factory()(&resolver{c: c, ctx: ctx, st: st})
	if err == nil {
		return v, nil
	}
	if errors.Is(err, rerrors.ErrCircularDependency) || errors.Is(err, rerrors.ErrDisposedContainer) {
		return nil, err
	}
	return nil, rerrors.ConstructionFailed(e.Label(), err)
}

// ── Call-bound resolver ───────────────────────────────────────────────────────

// callState collects listener failures of one top-level operation. Silent
// states belong to listener resolution, which emits no events.
type callState struct {
	silent bool

	mu     sync.Mutex
	notify error
}

func (s *callState) add(err error) {
	var re *rerrors.Error
	if errors.As(err, &re) && re.Code == rerrors.CodeNotificationFailed && re.Cause != nil {
		err = re.Cause
	}
	s.mu.Lock()
	s.notify = multierr.Append(s.notify, err)
	s.mu.Unlock()
}

func (s *callState) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notify == nil {
		return nil
	}
	return rerrors.NotificationFailed(s.notify)
}

// resolver is the Resolver handed to factories. Nested resolutions share the
// call identity and start from the container building the instance.
type resolver struct {
	c   *Container
	ctx *resolution.Context
	st  *callState
}

func (r *resolver) Resolve(k key.Composite, opts ...resolution.Option) (any, error) {
	return r.c.resolve(r.ctx.NestedWith(k, opts...), r.st)
}

func (r *resolver) TryResolve(k key.Composite, opts ...resolution.Option) (any, bool, error) {
	v, err := r.Resolve(k, opts...)
	return try(v, err)
}

func (r *resolver) ResolveAll(k key.Composite, opts ...resolution.Option) ([]any, error) {
	return r.c.resolveAll(r.ctx.NestedWith(k, opts...), r.st)
}

func (r *resolver) Call() *resolution.Context { return r.ctx }

// Container returns the container building the instance.
func (r *resolver) Container() *Container { return r.c }
