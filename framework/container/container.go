package container

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/registry"
	"github.com/km-arc/go-resolve/framework/resolution"
	"github.com/km-arc/go-resolve/framework/scope"
)

// ── Contracts ─────────────────────────────────────────────────────────────────

// Resolver is what factories and modules resolve through. Inside a factory it
// is bound to the running resolve call.
type Resolver = registry.Resolver

// Registration is one statement of a registration batch.
type Registration = registry.Registration

// Disposable releases what an operation acquired.
type Disposable interface {
	Dispose() error
}

// Registrar is the view a Module applies its registrations through.
type Registrar interface {
	Resolver
	Register(batch ...Registration) (Disposable, error)
	Batch() *Batch
	Bind(contract key.Contract, factory registry.Factory, opts ...StatementOption) (Disposable, error)
	Singleton(contract key.Contract, factory registry.Factory, opts ...StatementOption) (Disposable, error)
	Instance(contract key.Contract, v any, opts ...StatementOption) (Disposable, error)
}

var (
	selfContract     = key.Of[*Container]()
	resolverContract = key.Of[Resolver]()
)

// ── Options ───────────────────────────────────────────────────────────────────

// Option configures a root container. Children inherit their parent's settings.
type Option func(*settings)

type settings struct {
	logger   *zap.Logger
	conflict registry.ConflictPolicy
	lifetime lifetime.Policy
	scope    scope.Scope
	maxDepth int
	tag      string
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConflictPolicy selects how repeated keys are handled.
func WithConflictPolicy(p registry.ConflictPolicy) Option {
	return func(s *settings) { s.conflict = p }
}

// WithDefaultLifetime sets the lifetime of statements that leave it unset.
func WithDefaultLifetime(p lifetime.Policy) Option {
	return func(s *settings) { s.lifetime = p }
}

// WithDefaultScope sets the scope of statements that leave it unset.
func WithDefaultScope(sc scope.Scope) Option {
	return func(s *settings) {
		if sc != nil {
			s.scope = sc
		}
	}
}

// WithMaxDepth bounds nested resolutions of one call.
func WithMaxDepth(n int) Option {
	return func(s *settings) { s.maxDepth = n }
}

// WithTag names the root container.
func WithTag(tag string) Option {
	return func(s *settings) { s.tag = tag }
}

// ── Container ─────────────────────────────────────────────────────────────────

// Container is a registry plus a resolver, linked to a parent and to the live
// children it created.
//
// Every top-level Resolve or Register holds the read side of gate; Dispose
// takes the write side, so it waits for operations already running and later
// ones observe the disposing flag and fail.
type Container struct {
	id       string
	tag      string
	parent   *Container
	settings settings
	logger   *zap.Logger
	registry *registry.Registry

	gate      sync.RWMutex
	disposing atomic.Bool
	disposed  atomic.Bool

	mu       sync.Mutex
	children []*Container
	hooks    []func()
	modules  map[Module]struct{}
}

// New creates a root container.
func New(opts ...Option) *Container {
	s := settings{
		logger:   zap.NewNop(),
		lifetime: lifetime.Transient,
		scope:    scope.Global,
		maxDepth: resolution.DefaultMaxDepth,
	}
	for _, o := range opts {
		o(&s)
	}
	return newContainer(nil, s.tag, s)
}

func newContainer(parent *Container, tag string, s settings) *Container {
	c := &Container{
		id:       uuid.NewString(),
		tag:      tag,
		parent:   parent,
		settings: s,
		modules:  make(map[Module]struct{}),
	}
	c.logger = s.logger.With(zap.String("container", c.id))
	if tag != "" {
		c.logger = s.logger.Named(tag).With(zap.String("container", c.id))
	}
	c.registry = registry.New(c, s.conflict)
	return c
}

// CreateChild creates a container whose parent is c. The child is disposed
// together with c.
func (c *Container) CreateChild(tag string) (*Container, error) {
	if !c.acquire() {
		return nil, rerrors.DisposedContainer(c.id, "create child")
	}
	defer c.release()

	child := newContainer(c, tag, c.settings)
	c.mu.Lock()
	c.children = append(c.children, child)
	c.mu.Unlock()

	c.logger.Debug("child created", zap.String("child", child.id), zap.String("tag", tag))
	return child, nil
}

// ID returns the container identity.
func (c *Container) ID() string { return c.id }

// Tag returns the optional name given at creation.
func (c *Container) Tag() string { return c.tag }

// Parent returns the parent container, or nil for a root.
func (c *Container) Parent() *Container { return c.parent }

// ParentNode implements scope.Node.
func (c *Container) ParentNode() scope.Node {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

// Children returns the live children in creation order.
func (c *Container) Children() []*Container {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Container(nil), c.children...)
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger { return c.logger }

// Registry exposes the local entry table for diagnostics.
func (c *Container) Registry() *registry.Registry { return c.registry }

// Disposed reports whether disposal has started.
func (c *Container) Disposed() bool { return c.disposing.Load() }

// OnDispose registers fn to run once when c is disposed. On a disposed
// container fn runs immediately.
func (c *Container) OnDispose(fn func()) {
	c.mu.Lock()
	if c.disposed.Load() {
		c.mu.Unlock()
		fn()
		return
	}
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

// Call returns nil: a container is not bound to a resolve call. Factories
// receive a call-bound Resolver instead.
func (c *Container) Call() *resolution.Context { return nil }

// acquire enters the read side of the disposal gate.
func (c *Container) acquire() bool {
	if c.disposing.Load() {
		return false
	}
	c.gate.RLock()
	if c.disposing.Load() {
		c.gate.RUnlock()
		return false
	}
	return true
}

func (c *Container) release() { c.gate.RUnlock() }

func (c *Container) removeChild(child *Container) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.children {
		if ch == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			return
		}
	}
}
