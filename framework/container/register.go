package container

import (
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/events"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/lifetime"
	"github.com/km-arc/go-resolve/framework/registry"
	"github.com/km-arc/go-resolve/framework/scope"
)

// ── Registration ──────────────────────────────────────────────────────────────

// Register validates and commits a batch atomically. Invalid batches change
// nothing, fire no event and fail with ErrRegistrationFailed. Disposing the
// returned handle removes exactly the batch's entries.
//
// A non-nil error together with a non-nil handle means the batch committed
// but a listener failed (ErrNotificationFailed).
func (c *Container) Register(batch ...Registration) (Disposable, error) {
	if !c.acquire() {
		return nil, rerrors.DisposedContainer(c.id, "register")
	}
	defer c.release()

	batch = c.withDefaults(batch)
	if err := c.registry.Validate(batch...); err != nil {
		return nil, rerrors.RegistrationFailed(err)
	}

	st := &callState{}
	ls := c.observers(st)
	seqs := make([]uint64, len(batch))
	for i, reg := range batch {
		seqs[i] = events.NextSeq()
		c.emit(st, ls, events.Event{
			Kind:     events.Register,
			Stage:    events.Pre,
			Seq:      seqs[i],
			Key:      reg.Key,
			Lifetime: reg.Lifetime.String(),
			Scope:    reg.Scope.Name(),
		})
	}

	start := time.Now()
	tok, entries, err := c.registry.Register(batch...)
	if err != nil {
		for i, reg := range batch {
			c.emit(st, ls, events.Event{Kind: events.Register, Stage: events.Post, Seq: seqs[i], Key: reg.Key, Err: err})
		}
		return nil, rerrors.RegistrationFailed(err)
	}
	for i, e := range entries {
		c.emit(st, ls, entryEvent(events.Register, events.Post, seqs[i], e, time.Since(start)))
	}

	c.logger.Debug("registered", zap.Int("entries", len(entries)), zap.Stringer("first", entries[0].Key()))
	return &handle{c: c, tok: tok}, st.err()
}

func (c *Container) withDefaults(batch []Registration) []Registration {
	out := slices.Clone(batch)
	for i := range out {
		if out[i].Lifetime.IsZero() {
			out[i].Lifetime = c.settings.lifetime
		}
		if out[i].Scope == nil {
			out[i].Scope = c.settings.scope
		}
		if out[i].Comparer == nil {
			out[i].Comparer = key.Exact
		}
	}
	return out
}

// unregister removes a token's entries and disposes their lifetimes.
func (c *Container) unregister(tok *registry.Token) error {
	if !c.acquire() {
		// Disposal already released every entry.
		return nil
	}
	defer c.release()

	st := &callState{}
	ls := c.observers(st)
	seqs := make([]uint64, 0, len(tok.Entries()))
	for _, e := range tok.Entries() {
		seq := events.NextSeq()
		seqs = append(seqs, seq)
		c.emit(st, ls, entryEvent(events.Unregister, events.Pre, seq, e, 0))
	}

	start := time.Now()
	removed := c.registry.Unregister(tok)
	if removed == nil {
		return nil
	}
	var err error
	for i := len(removed) - 1; i >= 0; i-- {
		err = multierr.Append(err, removed[i].Dispose())
	}
	for i, e := range removed {
		c.emit(st, ls, entryEvent(events.Unregister, events.Post, seqs[i], e, time.Since(start)))
	}

	c.logger.Debug("unregistered", zap.Int("entries", len(removed)))
	return multierr.Append(err, st.err())
}

func entryEvent(kind events.Kind, stage events.Stage, seq uint64, e *registry.Entry, d time.Duration) events.Event {
	return events.Event{
		Kind:     kind,
		Stage:    stage,
		Seq:      seq,
		Key:      e.Key(),
		EntryID:  e.ID(),
		Lifetime: e.Policy().String(),
		Scope:    e.Scope().Name(),
		Duration: d,
	}
}

// handle owns one committed batch.
type handle struct {
	c   *Container
	tok *registry.Token
}

func (h *handle) Dispose() error { return h.c.unregister(h.tok) }

// Disposables disposes its members in reverse order.
type Disposables []Disposable

func (d Disposables) Dispose() error {
	var err error
	for i := len(d) - 1; i >= 0; i-- {
		if d[i] != nil {
			err = multierr.Append(err, d[i].Dispose())
		}
	}
	return err
}

// ── Statement helpers ─────────────────────────────────────────────────────────

// StatementOption adjusts one registration statement.
type StatementOption func(*Registration)

// Tagged adds tags to the statement key.
func Tagged(values ...any) StatementOption {
	return func(r *Registration) { r.Key = r.Key.Tagged(values...) }
}

// As adds contracts the statement also satisfies.
func As(contracts ...key.Contract) StatementOption {
	return func(r *Registration) { r.Key = r.Key.WithContracts(contracts...) }
}

// WithStates adds state keys to the statement key.
func WithStates(states ...key.State) StatementOption {
	return func(r *Registration) { r.Key = r.Key.WithStates(states...) }
}

// Lifetime sets the lifetime policy.
func Lifetime(p lifetime.Policy) StatementOption {
	return func(r *Registration) { r.Lifetime = p }
}

// Scoped sets the visibility scope.
func Scoped(s scope.Scope) StatementOption {
	return func(r *Registration) { r.Scope = s }
}

// Compared sets the key comparer of the entry.
func Compared(cmp key.Comparer) StatementOption {
	return func(r *Registration) { r.Comparer = cmp }
}

// Statement builds a registration of factory under contract.
func Statement(contract key.Contract, factory registry.Factory, opts ...StatementOption) Registration {
	r := Registration{Key: key.For(contract), Factory: factory}
	for _, o := range opts {
		o(&r)
	}
	return r
}

// TemplateStatement builds a registration of an open template.
func TemplateStatement(open key.Contract, specializer registry.Specializer, opts ...StatementOption) Registration {
	r := Registration{Key: key.For(open), Specializer: specializer}
	for _, o := range opts {
		o(&r)
	}
	return r
}

// Bind registers factory under contract with the container's default lifetime.
//
//	c.Bind(key.Of[Mailer](), container.Provide(func(r container.Resolver) (Mailer, error) {
//		return smtp.New(), nil
//	}))
func (c *Container) Bind(contract key.Contract, factory registry.Factory, opts ...StatementOption) (Disposable, error) {
	return c.Register(Statement(contract, factory, opts...))
}

// Singleton registers factory whose first result is shared by every request.
func (c *Container) Singleton(contract key.Contract, factory registry.Factory, opts ...StatementOption) (Disposable, error) {
	return c.Register(Statement(contract, factory, append([]StatementOption{Lifetime(lifetime.Singleton)}, opts...)...))
}

// Instance registers a pre-built value.
func (c *Container) Instance(contract key.Contract, v any, opts ...StatementOption) (Disposable, error) {
	return c.Singleton(contract, Value(v), opts...)
}

// Template registers an open generic template.
//
//	c.Template(key.OpenOf[Box[any]](), container.Specializations(
//		container.Specialized(NewCardboardBox[Cat]),
//	))
func (c *Container) Template(open key.Contract, specializer registry.Specializer, opts ...StatementOption) (Disposable, error) {
	return c.Register(TemplateStatement(open, specializer, opts...))
}

// Value returns a factory that always yields v.
func Value(v any) registry.Factory {
	return func(Resolver) (any, error) { return v, nil }
}

// Provide adapts a typed factory.
func Provide[T any](fn func(r Resolver) (T, error)) registry.Factory {
	return func(r Resolver) (any, error) {
		v, err := fn(r)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}
