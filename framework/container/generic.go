package container

import (
	"fmt"
	"sync"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/resolution"
)

// ── Generics helpers ──────────────────────────────────────────────────────────

// Resolve resolves the Go type T and type-asserts the result.
//
//	db, err := container.Resolve[*sql.DB](c)
func Resolve[T any](r Resolver, opts ...resolution.Option) (T, error) {
	return ResolveKey[T](r, key.For(key.Of[T]()), opts...)
}

// ResolveTagged resolves the Go type T registered with the given tags.
func ResolveTagged[T any](r Resolver, tags []any, opts ...resolution.Option) (T, error) {
	return ResolveKey[T](r, key.For(key.Of[T]()).Tagged(tags...), opts...)
}

// ResolveKey resolves k and asserts the instance is a T.
func ResolveKey[T any](r Resolver, k key.Composite, opts ...resolution.Option) (T, error) {
	var zero T
	v, err := r.Resolve(k, opts...)
	if err != nil && (v == nil || !rerrors.IsNotification(err)) {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, rerrors.TypeMismatch(k.String(), fmt.Sprintf("%T", zero), v)
	}
	return typed, err
}

// MustResolve is Resolve that panics on failure. Listener failures are ignored.
func MustResolve[T any](r Resolver, opts ...resolution.Option) T {
	v, err := Resolve[T](r, opts...)
	if err != nil && !rerrors.IsNotification(err) {
		panic(fmt.Sprintf("container: MustResolve[%s]: %v", key.Of[T](), err))
	}
	return v
}

// TryResolve is the typed form of Resolver.TryResolve.
func TryResolve[T any](r Resolver, opts ...resolution.Option) (T, bool, error) {
	var zero T
	k := key.For(key.Of[T]())
	v, ok, err := r.TryResolve(k, opts...)
	if !ok {
		return zero, false, err
	}
	typed, ok := v.(T)
	if !ok && v != nil {
		return zero, false, rerrors.TypeMismatch(k.String(), fmt.Sprintf("%T", zero), v)
	}
	return typed, true, err
}

// ResolveAll resolves every visible registration of T.
func ResolveAll[T any](r Resolver, opts ...resolution.Option) ([]T, error) {
	k := key.For(key.Of[T]())
	vs, err := r.ResolveAll(k, opts...)
	if err != nil && (vs == nil || !rerrors.IsNotification(err)) {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		typed, ok := v.(T)
		if !ok {
			var zero T
			return nil, rerrors.TypeMismatch(k.String(), fmt.Sprintf("%T", zero), v)
		}
		out = append(out, typed)
	}
	return out, err
}

// Lazy defers resolution of T until the returned function is first called.
// Later calls return the first result.
func Lazy[T any](r Resolver, opts ...resolution.Option) func() (T, error) {
	return sync.OnceValues(func() (T, error) {
		return Resolve[T](r, opts...)
	})
}

// Future is the pending result of Async.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async resolves T on a new goroutine. Pass a *Container rather than the
// resolver a factory received: the goroutine may outlive that call.
func Async[T any](r Resolver, opts ...resolution.Option) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = Resolve[T](r, opts...)
	}()
	return f
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Get waits for the result.
func (f *Future[T]) Get() (T, error) {
	<-f.done
	return f.value, f.err
}
