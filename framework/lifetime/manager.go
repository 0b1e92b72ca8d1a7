package lifetime

import (
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"

	"github.com/km-arc/go-resolve/framework/resolution"
)

// manager implements every built-in Lifetime. The kind only decides the cache
// key and when a cached instance is evicted.
type manager struct {
	kind Kind
	auto bool

	mu       sync.Mutex
	cache    map[string]any
	owners   map[string]resolution.CallID // call building each in-flight key
	tracked  []any                        // auto-disposing transient instances
	disposed bool

	group singleflight.Group
}

func (m *manager) Kind() Kind        { return m.kind }
func (m *manager) AutoDispose() bool { return m.auto }

func (m *manager) Cached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}

// Instance joins the flight of ck or starts one. Flights are started and
// forgotten under m.mu together with owners, so a caller that sees an owner
// always joins that owner's flight.
func (m *manager) Instance(req Request, build Builder) (any, error) {
	if m.kind == KindTransient {
		return m.transient(build)
	}

	ck := m.cacheKey(req)
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil, ErrDisposed
	}
	if v, ok := m.cache[ck]; ok {
		m.mu.Unlock()
		return v, nil
	}

	release := func() {}
	if owner, busy := m.owners[ck]; busy {
		if req.Wait != nil {
			r, err := req.Wait(owner)
			if err != nil {
				m.mu.Unlock()
				return nil, err
			}
			release = r
		}
	} else {
		m.owners[ck] = req.Call
	}
	ch := m.group.DoChan(ck, func() (any, error) { return m.build(ck, req, build) })
	m.mu.Unlock()

	res := <-ch
	release()
	return res.Val, res.Err
}

func (m *manager) build(ck string, req Request, build Builder) (any, error) {
	v, err := build()

	m.mu.Lock()
	delete(m.owners, ck)
	m.group.Forget(ck)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.disposed {
		m.mu.Unlock()
		if m.auto {
			_ = disposeInstance(v)
		}
		return nil, ErrDisposed
	}
	m.cache[ck] = v
	m.mu.Unlock()

	m.arm(ck, req)
	return v, nil
}

func (m *manager) transient(build Builder) (any, error) {
	m.mu.Lock()
	disposed := m.disposed
	m.mu.Unlock()
	if disposed {
		return nil, ErrDisposed
	}

	v, err := build()
	if err != nil || !m.auto {
		return v, err
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		_ = disposeInstance(v)
		return nil, ErrDisposed
	}
	m.tracked = append(m.tracked, v)
	m.mu.Unlock()
	return v, nil
}

// arm schedules eviction of a freshly cached instance.
func (m *manager) arm(ck string, req Request) {
	switch m.kind {
	case KindPerContainer:
		if req.Requester != nil {
			req.Requester.OnDispose(func() { _ = m.evict(ck) })
		}
	case KindPerResolve:
		if req.OnComplete != nil {
			req.OnComplete(func() { _ = m.evict(ck) })
		}
	}
}

func (m *manager) evict(ck string) error {
	m.mu.Lock()
	v, ok := m.cache[ck]
	delete(m.cache, ck)
	m.mu.Unlock()
	if !ok || !m.auto {
		return nil
	}
	return disposeInstance(v)
}

func (m *manager) Dispose() error {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	victims := make([]any, 0, len(m.cache)+len(m.tracked))
	for _, v := range m.cache {
		victims = append(victims, v)
	}
	victims = append(victims, m.tracked...)
	m.cache = map[string]any{}
	m.tracked = nil
	m.mu.Unlock()

	if !m.auto {
		return nil
	}
	var err error
	for _, v := range dedupe(victims) {
		err = multierr.Append(err, disposeInstance(v))
	}
	return err
}

func (m *manager) cacheKey(req Request) string {
	switch m.kind {
	case KindPerContainer:
		if req.Requester == nil {
			return ""
		}
		return req.Requester.ID()
	case KindPerResolve:
		return req.Call.String()
	case KindPerThread:
		return strconv.FormatUint(req.Call.Thread, 10)
	case KindPerState:
		return stateKey(req.State)
	}
	return ""
}

// stateKey encodes an argument tuple so that equal tuples produce equal keys.
func stateKey(state []any) string {
	var b strings.Builder
	for i, v := range state {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprintf(&b, "%T=%#v", v, v)
	}
	return b.String()
}

// disposeInstance releases v if it implements Disposer or io.Closer.
func disposeInstance(v any) error {
	switch d := v.(type) {
	case Disposer:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	}
	return nil
}

// dedupe drops repeated comparable instances so each is disposed once.
func dedupe(vs []any) []any {
	seen := make(map[any]struct{}, len(vs))
	out := vs[:0]
	for _, v := range vs {
		if v == nil {
			continue
		}
		if reflect.TypeOf(v).Comparable() {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
		}
		out = append(out, v)
	}
	return out
}
