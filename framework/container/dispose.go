package container

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/events"
)

// ── Disposal ──────────────────────────────────────────────────────────────────

// Dispose tears c down. It is idempotent.
//
// Order: mark c as disposing so new operations fail, dispose live children
// depth-first, wait for operations already running on c, unregister every
// local entry in reverse registration order (firing unregister events and
// disposing auto-disposing instances once), run dispose hooks, then detach
// from the parent.
func (c *Container) Dispose() error {
	if !c.disposing.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	children := c.Children()
	for i := len(children) - 1; i >= 0; i-- {
		err = multierr.Append(err, children[i].Dispose())
	}

	c.gate.Lock()
	st := &callState{}
	ls := c.observers(st)
	live := c.registry.Entries()
	seqs := make(map[uint64]uint64, len(live))
	for i := len(live) - 1; i >= 0; i-- {
		seq := events.NextSeq()
		seqs[live[i].ID()] = seq
		c.emit(st, ls, entryEvent(events.Unregister, events.Pre, seq, live[i], 0))
	}

	start := time.Now()
	entries := c.registry.Clear()
	for _, e := range entries {
		err = multierr.Append(err, e.Dispose())
	}
	for _, e := range entries {
		c.emit(st, ls, entryEvent(events.Unregister, events.Post, seqs[e.ID()], e, time.Since(start)))
	}
	err = multierr.Append(err, st.err())

	c.mu.Lock()
	c.disposed.Store(true)
	hooks := c.hooks
	c.hooks = nil
	c.modules = make(map[Module]struct{})
	c.mu.Unlock()
	c.gate.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
	if c.parent != nil {
		c.parent.removeChild(c)
	}

	if err != nil {
		c.logger.Warn("disposed with errors", zap.Int("entries", len(entries)), zap.Error(err))
	} else {
		c.logger.Debug("disposed", zap.Int("entries", len(entries)))
	}
	return err
}
