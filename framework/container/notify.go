package container

import (
	"go.uber.org/zap"

	"github.com/km-arc/go-resolve/framework/events"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/resolution"
)

var listenerKey = key.For(events.ListenerContract)

// observers returns the listeners of one operation. Pre and post events of
// the operation go to the same listeners.
func (c *Container) observers(st *callState) []events.Listener {
	if st.silent {
		return nil
	}
	return c.listeners()
}

// emit delivers ev to ls. Failures are collected in st and never interrupt
// the operation.
func (c *Container) emit(st *callState, ls []events.Listener, ev events.Event) {
	if len(ls) == 0 {
		return
	}
	ev.ContainerID = c.id
	ev.ContainerTag = c.tag
	if err := events.Dispatch(ls, ev); err != nil {
		st.add(err)
	}
}

// listeners resolves the registered listeners silently, oldest first. A
// listener that cannot be built is skipped and logged.
func (c *Container) listeners() []events.Listener {
	entries, err := c.visible(listenerKey)
	if err != nil || len(entries) == 0 {
		return nil
	}

	ctx := resolution.New(listenerKey, c.settings.maxDepth)
	defer ctx.Finish()
	st := &callState{silent: true}

	out := make([]events.Listener, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		v, err := c.activate(ctx, entries[i], st)
		if err != nil {
			c.logger.Warn("listener unavailable", zap.Stringer("key", entries[i].Key()), zap.Error(err))
			continue
		}
		if l, ok := v.(events.Listener); ok {
			out = append(out, l)
		}
	}
	return out
}
