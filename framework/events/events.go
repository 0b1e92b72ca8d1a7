// Package events is the observer hook of the runtime. Containers emit a pre
// and a post Event around every registration, unregistration and resolve.
//
// Listeners are ordinary registrations of ListenerContract; nothing is
// discovered implicitly:
//
//	c.Instance(events.ListenerContract, events.ListenerFunc(func(ev events.Event) error {
//		log.Println(ev)
//		return nil
//	}))
package events

import (
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	rerrors "github.com/km-arc/go-resolve/framework/errors"
	"github.com/km-arc/go-resolve/framework/key"
	"github.com/km-arc/go-resolve/framework/resolution"
)

// Kind is the operation an event reports.
type Kind string

const (
	Register   Kind = "register"
	Unregister Kind = "unregister"
	Resolve    Kind = "resolve"
)

// Stage tells whether the operation is about to run or has finished.
type Stage string

const (
	Pre  Stage = "pre"
	Post Stage = "post"
)

// Event describes one stage of an operation. A post event carries the same Seq
// as its pre event.
type Event struct {
	Kind  Kind
	Stage Stage
	Seq   uint64

	Key      key.Composite
	EntryID  uint64
	Lifetime string
	Scope    string

	ContainerID  string
	ContainerTag string
	Call         resolution.CallID

	// Post stage only.
	Instance any
	Err      error
	Duration time.Duration
}

func (e Event) String() string {
	return fmt.Sprintf("%s/%s #%d %s @%s", e.Kind, e.Stage, e.Seq, e.Key, e.ContainerID)
}

// Listener receives events synchronously.
type Listener interface {
	OnEvent(ev Event) error
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event) error

func (f ListenerFunc) OnEvent(ev Event) error { return f(ev) }

// ListenerContract is the contract listeners are registered under.
var ListenerContract = key.Of[Listener]()

var seq atomic.Uint64

// NextSeq returns a fresh sequence number for a pre/post pair.
func NextSeq() uint64 { return seq.Add(1) }

// Dispatch delivers ev to every listener in order. A failing or panicking
// listener does not stop delivery; failures come back as one NotificationFailed
// error, or nil.
func Dispatch(listeners []Listener, ev Event) error {
	var errs error
	for _, l := range listeners {
		errs = multierr.Append(errs, deliver(l, ev))
	}
	if errs == nil {
		return nil
	}
	return rerrors.NotificationFailed(errs)
}

func deliver(l Listener, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener %T panicked: %v", l, r)
		}
	}()
	if err := l.OnEvent(ev); err != nil {
		return fmt.Errorf("listener %T: %w", l, err)
	}
	return nil
}
