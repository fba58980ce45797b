package signal

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/wippyai/fibre-go/errors"
)

var wallClock = clock.New()

// Subscription identifies a registered handler.
type Subscription uint64

// Event is a one-shot signal with subscriber callbacks.
type Event struct {
	done     chan struct{}
	handlers []handler
	nextSub  Subscription
	mu       sync.Mutex
	set      bool
}

type handler struct {
	fn  func()
	sub Subscription
}

// NewEvent creates an unset event. When parent is non-nil the new event is set
// as soon as parent is set.
func NewEvent(parent *Event) *Event {
	e := &Event{done: make(chan struct{})}
	if parent != nil {
		parent.Subscribe(e.Set)
	}
	return e
}

// IsSet reports whether the event has been set.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// Set marks the event as set and runs all subscribers. Only the first call has
// an effect.
func (e *Event) Set() {
	e.mu.Lock()
	if e.set {
		e.mu.Unlock()
		return
	}
	e.set = true
	handlers := e.handlers
	e.handlers = nil
	close(e.done)
	e.mu.Unlock()

	// Handlers run outside the lock so they may touch this event.
	for _, h := range handlers {
		h.fn()
	}
}

// Subscribe registers fn to run when the event is set. If the event is already
// set, fn runs immediately on the calling goroutine.
func (e *Event) Subscribe(fn func()) Subscription {
	e.mu.Lock()
	e.nextSub++
	sub := e.nextSub
	if e.set {
		e.mu.Unlock()
		fn()
		return sub
	}
	e.handlers = append(e.handlers, handler{fn: fn, sub: sub})
	e.mu.Unlock()
	return sub
}

// Unsubscribe removes a handler that has not run yet.
func (e *Event) Unsubscribe(sub Subscription) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.sub == sub {
			e.handlers = append(e.handlers[:i], e.handlers[i+1:]...)
			return
		}
	}
}

// Done returns a channel that is closed when the event is set.
func (e *Event) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the event is set. A negative timeout waits forever.
func (e *Event) Wait(timeout time.Duration) error {
	return e.WaitClock(wallClock, timeout)
}

// WaitClock is Wait with the timeout measured on clk.
func (e *Event) WaitClock(clk clock.Clock, timeout time.Duration) error {
	if timeout < 0 {
		<-e.done
		return nil
	}
	select {
	case <-e.done:
		return nil
	default:
	}
	t := clk.Timer(timeout)
	defer t.Stop()
	select {
	case <-e.done:
		return nil
	case <-t.C:
		return errors.Timeout(errors.PhaseDiscovery, "wait")
	}
}

// WaitContext blocks until the event is set or ctx is done.
func (e *Event) WaitContext(ctx context.Context) error {
	select {
	case <-e.done:
		return nil
	default:
	}
	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return errors.New(errors.PhaseDiscovery, errors.KindTimeout).Cause(ctx.Err()).Detail("wait timed out").Build()
		}
		return errors.New(errors.PhaseDiscovery, errors.KindCancelled).Cause(ctx.Err()).Detail("wait cancelled").Build()
	}
}
