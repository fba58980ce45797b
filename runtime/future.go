package runtime

import (
	"context"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/reactor"
)

// Future is the pending result of a remote call. It is resolved exactly once,
// on the reactor goroutine.
type Future struct {
	loop     *reactor.Loop
	done     chan struct{}
	value    any
	err      error
	resolved bool
	cancel   func()
	handlers []func(any, error)
}

func newFuture(loop *reactor.Loop) *Future {
	return &Future{loop: loop, done: make(chan struct{})}
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the future is resolved.
func (f *Future) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future resolves. Waiting on a pending future from
// the reactor goroutine would deadlock and returns a reentrancy error instead.
func (f *Future) Result() (any, error) {
	if !f.Ready() && f.loop != nil && f.loop.InLoop() {
		return nil, errors.Reentrant(errors.PhaseCall, "blocking on a pending call")
	}
	<-f.done
	return f.value, f.err
}

// Wait blocks until the future resolves or ctx is done. When ctx ends first
// the call is cancelled and Wait returns once the engine reports completion.
func (f *Future) Wait(ctx context.Context) (any, error) {
	if !f.Ready() && f.loop != nil && f.loop.InLoop() {
		return nil, errors.Reentrant(errors.PhaseCall, "blocking on a pending call")
	}
	select {
	case <-f.done:
	case <-ctx.Done():
		f.Cancel()
		<-f.done
	}
	return f.value, f.err
}

// Cancel requests cancellation of the underlying call. The future still
// resolves through the engine's completion, normally with a Cancelled error.
func (f *Future) Cancel() {
	if f.loop == nil || f.Ready() {
		return
	}
	cancel := func() {
		if !f.resolved && f.cancel != nil {
			f.cancel()
		}
	}
	if f.loop.InLoop() {
		cancel()
		return
	}
	if err := f.loop.Post(cancel); err != nil {
		Logger().Debug("cancel after reactor stop")
	}
}

// OnDone registers fn to run on the reactor goroutine when the future
// resolves. fn runs immediately if the future is already resolved.
func (f *Future) OnDone(fn func(any, error)) {
	if f.loop == nil {
		fn(f.value, f.err)
		return
	}
	if !f.loop.InLoop() {
		if err := f.loop.Await(func() { f.OnDone(fn) }); err != nil {
			if f.Ready() {
				fn(f.value, f.err)
				return
			}
			fn(nil, errors.Wrap(errors.PhaseCall, errors.KindObjectLost, err, "reactor stopped"))
		}
		return
	}
	if f.resolved {
		fn(f.value, f.err)
		return
	}
	f.handlers = append(f.handlers, fn)
}

// resolve must run on the reactor goroutine. It reports false when the future
// was already resolved.
func (f *Future) resolve(value any, err error) bool {
	if f.resolved {
		return false
	}
	f.value, f.err = value, err
	f.resolved = true
	close(f.done)
	for _, h := range f.handlers {
		h(value, err)
	}
	f.handlers = nil
	return true
}
