package reactor

import (
	"context"
	stderrors "errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
)

var (
	// ErrLoopTerminated is returned when work is submitted to a stopped loop.
	ErrLoopTerminated = stderrors.New("reactor: loop has been terminated")

	// ErrLoopRunning is returned when Run is called on a loop that already ran.
	ErrLoopRunning = stderrors.New("reactor: loop is already running")
)

const supportedMask = native.EventReadable | native.EventWritable

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the clock used for timers.
func WithClock(c clock.Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithLogger sets the loop's logger.
func WithLogger(log *zap.Logger) Option {
	return func(l *Loop) { l.log = log }
}

type timerEntry struct {
	timer *clock.Timer
}

// Loop is a cooperative single-goroutine event loop.
type Loop struct {
	clock clock.Clock
	log   *zap.Logger

	wake chan struct{}
	done chan struct{}

	pending  []func()
	timers   *idtable.Table[*timerEntry]
	watchers map[int]*watcher

	gid     atomic.Uint64
	mu      sync.Mutex
	started bool
	stopped bool
}

var _ native.Loop = (*Loop)(nil)

// New creates a loop. It does nothing until Run is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:    clock.New(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		timers:   idtable.New[*timerEntry](),
		watchers: make(map[int]*watcher),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.log == nil {
		l.log = Logger()
	}
	return l
}

// Run processes posted work on the calling goroutine until Stop is called or
// ctx is done. Pending timers and fd watchers are torn down before it returns.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.started {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.started = true
	l.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.gid.Store(goroutineID())
	defer l.gid.Store(0)
	defer close(l.done)

	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		stopped := l.stopped
		l.mu.Unlock()

		for _, fn := range batch {
			l.safeExecute(fn)
		}

		if stopped {
			return l.teardown()
		}

		l.mu.Lock()
		idle := len(l.pending) == 0 && !l.stopped
		l.mu.Unlock()
		if !idle {
			continue
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
		}
	}
}

// Stop asks the loop to exit after the work already queued has run.
func (l *Loop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.signal()
}

// Done returns a channel closed when Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// InLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) InLoop() bool {
	id := l.gid.Load()
	return id != 0 && id == goroutineID()
}

// Post schedules fn on the loop. Safe to call from any goroutine, including
// the loop itself.
func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	l.pending = append(l.pending, fn)
	l.mu.Unlock()
	l.signal()
	return nil
}

// Do runs fn on the loop and waits for it to return. On the loop goroutine fn
// runs inline.
func (l *Loop) Do(fn func()) error {
	if l.InLoop() {
		fn()
		return nil
	}
	return l.Await(fn)
}

// Await posts fn and waits for it to return. Callers that already know they
// are off the loop use it to skip the goroutine check in Do; calling it on
// the loop goroutine deadlocks.
func (l *Loop) Await(fn func()) error {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-ran:
		return nil
	case <-l.done:
		select {
		case <-ran:
			return nil
		default:
			return ErrLoopTerminated
		}
	}
}

// CallLater runs fn on the loop after delay.
func (l *Loop) CallLater(delay time.Duration, fn func()) (native.TimerID, error) {
	entry := &timerEntry{}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return 0, ErrLoopTerminated
	}
	id := l.timers.Insert(entry)
	l.mu.Unlock()

	t := l.clock.AfterFunc(delay, func() {
		_ = l.Post(func() {
			l.mu.Lock()
			current, ok := l.timers.Get(id)
			if !ok || current != entry {
				l.mu.Unlock()
				return
			}
			l.timers.Remove(id)
			l.mu.Unlock()
			fn()
		})
	})

	l.mu.Lock()
	entry.timer = t
	l.mu.Unlock()

	return native.TimerID(id), nil
}

// CancelTimer cancels a timer that has not fired yet.
func (l *Loop) CancelTimer(id native.TimerID) error {
	l.mu.Lock()
	entry, ok := l.timers.Remove(idtable.ID(id))
	var t *clock.Timer
	if ok {
		t = entry.timer
	}
	l.mu.Unlock()

	if !ok {
		return errors.NotFound(errors.PhaseReactor, "timer", idString(id))
	}
	if t != nil {
		t.Stop()
	}
	return nil
}

// PendingTimers returns the number of timers that have neither fired nor been
// cancelled.
func (l *Loop) PendingTimers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.Len()
}

// RegisterEvent watches fd and runs fn on the loop while it is ready.
// Readiness is level-triggered: fn runs again as long as the condition holds.
func (l *Loop) RegisterEvent(fd int, mask native.EventMask, fn func()) error {
	if mask&^supportedMask != 0 {
		return errors.UnsupportedEventMask(uint32(mask))
	}

	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrLoopTerminated
	}
	if _, exists := l.watchers[fd]; exists {
		l.mu.Unlock()
		return errors.InvalidArgument(errors.PhaseReactor, "fd "+strconv.Itoa(fd)+" already registered")
	}
	w := newWatcher(l, fd, mask, fn)
	l.watchers[fd] = w
	l.mu.Unlock()

	go w.run()
	return nil
}

// DeregisterEvent stops watching fd.
func (l *Loop) DeregisterEvent(fd int) error {
	l.mu.Lock()
	w, ok := l.watchers[fd]
	if ok {
		delete(l.watchers, fd)
	}
	l.mu.Unlock()

	if !ok {
		return errors.NotFound(errors.PhaseReactor, "fd", strconv.Itoa(fd))
	}
	w.close()
	return nil
}

func (l *Loop) isWatching(w *watcher) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watchers[w.fd] == w
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) teardown() error {
	l.mu.Lock()
	var timers []*timerEntry
	l.timers.Each(func(id idtable.ID, e *timerEntry) bool {
		timers = append(timers, e)
		return true
	})
	l.timers = idtable.New[*timerEntry]()
	watchers := l.watchers
	l.watchers = make(map[int]*watcher)
	l.pending = nil
	l.mu.Unlock()

	for _, e := range timers {
		if e.timer != nil {
			e.timer.Stop()
		}
	}

	var err error
	for fd, w := range watchers {
		w.close()
		err = multierr.Append(err, errors.New(errors.PhaseReactor, errors.KindInternal).
			Detail("fd %d still registered at shutdown", fd).
			Build())
	}
	if err != nil {
		l.log.Warn("reactor stopped with live registrations", zap.Error(err))
	}
	return err
}

// safeExecute runs a task, recovering panics so one bad callback does not take
// the loop down.
func (l *Loop) safeExecute(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("reactor task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}
