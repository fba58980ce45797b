package runtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
	"github.com/wippyai/fibre-go/reactor"
	"github.com/wippyai/fibre-go/signal"
)

// Runtime owns the reactor goroutine and the engine client. It is reference
// counted: the first Acquire starts the reactor and opens the engine, the
// last Release closes the engine and joins the reactor.
type Runtime struct {
	open native.Opener
	cfg  config

	mu      sync.Mutex
	refs    int
	loop    *reactor.Loop
	client  *Client
	exited  chan struct{}
	exitErr error
}

// New creates a stopped runtime that opens engines with open.
func New(open native.Opener, opts ...Option) *Runtime {
	return &Runtime{open: open, cfg: newConfig(opts)}
}

// Acquire takes a reference, starting the runtime if it was stopped. It blocks
// until the engine is open.
func (r *Runtime) Acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs++
	if r.refs > 1 {
		return nil
	}
	if err := r.start(); err != nil {
		r.refs--
		return err
	}
	return nil
}

func (r *Runtime) start() error {
	loop := reactor.New(reactor.WithClock(r.cfg.clock), reactor.WithLogger(r.cfg.log))
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		if err := loop.Run(context.Background()); err != nil {
			r.exitErr = err
		}
	}()

	var client *Client
	var err error
	if perr := loop.Await(func() { client, err = openClient(loop, r.open, r.cfg) }); perr != nil {
		err = perr
	}
	if err != nil {
		loop.Stop()
		<-exited
		return err
	}

	r.loop, r.client, r.exited, r.exitErr = loop, client, exited, nil
	r.cfg.log.Debug("runtime started")
	return nil
}

// Release drops a reference. The last release shuts the runtime down and
// waits for the reactor goroutine to exit. Releasing the last reference from
// the reactor goroutine itself is a programming error and panics.
func (r *Runtime) Release() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.refs == 0 {
		return errors.New(errors.PhaseLifecycle, errors.KindInvalidArgument).
			Detail("release without acquire").
			Build()
	}
	if r.refs == 1 && r.loop.InLoop() {
		panic(errors.Reentrant(errors.PhaseLifecycle, "runtime shutdown from the reactor goroutine"))
	}
	r.refs--
	if r.refs > 0 {
		return nil
	}

	loop, client := r.loop, r.client

	var closeErr error
	if err := loop.Post(func() {
		closeErr = client.close()
		loop.Stop()
	}); err != nil {
		closeErr = err
	}
	<-r.exited

	err := multierr.Combine(closeErr, r.exitErr)
	r.loop, r.client = nil, nil
	r.cfg.log.Debug("runtime stopped", zap.Error(err))
	return err
}

// release is Release for signal subscribers, which have nowhere to return
// an error to.
func (r *Runtime) release(reason string) {
	if err := r.Release(); err != nil {
		r.cfg.log.Warn("release failed", zap.String("reason", reason), zap.Error(err))
	}
}

// acquireFor takes a reference only while c is the running client.
func (r *Runtime) acquireFor(c *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != c {
		return errors.ObjectLost(errors.PhaseLifecycle)
	}
	r.refs++
	return nil
}

// releaseFor drops a reference taken by acquireFor, unless the runtime has
// since shut down.
func (r *Runtime) releaseFor(c *Client, reason string) {
	r.mu.Lock()
	stale := r.client != c
	r.mu.Unlock()
	if !stale {
		r.release(reason)
	}
}

// Refs returns the current reference count.
func (r *Runtime) Refs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}

// Client returns the running client, or a NotInitialized error when the
// runtime holds no references.
func (r *Runtime) Client() (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, errors.NotInitialized(errors.PhaseLifecycle, "runtime")
	}
	return r.client, nil
}

// FindAll starts a discovery on path that runs until searchCancel is set.
// onFound receives every object whose identity matches serial, or every
// object when serial is empty. Each reported object holds a runtime reference
// until channelTermination is set or, when channelTermination is nil, until
// the object is lost.
func (r *Runtime) FindAll(path, serial string, onFound FoundFunc, searchCancel, channelTermination *signal.Event) error {
	if searchCancel == nil {
		return errors.InvalidArgument(errors.PhaseDiscovery, "search cancellation signal is required")
	}
	if err := r.Acquire(); err != nil {
		return err
	}
	client, err := r.Client()
	if err != nil {
		r.release("discovery start")
		return err
	}

	identity := r.cfg.identity
	filter := func(obj *Object) error {
		if err := r.acquireFor(client); err != nil {
			return err
		}
		if channelTermination != nil {
			channelTermination.Subscribe(func() { r.release("channel termination") })
		} else {
			// Lost fires on the reactor goroutine, possibly during shutdown.
			obj.Lost().Subscribe(func() { go r.releaseFor(client, "object lost") })
		}

		if serial != "" {
			id, err := identity(context.Background(), obj)
			if err != nil {
				return err
			}
			if id != serial {
				return nil
			}
		}
		return onFound(obj)
	}

	// The session subscribes its stop before the release below, so the
	// native stop is issued ahead of any shutdown the release triggers.
	if err := client.StartDiscovery(path, filter, searchCancel); err != nil {
		r.release("discovery start")
		return err
	}
	searchCancel.Subscribe(func() { r.release("search cancelled") })
	return nil
}

type findConfig struct {
	path               string
	serial             string
	timeout            time.Duration
	hasTimeout         bool
	searchCancel       *signal.Event
	channelTermination *signal.Event
}

// FindOption configures FindAny and FindMultiple.
type FindOption func(*findConfig)

// WithPath sets the discovery path. The default is "usb".
func WithPath(path string) FindOption {
	return func(c *findConfig) { c.path = path }
}

// WithSerialNumber restricts results to objects with the given identity.
func WithSerialNumber(serial string) FindOption {
	return func(c *findConfig) { c.serial = serial }
}

// WithTimeout bounds the search. Without it the search waits for ctx.
func WithTimeout(d time.Duration) FindOption {
	return func(c *findConfig) { c.timeout, c.hasTimeout = d, true }
}

// WithSearchCancel aborts the search when the signal is set.
func WithSearchCancel(e *signal.Event) FindOption {
	return func(c *findConfig) { c.searchCancel = e }
}

// WithChannelTermination releases the runtime references held by found
// objects when the signal is set.
func WithChannelTermination(e *signal.Event) FindOption {
	return func(c *findConfig) { c.channelTermination = e }
}

// FindAny blocks until one matching object is found. On timeout it returns
// nil without an error.
func (r *Runtime) FindAny(ctx context.Context, opts ...FindOption) (*Object, error) {
	objs, err := r.find(ctx, 1, opts)
	if len(objs) == 0 {
		return nil, err
	}
	return objs[0], err
}

// FindMultiple blocks until n matching objects are found. On timeout it
// returns the objects found so far without an error.
func (r *Runtime) FindMultiple(ctx context.Context, n int, opts ...FindOption) ([]*Object, error) {
	if n < 1 {
		return nil, errors.InvalidArgument(errors.PhaseDiscovery, "object count must be positive")
	}
	return r.find(ctx, n, opts)
}

func (r *Runtime) find(ctx context.Context, n int, opts []FindOption) ([]*Object, error) {
	cfg := findConfig{path: "usb"}
	for _, opt := range opts {
		opt(&cfg)
	}

	var mu sync.Mutex
	var found []*Object
	done := signal.NewEvent(cfg.searchCancel)
	onFound := func(obj *Object) error {
		mu.Lock()
		if len(found) < n {
			found = append(found, obj)
		}
		enough := len(found) >= n
		mu.Unlock()
		if enough {
			done.Set()
		}
		return nil
	}

	if err := r.FindAll(cfg.path, cfg.serial, onFound, done, cfg.channelTermination); err != nil {
		return nil, err
	}
	client, _ := r.Client()
	defer func() {
		done.Set()
		if client != nil {
			// Barrier: the stop posted by done has run once this returns.
			_ = client.loop.Do(func() {})
		}
	}()

	waitCtx := ctx
	if cfg.hasTimeout {
		var cancel context.CancelFunc
		waitCtx, cancel = r.cfg.clock.WithTimeout(ctx, cfg.timeout)
		defer cancel()
	}

	err := done.WaitContext(waitCtx)
	mu.Lock()
	result := append([]*Object(nil), found...)
	mu.Unlock()

	switch {
	case err == nil:
		return result, nil
	case ctx.Err() != nil:
		return result, errors.Wrap(errors.PhaseDiscovery, errors.KindCancelled, ctx.Err(), "search cancelled")
	default:
		return result, nil
	}
}
