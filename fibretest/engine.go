package fibretest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wippyai/fibre-go/native"
)

// Arg is a function argument declaration.
type Arg struct {
	Name  string
	Codec string
}

// Handler completes a call. It runs on the reactor goroutine, may fill
// c.Rx and returns the completion status and the number of bytes written.
type Handler func(c *Call) (native.Status, int)

// Function is a scripted remote function. Calls to a function without a
// Handler stay pending until Engine.Complete.
type Function struct {
	Handle  native.Handle
	Name    string
	Inputs  []Arg
	Outputs []Arg
	Handler Handler
}

// Attribute is a scripted remote attribute.
type Attribute struct {
	Handle      native.Handle
	Name        string
	SubIntf     native.Handle
	SubIntfName string
}

// Interface is a scripted interface type.
type Interface struct {
	Handle     native.Handle
	Name       string
	Attributes []Attribute
	Functions  []Function
}

// Call is an issued call.
type Call struct {
	Handle native.Handle
	Obj    native.Handle
	Fn     native.Handle
	Tx     []byte
	Rx     []byte

	handler native.CallHandler
	ctx     uint64
}

type discovery struct {
	handle  native.Handle
	path    string
	handler native.DiscoveryHandler
	ctx     uint64
}

type link struct {
	obj, attr native.Handle
}

// Engine is a scriptable native.Engine.
type Engine struct {
	mu sync.Mutex

	version    native.Version
	loop       native.Loop
	host       native.ObjectHost
	interfaces map[native.Handle]*Interface
	subs       map[native.Handle]native.InterfaceHandler
	links      map[link]native.Handle
	properties map[native.Handle][]byte
	announce   []native.Handle

	discoveries map[native.Handle]*discovery
	calls       map[native.Handle]*Call
	failStart   map[native.Handle]bool
	next        native.Handle

	started   []Call
	cancelled []native.Handle
	stopped   []native.Handle
	opened    bool
	closed    bool
}

var _ native.Engine = (*Engine)(nil)

// NewEngine creates an engine reporting version 0.6.0.
func NewEngine() *Engine {
	return &Engine{
		version:     native.Version{Major: 0, Minor: 6, Patch: 0},
		interfaces:  make(map[native.Handle]*Interface),
		subs:        make(map[native.Handle]native.InterfaceHandler),
		links:       make(map[link]native.Handle),
		properties:  make(map[native.Handle][]byte),
		discoveries: make(map[native.Handle]*discovery),
		calls:       make(map[native.Handle]*Call),
		failStart:   make(map[native.Handle]bool),
		next:        0x1000,
	}
}

// SetVersion changes the reported engine version.
func (e *Engine) SetVersion(v native.Version) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.version = v
}

// Opener returns an opener that binds this engine. The engine can be
// reopened after Close, which lets a runtime restart on it.
func (e *Engine) Opener() native.Opener {
	return func(loop native.Loop, host native.ObjectHost) (native.Engine, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.opened && !e.closed {
			return nil, fmt.Errorf("fibretest: engine already open")
		}
		e.loop, e.host = loop, host
		e.opened, e.closed = true, false
		e.subs = make(map[native.Handle]native.InterfaceHandler)
		e.discoveries = make(map[native.Handle]*discovery)
		return e, nil
	}
}

// Define registers an interface type. Subscribers are notified of its
// members when they subscribe.
func (e *Engine) Define(intf Interface) {
	e.mu.Lock()
	defer e.mu.Unlock()
	def := intf
	e.interfaces[intf.Handle] = &def
}

// AnnounceOnStart makes every new discovery report objs.
func (e *Engine) AnnounceOnStart(objs ...native.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.announce = append(e.announce, objs...)
}

// Link makes attribute attr of obj resolve to sub.
func (e *Engine) Link(obj, attr, sub native.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.links[link{obj, attr}] = sub
}

// Version implements native.Engine.
func (e *Engine) Version() native.Version {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// StartDiscovery implements native.Engine.
func (e *Engine) StartDiscovery(path string, h native.DiscoveryHandler, ctx uint64) native.Handle {
	e.mu.Lock()
	d := &discovery{handle: e.alloc(), path: path, handler: h, ctx: ctx}
	e.discoveries[d.handle] = d
	announce := append([]native.Handle(nil), e.announce...)
	loop := e.loop
	e.mu.Unlock()

	for _, obj := range announce {
		obj := obj
		_ = loop.Post(func() {
			if e.active(d.handle) {
				h.OnFoundObject(ctx, obj)
			}
		})
	}
	return d.handle
}

// StopDiscovery implements native.Engine.
func (e *Engine) StopDiscovery(h native.Handle) {
	e.mu.Lock()
	e.stopped = append(e.stopped, h)
	d, ok := e.discoveries[h]
	delete(e.discoveries, h)
	loop := e.loop
	e.mu.Unlock()

	if ok {
		_ = loop.Post(func() { d.handler.OnDiscoveryStopped(d.ctx, native.StatusCancelled) })
	}
}

// SubscribeToInterface implements native.Engine. Known members are replayed
// synchronously.
func (e *Engine) SubscribeToInterface(intf native.Handle, h native.InterfaceHandler) {
	e.mu.Lock()
	e.subs[intf] = h
	def, ok := e.interfaces[intf]
	var snapshot Interface
	if ok {
		snapshot = *def
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	for _, a := range snapshot.Attributes {
		h.OnAttributeAdded(intf, a.Handle, a.Name, a.SubIntf, a.SubIntfName)
	}
	for _, fn := range snapshot.Functions {
		notifyFunction(h, intf, fn)
	}
}

func notifyFunction(h native.InterfaceHandler, intf native.Handle, fn Function) {
	inNames, inCodecs := splitArgs(fn.Inputs)
	outNames, outCodecs := splitArgs(fn.Outputs)
	h.OnFunctionAdded(intf, fn.Handle, fn.Name, inNames, inCodecs, outNames, outCodecs)
}

func splitArgs(args []Arg) (names, codecs []string) {
	for _, a := range args {
		names = append(names, a.Name)
		codecs = append(codecs, a.Codec)
	}
	return names, codecs
}

// GetAttribute implements native.Engine.
func (e *Engine) GetAttribute(obj, attr native.Handle) (native.Handle, native.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub, ok := e.links[link{obj, attr}]
	if !ok {
		return 0, native.StatusInvalidArgument
	}
	return sub, native.StatusOK
}

// StartCall implements native.Engine. Functions with a Handler complete on a
// later reactor iteration.
func (e *Engine) StartCall(obj, fn native.Handle, tx, rx []byte, h native.CallHandler, ctx uint64) native.Handle {
	e.mu.Lock()
	c := &Call{
		Handle:  e.alloc(),
		Obj:     obj,
		Fn:      fn,
		Tx:      append([]byte(nil), tx...),
		Rx:      rx,
		handler: h,
		ctx:     ctx,
	}
	e.calls[c.Handle] = c
	e.started = append(e.started, *c)
	handler := e.handlerLocked(fn)
	fail := e.failStart[fn]
	loop := e.loop
	e.mu.Unlock()

	if fail {
		_ = loop.Post(func() { e.finish(c.Handle, native.StatusInternalError, 0) })
		return 0
	}
	if handler != nil {
		_ = loop.Post(func() {
			status, end := handler(c)
			e.finish(c.Handle, status, end)
		})
	}
	return c.Handle
}

// FailStart makes every later call to fn fail to start, as an engine out of
// call buffers would.
func (e *Engine) FailStart(fn native.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failStart[fn] = true
}

func (e *Engine) handlerLocked(fn native.Handle) Handler {
	for _, intf := range e.interfaces {
		for _, f := range intf.Functions {
			if f.Handle == fn {
				return f.Handler
			}
		}
	}
	return nil
}

// CancelCall implements native.Engine. A pending call completes with
// StatusCancelled.
func (e *Engine) CancelCall(h native.Handle) {
	e.mu.Lock()
	e.cancelled = append(e.cancelled, h)
	loop := e.loop
	e.mu.Unlock()

	_ = loop.Post(func() { e.finish(h, native.StatusCancelled, 0) })
}

// finish completes call h once. Runs on the reactor goroutine.
func (e *Engine) finish(h native.Handle, status native.Status, end int) {
	e.mu.Lock()
	c, ok := e.calls[h]
	delete(e.calls, h)
	e.mu.Unlock()
	if ok {
		c.handler.OnCallCompleted(c.ctx, status, end)
	}
}

// Close implements native.Engine. Active discoveries end without a stop
// notification.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return fmt.Errorf("fibretest: engine already closed")
	}
	e.closed = true
	e.discoveries = make(map[native.Handle]*discovery)
	return nil
}

func (e *Engine) alloc() native.Handle {
	e.next++
	return e.next
}

func (e *Engine) active(h native.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.discoveries[h]
	return ok
}

// do runs fn on the reactor and waits for it.
func (e *Engine) do(fn func()) error {
	e.mu.Lock()
	loop := e.loop
	e.mu.Unlock()
	if loop == nil {
		return fmt.Errorf("fibretest: engine not open")
	}
	done := make(chan struct{})
	if err := loop.Post(func() {
		defer close(done)
		fn()
	}); err != nil {
		return err
	}
	<-done
	return nil
}

// Construct announces a new object of interface intf.
func (e *Engine) Construct(obj, intf native.Handle, name string) error {
	return e.do(func() { e.host.ConstructObject(obj, intf, name) })
}

// Destroy announces that obj is gone.
func (e *Engine) Destroy(obj native.Handle) error {
	return e.do(func() { e.host.DestroyObject(obj) })
}

// Announce reports obj to every active discovery.
func (e *Engine) Announce(obj native.Handle) error {
	return e.do(func() {
		e.mu.Lock()
		ds := make([]*discovery, 0, len(e.discoveries))
		for _, d := range e.discoveries {
			ds = append(ds, d)
		}
		e.mu.Unlock()
		sort.Slice(ds, func(i, j int) bool { return ds[i].handle < ds[j].handle })
		for _, d := range ds {
			d.handler.OnFoundObject(d.ctx, obj)
		}
	})
}

// EndDiscovery stops every active discovery on path with status, as a
// transport failure would.
func (e *Engine) EndDiscovery(path string, status native.Status) error {
	return e.do(func() {
		e.mu.Lock()
		var ended []*discovery
		for h, d := range e.discoveries {
			if d.path == path {
				ended = append(ended, d)
				delete(e.discoveries, h)
			}
		}
		e.mu.Unlock()
		for _, d := range ended {
			d.handler.OnDiscoveryStopped(d.ctx, status)
		}
	})
}

// AddFunction adds fn to intf and notifies the subscriber, if any.
func (e *Engine) AddFunction(intf native.Handle, fn Function) error {
	e.mu.Lock()
	if def, ok := e.interfaces[intf]; ok {
		def.Functions = append(def.Functions, fn)
	}
	h := e.subs[intf]
	e.mu.Unlock()
	if h == nil {
		return nil
	}
	return e.do(func() { notifyFunction(h, intf, fn) })
}

// RemoveFunction removes function fn from intf and notifies the subscriber.
func (e *Engine) RemoveFunction(intf, fn native.Handle) error {
	e.mu.Lock()
	if def, ok := e.interfaces[intf]; ok {
		kept := def.Functions[:0]
		for _, f := range def.Functions {
			if f.Handle != fn {
				kept = append(kept, f)
			}
		}
		def.Functions = kept
	}
	h := e.subs[intf]
	e.mu.Unlock()
	if h == nil {
		return nil
	}
	return e.do(func() { h.OnFunctionRemoved(intf, fn) })
}

// RemoveAttribute removes attribute attr from intf and notifies the
// subscriber.
func (e *Engine) RemoveAttribute(intf, attr native.Handle) error {
	e.mu.Lock()
	if def, ok := e.interfaces[intf]; ok {
		kept := def.Attributes[:0]
		for _, a := range def.Attributes {
			if a.Handle != attr {
				kept = append(kept, a)
			}
		}
		def.Attributes = kept
	}
	h := e.subs[intf]
	e.mu.Unlock()
	if h == nil {
		return nil
	}
	return e.do(func() { h.OnAttributeRemoved(intf, attr) })
}

// Complete finishes a pending call, copying rx into its output buffer.
func (e *Engine) Complete(call native.Handle, status native.Status, rx []byte) error {
	return e.do(func() {
		e.mu.Lock()
		c, ok := e.calls[call]
		e.mu.Unlock()
		if !ok {
			return
		}
		n := copy(c.Rx, rx)
		e.finish(call, status, n)
	})
}

// Pending returns the calls awaiting completion, ordered by handle.
func (e *Engine) Pending() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Call, 0, len(e.calls))
	for _, c := range e.calls {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

// Started returns every call issued so far, in order.
func (e *Engine) Started() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Call(nil), e.started...)
}

// Cancelled returns the call handles passed to CancelCall.
func (e *Engine) Cancelled() []native.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]native.Handle(nil), e.cancelled...)
}

// Stopped returns the discovery handles passed to StopDiscovery.
func (e *Engine) Stopped() []native.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]native.Handle(nil), e.stopped...)
}

// Discoveries returns the paths of active discoveries.
func (e *Engine) Discoveries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.discoveries))
	for _, d := range e.discoveries {
		out = append(out, d.path)
	}
	sort.Strings(out)
	return out
}

// Subscribed reports whether the runtime subscribed to intf.
func (e *Engine) Subscribed(intf native.Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.subs[intf]
	return ok
}

// Closed reports whether the engine has been closed.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
