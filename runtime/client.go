package runtime

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/codec"
	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
	"github.com/wippyai/fibre-go/reactor"
)

// Client binds one opened engine to the reactor. It owns the interface type
// cache, the object registry and the discovery sessions. Apart from Loop, all
// of its state is confined to the reactor goroutine.
type Client struct {
	loop        *reactor.Loop
	engine      native.Engine
	codecs      *codec.Registry
	log         *zap.Logger
	metrics     *Metrics
	identity    IdentityFunc
	interfaces  map[native.Handle]*Interface
	objects     map[native.Handle]*Object
	discoveries *idtable.Table[*discovery]
	inflight    map[*call]*Function
	closed      bool
}

var (
	_ native.ObjectHost       = (*Client)(nil)
	_ native.InterfaceHandler = (*Client)(nil)
	_ native.DiscoveryHandler = (*Client)(nil)
	_ codec.Resolver          = (*Client)(nil)
)

// openClient opens the engine. Must run on the reactor goroutine.
func openClient(loop *reactor.Loop, open native.Opener, cfg config) (*Client, error) {
	c := &Client{
		loop:        loop,
		log:         cfg.log,
		metrics:     cfg.metrics,
		identity:    cfg.identity,
		interfaces:  make(map[native.Handle]*Interface),
		objects:     make(map[native.Handle]*Object),
		discoveries: idtable.New[*discovery](),
		inflight:    make(map[*call]*Function),
	}
	c.codecs = codec.NewRegistry(c)

	engine, err := open(loop, c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "open engine")
	}
	if v := engine.Version(); v.Major != 0 {
		_ = engine.Close()
		return nil, errors.New(errors.PhaseEngine, errors.KindInternal).
			Value(v.String()).
			Detail("incompatible libfibre version %s", v).
			Build()
	}
	c.engine = engine
	c.log.Info("engine opened", zap.Stringer("version", engine.Version()))
	return c, nil
}

// Loop returns the reactor the client runs on.
func (c *Client) Loop() *reactor.Loop { return c.loop }

// Engine returns the underlying engine.
func (c *Client) Engine() native.Engine { return c.engine }

// Codecs returns the codec registry used for interface registration.
func (c *Client) Codecs() *codec.Registry { return c.codecs }

// Objects returns the live object proxies. Must run on the reactor goroutine.
func (c *Client) Objects() []*Object {
	out := make([]*Object, 0, len(c.objects))
	for _, o := range c.objects {
		out = append(out, o)
	}
	return out
}

// LookupObject implements codec.Resolver.
func (c *Client) LookupObject(h native.Handle) (codec.Ref, bool) {
	o, ok := c.objects[h]
	if !ok {
		return nil, false
	}
	return o, true
}

// ConstructObject implements native.ObjectHost.
func (c *Client) ConstructObject(obj, intf native.Handle, name string) {
	if _, exists := c.objects[obj]; exists {
		panic(errors.Internal(errors.PhaseLifecycle, "object constructed twice"))
	}
	it := c.loadInterface(intf, name)
	it.refcount++
	c.objects[obj] = newObject(c, obj, intf)
	c.metrics.setObjects(len(c.objects))

	c.log.Debug("object constructed",
		zap.Uint64("object", uint64(obj)),
		zap.String("interface", it.name))
}

// DestroyObject implements native.ObjectHost.
func (c *Client) DestroyObject(obj native.Handle) {
	o, ok := c.objects[obj]
	if !ok {
		c.log.Error("destroy for unknown object", zap.Uint64("object", uint64(obj)))
		return
	}
	delete(c.objects, obj)
	c.release(o)

	c.log.Debug("object destroyed", zap.Uint64("object", uint64(obj)))
}

// release detaches o, drops its interface reference and signals loss.
func (c *Client) release(o *Object) {
	if it, ok := c.interfaces[o.intf]; ok {
		it.refcount--
		if it.refcount == 0 {
			delete(c.interfaces, o.intf)
			c.metrics.setInterfaces(len(c.interfaces))
		}
	}
	c.metrics.setObjects(len(c.objects))
	o.detach()
	o.lost.Set()
}

func (c *Client) loadInterface(h native.Handle, name string) *Interface {
	if it, ok := c.interfaces[h]; ok {
		return it
	}
	if name == "" {
		name = "anonymous_interface_" + formatHandle(h)
	}
	it := newInterface(h, name)
	c.interfaces[h] = it
	c.metrics.setInterfaces(len(c.interfaces))
	c.engine.SubscribeToInterface(h, c)
	return it
}

func (c *Client) interfaceOf(o *Object) (*Interface, error) {
	it, ok := c.interfaces[o.intf]
	if !ok {
		return nil, errors.ObjectLost(errors.PhaseInterface)
	}
	return it, nil
}

func (c *Client) member(o *Object, name string) (Member, error) {
	it, err := c.interfaceOf(o)
	if err != nil {
		return nil, err
	}
	m, ok := it.Member(name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseInterface, it.name+" member", name)
	}
	return m, nil
}

func (c *Client) attribute(o *Object, name string) (*Attribute, error) {
	m, err := c.member(o, name)
	if err != nil {
		return nil, err
	}
	attr, ok := m.(*Attribute)
	if !ok {
		return nil, errors.New(errors.PhaseInterface, errors.KindInvalidArgument).
			Path(name).
			Detail("%s is a function", name).
			Build()
	}
	return attr, nil
}

func (c *Client) function(o *Object, name string) (*Function, error) {
	m, err := c.member(o, name)
	if err != nil {
		return nil, err
	}
	fn, ok := m.(*Function)
	if !ok {
		return nil, errors.New(errors.PhaseInterface, errors.KindInvalidArgument).
			Path(name).
			Detail("%s is not a function", name).
			Build()
	}
	return fn, nil
}

// OnAttributeAdded implements native.InterfaceHandler.
func (c *Client) OnAttributeAdded(ctx, attr native.Handle, name string, subintf native.Handle, subintfName string) {
	it, ok := c.interfaces[ctx]
	if !ok {
		c.log.Warn("attribute for unknown interface", zap.Uint64("interface", uint64(ctx)), zap.String("name", name))
		return
	}
	a := newAttribute(c, name, attr, subintf, subintfName)
	it.install(a)
	if a.magicGetter || a.magicSetter {
		it.install(a.rawAttribute())
	}
}

// OnAttributeRemoved implements native.InterfaceHandler.
func (c *Client) OnAttributeRemoved(ctx, attr native.Handle) {
	if it, ok := c.interfaces[ctx]; ok {
		it.remove(attr, isAttribute)
	}
}

// OnFunctionAdded implements native.InterfaceHandler. A function referencing
// an unknown codec is not registered.
func (c *Client) OnFunctionAdded(ctx, fn native.Handle, name string, inputNames, inputCodecs, outputNames, outputCodecs []string) {
	it, ok := c.interfaces[ctx]
	if !ok {
		c.log.Warn("function for unknown interface", zap.Uint64("interface", uint64(ctx)), zap.String("name", name))
		return
	}
	path := []string{it.name, name}
	inputs, err := c.codecs.DecodeArgList(path, inputNames, inputCodecs)
	if err != nil {
		c.log.Error("function registration failed", zap.Error(err))
		return
	}
	outputs, err := c.codecs.DecodeArgList(path, outputNames, outputCodecs)
	if err != nil {
		c.log.Error("function registration failed", zap.Error(err))
		return
	}
	it.install(newFunction(c, name, fn, inputs, outputs))
}

// OnFunctionRemoved implements native.InterfaceHandler.
func (c *Client) OnFunctionRemoved(ctx, fn native.Handle) {
	if it, ok := c.interfaces[ctx]; ok {
		it.remove(fn, isFunction)
	}
}

// close shuts the engine down, fails in-flight calls and force-destroys
// objects it did not report.
// Must run on the reactor goroutine.
func (c *Client) close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	err := c.engine.Close()

	// A closed engine reports no more completions. Calls whose interface was
	// already evicted are still tracked here.
	for cl, fn := range c.inflight {
		delete(c.inflight, cl)
		fn.calls.Remove(cl.id)
		c.metrics.callCompleted(native.StatusClosed)
		cl.future.resolve(nil, errors.ObjectLost(errors.PhaseCall))
	}
	for h, o := range c.objects {
		delete(c.objects, h)
		c.release(o)
	}
	c.discoveries.Each(func(id idtable.ID, d *discovery) bool {
		d.detach()
		return true
	})
	c.discoveries = idtable.New[*discovery]()
	c.metrics.setDiscoveries(0)

	if len(c.interfaces) != 0 {
		leak := errors.Internal(errors.PhaseLifecycle, "interfaces outlived their objects")
		c.log.Error("shutdown", zap.Error(leak), zap.Int("interfaces", len(c.interfaces)))
		return leak
	}
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "close engine")
	}
	c.log.Info("engine closed")
	return nil
}

func formatHandle(h native.Handle) string {
	return strconv.FormatUint(uint64(h), 10)
}
