package wasmengine

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
)

const (
	exportMalloc         = "fibre_malloc"
	exportFree           = "fibre_free"
	exportVersion        = "libfibre_get_version"
	exportOpen           = "libfibre_open"
	exportClose          = "libfibre_close"
	exportInvoke         = "libfibre_invoke"
	exportStartDiscovery = "libfibre_start_discovery"
	exportStopDiscovery  = "libfibre_stop_discovery"
	exportSubscribe      = "libfibre_subscribe_to_interface"
	exportGetAttribute   = "libfibre_get_attribute"
	exportStartCall      = "libfibre_start_call"
	exportCancelCall     = "libfibre_cancel_call"
)

var requiredExports = []string{
	exportMalloc, exportFree, exportVersion, exportOpen, exportClose,
	exportInvoke, exportStartDiscovery, exportStopDiscovery, exportSubscribe,
	exportGetAttribute, exportStartCall, exportCancelCall,
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps guest memory in 64KiB pages. 0 means the wazero
	// default.
	MemoryLimitPages uint32

	// DisableWASI skips instantiating wasi_snapshot_preview1 for guests
	// built without a libc.
	DisableWASI bool
}

type pendingCall struct {
	handler native.CallHandler
	ctx     uint64
	rx      []byte
	txPtr   uint32
	rxPtr   uint32
}

type pendingDiscovery struct {
	handler native.DiscoveryHandler
	ctx     uint64
}

// Engine is a native.Engine backed by a wazero module instance. Apart from
// Opener, every method must run on the reactor goroutine.
type Engine struct {
	rt      wazero.Runtime
	mod     api.Module
	mem     *guestMemory
	alloc   allocator
	fns     map[string]api.Function
	loop    native.Loop
	host    native.ObjectHost
	inst    uint32
	version native.Version

	subs        map[native.Handle]native.InterfaceHandler
	discoveries *idtable.Table[*pendingDiscovery]
	calls       *idtable.Table[*pendingCall]
	closed      bool
}

var _ native.Engine = (*Engine)(nil)

// Opener returns a native.Opener that instantiates wasm for each open.
func Opener(wasm []byte, cfg *Config) native.Opener {
	return func(loop native.Loop, host native.ObjectHost) (native.Engine, error) {
		return Open(context.Background(), wasm, cfg, loop, host)
	}
}

// Open compiles and instantiates the libfibre module and opens an instance.
func Open(ctx context.Context, wasm []byte, cfg *Config, loop native.Loop, host native.ObjectHost) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	e := &Engine{
		rt:          rt,
		loop:        loop,
		host:        host,
		fns:         make(map[string]api.Function, len(requiredExports)),
		subs:        make(map[native.Handle]native.InterfaceHandler),
		discoveries: idtable.New[*pendingDiscovery](),
		calls:       idtable.New[*pendingCall](),
	}
	if err := e.instantiate(ctx, wasm, cfg); err != nil {
		return nil, multierr.Append(err, rt.Close(ctx))
	}
	return e, nil
}

func (e *Engine) instantiate(ctx context.Context, wasm []byte, cfg *Config) error {
	if cfg == nil || !cfg.DisableWASI {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, e.rt); err != nil {
			return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "instantiate WASI")
		}
	}
	if _, err := e.hostModule().Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "instantiate host module")
	}

	compiled, err := e.rt.CompileModule(ctx, wasm)
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "compile libfibre")
	}
	modCfg := wazero.NewModuleConfig().
		WithName("libfibre").
		WithStartFunctions("_initialize")
	mod, err := e.rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "instantiate libfibre")
	}
	e.mod = mod

	if mod.Memory() == nil {
		return errors.NotFound(errors.PhaseEngine, "export", "memory")
	}
	e.mem = &guestMemory{mem: mod.Memory()}
	for _, name := range requiredExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return errors.NotFound(errors.PhaseEngine, "export", name)
		}
		e.fns[name] = fn
	}
	e.alloc = &guestAllocator{allocFn: e.fns[exportMalloc], freeFn: e.fns[exportFree]}

	if e.version, err = e.readVersion(ctx); err != nil {
		return err
	}
	res, err := e.fns[exportOpen].Call(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, exportOpen)
	}
	if e.inst = api.DecodeU32(res[0]); e.inst == 0 {
		return errors.Internal(errors.PhaseEngine, "libfibre_open failed")
	}
	return nil
}

func (e *Engine) readVersion(ctx context.Context) (native.Version, error) {
	res, err := e.fns[exportVersion].Call(ctx)
	if err != nil {
		return native.Version{}, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, exportVersion)
	}
	ptr := api.DecodeU32(res[0])
	var parts [3]uint16
	for i := range parts {
		if parts[i], err = e.mem.ReadU16(ptr + uint32(i)*2); err != nil {
			return native.Version{}, errors.Wrap(errors.PhaseEngine, errors.KindInternal, err, "read version")
		}
	}
	return native.Version{Major: parts[0], Minor: parts[1], Patch: parts[2]}, nil
}

// call invokes a guest export. Guest traps are logged and reported as a zero
// result.
func (e *Engine) call(name string, params ...uint64) uint64 {
	res, _ := e.callErr(name, params...)
	return res
}

func (e *Engine) callErr(name string, params ...uint64) (uint64, error) {
	res, err := e.fns[name].Call(context.Background(), params...)
	if err != nil {
		Logger().Error("guest call failed", zap.String("export", name), zap.Error(err))
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	return res[0], nil
}

func (e *Engine) invoke(cb, arg uint32) {
	if e.closed {
		return
	}
	e.call(exportInvoke, api.EncodeU32(cb), api.EncodeU32(arg))
}

// Version implements native.Engine.
func (e *Engine) Version() native.Version { return e.version }

// StartDiscovery implements native.Engine.
func (e *Engine) StartDiscovery(path string, h native.DiscoveryHandler, ctx uint64) native.Handle {
	ptr, err := e.writeBytes([]byte(path))
	if err != nil {
		Logger().Error("start discovery", zap.String("path", path), zap.Error(err))
		return 0
	}
	defer e.alloc.Free(context.Background(), ptr)

	id := e.discoveries.Insert(&pendingDiscovery{handler: h, ctx: ctx})
	handle := e.call(exportStartDiscovery,
		api.EncodeU32(e.inst), api.EncodeU32(ptr), api.EncodeU32(uint32(len(path))), uint64(id))
	return native.Handle(api.DecodeU32(handle))
}

// StopDiscovery implements native.Engine.
func (e *Engine) StopDiscovery(discovery native.Handle) {
	e.call(exportStopDiscovery, api.EncodeU32(uint32(discovery)))
}

// SubscribeToInterface implements native.Engine.
func (e *Engine) SubscribeToInterface(intf native.Handle, h native.InterfaceHandler) {
	e.subs[intf] = h
	e.call(exportSubscribe, api.EncodeU32(uint32(intf)))
}

// GetAttribute implements native.Engine.
func (e *Engine) GetAttribute(obj, attr native.Handle) (native.Handle, native.Status) {
	out, err := e.alloc.Alloc(context.Background(), 4)
	if err != nil {
		Logger().Error("get attribute", zap.Error(err))
		return 0, native.StatusInternalError
	}
	defer e.alloc.Free(context.Background(), out)

	status := native.Status(api.DecodeI32(e.call(exportGetAttribute,
		api.EncodeU32(uint32(obj)), api.EncodeU32(uint32(attr)), api.EncodeU32(out))))
	if status != native.StatusOK {
		return 0, status
	}
	sub, err := e.mem.ReadU32(out)
	if err != nil {
		return 0, native.StatusInternalError
	}
	return native.Handle(sub), native.StatusOK
}

// StartCall implements native.Engine. tx and rx are staged in guest memory
// until the completion is delivered. A call that cannot be staged or traps in
// the guest completes with StatusInternalError.
func (e *Engine) StartCall(obj, fn native.Handle, tx, rx []byte, h native.CallHandler, ctx uint64) native.Handle {
	txPtr, err := e.writeBytes(tx)
	if err != nil {
		Logger().Error("stage call input", zap.Error(err))
		e.failCall(h, ctx)
		return 0
	}
	rxPtr, err := e.alloc.Alloc(context.Background(), uint32(len(rx)))
	if err != nil {
		e.alloc.Free(context.Background(), txPtr)
		Logger().Error("stage call output", zap.Error(err))
		e.failCall(h, ctx)
		return 0
	}

	id := e.calls.Insert(&pendingCall{handler: h, ctx: ctx, rx: rx, txPtr: txPtr, rxPtr: rxPtr})
	handle, err := e.callErr(exportStartCall,
		api.EncodeU32(uint32(obj)), api.EncodeU32(uint32(fn)),
		api.EncodeU32(txPtr), api.EncodeU32(uint32(len(tx))),
		api.EncodeU32(rxPtr), api.EncodeU32(uint32(len(rx))),
		uint64(id))
	if err != nil {
		// A trapped guest never reports this call.
		if _, ok := e.calls.Remove(id); ok {
			e.alloc.Free(context.Background(), txPtr)
			e.alloc.Free(context.Background(), rxPtr)
			e.failCall(h, ctx)
		}
		return 0
	}
	return native.Handle(api.DecodeU32(handle))
}

// failCall completes a call that never reached the guest.
func (e *Engine) failCall(h native.CallHandler, ctx uint64) {
	e.notify("call failed", func() { h.OnCallCompleted(ctx, native.StatusInternalError, 0) })
}

// CancelCall implements native.Engine.
func (e *Engine) CancelCall(call native.Handle) {
	e.call(exportCancelCall, api.EncodeU32(uint32(call)))
}

// Close implements native.Engine.
func (e *Engine) Close() error {
	if e.closed {
		return nil
	}
	ctx := context.Background()
	var err error
	if _, cerr := e.fns[exportClose].Call(ctx, api.EncodeU32(e.inst)); cerr != nil {
		err = errors.Wrap(errors.PhaseEngine, errors.KindInternal, cerr, exportClose)
	}
	e.closed = true
	return multierr.Append(err, e.rt.Close(ctx))
}

func (e *Engine) writeBytes(data []byte) (uint32, error) {
	ptr, err := e.alloc.Alloc(context.Background(), uint32(len(data)))
	if err != nil || ptr == 0 {
		return ptr, err
	}
	if err := e.mem.Write(ptr, data); err != nil {
		e.alloc.Free(context.Background(), ptr)
		return 0, err
	}
	return ptr, nil
}
