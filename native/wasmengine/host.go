package wasmengine

import (
	"context"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
)

const hostModuleName = "fibre_host"

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

type hostFunc struct {
	name    string
	fn      api.GoModuleFunc
	params  []api.ValueType
	results []api.ValueType
}

func (e *Engine) hostFuncs() []hostFunc {
	return []hostFunc{
		{"post", e.hostPost, []api.ValueType{i32, i32}, []api.ValueType{i32}},
		{"register_event", e.hostRegisterEvent, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}},
		{"deregister_event", e.hostDeregisterEvent, []api.ValueType{i32}, []api.ValueType{i32}},
		{"call_later", e.hostCallLater, []api.ValueType{i64, i32, i32}, []api.ValueType{i64}},
		{"cancel_timer", e.hostCancelTimer, []api.ValueType{i64}, []api.ValueType{i32}},
		{"construct_object", e.hostConstructObject, []api.ValueType{i32, i32, i32, i32}, nil},
		{"destroy_object", e.hostDestroyObject, []api.ValueType{i32}, nil},
		{"on_found_object", e.hostFoundObject, []api.ValueType{i64, i32}, nil},
		{"on_discovery_stopped", e.hostDiscoveryStopped, []api.ValueType{i64, i32}, nil},
		{"on_attribute_added", e.hostAttributeAdded, []api.ValueType{i32, i32, i32, i32, i32, i32, i32}, nil},
		{"on_attribute_removed", e.hostAttributeRemoved, []api.ValueType{i32, i32}, nil},
		{"on_function_added", e.hostFunctionAdded, []api.ValueType{i32, i32, i32, i32, i32, i32}, nil},
		{"on_function_removed", e.hostFunctionRemoved, []api.ValueType{i32, i32}, nil},
		{"on_call_completed", e.hostCallCompleted, []api.ValueType{i64, i32, i32}, nil},
	}
}

func (e *Engine) hostModule() wazero.HostModuleBuilder {
	builder := e.rt.NewHostModuleBuilder(hostModuleName)
	for _, f := range e.hostFuncs() {
		builder.NewFunctionBuilder().
			WithGoModuleFunction(f.fn, f.params, f.results).
			Export(f.name)
	}
	return builder
}

func status(err error) uint64 {
	if err != nil {
		return api.EncodeI32(-1)
	}
	return api.EncodeI32(0)
}

// notify queues fn on the reactor. Notifications raised while the guest is
// executing are delivered after it returns.
func (e *Engine) notify(what string, fn func()) {
	if err := e.loop.Post(fn); err != nil {
		Logger().Warn("notification dropped", zap.String("kind", what), zap.Error(err))
	}
}

func handleAt(stack []uint64, i int) native.Handle {
	return native.Handle(api.DecodeU32(stack[i]))
}

func (e *Engine) hostPost(_ context.Context, _ api.Module, stack []uint64) {
	cb, arg := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	stack[0] = status(e.loop.Post(func() { e.invoke(cb, arg) }))
}

func (e *Engine) hostRegisterEvent(_ context.Context, _ api.Module, stack []uint64) {
	fd := int(api.DecodeI32(stack[0]))
	mask := native.EventMask(api.DecodeU32(stack[1]))
	cb, arg := api.DecodeU32(stack[2]), api.DecodeU32(stack[3])
	err := e.loop.RegisterEvent(fd, mask, func() { e.invoke(cb, arg) })
	if err != nil {
		Logger().Warn("register event", zap.Int("fd", fd), zap.Error(err))
	}
	stack[0] = status(err)
}

func (e *Engine) hostDeregisterEvent(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = status(e.loop.DeregisterEvent(int(api.DecodeI32(stack[0]))))
}

func (e *Engine) hostCallLater(_ context.Context, _ api.Module, stack []uint64) {
	delay := time.Duration(int64(stack[0]))
	cb, arg := api.DecodeU32(stack[1]), api.DecodeU32(stack[2])
	id, err := e.loop.CallLater(delay, func() { e.invoke(cb, arg) })
	if err != nil {
		Logger().Warn("call later", zap.Duration("delay", delay), zap.Error(err))
		stack[0] = 0
		return
	}
	stack[0] = uint64(id)
}

func (e *Engine) hostCancelTimer(_ context.Context, _ api.Module, stack []uint64) {
	stack[0] = status(e.loop.CancelTimer(native.TimerID(stack[0])))
}

func (e *Engine) hostConstructObject(_ context.Context, _ api.Module, stack []uint64) {
	obj, intf := handleAt(stack, 0), handleAt(stack, 1)
	name, err := e.mem.String(api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err != nil {
		Logger().Error("construct object: bad name", zap.Error(err))
	}
	e.notify("construct", func() { e.host.ConstructObject(obj, intf, name) })
}

func (e *Engine) hostDestroyObject(_ context.Context, _ api.Module, stack []uint64) {
	obj := handleAt(stack, 0)
	e.notify("destroy", func() { e.host.DestroyObject(obj) })
}

func (e *Engine) hostFoundObject(_ context.Context, _ api.Module, stack []uint64) {
	id, obj := idtable.ID(stack[0]), handleAt(stack, 1)
	e.notify("found", func() {
		d, ok := e.discoveries.Get(id)
		if !ok {
			Logger().Warn("object found by unknown discovery", zap.Uint64("session", uint64(id)))
			return
		}
		d.handler.OnFoundObject(d.ctx, obj)
	})
}

func (e *Engine) hostDiscoveryStopped(_ context.Context, _ api.Module, stack []uint64) {
	id, st := idtable.ID(stack[0]), native.Status(api.DecodeI32(stack[1]))
	e.notify("discovery stopped", func() {
		d, ok := e.discoveries.Remove(id)
		if !ok {
			return
		}
		d.handler.OnDiscoveryStopped(d.ctx, st)
	})
}

func (e *Engine) hostAttributeAdded(_ context.Context, _ api.Module, stack []uint64) {
	intf, attr, subintf := handleAt(stack, 0), handleAt(stack, 1), handleAt(stack, 4)
	name, err := e.mem.String(api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err != nil {
		Logger().Error("attribute added: bad name", zap.Error(err))
		return
	}
	subName, err := e.mem.String(api.DecodeU32(stack[5]), api.DecodeU32(stack[6]))
	if err != nil {
		Logger().Error("attribute added: bad interface name", zap.Error(err))
		return
	}
	e.notify("attribute added", func() {
		if h := e.subs[intf]; h != nil {
			h.OnAttributeAdded(intf, attr, name, subintf, subName)
		}
	})
}

func (e *Engine) hostAttributeRemoved(_ context.Context, _ api.Module, stack []uint64) {
	intf, attr := handleAt(stack, 0), handleAt(stack, 1)
	e.notify("attribute removed", func() {
		if h := e.subs[intf]; h != nil {
			h.OnAttributeRemoved(intf, attr)
		}
	})
}

func (e *Engine) hostFunctionAdded(_ context.Context, _ api.Module, stack []uint64) {
	intf, fn := handleAt(stack, 0), handleAt(stack, 1)
	name, err := e.mem.String(api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
	if err != nil {
		Logger().Error("function added: bad name", zap.Error(err))
		return
	}
	inNames, inCodecs, err := e.mem.ArgList(api.DecodeU32(stack[4]))
	if err != nil {
		Logger().Error("function added: bad inputs", zap.String("function", name), zap.Error(err))
		return
	}
	outNames, outCodecs, err := e.mem.ArgList(api.DecodeU32(stack[5]))
	if err != nil {
		Logger().Error("function added: bad outputs", zap.String("function", name), zap.Error(err))
		return
	}
	e.notify("function added", func() {
		if h := e.subs[intf]; h != nil {
			h.OnFunctionAdded(intf, fn, name, inNames, inCodecs, outNames, outCodecs)
		}
	})
}

func (e *Engine) hostFunctionRemoved(_ context.Context, _ api.Module, stack []uint64) {
	intf, fn := handleAt(stack, 0), handleAt(stack, 1)
	e.notify("function removed", func() {
		if h := e.subs[intf]; h != nil {
			h.OnFunctionRemoved(intf, fn)
		}
	})
}

func (e *Engine) hostCallCompleted(_ context.Context, _ api.Module, stack []uint64) {
	id := idtable.ID(stack[0])
	st := native.Status(api.DecodeI32(stack[1]))
	endPtr := api.DecodeU32(stack[2])
	e.notify("call completed", func() { e.completeCall(id, st, endPtr) })
}

// completeCall copies the guest output buffer back and releases the staging
// memory.
func (e *Engine) completeCall(id idtable.ID, st native.Status, endPtr uint32) {
	c, ok := e.calls.Remove(id)
	if !ok {
		Logger().Warn("completion for unknown call", zap.Uint64("call", uint64(id)))
		return
	}
	ctx := context.Background()
	defer e.alloc.Free(ctx, c.txPtr)
	defer e.alloc.Free(ctx, c.rxPtr)

	end := 0
	if endPtr >= c.rxPtr && c.rxPtr != 0 {
		end = int(endPtr - c.rxPtr)
		if end > len(c.rx) {
			end = len(c.rx)
		}
	}
	if end > 0 {
		data, err := e.mem.Read(c.rxPtr, uint32(end))
		if err != nil {
			Logger().Error("read call output", zap.Error(err))
			st = native.StatusInternalError
		} else {
			copy(c.rx, data)
		}
	}
	c.handler.OnCallCompleted(c.ctx, st, end)
}
