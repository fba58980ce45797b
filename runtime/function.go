package runtime

import (
	"context"
	stderrors "errors"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/fibre-go/codec"
	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/internal/idtable"
	"github.com/wippyai/fibre-go/native"
)

// call is an in-flight invocation. tx and rx stay referenced until the engine
// reports completion.
type call struct {
	id     idtable.ID
	handle native.Handle
	tx     []byte
	rx     []byte
	future *Future
}

// Function is a remote function on an interface.
type Function struct {
	client  *Client
	name    string
	handle  native.Handle
	inputs  []codec.Arg
	outputs []codec.Arg
	rxSize  int
	calls   *idtable.Table[*call]
}

var _ native.CallHandler = (*Function)(nil)

func newFunction(c *Client, name string, h native.Handle, inputs, outputs []codec.Arg) *Function {
	return &Function{
		client:  c,
		name:    name,
		handle:  h,
		inputs:  inputs,
		outputs: outputs,
		rxSize:  codec.TotalLen(outputs),
		calls:   idtable.New[*call](),
	}
}

// MemberName implements Member.
func (f *Function) MemberName() string { return f.name }

func (f *Function) memberHandle() native.Handle { return f.handle }

// Inputs returns the declared input arguments, excluding the object the
// function is invoked on.
func (f *Function) Inputs() []codec.Arg { return f.inputs }

// Outputs returns the declared output arguments.
func (f *Function) Outputs() []codec.Arg { return f.outputs }

// Signature renders the function as "name(a: uint32) -> b: uint32".
func (f *Function) Signature() string {
	var b strings.Builder
	b.WriteString(f.name)
	b.WriteByte('(')
	writeArgs(&b, f.inputs)
	b.WriteByte(')')
	switch len(f.outputs) {
	case 0:
	case 1:
		b.WriteString(" -> ")
		writeArgs(&b, f.outputs)
	default:
		b.WriteString(" -> (")
		writeArgs(&b, f.outputs)
		b.WriteByte(')')
	}
	return b.String()
}

func writeArgs(b *strings.Builder, args []codec.Arg) {
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.Name)
		b.WriteString(": ")
		b.WriteString(a.Token)
	}
}

// Start issues the call. On the reactor goroutine it returns a pending future.
// From any other goroutine it schedules the call on the reactor, blocks until
// it completes and returns the resolved future.
func (f *Function) Start(obj *Object, args ...any) (*Future, error) {
	loop := f.client.loop
	if loop.InLoop() {
		return f.start(obj, args)
	}

	var fut *Future
	var err error
	if perr := loop.Await(func() { fut, err = f.start(obj, args) }); perr != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindObjectLost, perr, "reactor stopped")
	}
	if err != nil {
		return nil, err
	}
	<-fut.Done()
	return fut, nil
}

// Call issues the call and waits for its result. It must not be used on the
// reactor goroutine. If ctx ends first the call is cancelled.
func (f *Function) Call(ctx context.Context, obj *Object, args ...any) (any, error) {
	loop := f.client.loop
	if loop.InLoop() {
		return nil, errors.Reentrant(errors.PhaseCall, "blocking call to "+f.name)
	}

	var fut *Future
	var err error
	if perr := loop.Await(func() { fut, err = f.start(obj, args) }); perr != nil {
		return nil, errors.Wrap(errors.PhaseCall, errors.KindObjectLost, perr, "reactor stopped")
	}
	if err != nil {
		return nil, err
	}
	return fut.Wait(ctx)
}

// start serializes the inputs and hands the call to the engine. Must run on
// the reactor goroutine.
func (f *Function) start(obj *Object, args []any) (*Future, error) {
	if obj == nil {
		return nil, errors.InvalidArgument(errors.PhaseCall, "nil object")
	}
	h, err := obj.ObjectHandle()
	if err != nil {
		return nil, err
	}

	if len(args) != len(f.inputs) {
		return nil, errors.Arity([]string{f.name}, len(f.inputs), len(args))
	}

	c := &call{tx: make([]byte, 0, codec.TotalLen(f.inputs))}
	for i, in := range f.inputs {
		b, err := in.Codec.Serialize(args[i])
		if err != nil {
			return nil, withPath(err, f.name, in.Name)
		}
		c.tx = append(c.tx, b...)
	}
	c.rx = make([]byte, f.rxSize)
	c.future = newFuture(f.client.loop)

	id := f.calls.Insert(c)
	c.id = id
	f.client.inflight[c] = f
	c.future.cancel = func() {
		if c.handle != 0 {
			f.client.engine.CancelCall(c.handle)
		}
	}

	f.client.metrics.callStarted()
	f.client.log.Debug("call started",
		zap.String("function", f.name),
		zap.Uint64("call", uint64(id)),
		zap.Int("tx", len(c.tx)))

	c.handle = f.client.engine.StartCall(h, f.handle, c.tx, c.rx, f, uint64(id))
	return c.future, nil
}

// OnCallCompleted implements native.CallHandler.
func (f *Function) OnCallCompleted(ctx uint64, status native.Status, end int) {
	c, ok := f.calls.Remove(idtable.ID(ctx))
	if !ok {
		f.client.log.Warn("completion for unknown call",
			zap.String("function", f.name),
			zap.Uint64("call", ctx))
		return
	}
	delete(f.client.inflight, c)
	f.client.metrics.callCompleted(status)
	f.client.log.Debug("call completed",
		zap.String("function", f.name),
		zap.Uint64("call", ctx),
		zap.Stringer("status", status),
		zap.Int("rx", end))

	if err := statusError(errors.PhaseCall, status); err != nil {
		c.future.resolve(nil, err)
		return
	}

	values := make([]any, 0, len(f.outputs))
	pos := 0
	for _, out := range f.outputs {
		n := out.Codec.Len()
		v, err := out.Codec.Deserialize(c.rx[pos : pos+n])
		if err != nil {
			c.future.resolve(nil, withPath(err, f.name, out.Name))
			return
		}
		values = append(values, v)
		pos += n
	}

	switch len(values) {
	case 0:
		c.future.resolve(nil, nil)
	case 1:
		c.future.resolve(values[0], nil)
	default:
		c.future.resolve(values, nil)
	}
}

// withPath attaches a member path to a structured error that has none.
func withPath(err error, path ...string) error {
	var e *errors.Error
	if stderrors.As(err, &e) && len(e.Path) == 0 {
		e.Path = path
	}
	return err
}
