package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
)

func TestCall_Add(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	v, err := obj.Call(context.Background(), "add", 3, 4)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v != uint32(7) {
		t.Errorf("add(3, 4) = %v (%T), want 7", v, v)
	}

	started := e.Started()
	if len(started) != 1 {
		t.Fatalf("started %d calls", len(started))
	}
	want := []byte{3, 0, 0, 0, 4, 0, 0, 0}
	if !bytes.Equal(started[0].Tx, want) {
		t.Errorf("tx = %v, want %v", started[0].Tx, want)
	}
	if started[0].Obj != 0x10 || started[0].Fn != addFn {
		t.Errorf("call target = %#x/%d", started[0].Obj, started[0].Fn)
	}
}

func TestCall_Outputs(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	ctx := context.Background()

	v, err := obj.Call(ctx, "ping")
	if err != nil || v != nil {
		t.Errorf("ping = %v, %v; want nil, nil", v, err)
	}

	v, err = obj.Call(ctx, "divmod", 17, 5)
	if err != nil {
		t.Fatal(err)
	}
	got, ok := v.([]any)
	if !ok || len(got) != 2 || got[0] != uint32(3) || got[1] != uint32(2) {
		t.Errorf("divmod(17, 5) = %v", v)
	}

	v, err = obj.Call(ctx, "same", obj)
	if err != nil {
		t.Fatal(err)
	}
	if v != obj {
		t.Errorf("object_ref round trip = %v, want %v", v, obj)
	}
	v, err = obj.Call(ctx, "same", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Errorf("nil object_ref = %v", v)
	}
}

func TestCall_Arity(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	for _, args := range [][]any{{3}, {3, 4, 5}, {}} {
		_, err := obj.Call(context.Background(), "add", args...)
		if !stderrors.Is(err, errors.ErrInvalidArgument) {
			t.Errorf("add%v: err = %v, want invalid argument", args, err)
		}
	}
	if n := len(e.Started()); n != 0 {
		t.Errorf("engine saw %d calls", n)
	}
}

func TestCall_ArgumentErrors(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	tests := []struct {
		name string
		fn   string
		args []any
		kind errors.Kind
	}{
		{"wrong type", "add", []any{"three", 4}, errors.KindTypeMismatch},
		{"overflow", "add", []any{3, int64(1) << 40}, errors.KindOverflow},
		{"negative", "add", []any{-1, 4}, errors.KindOverflow},
		{"not an object", "same", []any{42}, errors.KindInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := obj.Call(context.Background(), tt.fn, tt.args...)
			if got := errors.KindOf(err); got != tt.kind {
				t.Fatalf("kind = %q, want %q (err %v)", got, tt.kind, err)
			}
			var fe *errors.Error
			if stderrors.As(err, &fe) && (len(fe.Path) == 0 || fe.Path[0] != tt.fn) {
				t.Errorf("path = %v", fe.Path)
			}
		})
	}
	if n := len(e.Started()); n != 0 {
		t.Errorf("engine saw %d calls", n)
	}
}

func TestCall_StartOnLoopIsPending(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "add")

	var fut *Future
	var err error
	var ready bool
	must(t, c.loop.Do(func() {
		fut, err = fn.Start(obj, 1, 2)
		if err == nil {
			ready = fut.Ready()
		}
	}))
	if err != nil {
		t.Fatal(err)
	}
	if ready {
		t.Error("future resolved before the engine completed")
	}

	v, err := fut.Wait(context.Background())
	if err != nil || v != uint32(3) {
		t.Errorf("result = %v, %v", v, err)
	}
}

func TestCall_StartOffLoopIsResolved(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	fut, err := obj.Start("add", 20, 22)
	if err != nil {
		t.Fatal(err)
	}
	if !fut.Ready() {
		t.Fatal("off-loop Start returned a pending future")
	}
	v, err := fut.Result()
	if err != nil || v != uint32(42) {
		t.Errorf("result = %v, %v", v, err)
	}
}

func TestCall_ReentrantOnLoop(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "add")

	var callErr, resultErr error
	must(t, c.loop.Do(func() {
		_, callErr = fn.Call(context.Background(), obj, 1, 2)

		fut, err := fn.Start(obj, 1, 2)
		if err != nil {
			resultErr = err
			return
		}
		_, resultErr = fut.Result()
	}))
	if !stderrors.Is(callErr, errors.ErrReentrant) {
		t.Errorf("Call on loop: %v", callErr)
	}
	if !stderrors.Is(resultErr, errors.ErrReentrant) {
		t.Errorf("Result on loop: %v", resultErr)
	}
}

func TestCall_CompletionStatus(t *testing.T) {
	tests := []struct {
		status native.Status
		want   error
	}{
		{native.StatusCancelled, errors.ErrCancelled},
		{native.StatusClosed, errors.ErrObjectLost},
		{native.StatusInvalidArgument, errors.ErrInvalidArgument},
		{native.StatusInternalError, errors.ErrInternal},
		{native.Status(9), errors.ErrUnknown},
	}

	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "hang")

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			var fut *Future
			var err error
			must(t, c.loop.Do(func() { fut, err = fn.Start(obj) }))
			if err != nil {
				t.Fatal(err)
			}
			pending := e.Pending()
			if len(pending) != 1 {
				t.Fatalf("pending = %d", len(pending))
			}
			must(t, e.Complete(pending[0].Handle, tt.status, nil))

			_, err = fut.Wait(context.Background())
			if !stderrors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCall_StartFailure(t *testing.T) {
	e := newAdderEngine()
	e.FailStart(addFn)
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "add")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := obj.Call(ctx, "add", uint32(1), uint32(2))
	if !stderrors.Is(err, errors.ErrInternal) {
		t.Fatalf("err = %v, want internal error", err)
	}

	var records, inflight int
	must(t, c.loop.Do(func() {
		records = fn.calls.Len()
		inflight = len(c.inflight)
	}))
	if records != 0 || inflight != 0 {
		t.Errorf("records = %d, inflight = %d after failed start", records, inflight)
	}
}

func TestCall_SingleResolution(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "hang")

	var fut *Future
	must(t, c.loop.Do(func() { fut, _ = fn.Start(obj) }))
	h := e.Pending()[0].Handle
	must(t, e.Complete(h, native.StatusOK, []byte{5, 0, 0, 0}))

	var records int
	must(t, c.loop.Do(func() {
		// A stray completion for the same id must not resolve again.
		fn.OnCallCompleted(1, native.StatusInternalError, 0)
		records = fn.calls.Len()
	}))
	if records != 0 {
		t.Errorf("%d call records remain", records)
	}
	v, err := fut.Result()
	if err != nil || v != uint32(5) {
		t.Errorf("result = %v, %v", v, err)
	}
}

func TestCall_ContextCancel(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := obj.Call(ctx, "hang")
		errc <- err
	}()

	waitUntil(t, "pending call", func() bool { return len(e.Pending()) == 1 })
	cancel()

	select {
	case err := <-errc:
		if !stderrors.Is(err, errors.ErrCancelled) {
			t.Errorf("err = %v, want cancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not complete after cancel")
	}
	if got := e.Cancelled(); len(got) != 1 {
		t.Errorf("engine cancelled %d calls", len(got))
	}
}

func TestFuture_Cancel(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)
	fn := function(t, c, obj, "hang")

	var fut *Future
	must(t, c.loop.Do(func() { fut, _ = fn.Start(obj) }))

	results := make(chan error, 1)
	fut.OnDone(func(_ any, err error) { results <- err })
	fut.Cancel()

	select {
	case err := <-results:
		if !stderrors.Is(err, errors.ErrCancelled) {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("future not resolved")
	}

	// Cancelling a resolved future is a no-op.
	fut.Cancel()
	if n := len(e.Cancelled()); n != 1 {
		t.Errorf("engine cancelled %d calls", n)
	}
}

func TestCall_ConcurrentCallers(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := obj.Call(context.Background(), "add", i, 1000)
			if err != nil {
				errs <- err
				return
			}
			if v != uint32(i+1000) {
				errs <- errors.Internal(errors.PhaseCall, "wrong sum")
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFunction_Signature(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	tests := map[string]string{
		"add":    "add(a: uint32, b: uint32) -> sum: uint32",
		"divmod": "divmod(a: uint32, b: uint32) -> (q: uint32, r: uint32)",
		"ping":   "ping()",
	}
	for name, want := range tests {
		if got := function(t, c, obj, name).Signature(); got != want {
			t.Errorf("%s: signature = %q, want %q", name, got, want)
		}
	}
}
