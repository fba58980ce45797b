package runtime

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/wippyai/fibre-go/fibretest"
	"github.com/wippyai/fibre-go/native"
)

const (
	adderIntf native.Handle = 1
	motorIntf native.Handle = 2
	speedIntf native.Handle = 3
	limitIntf native.Handle = 4
	childIntf native.Handle = 5

	addFn    native.Handle = 10
	divmodFn native.Handle = 11
	pingFn   native.Handle = 12
	hangFn   native.Handle = 13
	resetFn  native.Handle = 14
	pairFn   native.Handle = 15

	speedAttr native.Handle = 20
	limitAttr native.Handle = 21
	childAttr native.Handle = 22
)

func addHandler(c *fibretest.Call) (native.Status, int) {
	a := binary.LittleEndian.Uint32(c.Tx[0:4])
	b := binary.LittleEndian.Uint32(c.Tx[4:8])
	binary.LittleEndian.PutUint32(c.Rx, a+b)
	return native.StatusOK, 4
}

func divmodHandler(c *fibretest.Call) (native.Status, int) {
	a := binary.LittleEndian.Uint32(c.Tx[0:4])
	b := binary.LittleEndian.Uint32(c.Tx[4:8])
	if b == 0 {
		return native.StatusInvalidArgument, 0
	}
	binary.LittleEndian.PutUint32(c.Rx[0:4], a/b)
	binary.LittleEndian.PutUint32(c.Rx[4:8], a%b)
	return native.StatusOK, 8
}

// newAdderEngine defines an interface with add, divmod, ping (no outputs)
// and hang (never completes on its own).
func newAdderEngine() *fibretest.Engine {
	e := fibretest.NewEngine()
	u32 := func(name string) fibretest.Arg { return fibretest.Arg{Name: name, Codec: "uint32"} }
	e.Define(fibretest.Interface{
		Handle: adderIntf,
		Name:   "Adder",
		Functions: []fibretest.Function{
			{Handle: addFn, Name: "add", Inputs: []fibretest.Arg{u32("a"), u32("b")}, Outputs: []fibretest.Arg{u32("sum")}, Handler: addHandler},
			{Handle: divmodFn, Name: "divmod", Inputs: []fibretest.Arg{u32("a"), u32("b")}, Outputs: []fibretest.Arg{u32("q"), u32("r")}, Handler: divmodHandler},
			{Handle: pingFn, Name: "ping", Handler: func(*fibretest.Call) (native.Status, int) { return native.StatusOK, 0 }},
			{Handle: hangFn, Name: "hang", Outputs: []fibretest.Arg{u32("value")}},
			{Handle: pairFn, Name: "same", Inputs: []fibretest.Arg{{Name: "other", Codec: "object_ref"}}, Outputs: []fibretest.Arg{{Name: "echo", Codec: "object_ref"}},
				Handler: func(c *fibretest.Call) (native.Status, int) { return native.StatusOK, copy(c.Rx, c.Tx) }},
		},
	})
	return e
}

// newMotorEngine defines a motor with a read-write float "speed" property, a
// read-only uint32 "limit" property and a "child" sub-object.
func newMotorEngine() *fibretest.Engine {
	e := fibretest.NewEngine()
	e.Property(speedIntf, "float", true)
	e.Property(limitIntf, "uint32", false)
	e.Define(fibretest.Interface{
		Handle:    childIntf,
		Name:      "Child",
		Functions: []fibretest.Function{{Handle: resetFn, Name: "reset", Handler: func(*fibretest.Call) (native.Status, int) { return native.StatusOK, 0 }}},
	})
	e.Define(fibretest.Interface{
		Handle: motorIntf,
		Name:   "Motor",
		Attributes: []fibretest.Attribute{
			{Handle: speedAttr, Name: "speed", SubIntf: speedIntf, SubIntfName: fibretest.PropertyName("float", true)},
			{Handle: limitAttr, Name: "limit", SubIntf: limitIntf, SubIntfName: fibretest.PropertyName("uint32", false)},
			{Handle: childAttr, Name: "child", SubIntf: childIntf, SubIntfName: "Child"},
		},
	})
	return e
}

// constructMotor creates motor obj with its property and child objects.
func constructMotor(t *testing.T, e *fibretest.Engine, obj native.Handle) {
	t.Helper()
	speed, limit, child := obj+1, obj+2, obj+3
	must(t, e.Construct(speed, speedIntf, fibretest.PropertyName("float", true)))
	must(t, e.Construct(limit, limitIntf, fibretest.PropertyName("uint32", false)))
	must(t, e.Construct(child, childIntf, "Child"))
	must(t, e.Construct(obj, motorIntf, "Motor"))
	e.Link(obj, speedAttr, speed)
	e.Link(obj, limitAttr, limit)
	e.Link(obj, childAttr, child)
	e.SetValue(speed, float32Bytes(1.5))
	e.SetValue(limit, []byte{40, 0, 0, 0})
}

func float32Bytes(v float32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
	return b
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

// startRuntime acquires a runtime over e and releases every reference on
// cleanup.
func startRuntime(t *testing.T, e *fibretest.Engine, opts ...Option) (*Runtime, *Client) {
	t.Helper()
	rt := New(e.Opener(), opts...)
	if err := rt.Acquire(); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	t.Cleanup(func() {
		for rt.Refs() > 0 {
			_ = rt.Release()
		}
	})
	c, err := rt.Client()
	if err != nil {
		t.Fatal(err)
	}
	return rt, c
}

// object returns the proxy for h.
func object(t *testing.T, c *Client, h native.Handle) *Object {
	t.Helper()
	var o *Object
	must(t, c.loop.Do(func() { o = c.objects[h] }))
	if o == nil {
		t.Fatalf("object %#x not registered", h)
	}
	return o
}

// function returns the function descriptor name on o's interface.
func function(t *testing.T, c *Client, o *Object, name string) *Function {
	t.Helper()
	var fn *Function
	var err error
	must(t, c.loop.Do(func() { fn, err = c.function(o, name) }))
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
