package runtime

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/fibretest"
	"github.com/wippyai/fibre-go/native"
)

func TestObject_Property(t *testing.T) {
	e := newMotorEngine()
	_, c := startRuntime(t, e)
	constructMotor(t, e, 0x100)
	motor := object(t, c, 0x100)
	ctx := context.Background()

	v, err := motor.Get(ctx, "speed")
	if err != nil {
		t.Fatal(err)
	}
	if v != float32(1.5) {
		t.Errorf("speed = %v (%T), want 1.5", v, v)
	}

	raw, err := motor.Get(ctx, "_speed_property")
	if err != nil {
		t.Fatal(err)
	}
	prop, ok := raw.(*Object)
	if !ok || prop.Handle() != 0x101 {
		t.Fatalf("_speed_property = %v", raw)
	}
	if name, _ := prop.InterfaceName(); name != "fibre.Property<readwrite float>" {
		t.Errorf("property interface = %q", name)
	}

	if err := motor.Set(ctx, "speed", 2.25); err != nil {
		t.Fatal(err)
	}
	if got := e.Value(0x101); !bytes.Equal(got, float32Bytes(2.25)) {
		t.Errorf("stored speed = %v", got)
	}
	if v, _ := motor.Get(ctx, "speed"); v != float32(2.25) {
		t.Errorf("speed after set = %v", v)
	}
}

func TestObject_ReadOnlyProperty(t *testing.T) {
	e := newMotorEngine()
	_, c := startRuntime(t, e)
	constructMotor(t, e, 0x100)
	motor := object(t, c, 0x100)
	ctx := context.Background()

	v, err := motor.Get(ctx, "limit")
	if err != nil || v != uint32(40) {
		t.Errorf("limit = %v, %v", v, err)
	}

	m, err := motor.Member("limit")
	if err != nil {
		t.Fatal(err)
	}
	attr := m.(*Attribute)
	if !attr.Readable() || attr.Writable() {
		t.Errorf("limit readable=%v writable=%v", attr.Readable(), attr.Writable())
	}

	err = motor.Set(ctx, "limit", 10)
	if !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("set read-only: %v", err)
	}
	if _, err := motor.Member("_limit_property"); err != nil {
		t.Errorf("raw accessor missing: %v", err)
	}
}

func TestObject_SealedMembers(t *testing.T) {
	e := newMotorEngine()
	_, c := startRuntime(t, e)
	constructMotor(t, e, 0x100)
	motor := object(t, c, 0x100)
	ctx := context.Background()

	if err := motor.Set(ctx, "torque", 1); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("set unknown: %v", err)
	}
	if _, err := motor.Get(ctx, "torque"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("get unknown: %v", err)
	}
	if _, err := motor.Call(ctx, "speed"); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("call attribute: %v", err)
	}

	child, err := motor.Attr("child")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := child.Get(ctx, "reset"); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("get function: %v", err)
	}
	if _, err := child.Call(ctx, "reset"); err != nil {
		t.Errorf("reset: %v", err)
	}
}

func TestObject_Members(t *testing.T) {
	e := newMotorEngine()
	_, c := startRuntime(t, e)
	constructMotor(t, e, 0x100)
	motor := object(t, c, 0x100)

	got, err := motor.Members()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"speed", "_speed_property", "limit", "_limit_property", "child"}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("members[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestObject_Lifecycle(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	must(t, e.Construct(0x11, adderIntf, "Adder"))
	a, b := object(t, c, 0x10), object(t, c, 0x11)

	var intfs, refs int
	must(t, c.loop.Do(func() {
		intfs = len(c.interfaces)
		refs = c.interfaces[adderIntf].refcount
	}))
	if intfs != 1 || refs != 2 {
		t.Fatalf("interfaces = %d, refcount = %d; want 1, 2", intfs, refs)
	}

	fired := 0
	a.Lost().Subscribe(func() { fired++ })

	must(t, e.Destroy(0x10))
	if !a.Lost().IsSet() || !a.IsLost() {
		t.Fatal("lost not signalled")
	}
	must(t, c.loop.Do(func() { intfs = len(c.interfaces) }))
	if intfs != 1 {
		t.Errorf("interface evicted while %v is alive", b)
	}

	if _, err := a.Call(context.Background(), "add", 1, 2); !stderrors.Is(err, errors.ErrObjectLost) {
		t.Errorf("call on lost object: %v", err)
	}
	if _, err := a.ObjectHandle(); !stderrors.Is(err, errors.ErrObjectLost) {
		t.Errorf("handle of lost object: %v", err)
	}
	if _, err := b.Call(context.Background(), "same", a); !stderrors.Is(err, errors.ErrObjectLost) {
		t.Errorf("lost object as argument: %v", err)
	}

	must(t, e.Destroy(0x11))
	must(t, c.loop.Do(func() { intfs = len(c.interfaces) }))
	if intfs != 0 {
		t.Errorf("%d interfaces cached after last destroy", intfs)
	}

	// A repeated destroy is ignored.
	must(t, e.Destroy(0x10))
	if fired != 1 {
		t.Errorf("lost fired %d times", fired)
	}
}

func TestInterface_AnonymousAndShared(t *testing.T) {
	e := fibretest.NewEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, 7, ""))

	name, err := object(t, c, 0x10).InterfaceName()
	if err != nil {
		t.Fatal(err)
	}
	if name != "anonymous_interface_7" {
		t.Errorf("name = %q", name)
	}
	if !e.Subscribed(7) {
		t.Error("interface not subscribed")
	}
}

func TestInterface_UnknownCodec(t *testing.T) {
	e := fibretest.NewEngine()
	e.Define(fibretest.Interface{
		Handle: 1,
		Name:   "Odd",
		Functions: []fibretest.Function{
			{Handle: 2, Name: "bad", Inputs: []fibretest.Arg{{Name: "x", Codec: "complex128"}}},
			{Handle: 3, Name: "good", Inputs: []fibretest.Arg{{Name: "x", Codec: "int16"}}},
		},
	})
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, 1, "Odd"))
	obj := object(t, c, 0x10)

	if _, err := obj.Member("bad"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("bad registered: %v", err)
	}
	if _, err := obj.Member("good"); err != nil {
		t.Errorf("good: %v", err)
	}
}

func TestInterface_MemberChanges(t *testing.T) {
	e := newAdderEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x10, adderIntf, "Adder"))
	obj := object(t, c, 0x10)

	must(t, e.RemoveFunction(adderIntf, addFn))
	if _, err := obj.Member("add"); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("add after removal: %v", err)
	}

	must(t, e.AddFunction(adderIntf, fibretest.Function{
		Handle:  addFn,
		Name:    "add",
		Inputs:  []fibretest.Arg{{Name: "a", Codec: "uint32"}, {Name: "b", Codec: "uint32"}},
		Outputs: []fibretest.Arg{{Name: "sum", Codec: "uint32"}},
		Handler: addHandler,
	}))
	v, err := obj.Call(context.Background(), "add", 1, 1)
	if err != nil || v != uint32(2) {
		t.Errorf("add after re-adding = %v, %v", v, err)
	}
}

func TestObject_AttributeResolveFailure(t *testing.T) {
	e := newMotorEngine()
	_, c := startRuntime(t, e)
	must(t, e.Construct(0x100, motorIntf, "Motor"))
	motor := object(t, c, 0x100)

	// No link: the engine rejects the attribute lookup.
	if _, err := motor.Attr("child"); !stderrors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("unlinked attribute: %v", err)
	}

	// Linked to an object the runtime never saw.
	e.Link(0x100, childAttr, 0x999)
	if _, err := motor.Attr("child"); !stderrors.Is(err, errors.ErrObjectLost) {
		t.Errorf("unknown sub-object: %v", err)
	}
}

func TestObject_Dump(t *testing.T) {
	e := newMotorEngine()
	e.Define(fibretest.Interface{
		Handle: motorIntf,
		Name:   "Motor",
		Attributes: []fibretest.Attribute{
			{Handle: speedAttr, Name: "speed", SubIntf: speedIntf, SubIntfName: fibretest.PropertyName("float", true)},
			{Handle: childAttr, Name: "child", SubIntf: childIntf, SubIntfName: "Child"},
		},
		Functions: []fibretest.Function{{
			Handle:  addFn,
			Name:    "add",
			Inputs:  []fibretest.Arg{{Name: "a", Codec: "uint32"}, {Name: "b", Codec: "uint32"}},
			Outputs: []fibretest.Arg{{Name: "sum", Codec: "uint32"}},
		}},
	})
	_, c := startRuntime(t, e)
	constructMotor(t, e, 0x100)
	motor := object(t, c, 0x100)
	ctx := context.Background()

	want := "add(a: uint32, b: uint32) -> sum: uint32\n" +
		"child:\n" +
		"  reset()\n" +
		"speed: 1.5 (float)"
	if got := motor.Dump(ctx, 2); got != want {
		t.Errorf("dump:\n%s\nwant:\n%s", got, want)
	}

	shallow := "add(a: uint32, b: uint32) -> sum: uint32\n" +
		"child: ...\n" +
		"speed: 1.5 (float)"
	if got := motor.Dump(ctx, 1); got != shallow {
		t.Errorf("shallow dump:\n%s\nwant:\n%s", got, shallow)
	}

	must(t, e.Destroy(0x100))
	if got := motor.Dump(ctx, 2); got != dumpLost {
		t.Errorf("lost dump = %q", got)
	}
}

func TestStatusError(t *testing.T) {
	if err := StatusError(native.StatusOK); err != nil {
		t.Errorf("ok = %v", err)
	}
	err := StatusError(native.Status(42))
	if !stderrors.Is(err, errors.ErrUnknown) {
		t.Errorf("unknown status = %v", err)
	}
	if errors.KindOf(StatusError(native.StatusClosed)) != errors.KindObjectLost {
		t.Error("closed does not map to object lost")
	}
}
