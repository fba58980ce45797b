package runtime

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/wippyai/fibre-go/codec"
	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
	"github.com/wippyai/fibre-go/reactor"
	"github.com/wippyai/fibre-go/signal"
)

// Object is a proxy for a remote object. It stays usable from any goroutine;
// once the engine destroys the object every operation fails with ObjectLost.
type Object struct {
	loop   *reactor.Loop
	client atomic.Pointer[Client]
	handle native.Handle
	intf   native.Handle
	lost   *signal.Event
}

var _ codec.Ref = (*Object)(nil)

func newObject(c *Client, h, intf native.Handle) *Object {
	o := &Object{
		loop:   c.loop,
		handle: h,
		intf:   intf,
		lost:   signal.NewEvent(nil),
	}
	o.client.Store(c)
	return o
}

// ObjectHandle implements codec.Ref.
func (o *Object) ObjectHandle() (native.Handle, error) {
	if o == nil {
		return 0, nil
	}
	if o.client.Load() == nil {
		return 0, errors.ObjectLost(errors.PhaseCall)
	}
	return o.handle, nil
}

// Handle returns the engine handle the proxy was created for.
func (o *Object) Handle() native.Handle { return o.handle }

// Lost is set when the remote object is destroyed.
func (o *Object) Lost() *signal.Event { return o.lost }

// IsLost reports whether the remote object has been destroyed.
func (o *Object) IsLost() bool { return o.client.Load() == nil }

func (o *Object) String() string {
	if o.IsLost() {
		return fmt.Sprintf("fibre.Object(%#x, lost)", uintptr(o.handle))
	}
	return fmt.Sprintf("fibre.Object(%#x)", uintptr(o.handle))
}

func (o *Object) detach() {
	o.client.Store(nil)
}

// onLoop runs fn on the reactor goroutine with the owning client. It fails
// with ObjectLost once the object is gone.
func (o *Object) onLoop(fn func(c *Client) error) error {
	var err error
	perr := o.loop.Do(func() {
		c := o.client.Load()
		if c == nil {
			err = errors.ObjectLost(errors.PhaseInterface)
			return
		}
		err = fn(c)
	})
	if perr != nil {
		return errors.Wrap(errors.PhaseInterface, errors.KindObjectLost, perr, "reactor stopped")
	}
	return err
}

// Interface returns the object's interface type. The returned value must
// only be inspected on the reactor goroutine.
func (o *Object) Interface() (*Interface, error) {
	var it *Interface
	err := o.onLoop(func(c *Client) error {
		var err error
		it, err = c.interfaceOf(o)
		return err
	})
	return it, err
}

// InterfaceName returns the name of the object's interface type.
func (o *Object) InterfaceName() (string, error) {
	var name string
	err := o.onLoop(func(c *Client) error {
		it, err := c.interfaceOf(o)
		if err == nil {
			name = it.name
		}
		return err
	})
	return name, err
}

// Members returns the names of the object's members in registration order.
func (o *Object) Members() ([]string, error) {
	var names []string
	err := o.onLoop(func(c *Client) error {
		it, err := c.interfaceOf(o)
		if err == nil {
			names = it.Members()
		}
		return err
	})
	return names, err
}

// Member looks up a member descriptor by name.
func (o *Object) Member(name string) (Member, error) {
	var m Member
	err := o.onLoop(func(c *Client) error {
		var err error
		m, err = c.member(o, name)
		return err
	})
	return m, err
}

// Attr returns the sub-object held by attribute name without auto-reading
// properties.
func (o *Object) Attr(name string) (*Object, error) {
	var sub *Object
	err := o.onLoop(func(c *Client) error {
		attr, err := c.attribute(o, name)
		if err != nil {
			return err
		}
		sub, err = attr.resolve(o)
		return err
	})
	return sub, err
}

// Get reads attribute name. Properties are read through their "read"
// function; other attributes yield the sub-object.
func (o *Object) Get(ctx context.Context, name string) (any, error) {
	var sub *Object
	var read *Function
	err := o.onLoop(func(c *Client) error {
		attr, err := c.attribute(o, name)
		if err != nil {
			return err
		}
		if sub, err = attr.resolve(o); err != nil {
			return err
		}
		if attr.magicGetter {
			read, err = c.function(sub, "read")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if read == nil {
		return sub, nil
	}
	return read.Call(ctx, sub)
}

// Set writes a read-write property through its "exchange" function.
func (o *Object) Set(ctx context.Context, name string, value any) error {
	var sub *Object
	var exchange *Function
	err := o.onLoop(func(c *Client) error {
		attr, err := c.attribute(o, name)
		if err != nil {
			return err
		}
		if !attr.magicSetter {
			return errors.New(errors.PhaseInterface, errors.KindInvalidArgument).
				Path(name).
				Detail("this attribute cannot be written to").
				Build()
		}
		if sub, err = attr.resolve(o); err != nil {
			return err
		}
		exchange, err = c.function(sub, "exchange")
		return err
	})
	if err != nil {
		return err
	}
	_, err = exchange.Call(ctx, sub, value)
	return err
}

// Call invokes function name and waits for its result.
func (o *Object) Call(ctx context.Context, name string, args ...any) (any, error) {
	var fn *Function
	err := o.onLoop(func(c *Client) error {
		var err error
		fn, err = c.function(o, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fn.Call(ctx, o, args...)
}

// Start invokes function name. See Function.Start for blocking behavior.
func (o *Object) Start(name string, args ...any) (*Future, error) {
	var fn *Function
	err := o.onLoop(func(c *Client) error {
		var err error
		fn, err = c.function(o, name)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fn.Start(o, args...)
}
