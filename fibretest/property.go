package fibretest

import (
	"github.com/wippyai/fibre-go/native"
)

// PropertyName returns the interface name the runtime recognizes as a
// property of type token.
func PropertyName(token string, writable bool) string {
	if writable {
		return "fibre.Property<readwrite " + token + ">"
	}
	return "fibre.Property<" + token + ">"
}

// Property defines a property interface with handle h. Its read function has
// handle 16*h+1 and its exchange function, present when writable, 16*h+2.
// Values live in the engine per property object; see SetValue.
func (e *Engine) Property(h native.Handle, token string, writable bool) Interface {
	intf := Interface{
		Handle: h,
		Name:   PropertyName(token, writable),
		Functions: []Function{{
			Handle:  16*h + 1,
			Name:    "read",
			Outputs: []Arg{{Name: "value", Codec: token}},
			Handler: e.readProperty,
		}},
	}
	if writable {
		intf.Functions = append(intf.Functions, Function{
			Handle:  16*h + 2,
			Name:    "exchange",
			Inputs:  []Arg{{Name: "newval", Codec: token}},
			Outputs: []Arg{{Name: "oldval", Codec: token}},
			Handler: e.exchangeProperty,
		})
	}
	e.Define(intf)
	return intf
}

func (e *Engine) readProperty(c *Call) (native.Status, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return native.StatusOK, copy(c.Rx, e.properties[c.Obj])
}

func (e *Engine) exchangeProperty(c *Call) (native.Status, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := copy(c.Rx, e.properties[c.Obj])
	e.properties[c.Obj] = append([]byte(nil), c.Tx...)
	return native.StatusOK, n
}

// SetValue stores the encoded value of property object obj.
func (e *Engine) SetValue(obj native.Handle, v []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.properties[obj] = append([]byte(nil), v...)
}

// Value returns the encoded value of property object obj.
func (e *Engine) Value(obj native.Handle) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]byte(nil), e.properties[obj]...)
}
