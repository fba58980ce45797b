package runtime

import (
	"strings"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
)

const (
	propertyPrefix          = "fibre.Property<"
	readWritePropertyPrefix = "fibre.Property<readwrite "
	propertySuffix          = ">"
)

// Attribute is a named sub-object slot on an interface.
type Attribute struct {
	client      *Client
	name        string
	handle      native.Handle
	subintf     native.Handle
	subintfName string
	magicGetter bool
	magicSetter bool
}

func newAttribute(c *Client, name string, h, subintf native.Handle, subintfName string) *Attribute {
	property := strings.HasPrefix(subintfName, propertyPrefix) && strings.HasSuffix(subintfName, propertySuffix)
	return &Attribute{
		client:      c,
		name:        name,
		handle:      h,
		subintf:     subintf,
		subintfName: subintfName,
		magicGetter: property,
		magicSetter: property && strings.HasPrefix(subintfName, readWritePropertyPrefix),
	}
}

// rawAttribute is the "_<name>_property" alias exposing the underlying
// property object without auto-read.
func (a *Attribute) rawAttribute() *Attribute {
	raw := *a
	raw.name = "_" + a.name + "_property"
	raw.magicGetter = false
	raw.magicSetter = false
	return &raw
}

// MemberName implements Member.
func (a *Attribute) MemberName() string { return a.name }

func (a *Attribute) memberHandle() native.Handle { return a.handle }

// SubInterfaceName returns the type name of the object the attribute holds.
func (a *Attribute) SubInterfaceName() string { return a.subintfName }

// Readable reports whether access auto-reads the property value.
func (a *Attribute) Readable() bool { return a.magicGetter }

// Writable reports whether assignment auto-writes the property value.
func (a *Attribute) Writable() bool { return a.magicSetter }

// resolve returns the sub-object held by this attribute on obj. Must run on
// the reactor goroutine.
func (a *Attribute) resolve(obj *Object) (*Object, error) {
	h, err := obj.ObjectHandle()
	if err != nil {
		return nil, err
	}
	sub, status := a.client.engine.GetAttribute(h, a.handle)
	if err := statusError(errors.PhaseInterface, status); err != nil {
		return nil, err
	}
	o, ok := a.client.objects[sub]
	if !ok {
		return nil, errors.New(errors.PhaseInterface, errors.KindObjectLost).
			Path(a.name).
			Detail("attribute refers to an unknown object").
			Build()
	}
	return o, nil
}
