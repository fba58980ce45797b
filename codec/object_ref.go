package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
)

// HandleSize is the serialized width of an object reference.
const HandleSize = 8

// Ref is implemented by object proxies that can be passed as object_ref.
type Ref interface {
	// ObjectHandle returns the native handle, or an ObjectLost error if the
	// object has been destroyed. A nil proxy returns zero.
	ObjectHandle() (native.Handle, error)
}

// Resolver maps native handles back to live object proxies.
type Resolver interface {
	LookupObject(h native.Handle) (Ref, bool)
}

type objectRef struct {
	resolver Resolver
}

// NewObjectRef creates an object_ref codec that decodes through r.
func NewObjectRef(r Resolver) Codec {
	return objectRef{resolver: r}
}

func (objectRef) Name() string { return "object_ref" }
func (objectRef) Len() int     { return HandleSize }

func (c objectRef) Serialize(v any) ([]byte, error) {
	buf := make([]byte, HandleSize)
	if v == nil {
		return buf, nil
	}
	ref, ok := v.(Ref)
	if !ok {
		return nil, errors.New(errors.PhaseCodec, errors.KindInvalidArgument).
			GoType(goTypeName(v)).
			Codec("object_ref").
			Detail("expected a remote object or nil").
			Build()
	}
	h, err := ref.ObjectHandle()
	if err != nil {
		return nil, err
	}
	binary.LittleEndian.PutUint64(buf, uint64(h))
	return buf, nil
}

func (c objectRef) Deserialize(b []byte) (any, error) {
	if len(b) != HandleSize {
		return nil, errors.InvalidArgument(errors.PhaseCodec,
			fmt.Sprintf("object_ref expects %d bytes, got %d", HandleSize, len(b)))
	}
	h := native.Handle(binary.LittleEndian.Uint64(b))
	if h == 0 {
		return nil, nil
	}
	if c.resolver == nil {
		return nil, errors.NotInitialized(errors.PhaseCodec, "object resolver")
	}
	obj, ok := c.resolver.LookupObject(h)
	if !ok {
		return nil, errors.ObjectLost(errors.PhaseCodec)
	}
	return obj, nil
}
