package codec

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/wippyai/fibre-go/errors"
)

// Codec serializes values of one wire type.
type Codec interface {
	// Name returns the wire token, e.g. "uint32".
	Name() string
	// Len returns the serialized length in bytes.
	Len() int
	// Serialize encodes v into exactly Len() bytes.
	Serialize(v any) ([]byte, error)
	// Deserialize decodes exactly Len() bytes.
	Deserialize(b []byte) (any, error)
}

type scalarKind uint8

const (
	kindSigned scalarKind = iota
	kindUnsigned
	kindBool
	kindFloat
)

type scalar struct {
	name string
	size int
	kind scalarKind
}

var (
	Int8   Codec = scalar{name: "int8", size: 1, kind: kindSigned}
	Uint8  Codec = scalar{name: "uint8", size: 1, kind: kindUnsigned}
	Int16  Codec = scalar{name: "int16", size: 2, kind: kindSigned}
	Uint16 Codec = scalar{name: "uint16", size: 2, kind: kindUnsigned}
	Int32  Codec = scalar{name: "int32", size: 4, kind: kindSigned}
	Uint32 Codec = scalar{name: "uint32", size: 4, kind: kindUnsigned}
	Int64  Codec = scalar{name: "int64", size: 8, kind: kindSigned}
	Uint64 Codec = scalar{name: "uint64", size: 8, kind: kindUnsigned}
	Bool   Codec = scalar{name: "bool", size: 1, kind: kindBool}
	Float  Codec = scalar{name: "float", size: 4, kind: kindFloat}
)

func (c scalar) Name() string { return c.name }
func (c scalar) Len() int     { return c.size }

func (c scalar) Serialize(v any) ([]byte, error) {
	buf := make([]byte, c.size)

	switch c.kind {
	case kindBool:
		b, ok := boolOf(v)
		if !ok {
			return nil, c.mismatch(v)
		}
		if b {
			buf[0] = 1
		}
		return buf, nil

	case kindFloat:
		f, ok := floatOf(v)
		if !ok {
			return nil, c.mismatch(v)
		}
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, errors.Overflow(errors.PhaseCodec, nil, v, c.name)
		}
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(f)))
		return buf, nil
	}

	mag, neg, ok := integerOf(v)
	if !ok {
		return nil, c.mismatch(v)
	}
	bits := uint(c.size * 8)
	if c.kind == kindSigned {
		limit := uint64(1) << (bits - 1)
		if (neg && mag > limit) || (!neg && mag > limit-1) {
			return nil, errors.Overflow(errors.PhaseCodec, nil, v, c.name)
		}
	} else {
		if (neg && mag != 0) || (bits < 64 && mag > (uint64(1)<<bits)-1) {
			return nil, errors.Overflow(errors.PhaseCodec, nil, v, c.name)
		}
	}

	raw := mag
	if neg {
		raw = ^mag + 1
	}
	switch c.size {
	case 1:
		buf[0] = byte(raw)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(raw))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(raw))
	case 8:
		binary.LittleEndian.PutUint64(buf, raw)
	}
	return buf, nil
}

func (c scalar) Deserialize(b []byte) (any, error) {
	if len(b) != c.size {
		return nil, errors.InvalidArgument(errors.PhaseCodec,
			fmt.Sprintf("%s expects %d bytes, got %d", c.name, c.size, len(b)))
	}

	switch c.name {
	case "int8":
		return int8(b[0]), nil
	case "uint8":
		return b[0], nil
	case "int16":
		return int16(binary.LittleEndian.Uint16(b)), nil
	case "uint16":
		return binary.LittleEndian.Uint16(b), nil
	case "int32":
		return int32(binary.LittleEndian.Uint32(b)), nil
	case "uint32":
		return binary.LittleEndian.Uint32(b), nil
	case "int64":
		return int64(binary.LittleEndian.Uint64(b)), nil
	case "uint64":
		return binary.LittleEndian.Uint64(b), nil
	case "bool":
		return b[0] != 0, nil
	case "float":
		return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
	}
	return nil, errors.Internal(errors.PhaseCodec, "unhandled scalar "+c.name)
}

func (c scalar) mismatch(v any) error {
	return errors.TypeMismatch(errors.PhaseCodec, nil, goTypeName(v), c.name)
}

// integerOf returns v as sign and magnitude. Floats are accepted when integral.
func integerOf(v any) (mag uint64, neg bool, ok bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		x := rv.Int()
		if x < 0 {
			return uint64(-(x + 1)) + 1, true, true
		}
		return uint64(x), false, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), false, true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) || math.Abs(f) >= 1<<64 {
			return 0, false, false
		}
		if f < 0 {
			return uint64(-f), true, true
		}
		return uint64(f), false, true
	}
	return 0, false, false
}

func floatOf(v any) (float64, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func boolOf(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	if mag, _, ok := integerOf(v); ok {
		if _, isFloat := v.(float64); isFloat {
			return false, false
		}
		if _, isFloat := v.(float32); isFloat {
			return false, false
		}
		return mag != 0, true
	}
	return false, false
}

func goTypeName(v any) string {
	if v == nil {
		return "nil"
	}
	return reflect.TypeOf(v).String()
}
