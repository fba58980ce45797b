package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/fibre-go/codec"
)

// witType maps a codec token to the WIT primitive used for display and
// argument parsing. object_ref has no textual form and maps to nil.
func witType(token string) wit.Type {
	switch token {
	case "bool":
		return wit.Bool{}
	case "int8":
		return wit.S8{}
	case "uint8":
		return wit.U8{}
	case "int16":
		return wit.S16{}
	case "uint16":
		return wit.U16{}
	case "int32":
		return wit.S32{}
	case "uint32":
		return wit.U32{}
	case "int64":
		return wit.S64{}
	case "uint64":
		return wit.U64{}
	case "float":
		return wit.F32{}
	default:
		return nil
	}
}

func witTypeStr(t wit.Type) string {
	switch t.(type) {
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case nil:
		return "object"
	default:
		return fmt.Sprintf("%T", t)
	}
}

// parseArg converts user input to a value the codec for t accepts. Integers
// accept any base prefix strconv understands.
func parseArg(value string, t wit.Type) (any, error) {
	value = strings.TrimSpace(value)
	switch t.(type) {
	case wit.Bool:
		return strconv.ParseBool(value)
	case wit.U8:
		v, err := strconv.ParseUint(value, 0, 8)
		return uint8(v), err
	case wit.U16:
		v, err := strconv.ParseUint(value, 0, 16)
		return uint16(v), err
	case wit.U32:
		v, err := strconv.ParseUint(value, 0, 32)
		return uint32(v), err
	case wit.U64:
		return strconv.ParseUint(value, 0, 64)
	case wit.S8:
		v, err := strconv.ParseInt(value, 0, 8)
		return int8(v), err
	case wit.S16:
		v, err := strconv.ParseInt(value, 0, 16)
		return int16(v), err
	case wit.S32:
		v, err := strconv.ParseInt(value, 0, 32)
		return int32(v), err
	case wit.S64:
		return strconv.ParseInt(value, 0, 64)
	case wit.F32:
		v, err := strconv.ParseFloat(value, 32)
		return float32(v), err
	case nil:
		if value == "" || value == "nil" {
			return nil, nil
		}
		return nil, fmt.Errorf("object references can only be nil")
	default:
		return nil, fmt.Errorf("unsupported type %s", witTypeStr(t))
	}
}

// parseArgs converts positional values for args.
func parseArgs(args []codec.Arg, values []string) ([]any, error) {
	if len(values) != len(args) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(args), len(values))
	}
	out := make([]any, len(args))
	for i, a := range args {
		v, err := parseArg(values[i], witType(a.Token))
		if err != nil {
			return nil, fmt.Errorf("argument %s: %w", a.Name, err)
		}
		out[i] = v
	}
	return out, nil
}
