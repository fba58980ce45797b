package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseCodec,
				Kind:   KindTypeMismatch,
				Path:   []string{"axis0", "set_speed", "value"},
				GoType: "string",
				Codec:  "float",
				Detail: "cannot convert",
			},
			contains: []string{"[codec]", "type_mismatch", "axis0.set_speed.value", "string", "float", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseCall,
				Kind:  KindCancelled,
			},
			contains: []string{"[call]", "cancelled"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEngine,
				Kind:   KindInternal,
				Detail: "open failed",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[engine]", "internal_error", "open failed", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseCodec,
		Kind:  KindInvalidArgument,
		Cause: cause,
	}

	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseCall,
		Kind:  KindObjectLost,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseCall, Kind: KindObjectLost}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseCodec, Kind: KindObjectLost}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseCall, Kind: KindCancelled}) {
		t.Error("Is should not match different kind")
	}

	// Sentinels ignore phase
	if !errors.Is(err, ErrObjectLost) {
		t.Error("errors.Is should match the kind sentinel")
	}
	if errors.Is(err, ErrCancelled) {
		t.Error("errors.Is should not match a different sentinel")
	}

	wrapped := fmt.Errorf("read speed: %w", err)
	if !errors.Is(wrapped, ErrObjectLost) {
		t.Error("errors.Is should see through fmt wrapping")
	}
}

func TestKindOf(t *testing.T) {
	if k := KindOf(fmt.Errorf("x: %w", Cancelled(PhaseCall))); k != KindCancelled {
		t.Errorf("KindOf = %q, want %q", k, KindCancelled)
	}
	if k := KindOf(errors.New("plain")); k != "" {
		t.Errorf("KindOf(plain) = %q, want empty", k)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseCodec, KindTypeMismatch).
		Path("set_speed", "value").
		GoType("string").
		Codec("float").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "float", "string").
		Build()

	if err.Phase != PhaseCodec {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseCodec)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "set_speed" || err.Path[1] != "value" {
		t.Errorf("Path = %v, want [set_speed value]", err.Path)
	}
	if err.GoType != "string" {
		t.Errorf("GoType = %v, want 'string'", err.GoType)
	}
	if err.Codec != "float" {
		t.Errorf("Codec = %v, want 'float'", err.Codec)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected float, got string" {
		t.Errorf("Detail = %v, want 'expected float, got string'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Arity", func(t *testing.T) {
		err := Arity([]string{"add"}, 2, 3)
		if err.Kind != KindInvalidArgument {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidArgument)
		}
		if !strings.Contains(err.Detail, "expected 2 arguments but have 3") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("UnsupportedEventMask", func(t *testing.T) {
		err := UnsupportedEventMask(0x2)
		if err.Kind != KindUnsupportedEventMask || err.Phase != PhaseReactor {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.Value != uint32(2) {
			t.Errorf("Value = %v, want 2", err.Value)
		}
	})

	t.Run("UnknownCodec", func(t *testing.T) {
		err := UnknownCodec([]string{"add", "a"}, "uint128")
		if err.Kind != KindUnknownCodec {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownCodec)
		}
		if !strings.Contains(err.Error(), "uint128") {
			t.Errorf("message %q should name the codec", err.Error())
		}
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		err := UnknownStatus(PhaseCall, 42)
		if err.Kind != KindUnknown {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknown)
		}
		if !strings.Contains(err.Detail, "42") {
			t.Errorf("Detail = %q, should contain status", err.Detail)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseCodec, []string{"val"}, 300, "uint8")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
		if err.Value != 300 {
			t.Errorf("Value = %v, want 300", err.Value)
		}
	})

	t.Run("Reentrant", func(t *testing.T) {
		err := Reentrant(PhaseCall, "blocking call")
		if !errors.Is(err, ErrReentrant) {
			t.Error("expected reentrant sentinel match")
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		cause := errors.New("disk")
		err := Wrap(PhaseConfig, KindInvalidArgument, cause, "parse config")
		if !errors.Is(err, cause) {
			t.Error("Wrap should keep the cause in the chain")
		}
	})
}
