package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCodec     Phase = "codec"     // value serialization
	PhaseCall      Phase = "call"      // remote function calls
	PhaseReactor   Phase = "reactor"   // event loop integration
	PhaseInterface Phase = "interface" // interface introspection
	PhaseLifecycle Phase = "lifecycle" // object and runtime lifecycle
	PhaseDiscovery Phase = "discovery" // discovery sessions
	PhaseEngine    Phase = "engine"    // native engine
	PhaseConfig    Phase = "config"    // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindObjectLost           Kind = "object_lost"
	KindCancelled            Kind = "cancelled"
	KindInvalidArgument      Kind = "invalid_argument"
	KindUnsupportedEventMask Kind = "unsupported_event_mask"
	KindUnknownCodec         Kind = "unknown_codec"
	KindInternal             Kind = "internal_error"
	KindUnknown              Kind = "unknown"
	KindNotFound             Kind = "not_found"
	KindOverflow             Kind = "overflow"
	KindTypeMismatch         Kind = "type_mismatch"
	KindNotInitialized       Kind = "not_initialized"
	KindReentrant            Kind = "reentrant"
	KindTimeout              Kind = "timeout"
)

// Sentinels for errors.Is. They match any phase.
var (
	ErrObjectLost           = &Error{Kind: KindObjectLost}
	ErrCancelled            = &Error{Kind: KindCancelled}
	ErrInvalidArgument      = &Error{Kind: KindInvalidArgument}
	ErrUnsupportedEventMask = &Error{Kind: KindUnsupportedEventMask}
	ErrUnknownCodec         = &Error{Kind: KindUnknownCodec}
	ErrInternal             = &Error{Kind: KindInternal}
	ErrUnknown              = &Error{Kind: KindUnknown}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrReentrant            = &Error{Kind: KindReentrant}
	ErrTimeout              = &Error{Kind: KindTimeout}
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Codec  string
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.Codec != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.Codec != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", codec ")
			b.WriteString(e.Codec)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("codec ")
			b.WriteString(e.Codec)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.Codec != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the member path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Codec sets the codec token
func (b *Builder) Codec(c string) *Builder {
	b.err.Codec = c
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ObjectLost creates an error for an operation against a destroyed object
func ObjectLost(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindObjectLost,
		Detail: "the object disappeared",
	}
}

// Cancelled creates a cancellation error
func Cancelled(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCancelled,
		Detail: "operation cancelled",
	}
}

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}

// Arity creates an argument count mismatch error
func Arity(path []string, want, got int) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindInvalidArgument,
		Path:   path,
		Detail: fmt.Sprintf("expected %d arguments but have %d", want, got),
		Value:  got,
	}
}

// UnsupportedEventMask creates an error for an unrecognized readiness mask
func UnsupportedEventMask(mask uint32) *Error {
	return &Error{
		Phase:  PhaseReactor,
		Kind:   KindUnsupportedEventMask,
		Detail: fmt.Sprintf("unsupported event mask %#x", mask),
		Value:  mask,
	}
}

// UnknownCodec creates an error for an unrecognized codec token
func UnknownCodec(path []string, token string) *Error {
	return &Error{
		Phase:  PhaseInterface,
		Kind:   KindUnknownCodec,
		Path:   path,
		Codec:  token,
		Detail: "unsupported codec",
	}
}

// Internal creates an internal failure error
func Internal(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInternal,
		Detail: detail,
	}
}

// UnknownStatus creates an error for an unrecognized native status code
func UnknownStatus(phase Phase, status int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknown,
		Detail: fmt.Sprintf("unknown libfibre error %d", status),
		Value:  status,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, codec string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTypeMismatch,
		Path:   path,
		GoType: goType,
		Codec:  codec,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, codec string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Codec:  codec,
		Detail: fmt.Sprintf("value %v overflows %s", value, codec),
		Value:  value,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// Reentrant creates an error for a blocking operation issued on the reactor goroutine
func Reentrant(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindReentrant,
		Detail: fmt.Sprintf("%s would block the reactor goroutine", what),
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf("%s timed out", what),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
