// Package errors provides structured error types for the fibre runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries context: member path, Go type and codec names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCodec, errors.KindTypeMismatch).
//		Path("set_speed", "value").
//		GoType("string").
//		Codec("float").
//		Detail("cannot convert string to float").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Arity([]string{"add"}, 2, 3)
//	err := errors.UnknownCodec([]string{"add", "a"}, "uint128")
//
// Kind sentinels (ErrObjectLost, ErrCancelled, ...) match any phase:
//
//	if errors.Is(err, fibreerrors.ErrObjectLost) { ... }
package errors
