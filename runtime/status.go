package runtime

import (
	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
)

// statusError converts a native completion status into an error. StatusOK
// yields nil.
func statusError(phase errors.Phase, status native.Status) error {
	switch status {
	case native.StatusOK:
		return nil
	case native.StatusCancelled:
		return errors.Cancelled(phase)
	case native.StatusClosed:
		return errors.ObjectLost(phase)
	case native.StatusInvalidArgument:
		return errors.InvalidArgument(phase, "rejected by remote")
	case native.StatusInternalError:
		return errors.Internal(phase, "internal libfibre error")
	default:
		return errors.UnknownStatus(phase, int(status))
	}
}

// StatusError converts a native call status into an error. StatusOK yields
// nil.
func StatusError(status native.Status) error {
	return statusError(errors.PhaseCall, status)
}
