// Package native defines the contract between the fibre runtime and the native
// discovery/transport engine (libfibre).
//
// The engine drives the runtime through Loop (reactor integration), ObjectHost
// (object lifecycle) and the per-operation handler interfaces. The runtime
// drives the engine through Engine. Engines are single-threaded: every Engine
// method and every callback is invoked on the reactor goroutine, except
// Loop.Post which may be called from anywhere.
package native

import (
	"fmt"
	"time"
)

// Handle is an opaque identity assigned by the engine to an object, interface,
// attribute, function, call or discovery process. Zero means "none".
type Handle uintptr

// Status is a completion code reported by the engine.
type Status int

const (
	StatusOK              Status = 0
	StatusCancelled       Status = 1
	StatusClosed          Status = 2
	StatusInvalidArgument Status = 3
	StatusInternalError   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusCancelled:
		return "cancelled"
	case StatusClosed:
		return "closed"
	case StatusInvalidArgument:
		return "invalid_argument"
	case StatusInternalError:
		return "internal_error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// EventMask selects fd readiness conditions.
type EventMask uint32

const (
	EventReadable EventMask = 1
	EventWritable EventMask = 4
)

// TimerID identifies a timer scheduled through Loop.CallLater.
type TimerID uint64

// Version is the engine's semantic version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Loop is the reactor surface the engine schedules work on.
type Loop interface {
	// Post schedules fn on the reactor goroutine. Safe from any goroutine.
	Post(fn func()) error
	// RegisterEvent invokes fn on the reactor whenever fd is ready per mask.
	RegisterEvent(fd int, mask EventMask, fn func()) error
	// DeregisterEvent stops watching fd.
	DeregisterEvent(fd int) error
	// CallLater runs fn on the reactor after delay.
	CallLater(delay time.Duration, fn func()) (TimerID, error)
	// CancelTimer cancels a pending timer.
	CancelTimer(id TimerID) error
}

// ObjectHost receives object lifecycle notifications.
type ObjectHost interface {
	// ConstructObject announces a new object. name is empty when the engine
	// has no name for the interface.
	ConstructObject(obj, intf Handle, name string)
	// DestroyObject announces that obj is gone.
	DestroyObject(obj Handle)
}

// DiscoveryHandler receives notifications for one discovery process. ctx is
// the session id passed to Engine.StartDiscovery.
type DiscoveryHandler interface {
	OnFoundObject(ctx uint64, obj Handle)
	OnDiscoveryStopped(ctx uint64, status Status)
}

// InterfaceHandler receives interface introspection events. ctx is the
// interface handle passed to Engine.SubscribeToInterface.
//
// Function arguments arrive as parallel name/codec token lists. An empty entry
// in either list terminates both.
type InterfaceHandler interface {
	OnAttributeAdded(ctx Handle, attr Handle, name string, subintf Handle, subintfName string)
	OnAttributeRemoved(ctx Handle, attr Handle)
	OnFunctionAdded(ctx Handle, fn Handle, name string, inputNames, inputCodecs, outputNames, outputCodecs []string)
	OnFunctionRemoved(ctx Handle, fn Handle)
}

// CallHandler receives call completions. ctx is the call id passed to
// Engine.StartCall; end is the number of output bytes written.
type CallHandler interface {
	OnCallCompleted(ctx uint64, status Status, end int)
}

// Engine is the set of entry points exposed by an opened engine instance.
type Engine interface {
	Version() Version

	StartDiscovery(path string, h DiscoveryHandler, ctx uint64) Handle
	StopDiscovery(discovery Handle)

	SubscribeToInterface(intf Handle, h InterfaceHandler)
	GetAttribute(obj, attr Handle) (Handle, Status)

	// StartCall issues a call. The engine reads tx and writes into rx until
	// the completion for ctx is reported. Every call is completed exactly
	// once: a call the engine cannot start returns handle 0 and completes
	// with StatusInternalError on a later reactor iteration.
	StartCall(obj, fn Handle, tx, rx []byte, h CallHandler, ctx uint64) Handle
	CancelCall(call Handle)

	Close() error
}

// Opener opens an engine bound to a loop and object host.
type Opener func(loop Loop, objects ObjectHost) (Engine, error)
