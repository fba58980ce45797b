package fibre

import (
	"context"
	"sync"

	"github.com/wippyai/fibre-go/errors"
	"github.com/wippyai/fibre-go/native"
	"github.com/wippyai/fibre-go/runtime"
	"github.com/wippyai/fibre-go/signal"
)

// Object is a proxy for a remote object.
type Object = runtime.Object

// Event is a one-shot signal used to cancel searches and end channels.
type Event = signal.Event

// NewEvent creates an event that is also set when parent is set.
func NewEvent(parent *Event) *Event {
	return signal.NewEvent(parent)
}

// Search options.
var (
	WithPath               = runtime.WithPath
	WithSerialNumber       = runtime.WithSerialNumber
	WithTimeout            = runtime.WithTimeout
	WithSearchCancel       = runtime.WithSearchCancel
	WithChannelTermination = runtime.WithChannelTermination
)

var (
	defaultMu      sync.Mutex
	defaultRuntime *runtime.Runtime
)

// Init installs the process-wide runtime used by the package-level
// functions. It replaces any previous default; references held on the old
// runtime stay valid.
func Init(open native.Opener, opts ...runtime.Option) *runtime.Runtime {
	rt := runtime.New(open, opts...)
	SetDefault(rt)
	return rt
}

// SetDefault installs rt as the process-wide runtime.
func SetDefault(rt *runtime.Runtime) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultRuntime = rt
}

// Default returns the process-wide runtime.
func Default() (*runtime.Runtime, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultRuntime == nil {
		return nil, errors.NotInitialized(errors.PhaseLifecycle, "default runtime")
	}
	return defaultRuntime, nil
}

// FindAll searches path on the default runtime until searchCancel is set.
// See runtime.Runtime.FindAll.
func FindAll(path, serial string, onFound runtime.FoundFunc, searchCancel, channelTermination *Event) error {
	rt, err := Default()
	if err != nil {
		return err
	}
	return rt.FindAll(path, serial, onFound, searchCancel, channelTermination)
}

// FindAny returns the first matching object, or nil on timeout.
func FindAny(ctx context.Context, opts ...runtime.FindOption) (*Object, error) {
	rt, err := Default()
	if err != nil {
		return nil, err
	}
	return rt.FindAny(ctx, opts...)
}

// FindMultiple returns n matching objects, or those found before the
// timeout.
func FindMultiple(ctx context.Context, n int, opts ...runtime.FindOption) ([]*Object, error) {
	rt, err := Default()
	if err != nil {
		return nil, err
	}
	return rt.FindMultiple(ctx, n, opts...)
}
