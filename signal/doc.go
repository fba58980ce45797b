// Package signal provides a one-shot, thread-safe event used for cancellation
// and completion notification across goroutines.
//
// An Event starts unset. Set transitions it exactly once; later calls are
// no-ops. Subscribers registered before the transition run synchronously inside
// Set, once each, in registration order. Subscribing to an Event that is
// already set runs the handler immediately.
//
//	done := signal.NewEvent(nil)
//	done.Subscribe(func() { stopDiscovery() })
//	...
//	if err := done.Wait(2 * time.Second); err != nil {
//		// timed out
//	}
//	done.Set()
//
// Events can be chained: an Event created with a parent is set when the parent
// is set.
package signal
