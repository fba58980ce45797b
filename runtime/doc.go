// Package runtime implements the client side of the fibre remote object
// model on top of a native engine.
//
// A Runtime owns one reactor goroutine and one engine Client. The engine
// announces objects and their interfaces through callbacks; the Client keeps
// an interface type cache and an object registry in sync with them and hands
// out *Object proxies. Proxies can be used from any goroutine: calls made off
// the reactor are bridged onto it and block until the remote completes.
//
// Basic usage:
//
//	rt := runtime.New(engineOpener, runtime.WithLogger(log))
//	obj, err := rt.FindAny(ctx, runtime.WithPath("usb"), runtime.WithTimeout(5*time.Second))
//	if err != nil || obj == nil {
//	    return err
//	}
//	v, err := obj.Get(ctx, "vbus_voltage")
//
// Properties follow the fibre.Property<T> naming convention: Get reads them
// through their "read" function and Set writes read-write properties through
// "exchange". The raw property object stays reachable as "_<name>_property".
package runtime
