// Package fibre provides a Go client for the Fibre remote object protocol.
//
// Fibre devices expose objects with typed functions and properties. A native
// engine (libfibre) handles discovery and transport; this module turns the
// engine's callbacks into Go proxies that can be called from any goroutine.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	fibre/               Root package with the process-wide default runtime
//	├── runtime/         Interface cache, object proxies, calls, discovery
//	├── reactor/         Single-goroutine event loop the engine runs on
//	├── codec/           Fixed-width little-endian argument codecs
//	├── signal/          One-shot events used for cancellation
//	├── native/          Contract between the runtime and an engine
//	│   └── wasmengine/  libfibre compiled to WebAssembly, hosted by wazero
//	├── fibretest/       Scriptable in-process engine for tests
//	├── config/          TOML configuration for the command line tool
//	└── errors/          Structured error types
//
// # Quick Start
//
// Install a runtime and find a device:
//
//	fibre.Init(wasmengine.Opener(libfibreWasm, nil))
//
//	dev, err := fibre.FindAny(ctx, fibre.WithTimeout(10*time.Second))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if dev == nil {
//	    log.Fatal("no device found")
//	}
//
//	v, err := dev.Get(ctx, "vbus_voltage")
//	fmt.Println(v) // 24.1
//
// # Thread Safety
//
// Objects, futures and signals are safe for concurrent use. Engine callbacks
// and interface bookkeeping run only on the reactor goroutine; blocking calls
// made from that goroutine fail with a reentrancy error instead of
// deadlocking.
package fibre
