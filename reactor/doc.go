// Package reactor implements the single-goroutine event loop that the native
// engine is driven from.
//
// A Loop owns one goroutine (locked to its OS thread while running). All work
// submitted with Post runs there in FIFO order. The loop also implements the
// rest of native.Loop: fd readiness callbacks and timers, both delivered by
// posting onto the loop.
//
//	loop := reactor.New()
//	go loop.Run(ctx)
//	loop.Post(func() { ... })              // from anywhere
//	err := loop.Do(func() { ... })         // run and wait
//	id, _ := loop.CallLater(time.Second, tick)
//
// Code that must only run on the loop checks InLoop.
package reactor
