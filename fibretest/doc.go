// Package fibretest provides a scriptable in-process native engine.
//
// Tests define interfaces, construct objects and drive discovery through the
// Engine; the runtime under test sees the same callback sequence a real
// engine would produce. Every notification is delivered on the reactor
// goroutine.
//
//	eng := fibretest.NewEngine()
//	eng.Define(fibretest.Interface{
//	    Handle: 1,
//	    Name:   "Adder",
//	    Functions: []fibretest.Function{{
//	        Handle:  10,
//	        Name:    "add",
//	        Inputs:  []fibretest.Arg{{"a", "uint32"}, {"b", "uint32"}},
//	        Outputs: []fibretest.Arg{{"sum", "uint32"}},
//	        Handler: addHandler,
//	    }},
//	})
//	rt := runtime.New(eng.Opener())
package fibretest
