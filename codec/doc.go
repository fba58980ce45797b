// Package codec provides the fixed-width binary codecs used to marshal remote
// function arguments and results.
//
// Every codec has a fixed serialized length. Scalars are little-endian:
//
//	int8  uint8  int16  uint16  int32  uint32  int64  uint64  bool  float
//
// The object_ref codec transports an object proxy as its native handle. Zero
// encodes "no object". Decoding resolves the handle through a Resolver, which
// the runtime's object registry implements.
//
// Codec tokens are the identifiers the native engine reports when it describes
// a function signature. A Registry binds the object_ref codec to a resolver
// and maps tokens to codecs:
//
//	reg := codec.NewRegistry(client)
//	args, err := reg.DecodeArgList([]string{"add"}, names, tokens)
package codec
