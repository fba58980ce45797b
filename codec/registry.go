package codec

import (
	"sort"

	"github.com/wippyai/fibre-go/errors"
)

var scalars = map[string]Codec{
	"int8":   Int8,
	"uint8":  Uint8,
	"int16":  Int16,
	"uint16": Uint16,
	"int32":  Int32,
	"uint32": Uint32,
	"int64":  Int64,
	"uint64": Uint64,
	"bool":   Bool,
	"float":  Float,
}

// Arg is one named, typed function argument or result.
type Arg struct {
	Codec Codec
	Name  string
	Token string
}

// Registry maps codec tokens to codecs.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry creates a registry with the built-in codecs. object_ref decodes
// through r.
func NewRegistry(r Resolver) *Registry {
	codecs := make(map[string]Codec, len(scalars)+1)
	for k, v := range scalars {
		codecs[k] = v
	}
	codecs["object_ref"] = NewObjectRef(r)
	return &Registry{codecs: codecs}
}

// Lookup returns the codec for token.
func (r *Registry) Lookup(token string) (Codec, error) {
	c, ok := r.codecs[token]
	if !ok {
		return nil, errors.UnknownCodec(nil, token)
	}
	return c, nil
}

// Tokens returns the registered tokens in sorted order.
func (r *Registry) Tokens() []string {
	tokens := make([]string, 0, len(r.codecs))
	for k := range r.codecs {
		tokens = append(tokens, k)
	}
	sort.Strings(tokens)
	return tokens
}

// DecodeArgList pairs parallel name and codec token lists. The first empty
// entry in either list, or the end of either list, terminates the walk.
func (r *Registry) DecodeArgList(path []string, names, tokens []string) ([]Arg, error) {
	var args []Arg
	for i := 0; i < len(names) && i < len(tokens); i++ {
		if names[i] == "" || tokens[i] == "" {
			break
		}
		c, ok := r.codecs[tokens[i]]
		if !ok {
			return nil, errors.UnknownCodec(append(append([]string{}, path...), names[i]), tokens[i])
		}
		args = append(args, Arg{Name: names[i], Token: tokens[i], Codec: c})
	}
	return args, nil
}

// TotalLen returns the summed serialized length of args.
func TotalLen(args []Arg) int {
	n := 0
	for _, a := range args {
		n += a.Codec.Len()
	}
	return n
}
