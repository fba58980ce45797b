package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/wippyai/fibre-go/errors"
)

// UserName renders object-valued properties in dumps. Applications may
// replace it to show friendlier names.
var UserName = func(obj *Object) string {
	return obj.String()
}

const (
	dumpLost   = "[object lost]"
	dumpFailed = "[failed to dump object]"
)

type dumpEntry struct {
	name string
	fn   *Function
	sub  *Object
	read *Function
}

// Dump renders the object's public members, descending depth levels into
// sub-objects. Properties are read and shown with their type.
func (o *Object) Dump(ctx context.Context, depth int) string {
	return o.dump(ctx, "", depth)
}

func (o *Object) dump(ctx context.Context, indent string, depth int) string {
	if o.IsLost() {
		return dumpLost
	}
	if depth <= 0 {
		return "..."
	}

	var entries []dumpEntry
	err := o.onLoop(func(c *Client) error {
		it, err := c.interfaceOf(o)
		if err != nil {
			return err
		}
		for _, name := range it.sortedMembers() {
			e := dumpEntry{name: name}
			switch m := it.members[name].(type) {
			case *Function:
				e.fn = m
			case *Attribute:
				if e.sub, err = m.resolve(o); err != nil {
					return err
				}
				if m.magicGetter {
					if e.read, err = c.function(e.sub, "read"); err != nil {
						return err
					}
				}
			}
			entries = append(entries, e)
		}
		return nil
	})
	if stderrors.Is(err, errors.ErrObjectLost) {
		return dumpLost
	}
	if err != nil {
		return dumpFailed
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.fn != nil:
			lines = append(lines, indent+e.fn.Signature())
		case e.read != nil:
			val, err := e.read.Call(ctx, e.sub)
			if err != nil {
				return dumpFailed
			}
			valStr := fmt.Sprint(val)
			if obj, ok := val.(*Object); ok {
				valStr = UserName(obj)
			}
			typ := ""
			if outs := e.read.Outputs(); len(outs) > 0 {
				typ = outs[0].Token
			}
			lines = append(lines, indent+e.name+": "+valStr+" ("+typ+")")
		default:
			sep := ":\n"
			if depth <= 1 {
				sep = ": "
			}
			lines = append(lines, indent+e.name+sep+e.sub.dump(ctx, indent+"  ", depth-1))
		}
	}
	return strings.Join(lines, "\n")
}
