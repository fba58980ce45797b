package runtime

import (
	"sort"

	"github.com/wippyai/fibre-go/native"
)

// Member is a named entry on an interface: a *Function or an *Attribute.
type Member interface {
	MemberName() string
	memberHandle() native.Handle
}

// Interface is a cached remote interface type. Its member set is populated
// asynchronously by the engine's introspection events.
type Interface struct {
	handle   native.Handle
	name     string
	members  map[string]Member
	order    []string
	refcount int
}

func newInterface(h native.Handle, name string) *Interface {
	return &Interface{
		handle:  h,
		name:    name,
		members: make(map[string]Member),
	}
}

// Name returns the interface type name.
func (it *Interface) Name() string { return it.name }

// Handle returns the engine's handle for the interface.
func (it *Interface) Handle() native.Handle { return it.handle }

// Member looks up a member by name.
func (it *Interface) Member(name string) (Member, bool) {
	m, ok := it.members[name]
	return m, ok
}

// Function looks up a function member by name.
func (it *Interface) Function(name string) (*Function, bool) {
	fn, ok := it.members[name].(*Function)
	return fn, ok
}

// Attribute looks up an attribute member by name.
func (it *Interface) Attribute(name string) (*Attribute, bool) {
	attr, ok := it.members[name].(*Attribute)
	return attr, ok
}

// Members returns member names in the order they were added.
func (it *Interface) Members() []string {
	out := make([]string, len(it.order))
	copy(out, it.order)
	return out
}

// sortedMembers returns public member names sorted alphabetically.
func (it *Interface) sortedMembers() []string {
	out := make([]string, 0, len(it.order))
	for _, name := range it.order {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (it *Interface) install(m Member) {
	name := m.MemberName()
	if _, exists := it.members[name]; !exists {
		it.order = append(it.order, name)
	}
	it.members[name] = m
}

// remove drops every member of the given kind registered under handle h.
func (it *Interface) remove(h native.Handle, match func(Member) bool) int {
	removed := 0
	kept := it.order[:0]
	for _, name := range it.order {
		m := it.members[name]
		if m.memberHandle() == h && match(m) {
			delete(it.members, name)
			removed++
			continue
		}
		kept = append(kept, name)
	}
	it.order = kept
	return removed
}

func isFunction(m Member) bool  { _, ok := m.(*Function); return ok }
func isAttribute(m Member) bool { _, ok := m.(*Attribute); return ok }
