// Package idtable provides id-keyed tables that assign the smallest unused
// positive integer to each inserted value.
//
// Tables are not synchronized. Every table in the runtime is owned by the
// reactor goroutine.
package idtable

// ID is a locally assigned identifier. ID 0 is reserved and always invalid.
type ID uint64

type entry[T any] struct {
	value T
	valid bool
}

// Table maps ids to values.
type Table[T any] struct {
	entries []entry[T]
	count   int
}

// New creates an empty table.
func New[T any]() *Table[T] {
	return &Table[T]{
		entries: make([]entry[T], 0, 16),
	}
}

// Insert stores value under the smallest unused id and returns that id.
func (t *Table[T]) Insert(value T) ID {
	t.count++
	for i := range t.entries {
		if !t.entries[i].valid {
			t.entries[i] = entry[T]{value: value, valid: true}
			return ID(i + 1)
		}
	}
	t.entries = append(t.entries, entry[T]{value: value, valid: true})
	return ID(len(t.entries))
}

// Get retrieves a value by id.
func (t *Table[T]) Get(id ID) (T, bool) {
	var zero T
	if id == 0 || int(id) > len(t.entries) {
		return zero, false
	}
	e := t.entries[id-1]
	if !e.valid {
		return zero, false
	}
	return e.value, true
}

// Remove drops an id and returns (value, true) if it was present.
func (t *Table[T]) Remove(id ID) (T, bool) {
	var zero T
	if id == 0 || int(id) > len(t.entries) {
		return zero, false
	}
	e := &t.entries[id-1]
	if !e.valid {
		return zero, false
	}
	value := e.value
	*e = entry[T]{}
	t.count--

	// Trim trailing free slots so the slice does not grow without bound.
	n := len(t.entries)
	for n > 0 && !t.entries[n-1].valid {
		n--
	}
	t.entries = t.entries[:n]

	return value, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int {
	return t.count
}

// Each iterates over live entries in ascending id order.
func (t *Table[T]) Each(fn func(ID, T) bool) {
	for i, e := range t.entries {
		if e.valid {
			if !fn(ID(i+1), e.value) {
				break
			}
		}
	}
}
