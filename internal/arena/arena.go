// Package arena stores values in reusable slots addressed by generation checked handles.
// A handle to a removed value stays invalid even after its slot is reused.
package arena

import "fmt"

// Handle identifies a value in an Arena.
// The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// Index returns the slot number of the handle.
func (h Handle) Index() uint32 { return h.index }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.gen == 0 }

// String formats the handle as "index.generation".
func (h Handle) String() string { return fmt.Sprintf("%d.%d", h.index, h.gen) }

// Parse is the inverse of Handle.String.
func Parse(s string) (Handle, error) {
	var h Handle
	_, err := fmt.Sscanf(s, "%d.%d", &h.index, &h.gen)
	if err != nil || h.gen == 0 {
		return Handle{}, fmt.Errorf("invalid handle: %q", s)
	}
	return h, nil
}

type slot[T any] struct {
	value    T
	gen      uint32
	occupied bool
}

// Arena is not safe for concurrent use.
type Arena[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

// Insert stores v and returns its handle.
func (a *Arena[T]) Insert(v T) Handle {
	var i uint32
	if n := len(a.free); n > 0 {
		i = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot[T]{})
		i = uint32(len(a.slots) - 1)
	}
	s := &a.slots[i]
	s.gen++
	s.value = v
	s.occupied = true
	a.count++
	return Handle{index: i, gen: s.gen}
}

// Get returns the value for h. ok is false if h was removed or never issued.
func (a *Arena[T]) Get(h Handle) (v T, ok bool) {
	if h.index >= uint32(len(a.slots)) {
		return v, false
	}
	s := &a.slots[h.index]
	if !s.occupied || s.gen != h.gen {
		return v, false
	}
	return s.value, true
}

// Remove deletes the value for h and returns it.
func (a *Arena[T]) Remove(h Handle) (v T, ok bool) {
	v, ok = a.Get(h)
	if !ok {
		return v, false
	}
	s := &a.slots[h.index]
	var zero T
	s.value = zero
	s.occupied = false
	a.free = append(a.free, h.index)
	a.count--
	return v, true
}

// Len returns the number of stored values.
func (a *Arena[T]) Len() int { return a.count }

// Each calls fn for every stored value in slot order.
func (a *Arena[T]) Each(fn func(h Handle, v T)) {
	for i := range a.slots {
		s := &a.slots[i]
		if s.occupied {
			fn(Handle{index: uint32(i), gen: s.gen}, s.value)
		}
	}
}
