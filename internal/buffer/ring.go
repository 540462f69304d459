// Package buffer holds fixed-capacity containers shared by the log buffer
// and the event bus history.
package buffer

// Ring keeps the newest Cap entries. It is not safe for concurrent use.
type Ring[T any] struct {
	slots []T
	head  int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{slots: make([]T, capacity)}
}

// Add appends entry, overwriting the oldest one when full.
func (r *Ring[T]) Add(entry T) {
	if r == nil || len(r.slots) == 0 {
		return
	}
	r.slots[(r.head+r.size)%len(r.slots)] = entry
	if r.size < len(r.slots) {
		r.size++
		return
	}
	r.head = (r.head + 1) % len(r.slots)
}

func (r *Ring[T]) Len() int {
	if r == nil {
		return 0
	}
	return r.size
}

func (r *Ring[T]) Cap() int {
	if r == nil {
		return 0
	}
	return len(r.slots)
}

// List returns every entry, oldest first.
func (r *Ring[T]) List() []T {
	return r.Last(r.Len())
}

// Last returns up to n of the newest entries, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if r == nil || n <= 0 || r.size == 0 {
		return nil
	}
	if n > r.size {
		n = r.size
	}
	out := make([]T, n)
	skip := r.size - n
	for i := range out {
		out[i] = r.slots[(r.head+skip+i)%len(r.slots)]
	}
	return out
}

// Reset drops all entries and releases their references.
func (r *Ring[T]) Reset() {
	if r == nil {
		return
	}
	clear(r.slots)
	r.head = 0
	r.size = 0
}
