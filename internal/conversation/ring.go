package conversation

// Ring is a fixed-capacity FIFO buffer. Pushing into a full ring evicts
// the oldest element. It is not safe for concurrent use.
type Ring[T any] struct {
	items []T
	start int
	size  int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Push appends v and reports the evicted element, if any.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return evicted, false
	}
	evicted = r.items[r.start]
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	return evicted, true
}

func (r *Ring[T]) Len() int { return r.size }

// Last returns a copy of the newest n elements, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	offset := r.size - n
	for i := range out {
		out[i] = r.items[(r.start+offset+i)%len(r.items)]
	}
	return out
}

// ReplaceLast overwrites the newest element matching match with v and
// reports whether one was found.
func (r *Ring[T]) ReplaceLast(match func(T) bool, v T) bool {
	for i := r.size - 1; i >= 0; i-- {
		idx := (r.start + i) % len(r.items)
		if match(r.items[idx]) {
			r.items[idx] = v
			return true
		}
	}
	return false
}

// Slice returns a copy of all elements, oldest first.
func (r *Ring[T]) Slice() []T {
	return r.Last(r.size)
}

func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start, r.size = 0, 0
}
