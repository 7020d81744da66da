package queue

// ring is a fixed-size circular buffer. It never grows: callers must check
// full() before write.
type ring[T any] struct {
	data         []T
	offset, size int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{data: make([]T, capacity)}
}

func (r *ring[T]) len() int { return r.size }
func (r *ring[T]) cap() int { return len(r.data) }
func (r *ring[T]) full() bool { return r.size == len(r.data) }
func (r *ring[T]) empty() bool { return r.size == 0 }

// write appends v at the tail.
func (r *ring[T]) write(v T) {
	pos := (r.offset + r.size) % len(r.data)
	r.data[pos] = v
	r.size++
}

// read removes and returns the head value.
func (r *ring[T]) read() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}

	v := r.data[r.offset]
	r.data[r.offset] = zero // let GC do its work
	r.offset = (r.offset + 1) % len(r.data)
	r.size--
	return v, true
}
