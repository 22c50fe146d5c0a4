package broker

// ring is a fixed-capacity FIFO buffer that evicts the oldest element
// when full. Not safe for concurrent use; callers hold the channel lock.
type ring[T any] struct {
	buf      []T
	head     int
	count    int
	capacity int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// push appends an item, evicting the oldest when at capacity.
func (r *ring[T]) push(item T) {
	tail := (r.head + r.count) % r.capacity
	r.buf[tail] = item
	if r.count == r.capacity {
		r.head = (r.head + 1) % r.capacity
	} else {
		r.count++
	}
}

// snapshot returns up to limit items, oldest first. A non-positive limit
// returns everything retained.
func (r *ring[T]) snapshot(limit int) []T {
	n := r.count
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]T, 0, n)
	start := r.count - n // skip the oldest when truncating
	for i := start; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%r.capacity])
	}
	return out
}

func (r *ring[T]) len() int {
	return r.count
}
