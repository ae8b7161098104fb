package mqtt

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ring is a bounded FIFO that overwrites its oldest entry when full.
// Callers synchronize access.
type ring[T any] struct {
	items   []T
	start   int // index of the oldest entry
	size    int
	dropped int // entries overwritten since the last drain
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{items: make([]T, capacity)}
}

// push appends v, evicting the oldest entry if the ring is full. It reports
// whether an entry was evicted.
func (r *ring[T]) push(v T) bool {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = v
		r.size++
		return false
	}
	r.items[r.start] = v
	r.start = (r.start + 1) % len(r.items)
	r.dropped++
	return true
}

// drain returns the buffered entries oldest first along with the number of
// entries lost to overflow, and empties the ring.
func (r *ring[T]) drain() ([]T, int) {
	if r.size == 0 {
		return nil, 0
	}
	out := make([]T, 0, r.size)
	for i := 0; i < r.size; i++ {
		out = append(out, r.items[(r.start+i)%len(r.items)])
	}
	dropped := r.dropped

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start, r.size, r.dropped = 0, 0, 0
	return out, dropped
}

func (r *ring[T]) len() int {
	return r.size
}
