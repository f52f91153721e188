package eventbus

// ring keeps the newest capacity events in FIFO order. Callers hold the bus lock.
type ring struct {
	entries  []Event
	head     int
	size     int
	capacity int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{entries: make([]Event, capacity), capacity: capacity}
}

func (r *ring) push(ev Event) {
	r.entries[r.head] = ev
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// last returns up to n of the newest events, oldest first. n <= 0 means all.
func (r *ring) last(n int) []Event {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Event, 0, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out = append(out, r.entries[(start+i)%r.capacity])
	}
	return out
}

func (r *ring) reset() {
	r.entries = make([]Event, r.capacity)
	r.head = 0
	r.size = 0
}
