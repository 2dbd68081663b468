package stream

import "sync"

// Window is a bounded recently-seen set keyed by event id. Delivery is
// at-least-once, so a duplicate must not double-increment counts or
// double-fire a notification. Once the window fills, the oldest entries
// are evicted; an id older than the window could in principle re-admit a
// duplicate, which the next snapshot fetch corrects.
type Window struct {
	mu       sync.Mutex
	capacity int
	seen     map[string]struct{}
	order    []string
	head     int
}

// NewWindow creates a dedup window holding up to capacity ids.
func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = 512
	}
	return &Window{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
		order:    make([]string, 0, capacity),
	}
}

// Observe records an id and reports whether it was newly seen. A false
// return means the id is a duplicate within the window.
func (w *Window) Observe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.seen[id]; dup {
		return false
	}

	if len(w.order) < w.capacity {
		w.order = append(w.order, id)
	} else {
		delete(w.seen, w.order[w.head])
		w.order[w.head] = id
		w.head = (w.head + 1) % w.capacity
	}
	w.seen[id] = struct{}{}
	return true
}

// Len returns the number of ids currently retained.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}
