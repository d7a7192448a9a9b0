package store

import (
	"sync"
	"time"

	"tradepulse-go/internal/signal"
)

// ring is a fixed-capacity FIFO of trades. head indexes the oldest entry.
type ring struct {
	mu   sync.Mutex
	buf  []signal.Trade
	head int
	size int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]signal.Trade, capacity)}
}

// push appends t, overwriting the oldest entry when full, then drops entries that fell
// out of the max age horizon. Both happen in one critical section.
func (r *ring) push(t signal.Trade, maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.buf)
	if r.size == capacity {
		r.buf[r.head] = t
		r.head = (r.head + 1) % capacity
	} else {
		r.buf[(r.head+r.size)%capacity] = t
		r.size++
	}

	if maxAge <= 0 {
		return
	}
	cutoff := t.Timestamp.Add(-maxAge)
	for r.size > 1 && r.buf[r.head].Timestamp.Before(cutoff) {
		r.buf[r.head] = signal.Trade{}
		r.head = (r.head + 1) % capacity
		r.size--
	}
}

func (r *ring) snapshot() []signal.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]signal.Trade, r.size)
	capacity := len(r.buf)
	first := copy(out, r.buf[r.head:min(r.head+r.size, capacity)])
	if first < r.size {
		copy(out[first:], r.buf[:r.size-first])
	}
	return out
}
