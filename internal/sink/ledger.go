package sink

import (
	"context"
	"sync"

	"tradepulse-go/internal/signal"
)

// Ledger keeps the most recent signals in memory for quick inspection.
type Ledger struct {
	mu    sync.Mutex
	buf   []signal.Signal
	head  int
	size  int
	total int
}

// NewLedger creates a ledger retaining up to capacity signals (minimum one).
func NewLedger(capacity int) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	return &Ledger{buf: make([]signal.Signal, capacity)}
}

func (l *Ledger) Name() string { return "ledger" }

// Publish records s, evicting the oldest entry when full.
func (l *Ledger) Publish(_ context.Context, s signal.Signal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.head + l.size) % len(l.buf)
	if l.size == len(l.buf) {
		l.head = (l.head + 1) % len(l.buf)
	} else {
		l.size++
	}
	l.buf[idx] = s
	l.total++
	return nil
}

// Snapshot returns a copy of the retained signals, oldest first.
func (l *Ledger) Snapshot() []signal.Signal {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]signal.Signal, l.size)
	for i := range out {
		out[i] = l.buf[(l.head+i)%len(l.buf)]
	}
	return out
}

// Total counts every signal ever recorded, including evicted ones.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Reset clears all stored signals.
func (l *Ledger) Reset() {
	l.mu.Lock()
	clear(l.buf)
	l.head, l.size, l.total = 0, 0, 0
	l.mu.Unlock()
}

func (l *Ledger) Close() error { return nil }
