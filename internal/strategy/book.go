package strategy

import (
	"sync"

	"github.com/google/uuid"

	"tradepulse-go/internal/signal"
)

// decision is what an indicator concluded for one window before the state machine runs.
type decision struct {
	typ signal.Type
	// ready is false while the indicator lacks data; the state is then left untouched.
	ready bool
	// reset drops an open LONG/SHORT back to NEUTRAL without emitting a trade signal.
	reset  bool
	reason string
	meta   map[string]string
}

func hold(ready bool, reason string) decision {
	return decision{typ: signal.TypeHold, ready: ready, reason: reason}
}

type entry[T any] struct {
	mu    sync.Mutex
	state State
	ind   T
}

// book owns the per-symbol state of one strategy instance: indicator buffers, the
// WARMING_UP/NEUTRAL/LONG/SHORT state, the last signal and running statistics.
type book[T any] struct {
	name   string
	newInd func() T

	mu      sync.Mutex
	entries map[string]*entry[T]
	last    map[string]signal.Signal
	stats   Stats
}

func newBook[T any](name string, newInd func() T) *book[T] {
	return &book[T]{
		name:    name,
		newInd:  newInd,
		entries: make(map[string]*entry[T]),
		last:    make(map[string]signal.Signal),
	}
}

// lock returns the symbol's entry locked; the caller must unlock it.
func (b *book[T]) lock(symbol string) *entry[T] {
	b.mu.Lock()
	e := b.entries[symbol]
	if e == nil {
		e = &entry[T]{state: WarmingUp, ind: b.newInd()}
		b.entries[symbol] = e
	}
	b.mu.Unlock()
	e.mu.Lock()
	return e
}

// apply runs the state machine for d and records the resulting signal.
func (b *book[T]) apply(e *entry[T], w signal.WindowAnalytics, d decision) signal.Signal {
	typ := d.typ
	reason := d.reason
	switch {
	case !d.ready:
		typ = signal.TypeHold
	case typ == signal.TypeBuy:
		if e.state == Long {
			typ, reason = signal.TypeHold, "already long: "+reason
		} else {
			e.state = Long
		}
	case typ == signal.TypeSell:
		if e.state == Short {
			typ, reason = signal.TypeHold, "already short: "+reason
		} else {
			e.state = Short
		}
	default:
		if e.state == WarmingUp || d.reset {
			e.state = Neutral
		}
	}

	meta := make(map[string]string, len(d.meta)+2)
	for k, v := range d.meta {
		meta[k] = v
	}
	meta["reason"] = reason
	meta["state"] = e.state.String()

	sig := signal.Signal{
		ID:             uuid.NewString(),
		Timestamp:      w.WindowEnd,
		Symbol:         w.Symbol,
		Strategy:       b.name,
		Type:           typ,
		ReferencePrice: w.ReferencePrice(),
		Metadata:       meta,
	}

	b.mu.Lock()
	b.stats.add(typ)
	b.last[w.Symbol] = sig
	b.mu.Unlock()
	return sig
}

func (b *book[T]) Name() string { return b.name }

func (b *book[T]) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *book[T]) LastSignal(symbol string) (signal.Signal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sig, ok := b.last[symbol]
	return sig, ok
}

func (b *book[T]) State(symbol string) State {
	b.mu.Lock()
	e := b.entries[symbol]
	b.mu.Unlock()
	if e == nil {
		return WarmingUp
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}
