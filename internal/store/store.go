// Package store keeps a bounded, per-symbol history of recent trades that is safe to
// append to and snapshot from concurrently.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"tradepulse-go/internal/signal"
)

// DefaultCapacity is the per-symbol trade cap used when no capacity option is given.
const DefaultCapacity = 10_000

var (
	// ErrUnknownSymbol is returned when appending to a symbol the store was not configured with.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrNoSymbols is returned by New when there is nothing to track.
	ErrNoSymbols = errors.New("no symbols configured")
)

// TradeStore holds one fixed-capacity ring buffer per symbol. Each buffer has its own
// lock, so readers of one symbol never hold up writers of another.
type TradeStore struct {
	capacity     int
	maxAge       time.Duration
	autoRegister bool

	mu      sync.RWMutex
	buffers map[string]*ring
}

// Option configures TradeStore construction.
type Option func(*TradeStore)

// WithCapacity sets the maximum number of trades retained per symbol.
func WithCapacity(n int) Option {
	return func(s *TradeStore) { s.capacity = n }
}

// WithMaxAge additionally evicts trades older than d relative to the newest trade of the symbol.
func WithMaxAge(d time.Duration) Option {
	return func(s *TradeStore) { s.maxAge = d }
}

// WithAutoRegister lets Append create buffers for symbols that were not configured up front.
func WithAutoRegister(enabled bool) Option {
	return func(s *TradeStore) { s.autoRegister = enabled }
}

// New builds a store tracking the given symbols.
func New(symbols []string, opts ...Option) (*TradeStore, error) {
	s := &TradeStore{
		capacity: DefaultCapacity,
		buffers:  make(map[string]*ring, len(symbols)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", s.capacity)
	}
	if s.maxAge < 0 {
		return nil, fmt.Errorf("max age must not be negative, got %s", s.maxAge)
	}
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, ok := s.buffers[sym]; !ok {
			s.buffers[sym] = newRing(s.capacity)
		}
	}
	if len(s.buffers) == 0 && !s.autoRegister {
		return nil, ErrNoSymbols
	}
	return s, nil
}

// Append inserts trade into its symbol's buffer, evicting the oldest entry when full.
func (s *TradeStore) Append(trade signal.Trade) error {
	r := s.lookup(trade.Symbol)
	if r == nil {
		if !s.autoRegister || trade.Symbol == "" {
			return fmt.Errorf("append %q: %w", trade.Symbol, ErrUnknownSymbol)
		}
		r = s.register(trade.Symbol)
	}
	r.push(trade, s.maxAge)
	return nil
}

// Snapshot returns a copy of the symbol's trades in insertion order, taken under the
// symbol lock. Unknown symbols yield an empty result.
func (s *TradeStore) Snapshot(symbol string) []signal.Trade {
	r := s.lookup(symbol)
	if r == nil {
		return nil
	}
	return r.snapshot()
}

// Len reports how many trades are retained for the symbol.
func (s *TradeStore) Len(symbol string) int {
	r := s.lookup(symbol)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Capacity returns the per-symbol cap.
func (s *TradeStore) Capacity() int { return s.capacity }

// Symbols returns the tracked symbols, sorted.
func (s *TradeStore) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.buffers))
	for sym := range s.buffers {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *TradeStore) lookup(symbol string) *ring {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buffers[symbol]
}

func (s *TradeStore) register(symbol string) *ring {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.buffers[symbol]
	if !ok {
		r = newRing(s.capacity)
		s.buffers[symbol] = r
	}
	return r
}
