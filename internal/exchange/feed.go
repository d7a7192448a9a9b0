// Package exchange hosts market data connectors that stream trades into the pipeline.
package exchange

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradepulse-go/internal/signal"
)

const (
	// ProviderStub emits synthetic random-walk trades (useful for tests/offline work).
	ProviderStub = "stub"
	// ProviderBinance streams live trades from Binance public websockets.
	ProviderBinance = "binance"

	// DefaultBinanceURL is the combined stream endpoint.
	DefaultBinanceURL = "wss://stream.binance.com:9443/stream"
)

// Feed represents a pluggable market data stream implementation.
type Feed struct {
	provider string
	log      zerolog.Logger

	mu      sync.RWMutex
	symbols []string

	wsURL          string
	perConn        int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	maxAttempts    int
	stubInterval   time.Duration
	rng            *rand.Rand
}

// Option configures Feed construction parameters.
type Option func(*Feed)

const (
	defaultSymbolsPerConnection = 20
	defaultInitialBackoff       = time.Second
	defaultMaxBackoff           = 60 * time.Second
	defaultStubInterval         = 500 * time.Millisecond
	backoffFactor               = 1.8
)

// WithURL overrides the websocket endpoint (without the streams query).
func WithURL(u string) Option {
	return func(f *Feed) {
		if u != "" {
			f.wsURL = strings.TrimSuffix(u, "/")
		}
	}
}

// WithSymbolsPerConnection caps how many symbols share one websocket.
func WithSymbolsPerConnection(n int) Option {
	return func(f *Feed) {
		if n > 0 {
			f.perConn = n
		}
	}
}

// WithBackoff sets the reconnect delay bounds.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(f *Feed) {
		if initial > 0 {
			f.initialBackoff = initial
		}
		if maxDelay > 0 {
			f.maxBackoff = maxDelay
		}
	}
}

// WithMaxReconnectAttempts gives up after n consecutive failed connections. Zero retries forever.
func WithMaxReconnectAttempts(n int) Option {
	return func(f *Feed) {
		if n >= 0 {
			f.maxAttempts = n
		}
	}
}

// WithStubInterval sets the cadence of synthetic trades.
func WithStubInterval(d time.Duration) Option {
	return func(f *Feed) {
		if d > 0 {
			f.stubInterval = d
		}
	}
}

// WithSeed makes the stub provider deterministic.
func WithSeed(seed uint64) Option {
	return func(f *Feed) { f.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewFeed constructs a feed backed by the requested provider.
func NewFeed(provider string, symbols []string, log zerolog.Logger, opts ...Option) *Feed {
	if provider == "" {
		provider = ProviderStub
	}
	f := &Feed{
		provider:       strings.ToLower(provider),
		log:            log.With().Str("component", "feed").Logger(),
		wsURL:          DefaultBinanceURL,
		perConn:        defaultSymbolsPerConnection,
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
		stubInterval:   defaultStubInterval,
	}
	f.setSymbols(symbols)
	for _, opt := range opts {
		opt(f)
	}
	if f.maxBackoff < f.initialBackoff {
		f.maxBackoff = f.initialBackoff
	}
	if f.rng == nil {
		f.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0))
	}
	return f
}

// Provider returns the normalized provider name.
func (f *Feed) Provider() string { return f.provider }

// setSymbols replaces the tracked symbol list (deduplicated, sorted for determinism).
func (f *Feed) setSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

// Symbols returns the tracked symbols.
func (f *Feed) Symbols() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.symbols))
	copy(out, f.symbols)
	return out
}

// Run pushes trades onto the provided channel until the context is canceled or the
// feed gives up reconnecting.
func (f *Feed) Run(ctx context.Context, out chan<- signal.Trade) error {
	switch f.provider {
	case ProviderBinance:
		return f.runBinance(ctx, out)
	default:
		return f.runStub(ctx, out)
	}
}

func (f *Feed) runStub(ctx context.Context, out chan<- signal.Trade) error {
	ticker := time.NewTicker(f.stubInterval)
	defer ticker.Stop()

	prices := make(map[string]float64)
	ids := make(map[string]int64)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ts := <-ticker.C:
			for _, s := range f.Symbols() {
				px, ok := prices[s]
				if !ok {
					px = 100
				}
				px *= 1 + (f.rng.Float64()-0.5)*0.002
				prices[s] = px
				ids[s]++
				trade := signal.Trade{
					Symbol:       s,
					Price:        px,
					Quantity:     0.01 + f.rng.Float64(),
					TradeID:      ids[s],
					Timestamp:    ts,
					EventTime:    ts,
					IsBuyerMaker: f.rng.IntN(2) == 0,
				}
				select {
				case out <- trade:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func chunk(symbols []string, size int) [][]string {
	var out [][]string
	for len(symbols) > 0 {
		n := min(size, len(symbols))
		out = append(out, symbols[:n:n])
		symbols = symbols[n:]
	}
	return out
}
