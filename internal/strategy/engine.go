package strategy

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradepulse-go/internal/metrics"
	"tradepulse-go/internal/signal"
	"tradepulse-go/internal/sink"
)

// Engine evaluates every registered strategy against each window and forwards the
// resulting signals to a sink.
type Engine struct {
	sink        sink.Sink
	log         zerolog.Logger
	forwardHold bool
	workers     int

	mu         sync.RWMutex
	strategies map[string]Strategy
	names      []string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithForwardHold also publishes HOLD signals to the sink.
func WithForwardHold(enabled bool) EngineOption {
	return func(e *Engine) { e.forwardHold = enabled }
}

// WithWorkers bounds how many symbols are evaluated in parallel.
func WithWorkers(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// NewEngine builds an engine publishing to s. A nil sink only collects signals.
func NewEngine(s sink.Sink, log zerolog.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		sink:       s,
		log:        log.With().Str("component", "strategy").Logger(),
		workers:    runtime.GOMAXPROCS(0),
		strategies: make(map[string]Strategy),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register adds s under its name.
func (e *Engine) Register(s Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	name := s.Name()
	if _, ok := e.strategies[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, name)
	}
	e.strategies[name] = s
	e.names = append(e.names, name)
	sort.Strings(e.names)
	return nil
}

// Strategy looks up a registered strategy by name.
func (e *Engine) Strategy(name string) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[name]
	return s, ok
}

// Names returns the registered strategy names in sorted order.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.names...)
}

// Stats returns per-strategy signal counts.
func (e *Engine) Stats() map[string]Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]Stats, len(e.strategies))
	for name, s := range e.strategies {
		out[name] = s.Stats()
	}
	return out
}

// Evaluate runs all strategies over windows. Symbols are evaluated in parallel, strategies
// for one symbol in name order. Failures are contained to one (strategy, symbol) pair.
// The produced signals are returned sorted by symbol then strategy.
func (e *Engine) Evaluate(ctx context.Context, windows []signal.WindowAnalytics) []signal.Signal {
	e.mu.RLock()
	ordered := make([]Strategy, 0, len(e.names))
	for _, name := range e.names {
		ordered = append(ordered, e.strategies[name])
	}
	e.mu.RUnlock()
	if len(ordered) == 0 || len(windows) == 0 {
		return nil
	}

	results := make([][]signal.Signal, len(windows))
	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, w := range windows {
		g.Go(func() error {
			results[i] = e.evaluateWindow(ctx, ordered, w)
			return nil
		})
	}
	_ = g.Wait()

	var out []signal.Signal
	for _, batch := range results {
		out = append(out, batch...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].Strategy < out[j].Strategy
	})
	return out
}

func (e *Engine) evaluateWindow(ctx context.Context, ordered []Strategy, w signal.WindowAnalytics) []signal.Signal {
	out := make([]signal.Signal, 0, len(ordered))
	for _, s := range ordered {
		sig, err := safeEvaluate(s, w)
		if err != nil {
			metrics.StrategyErrors.WithLabelValues(s.Name()).Inc()
			e.log.Error().Err(err).Str("strategy", s.Name()).Str("symbol", w.Symbol).Msg("strategy evaluation failed")
			continue
		}
		metrics.SignalsTotal.WithLabelValues(sig.Strategy, sig.Symbol, string(sig.Type)).Inc()
		out = append(out, sig)
		if e.sink == nil || (!sig.Actionable() && !e.forwardHold) {
			continue
		}
		if err := e.sink.Publish(ctx, sig); err != nil {
			metrics.SinkErrors.WithLabelValues(e.sink.Name()).Inc()
			e.log.Warn().Err(err).Str("strategy", sig.Strategy).Str("symbol", sig.Symbol).Msg("signal publish failed")
		}
	}
	return out
}

func safeEvaluate(s Strategy, w signal.WindowAnalytics) (sig signal.Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", s.Name(), r)
		}
	}()
	return s.Evaluate(w)
}
