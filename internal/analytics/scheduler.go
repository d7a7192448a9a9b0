package analytics

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tradepulse-go/internal/metrics"
	"tradepulse-go/internal/signal"
)

const (
	defaultWindow   = 30 * time.Second
	defaultInterval = 30 * time.Second
)

// Source is the read side of the trade store.
type Source interface {
	Symbols() []string
	Snapshot(symbol string) []signal.Trade
}

// Evaluator consumes the windows produced by one tick.
type Evaluator interface {
	Evaluate(ctx context.Context, windows []signal.WindowAnalytics) []signal.Signal
}

// Scheduler periodically reduces every tracked symbol into a WindowAnalytics record and
// hands the batch to an Evaluator.
type Scheduler struct {
	source    Source
	evaluator Evaluator
	log       zerolog.Logger

	window   time.Duration
	interval time.Duration
	workers  int
	clock    func() time.Time
	observe  func(signal.WindowAnalytics)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithWindow sets the rolling window width.
func WithWindow(d time.Duration) Option { return func(s *Scheduler) { s.window = d } }

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option { return func(s *Scheduler) { s.interval = d } }

// WithWorkers bounds how many symbols are reduced in parallel.
func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithClock overrides the time source used to place windows.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithObserver replaces the default debug log line emitted for every reduced window.
func WithObserver(fn func(signal.WindowAnalytics)) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.observe = fn
		}
	}
}

// NewScheduler wires a scheduler over source. evaluator may be nil.
func NewScheduler(source Source, evaluator Evaluator, log zerolog.Logger, opts ...Option) (*Scheduler, error) {
	if source == nil {
		return nil, fmt.Errorf("nil trade source")
	}
	s := &Scheduler{
		source:    source,
		evaluator: evaluator,
		log:       log.With().Str("component", "analytics").Logger(),
		window:    defaultWindow,
		interval:  defaultInterval,
		workers:   runtime.GOMAXPROCS(0),
		clock:     time.Now,
	}
	s.observe = s.logWindow
	for _, opt := range opts {
		opt(s)
	}
	if s.window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %s", s.window)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	return s, nil
}

// Run ticks every interval until ctx is canceled. Ticks execute inline, so a slow tick
// delays the next one instead of overlapping it; a tick already running when ctx is
// canceled is allowed to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("window", s.window).Dur("interval", s.interval).Int("workers", s.workers).Msg("analytics scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("analytics scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Tick(context.WithoutCancel(ctx))
		}
	}
}

// Tick reduces every symbol over [now-window, now) and forwards the results. A symbol
// whose reduction fails is logged and left out of this tick only.
func (s *Scheduler) Tick(ctx context.Context) []signal.WindowAnalytics {
	started := time.Now()
	end := s.clock()
	start := end.Add(-s.window)

	symbols := s.source.Symbols()
	results := make([]*signal.WindowAnalytics, len(symbols))

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i, symbol := range symbols {
		g.Go(func() error {
			w, err := s.reduceSymbol(symbol, start, end)
			if err != nil {
				metrics.AnalyticsErrors.WithLabelValues(symbol).Inc()
				s.log.Error().Err(err).Str("symbol", symbol).Msg("window reduction failed, skipping symbol")
				return nil
			}
			results[i] = &w
			return nil
		})
	}
	_ = g.Wait()

	windows := make([]signal.WindowAnalytics, 0, len(results))
	for _, w := range results {
		if w == nil {
			continue
		}
		windows = append(windows, *w)
		s.observe(*w)
	}

	if s.evaluator != nil {
		s.evaluator.Evaluate(ctx, windows)
	}

	metrics.AnalyticsTicks.Inc()
	metrics.AnalyticsTickSeconds.Observe(time.Since(started).Seconds())
	return windows
}

func (s *Scheduler) reduceSymbol(symbol string, start, end time.Time) (w signal.WindowAnalytics, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reduce %s: panic: %v", symbol, r)
		}
	}()
	trades := s.source.Snapshot(symbol)
	metrics.BufferSize.WithLabelValues(symbol).Set(float64(len(trades)))
	return Reduce(symbol, trades, start, end)
}

func (s *Scheduler) logWindow(w signal.WindowAnalytics) {
	ev := s.log.Debug().
		Str("symbol", w.Symbol).
		Time("window_start", w.WindowStart).
		Time("window_end", w.WindowEnd).
		Int("trades", w.TradeCount).
		Float64("volume", w.Volume).
		Float64("quote_volume", w.QuoteVolume).
		Float64("trades_per_sec", w.TradesPerSec)
	for name, v := range map[string]*float64{
		"vwap":             w.VWAP,
		"price_change_pct": w.PriceChangePct,
		"high":             w.High,
		"low":              w.Low,
		"volatility":       w.Volatility,
	} {
		if v != nil {
			ev = ev.Float64(name, *v)
		}
	}
	ev.Msg("window analytics")
}
