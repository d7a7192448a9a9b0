package strategy

import (
	"fmt"
	"math"

	"tradepulse-go/internal/signal"
)

// VolatilityConfig tunes VolatilityBreakout.
type VolatilityConfig struct {
	BaselineWindow   int
	Multiplier       float64
	FlatThresholdPct float64
	// MinSamples defaults to BaselineWindow.
	MinSamples int
}

// VolatilityBreakout fires when the window volatility exceeds a multiple of its rolling
// baseline, in the direction of the window price change.
type VolatilityBreakout struct {
	*book[*volSeries]
	cfg VolatilityConfig
}

type volSeries struct {
	readings []float64
}

// NewVolatilityBreakout validates cfg, filling zero fields with defaults (20, 2.0, 1e-9).
func NewVolatilityBreakout(name string, cfg VolatilityConfig) (*VolatilityBreakout, error) {
	if cfg.BaselineWindow == 0 {
		cfg.BaselineWindow = 20
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	if cfg.FlatThresholdPct == 0 {
		cfg.FlatThresholdPct = 1e-9
	}
	if cfg.MinSamples == 0 {
		cfg.MinSamples = cfg.BaselineWindow
	}
	switch {
	case cfg.BaselineWindow < 1:
		return nil, fmt.Errorf("%w: baseline window %d", ErrInvalidParams, cfg.BaselineWindow)
	case cfg.Multiplier <= 0 || math.IsNaN(cfg.Multiplier):
		return nil, fmt.Errorf("%w: multiplier %v", ErrInvalidParams, cfg.Multiplier)
	case cfg.FlatThresholdPct < 0:
		return nil, fmt.Errorf("%w: flat threshold %v", ErrInvalidParams, cfg.FlatThresholdPct)
	case cfg.MinSamples < 1 || cfg.MinSamples > cfg.BaselineWindow:
		return nil, fmt.Errorf("%w: min samples %d must be in [1, %d]", ErrInvalidParams, cfg.MinSamples, cfg.BaselineWindow)
	}
	if name == "" {
		name = "volatility_breakout"
	}
	return &VolatilityBreakout{
		book: newBook(name, func() *volSeries { return &volSeries{readings: make([]float64, 0, cfg.BaselineWindow)} }),
		cfg:  cfg,
	}, nil
}

// Evaluate compares the window volatility to the symbol's baseline.
func (v *VolatilityBreakout) Evaluate(w signal.WindowAnalytics) (signal.Signal, error) {
	e := v.lock(w.Symbol)
	defer e.mu.Unlock()
	return v.apply(e, w, v.decide(e.ind, w)), nil
}

func (v *VolatilityBreakout) decide(s *volSeries, w signal.WindowAnalytics) decision {
	if w.Volatility == nil || w.PriceChangePct == nil {
		return hold(false, "insufficient data")
	}
	cur, pct := *w.Volatility, *w.PriceChangePct
	defer s.push(cur, v.cfg.BaselineWindow)

	if len(s.readings) < v.cfg.MinSamples {
		return hold(false, fmt.Sprintf("warming up (%d/%d readings)", len(s.readings), v.cfg.MinSamples))
	}

	baseline := mean(s.readings)
	meta := map[string]string{
		"volatility":       formatFloat(cur),
		"baseline":         formatFloat(baseline),
		"price_change_pct": formatFloat(pct),
	}
	if baseline > 0 {
		meta["ratio"] = formatFloat(cur / baseline)
	}
	if baseline <= 0 || cur <= baseline*v.cfg.Multiplier {
		return decision{typ: signal.TypeHold, ready: true, reason: "no breakout", meta: meta}
	}
	switch {
	case pct > v.cfg.FlatThresholdPct:
		return decision{typ: signal.TypeBuy, ready: true, reason: "upside volatility breakout", meta: meta}
	case pct < -v.cfg.FlatThresholdPct:
		return decision{typ: signal.TypeSell, ready: true, reason: "downside volatility breakout", meta: meta}
	default:
		return decision{typ: signal.TypeHold, ready: true, reset: true, reason: "breakout without direction", meta: meta}
	}
}

func (s *volSeries) push(v float64, limit int) {
	if len(s.readings) == limit {
		copy(s.readings, s.readings[1:])
		s.readings = s.readings[:limit-1]
	}
	s.readings = append(s.readings, v)
}
