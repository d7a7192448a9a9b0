package strategy

import (
	"fmt"
	"strings"
)

// Strategy kinds accepted by Build.
const (
	KindMACrossover        = "ma_crossover"
	KindVolatilityBreakout = "volatility_breakout"
	KindFlowImbalance      = "flow_imbalance"
	KindMomentum           = "momentum"
)

// Params expresses tunable knobs required by strategy constructors. Zero values select
// each strategy's defaults.
type Params struct {
	ShortPeriod          int     `yaml:"short_period,omitempty" json:"short_period,omitempty"`
	LongPeriod           int     `yaml:"long_period,omitempty" json:"long_period,omitempty"`
	BaselineWindow       int     `yaml:"baseline_window,omitempty" json:"baseline_window,omitempty"`
	MinSamples           int     `yaml:"min_samples,omitempty" json:"min_samples,omitempty"`
	VolatilityMultiplier float64 `yaml:"volatility_multiplier,omitempty" json:"volatility_multiplier,omitempty"`
	FlatThresholdPct     float64 `yaml:"flat_threshold_pct,omitempty" json:"flat_threshold_pct,omitempty"`
	ImbalanceThreshold   float64 `yaml:"imbalance_threshold,omitempty" json:"imbalance_threshold,omitempty"`
	MinTrades            int     `yaml:"min_trades,omitempty" json:"min_trades,omitempty"`
	TrendThresholdPct    float64 `yaml:"trend_threshold_pct,omitempty" json:"trend_threshold_pct,omitempty"`
	MinQuoteVolume       float64 `yaml:"min_quote_volume,omitempty" json:"min_quote_volume,omitempty"`
}

// NormalizeKind maps accepted aliases onto the canonical kind, or "" when unknown.
func NormalizeKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "ma", "sma", "ma_crossover", "moving_average_crossover":
		return KindMACrossover
	case "vol", "volatility", "volatility_breakout":
		return KindVolatilityBreakout
	case "obi", "flow", "flow_imbalance", "obi_momentum":
		return KindFlowImbalance
	case "trend", "trend_follow", "trend_follower", "momentum":
		return KindMomentum
	default:
		return ""
	}
}

// Build returns a strategy implementation matching kind, named name (kind when empty).
func Build(name, kind string, params Params) (Strategy, error) {
	canonical := NormalizeKind(kind)
	if name == "" {
		name = canonical
	}
	var (
		s   Strategy
		err error
	)
	switch canonical {
	case KindMACrossover:
		s, err = NewMACrossover(name, params.ShortPeriod, params.LongPeriod)
	case KindVolatilityBreakout:
		s, err = NewVolatilityBreakout(name, VolatilityConfig{
			BaselineWindow:   params.BaselineWindow,
			Multiplier:       params.VolatilityMultiplier,
			FlatThresholdPct: params.FlatThresholdPct,
			MinSamples:       params.MinSamples,
		})
	case KindFlowImbalance:
		s, err = NewFlowImbalance(name, params.ImbalanceThreshold, params.MinTrades)
	case KindMomentum:
		s, err = NewMomentum(name, params.TrendThresholdPct, params.MinQuoteVolume)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
