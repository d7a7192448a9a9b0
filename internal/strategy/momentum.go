package strategy

import (
	"fmt"
	"math"

	"tradepulse-go/internal/signal"
)

// Momentum emits signals when the window price change exceeds a threshold alongside a
// minimum quote volume.
type Momentum struct {
	*book[struct{}]
	thresholdPct   float64
	minQuoteVolume float64
}

// NewMomentum builds a momentum strategy. A zero threshold falls back to 5%.
func NewMomentum(name string, thresholdPct, minQuoteVolume float64) (*Momentum, error) {
	if thresholdPct == 0 {
		thresholdPct = 5
	}
	if thresholdPct < 0 || minQuoteVolume < 0 {
		return nil, fmt.Errorf("%w: momentum threshold %v min quote volume %v", ErrInvalidParams, thresholdPct, minQuoteVolume)
	}
	if name == "" {
		name = "momentum"
	}
	return &Momentum{
		book:           newBook(name, func() struct{} { return struct{}{} }),
		thresholdPct:   thresholdPct,
		minQuoteVolume: minQuoteVolume,
	}, nil
}

// Evaluate checks price change and traded notional for the window.
func (m *Momentum) Evaluate(w signal.WindowAnalytics) (signal.Signal, error) {
	e := m.lock(w.Symbol)
	defer e.mu.Unlock()
	return m.apply(e, w, m.decide(w)), nil
}

func (m *Momentum) decide(w signal.WindowAnalytics) decision {
	if w.PriceChangePct == nil {
		return hold(false, "insufficient data")
	}
	change := *w.PriceChangePct
	d := decision{
		typ:   signal.TypeHold,
		ready: true,
		meta: map[string]string{
			"price_change_pct": formatFloat(change),
			"quote_volume":     formatFloat(w.QuoteVolume),
		},
	}
	switch {
	case math.Abs(change) < m.thresholdPct:
		d.reason = fmt.Sprintf("Δ=%.2f%% below threshold", change)
	case w.QuoteVolume < m.minQuoteVolume:
		d.reason = fmt.Sprintf("volume=%.0f below minimum", w.QuoteVolume)
	case change > 0:
		d.typ, d.reason = signal.TypeBuy, fmt.Sprintf("Δ=%.2f%% volume=%.0f", change, w.QuoteVolume)
	default:
		d.typ, d.reason = signal.TypeSell, fmt.Sprintf("Δ=%.2f%% volume=%.0f", change, w.QuoteVolume)
	}
	return d
}
