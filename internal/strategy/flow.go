package strategy

import (
	"fmt"
	"math"

	"tradepulse-go/internal/signal"
)

// FlowImbalance blends taker buy/sell volume imbalance with window price momentum.
type FlowImbalance struct {
	*book[struct{}]
	threshold float64
	minTrades int
}

// NewFlowImbalance builds a flow strategy. Zero values fall back to threshold 0.25, one trade.
func NewFlowImbalance(name string, threshold float64, minTrades int) (*FlowImbalance, error) {
	if threshold == 0 {
		threshold = 0.25
	}
	if minTrades == 0 {
		minTrades = 1
	}
	if threshold < 0 || threshold > 1 || minTrades < 1 {
		return nil, fmt.Errorf("%w: flow imbalance threshold %v min trades %d", ErrInvalidParams, threshold, minTrades)
	}
	if name == "" {
		name = "flow_imbalance"
	}
	return &FlowImbalance{
		book:      newBook(name, func() struct{} { return struct{}{} }),
		threshold: threshold,
		minTrades: minTrades,
	}, nil
}

// Evaluate scores the window order flow.
func (f *FlowImbalance) Evaluate(w signal.WindowAnalytics) (signal.Signal, error) {
	e := f.lock(w.Symbol)
	defer e.mu.Unlock()
	return f.apply(e, w, f.decide(w)), nil
}

func (f *FlowImbalance) decide(w signal.WindowAnalytics) decision {
	if w.TradeCount < f.minTrades || w.Volume <= 0 {
		return hold(false, "insufficient data")
	}
	imbalance := clamp((w.BuyVolume-w.SellVolume)/w.Volume, -1, 1)
	momentum := 0.0
	if pct := w.PriceChangePct; pct != nil {
		momentum = clamp(math.Tanh(3*(*pct)/100), -1, 1)
	}
	score := 0.6*imbalance + 0.4*momentum
	d := decision{
		ready: true,
		meta: map[string]string{
			"imbalance": formatFloat(imbalance),
			"momentum":  formatFloat(momentum),
			"score":     formatFloat(score),
		},
	}
	switch {
	case score >= f.threshold:
		d.typ, d.reason = signal.TypeBuy, fmt.Sprintf("buy pressure score=%.2f", score)
	case score <= -f.threshold:
		d.typ, d.reason = signal.TypeSell, fmt.Sprintf("sell pressure score=%.2f", score)
	default:
		d.typ, d.reason = signal.TypeHold, fmt.Sprintf("balanced flow score=%.2f", score)
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
