package strategy

import (
	"fmt"

	"tradepulse-go/internal/signal"
)

// MACrossover compares a short and a long simple moving average of the window VWAP.
type MACrossover struct {
	*book[*maSeries]
	short int
	long  int
}

type maSeries struct {
	samples []float64
	prevS   float64
	prevL   float64
	primed  bool
}

// NewMACrossover builds a crossover strategy. Zero periods fall back to 10/30.
func NewMACrossover(name string, shortPeriod, longPeriod int) (*MACrossover, error) {
	if shortPeriod == 0 {
		shortPeriod = 10
	}
	if longPeriod == 0 {
		longPeriod = 30
	}
	if shortPeriod < 1 || longPeriod < 1 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("%w: ma crossover needs 0 < short (%d) < long (%d)", ErrInvalidParams, shortPeriod, longPeriod)
	}
	if name == "" {
		name = "ma_crossover"
	}
	return &MACrossover{
		book:  newBook(name, func() *maSeries { return &maSeries{samples: make([]float64, 0, longPeriod)} }),
		short: shortPeriod,
		long:  longPeriod,
	}, nil
}

// Evaluate feeds the window VWAP into the symbol's series and checks for a crossover.
func (m *MACrossover) Evaluate(w signal.WindowAnalytics) (signal.Signal, error) {
	e := m.lock(w.Symbol)
	defer e.mu.Unlock()
	return m.apply(e, w, m.decide(e.ind, w)), nil
}

func (m *MACrossover) decide(s *maSeries, w signal.WindowAnalytics) decision {
	if w.VWAP == nil {
		return hold(false, "insufficient data")
	}
	if len(s.samples) == m.long {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:m.long-1]
	}
	s.samples = append(s.samples, *w.VWAP)
	if len(s.samples) < m.long {
		return hold(false, fmt.Sprintf("warming up (%d/%d samples)", len(s.samples), m.long))
	}

	shortMA := mean(s.samples[len(s.samples)-m.short:])
	longMA := mean(s.samples)
	meta := map[string]string{
		"short_ma": formatFloat(shortMA),
		"long_ma":  formatFloat(longMA),
	}
	prevS, prevL, primed := s.prevS, s.prevL, s.primed
	s.prevS, s.prevL, s.primed = shortMA, longMA, true
	if !primed {
		return decision{typ: signal.TypeHold, ready: true, reason: "moving averages initialised", meta: meta}
	}

	d := decision{typ: crossover(prevS, prevL, shortMA, longMA), ready: true, meta: meta}
	switch d.typ {
	case signal.TypeBuy:
		d.reason = "short MA crossed above long MA"
	case signal.TypeSell:
		d.reason = "short MA crossed below long MA"
	default:
		d.reason = "no crossover"
		d.reset = shortMA == longMA
	}
	return d
}

// crossover classifies the move from (prevS, prevL) to (s, l).
func crossover(prevS, prevL, s, l float64) signal.Type {
	switch {
	case prevS <= prevL && s > l:
		return signal.TypeBuy
	case prevS >= prevL && s < l:
		return signal.TypeSell
	default:
		return signal.TypeHold
	}
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
