// Package strategy turns window analytics into BUY / SELL / HOLD signals.
package strategy

import (
	"errors"
	"strconv"

	"tradepulse-go/internal/signal"
)

var (
	// ErrDuplicateStrategy is returned when registering a second strategy under a taken name.
	ErrDuplicateStrategy = errors.New("strategy already registered")
	// ErrUnknownKind is returned by Build for an unsupported strategy kind.
	ErrUnknownKind = errors.New("unknown strategy kind")
	// ErrInvalidParams is returned by constructors for inconsistent parameters.
	ErrInvalidParams = errors.New("invalid strategy parameters")
)

// Strategy defines behaviour shared by strategy implementations. Evaluate is called
// once per symbol per analytics tick; implementations keep per-symbol state.
type Strategy interface {
	Name() string
	Evaluate(w signal.WindowAnalytics) (signal.Signal, error)
	Stats() Stats
	LastSignal(symbol string) (signal.Signal, bool)
	State(symbol string) State
}

// Stats counts the signals a strategy produced.
type Stats struct {
	Total int `json:"total"`
	Buy   int `json:"buy"`
	Sell  int `json:"sell"`
	Hold  int `json:"hold"`
}

func (s *Stats) add(t signal.Type) {
	s.Total++
	switch t {
	case signal.TypeBuy:
		s.Buy++
	case signal.TypeSell:
		s.Sell++
	default:
		s.Hold++
	}
}

// State is the position-like state a strategy holds for one symbol.
type State int

const (
	// WarmingUp means the indicator has not seen enough samples yet.
	WarmingUp State = iota
	// Neutral means the indicator is computed and no position is implied.
	Neutral
	// Long means the last emitted signal was BUY.
	Long
	// Short means the last emitted signal was SELL.
	Short
)

func (s State) String() string {
	switch s {
	case WarmingUp:
		return "WARMING_UP"
	case Neutral:
		return "NEUTRAL"
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', 6, 64) }
