// Package ingest validates feed trades and hands them to the trade store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"tradepulse-go/internal/metrics"
	"tradepulse-go/internal/signal"
)

var (
	// ErrMalformedTrade marks a trade that fails basic validation.
	ErrMalformedTrade = errors.New("malformed trade")
	// ErrDuplicateTrade marks a trade whose ID is not newer than the last accepted one.
	ErrDuplicateTrade = errors.New("duplicate or stale trade")
)

// Appender is the store side of the adapter.
type Appender interface {
	Append(t signal.Trade) error
}

// Stats counts adapter outcomes.
type Stats struct {
	Accepted  uint64 `json:"accepted"`
	Malformed uint64 `json:"malformed"`
	Duplicate uint64 `json:"duplicate"`
	Rejected  uint64 `json:"rejected"`
}

// Adapter normalizes trades, drops malformed and replayed ones, and appends the rest.
// Trades with a positive TradeID must arrive with increasing IDs per symbol; a zero ID
// disables the check for that trade.
type Adapter struct {
	store Appender
	log   zerolog.Logger

	mu    sync.RWMutex
	gates map[string]*symbolGate

	accepted, malformed, duplicate, rejected atomic.Uint64
}

// NewAdapter wires an adapter in front of store.
func NewAdapter(store Appender, log zerolog.Logger) *Adapter {
	return &Adapter{
		store: store,
		log:   log.With().Str("component", "ingest").Logger(),
		gates: make(map[string]*symbolGate),
	}
}

// symbolGate serializes submits for one symbol so IDs reach the store in the order
// they were accepted.
type symbolGate struct {
	mu   sync.Mutex
	last int64
	seen bool
}

func (a *Adapter) gate(symbol string) *symbolGate {
	a.mu.RLock()
	g, ok := a.gates[symbol]
	a.mu.RUnlock()
	if ok {
		return g
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if g, ok = a.gates[symbol]; !ok {
		g = &symbolGate{}
		a.gates[symbol] = g
	}
	return g
}

// Submit validates t and appends it to the store.
func (a *Adapter) Submit(t signal.Trade) error {
	t.Symbol = strings.ToUpper(strings.TrimSpace(t.Symbol))
	if err := validate(t); err != nil {
		a.malformed.Add(1)
		metrics.IngestDropped.WithLabelValues("malformed").Inc()
		return err
	}

	g := a.gate(t.Symbol)
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.TradeID > 0 && g.seen && t.TradeID <= g.last {
		a.duplicate.Add(1)
		metrics.IngestDropped.WithLabelValues("duplicate").Inc()
		return fmt.Errorf("%w: %s id %d <= %d", ErrDuplicateTrade, t.Symbol, t.TradeID, g.last)
	}
	if err := a.store.Append(t); err != nil {
		a.rejected.Add(1)
		metrics.IngestDropped.WithLabelValues("rejected").Inc()
		return err
	}
	if t.TradeID > 0 {
		g.last, g.seen = t.TradeID, true
	}
	a.accepted.Add(1)
	metrics.TradesIngested.WithLabelValues(t.Symbol).Inc()
	return nil
}

// Run drains in until ctx is done or the channel is closed. Rejected trades are logged
// and skipped.
func (a *Adapter) Run(ctx context.Context, in <-chan signal.Trade) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-in:
			if !ok {
				return nil
			}
			if err := a.Submit(t); err != nil {
				evt := a.log.Warn()
				if errors.Is(err, ErrDuplicateTrade) {
					evt = a.log.Debug()
				}
				evt.Err(err).Str("symbol", t.Symbol).Int64("trade_id", t.TradeID).Msg("trade dropped")
			}
		}
	}
}

// Stats returns a snapshot of the adapter counters.
func (a *Adapter) Stats() Stats {
	return Stats{
		Accepted:  a.accepted.Load(),
		Malformed: a.malformed.Load(),
		Duplicate: a.duplicate.Load(),
		Rejected:  a.rejected.Load(),
	}
}

func validate(t signal.Trade) error {
	switch {
	case t.Symbol == "":
		return fmt.Errorf("%w: empty symbol", ErrMalformedTrade)
	case math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0:
		return fmt.Errorf("%w: %s price %v", ErrMalformedTrade, t.Symbol, t.Price)
	case math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity < 0:
		return fmt.Errorf("%w: %s quantity %v", ErrMalformedTrade, t.Symbol, t.Quantity)
	case t.Timestamp.IsZero():
		return fmt.Errorf("%w: %s missing timestamp", ErrMalformedTrade, t.Symbol)
	}
	return nil
}
