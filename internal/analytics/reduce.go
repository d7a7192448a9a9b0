// Package analytics turns snapshots of the trade store into rolling-window statistics.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"tradepulse-go/internal/signal"
)

// ErrMalformedTrade marks a trade whose numbers cannot take part in a reduction.
var ErrMalformedTrade = errors.New("malformed trade")

// Filter returns the trades whose timestamp lies in [start, end), preserving order.
func Filter(trades []signal.Trade, start, end time.Time) []signal.Trade {
	out := make([]signal.Trade, 0, len(trades))
	for _, t := range trades {
		if t.Timestamp.Before(start) || !t.Timestamp.Before(end) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Reduce summarizes the trades of symbol that fall in [start, end). It is a pure
// function of its inputs. Derived fields stay nil when the window cannot define them.
func Reduce(symbol string, trades []signal.Trade, start, end time.Time) (signal.WindowAnalytics, error) {
	w := signal.WindowAnalytics{Symbol: symbol, WindowStart: start, WindowEnd: end}

	var acc accumulator
	for _, t := range Filter(trades, start, end) {
		if err := acc.add(t); err != nil {
			return signal.WindowAnalytics{}, err
		}
	}
	acc.fill(&w)
	return w, nil
}

// accumulator folds trades in a single pass. Volume and notional sums are kept as
// decimals so they do not drift over long windows; dispersion uses Welford's update.
type accumulator struct {
	count       int
	volume      decimal.Decimal
	quote       decimal.Decimal
	buyVolume   decimal.Decimal
	sellVolume  decimal.Decimal
	buys, sells int

	open, close, high, low float64
	first, last            time.Time

	mean, m2 float64
}

func (a *accumulator) add(t signal.Trade) error {
	if math.IsNaN(t.Price) || math.IsInf(t.Price, 0) || t.Price <= 0 {
		return fmt.Errorf("trade %d price %v: %w", t.TradeID, t.Price, ErrMalformedTrade)
	}
	if math.IsNaN(t.Quantity) || math.IsInf(t.Quantity, 0) || t.Quantity < 0 {
		return fmt.Errorf("trade %d quantity %v: %w", t.TradeID, t.Quantity, ErrMalformedTrade)
	}

	qty := decimal.NewFromFloat(t.Quantity)
	notional := decimal.NewFromFloat(t.Price).Mul(qty)

	if a.count == 0 {
		a.open, a.high, a.low = t.Price, t.Price, t.Price
		a.first = t.Timestamp
		a.volume, a.quote = decimal.Zero, decimal.Zero
		a.buyVolume, a.sellVolume = decimal.Zero, decimal.Zero
	}
	a.high = math.Max(a.high, t.Price)
	a.low = math.Min(a.low, t.Price)
	a.close = t.Price
	a.last = t.Timestamp

	a.volume = a.volume.Add(qty)
	a.quote = a.quote.Add(notional)
	if t.Side() == signal.Buy {
		a.buyVolume = a.buyVolume.Add(qty)
		a.buys++
	} else {
		a.sellVolume = a.sellVolume.Add(qty)
		a.sells++
	}

	a.count++
	delta := t.Price - a.mean
	a.mean += delta / float64(a.count)
	a.m2 += delta * (t.Price - a.mean)
	return nil
}

func (a *accumulator) fill(w *signal.WindowAnalytics) {
	w.TradeCount = a.count
	if a.count == 0 {
		return
	}

	w.Volume = a.volume.InexactFloat64()
	w.QuoteVolume = a.quote.InexactFloat64()
	w.BuyVolume = a.buyVolume.InexactFloat64()
	w.SellVolume = a.sellVolume.InexactFloat64()
	w.BuyTrades = a.buys
	w.SellTrades = a.sells
	if !a.volume.IsZero() {
		w.VWAP = signal.Float(a.quote.Div(a.volume).InexactFloat64())
	}

	w.Open = signal.Float(a.open)
	w.Close = signal.Float(a.close)
	w.High = signal.Float(a.high)
	w.Low = signal.Float(a.low)
	w.Range = signal.Float(a.high - a.low)
	w.FirstTradeAt = a.first
	w.LastTradeAt = a.last
	w.BuySellRatio = signal.Float(float64(a.buys) / float64(a.count))

	span := a.last.Sub(a.first).Seconds()
	if span <= 0 {
		span = 1
	}
	w.TradesPerSec = float64(a.count) / span

	if a.count >= 2 {
		w.PriceChangePct = signal.Float((a.close - a.open) / a.open * 100)
		w.Volatility = signal.Float(math.Sqrt(a.m2 / float64(a.count)))
	}
}
