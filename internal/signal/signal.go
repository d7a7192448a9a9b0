// Package signal standardizes payloads shared between ingestion, analytics and strategy layers.
package signal

import (
	"sort"
	"strconv"
	"time"
)

// Side is the aggressor side of a trade.
type Side string

const (
	// Buy means the taker bought (buyer was not the maker).
	Buy Side = "BUY"
	// Sell means the taker sold (buyer was the maker).
	Sell Side = "SELL"
)

// Trade is a single executed trade as reported by the feed. Treat it as immutable.
type Trade struct {
	Symbol       string    `json:"symbol"`
	Price        float64   `json:"price"`
	Quantity     float64   `json:"quantity"`
	TradeID      int64     `json:"trade_id"`
	Timestamp    time.Time `json:"timestamp"`
	IsBuyerMaker bool      `json:"is_buyer_maker"`
	EventTime    time.Time `json:"event_time,omitempty"`
}

// Side reports the aggressor side.
func (t Trade) Side() Side {
	if t.IsBuyerMaker {
		return Sell
	}
	return Buy
}

// Notional returns price × quantity.
func (t Trade) Notional() float64 { return t.Price * t.Quantity }

// WindowAnalytics summarizes the trades of one symbol inside [WindowStart, WindowEnd).
// Nil pointer fields mean the value is undefined for the window.
type WindowAnalytics struct {
	Symbol      string    `json:"symbol"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`

	TradeCount     int      `json:"trade_count"`
	Volume         float64  `json:"volume"`
	VWAP           *float64 `json:"vwap"`
	PriceChangePct *float64 `json:"price_change_pct"`
	High           *float64 `json:"high"`
	Low            *float64 `json:"low"`
	Volatility     *float64 `json:"volatility"`

	Open         *float64  `json:"open"`
	Close        *float64  `json:"close"`
	Range        *float64  `json:"range"`
	QuoteVolume  float64   `json:"quote_volume"`
	BuyVolume    float64   `json:"buy_volume"`
	SellVolume   float64   `json:"sell_volume"`
	BuyTrades    int       `json:"buy_trades"`
	SellTrades   int       `json:"sell_trades"`
	TradesPerSec float64   `json:"trades_per_sec"`
	BuySellRatio *float64  `json:"buy_sell_ratio"`
	FirstTradeAt time.Time `json:"first_trade_at,omitempty"`
	LastTradeAt  time.Time `json:"last_trade_at,omitempty"`
}

// Empty reports whether the window saw no trades.
func (w WindowAnalytics) Empty() bool { return w.TradeCount == 0 }

// ReferencePrice is the price a signal derived from this window is quoted at:
// the last trade price, falling back to VWAP.
func (w WindowAnalytics) ReferencePrice() float64 {
	if w.Close != nil {
		return *w.Close
	}
	if w.VWAP != nil {
		return *w.VWAP
	}
	return 0
}

// Float returns a pointer to v, for populating optional analytics fields.
func Float(v float64) *float64 { return &v }

// Type enumerates the discrete signal kinds.
type Type string

const (
	TypeBuy  Type = "BUY"
	TypeSell Type = "SELL"
	TypeHold Type = "HOLD"
)

// Signal expresses a trading decision produced by a strategy for one symbol and one window.
type Signal struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	Symbol         string            `json:"symbol"`
	Strategy       string            `json:"strategy"`
	Type           Type              `json:"signal_type"`
	ReferencePrice float64           `json:"reference_price"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Actionable is true for BUY and SELL.
func (s Signal) Actionable() bool { return s.Type == TypeBuy || s.Type == TypeSell }

// Reason returns the human readable trigger explanation, if any.
func (s Signal) Reason() string { return s.Metadata["reason"] }

// Record renders the signal as a persistence row:
// timestamp, symbol, strategy_name, signal_type, reference_price, metadata...
// Metadata cells are key=value pairs sorted by key.
func (s Signal) Record() []string {
	row := []string{
		strconv.FormatInt(s.Timestamp.UnixMilli(), 10),
		s.Symbol,
		s.Strategy,
		string(s.Type),
		strconv.FormatFloat(s.ReferencePrice, 'f', -1, 64),
	}
	keys := make([]string, 0, len(s.Metadata))
	for k := range s.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		row = append(row, k+"="+s.Metadata[k])
	}
	return row
}
