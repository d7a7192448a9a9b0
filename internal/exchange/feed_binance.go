package exchange

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"tradepulse-go/internal/metrics"
	"tradepulse-go/internal/signal"
)

const (
	pingInterval = 15 * time.Second
	readTimeout  = 30 * time.Second
)

// ErrTooManyReconnects is returned once MaxReconnectAttempts consecutive connections failed.
var ErrTooManyReconnects = errors.New("binance feed: reconnect attempts exhausted")

func (f *Feed) runBinance(ctx context.Context, out chan<- signal.Trade) error {
	symbols := f.Symbols()
	if len(symbols) == 0 {
		return fmt.Errorf("binance feed requires at least one symbol")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, group := range chunk(symbols, f.perConn) {
		url := f.streamURL(group)
		log := f.log.With().Int("conn", i).Logger()
		g.Go(func() error {
			err := f.reconnectLoop(ctx, url, group, out)
			if err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("binance connection gave up")
			}
			return err
		})
	}
	return g.Wait()
}

func (f *Feed) streamURL(symbols []string) string {
	streams := make([]string, len(symbols))
	for i, sym := range symbols {
		streams[i] = strings.ToLower(sym) + "@trade"
	}
	return f.wsURL + "?streams=" + strings.Join(streams, "/")
}

func (f *Feed) reconnectLoop(ctx context.Context, url string, symbols []string, out chan<- signal.Trade) error {
	backoff := f.initialBackoff
	failures := 0
	for {
		connected, err := f.consumeBinanceStream(ctx, url, symbols, out)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			failures = 0
			backoff = f.initialBackoff
		}
		failures++
		if f.maxAttempts > 0 && failures > f.maxAttempts {
			return fmt.Errorf("%w: %v", ErrTooManyReconnects, err)
		}
		metrics.FeedReconnects.Inc()
		f.log.Warn().Err(err).Dur("backoff", backoff).Int("attempt", failures).Msg("binance feed disconnected, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(f.maxBackoff, time.Duration(float64(backoff)*backoffFactor))
	}
}

// consumeBinanceStream reads one connection until it fails. connected reports whether the
// handshake succeeded.
func (f *Feed) consumeBinanceStream(ctx context.Context, url string, symbols []string, out chan<- signal.Trade) (connected bool, err error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	f.log.Info().Str("provider", ProviderBinance).Strs("symbols", symbols).Msg("connected market data feed")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					f.log.Warn().Err(err).Msg("binance ping failed")
					return
				}
			case <-connCtx.Done():
				// Unblocks ReadMessage on shutdown.
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		trade, reason := parseTrade(message)
		switch reason {
		case "":
		case reasonAck:
			continue
		default:
			metrics.FeedDropped.WithLabelValues(reason).Inc()
			f.log.Debug().Str("reason", reason).Bytes("payload", truncate(message, 256)).Msg("dropped binance message")
			continue
		}

		select {
		case out <- trade:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}
}

const reasonAck = "ack"

// parseTrade decodes one combined-stream trade message. A non-empty reason means the
// message carries no trade.
func parseTrade(message []byte) (signal.Trade, string) {
	if !gjson.ValidBytes(message) {
		return signal.Trade{}, "invalid_json"
	}
	root := gjson.ParseBytes(message)
	data := root.Get("data")
	if !data.Exists() {
		if root.Get("result").Exists() || root.Get("id").Exists() {
			return signal.Trade{}, reasonAck
		}
		return signal.Trade{}, "no_data"
	}
	if e := data.Get("e"); e.Exists() && e.String() != "trade" {
		return signal.Trade{}, "unexpected_event"
	}

	symbol := data.Get("s").String()
	if symbol == "" {
		symbol = parseBinanceSymbol(root.Get("stream").String())
	}
	if symbol == "" {
		return signal.Trade{}, "no_symbol"
	}
	price, err := strconv.ParseFloat(data.Get("p").String(), 64)
	if err != nil {
		return signal.Trade{}, "bad_price"
	}
	qty, err := strconv.ParseFloat(data.Get("q").String(), 64)
	if err != nil {
		return signal.Trade{}, "bad_quantity"
	}
	tradeTime := data.Get("T")
	if !tradeTime.Exists() {
		return signal.Trade{}, "no_timestamp"
	}

	trade := signal.Trade{
		Symbol:       strings.ToUpper(symbol),
		Price:        price,
		Quantity:     qty,
		TradeID:      data.Get("t").Int(),
		Timestamp:    time.UnixMilli(tradeTime.Int()),
		IsBuyerMaker: data.Get("m").Bool(),
	}
	if ev := data.Get("E"); ev.Exists() {
		trade.EventTime = time.UnixMilli(ev.Int())
	}
	return trade, ""
}

func parseBinanceSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
