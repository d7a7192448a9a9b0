package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradepulse-go/internal/signal"
)

func TestFeedRunEmitsTrades(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewFeed(ProviderStub, []string{"btcusdt", "ETHUSDT", "BTCUSDT "}, zerolog.Nop(),
		WithStubInterval(5*time.Millisecond), WithSeed(7))
	trades := make(chan signal.Trade, 8)

	go func() {
		_ = feed.Run(ctx, trades)
	}()

	lastID := map[string]int64{}
	for range 6 {
		select {
		case tr := <-trades:
			if tr.Symbol != "BTCUSDT" && tr.Symbol != "ETHUSDT" {
				t.Fatalf("unexpected symbol %s", tr.Symbol)
			}
			if tr.TradeID <= lastID[tr.Symbol] {
				t.Fatalf("trade ids must increase: %d after %d", tr.TradeID, lastID[tr.Symbol])
			}
			lastID[tr.Symbol] = tr.TradeID
			if tr.Price <= 0 || tr.Quantity <= 0 {
				t.Fatalf("expected positive price and quantity: %+v", tr)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for trade")
		}
	}
}

func TestChunkSymbols(t *testing.T) {
	got := chunk([]string{"A", "B", "C", "D", "E"}, 2)
	if len(got) != 3 || len(got[2]) != 1 || got[2][0] != "E" {
		t.Fatalf("unexpected chunks %v", got)
	}
	if chunk(nil, 20) != nil {
		t.Fatalf("expected no chunks for no symbols")
	}
}

func TestStreamURL(t *testing.T) {
	feed := NewFeed(ProviderBinance, nil, zerolog.Nop())
	got := feed.streamURL([]string{"BTCUSDT", "ETHUSDT"})
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@trade/ethusdt@trade"
	if got != want {
		t.Fatalf("expected %s got %s", want, got)
	}
}

func TestParseBinanceSymbol(t *testing.T) {
	cases := map[string]string{
		"btcusdt@trade":    "BTCUSDT",
		"ethusdt@aggTrade": "ETHUSDT",
		"dogeusdt":         "DOGEUSDT",
		"":                 "",
	}
	for stream, expected := range cases {
		if got := parseBinanceSymbol(stream); got != expected {
			t.Fatalf("expected %s got %s", expected, got)
		}
	}
}

const tradeMsg = `{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000123,"s":"BTCUSDT","t":42,"p":"37000.50","q":"0.015","T":1700000000120,"m":true}}`

func TestParseTrade(t *testing.T) {
	tr, reason := parseTrade([]byte(tradeMsg))
	if reason != "" {
		t.Fatalf("unexpected reason %q", reason)
	}
	if tr.Symbol != "BTCUSDT" || tr.TradeID != 42 || tr.Price != 37000.50 || tr.Quantity != 0.015 {
		t.Fatalf("unexpected trade %+v", tr)
	}
	if !tr.IsBuyerMaker || tr.Side() != signal.Sell {
		t.Fatalf("buyer-maker trade must be a sell")
	}
	if tr.Timestamp.UnixMilli() != 1700000000120 || tr.EventTime.UnixMilli() != 1700000000123 {
		t.Fatalf("unexpected timestamps %v %v", tr.Timestamp, tr.EventTime)
	}

	for _, tc := range []struct{ msg, reason string }{
		{msg: `{"result":null,"id":1}`, reason: reasonAck},
		{msg: `not json`, reason: "invalid_json"},
		{msg: `{"stream":"x"}`, reason: "no_data"},
		{msg: `{"data":{"e":"aggTrade","s":"BTCUSDT"}}`, reason: "unexpected_event"},
		{msg: `{"data":{"s":"BTCUSDT","p":"abc","q":"1","T":1}}`, reason: "bad_price"},
		{msg: `{"data":{"s":"BTCUSDT","p":"1","q":"","T":1}}`, reason: "bad_quantity"},
		{msg: `{"data":{"s":"BTCUSDT","p":"1","q":"1"}}`, reason: "no_timestamp"},
		{msg: `{"stream":"ethusdt@trade","data":{"p":"1","q":"1","T":1}}`, reason: ""},
	} {
		if _, got := parseTrade([]byte(tc.msg)); got != tc.reason {
			t.Fatalf("%s: expected reason %q got %q", tc.msg, tc.reason, got)
		}
	}
}

func TestBinanceFeedStreamsTrades(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var streams atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streams.Store(r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{`{"result":null,"id":1}`, `garbage`, tradeMsg} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(),
		WithURL("ws"+strings.TrimPrefix(server.URL, "http")+"/stream"))

	trades := make(chan signal.Trade, 1)
	errCh := make(chan error, 1)
	go func() { errCh <- feed.Run(ctx, trades) }()

	select {
	case tr := <-trades:
		if tr.Symbol != "BTCUSDT" || tr.TradeID != 42 {
			t.Fatalf("unexpected trade %+v", tr)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for trade")
	}
	if got := streams.Load(); got != "btcusdt@trade" {
		t.Fatalf("unexpected streams query %v", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop after cancel")
	}
}

func TestBinanceFeedGivesUp(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	feed := NewFeed(ProviderBinance, []string{"BTCUSDT"}, zerolog.Nop(),
		WithURL("ws"+strings.TrimPrefix(server.URL, "http")),
		WithBackoff(time.Millisecond, 2*time.Millisecond),
		WithMaxReconnectAttempts(2),
	)
	err := feed.Run(context.Background(), make(chan signal.Trade))
	if !errors.Is(err, ErrTooManyReconnects) {
		t.Fatalf("expected ErrTooManyReconnects, got %v", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("expected 3 connection attempts, got %d", hits.Load())
	}
}

func TestBinanceFeedRequiresSymbols(t *testing.T) {
	feed := NewFeed(ProviderBinance, nil, zerolog.Nop())
	if err := feed.Run(context.Background(), make(chan signal.Trade)); err == nil {
		t.Fatalf("expected error without symbols")
	}
}
