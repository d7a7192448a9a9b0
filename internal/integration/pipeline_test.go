package integration

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tradepulse-go/internal/analytics"
	"tradepulse-go/internal/exchange"
	"tradepulse-go/internal/ingest"
	sig "tradepulse-go/internal/signal"
	"tradepulse-go/internal/sink"
	"tradepulse-go/internal/store"
	"tradepulse-go/internal/strategy"
)

// manualClock lets a test step the analytics scheduler through windows.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func TestCrossoverFlowReachesSinks(t *testing.T) {
	ctx := context.Background()
	base := time.UnixMilli(1_700_000_000_000)
	clock := &manualClock{now: base}

	trades, err := store.New([]string{"BTCUSDT"}, store.WithCapacity(100))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	adapter := ingest.NewAdapter(trades, zerolog.Nop())

	dir := t.TempDir()
	csvSink, err := sink.NewCSVSink(dir)
	if err != nil {
		t.Fatalf("NewCSVSink: %v", err)
	}
	ledger := sink.NewLedger(16)
	var buf bytes.Buffer
	out := sink.NewMulti(ledger, csvSink, sink.NewLogSink(zerolog.New(&buf)))

	engine := strategy.NewEngine(out, zerolog.Nop())
	ma, err := strategy.NewMACrossover("", 2, 3)
	if err != nil {
		t.Fatalf("NewMACrossover: %v", err)
	}
	if err := engine.Register(ma); err != nil {
		t.Fatalf("Register: %v", err)
	}

	scheduler, err := analytics.NewScheduler(trades, engine, zerolog.Nop(),
		analytics.WithWindow(30*time.Second), analytics.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	for i, px := range []float64{10, 10, 10, 12, 12, 6} {
		start := base.Add(time.Duration(i) * 30 * time.Second)
		tr := sig.Trade{Symbol: "btcusdt", Price: px, Quantity: 1, TradeID: int64(i + 1), Timestamp: start.Add(time.Second)}
		if err := adapter.Submit(tr); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		if err := adapter.Submit(tr); !errors.Is(err, ingest.ErrDuplicateTrade) {
			t.Fatalf("expected replayed trade to be dropped, got %v", err)
		}
		clock.Set(start.Add(30 * time.Second))
		scheduler.Tick(ctx)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := ledger.Snapshot()
	if len(got) != 2 || got[0].Type != sig.TypeBuy || got[1].Type != sig.TypeSell {
		t.Fatalf("expected BUY then SELL, got %+v", got)
	}
	if got[0].ReferencePrice != 12 || got[1].ReferencePrice != 6 {
		t.Fatalf("unexpected reference prices %.2f %.2f", got[0].ReferencePrice, got[1].ReferencePrice)
	}
	if stats := engine.Stats()["ma_crossover"]; stats.Total != 6 || stats.Hold != 4 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	f, err := os.Open(csvSink.Path("BTCUSDT"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 || rows[1][3] != "BUY" || rows[2][3] != "SELL" {
		t.Fatalf("unexpected csv rows %v", rows)
	}
	if !strings.Contains(buf.String(), "new signal") {
		t.Fatalf("expected signal log line, got %s", buf.String())
	}
}

func TestStubFeedDrivesPipeline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	symbols := []string{"BTCUSDT", "ETHUSDT"}
	trades, err := store.New(symbols, store.WithCapacity(500))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	adapter := ingest.NewAdapter(trades, zerolog.Nop())
	ledger := sink.NewLedger(64)
	engine := strategy.NewEngine(ledger, zerolog.Nop(), strategy.WithForwardHold(true))
	for _, kind := range []string{strategy.KindMomentum, strategy.KindFlowImbalance} {
		s, err := strategy.Build("", kind, strategy.Params{})
		if err != nil {
			t.Fatalf("Build %s: %v", kind, err)
		}
		if err := engine.Register(s); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	scheduler, err := analytics.NewScheduler(trades, engine, zerolog.Nop(),
		analytics.WithWindow(time.Second), analytics.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	feed := exchange.NewFeed(exchange.ProviderStub, symbols, zerolog.Nop(),
		exchange.WithStubInterval(5*time.Millisecond), exchange.WithSeed(1))
	feedCh := make(chan sig.Trade, 64)
	go func() { _ = feed.Run(ctx, feedCh) }()
	go func() { _ = adapter.Run(ctx, feedCh) }()
	go func() { _ = scheduler.Run(ctx) }()

	for {
		if snap := ledger.Snapshot(); len(snap) >= 4 {
			for _, s := range snap {
				if s.Symbol != "BTCUSDT" && s.Symbol != "ETHUSDT" {
					t.Fatalf("unexpected symbol %s", s.Symbol)
				}
				if s.ID == "" || s.Reason() == "" {
					t.Fatalf("signal missing id or reason: %+v", s)
				}
			}
			if adapter.Stats().Accepted == 0 || adapter.Stats().Duplicate != 0 {
				t.Fatalf("unexpected adapter stats %+v", adapter.Stats())
			}
			return
		}
		select {
		case <-ctx.Done():
			t.Fatalf("timed out waiting for signals")
		case <-time.After(20 * time.Millisecond):
		}
	}
}
