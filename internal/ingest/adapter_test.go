package ingest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradepulse-go/internal/signal"
	"tradepulse-go/internal/store"
)

var ts = time.UnixMilli(1_700_000_000_000)

func newAdapter(t *testing.T) (*Adapter, *store.TradeStore) {
	t.Helper()
	s, err := store.New([]string{"BTCUSDT", "ETHUSDT"}, store.WithCapacity(16))
	require.NoError(t, err)
	return NewAdapter(s, zerolog.Nop()), s
}

func trade(symbol string, id int64, price float64) signal.Trade {
	return signal.Trade{Symbol: symbol, TradeID: id, Price: price, Quantity: 1, Timestamp: ts.Add(time.Duration(id) * time.Millisecond)}
}

func TestSubmitNormalizesSymbol(t *testing.T) {
	a, s := newAdapter(t)
	require.NoError(t, a.Submit(trade(" btcusdt ", 1, 100)))
	require.Equal(t, 1, s.Len("BTCUSDT"))
	got := s.Snapshot("BTCUSDT")
	require.Len(t, got, 1)
	assert.Equal(t, "BTCUSDT", got[0].Symbol)
}

func TestSubmitRejectsMalformed(t *testing.T) {
	a, s := newAdapter(t)
	for name, tr := range map[string]signal.Trade{
		"empty symbol": trade("  ", 1, 100),
		"nan price":    trade("BTCUSDT", 1, math.NaN()),
		"zero price":   trade("BTCUSDT", 1, 0),
		"negative qty": {Symbol: "BTCUSDT", Price: 1, Quantity: -2, Timestamp: ts},
		"inf qty":      {Symbol: "BTCUSDT", Price: 1, Quantity: math.Inf(1), Timestamp: ts},
		"no timestamp": {Symbol: "BTCUSDT", Price: 1, Quantity: 1},
	} {
		assert.ErrorIs(t, a.Submit(tr), ErrMalformedTrade, name)
	}
	assert.Zero(t, s.Len("BTCUSDT"))
	assert.Equal(t, uint64(6), a.Stats().Malformed)
}

func TestSubmitDropsDuplicateAndStaleIDs(t *testing.T) {
	a, s := newAdapter(t)
	require.NoError(t, a.Submit(trade("BTCUSDT", 10, 100)))
	assert.ErrorIs(t, a.Submit(trade("BTCUSDT", 10, 100)), ErrDuplicateTrade)
	assert.ErrorIs(t, a.Submit(trade("BTCUSDT", 9, 100)), ErrDuplicateTrade)
	require.NoError(t, a.Submit(trade("BTCUSDT", 11, 101)))
	// IDs are tracked per symbol.
	require.NoError(t, a.Submit(trade("ETHUSDT", 1, 10)))
	// Zero IDs are not checked.
	require.NoError(t, a.Submit(trade("ETHUSDT", 0, 10)))

	assert.Equal(t, 2, s.Len("BTCUSDT"))
	assert.Equal(t, Stats{Accepted: 4, Duplicate: 2}, a.Stats())
}

func TestSubmitPropagatesStoreRejection(t *testing.T) {
	a, _ := newAdapter(t)
	err := a.Submit(trade("DOGEUSDT", 1, 0.1))
	assert.True(t, errors.Is(err, store.ErrUnknownSymbol))
	assert.Equal(t, uint64(1), a.Stats().Rejected)
}

func TestRunDrainsUntilClosed(t *testing.T) {
	a, s := newAdapter(t)
	in := make(chan signal.Trade, 4)
	in <- trade("BTCUSDT", 1, 100)
	in <- trade("BTCUSDT", 1, 100)
	in <- trade("ethusdt", 2, 10)
	close(in)

	require.NoError(t, a.Run(context.Background(), in))
	assert.Equal(t, 1, s.Len("BTCUSDT"))
	assert.Equal(t, 1, s.Len("ETHUSDT"))
	assert.Equal(t, uint64(1), a.Stats().Duplicate)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, _ := newAdapter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, a.Run(ctx, make(chan signal.Trade)), context.Canceled)
}

// blockingAppender parks appends for one symbol until release is closed.
type blockingAppender struct {
	symbol  string
	entered chan struct{}
	release chan struct{}

	mu  sync.Mutex
	got []string
}

func (b *blockingAppender) Append(t signal.Trade) error {
	if t.Symbol == b.symbol {
		close(b.entered)
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, t.Symbol)
	return nil
}

func TestSubmitDoesNotBlockOtherSymbols(t *testing.T) {
	app := &blockingAppender{symbol: "ETHUSDT", entered: make(chan struct{}), release: make(chan struct{})}
	a := NewAdapter(app, zerolog.Nop())

	ethDone := make(chan error, 1)
	go func() { ethDone <- a.Submit(trade("ETHUSDT", 1, 10)) }()
	<-app.entered

	btcDone := make(chan error, 1)
	go func() { btcDone <- a.Submit(trade("BTCUSDT", 1, 100)) }()
	select {
	case err := <-btcDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("BTCUSDT submit waited on the ETHUSDT append")
	}

	close(app.release)
	require.NoError(t, <-ethDone)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, app.got)
	assert.Equal(t, uint64(2), a.Stats().Accepted)
}
