package sink

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"tradepulse-go/internal/signal"
)

var csvHeader = []string{"timestamp", "symbol", "strategy_name", "signal_type", "reference_price", "metadata"}

// CSVSink appends signals to one CSV file per symbol: <dir>/<SYMBOL>_signals.csv.
type CSVSink struct {
	dir string

	mu     sync.Mutex
	files  map[string]*csvFile
	closed bool
}

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// NewCSVSink creates dir if needed. Files are opened lazily per symbol.
func NewCSVSink(dir string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &CSVSink{dir: dir, files: make(map[string]*csvFile)}, nil
}

func (c *CSVSink) Name() string { return "csv" }

// Path returns the file signals for symbol are written to.
func (c *CSVSink) Path(symbol string) string {
	return filepath.Join(c.dir, symbol+"_signals.csv")
}

// Publish appends one row and flushes it.
func (c *CSVSink) Publish(_ context.Context, s signal.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	cf, err := c.open(s.Symbol)
	if err != nil {
		return err
	}
	// Metadata trails the fixed columns as one key=value cell per entry.
	if err := cf.w.Write(s.Record()); err != nil {
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

func (c *CSVSink) open(symbol string) (*csvFile, error) {
	if cf, ok := c.files[symbol]; ok {
		return cf, nil
	}
	if symbol == "" || strings.ContainsAny(symbol, `/\`) {
		return nil, fmt.Errorf("csv sink: invalid symbol %q", symbol)
	}
	f, err := os.OpenFile(c.Path(symbol), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	cf := &csvFile{f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := cf.w.Write(csvHeader); err != nil {
			f.Close()
			return nil, err
		}
		cf.w.Flush()
	}
	c.files[symbol] = cf
	return cf, nil
}

// Close flushes and closes every open file.
func (c *CSVSink) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	var firstErr error
	for symbol, cf := range c.files {
		cf.w.Flush()
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close %s: %w", symbol, err)
		}
	}
	clear(c.files)
	return firstErr
}
