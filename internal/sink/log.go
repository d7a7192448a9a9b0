package sink

import (
	"context"

	"github.com/rs/zerolog"

	"tradepulse-go/internal/signal"
)

// LogSink writes each signal as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a sink writing to log.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "signals").Logger()}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Publish(_ context.Context, s signal.Signal) error {
	evt := l.log.Info()
	if !s.Actionable() {
		evt = l.log.Debug()
	}
	meta := zerolog.Dict()
	for k, v := range s.Metadata {
		meta = meta.Str(k, v)
	}
	evt.Str("id", s.ID).
		Str("symbol", s.Symbol).
		Str("strategy", s.Strategy).
		Str("type", string(s.Type)).
		Float64("price", s.ReferencePrice).
		Time("window_end", s.Timestamp).
		Dict("metadata", meta).
		Msg("new signal")
	return nil
}

func (l *LogSink) Close() error { return nil }
