// Package sink persists emitted signals to logs, files and external systems.
package sink

import (
	"context"
	"errors"
	"fmt"

	"tradepulse-go/internal/metrics"
	"tradepulse-go/internal/signal"
)

// Sink receives emitted signals. Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	Publish(ctx context.Context, s signal.Signal) error
	Close() error
}

// Multi fans every signal out to all children. A failing child does not stop the others.
type Multi struct {
	sinks []Sink
}

// NewMulti builds a fan-out sink over the non-nil children.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Name identifies the sink in logs and metrics.
func (m *Multi) Name() string { return "multi" }

// Len returns the number of children.
func (m *Multi) Len() int { return len(m.sinks) }

// Publish forwards s to every child and joins their errors.
func (m *Multi) Publish(ctx context.Context, s signal.Signal) error {
	var errs []error
	for _, child := range m.sinks {
		if err := child.Publish(ctx, s); err != nil {
			metrics.SinkErrors.WithLabelValues(child.Name()).Inc()
			errs = append(errs, fmt.Errorf("%s: %w", child.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every child and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for _, child := range m.sinks {
		if err := child.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", child.Name(), err))
		}
	}
	return errors.Join(errs...)
}
