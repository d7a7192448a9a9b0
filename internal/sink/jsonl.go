package sink

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"tradepulse-go/internal/signal"
)

var errClosed = errors.New("sink closed")

// JSONLRecorder appends signals as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{
		file: file,
		enc:  json.NewEncoder(file),
	}, nil
}

func (r *JSONLRecorder) Name() string { return "jsonl" }

// Publish writes a single signal to the underlying JSONL file.
func (r *JSONLRecorder) Publish(_ context.Context, s signal.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return errClosed
	}
	return r.enc.Encode(s)
}

// Close closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
