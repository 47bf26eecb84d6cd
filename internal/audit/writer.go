package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// Writer writes audit events to a destination
type Writer interface {
	// Write writes an event
	Write(event *Event) error

	// Close closes the writer
	Close() error
}

// streamWriter writes audit events as JSON lines to an io.Writer
type streamWriter struct {
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewStdoutWriter creates a writer for stdout
func NewStdoutWriter() Writer {
	return NewStreamWriter(os.Stdout)
}

// NewStreamWriter creates a writer emitting one JSON object per line to w
func NewStreamWriter(w io.Writer) Writer {
	return &streamWriter{encoder: json.NewEncoder(w)}
}

func (w *streamWriter) Write(event *Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.encoder.Encode(event)
}

// Close is a no-op; the underlying stream is owned by the caller
func (w *streamWriter) Close() error {
	return nil
}
