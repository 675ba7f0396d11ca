// Package recorder writes session transcripts in asciinema v2 format.
package recorder

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// header is the asciinema v2 file header, one JSON object on the first line.
type header struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Event is one recorded input or output chunk: [offset, type, data].
type Event struct {
	Offset float64
	Type   string // "o" for output, "i" for input
	Data   string
}

// MarshalJSON renders the event as the three-element array asciinema expects.
func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{e.Offset, e.Type, e.Data})
}

// Recorder appends transcript events to a .cast file. Safe for concurrent
// use; recording failures are reported but never fatal to the session.
type Recorder struct {
	writer    io.Writer
	file      *os.File // set only when the recorder owns the file
	startTime time.Time
	mu        sync.Mutex
}

// New creates a Recorder writing to path and emits the v2 header.
func New(path string, cols, rows int) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	r := &Recorder{writer: file, file: file, startTime: time.Now()}
	if err := r.writeHeader(cols, rows); err != nil {
		file.Close()
		return nil, err
	}
	return r, nil
}

// NewWithWriter creates a Recorder over an arbitrary writer. Used in tests.
func NewWithWriter(w io.Writer, cols, rows int) (*Recorder, error) {
	r := &Recorder{writer: w, startTime: time.Now()}
	if err := r.writeHeader(cols, rows); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) writeHeader(cols, rows int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := header{
		Version:   2,
		Width:     cols,
		Height:    rows,
		Timestamp: r.startTime.Unix(),
	}
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if _, err := r.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	return nil
}

// Output records a subprocess output chunk.
func (r *Recorder) Output(data []byte) error {
	return r.writeEvent("o", data)
}

// Input records bytes written to the subprocess.
func (r *Recorder) Input(data []byte) error {
	return r.writeEvent("i", data)
}

func (r *Recorder) writeEvent(eventType string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{
		Offset: time.Since(r.startTime).Seconds(),
		Type:   eventType,
		Data:   string(data),
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := r.writer.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return nil
}

// Close closes the transcript file if the recorder owns it.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		return r.file.Close()
	}
	return nil
}
