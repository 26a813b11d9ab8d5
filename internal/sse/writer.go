// Package sse writes and reads text/event-stream records of the form
// "data: <json>\n\n".
package sse

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/velinussage/pfp-animate/internal/domain"
)

// StreamError reports a failure writing to an open stream. The peer is
// usually gone, so it is logged rather than reported.
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("sse: %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() []error {
	return []error{domain.ErrStream, e.Err}
}

// Writer sends records over an http.ResponseWriter, flushing after each one.
type Writer struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewWriter prepares w for streaming: it sets the event-stream headers,
// clears the server write deadline and sends the status line.
func NewWriter(w http.ResponseWriter) *Writer {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	// Not every writer supports deadlines; the run timeout still bounds the stream.
	_ = rc.SetWriteDeadline(time.Time{})
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()
	return &Writer{w: w, rc: rc}
}

// Send marshals v and writes it as one record.
func (s *Writer) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return &StreamError{Op: "encode", Err: err}
	}
	return s.SendRaw(payload)
}

// SendRaw writes payload as one record. payload must not contain newlines.
func (s *Writer) SendRaw(payload []byte) error {
	buf := make([]byte, 0, len(payload)+8)
	buf = append(buf, "data: "...)
	buf = append(buf, payload...)
	buf = append(buf, '\n', '\n')
	if _, err := s.w.Write(buf); err != nil {
		return &StreamError{Op: "write", Err: err}
	}
	if err := s.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return &StreamError{Op: "flush", Err: err}
	}
	return nil
}
