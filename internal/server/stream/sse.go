package stream

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter frames records as server-sent events over an HTTP response.
// Opening the writer commits the status line, so everything after that is
// reported in-band.
type SSEWriter struct {
	w  http.ResponseWriter
	fl http.Flusher
}

// NewSSEWriter sets the event-stream headers, commits the response and
// returns a sink that flushes each record to the client as it is written.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	return &SSEWriter{w: w, fl: fl}, nil
}

// WriteEvent sends one record framed as `data: <json>`.
func (s *SSEWriter) WriteEvent(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal stream record: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("failed to write stream record: %w", err)
	}
	s.fl.Flush()
	return nil
}
