package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SSEEmitter writes events to an HTTP response as Server-Sent Events.
type SSEEmitter struct {
	w           http.ResponseWriter
	flusher     http.Flusher
	wroteHeader bool
}

func NewSSEEmitter(w http.ResponseWriter) *SSEEmitter {
	flusher, _ := w.(http.Flusher)
	return &SSEEmitter{w: w, flusher: flusher}
}

func (e *SSEEmitter) writeHeader(code int) {
	if e.wroteHeader {
		return
	}
	e.wroteHeader = true
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	e.w.WriteHeader(code)
}

func (e *SSEEmitter) write(ev Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.w, "data: %s\n\n", b)
	if err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

func (e *SSEEmitter) Emit(ctx context.Context, ev Event) error {
	e.writeHeader(http.StatusOK)
	return e.write(ev)
}

// Reject writes ev as the only event of a 400 response.
func (e *SSEEmitter) Reject(ctx context.Context, ev Event) error {
	e.writeHeader(http.StatusBadRequest)
	return e.write(ev)
}

// Close writes the headers if nothing was sent. The stream ends when the handler returns.
func (e *SSEEmitter) Close() error {
	e.writeHeader(http.StatusOK)
	return nil
}

// ReadSSE decodes the data lines of an event stream, calling fn for each event until r is exhausted.
func ReadSSE(r io.Reader, fn func(Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, readLimit), 2*readLimit)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var ev Event
			err := json.Unmarshal([]byte(data.String()), &ev)
			if err != nil {
				return fmt.Errorf("decoding event %q: %w", data.String(), err)
			}
			data.Reset()
			err = fn(ev)
			if err != nil {
				return err
			}
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
