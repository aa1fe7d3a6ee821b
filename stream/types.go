package stream

import (
	"context"
	"fmt"
)

// chunkSize is the largest read from a child's output, and so the largest text carried by one event.
const chunkSize = 8192

// readLimit bounds a single WebSocket message on the client side.
// Even with every byte JSON-escaped as \u00XX, a chunk fits.
const readLimit = 65536

// Event is one message sent to the client.
type Event struct {
	Text string `json:"text"`
}

func exitEvent(code int) Event {
	return Event{Text: fmt.Sprintf("\n[Process exited with code %d]", code)}
}

func spawnErrorEvent(err error) Event {
	return Event{Text: fmt.Sprintf("\n[Error] Failed to start process: %s", err)}
}

func rejectEvent(err error) Event {
	return Event{Text: fmt.Sprintf("[Error] %s", err)}
}

// Emitter is the single point where a session's events leave the server.
// A session never calls Emit concurrently.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
	Close() error
}

// rejecter is implemented by emitters that can report a client error before any output is sent.
type rejecter interface {
	Reject(ctx context.Context, ev Event) error
}
