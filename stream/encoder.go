package stream

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrClosed      = errors.New("stream already terminated")
	ErrDuplicate   = errors.New("event already emitted in this run")
	ErrOutOfOrder  = errors.New("event emitted out of stage order")
	ErrNotAllowed  = errors.New("event type not allowed on this stream")
	ErrUnknownType = errors.New("unknown event type")
)

// Encoder writes NDJSON events and flushes after each line when the writer
// supports it. It enforces the stream contract: every non-status type at
// most once, data events in stage order, nothing after a terminal event.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	allowed map[EventType]bool
	seen    map[EventType]bool
	rank    int
	closed  bool
}

type EncoderOption func(*Encoder)

// WithAllowed restricts the stream to the given event types.
func WithAllowed(types ...EventType) EncoderOption {
	return func(e *Encoder) {
		e.allowed = make(map[EventType]bool, len(types))
		for _, t := range types {
			e.allowed[t] = true
		}
	}
}

func NewEncoder(w io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		w:    w,
		seen: make(map[EventType]bool),
	}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encoder) Emit(t EventType, data any) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return errors.Wrapf(ErrClosed, "emit %s", t)
	}
	if t != EventStatus && t.rank() == 0 {
		return errors.Wrapf(ErrUnknownType, "emit %q", t)
	}
	if e.allowed != nil && !e.allowed[t] {
		return errors.Wrapf(ErrNotAllowed, "emit %s", t)
	}
	if t != EventStatus {
		if e.seen[t] {
			return errors.Wrapf(ErrDuplicate, "emit %s", t)
		}
		if t.rank() < e.rank {
			return errors.Wrapf(ErrOutOfOrder, "emit %s", t)
		}
	}

	line, err := encodeLine(t, data)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(line); err != nil {
		return errors.Wrapf(err, "write %s event", t)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}

	if t != EventStatus {
		e.seen[t] = true
		e.rank = t.rank()
	}
	if t.IsTerminal() {
		e.closed = true
	}
	return nil
}

func (e *Encoder) Status(message string) error {
	return e.Emit(EventStatus, message)
}

// Closed reports whether a terminal event has been written.
func (e *Encoder) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func encodeLine(t EventType, data any) ([]byte, error) {
	ev := Event{Type: t}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, errors.Wrapf(err, "marshal %s event", t)
		}
		ev.Data = raw
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s event", t)
	}
	return append(line, '\n'), nil
}
