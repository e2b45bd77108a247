package stream

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/sirupsen/logrus"
)

const readChunkSize = 4096

// MaxLineBytes bounds a single NDJSON line. Longer lines are skipped like
// malformed ones.
const MaxLineBytes = 16 << 20

// Reader splits an NDJSON byte stream into events. Bytes are buffered until a
// newline arrives, so a line split across reads is parsed once it is whole.
// Lines that do not decode are logged and skipped.
type Reader struct {
	src     io.Reader
	buf     []byte
	chunk   []byte
	err     error
	line    int
	skipped int
	maxLine int
	// discarding is set while the rest of an oversized line is dropped.
	discarding bool
	logger     *logrus.Entry
}

func NewReader(r io.Reader, logger *logrus.Logger) *Reader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reader{
		src:    r,
		chunk:   make([]byte, readChunkSize),
		maxLine: MaxLineBytes,
		logger:  logger.WithField("component", "stream_reader"),
	}
}

// Next returns the next well-formed event. At the end of the source it
// returns io.EOF; read errors are returned as they occur, after any events
// already buffered.
func (r *Reader) Next() (Event, error) {
	for {
		if i := bytes.IndexByte(r.buf, '\n'); i >= 0 {
			line := r.buf[:i]
			r.buf = r.buf[i+1:]
			if r.discarding {
				r.discarding = false
				continue
			}
			if len(line) > r.maxLine {
				r.skipOversized(len(line))
				continue
			}
			if ev, ok := r.parse(line); ok {
				return ev, nil
			}
			continue
		}

		if len(r.buf) > r.maxLine {
			if !r.discarding {
				r.skipOversized(len(r.buf))
				r.discarding = true
			}
			r.buf = r.buf[:0]
		}

		if r.err != nil {
			if r.discarding {
				r.buf = nil
			}
			if len(r.buf) > 0 {
				line := r.buf
				r.buf = nil
				if ev, ok := r.parse(line); ok {
					return ev, nil
				}
			}
			return Event{}, r.err
		}

		n, err := r.src.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
		}
		if err != nil {
			r.err = err
		}
	}
}

// Skipped is the number of malformed lines dropped so far.
func (r *Reader) Skipped() int {
	return r.skipped
}

func (r *Reader) skipOversized(n int) {
	r.line++
	r.skipped++
	r.logger.WithFields(logrus.Fields{
		"line":  r.line,
		"bytes": n,
		"limit": r.maxLine,
	}).Warn("Skipping oversized stream line")
}

func (r *Reader) parse(line []byte) (Event, bool) {
	r.line++
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
		r.skipped++
		r.logger.WithFields(logrus.Fields{
			"line":  r.line,
			"bytes": len(line),
			"error": err,
		}).Warn("Skipping malformed stream line")
		return Event{}, false
	}
	return ev, true
}
