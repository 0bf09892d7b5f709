// Package input provides non-blocking keyboard acquisition. It places
// the controlling terminal into raw mode and forwards single keystrokes
// over a bounded channel, dropping input when the consumer lags.
package input

import (
	"context"
	"io"
	"log/slog"

	"github.com/sdrtools/heatwave/internal/control"
)

const keyBufferSize = 16

// Reader forwards raw keystrokes from a byte stream.
type Reader struct {
	src    io.Reader
	keys   chan control.Key
	logger *slog.Logger
}

// WithLogger sets the logger. If this option is not provided, logging
// is disabled.
func WithLogger(logger *slog.Logger) func(*Reader) {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader creates a Reader over src. Call Run to start forwarding.
func NewReader(src io.Reader, options ...func(*Reader)) *Reader {
	r := &Reader{
		src:    src,
		keys:   make(chan control.Key, keyBufferSize),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Keys returns the keystroke channel. It is closed when Run returns.
func (r *Reader) Keys() <-chan control.Key { return r.keys }

// Run reads keystrokes until ctx is cancelled or the stream ends.
// Reads on a terminal block, so cancellation takes effect on the next
// keystroke; the caller should restore the terminal regardless.
func (r *Reader) Run(ctx context.Context) {
	defer close(r.keys)

	buf := make([]byte, 1)
	for {
		n, err := r.src.Read(buf)
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				r.logger.Error("keyboard read failed", "error", err)
			}
			return
		}
		if n == 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case r.keys <- control.Key(buf[0]):
		default:
			// consumer is behind, drop the keystroke
		}
	}
}
