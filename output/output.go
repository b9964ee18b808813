// Package output contains the sinks a rendered frame can be flushed to.
//
// Every sink implements matrix.Flusher and io.Closer.
package output

import (
	"io"

	"github.com/pkg/errors"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/matrix"
)

// Sink is a matrix.Flusher that holds resources.
type Sink interface {
	matrix.Flusher
	io.Closer
}

// Multi flushes to every sink in order.
type Multi []Sink

var _ Sink = Multi(nil)

// Flush flushes leds to every sink, even if an earlier one fails. The first
// error is returned.
func (m Multi) Flush(leds led.LEDs) error {
	var firstErr error
	for _, s := range m {
		if err := s.Flush(leds); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink. The first error is returned.
func (m Multi) Close() error {
	var firstErr error
	for _, s := range m {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "failed to close sink")
		}
	}
	return firstErr
}
