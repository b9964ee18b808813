package output

import (
	"fmt"
	"log/slog"

	"libdb.so/ledmatrix/led"
)

// Log logs a compact summary of every frame instead of showing it. It stands
// in for the hardware when none is attached.
type Log struct {
	Logger *slog.Logger
	Frames int
}

var _ Sink = (*Log)(nil)

// Flush logs the first LED and the average color of the frame.
func (l *Log) Flush(leds led.LEDs) error {
	l.Frames++

	var r, g, b, lit int
	for _, c := range leds {
		r += int(c.R())
		g += int(c.G())
		b += int(c.B())
		if c != (led.RGBColor{}) {
			lit++
		}
	}
	n := len(leds)
	if n == 0 {
		n = 1
	}

	var first led.RGBColor
	if len(leds) > 0 {
		first = leds[0]
	}

	l.Logger.Debug(
		"frame",
		"n", l.Frames,
		"lit", lit,
		"avg", fmt.Sprintf("(%d,%d,%d)", r/n, g/n, b/n),
		"first", first)
	return nil
}

// Close does nothing.
func (l *Log) Close() error { return nil }
