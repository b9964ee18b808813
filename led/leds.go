// Package led contains the pixel buffer and color types shared by the
// renderer and the output sinks.
package led

import "unsafe"

// LEDs describes a strip of LEDs. It is a preallocated slice of RGBColor.
type LEDs []RGBColor

// NewLEDs creates a new strip of LEDs. Colors are initialized to black
// (off).
func NewLEDs(numLEDs int) LEDs {
	return make(LEDs, numLEDs)
}

// AsPixels returns the LED strip as a slice of uint8 values. Each LED is
// represented by three values, one for each color channel. The returned slice
// aliases the strip.
func (l LEDs) AsPixels() []uint8 {
	if len(l) == 0 {
		return nil
	}
	return unsafe.Slice((*uint8)(unsafe.Pointer(&l[0])), 3*len(l))
}

// InBounds reports whether i is a valid index into the strip.
func (l LEDs) InBounds(i int) bool {
	return i >= 0 && i < len(l)
}

// Set sets the color of the LED at the given index.
func (l LEDs) Set(i int, c RGBColor) {
	l[i] = c
}

// SetRange sets the color of the LEDs in the given range.
func (l LEDs) SetRange(start, end int, c RGBColor) {
	for i := start; i < end; i++ {
		l[i] = c
	}
}

// Fill sets every LED to the given color.
func (l LEDs) Fill(c RGBColor) {
	l.SetRange(0, len(l), c)
}

// Clear turns every LED off. It does not push anything to the hardware.
func (l LEDs) Clear() {
	l.Fill(RGBColor{})
}
