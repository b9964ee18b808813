package led

import (
	"encoding"
	"fmt"

	"github.com/pkg/errors"
)

// RGBColor is a color with red, green and blue channels, in that order.
type RGBColor [3]uint8

var (
	_ encoding.TextUnmarshaler = (*RGBColor)(nil)
	_ encoding.TextMarshaler   = RGBColor{}
)

// RGB creates a new RGBColor.
func RGB(r, g, b uint8) RGBColor {
	return RGBColor{r, g, b}
}

// R returns the red channel.
func (c RGBColor) R() uint8 { return c[0] }

// G returns the green channel.
func (c RGBColor) G() uint8 { return c[1] }

// B returns the blue channel.
func (c RGBColor) B() uint8 { return c[2] }

// String formats the color as #rrggbb.
func (c RGBColor) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// MarshalText implements encoding.TextMarshaler.
func (c RGBColor) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses a color in the #rrggbb format.
func (c *RGBColor) UnmarshalText(text []byte) error {
	if len(text) != 7 || text[0] != '#' {
		return fmt.Errorf("invalid color %q: expected #rrggbb", text)
	}
	var r, g, b uint8
	if _, err := fmt.Sscanf(string(text), "#%02x%02x%02x", &r, &g, &b); err != nil {
		return errors.Wrapf(err, "invalid color %q", text)
	}
	*c = RGBColor{r, g, b}
	return nil
}

// HSVColor is a color in hue, saturation and value. All three channels span
// the full 0-255 range, so a hue of 255 is just short of wrapping back to red.
type HSVColor struct {
	H uint8 `toml:"h" yaml:"h"`
	S uint8 `toml:"s" yaml:"s"`
	V uint8 `toml:"v" yaml:"v"`
}

// HSV creates a new HSVColor.
func HSV(h, s, v uint8) HSVColor {
	return HSVColor{H: h, S: s, V: v}
}

// WithValue returns a copy of the color with the value replaced.
func (c HSVColor) WithValue(v uint8) HSVColor {
	c.V = v
	return c
}

// RGB converts the color using the "rainbow" hue mapping common to WS2812
// drivers: yellow gets a wider band than a plain spectrum would give it, and
// the eight hue sections are each 32 steps wide.
func (c HSVColor) RGB() RGBColor {
	offset8 := (c.H & 0x1F) << 3 // 0..248
	third := scale8(offset8, 256/3)

	var r, g, b uint8
	switch c.H >> 5 {
	case 0: // red -> orange
		r, g, b = 255-third, third, 0
	case 1: // orange -> yellow
		r, g, b = 171, 85+third, 0
	case 2: // yellow -> green
		twothirds := scale8(offset8, (256*2)/3)
		r, g, b = 171-twothirds, 170+third, 0
	case 3: // green -> aqua
		r, g, b = 0, 255-third, third
	case 4: // aqua -> blue
		twothirds := scale8(offset8, (256*2)/3)
		r, g, b = 0, 171-twothirds, 85+twothirds
	case 5: // blue -> purple
		r, g, b = third, 0, 255-third
	case 6: // purple -> pink
		r, g, b = 85+third, 0, 171-third
	case 7: // pink -> red
		r, g, b = 170+third, 0, 85-third
	}

	if c.S != 255 {
		if c.S == 0 {
			r, g, b = 255, 255, 255
		} else {
			desat := scale8Video(255-c.S, 255-c.S)
			satscale := 255 - desat
			r = scale8(r, satscale) + desat
			g = scale8(g, satscale) + desat
			b = scale8(b, satscale) + desat
		}
	}

	if c.V != 255 {
		v := scale8Video(c.V, c.V)
		if v == 0 {
			return RGBColor{}
		}
		r = scale8(r, v)
		g = scale8(g, v)
		b = scale8(b, v)
	}

	return RGBColor{r, g, b}
}

func scale8(i, scale uint8) uint8 {
	return uint8((uint16(i) * (1 + uint16(scale))) >> 8)
}

// scale8Video never scales a non-zero value down to zero.
func scale8Video(i, scale uint8) uint8 {
	j := uint8((uint16(i) * uint16(scale)) >> 8)
	if i != 0 && scale != 0 {
		j++
	}
	return j
}
