// Package matrix draws solid colors, rectangles and text onto a rectangular
// LED matrix made of a single serpentine strip.
//
// The strip runs down the first column, up the second, down the third and so
// on, with eight LEDs per column. The renderer does not own the pixel buffer:
// it draws into the led.LEDs it is given and hands the same buffer to a
// Flusher whenever the hardware needs to be updated.
package matrix

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"libdb.so/ledmatrix/internal/font"
	"libdb.so/ledmatrix/led"
)

// ColumnHeight is the number of LEDs in one column of the strip. Pixel
// assumes it regardless of the height the renderer was created with.
const ColumnHeight = 8

// DefaultScrollRate is the speed at which scrolling text moves left, in
// columns per millisecond.
const DefaultScrollRate = 0.01

var (
	// ErrBufferSize is returned by New if the buffer does not hold exactly
	// width*height LEDs.
	ErrBufferSize = errors.New("buffer size does not match matrix size")
	// ErrOutOfRange is returned when a drawing primitive is given a
	// coordinate outside of the matrix and the policy is PolicyError.
	ErrOutOfRange = errors.New("coordinate out of range")
	// ErrNoGlyph is returned for characters the font cannot draw.
	ErrNoGlyph = errors.New("no glyph for character")
)

// Flusher pushes the buffer to the hardware.
type Flusher interface {
	// Flush writes the current contents of leds out. It must not retain
	// leds after returning.
	Flush(leds led.LEDs) error
}

// FlusherFunc is a function that implements Flusher.
type FlusherFunc func(led.LEDs) error

// Flush calls f(leds).
func (f FlusherFunc) Flush(leds led.LEDs) error { return f(leds) }

// Option configures a Renderer.
type Option func(*Renderer)

// WithBoundsPolicy sets how rectangle drawing treats out of range
// coordinates. The default is PolicyError.
func WithBoundsPolicy(p BoundsPolicy) Option {
	return func(r *Renderer) { r.policy = p }
}

// WithClock replaces the clock used to time scrolling text.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) { r.now = now }
}

// WithScrollRate sets the scroll speed in columns per millisecond.
func WithScrollRate(columnsPerMs float64) Option {
	return func(r *Renderer) { r.scrollRate = columnsPerMs }
}

// textJob is the text drawn by every UpdateText call.
type textJob struct {
	text   Text
	glyphs []font.Glyph
	x      float64
	color  led.HSVColor
	start  time.Time
}

// Renderer draws onto a borrowed LED buffer. It is not safe for concurrent
// use; callers serialize their own drawing and flushing.
type Renderer struct {
	width  int
	height int
	leds   led.LEDs
	flush  Flusher

	policy     BoundsPolicy
	now        func() time.Time
	scrollRate float64

	scroll bool
	job    textJob
}

// New creates a renderer for a width by height matrix drawing into leds. The
// buffer must hold exactly width*height LEDs and stays owned by the caller.
func New(width, height int, leds led.LEDs, f Flusher, opts ...Option) (*Renderer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid matrix size %dx%d", width, height)
	}
	if len(leds) != width*height {
		return nil, errors.Wrapf(ErrBufferSize, "%d LEDs for a %dx%d matrix", len(leds), width, height)
	}
	if f == nil {
		return nil, errors.New("nil flusher")
	}

	r := &Renderer{
		width:      width,
		height:     height,
		leds:       leds,
		flush:      f,
		policy:     PolicyError,
		now:        time.Now,
		scrollRate: DefaultScrollRate,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.job.start = r.now()

	return r, nil
}

// Pixel maps a matrix coordinate to its index on the strip. Even columns run
// top to bottom, odd columns bottom to top, each ColumnHeight LEDs long. The
// result is not bounds checked.
func Pixel(x, y int) int {
	if x%2 == 0 {
		return 8*x + y
	}
	return 8*x + (7 - y)
}

// Pixel is the same as the package-level Pixel.
func (r *Renderer) Pixel(x, y int) int { return Pixel(x, y) }

// Width returns the number of columns.
func (r *Renderer) Width() int { return r.width }

// Height returns the number of rows.
func (r *Renderer) Height() int { return r.height }

// LEDs returns the buffer the renderer draws into.
func (r *Renderer) LEDs() led.LEDs { return r.leds }

// Policy returns the bounds policy used by rectangle drawing.
func (r *Renderer) Policy() BoundsPolicy { return r.policy }

// SetAllLedsHSV sets every LED to the given color and flushes.
func (r *Renderer) SetAllLedsHSV(hue, saturation, value uint8) error {
	return r.fill(led.HSV(hue, saturation, value).RGB())
}

// SetAllLedsRGB sets every LED to the given color and flushes.
func (r *Renderer) SetAllLedsRGB(red, green, blue uint8) error {
	return r.fill(led.RGB(red, green, blue))
}

func (r *Renderer) fill(c led.RGBColor) error {
	r.leds.Fill(c)
	if err := r.flush.Flush(r.leds); err != nil {
		return errors.Wrap(err, "failed to flush")
	}
	return nil
}

// Flush pushes the buffer to the hardware.
func (r *Renderer) Flush() error {
	return r.flush.Flush(r.leds)
}

// DrawRectangleRGB fills the w by h rectangle whose top left corner is at
// (x0, y0). Out of range cells are handled according to the bounds policy.
// The buffer is not flushed.
func (r *Renderer) DrawRectangleRGB(x0, y0, w, h int, c led.RGBColor) error {
	if r.policy == PolicyError {
		for i := 0; i < w; i++ {
			for j := 0; j < h; j++ {
				if !r.inRange(x0+i, y0+j) {
					return errors.Wrapf(ErrOutOfRange, "(%d, %d) on %dx%d matrix", x0+i, y0+j, r.width, r.height)
				}
			}
		}
	}

	for i := 0; i < w; i++ {
		for j := 0; j < h; j++ {
			r.set(x0+i, y0+j, c)
		}
	}
	return nil
}

// DrawRectangleHSV is DrawRectangleRGB for an HSV color.
func (r *Renderer) DrawRectangleHSV(x0, y0, w, h int, c led.HSVColor) error {
	return r.DrawRectangleRGB(x0, y0, w, h, c.RGB())
}

// inRange reports whether (x, y) lies on the matrix and maps into the buffer.
func (r *Renderer) inRange(x, y int) bool {
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return false
	}
	return r.leds.InBounds(Pixel(x, y))
}

// set writes one pixel, applying the bounds policy. Callers using
// PolicyError must have validated the coordinate already.
func (r *Renderer) set(x, y int, c led.RGBColor) {
	if r.policy == PolicyClamp {
		x = clamp(x, 0, r.width-1)
		y = clamp(y, 0, r.height-1)
	} else if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return
	}

	if i := Pixel(x, y); r.leds.InBounds(i) {
		r.leds.Set(i, c)
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ShowCharacterHSV draws character c with its left edge at column x, rounded
// to the nearest column. Lit font pixels get the given color, unlit ones are
// turned off. Pixels whose strip index falls outside of the buffer are
// skipped whatever the bounds policy is, so text may run off either edge.
func (r *Renderer) ShowCharacterHSV(c byte, x float64, color led.HSVColor) error {
	g, ok := font.Lookup(c)
	if !ok {
		return errors.Wrapf(ErrNoGlyph, "code %d", c)
	}
	r.drawGlyph(g, x, color)
	return nil
}

func (r *Renderer) drawGlyph(g font.Glyph, x float64, color led.HSVColor) {
	on := color.RGB()
	off := color.WithValue(0).RGB()

	base := int(math.Round(x))
	for col := 0; col < font.Width; col++ {
		for y := 0; y < r.height; y++ {
			i := Pixel(base+col, y)
			if !r.leds.InBounds(i) {
				continue
			}
			if g.Lit(col, y) {
				r.leds.Set(i, on)
			} else {
				r.leds.Set(i, off)
			}
		}
	}
}

// ShowTextHSV sets the text drawn by UpdateText. Only the first MaxTextLen
// characters of s are kept. Nothing is drawn until UpdateText is called. If
// the font cannot draw one of the kept characters, ErrNoGlyph is returned and
// the previous text stays in place.
func (r *Renderer) ShowTextHSV(s string, x float64, color led.HSVColor) error {
	text := NewText(s)

	glyphs := make([]font.Glyph, text.Len())
	for i := range glyphs {
		g, ok := font.Lookup(text.At(i))
		if !ok {
			return errors.Wrapf(ErrNoGlyph, "code %d at position %d", text.At(i), i)
		}
		glyphs[i] = g
	}

	r.job = textJob{
		text:   text,
		glyphs: glyphs,
		x:      x,
		color:  color,
		start:  r.now(),
	}
	return nil
}

// Text returns the text set by the last successful ShowTextHSV call.
func (r *Renderer) Text() Text {
	return r.job.text
}

// SetScroll turns scrolling on or off. The text's start time and position are
// left alone, so toggling while text is shown makes it jump to wherever the
// elapsed time puts it.
func (r *Renderer) SetScroll(on bool) {
	r.scroll = on
}

// Scroll reports whether scrolling is on.
func (r *Renderer) Scroll() bool {
	return r.scroll
}

// UpdateText draws the current text. Without scrolling, the characters are
// drawn over whatever the buffer holds. With scrolling, the buffer is cleared
// first and the text is moved left by the scroll rate times the milliseconds
// elapsed since ShowTextHSV. The buffer is not flushed.
func (r *Renderer) UpdateText() {
	x := r.job.x
	if r.scroll {
		r.leds.Clear()
		x -= r.ScrollOffset()
	}

	for i, g := range r.job.glyphs {
		r.drawGlyph(g, x+float64(i*font.Advance), r.job.color)
	}
}

// ScrollOffset returns how many columns scrolling text has moved since
// ShowTextHSV was called.
func (r *Renderer) ScrollOffset() float64 {
	elapsed := r.now().Sub(r.job.start)
	return float64(elapsed) / float64(time.Millisecond) * r.scrollRate
}

// TextWidth returns the number of columns the current text spans, including
// the blank column after the last character.
func (r *Renderer) TextWidth() int {
	return len(r.job.glyphs) * font.Advance
}
