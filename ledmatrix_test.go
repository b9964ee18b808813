package ledmatrix

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/ledserial"
	"libdb.so/ledmatrix/matrix"
	"libdb.so/ledmatrix/output"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSink struct {
	frames []led.LEDs
	closed bool
	err    error
}

func (s *recordingSink) Flush(leds led.LEDs) error {
	if s.err != nil {
		return s.err
	}
	frame := make(led.LEDs, len(leds))
	copy(frame, leds)
	s.frames = append(s.frames, frame)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return nil
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Rate = 200
	cfg.Matrix.Width = 4
	cfg.Matrix.Height = 8
	return &cfg
}

func newTestDaemon(t *testing.T, cfg *Config) *Daemon {
	d, err := NewDaemon(cfg, discard)
	require.NoError(t, err)
	return d
}

func driveFor(t *testing.T, d *Daemon, sink *recordingSink, dt time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), dt)
	t.Cleanup(cancel)
	return d.drive(ctx, sink)
}

func TestDaemonDrawsScene(t *testing.T) {
	bg := led.RGB(0, 0, 16)
	red := led.RGB(255, 0, 0)

	cfg := testConfig()
	cfg.Background = &bg
	cfg.Rects = []RectConfig{
		{X: 1, Y: 2, W: 1, H: 2, RGB: &red},
		{X: 3, Y: 0, W: 1, H: 1, HSV: &led.HSVColor{H: 96, S: 255, V: 255}},
	}

	sink := &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 50*time.Millisecond))
	assert.True(t, sink.closed)

	// The background fill flushes once on its own.
	require.GreaterOrEqual(t, len(sink.frames), 2)
	for i, c := range sink.frames[0] {
		assert.Equal(t, bg, c, "led %d", i)
	}

	last := sink.frames[len(sink.frames)-1]
	assert.Equal(t, red, last[matrix.Pixel(1, 2)])
	assert.Equal(t, red, last[matrix.Pixel(1, 3)])
	assert.Equal(t, bg, last[matrix.Pixel(1, 4)])
	assert.Equal(t, led.RGB(0, 255, 0), last[matrix.Pixel(3, 0)])
}

func TestDaemonDrawsStaticText(t *testing.T) {
	cfg := testConfig()
	cfg.Matrix.Width = 6
	cfg.Text = &TextConfig{
		Message: "I",
		Color:   led.HSV(0, 255, 255),
	}

	sink := &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 30*time.Millisecond))
	require.NotEmpty(t, sink.frames)

	// 'I' is lit on its middle column.
	last := sink.frames[len(sink.frames)-1]
	assert.Equal(t, led.RGB(255, 0, 0), last[matrix.Pixel(2, 0)])
	assert.Equal(t, led.RGB(0, 0, 0), last[matrix.Pixel(5, 0)])
}

func TestDaemonScrollsText(t *testing.T) {
	cfg := testConfig()
	cfg.Matrix.Width = 16
	cfg.Text = &TextConfig{
		Message:    "I",
		X:          10,
		Color:      led.HSV(0, 255, 255),
		Scroll:     true,
		ScrollRate: 0.1,
	}

	sink := &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 100*time.Millisecond))
	require.Greater(t, len(sink.frames), 1)

	// At 0.1 columns per millisecond the text has moved several columns.
	first := litColumn(sink.frames[0], cfg.Matrix.Width)
	last := litColumn(sink.frames[len(sink.frames)-1], cfg.Matrix.Width)
	assert.Less(t, last, first)
}

func TestDaemonRepeatsText(t *testing.T) {
	cfg := testConfig()
	cfg.Matrix.Width = 16
	cfg.Text = &TextConfig{
		Message:    "I",
		X:          10,
		Color:      led.HSV(0, 255, 255),
		Scroll:     true,
		ScrollRate: 0.2,
		Repeat:     Duration(20 * time.Millisecond),
	}

	sink := &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 100*time.Millisecond))

	// Without repeating, the text would be far off the left edge by now.
	for _, frame := range sink.frames {
		col := litColumn(frame, cfg.Matrix.Width)
		assert.GreaterOrEqual(t, col, 0, "text scrolled off without being restarted")
	}
}

func TestDaemonFlushError(t *testing.T) {
	boom := errors.New("boom")
	sink := &recordingSink{err: boom}

	err := driveFor(t, newTestDaemon(t, testConfig()), sink, time.Second)
	assert.True(t, errors.Is(err, boom), "got %v", err)
	assert.ErrorContains(t, err, "failed to flush frame")
	assert.True(t, sink.closed)
}

func TestDaemonRectOutOfRange(t *testing.T) {
	red := led.RGB(255, 0, 0)

	cfg := testConfig()
	cfg.Rects = []RectConfig{{X: 3, Y: 0, W: 2, H: 1, RGB: &red}}

	sink := &recordingSink{}
	err := driveFor(t, newTestDaemon(t, cfg), sink, time.Second)
	assert.True(t, errors.Is(err, matrix.ErrOutOfRange), "got %v", err)
	assert.ErrorContains(t, err, "rect 0")
	assert.True(t, sink.closed)

	cfg.Matrix.Bounds = matrix.PolicyClamp
	sink = &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 20*time.Millisecond))
	require.NotEmpty(t, sink.frames)
	assert.Equal(t, red, sink.frames[0][matrix.Pixel(3, 0)])
}

func TestNewDaemonInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = 0

	_, err := NewDaemon(cfg, discard)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestDaemonRunLogOutput(t *testing.T) {
	cfg := testConfig()
	cfg.Preview = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	assert.NoError(t, newTestDaemon(t, cfg).Run(ctx))
}

func TestDaemonScrollClearsScene(t *testing.T) {
	bg := led.RGB(0, 0, 16)

	cfg := testConfig()
	cfg.Matrix.Width = 16
	cfg.Background = &bg
	cfg.Text = &TextConfig{
		Message: "I",
		X:       10,
		Color:   led.HSV(0, 255, 255),
		Scroll:  true,
	}

	sink := &recordingSink{}
	require.NoError(t, driveFor(t, newTestDaemon(t, cfg), sink, 30*time.Millisecond))
	require.GreaterOrEqual(t, len(sink.frames), 2)

	assert.Equal(t, bg, sink.frames[0][matrix.Pixel(0, 0)])
	// Scrolling text redraws onto a cleared buffer every frame.
	assert.Equal(t, led.RGBColor{}, sink.frames[1][matrix.Pixel(0, 0)])
}

// pipeConn joins two pipe ends into an io.ReadWriteCloser.
type pipeConn struct {
	*io.PipeReader
	*io.PipeWriter
}

func (c pipeConn) Close() error {
	c.PipeWriter.Close()
	return c.PipeReader.Close()
}

// newQuietController returns the host end of a controller that acks the
// initialize packet and never answers again.
func newQuietController(t *testing.T) io.ReadWriteCloser {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	go func() {
		defer outW.Close()

		p, err := ledserial.ReadIncomingPacket(inR, ledserial.ReadContext{})
		if err != nil {
			return
		}
		ack := ledserial.AckPacket{IncomingPacketType: p.Type()}
		if err := ledserial.WriteOutgoingPacket(outW, ack); err != nil {
			return
		}

		io.Copy(io.Discard, inR)
	}()

	c := pipeConn{PipeReader: outR, PipeWriter: inW}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDaemonStopsWithSilentController(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig()
	s, err := output.NewSerial(ctx, newQuietController(t), cfg.Matrix.NumLEDs(), discard)
	require.NoError(t, err)
	// Long enough that only the cancel can end the first flush.
	s.SetAckTimeout(300 * time.Millisecond)

	d := newTestDaemon(t, cfg)
	time.AfterFunc(50*time.Millisecond, cancel)

	done := make(chan error, 1)
	go func() { done <- d.drive(ctx, s) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop after cancel")
	}
}

// litColumn returns the leftmost column with a lit LED in row 0, or -1.
func litColumn(frame led.LEDs, width int) int {
	for x := 0; x < width; x++ {
		if frame[matrix.Pixel(x, 0)] != (led.RGBColor{}) {
			return x
		}
	}
	return -1
}
