package ledmatrix

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/matrix"
	"libdb.so/ledmatrix/output"
	"periph.io/x/conn/v3/physic"
)

// Daemon is the main ledmatrix daemon. It draws the configured scene onto
// the matrix and keeps the hardware updated until it is stopped.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger
}

// NewDaemon creates a new ledmatrix daemon.
func NewDaemon(cfg *Config, logger *slog.Logger) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}

	return &Daemon{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Run starts the daemon. It blocks until the given context is canceled, in
// which case it returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	sink, err := d.openSink(ctx)
	if err != nil {
		return err
	}

	if d.cfg.Preview == "" {
		return d.drive(ctx, sink)
	}

	preview := output.NewPreview(d.cfg.Matrix.Width, d.cfg.Matrix.Height, d.logger)
	server := &http.Server{
		Addr:    d.cfg.Preview,
		Handler: preview,
	}

	errg, ctx := errgroup.WithContext(ctx)
	errg.Go(func() error {
		d.logger.Info("serving preview", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "preview server failed")
		}
		return nil
	})
	errg.Go(func() error {
		<-ctx.Done()
		d.logger.Debug("shutting down preview server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})
	errg.Go(func() error {
		return d.drive(ctx, output.Multi{sink, preview})
	})

	return errg.Wait()
}

func (d *Daemon) openSink(ctx context.Context) (output.Sink, error) {
	n := d.cfg.Matrix.NumLEDs()

	switch d.cfg.Output {
	case SerialOutput:
		d.logger.Debug("opening serial output", "device", d.cfg.Device, "baud", d.cfg.Baud)
		return output.OpenSerial(ctx, d.cfg.Device, d.cfg.Baud, n, d.logger)

	case SPIOutput:
		freq := output.DefaultNRZFreq
		if d.cfg.SPI.FreqKHz > 0 {
			freq = physic.Frequency(d.cfg.SPI.FreqKHz) * physic.KiloHertz
		}
		d.logger.Debug("opening spi output", "port", d.cfg.SPI.Port, "freq", freq)
		return output.OpenNRZ(d.cfg.SPI.Port, n, freq)

	case LogOutput:
		return &output.Log{Logger: d.logger}, nil

	default:
		return nil, errors.Errorf("unknown output %q", d.cfg.Output)
	}
}

// drive draws the scene and flushes a frame to sink on every tick until ctx
// is canceled. The sink is closed before drive returns. Sinks that wait on
// hardware must stop waiting once ctx is done.
func (d *Daemon) drive(ctx context.Context, sink output.Sink) (err error) {
	defer func() {
		d.logger.Debug("closing output")
		cerr := sink.Close()
		switch {
		case cerr == nil:
		case ctx.Err() != nil:
			d.logger.Warn("failed to close output cleanly", "error", cerr)
		case err == nil:
			err = errors.Wrap(cerr, "failed to close output")
		}
	}()

	r, err := d.newRenderer(sink)
	if err != nil {
		return err
	}

	d.logger.Debug(
		"drawing scene",
		"width", r.Width(),
		"height", r.Height(),
		"bounds", r.Policy())

	if err := d.drawScene(r); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	frameTicker := time.NewTicker(time.Second / time.Duration(d.cfg.Rate))
	defer frameTicker.Stop()

	var repeat <-chan time.Time // nil unless the text repeats
	if d.cfg.Text != nil && d.cfg.Text.Repeat > 0 {
		repeatTicker := time.NewTicker(time.Duration(d.cfg.Text.Repeat))
		defer repeatTicker.Stop()
		repeat = repeatTicker.C
	}

	var frames uint64
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("stopping frame loop", "frames", frames)
			return nil

		case <-repeat:
			d.logger.Debug("restarting text")
			if err := d.showText(r); err != nil {
				return err
			}

		case <-frameTicker.C:
			r.UpdateText()
			if err := r.Flush(); err != nil {
				if ctx.Err() != nil {
					d.logger.Debug("frame interrupted", "error", err)
					return nil
				}
				return errors.Wrap(err, "failed to flush frame")
			}
			frames++
		}
	}
}

func (d *Daemon) newRenderer(sink output.Sink) (*matrix.Renderer, error) {
	opts := []matrix.Option{
		matrix.WithBoundsPolicy(d.cfg.Matrix.Bounds),
	}
	if d.cfg.Text != nil && d.cfg.Text.ScrollRate > 0 {
		opts = append(opts, matrix.WithScrollRate(d.cfg.Text.ScrollRate))
	}

	leds := led.NewLEDs(d.cfg.Matrix.NumLEDs())

	r, err := matrix.New(d.cfg.Matrix.Width, d.cfg.Matrix.Height, leds, sink, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create renderer")
	}

	return r, nil
}

// drawScene draws the static part of the scene and arms the text.
func (d *Daemon) drawScene(r *matrix.Renderer) error {
	if bg := d.cfg.Background; bg != nil {
		d.logger.Debug("filling background", "color", *bg)
		if err := r.SetAllLedsRGB(bg.R(), bg.G(), bg.B()); err != nil {
			return errors.Wrap(err, "failed to fill background")
		}
	}

	for i, rect := range d.cfg.Rects {
		var err error
		switch {
		case rect.RGB != nil:
			err = r.DrawRectangleRGB(rect.X, rect.Y, rect.W, rect.H, *rect.RGB)
		case rect.HSV != nil:
			err = r.DrawRectangleHSV(rect.X, rect.Y, rect.W, rect.H, *rect.HSV)
		}
		if err != nil {
			return errors.Wrapf(err, "failed to draw rect %d", i)
		}
	}

	if d.cfg.Text != nil {
		r.SetScroll(d.cfg.Text.Scroll)
		return d.showText(r)
	}

	return nil
}

func (d *Daemon) showText(r *matrix.Renderer) error {
	t := d.cfg.Text
	if err := r.ShowTextHSV(t.Message, t.X, t.Color); err != nil {
		return errors.Wrap(err, "failed to show text")
	}

	if text := r.Text(); text.Truncated() {
		d.logger.Warn(
			"text truncated",
			"shown", text.String(),
			"max", matrix.MaxTextLen)
	}

	return nil
}
