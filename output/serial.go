package output

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
	"libdb.so/ledmatrix/led"
	"libdb.so/ledmatrix/ledserial"
)

// DefaultAckTimeout is how long the controller has to acknowledge a packet.
const DefaultAckTimeout = time.Second

var (
	// ErrController is returned when the controller reports an error or
	// panics.
	ErrController = errors.New("controller failure")
	// ErrAckTimeout is returned when the controller does not acknowledge a
	// packet in time.
	ErrAckTimeout = errors.New("controller did not answer")
)

// Serial sends frames to a controller board speaking the ledserial protocol.
// Every packet is acknowledged by the controller before the next one is sent.
type Serial struct {
	ctx        context.Context
	rwc        io.ReadWriteCloser
	logger     *slog.Logger
	numLEDs    int
	ackTimeout time.Duration

	packets   chan ledserial.OutgoingPacket
	failed    chan struct{} // closed when the read loop stops
	readErr   error         // valid once failed is closed
	done      chan struct{}
	closeOnce sync.Once
}

var _ Sink = (*Serial)(nil)

// OpenSerial opens the serial device and initializes a strip of numLEDs LEDs
// on the controller behind it. Waiting for the controller stops once ctx is
// canceled.
func OpenSerial(ctx context.Context, device string, baud, numLEDs int, logger *slog.Logger) (*Serial, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open serial port")
	}

	if err := port.SetReadTimeout(serial.NoTimeout); err != nil {
		port.Close()
		return nil, errors.Wrap(err, "failed to reset read timeout")
	}

	return NewSerial(ctx, port, numLEDs, logger)
}

// NewSerial initializes a strip of numLEDs LEDs on the controller at the other
// end of rwc. The Serial owns rwc: it is closed by Close, or right away if
// the controller cannot be initialized.
func NewSerial(ctx context.Context, rwc io.ReadWriteCloser, numLEDs int, logger *slog.Logger) (*Serial, error) {
	if numLEDs < 1 || numLEDs > 0xFFFF {
		rwc.Close()
		return nil, errors.Errorf("invalid number of LEDs: %d", numLEDs)
	}

	s := &Serial{
		ctx:        ctx,
		rwc:        rwc,
		logger:     logger,
		numLEDs:    numLEDs,
		ackTimeout: DefaultAckTimeout,
		packets:    make(chan ledserial.OutgoingPacket),
		failed:     make(chan struct{}),
		done:       make(chan struct{}),
	}

	go s.readPackets()

	s.logger.Debug("sending initialize packet", "num_leds", numLEDs)
	if err := s.send(ctx, ledserial.InitializePacket{NumLEDs: uint16(numLEDs)}); err != nil {
		s.shutdown()
		return nil, errors.Wrap(err, "failed to initialize LEDs")
	}

	return s, nil
}

// SetAckTimeout sets how long the controller has to acknowledge a packet.
func (s *Serial) SetAckTimeout(d time.Duration) {
	s.ackTimeout = d
}

// Flush sends the frame to the controller and waits for it to be shown.
func (s *Serial) Flush(leds led.LEDs) error {
	if len(leds) != s.numLEDs {
		return errors.Errorf("frame has %d LEDs, controller expects %d", len(leds), s.numLEDs)
	}
	return s.send(s.ctx, ledserial.SetPacket{Pix: leds.AsPixels()})
}

// Close turns the strip off and closes the underlying port. Clearing is
// attempted even if the context given to OpenSerial is done, but for no
// longer than the ack timeout.
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Debug("clearing LEDs")
		err = s.send(context.Background(), ledserial.ClearPacket{})

		s.logger.Debug("closing serial port")
		if cerr := s.shutdown(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "failed to close serial port")
		}
	})
	return err
}

// shutdown stops the read loop. Closing the port unblocks a pending read.
func (s *Serial) shutdown() error {
	close(s.done)
	return s.rwc.Close()
}

func (s *Serial) readPackets() {
	for {
		p, err := ledserial.ReadOutgoingPacket(s.rwc)
		if err != nil {
			s.readErr = err
			close(s.failed)
			return
		}

		s.logger.Debug(
			"received packet from controller",
			"type", p.Type())

		select {
		case <-s.done:
			return
		case s.packets <- p:
			// ok
		}
	}
}

func (s *Serial) send(ctx context.Context, p ledserial.IncomingPacket) error {
	s.logger.Debug(
		"writing packet",
		"type", p.Type())

	if err := ledserial.WriteIncomingPacket(s.rwc, p); err != nil {
		return errors.Wrapf(err, "failed to write %s packet", p.Type())
	}

	return s.awaitAck(ctx, p.Type())
}

// awaitAck waits until the controller acknowledges the given packet type.
// Log packets received meanwhile are logged.
func (s *Serial) awaitAck(ctx context.Context, t ledserial.IncomingPacketType) error {
	timeout := time.NewTimer(s.ackTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "stopped waiting for %s ack", t)

		case <-timeout.C:
			return errors.Wrapf(ErrAckTimeout, "no %s ack after %v", t, s.ackTimeout)

		case <-s.failed:
			return errors.Wrap(s.readErr, "failed to read packet")

		case p := <-s.packets:
			switch p := p.(type) {
			case ledserial.AckPacket:
				if p.IncomingPacketType != t {
					return errors.Errorf("controller acked %s packet, expected %s", p.IncomingPacketType, t)
				}
				return nil

			case ledserial.LogPacket:
				s.logger.Info(
					"received log packet from controller",
					"message", p.Message)

			case ledserial.ErrorPacket:
				s.logger.Warn(
					"received error packet from controller",
					"message", p.Message)
				return errors.Wrapf(ErrController, "controller reported error: %s", p.Message)

			case ledserial.PanicPacket:
				s.logger.Error(
					"controller unrecoverably panicked",
					"message", p.Message)
				return errors.Wrapf(ErrController, "controller panicked: %s", p.Message)

			default:
				return errors.Errorf("received unknown packet from controller: %s", p.Type())
			}
		}
	}
}
