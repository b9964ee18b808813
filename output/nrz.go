package output

import (
	"github.com/pkg/errors"
	"libdb.so/ledmatrix/led"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"
)

// DefaultNRZFreq is the data rate of WS2812 strips.
const DefaultNRZFreq = 800 * physic.KiloHertz

// NRZ drives a WS2812 style strip directly from an SPI port.
type NRZ struct {
	dev     *nrzled.Dev
	port    spi.PortCloser
	numLEDs int
}

var _ Sink = (*NRZ)(nil)

// OpenNRZ initializes the host drivers and opens the named SPI port. An empty
// name opens the first port available.
func OpenNRZ(portName string, numLEDs int, freq physic.Frequency) (*NRZ, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize host drivers")
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open SPI port %q", portName)
	}

	n, err := NewNRZ(port, numLEDs, freq)
	if err != nil {
		port.Close()
		return nil, err
	}

	return n, nil
}

// NewNRZ drives a strip of numLEDs LEDs on the given port. Closing the NRZ
// closes the port.
func NewNRZ(port spi.PortCloser, numLEDs int, freq physic.Frequency) (*NRZ, error) {
	if freq == 0 {
		freq = DefaultNRZFreq
	}

	dev, err := nrzled.NewSPI(port, &nrzled.Opts{
		NumPixels: numLEDs,
		Channels:  3,
		Freq:      freq,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create nrzled device")
	}

	return &NRZ{
		dev:     dev,
		port:    port,
		numLEDs: numLEDs,
	}, nil
}

// String returns the name of the underlying device.
func (n *NRZ) String() string {
	return n.dev.String()
}

// Flush writes the frame to the strip.
func (n *NRZ) Flush(leds led.LEDs) error {
	if len(leds) != n.numLEDs {
		return errors.Errorf("frame has %d LEDs, strip has %d", len(leds), n.numLEDs)
	}
	if _, err := n.dev.Write(leds.AsPixels()); err != nil {
		return errors.Wrap(err, "failed to write to strip")
	}
	return nil
}

// Close turns the strip off and closes the port.
func (n *NRZ) Close() error {
	err := n.dev.Halt()
	if cerr := n.port.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return errors.Wrap(err, "failed to close strip")
}
