package main

import (
	"fmt"
	"image/color"
	"machine"
	"runtime/interrupt"

	"libdb.so/ledmatrix/ledserial"
	"tinygo.org/x/drivers/ws2812"
)

// Device is the controller end of the serial link.
type Device struct {
	port  serialPort
	strip ws2812.Device

	// colors is nil until the host sends an InitializePacket.
	colors []color.RGBA
}

// NewDevice creates a device that reads packets from serial and drives the
// strip on stripPin.
func NewDevice(serial machine.Serialer, stripPin machine.Pin) *Device {
	stripPin.Configure(machine.PinConfig{Mode: machine.PinOutput})
	return &Device{
		port:  serialPort{serial},
		strip: ws2812.New(stripPin),
	}
}

// Run handles packets forever. Every packet is answered with either an
// AckPacket or an ErrorPacket.
func (d *Device) Run() {
	for {
		p, err := d.readPacket()
		if err != nil {
			// The rest of a bad packet is still on the line. Drop it so the
			// next read starts on a packet boundary.
			d.port.discard()
			d.sendError(err)
			continue
		}

		d.sendPacket(ledserial.LogPacket{
			Message: fmt.Sprintf("received %s packet", p.Type()),
		})

		if err := d.handlePacket(p); err != nil {
			d.sendError(err)
			continue
		}

		d.sendPacket(ledserial.AckPacket{IncomingPacketType: p.Type()})
	}
}

func (d *Device) readPacket() (ledserial.IncomingPacket, error) {
	statusOn(0, 0, 32)
	defer statusOff()

	return ledserial.ReadIncomingPacket(d.port, ledserial.ReadContext{
		NumLEDs: uint16(len(d.colors)),
	})
}

func (d *Device) handlePacket(p ledserial.IncomingPacket) error {
	switch p := p.(type) {
	case ledserial.InitializePacket:
		if p.NumLEDs < 1 {
			return fmt.Errorf("invalid number of LEDs: %d", p.NumLEDs)
		}
		d.colors = make([]color.RGBA, p.NumLEDs)
		d.showReady()

	case ledserial.ClearPacket:
		if d.colors == nil {
			return ledserial.ErrNotInitialized
		}
		for i := range d.colors {
			d.colors[i] = color.RGBA{}
		}
		d.show()

	case ledserial.SetPacket:
		if d.colors == nil {
			return ledserial.ErrNotInitialized
		}
		for i := range d.colors {
			d.colors[i] = color.RGBA{
				R: p.Pix[3*i+0],
				G: p.Pix[3*i+1],
				B: p.Pix[3*i+2],
				A: 0xFF,
			}
		}
		d.show()

	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return nil
}

// showReady blanks the strip except for a red first and a blue last LED, so
// both ends of the strip can be checked by eye.
func (d *Device) showReady() {
	for i := range d.colors {
		d.colors[i] = color.RGBA{}
	}
	d.colors[len(d.colors)-1] = color.RGBA{B: 0xFF, A: 0xFF}
	d.colors[0] = color.RGBA{R: 0xFF, A: 0xFF}
	d.show()
}

// show writes the buffer out with interrupts disabled, since the WS2812
// timing cannot tolerate being preempted.
func (d *Device) show() {
	state := interrupt.Disable()
	d.strip.WriteColors(d.colors)
	interrupt.Restore(state)
}

func (d *Device) sendError(err error) {
	d.sendPacket(ledserial.ErrorPacket{Message: err.Error()})
}

func (d *Device) sendPacket(p ledserial.OutgoingPacket) {
	ledserial.WriteOutgoingPacket(d.port, p)
}
