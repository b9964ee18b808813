package main

import (
	"machine"

	"tinygo.org/x/drivers/ws2812"
)

// The XIAO RP2040 has a single onboard NeoPixel whose power is switched by
// GPIO11. See https://wiki.seeedstudio.com/XIAO-RP2040-with-Arduino/.
var (
	statusLED      ws2812.Device
	statusLEDPower = machine.GPIO11
	statusLEDReady bool
)

func initStatusLED() {
	if statusLEDReady {
		return
	}

	statusLEDPower.Configure(machine.PinConfig{Mode: machine.PinOutput})
	statusLEDPower.Low()

	machine.GPIO12.Configure(machine.PinConfig{Mode: machine.PinOutput})
	statusLED = ws2812.New(machine.GPIO12)

	statusLEDReady = true
}

// statusOn lights the onboard LED while a packet is being read.
func statusOn(r, g, b uint8) {
	initStatusLED()
	statusLEDPower.High()
	statusLED.WriteByte(g)
	statusLED.WriteByte(r)
	statusLED.WriteByte(b)
}

func statusOff() {
	initStatusLED()
	statusLEDPower.Low()
}
