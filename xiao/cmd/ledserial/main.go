// Command ledserial is the controller firmware for a Seeed XIAO RP2040. It
// drives a WS2812 strip on D10 from frames sent by the ledmatrix daemon over
// USB serial.
package main

import "machine"

func main() {
	d := NewDevice(machine.Serial, machine.D10)
	d.Run()
}
