package main

import (
	"io"
	"machine"
	"runtime"
	"time"
)

// serialPort adapts a machine.Serialer to io.ReadWriter. Reads never block:
// they return whatever is buffered, which may be nothing.
type serialPort struct {
	machine.Serialer
}

var _ io.ReadWriter = serialPort{}

func (s serialPort) Read(b []byte) (int, error) {
	n := s.Buffered()
	if n == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil
	}
	if n > len(b) {
		n = len(b)
	}

	for i := 0; i < n; i++ {
		c, err := s.ReadByte()
		if err != nil {
			return i, err
		}
		b[i] = c
	}

	runtime.Gosched()
	return n, nil
}

func (s serialPort) Write(b []byte) (int, error) {
	for i, c := range b {
		if err := s.WriteByte(c); err != nil {
			return i, err
		}
	}

	runtime.Gosched()
	return len(b), nil
}

// discardQuiet is how long the line must be idle before discard returns.
const discardQuiet = 5 * time.Millisecond

// discard drops incoming bytes until none arrive for discardQuiet. The host
// waits for an answer before sending the next packet, so anything still
// arriving belongs to the packet being rejected.
func (s serialPort) discard() {
	for {
		if s.Buffered() == 0 {
			time.Sleep(discardQuiet)
			if s.Buffered() == 0 {
				return
			}
		}
		for s.Buffered() > 0 {
			if _, err := s.ReadByte(); err != nil {
				return
			}
		}
	}
}
