// Package ledserial implements the serial protocol spoken between the host
// and an LED controller board.
//
// Every packet is a type byte, a type specific payload and a little endian
// CRC32 (IEEE) checksum over the type byte and payload. The host sends
// incoming packets (from the controller's point of view); the controller
// answers each of them with an AckPacket, or an ErrorPacket if it could not
// handle it.
package ledserial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Endianness defines the endianness of the protocol.
var Endianness = binary.LittleEndian

// MaxMessageLen is the longest message an ErrorPacket or LogPacket can carry.
const MaxMessageLen = 1<<16 - 1

// IncomingPacketType is a type of packet sent by the host.
type IncomingPacketType uint8

const (
	TypeInitializePacket IncomingPacketType = iota
	TypeClearPacket
	TypeSetPacket
)

// String returns a string representation of the packet type.
func (t IncomingPacketType) String() string {
	switch t {
	case TypeInitializePacket:
		return "initialize"
	case TypeClearPacket:
		return "clear"
	case TypeSetPacket:
		return "set"
	default:
		return fmt.Sprintf("IncomingPacketType(%d)", t)
	}
}

// IncomingPacket is a packet sent from the host to the controller.
type IncomingPacket interface {
	// Type returns the type of packet.
	Type() IncomingPacketType
}

// InitializePacket tells the controller how many LEDs the strip has. It must
// be the first packet sent.
type InitializePacket struct {
	NumLEDs uint16
}

// ClearPacket turns every LED off.
type ClearPacket struct{}

// SetPacket sets the LED strip to the given colors, three bytes per LED.
type SetPacket struct {
	Pix []uint8
}

func (p InitializePacket) Type() IncomingPacketType { return TypeInitializePacket }
func (p ClearPacket) Type() IncomingPacketType      { return TypeClearPacket }
func (p SetPacket) Type() IncomingPacketType        { return TypeSetPacket }

// OutgoingPacketType is a type of packet sent by the controller.
type OutgoingPacketType uint8

const (
	TypeErrorPacket OutgoingPacketType = iota
	TypePanicPacket
	TypeLogPacket
	TypeAckPacket
)

// String returns a string representation of the packet type.
func (t OutgoingPacketType) String() string {
	switch t {
	case TypeErrorPacket:
		return "error"
	case TypePanicPacket:
		return "panic"
	case TypeLogPacket:
		return "log"
	case TypeAckPacket:
		return "ack"
	default:
		return fmt.Sprintf("OutgoingPacketType(%d)", t)
	}
}

// OutgoingPacket is a packet sent from the controller to the host.
type OutgoingPacket interface {
	// Type returns the type of packet.
	Type() OutgoingPacketType
}

// ErrorPacket is a packet that indicates an error occurred.
type ErrorPacket struct {
	Message string
}

// PanicPacket is a packet that indicates the program cannot recover.
type PanicPacket struct {
	Message string
}

// LogPacket is a packet that contains a log message.
type LogPacket struct {
	Message string
}

// AckPacket acknowledges that an incoming packet was handled.
type AckPacket struct {
	IncomingPacketType IncomingPacketType
}

func (p ErrorPacket) Type() OutgoingPacketType { return TypeErrorPacket }
func (p PanicPacket) Type() OutgoingPacketType { return TypePanicPacket }
func (p LogPacket) Type() OutgoingPacketType   { return TypeLogPacket }
func (p AckPacket) Type() OutgoingPacketType   { return TypeAckPacket }

// ReadContext is the state of the LED strip. Data in this structure are
// required for the device to read incoming packets.
type ReadContext struct {
	// NumLEDs is the number of LEDs in the strip.
	NumLEDs uint16
}

// packetReader reads a packet while hashing everything it consumes.
type packetReader struct {
	r    io.Reader
	hash hash.Hash32
}

func newPacketReader(r io.Reader) *packetReader {
	hash := crc32.NewIEEE()
	return &packetReader{r: io.TeeReader(r, hash), hash: hash}
}

func (r *packetReader) readType() (uint8, error) {
	var b [1]byte
	_, err := io.ReadFull(r.r, b[:])
	return b[0], err
}

func (r *packetReader) readMessage() (string, error) {
	var length uint16
	if err := binary.Read(r.r, Endianness, &length); err != nil {
		return "", fmt.Errorf("failed to read message length: %w", err)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r.r, buf); err != nil {
		return "", fmt.Errorf("failed to read message: %w", err)
	}
	return string(buf), nil
}

// verify reads the trailing checksum, which is not part of the hash.
func (r *packetReader) verify() error {
	sum := r.hash.Sum32()

	var checksum uint32
	if err := binary.Read(r.r, Endianness, &checksum); err != nil {
		return fmt.Errorf("failed to read packet checksum: %w", err)
	}
	if checksum != sum {
		return fmt.Errorf("packet checksum mismatch")
	}
	return nil
}

// packetWriter writes a packet while hashing everything it produces.
type packetWriter struct {
	w    io.Writer
	out  io.Writer
	hash hash.Hash32
}

func newPacketWriter(w io.Writer) *packetWriter {
	hash := crc32.NewIEEE()
	return &packetWriter{w: io.MultiWriter(w, hash), out: w, hash: hash}
}

func (w *packetWriter) write(v any) error {
	if err := binary.Write(w.w, Endianness, v); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	return nil
}

func (w *packetWriter) writeMessage(msg string) error {
	if len(msg) > MaxMessageLen {
		msg = msg[:MaxMessageLen]
	}
	if err := w.write(uint16(len(msg))); err != nil {
		return err
	}
	if _, err := io.WriteString(w.w, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

func (w *packetWriter) finish() error {
	if err := binary.Write(w.out, Endianness, w.hash.Sum32()); err != nil {
		return fmt.Errorf("failed to write packet checksum: %w", err)
	}
	return nil
}

// ErrNotInitialized is returned by ReadIncomingPacket for a SetPacket that
// arrives before the strip size is known. The pixel data is left unread.
var ErrNotInitialized = errors.New("strip not initialized")

// ReadIncomingPacket reads an incoming packet from the given reader.
func ReadIncomingPacket(r io.Reader, context ReadContext) (IncomingPacket, error) {
	pr := newPacketReader(r)

	ptypeByte, err := pr.readType()
	if err != nil {
		return nil, fmt.Errorf("failed to read incoming packet type: %w", err)
	}

	var packet IncomingPacket
	switch ptype := IncomingPacketType(ptypeByte); ptype {
	case TypeInitializePacket:
		var p InitializePacket
		if err := binary.Read(pr.r, Endianness, &p); err != nil {
			return nil, fmt.Errorf("failed to read number of LEDs: %w", err)
		}
		packet = p

	case TypeClearPacket:
		packet = ClearPacket{}

	case TypeSetPacket:
		if context.NumLEDs == 0 {
			return nil, ErrNotInitialized
		}
		p := SetPacket{Pix: make([]uint8, 3*int(context.NumLEDs))}
		if _, err := io.ReadFull(pr.r, p.Pix); err != nil {
			return nil, fmt.Errorf("failed to read pixel data: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteIncomingPacket writes an incoming packet to the given writer.
func WriteIncomingPacket(w io.Writer, p IncomingPacket) error {
	pw := newPacketWriter(w)

	switch p := p.(type) {
	case InitializePacket:
		if err := pw.write(TypeInitializePacket); err != nil {
			return err
		}
		if err := pw.write(p); err != nil {
			return err
		}
	case ClearPacket:
		if err := pw.write(TypeClearPacket); err != nil {
			return err
		}
	case SetPacket:
		if err := pw.write(TypeSetPacket); err != nil {
			return err
		}
		if _, err := pw.w.Write(p.Pix); err != nil {
			return fmt.Errorf("failed to write pixel data: %w", err)
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return pw.finish()
}

// ReadOutgoingPacket reads an outgoing packet from the given reader.
func ReadOutgoingPacket(r io.Reader) (OutgoingPacket, error) {
	pr := newPacketReader(r)

	ptypeByte, err := pr.readType()
	if err != nil {
		return nil, fmt.Errorf("failed to read outgoing packet type: %w", err)
	}

	var packet OutgoingPacket
	switch ptype := OutgoingPacketType(ptypeByte); ptype {
	case TypeErrorPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = ErrorPacket{Message: msg}

	case TypePanicPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = PanicPacket{Message: msg}

	case TypeLogPacket:
		msg, err := pr.readMessage()
		if err != nil {
			return nil, err
		}
		packet = LogPacket{Message: msg}

	case TypeAckPacket:
		var p AckPacket
		if err := binary.Read(pr.r, Endianness, &p.IncomingPacketType); err != nil {
			return nil, fmt.Errorf("failed to read acked packet type: %w", err)
		}
		packet = p

	default:
		return nil, fmt.Errorf("unknown packet type: %s", ptype)
	}

	if err := pr.verify(); err != nil {
		return nil, err
	}

	return packet, nil
}

// WriteOutgoingPacket writes an outgoing packet to the given writer.
func WriteOutgoingPacket(w io.Writer, p OutgoingPacket) error {
	pw := newPacketWriter(w)

	if err := pw.write(p.Type()); err != nil {
		return err
	}

	switch p := p.(type) {
	case ErrorPacket:
		if err := pw.writeMessage(p.Message); err != nil {
			return err
		}
	case PanicPacket:
		if err := pw.writeMessage(p.Message); err != nil {
			return err
		}
	case LogPacket:
		if err := pw.writeMessage(p.Message); err != nil {
			return err
		}
	case AckPacket:
		if err := pw.write(p.IncomingPacketType); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown packet type: %T", p)
	}

	return pw.finish()
}
