package srcrcon

import (
	"bytes"
	"io"

	"github.com/hlstat/valveq/pkg/verr"
	"github.com/hlstat/valveq/pkg/wire"
)

// Source RCON packet types (SERVERDATA_*). AuthResponse shares its wire
// value with ExecCommand; the two are distinguished by context, not by
// type byte.
const (
	TypeResponseValue int32 = 0
	TypeExecCommand   int32 = 2
	TypeAuthResponse  int32 = 2
	TypeAuth          int32 = 3
)

// minPacketSize is the smallest legal value of a packet's leading size
// field: id (4) + type (4) + an empty, null-terminated body (2).
const minPacketSize = 10

// Packet is one length-prefixed Source RCON packet.
type Packet struct {
	ID   int32
	Type int32
	Body string
}

// Encode serializes p, including its leading little-endian size field.
func (p Packet) Encode() []byte {
	body := append([]byte(p.Body), 0x00, 0x00)
	size := int32(4 + 4 + len(body))

	buf := make([]byte, 0, 4+int(size))
	buf = wire.PutInt32LE(buf, size)
	buf = wire.PutInt32LE(buf, p.ID)
	buf = wire.PutInt32LE(buf, p.Type)
	buf = append(buf, body...)
	return buf
}

// ReadPacket reads exactly one packet from r: 4 bytes for the size field,
// then exactly that many more bytes for the body. Both reads use
// io.ReadFull, since a single Read is not guaranteed to return a full TCP
// segment.
func ReadPacket(r io.Reader) (Packet, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(r, sizeBuf[:]); err != nil {
		return Packet{}, err
	}
	size, err := wire.Int32LE(sizeBuf[:], 0)
	if err != nil {
		return Packet{}, err
	}
	if size < minPacketSize {
		return Packet{}, &verr.FormatError{Context: "rcon packet size", Input: string(sizeBuf[:])}
	}

	rest := make([]byte, size)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Packet{}, err
	}

	id, err := wire.Int32LE(rest, 0)
	if err != nil {
		return Packet{}, err
	}
	typ, err := wire.Int32LE(rest, 4)
	if err != nil {
		return Packet{}, err
	}
	body := bytes.TrimRight(rest[8:], "\x00")

	return Packet{ID: id, Type: typ, Body: string(body)}, nil
}
