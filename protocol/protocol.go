// Package protocol holds the message identifiers and the packet headers the
// outbound engine reads and writes. All integers are little-endian.
package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// Opcode identifies the packet type.
type Opcode uint8

// Packet types.
const (
	DATA    Opcode = 0x10 // message payload
	GRANT   Opcode = 0x11 // receiver: send up to an index
	DONE    Opcode = 0x12 // receiver: whole message received
	RESEND  Opcode = 0x13 // receiver: retransmit a range
	BUSY    Opcode = 0x14 // receiver: alive, not granting yet
	PING    Opcode = 0x15 // sender: liveness probe
	UNKNOWN Opcode = 0x16 // receiver: no record of the message
)

var opcodeNames = map[Opcode]string{
	DATA:    "DATA",
	GRANT:   "GRANT",
	DONE:    "DONE",
	RESEND:  "RESEND",
	BUSY:    "BUSY",
	PING:    "PING",
	UNKNOWN: "UNKNOWN",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%#x)", uint8(o))
}

// Header sizes.
const (
	CommonHeaderLength = 1 + MessageIdLength
	DataHeaderLength   = CommonHeaderLength + 4
	GrantHeaderLength  = CommonHeaderLength + 2
	ResendHeaderLength = CommonHeaderLength + 4
)

// MaxPackets is the largest packet count a message can have; packet
// indexes are 16 bits wide.
const MaxPackets = 1<<16 - 1

var (
	// ErrShortPacket is returned when a packet is smaller than its header.
	ErrShortPacket = errors.New("packet shorter than its header")
	// ErrUnknownOpcode is returned for packets with an unrecognised opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")
)

// MessageIdLength is the encoded size of a MessageId.
const MessageIdLength = 16

// MessageId names a message for the lifetime of a transport.
type MessageId struct {
	TransportId uint64
	Sequence    uint64
}

func (id MessageId) String() string {
	return fmt.Sprintf("%d:%d", id.TransportId, id.Sequence)
}

// Encode writes the 16 byte form of id into p.
func (id MessageId) Encode(p []byte) []byte {
	p = encode64u(p, id.TransportId)
	return encode64u(p, id.Sequence)
}

// DecodeMessageId reads a MessageId written by Encode.
func DecodeMessageId(p []byte) (MessageId, []byte) {
	var id MessageId
	p = decode64u(p, &id.TransportId)
	p = decode64u(p, &id.Sequence)
	return id, p
}

// CommonHeader starts every packet.
type CommonHeader struct {
	Opcode    Opcode
	MessageId MessageId
}

// DataHeader precedes each payload chunk.
type DataHeader struct {
	CommonHeader
	TotalPackets uint16
	Index        uint16
}

// GrantHeader authorizes sending packets below GrantIndex.
type GrantHeader struct {
	CommonHeader
	GrantIndex uint16
}

// ResendHeader asks for Count packets starting at Index.
type ResendHeader struct {
	CommonHeader
	Index uint16
	Count uint16
}

func encode8u(p []byte, c byte) []byte {
	p[0] = c
	return p[1:]
}

func decode8u(p []byte, c *byte) []byte {
	*c = p[0]
	return p[1:]
}

func encode16u(p []byte, w uint16) []byte {
	binary.LittleEndian.PutUint16(p, w)
	return p[2:]
}

func decode16u(p []byte, w *uint16) []byte {
	*w = binary.LittleEndian.Uint16(p)
	return p[2:]
}

func encode64u(p []byte, l uint64) []byte {
	binary.LittleEndian.PutUint64(p, l)
	return p[8:]
}

func decode64u(p []byte, l *uint64) []byte {
	*l = binary.LittleEndian.Uint64(p)
	return p[8:]
}

// Encode writes the header into p, which must hold CommonHeaderLength bytes,
// and returns the rest of p.
func (h *CommonHeader) Encode(p []byte) []byte {
	p = encode8u(p, byte(h.Opcode))
	return h.MessageId.Encode(p)
}

// Encode writes the header into p and returns the rest of p.
func (h *DataHeader) Encode(p []byte) []byte {
	p = h.CommonHeader.Encode(p)
	p = encode16u(p, h.TotalPackets)
	return encode16u(p, h.Index)
}

// Encode writes the header into p and returns the rest of p.
func (h *GrantHeader) Encode(p []byte) []byte {
	p = h.CommonHeader.Encode(p)
	return encode16u(p, h.GrantIndex)
}

// Encode writes the header into p and returns the rest of p.
func (h *ResendHeader) Encode(p []byte) []byte {
	p = h.CommonHeader.Encode(p)
	p = encode16u(p, h.Index)
	return encode16u(p, h.Count)
}

// DecodeCommonHeader parses the header shared by every packet.
func DecodeCommonHeader(packet []byte) (CommonHeader, error) {
	var h CommonHeader
	if len(packet) < CommonHeaderLength {
		return h, errors.Wrapf(ErrShortPacket, "%d bytes", len(packet))
	}
	var op byte
	p := decode8u(packet, &op)
	h.Opcode = Opcode(op)
	if _, ok := opcodeNames[h.Opcode]; !ok {
		return h, errors.Wrapf(ErrUnknownOpcode, "%s", h.Opcode)
	}
	h.MessageId, _ = DecodeMessageId(p)
	return h, nil
}

func decodeFixed(packet []byte, op Opcode, length int) (CommonHeader, []byte, error) {
	h, err := DecodeCommonHeader(packet)
	if err != nil {
		return h, nil, err
	}
	if h.Opcode != op {
		return h, nil, errors.Errorf("expected %s packet, got %s", op, h.Opcode)
	}
	if len(packet) < length {
		return h, nil, errors.Wrapf(ErrShortPacket, "%s packet of %d bytes", op, len(packet))
	}
	return h, packet[CommonHeaderLength:], nil
}

// DecodeDataHeader parses a DATA packet and returns its payload.
func DecodeDataHeader(packet []byte) (DataHeader, []byte, error) {
	var h DataHeader
	common, p, err := decodeFixed(packet, DATA, DataHeaderLength)
	if err != nil {
		return h, nil, err
	}
	h.CommonHeader = common
	p = decode16u(p, &h.TotalPackets)
	p = decode16u(p, &h.Index)
	return h, p, nil
}

// DecodeGrantHeader parses a GRANT packet.
func DecodeGrantHeader(packet []byte) (GrantHeader, error) {
	var h GrantHeader
	common, p, err := decodeFixed(packet, GRANT, GrantHeaderLength)
	if err != nil {
		return h, err
	}
	h.CommonHeader = common
	decode16u(p, &h.GrantIndex)
	return h, nil
}

// DecodeResendHeader parses a RESEND packet.
func DecodeResendHeader(packet []byte) (ResendHeader, error) {
	var h ResendHeader
	common, p, err := decodeFixed(packet, RESEND, ResendHeaderLength)
	if err != nil {
		return h, err
	}
	h.CommonHeader = common
	p = decode16u(p, &h.Index)
	decode16u(p, &h.Count)
	return h, nil
}

// NewControlPacket builds a header-only packet (DONE, BUSY, PING, UNKNOWN).
func NewControlPacket(op Opcode, id MessageId) []byte {
	p := make([]byte, CommonHeaderLength)
	h := CommonHeader{Opcode: op, MessageId: id}
	h.Encode(p)
	return p
}

// NewGrantPacket builds a GRANT packet.
func NewGrantPacket(id MessageId, grantIndex uint16) []byte {
	p := make([]byte, GrantHeaderLength)
	h := GrantHeader{CommonHeader{GRANT, id}, grantIndex}
	h.Encode(p)
	return p
}

// NewResendPacket builds a RESEND packet.
func NewResendPacket(id MessageId, index, count uint16) []byte {
	p := make([]byte, ResendHeaderLength)
	h := ResendHeader{CommonHeader{RESEND, id}, index, count}
	h.Encode(p)
	return p
}

// NewDataPacket builds a DATA packet carrying payload.
func NewDataPacket(id MessageId, totalPackets, index uint16, payload []byte) []byte {
	p := make([]byte, DataHeaderLength+len(payload))
	h := DataHeader{CommonHeader{DATA, id}, totalPackets, index}
	copy(h.Encode(p), payload)
	return p
}
