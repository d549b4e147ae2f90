package sender

import (
	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/protocol"
)

// Buffer holds the payload of an outbound message split into packets of a
// fixed size; only the last packet may be shorter.
type Buffer struct {
	packetSize int
	packets    [][]byte
	length     int
	frozen     bool
}

func newBuffer(packetSize int) *Buffer {
	return &Buffer{packetSize: packetSize}
}

// Append adds data to the end of the message.
func (b *Buffer) Append(data []byte) error {
	if b.frozen {
		return errors.WithStack(ErrBufferFrozen)
	}
	if packetCount(b.length+len(data), b.packetSize) > protocol.MaxPackets {
		return errors.Wrapf(ErrMessageTooLarge, "%d bytes", b.length+len(data))
	}
	for len(data) > 0 {
		n := len(b.packets)
		if n == 0 || len(b.packets[n-1]) == b.packetSize {
			b.packets = append(b.packets, make([]byte, 0, b.packetSize))
			n++
		}
		last := b.packets[n-1]
		room := b.packetSize - len(last)
		if room > len(data) {
			room = len(data)
		}
		b.packets[n-1] = append(last, data[:room]...)
		data = data[room:]
		b.length += room
	}
	return nil
}

// Reset empties the buffer.
func (b *Buffer) Reset() error {
	if b.frozen {
		return errors.WithStack(ErrBufferFrozen)
	}
	b.packets = nil
	b.length = 0
	return nil
}

// Len returns the message length in bytes.
func (b *Buffer) Len() int {
	return b.length
}

// PacketSize returns the payload size of every packet but the last.
func (b *Buffer) PacketSize() int {
	return b.packetSize
}

// PacketCount returns the number of packets the message is sent in. An
// empty message is sent as one empty packet.
func (b *Buffer) PacketCount() int {
	return packetCount(b.length, b.packetSize)
}

// Packet returns the payload of packet i. The returned slice must not be
// modified.
func (b *Buffer) Packet(i int) []byte {
	if i < 0 || i >= b.PacketCount() {
		panic(errors.Errorf("packet index %d out of range [0, %d)", i, b.PacketCount()))
	}
	if i >= len(b.packets) {
		return nil
	}
	return b.packets[i]
}

func (b *Buffer) release() {
	b.packets = nil
}

func packetCount(length, packetSize int) int {
	if length == 0 {
		return 1
	}
	return (length + packetSize - 1) / packetSize
}
