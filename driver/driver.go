// Package driver defines the packet driver the transport runs on top of and
// the address representations shared by every driver.
package driver

import "fmt"

// Address is an opaque handle naming a peer of a driver. The transport only
// compares addresses and hands them back to the driver that produced them.
type Address uint64

// AddressKind identifies the address family carried by a WireFormatAddress.
type AddressKind uint8

// Known address families.
const (
	KindMAC  AddressKind = 0
	KindFake AddressKind = 1
	KindUDP  AddressKind = 2
)

func (k AddressKind) String() string {
	switch k {
	case KindMAC:
		return "MAC"
	case KindFake:
		return "FAKE"
	case KindUDP:
		return "UDP"
	}
	return fmt.Sprintf("AddressKind(%d)", uint8(k))
}

// WireFormatAddressSize is the encoded size of a WireFormatAddress.
const WireFormatAddressSize = 20

// WireFormatAddress is the on-wire form of a driver address: one kind byte
// followed by the raw address bytes of that family.
type WireFormatAddress [WireFormatAddressSize]byte

// Kind returns the discriminator byte.
func (w *WireFormatAddress) Kind() AddressKind {
	return AddressKind(w[0])
}

// SetKind stores the discriminator byte.
func (w *WireFormatAddress) SetKind(kind AddressKind) {
	w[0] = byte(kind)
}

// Raw returns the raw address bytes following the discriminator.
func (w *WireFormatAddress) Raw() []byte {
	return w[1:]
}

// Driver is a best-effort packet transmitter.
type Driver interface {
	// Transmit hands packet to the network for dest. It must not block; an
	// error only means this attempt had no network effect.
	Transmit(dest Address, packet []byte) error

	// LocalAddress returns the address peers use to reach this driver.
	LocalAddress() Address

	// MaxPayloadSize is the largest packet Transmit accepts.
	MaxPayloadSize() int
}

// Handler receives packets delivered by a driver. packet is only valid for
// the duration of the call.
type Handler func(src Address, packet []byte)
