// Package mac converts Ethernet hardware addresses between raw bytes, their
// colon separated text form, the driver wire format and driver.Address.
package mac

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
)

// Length is the number of bytes in a hardware address.
const Length = 6

// Address is an Ethernet hardware address. It is a value type.
type Address [Length]byte

// Null is the all-zero address.
var Null Address

func formatError(input, reason string) error {
	return errors.WithStack(&driver.AddressFormatError{Kind: driver.KindMAC, Input: input, Reason: reason})
}

// New returns the address holding raw.
func New(raw [Length]byte) Address {
	return Address(raw)
}

// FromBytes copies a 6 byte slice into an Address.
func FromBytes(raw []byte) (Address, error) {
	var a Address
	if len(raw) != Length {
		return a, formatError("", "expected "+strconv.Itoa(Length)+" bytes, got "+strconv.Itoa(len(raw)))
	}
	copy(a[:], raw)
	return a, nil
}

// Parse reads the colon separated hexadecimal form produced by String.
// Octets may use one or two digits of either case.
func Parse(s string) (Address, error) {
	var a Address
	fields := strings.Split(s, ":")
	if len(fields) != Length {
		return a, formatError(s, "expected "+strconv.Itoa(Length)+" octets")
	}
	for i, field := range fields {
		if len(field) == 0 || len(field) > 2 {
			return a, formatError(s, "octet "+strconv.Itoa(i)+" is not one or two hex digits")
		}
		b, err := strconv.ParseUint(field, 16, 8)
		if err != nil {
			return a, formatError(s, "octet "+strconv.Itoa(i)+" is not hexadecimal")
		}
		a[i] = byte(b)
	}
	return a, nil
}

// FromWireFormat decodes a wire address, failing when it does not carry a
// MAC address.
func FromWireFormat(w *driver.WireFormatAddress) (Address, error) {
	var a Address
	if w.Kind() != driver.KindMAC {
		return a, formatError("", "wire address kind is "+w.Kind().String())
	}
	copy(a[:], w.Raw())
	return a, nil
}

// FromAddress unpacks a handle produced by Address.Address.
func FromAddress(addr driver.Address) Address {
	var a Address
	for i := Length - 1; i >= 0; i-- {
		a[i] = byte(addr)
		addr >>= 8
	}
	return a
}

// String renders the address as lowercase, zero-padded hex octets
// separated by colons.
func (a Address) String() string {
	return net.HardwareAddr(a[:]).String()
}

// WireFormat writes the MAC kind followed by the raw bytes into w.
func (a Address) WireFormat(w *driver.WireFormatAddress) {
	*w = driver.WireFormatAddress{}
	w.SetKind(driver.KindMAC)
	copy(w.Raw(), a[:])
}

// Address packs the address into the low 48 bits of a driver handle.
func (a Address) Address() driver.Address {
	var addr driver.Address
	for _, b := range a {
		addr = addr<<8 | driver.Address(b)
	}
	return addr
}

// IsNull reports whether every byte is zero.
func (a Address) IsNull() bool {
	return a == Null
}
