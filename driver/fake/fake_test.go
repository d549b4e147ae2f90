package fake

import (
	"testing"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
)

func TestDeliver(t *testing.T) {
	n := NewNetwork(1, 0)
	a, b := n.Driver(1), n.Driver(2)
	if err := a.Transmit(b.LocalAddress(), []byte("hello")); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	var got []string
	delivered := b.Deliver(func(src driver.Address, packet []byte) {
		if src != a.LocalAddress() {
			t.Errorf("src %#x, want %#x", uint64(src), uint64(a.LocalAddress()))
		}
		got = append(got, string(packet))
	})
	if delivered != 1 || len(got) != 1 || got[0] != "hello" {
		t.Fatalf("delivered %d packets: %q", delivered, got)
	}
	if b.Pending() != 0 {
		t.Fatalf("inbox not drained")
	}
}

func TestTransmitErrors(t *testing.T) {
	n := NewNetwork(1, 16)
	a := n.Driver(1)
	if err := a.Transmit(Address(7), []byte("x")); err == nil {
		t.Fatalf("transmit to a missing driver succeeded")
	}
	n.Driver(2)
	if err := a.Transmit(Address(2), make([]byte, 17)); err == nil {
		t.Fatalf("oversized transmit succeeded")
	}
	if len(n.Transmits()) != 0 {
		t.Fatalf("failed transmits were recorded")
	}
}

func TestDropAndLossRate(t *testing.T) {
	n := NewNetwork(42, 0)
	a, b := n.Driver(1), n.Driver(2)
	n.Drop(2)
	for i := 0; i < 3; i++ {
		a.Transmit(b.LocalAddress(), []byte{byte(i)})
	}
	if b.Pending() != 1 {
		t.Fatalf("%d packets pending, want 1", b.Pending())
	}
	sent := n.Transmits()
	if len(sent) != 3 || !sent[0].Lost || !sent[1].Lost || sent[2].Lost {
		t.Fatalf("unexpected loss pattern %+v", sent)
	}

	n.Reset()
	n.SetLossRate(100)
	a.Transmit(b.LocalAddress(), []byte{9})
	if b.Pending() != 1 {
		t.Fatalf("packet delivered at 100%% loss")
	}
	n.SetLossRate(0)
	for i := 0; i < 100; i++ {
		a.Transmit(b.LocalAddress(), []byte{byte(i)})
	}
	if b.Pending() != 101 {
		t.Fatalf("%d packets pending, want 101", b.Pending())
	}
}

func TestWireFormat(t *testing.T) {
	var w driver.WireFormatAddress
	WireFormat(Address(0x01020304), &w)
	addr, err := FromWireFormat(&w)
	if err != nil {
		t.Fatalf("FromWireFormat: %v", err)
	}
	if addr != Address(0x01020304) {
		t.Fatalf("round trip gave %#x", uint64(addr))
	}
	w.SetKind(driver.KindMAC)
	_, err = FromWireFormat(&w)
	var formatErr *driver.AddressFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected AddressFormatError, got %v", err)
	}
}
