package driver

import (
	"testing"

	"github.com/pkg/errors"
)

func TestWireFormatAddress(t *testing.T) {
	var w WireFormatAddress
	w.SetKind(KindUDP)
	copy(w.Raw(), []byte{1, 2, 3})
	if w.Kind() != KindUDP {
		t.Fatalf("kind is %s", w.Kind())
	}
	if w[1] != 1 || w[3] != 3 {
		t.Fatalf("raw bytes not stored after the kind: %v", w)
	}
	if len(w.Raw()) != WireFormatAddressSize-1 {
		t.Fatalf("raw length %d", len(w.Raw()))
	}
}

func TestAddressFormatErrorAs(t *testing.T) {
	err := errors.Wrap(errors.WithStack(&AddressFormatError{Kind: KindMAC, Input: "zz", Reason: "bad octet"}), "parse")
	var formatErr *AddressFormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("errors.As failed on %+v", err)
	}
	if formatErr.Error() != `bad MAC address "zz": bad octet` {
		t.Fatalf("unexpected message %q", formatErr.Error())
	}
	if AddressKind(9).String() != "AddressKind(9)" {
		t.Fatalf("unexpected kind string %s", AddressKind(9))
	}
}
