// Package fake is an in-memory lossy network for exercising the transport
// without sockets.
package fake

import (
	"container/list"
	"fmt"
	"math/rand"
	"sync"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
)

// DefaultMTU is the payload size of drivers on a network created with an
// mtu of zero.
const DefaultMTU = 1400

// Address returns the fake address with the given id.
func Address(id uint32) driver.Address {
	return driver.Address(uint64(driver.KindFake)<<56 | uint64(id))
}

// WireFormat writes a fake address in its tagged wire form.
func WireFormat(addr driver.Address, w *driver.WireFormatAddress) {
	w.SetKind(driver.KindFake)
	raw := w.Raw()
	id := uint32(addr)
	raw[0], raw[1], raw[2], raw[3] = byte(id>>24), byte(id>>16), byte(id>>8), byte(id)
}

// FromWireFormat reads a fake address written by WireFormat.
func FromWireFormat(w *driver.WireFormatAddress) (driver.Address, error) {
	if w.Kind() != driver.KindFake {
		return 0, errors.WithStack(&driver.AddressFormatError{
			Kind:   driver.KindFake,
			Reason: fmt.Sprintf("wire format carries kind %s", w.Kind()),
		})
	}
	raw := w.Raw()
	return Address(uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])), nil
}

// Packet is one transmit seen by the network.
type Packet struct {
	Src, Dst driver.Address
	Data     []byte
	Lost     bool
}

// Network connects fake drivers. Loss decisions come from a seeded source,
// so a run is reproducible.
type Network struct {
	mu       sync.Mutex
	rand     *rand.Rand
	lossRate int
	dropNext int
	mtu      int
	drivers  map[driver.Address]*Driver
	sent     []Packet
}

// NewNetwork returns a loss-free network.
func NewNetwork(seed int64, mtu int) *Network {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	return &Network{
		rand:    rand.New(rand.NewSource(seed)),
		mtu:     mtu,
		drivers: make(map[driver.Address]*Driver),
	}
}

// SetLossRate makes the network lose percent out of every hundred packets.
func (n *Network) SetLossRate(percent int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lossRate = percent
}

// Drop loses the next count packets regardless of the loss rate.
func (n *Network) Drop(count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropNext += count
}

// Driver returns the driver with the given id, creating it on first use.
func (n *Network) Driver(id uint32) *Driver {
	n.mu.Lock()
	defer n.mu.Unlock()
	addr := Address(id)
	d, ok := n.drivers[addr]
	if !ok {
		d = &Driver{network: n, addr: addr, inbox: list.New()}
		n.drivers[addr] = d
	}
	return d
}

// Transmits returns every packet transmitted so far, lost ones included.
func (n *Network) Transmits() []Packet {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Packet(nil), n.sent...)
}

// Reset forgets the recorded transmits.
func (n *Network) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

func (n *Network) transmit(src, dst driver.Address, data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(data) > n.mtu {
		return errors.Errorf("packet of %d bytes exceeds mtu %d", len(data), n.mtu)
	}
	peer, ok := n.drivers[dst]
	if !ok {
		return errors.Errorf("no fake driver at %#x", uint64(dst))
	}
	pkt := Packet{Src: src, Dst: dst, Data: append([]byte(nil), data...)}
	switch {
	case n.dropNext > 0:
		n.dropNext--
		pkt.Lost = true
	case n.lossRate > 0 && n.rand.Intn(100) < n.lossRate:
		pkt.Lost = true
	}
	n.sent = append(n.sent, pkt)
	if !pkt.Lost {
		peer.inbox.PushBack(pkt)
	}
	return nil
}

// Driver is one endpoint of a Network.
type Driver struct {
	network *Network
	addr    driver.Address
	// guarded by network.mu
	inbox *list.List
}

func (d *Driver) Transmit(dest driver.Address, packet []byte) error {
	return d.network.transmit(d.addr, dest, packet)
}

func (d *Driver) LocalAddress() driver.Address {
	return d.addr
}

func (d *Driver) MaxPayloadSize() int {
	return d.network.mtu
}

// Pending returns the number of packets waiting in the inbox.
func (d *Driver) Pending() int {
	d.network.mu.Lock()
	defer d.network.mu.Unlock()
	return d.inbox.Len()
}

// Deliver hands every queued packet to handler and returns how many were
// delivered. Packets transmitted by handler are queued for a later call.
func (d *Driver) Deliver(handler driver.Handler) int {
	d.network.mu.Lock()
	inbox := d.inbox
	d.inbox = list.New()
	d.network.mu.Unlock()

	for e := inbox.Front(); e != nil; e = e.Next() {
		pkt := e.Value.(Packet)
		handler(pkt.Src, pkt.Data)
	}
	return inbox.Len()
}
