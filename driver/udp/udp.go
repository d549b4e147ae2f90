// Package udp emulates a MAC-addressed link over UDP so the transport can
// run without kernel-bypass hardware. Each datagram carries one frame:
// destination MAC, source MAC and the transport packet, optionally protected
// by forward error correction and compressed.
package udp

import (
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/driver/mac"
)

const frameHeaderLength = 2 * mac.Length

const readBufferSize = 65536

// Setting configures a UDP link driver.
type Setting struct {
	Listen   string
	LocalMAC mac.Address
	// Peers maps link addresses to UDP endpoints.
	Peers    map[mac.Address]string
	MTU      int
	Compress bool
	// DataShards and ParityShards enable FEC when both are positive.
	DataShards   int
	ParityShards int
	GroupTimeout time.Duration
}

func DefaultSetting() *Setting {
	return &Setting{
		Listen:       ":7000",
		MTU:          1400,
		Peers:        make(map[mac.Address]string),
		GroupTimeout: 15 * time.Second,
	}
}

func (s *Setting) fec() bool {
	return s.DataShards > 0 && s.ParityShards > 0
}

// MaxPayloadSize returns the largest packet a link with this setting
// carries in one datagram.
func (s *Setting) MaxPayloadSize() int {
	size := s.MTU - frameHeaderLength
	if s.fec() {
		size -= fecOverhead
	}
	return size
}

// Driver is a driver.Driver sending frames over one UDP socket.
type Driver struct {
	setting Setting
	conn    *net.UDPConn
	handler driver.Handler

	mu       sync.RWMutex
	peers    map[mac.Address]*net.UDPAddr
	encoders map[mac.Address]*fecEncoder

	// read loop only
	decoders   map[string]*fecDecoder
	lastExpire time.Time

	quit chan struct{}
	wg   sync.WaitGroup
}

// Open binds the socket and starts delivering received packets to handler.
func Open(setting *Setting, handler driver.Handler) (*Driver, error) {
	if setting.LocalMAC.IsNull() {
		return nil, errors.New("local mac address not set")
	}
	if setting.fec() {
		if _, err := newFecEncoder(setting.DataShards, setting.ParityShards); err != nil {
			return nil, err
		}
	}
	if setting.MaxPayloadSize() <= 0 {
		return nil, errors.Errorf("mtu %d leaves no room for packets", setting.MTU)
	}
	addr, err := net.ResolveUDPAddr("udp", setting.Listen)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", setting.Listen)
	}
	d := &Driver{
		setting:  *setting,
		handler:  handler,
		peers:    make(map[mac.Address]*net.UDPAddr),
		encoders: make(map[mac.Address]*fecEncoder),
		decoders: make(map[string]*fecDecoder),
		quit:     make(chan struct{}),
	}
	for hw, endpoint := range setting.Peers {
		if err := d.AddPeer(hw, endpoint); err != nil {
			return nil, err
		}
	}
	d.conn, err = net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", setting.Listen)
	}
	d.wg.Add(1)
	go d.readLoop()
	log.Infof("link %s on %s, mtu %d", setting.LocalMAC, d.conn.LocalAddr(), setting.MTU)
	return d, nil
}

// AddPeer maps the link address hw to the UDP endpoint.
func (d *Driver) AddPeer(hw mac.Address, endpoint string) error {
	addr, err := net.ResolveUDPAddr("udp", endpoint)
	if err != nil {
		return errors.Wrapf(err, "peer %s", hw)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peers[hw] = addr
	return nil
}

func (d *Driver) LocalAddress() driver.Address {
	return d.setting.LocalMAC.Address()
}

// LocalAddr returns the UDP address the driver listens on.
func (d *Driver) LocalAddr() net.Addr {
	return d.conn.LocalAddr()
}

func (d *Driver) MaxPayloadSize() int {
	return d.setting.MaxPayloadSize()
}

func (d *Driver) Transmit(dest driver.Address, packet []byte) error {
	if len(packet) > d.MaxPayloadSize() {
		return errors.Errorf("packet of %d bytes exceeds %d", len(packet), d.MaxPayloadSize())
	}
	hw := mac.FromAddress(dest)
	frame := make([]byte, frameHeaderLength+len(packet))
	copy(frame, hw[:])
	copy(frame[mac.Length:], d.setting.LocalMAC[:])
	copy(frame[frameHeaderLength:], packet)

	if !d.setting.fec() {
		d.mu.RLock()
		addr, ok := d.peers[hw]
		d.mu.RUnlock()
		if !ok {
			return errors.Errorf("no endpoint for %s", hw)
		}
		return d.write(frame, addr)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	addr, ok := d.peers[hw]
	if !ok {
		return errors.Errorf("no endpoint for %s", hw)
	}
	enc, ok := d.encoders[hw]
	if !ok {
		var err error
		if enc, err = newFecEncoder(d.setting.DataShards, d.setting.ParityShards); err != nil {
			return err
		}
		d.encoders[hw] = enc
	}
	datagrams, err := enc.add(frame)
	for _, datagram := range datagrams {
		if werr := d.write(datagram, addr); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

func (d *Driver) write(b []byte, addr *net.UDPAddr) error {
	if d.setting.Compress {
		var err error
		if b, err = compress(b); err != nil {
			return err
		}
	}
	_, err := d.conn.WriteToUDP(b, addr)
	return errors.WithStack(err)
}

func (d *Driver) readLoop() {
	defer d.wg.Done()
	buf := make([]byte, readBufferSize)
	for {
		n, from, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-d.quit:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			log.Errorf("read: %s", err)
			return
		}
		d.receive(buf[:n], from, time.Now())
	}
}

func (d *Driver) receive(b []byte, from *net.UDPAddr, now time.Time) {
	if d.setting.Compress {
		var err error
		if b, err = decompress(b); err != nil {
			log.Debugf("datagram from %s: %s", from, err)
			return
		}
	}
	if !d.setting.fec() {
		d.deliver(b, from)
		return
	}

	key := from.String()
	dec, ok := d.decoders[key]
	if !ok {
		var err error
		dec, err = newFecDecoder(d.setting.DataShards, d.setting.ParityShards, d.setting.GroupTimeout)
		if err != nil {
			log.Errorf("%+v", err)
			return
		}
		d.decoders[key] = dec
	}
	frames, err := dec.add(b, now)
	if err != nil {
		log.Debugf("shard from %s: %s", from, err)
	}
	for _, frame := range frames {
		d.deliver(frame, from)
	}
	if now.Sub(d.lastExpire) >= d.setting.GroupTimeout {
		d.lastExpire = now
		for _, dec := range d.decoders {
			dec.expire(now)
		}
	}
}

func (d *Driver) deliver(frame []byte, from *net.UDPAddr) {
	if len(frame) < frameHeaderLength {
		log.Debugf("runt frame of %d bytes from %s", len(frame), from)
		return
	}
	dst, _ := mac.FromBytes(frame[:mac.Length])
	if dst != d.setting.LocalMAC {
		log.Tracef("frame for %s ignored", dst)
		return
	}
	src, _ := mac.FromBytes(frame[mac.Length:frameHeaderLength])
	d.handler(src.Address(), frame[frameHeaderLength:])
}

// Close stops the read loop and releases the socket.
func (d *Driver) Close() error {
	close(d.quit)
	err := d.conn.Close()
	d.wg.Wait()
	return errors.WithStack(err)
}
