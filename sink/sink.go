// Package sink is a minimal receiver: it grants every packet of a message at
// once, acknowledges complete messages and answers liveness probes.
package sink

import (
	"sync"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/protocol"
)

// Message is a fully received message.
type Message struct {
	Id     protocol.MessageId
	Source driver.Address
	Data   []byte
}

type inbound struct {
	packets  [][]byte
	seen     []bool
	received int
	done     bool
}

func (in *inbound) firstMissing() (int, int) {
	for i, ok := range in.seen {
		if ok {
			continue
		}
		count := 1
		for i+count < len(in.seen) && !in.seen[i+count] {
			count++
		}
		return i, count
	}
	return len(in.seen), 0
}

// Sink reassembles messages arriving through one driver.
type Sink struct {
	driver    driver.Driver
	onMessage func(Message)

	mu       sync.Mutex
	messages map[protocol.MessageId]*inbound
}

// New returns a Sink replying through d. onMessage is called once per
// completed message and may be nil.
func New(d driver.Driver, onMessage func(Message)) *Sink {
	return &Sink{
		driver:    d,
		onMessage: onMessage,
		messages:  make(map[protocol.MessageId]*inbound),
	}
}

// Completed returns the number of fully received messages.
func (s *Sink) Completed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, in := range s.messages {
		if in.done {
			n++
		}
	}
	return n
}

// HandlePacket processes one packet addressed to the receiver.
func (s *Sink) HandlePacket(src driver.Address, packet []byte) {
	common, err := protocol.DecodeCommonHeader(packet)
	if err != nil {
		log.Debugf("packet from %#x: %s", uint64(src), err)
		return
	}
	switch common.Opcode {
	case protocol.DATA:
		s.handleData(src, packet)
	case protocol.PING:
		s.handlePing(src, common.MessageId)
	default:
		log.Debugf("ignoring %s from %#x", common.Opcode, uint64(src))
	}
}

func (s *Sink) handleData(src driver.Address, packet []byte) {
	header, payload, err := protocol.DecodeDataHeader(packet)
	if err != nil {
		log.Debugf("data from %#x: %s", uint64(src), err)
		return
	}
	id, total, index := header.MessageId, int(header.TotalPackets), int(header.Index)
	if total == 0 || index >= total {
		log.Debugf("message %s: packet %d of %d out of range", id, index, total)
		return
	}

	s.mu.Lock()
	in, ok := s.messages[id]
	if !ok {
		in = &inbound{packets: make([][]byte, total), seen: make([]bool, total)}
		s.messages[id] = in
	}
	if len(in.seen) != total {
		s.mu.Unlock()
		log.Debugf("message %s: packet count changed to %d", id, total)
		return
	}
	var complete *Message
	if !in.done && !in.seen[index] {
		in.seen[index] = true
		in.packets[index] = append([]byte(nil), payload...)
		in.received++
		if in.received == total {
			in.done = true
			complete = &Message{Id: id, Source: src, Data: join(in.packets)}
			in.packets = nil
		}
	}
	done := in.done
	s.mu.Unlock()

	if done {
		s.reply(src, protocol.NewControlPacket(protocol.DONE, id))
	} else {
		s.reply(src, protocol.NewGrantPacket(id, uint16(total)))
	}
	if complete != nil {
		log.Debugf("message %s from %#x received, %d bytes", id, uint64(src), len(complete.Data))
		if s.onMessage != nil {
			s.onMessage(*complete)
		}
	}
}

func (s *Sink) handlePing(src driver.Address, id protocol.MessageId) {
	s.mu.Lock()
	in, ok := s.messages[id]
	var done bool
	var first, count, total int
	if ok {
		done = in.done
		first, count = in.firstMissing()
		total = len(in.seen)
	}
	s.mu.Unlock()

	switch {
	case !ok:
		s.reply(src, protocol.NewControlPacket(protocol.UNKNOWN, id))
	case done:
		s.reply(src, protocol.NewControlPacket(protocol.DONE, id))
	default:
		s.reply(src, protocol.NewGrantPacket(id, uint16(total)))
		s.reply(src, protocol.NewResendPacket(id, uint16(first), uint16(count)))
	}
}

func (s *Sink) reply(dest driver.Address, packet []byte) {
	if err := s.driver.Transmit(dest, packet); err != nil {
		log.Debugf("reply to %#x: %s", uint64(dest), err)
	}
}

func join(packets [][]byte) []byte {
	n := 0
	for _, p := range packets {
		n += len(p)
	}
	data := make([]byte, 0, n)
	for _, p := range packets {
		data = append(data, p...)
	}
	return data
}
