package sender

import (
	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/metrics"
	"github.com/vzex/dog-homa/protocol"
)

func (s *Sender) lookup(id protocol.MessageId) (*OutboundMessage, error) {
	m, ok := s.Message(id)
	if !ok {
		log.Debugf("signal for unknown message %s", id)
		return nil, errors.Wrapf(ErrUnknownMessage, "message %s", id)
	}
	return m, nil
}

// Grant authorizes sending the packets of message id below grantIndex.
func (s *Sender) Grant(id protocol.MessageId, grantIndex int) error {
	m, err := s.lookup(id)
	if err != nil {
		return err
	}
	v := view(m)
	v.lock()
	if !m.State().IsTerminal() {
		v.raiseGrant(grantIndex)
		s.heardLocked(m)
	}
	v.unlock()
	return nil
}

// Ack marks message id as fully received.
func (s *Sender) Ack(id protocol.MessageId) error {
	return s.terminate(id, Completed, nil)
}

// NotFound reports that the receiver has no record of message id.
func (s *Sender) NotFound(id protocol.MessageId) error {
	return s.terminate(id, Dropped, errors.Wrapf(ErrDropped, "message %s", id))
}

func (s *Sender) terminate(id protocol.MessageId, next State, cause error) error {
	m, err := s.lookup(id)
	if err != nil {
		return err
	}
	v := view(m)
	v.lock()
	outcome, ok := s.finishLocked(v, next, cause)
	v.unlock()
	if ok {
		s.finished(outcome)
	}
	return nil
}

// Busy reports that the receiver is alive but not granting message id.
func (s *Sender) Busy(id protocol.MessageId) error {
	m, err := s.lookup(id)
	if err != nil {
		return err
	}
	v := view(m)
	v.lock()
	s.heardLocked(m)
	v.unlock()
	return nil
}

// Resend retransmits count packets of message id starting at index. Packets
// that were never sent are not sent by a resend request.
func (s *Sender) Resend(id protocol.MessageId, index, count int) error {
	m, err := s.lookup(id)
	if err != nil {
		return err
	}
	v := view(m)
	v.lock()
	state := m.State()
	if state != InProgress && state != Sent {
		v.unlock()
		return nil
	}
	payloads := v.sentPackets(index, count)
	s.heardLocked(m)
	dest, total := m.destination, m.buffer.PacketCount()
	v.unlock()

	for i, payload := range payloads {
		s.transmit(dest, protocol.NewDataPacket(id, uint16(total), uint16(index+i), payload))
	}
	metrics.PacketsResent.Add(int64(len(payloads)))
	return nil
}

// HandlePacket decodes a receiver control packet from src and applies it.
func (s *Sender) HandlePacket(src driver.Address, packet []byte) error {
	common, err := protocol.DecodeCommonHeader(packet)
	if err != nil {
		return err
	}
	id := common.MessageId
	if m, ok := s.Message(id); ok && m.Destination() != src {
		return errors.Errorf("%s for message %s from %#x, expected %#x",
			common.Opcode, id, uint64(src), uint64(m.Destination()))
	}
	switch common.Opcode {
	case protocol.GRANT:
		header, err := protocol.DecodeGrantHeader(packet)
		if err != nil {
			return err
		}
		return s.Grant(id, int(header.GrantIndex))
	case protocol.DONE:
		return s.Ack(id)
	case protocol.UNKNOWN:
		return s.NotFound(id)
	case protocol.BUSY:
		return s.Busy(id)
	case protocol.RESEND:
		header, err := protocol.DecodeResendHeader(packet)
		if err != nil {
			return err
		}
		return s.Resend(id, int(header.Index), int(header.Count))
	default:
		return errors.Errorf("unexpected %s packet for message %s", common.Opcode, id)
	}
}
