package sender

import "github.com/pkg/errors"

// engineView is the Sender's write access to an OutboundMessage. Every
// method expects the message lock to be held.
type engineView struct {
	m *OutboundMessage
}

func view(m *OutboundMessage) engineView {
	return engineView{m: m}
}

func (v engineView) lock()   { v.m.mu.Lock() }
func (v engineView) unlock() { v.m.mu.Unlock() }

func (v engineView) transition(next State) error {
	current := v.m.State()
	if !current.CanTransition(next) {
		return errors.Wrapf(ErrInvalidTransition, "%s -> %s", current, next)
	}
	v.m.state.Store(int32(next))
	return nil
}

// start moves a fresh message to InProgress with the unscheduled grant.
func (v engineView) start(unscheduled int) error {
	if err := v.transition(InProgress); err != nil {
		return err
	}
	v.raiseGrant(unscheduled)
	return nil
}

// raiseGrant lifts grantIndex to index, clamped to the packet count. Lower
// grants are ignored. It reports whether the grant moved.
func (v engineView) raiseGrant(index int) bool {
	if total := v.m.buffer.PacketCount(); index > total {
		index = total
	}
	if index <= v.m.grantIndex {
		return false
	}
	v.m.grantIndex = index
	return true
}

// nextPackets claims every granted packet not sent yet and returns the
// index of the first one with their payloads.
func (v engineView) nextPackets() (int, [][]byte) {
	first := v.m.sentIndex
	if first >= v.m.grantIndex {
		return first, nil
	}
	payloads := make([][]byte, 0, v.m.grantIndex-first)
	for i := first; i < v.m.grantIndex; i++ {
		payloads = append(payloads, v.m.buffer.Packet(i))
	}
	v.m.sentIndex = v.m.grantIndex
	return first, payloads
}

// sentPackets returns payloads of already sent packets in [index, index+count).
func (v engineView) sentPackets(index, count int) [][]byte {
	end := index + count
	if end > v.m.sentIndex {
		end = v.m.sentIndex
	}
	if index < 0 || index >= end {
		return nil
	}
	payloads := make([][]byte, 0, end-index)
	for i := index; i < end; i++ {
		payloads = append(payloads, v.m.buffer.Packet(i))
	}
	return payloads
}

func (v engineView) allSent() bool {
	return v.m.sentIndex == v.m.buffer.PacketCount()
}

// finish moves the message to a terminal state, records why and wakes
// waiters. Completed messages give up their payload.
func (v engineView) finish(next State, cause error) error {
	if err := v.transition(next); err != nil {
		return err
	}
	v.m.err = cause
	if next == Completed {
		v.m.buffer.release()
	}
	close(v.m.done)
	return nil
}
