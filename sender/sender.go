// Package sender drives outbound messages from submission to a terminal
// state. Packets go out as the receiver grants them; stalled messages are
// retransmitted and silent peers are probed until a budget runs out.
package sender

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/journal"
	"github.com/vzex/dog-homa/metrics"
	"github.com/vzex/dog-homa/protocol"
	"github.com/vzex/dog-homa/timeout"
)

// Sender owns the outbound messages of one transport.
type Sender struct {
	driver     driver.Driver
	setting    Setting
	ids        *protocol.IdGenerator
	packetSize int

	// unix nanoseconds of the latest Poll, zero before the first one.
	// Signals measure their deadlines from it, never from the wall clock.
	current atomic.Int64

	stallTimeouts *timeout.Registry[*OutboundMessage]
	pingTimeouts  *timeout.Registry[*OutboundMessage]

	mu       sync.Mutex
	messages map[protocol.MessageId]*OutboundMessage
	journal  journal.Journal
}

// New returns a Sender transmitting through d. transportId tags every
// message id it assigns.
func New(d driver.Driver, transportId uint64, setting *Setting) (*Sender, error) {
	if setting == nil {
		setting = DefaultSetting()
	}
	if err := setting.validate(); err != nil {
		return nil, err
	}
	packetSize := d.MaxPayloadSize() - protocol.DataHeaderLength
	if packetSize <= 0 {
		return nil, errors.Errorf("driver payload size %d leaves no room after a %d byte header",
			d.MaxPayloadSize(), protocol.DataHeaderLength)
	}
	s := &Sender{
		driver:        d,
		setting:       *setting,
		ids:           protocol.NewIdGenerator(transportId),
		packetSize:    packetSize,
		stallTimeouts: timeout.NewRegistry[*OutboundMessage](),
		pingTimeouts:  timeout.NewRegistry[*OutboundMessage](),
		messages:      make(map[protocol.MessageId]*OutboundMessage),
		journal:       journal.Discard,
	}
	return s, nil
}

// SetJournal makes the Sender record every terminal outcome in j.
func (s *Sender) SetJournal(j journal.Journal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j == nil {
		j = journal.Discard
	}
	s.journal = j
}

// AllocMessage returns an empty message sized for the Sender's driver.
func (s *Sender) AllocMessage() *OutboundMessage {
	return newOutboundMessage(s.packetSize)
}

// SendMessage assigns msg an id, freezes its payload and queues it for
// transmission to dest.
func (s *Sender) SendMessage(msg *OutboundMessage, dest driver.Address) (protocol.MessageId, error) {
	msg.mu.Lock()
	if msg.queued {
		msg.mu.Unlock()
		return protocol.MessageId{}, errors.Wrapf(ErrAlreadySent, "message %s", msg.id)
	}
	msg.id = s.ids.Next()
	msg.destination = dest
	msg.queued = true
	msg.buffer.frozen = true
	id := msg.id
	msg.mu.Unlock()

	s.mu.Lock()
	s.messages[id] = msg
	n := len(s.messages)
	s.mu.Unlock()
	metrics.SetActiveMessages(n)
	log.Debugf("message %s queued for %#x", id, uint64(dest))
	return id, nil
}

// Release forgets a terminal message. Signals arriving for it afterwards
// are treated as unknown.
func (s *Sender) Release(msg *OutboundMessage) error {
	if state := msg.State(); !state.IsTerminal() {
		return errors.Wrapf(ErrMessageInFlight, "message %s is %s", msg.Id(), state)
	}
	id := msg.Id()
	s.mu.Lock()
	if s.messages[id] == msg {
		delete(s.messages, id)
	}
	n := len(s.messages)
	s.mu.Unlock()
	metrics.SetActiveMessages(n)
	return nil
}

// Message returns the tracked message with the given id.
func (s *Sender) Message(id protocol.MessageId) (*OutboundMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[id]
	return m, ok
}

func (s *Sender) now() time.Time {
	return time.Unix(0, s.current.Load())
}

func (s *Sender) advance(now time.Time) {
	n := now.UnixNano()
	for {
		old := s.current.Load()
		if n <= old || s.current.CompareAndSwap(old, n) {
			return
		}
	}
}

// Poll fires the timeouts due at now and transmits every packet that became
// sendable.
func (s *Sender) Poll(now time.Time) {
	s.advance(now)
	s.checkStallTimeouts(now)
	s.checkPingTimeouts(now)

	live := s.liveMessages()
	workers := s.setting.Workers
	if workers <= 1 || len(live) < 2*workers {
		for _, m := range live {
			s.trySend(m, now)
		}
		return
	}
	var wg sync.WaitGroup
	chunk := (len(live) + workers - 1) / workers
	for start := 0; start < len(live); start += chunk {
		end := start + chunk
		if end > len(live) {
			end = len(live)
		}
		wg.Add(1)
		go func(part []*OutboundMessage) {
			defer wg.Done()
			for _, m := range part {
				s.trySend(m, now)
			}
		}(live[start:end])
	}
	wg.Wait()
}

// NextTimeout returns the earliest pending deadline.
func (s *Sender) NextTimeout() (time.Time, bool) {
	stall, okStall := s.stallTimeouts.NextExpiration()
	ping, okPing := s.pingTimeouts.NextExpiration()
	switch {
	case okStall && okPing:
		if ping.Before(stall) {
			return ping, true
		}
		return stall, true
	case okStall:
		return stall, true
	default:
		return ping, okPing
	}
}

// Run polls until ctx is done.
func (s *Sender) Run(ctx context.Context) error {
	timer := time.NewTimer(s.setting.PollInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-timer.C:
			s.Poll(now)
			wait := s.setting.PollInterval
			if next, ok := s.NextTimeout(); ok {
				if d := next.Sub(time.Now()); d < wait {
					wait = d
				}
			}
			if wait < 0 {
				wait = 0
			}
			timer.Reset(wait)
		}
	}
}

func (s *Sender) liveMessages() []*OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make([]*OutboundMessage, 0, len(s.messages))
	for _, m := range s.messages {
		if state := m.State(); state == NotStarted || state == InProgress {
			live = append(live, m)
		}
	}
	return live
}

func (s *Sender) trySend(m *OutboundMessage, now time.Time) {
	v := view(m)
	v.lock()
	started := false
	if m.State() == NotStarted {
		if err := v.start(s.setting.UnscheduledPackets); err != nil {
			v.unlock()
			log.Errorf("message %s: %+v", m.id, err)
			return
		}
		started = true
		s.pingTimeouts.Schedule(&m.pingTimeout, now.Add(s.setting.PingInterval))
	}
	if m.State() != InProgress {
		v.unlock()
		return
	}
	// The stall timer only runs while sent packets are outstanding.
	first, payloads := v.nextPackets()
	if len(payloads) > 0 {
		m.retries = 0
		s.stallTimeouts.Schedule(&m.stallTimeout, now.Add(s.setting.StallTimeout))
	}
	if v.allSent() {
		s.stallTimeouts.Cancel(&m.stallTimeout)
		if err := v.transition(Sent); err != nil {
			log.Errorf("message %s: %+v", m.id, err)
		}
	}
	id, dest, total := m.id, m.destination, m.buffer.PacketCount()
	v.unlock()

	if started {
		metrics.MessagesStarted.Add(1)
		log.Tracef("message %s started, %d packets", id, total)
	}
	for i, payload := range payloads {
		s.transmit(dest, protocol.NewDataPacket(id, uint16(total), uint16(first+i), payload))
	}
	metrics.PacketsSent.Add(int64(len(payloads)))
}

func (s *Sender) checkStallTimeouts(now time.Time) {
	if next, ok := s.stallTimeouts.NextExpiration(); !ok || next.After(now) {
		return
	}
	for _, m := range s.stallTimeouts.Reap(now) {
		s.onStall(m, now)
	}
}

func (s *Sender) onStall(m *OutboundMessage, now time.Time) {
	v := view(m)
	v.lock()
	if m.State() != InProgress || m.sentIndex == 0 || s.stallTimeouts.Scheduled(&m.stallTimeout) {
		v.unlock()
		return
	}
	if m.retries >= s.setting.MaxStallRetries {
		outcome, ok := s.finishLocked(v, Failed, errors.Wrapf(ErrRetriesExhausted,
			"message %s after %d retries", m.id, m.retries))
		v.unlock()
		if ok {
			s.finished(outcome)
		}
		return
	}
	m.retries++
	payloads := v.sentPackets(0, m.sentIndex)
	s.stallTimeouts.Schedule(&m.stallTimeout, now.Add(s.setting.StallTimeout))
	id, dest, total, retries := m.id, m.destination, m.buffer.PacketCount(), m.retries
	v.unlock()

	log.Debugf("message %s stalled, resending %d packets (retry %d)", id, len(payloads), retries)
	for i, payload := range payloads {
		s.transmit(dest, protocol.NewDataPacket(id, uint16(total), uint16(i), payload))
	}
	metrics.PacketsResent.Add(int64(len(payloads)))
}

func (s *Sender) checkPingTimeouts(now time.Time) {
	if next, ok := s.pingTimeouts.NextExpiration(); !ok || next.After(now) {
		return
	}
	for _, m := range s.pingTimeouts.Reap(now) {
		s.onPingTimeout(m, now)
	}
}

func (s *Sender) onPingTimeout(m *OutboundMessage, now time.Time) {
	v := view(m)
	v.lock()
	if state := m.State(); (state != InProgress && state != Sent) || s.pingTimeouts.Scheduled(&m.pingTimeout) {
		v.unlock()
		return
	}
	if m.pings >= s.setting.MaxPings {
		outcome, ok := s.finishLocked(v, Failed, errors.Wrapf(ErrPeerUnresponsive,
			"message %s after %d pings", m.id, m.pings))
		v.unlock()
		if ok {
			s.finished(outcome)
		}
		return
	}
	m.pings++
	s.pingTimeouts.Schedule(&m.pingTimeout, now.Add(s.setting.PingInterval))
	id, dest := m.id, m.destination
	v.unlock()

	s.transmit(dest, protocol.NewControlPacket(protocol.PING, id))
	metrics.PingsSent.Add(1)
}

// heardLocked treats a receiver signal as proof the peer is alive: the
// liveness probe starts over and a running stall timer is pushed back
// without spending a retry.
func (s *Sender) heardLocked(m *OutboundMessage) {
	if state := m.State(); state != InProgress && state != Sent {
		return
	}
	now := s.now()
	m.pings = 0
	s.pingTimeouts.Schedule(&m.pingTimeout, now.Add(s.setting.PingInterval))
	if s.stallTimeouts.Scheduled(&m.stallTimeout) {
		s.stallTimeouts.Schedule(&m.stallTimeout, now.Add(s.setting.StallTimeout))
	}
}

// finishLocked cancels the timeouts of a live message and moves it to a
// terminal state. It reports false when the transition is not allowed.
func (s *Sender) finishLocked(v engineView, next State, cause error) (journal.Outcome, bool) {
	m := v.m
	if !m.State().CanTransition(next) {
		return journal.Outcome{}, false
	}
	s.stallTimeouts.Cancel(&m.stallTimeout)
	s.pingTimeouts.Cancel(&m.pingTimeout)
	if err := v.finish(next, cause); err != nil {
		log.Errorf("message %s: %+v", m.id, err)
		return journal.Outcome{}, false
	}
	return journal.Outcome{
		Id:          m.id,
		Destination: m.destination,
		State:       next.String(),
		Packets:     m.buffer.PacketCount(),
		Sent:        m.sentIndex,
		Retries:     m.retries,
		Pings:       m.pings,
		At:          s.now(),
	}, true
}

func (s *Sender) finished(outcome journal.Outcome) {
	switch outcome.State {
	case Completed.String():
		metrics.MessagesCompleted.Add(1)
		log.Debugf("message %s completed", outcome.Id)
	case Dropped.String():
		metrics.MessagesDropped.Add(1)
		log.Infof("message %s dropped by %#x", outcome.Id, uint64(outcome.Destination))
	case Failed.String():
		metrics.MessagesFailed.Add(1)
		log.Warnf("message %s to %#x failed after %d retries and %d pings",
			outcome.Id, uint64(outcome.Destination), outcome.Retries, outcome.Pings)
	}
	s.mu.Lock()
	j := s.journal
	s.mu.Unlock()
	if err := j.Record(outcome); err != nil {
		log.Errorf("journal message %s: %+v", outcome.Id, err)
	}
}

func (s *Sender) transmit(dest driver.Address, packet []byte) {
	if err := s.driver.Transmit(dest, packet); err != nil {
		metrics.TransmitErrors.Add(1)
		log.Debugf("transmit to %#x: %s", uint64(dest), err)
	}
}
