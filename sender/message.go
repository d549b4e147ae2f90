package sender

import (
	"context"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/protocol"
	"github.com/vzex/dog-homa/spinlock"
	"github.com/vzex/dog-homa/timeout"
)

// OutboundMessage is one application message and its sending progress.
// Applications fill it through AcquireBuffer before handing it to
// Sender.SendMessage; from then on only the Sender changes it.
type OutboundMessage struct {
	mu spinlock.SpinLock

	// guarded by mu
	id          protocol.MessageId
	destination driver.Address
	queued      bool
	buffer      *Buffer
	sentIndex   int
	grantIndex  int
	retries     int
	pings       int
	err         error

	// written only with mu held
	state atomic.Int32

	done chan struct{}

	stallTimeout timeout.Timeout[*OutboundMessage]
	pingTimeout  timeout.Timeout[*OutboundMessage]
}

// Snapshot is a consistent view of a message's progress.
type Snapshot struct {
	State        State
	SentIndex    int
	GrantIndex   int
	TotalPackets int
	Retries      int
	Pings        int
}

func newOutboundMessage(packetSize int) *OutboundMessage {
	m := &OutboundMessage{
		buffer: newBuffer(packetSize),
		done:   make(chan struct{}),
	}
	m.stallTimeout.Init(m)
	m.pingTimeout.Init(m)
	return m
}

// AcquireBuffer runs fn with exclusive access to the message payload.
func (m *OutboundMessage) AcquireBuffer(fn func(*Buffer) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.buffer)
}

// State returns the current lifecycle state without locking.
func (m *OutboundMessage) State() State {
	return State(m.state.Load())
}

// Snapshot returns the message progress taken under the message lock.
func (m *OutboundMessage) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *OutboundMessage) snapshotLocked() Snapshot {
	return Snapshot{
		State:        m.State(),
		SentIndex:    m.sentIndex,
		GrantIndex:   m.grantIndex,
		TotalPackets: m.buffer.PacketCount(),
		Retries:      m.retries,
		Pings:        m.pings,
	}
}

// Id returns the identifier assigned when the message was sent.
func (m *OutboundMessage) Id() protocol.MessageId {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Destination returns the peer the message is addressed to.
func (m *OutboundMessage) Destination() driver.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.destination
}

// Done is closed once the message reaches a terminal state.
func (m *OutboundMessage) Done() <-chan struct{} {
	return m.done
}

// Err returns why the message failed or was dropped. It is nil while the
// message is live and after it completed.
func (m *OutboundMessage) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Wait blocks until the message is terminal or ctx is done.
func (m *OutboundMessage) Wait(ctx context.Context) (State, error) {
	select {
	case <-m.done:
		return m.State(), m.Err()
	case <-ctx.Done():
		return m.State(), errors.Wrap(ctx.Err(), "waiting for message")
	}
}
