// Package journal stores the terminal outcome of every outbound message.
package journal

import (
	"encoding/binary"
	"time"

	"github.com/pkg/errors"

	"github.com/vzex/dog-homa/driver"
	"github.com/vzex/dog-homa/protocol"
)

// Outcome is the final record of one message.
type Outcome struct {
	Id          protocol.MessageId
	Destination driver.Address
	State       string
	Packets     int
	Sent        int
	Retries     int
	Pings       int
	At          time.Time
}

// Journal records outcomes. Implementations must be safe for concurrent use.
type Journal interface {
	Record(outcome Outcome) error
	Close() error
}

// Discard drops every outcome.
var Discard Journal = discard{}

type discard struct{}

func (discard) Record(Outcome) error { return nil }
func (discard) Close() error          { return nil }

const maxStateLength = 16

// encodedOutcomeLength covers destination(8) packets(2) sent(2) retries(2)
// pings(2) at(8) state length(1) state.
const encodedOutcomeLength = 8 + 2 + 2 + 2 + 2 + 8 + 1

var errCorruptOutcome = errors.New("corrupt outcome record")

func encodeKey(id protocol.MessageId) []byte {
	key := make([]byte, protocol.MessageIdLength)
	binary.BigEndian.PutUint64(key, id.TransportId)
	binary.BigEndian.PutUint64(key[8:], id.Sequence)
	return key
}

func decodeKey(key []byte) (protocol.MessageId, error) {
	if len(key) != protocol.MessageIdLength {
		return protocol.MessageId{}, errors.Wrapf(errCorruptOutcome, "key of %d bytes", len(key))
	}
	return protocol.MessageId{
		TransportId: binary.BigEndian.Uint64(key),
		Sequence:    binary.BigEndian.Uint64(key[8:]),
	}, nil
}

func encodeOutcome(o *Outcome) ([]byte, error) {
	if len(o.State) > maxStateLength {
		return nil, errors.Errorf("state %q too long", o.State)
	}
	value := make([]byte, encodedOutcomeLength+len(o.State))
	binary.BigEndian.PutUint64(value, uint64(o.Destination))
	binary.BigEndian.PutUint16(value[8:], uint16(o.Packets))
	binary.BigEndian.PutUint16(value[10:], uint16(o.Sent))
	binary.BigEndian.PutUint16(value[12:], uint16(o.Retries))
	binary.BigEndian.PutUint16(value[14:], uint16(o.Pings))
	binary.BigEndian.PutUint64(value[16:], uint64(o.At.UnixNano()))
	value[24] = byte(len(o.State))
	copy(value[25:], o.State)
	return value, nil
}

func decodeOutcome(id protocol.MessageId, value []byte) (Outcome, error) {
	if len(value) < encodedOutcomeLength || len(value) != encodedOutcomeLength+int(value[24]) {
		return Outcome{}, errors.Wrapf(errCorruptOutcome, "message %s", id)
	}
	return Outcome{
		Id:          id,
		Destination: driver.Address(binary.BigEndian.Uint64(value)),
		Packets:     int(binary.BigEndian.Uint16(value[8:])),
		Sent:        int(binary.BigEndian.Uint16(value[10:])),
		Retries:     int(binary.BigEndian.Uint16(value[12:])),
		Pings:       int(binary.BigEndian.Uint16(value[14:])),
		At:          time.Unix(0, int64(binary.BigEndian.Uint64(value[16:]))),
		State:       string(value[25:]),
	}, nil
}
