package protocol

import "sync/atomic"

// IdGenerator hands out message ids of a single transport. Sequence numbers
// start at 1 and are never reused.
type IdGenerator struct {
	transportId uint64
	sequence    uint64
}

// NewIdGenerator returns a generator for transportId.
func NewIdGenerator(transportId uint64) *IdGenerator {
	return &IdGenerator{transportId: transportId}
}

// Next returns a fresh id. It is safe for concurrent use.
func (g *IdGenerator) Next() MessageId {
	return MessageId{TransportId: g.transportId, Sequence: atomic.AddUint64(&g.sequence, 1)}
}
