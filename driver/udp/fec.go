package udp

import (
	"time"

	"github.com/klauspost/reedsolomon"
	"github.com/pkg/errors"
)

// shard header: frame length(2) | group(4) | sequence(1), little endian.
// Reed-Solomon runs over shard bodies, frame length(2) | frame, so a
// rebuilt data shard carries its own length. Parity shards go out with the
// same header, holding the parity body length.
const (
	shardHeaderLength = 7
	shardLengthPrefix = 2
	fecOverhead       = shardHeaderLength + shardLengthPrefix
)

func putShardHeader(b []byte, length int, group uint32, seq int) {
	b[0] = byte(length)
	b[1] = byte(length >> 8)
	b[2] = byte(group)
	b[3] = byte(group >> 8)
	b[4] = byte(group >> 16)
	b[5] = byte(group >> 24)
	b[6] = byte(seq)
}

func shardHeader(b []byte) (length int, group uint32, seq int) {
	length = int(b[0]) | int(b[1])<<8
	group = uint32(b[2]) | uint32(b[3])<<8 | uint32(b[4])<<16 | uint32(b[5])<<24
	return length, group, int(b[6])
}

func bodyLength(body []byte) int {
	return int(body[0]) | int(body[1])<<8
}

// fecEncoder groups outgoing frames and adds parity shards to every full
// group.
type fecEncoder struct {
	rs           reedsolomon.Encoder
	dataShards   int
	parityShards int
	group        uint32
	bodies       [][]byte
	count        int
	maxLength    int
}

func newFecEncoder(dataShards, parityShards int) (*fecEncoder, error) {
	rs, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, errors.Wrapf(err, "fec %d+%d", dataShards, parityShards)
	}
	return &fecEncoder{
		rs:           rs,
		dataShards:   dataShards,
		parityShards: parityShards,
		bodies:       make([][]byte, dataShards),
	}, nil
}

// add wraps frame in a shard and returns the datagrams to write: the shard
// itself, followed by the parity shards once the group is full.
func (e *fecEncoder) add(frame []byte) ([][]byte, error) {
	shard := make([]byte, shardHeaderLength+len(frame))
	putShardHeader(shard, len(frame), e.group, e.count)
	copy(shard[shardHeaderLength:], frame)

	body := make([]byte, shardLengthPrefix+len(frame))
	copy(body, shard[:shardLengthPrefix])
	copy(body[shardLengthPrefix:], frame)
	e.bodies[e.count] = body
	e.count++
	if len(body) > e.maxLength {
		e.maxLength = len(body)
	}
	out := [][]byte{shard}
	if e.count < e.dataShards {
		return out, nil
	}

	group, length := e.group, e.maxLength
	shards := make([][]byte, e.dataShards+e.parityShards)
	for i := 0; i < e.dataShards; i++ {
		shards[i] = pad(e.bodies[i], length)
	}
	for i := e.dataShards; i < len(shards); i++ {
		shards[i] = make([]byte, length)
	}
	err := e.rs.Encode(shards)
	e.group++
	e.count = 0
	e.maxLength = 0
	if err != nil {
		return out, errors.Wrap(err, "fec encode")
	}
	for i := e.dataShards; i < len(shards); i++ {
		datagram := make([]byte, shardHeaderLength+length)
		putShardHeader(datagram, length, group, i)
		copy(datagram[shardHeaderLength:], shards[i])
		out = append(out, datagram)
	}
	return out, nil
}

func pad(b []byte, n int) []byte {
	if len(b) >= n {
		return b
	}
	padded := make([]byte, n)
	copy(padded, b)
	return padded
}

type fecGroup struct {
	shards  [][]byte
	count   int
	done    bool
	expires time.Time
}

// fecDecoder rebuilds lost data shards of one sender.
type fecDecoder struct {
	rs           reedsolomon.Encoder
	dataShards   int
	parityShards int
	timeout      time.Duration
	groups       map[uint32]*fecGroup
}

func newFecDecoder(dataShards, parityShards int, timeout time.Duration) (*fecDecoder, error) {
	rs, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, errors.Wrapf(err, "fec %d+%d", dataShards, parityShards)
	}
	return &fecDecoder{
		rs:           rs,
		dataShards:   dataShards,
		parityShards: parityShards,
		timeout:      timeout,
		groups:       make(map[uint32]*fecGroup),
	}, nil
}

// add consumes one shard and returns the frames it makes available: its own
// frame for a data shard, plus every data frame recovered by reconstruction.
func (d *fecDecoder) add(shard []byte, now time.Time) ([][]byte, error) {
	if len(shard) < shardHeaderLength {
		return nil, errors.Errorf("shard of %d bytes", len(shard))
	}
	length, id, seq := shardHeader(shard)
	if seq >= d.dataShards+d.parityShards {
		return nil, errors.Errorf("shard %d of group %d beyond %d+%d, fec settings differ between peers",
			seq, id, d.dataShards, d.parityShards)
	}
	if shardHeaderLength+length > len(shard) {
		return nil, errors.Errorf("shard %d of group %d claims %d bytes", seq, id, length)
	}
	g, ok := d.groups[id]
	if !ok {
		g = &fecGroup{shards: make([][]byte, d.dataShards+d.parityShards), expires: now.Add(d.timeout)}
		d.groups[id] = g
	}
	if g.done || g.shards[seq] != nil {
		return nil, nil
	}
	var body []byte
	if seq < d.dataShards {
		body = make([]byte, shardLengthPrefix+length)
		copy(body, shard[:shardLengthPrefix])
		copy(body[shardLengthPrefix:], shard[shardHeaderLength:shardHeaderLength+length])
	} else {
		body = append([]byte(nil), shard[shardHeaderLength:shardHeaderLength+length]...)
	}
	g.shards[seq] = body
	g.count++

	var frames [][]byte
	if seq < d.dataShards {
		frames = append(frames, body[shardLengthPrefix:])
	}
	if g.count < d.dataShards {
		return frames, nil
	}
	g.done = true

	missing := make([]int, 0, d.parityShards)
	maxLength := 0
	for i, s := range g.shards {
		if s == nil {
			if i < d.dataShards {
				missing = append(missing, i)
			}
			continue
		}
		if len(s) > maxLength {
			maxLength = len(s)
		}
	}
	if len(missing) == 0 {
		g.shards = nil
		return frames, nil
	}
	for i, s := range g.shards {
		if s != nil {
			g.shards[i] = pad(s, maxLength)
		}
	}
	if err := d.rs.Reconstruct(g.shards); err != nil {
		g.shards = nil
		return frames, errors.Wrapf(err, "fec reconstruct group %d", id)
	}
	for _, i := range missing {
		s := g.shards[i]
		n := bodyLength(s)
		if shardLengthPrefix+n > len(s) {
			continue
		}
		frames = append(frames, s[shardLengthPrefix:shardLengthPrefix+n])
	}
	g.shards = nil
	return frames, nil
}

// expire forgets groups older than the group timeout.
func (d *fecDecoder) expire(now time.Time) {
	for id, g := range d.groups {
		if !now.Before(g.expires) {
			delete(d.groups, id)
		}
	}
}
