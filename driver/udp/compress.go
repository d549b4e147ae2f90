package udp

import (
	"github.com/pkg/errors"
	"github.com/vzex/zappy"
)

func compress(b []byte) ([]byte, error) {
	enc, err := zappy.Encode(nil, b)
	return enc, errors.Wrap(err, "compress")
}

func decompress(b []byte) ([]byte, error) {
	dec, err := zappy.Decode(nil, b)
	return dec, errors.Wrap(err, "decompress")
}
