// Package ecc optionally protects a bit frame with an error correcting code
// before it is spread over blocks.
package ecc

import (
	"errors"
	"fmt"

	"github.com/yyyoichi/bitstream-go"
	"github.com/yyyoichi/golay"
)

// Scheme names a code. It is persisted in engine configuration.
type Scheme string

const (
	None  Scheme = "none"
	Golay Scheme = "golay"
)

var ErrUnknownScheme = errors.New("unknown ecc scheme")

// Codec maps data bits to channel bits and back.
type Codec interface {
	Encode(bits []bool) []bool
	// Decode recovers at most size data bits from channel bits.
	Decode(bits []bool, size int) []bool
	EncodedLen(size int) int
}

func New(s Scheme) (Codec, error) {
	switch s {
	case None, "":
		return withoutecc{}, nil
	case Golay:
		return golaycodec{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, s)
}

var _ Codec = (*withoutecc)(nil)

type withoutecc struct{}

func (withoutecc) Encode(bits []bool) []bool {
	return bits
}

func (withoutecc) Decode(bits []bool, size int) []bool {
	out := make([]bool, min(size, len(bits)))
	copy(out, bits)
	return out
}

func (withoutecc) EncodedLen(size int) int {
	return size
}

var _ Codec = (*golaycodec)(nil)

// golaycodec uses the binary Golay code, correcting up to three bit errors
// per codeword. Codewords cover consecutive data bits, so a longer read of
// the channel still decodes the shorter frame at its head. Codewords missing
// from the channel decode as zero bits.
type golaycodec struct{}

func (golaycodec) Encode(bits []bool) []bool {
	if len(bits) == 0 {
		return nil
	}
	w := bitstream.NewBitWriter[uint64](0, 0)
	for _, v := range bits {
		w.WriteBool(v)
	}
	var encoded []uint64
	enc := golay.NewEncoder(&encoded)
	_ = enc.Encode(w.Data(), len(bits))
	return readBits(encoded, enc.Bits())
}

func (g golaycodec) Decode(bits []bool, size int) []bool {
	out := make([]bool, size)
	if size == 0 {
		return out
	}
	w := bitstream.NewBitWriter[uint64](0, 0)
	for i := range g.EncodedLen(size) {
		w.WriteBool(i < len(bits) && bits[i])
	}
	var decoded []uint64
	dec := golay.NewDecoder(w.Data(), w.Bits())
	_ = dec.Decode(&decoded)
	copy(out, readBits(decoded, size))
	return out
}

func (golaycodec) EncodedLen(size int) int {
	return golay.EncodedBits(size)
}

func readBits(data []uint64, n int) []bool {
	r := bitstream.NewBitReader(data, 0, 0)
	out := make([]bool, 0, n)
	for i := range n {
		bit, err := r.ReadBitAt(i)
		if err != nil {
			break
		}
		out = append(out, bit)
	}
	return out
}
