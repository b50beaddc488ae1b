// Package bitframe lays out a message as a self-describing bit sequence:
//
//	length (prefix width bits, big-endian) | checksum (8 bits) | payload (8*length bits)
//
// The checksum is the complement of the payload byte sum modulo 256, so an
// all-zero stream never decodes as a valid empty frame.
package bitframe

import (
	"errors"
	"fmt"

	"github.com/yyyoichi/watermark_dct/internal/bitconv"
)

const ChecksumWidth = 8

var (
	ErrMessageTooLong   = errors.New("message exceeds length prefix range")
	ErrInvalidPrefixLen = errors.New("prefix width must be 16 or 32")
)

// Failure describes why a bit sequence did not decode.
type Failure int

const (
	FailureNone Failure = iota
	FailureShortInput
	FailureChecksum
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureShortInput:
		return "short input"
	case FailureChecksum:
		return "checksum mismatch"
	}
	return fmt.Sprintf("Failure(%d)", int(f))
}

// ValidPrefixWidth reports whether w is a supported length prefix width.
func ValidPrefixWidth(w int) bool {
	return w == 16 || w == 32
}

// MaxLen returns the largest payload length addressable with the prefix width.
func MaxLen(prefixWidth int) int {
	return int(uint64(1)<<uint(prefixWidth) - 1)
}

// HeaderLen returns the bit length of the prefix and checksum fields.
func HeaderLen(prefixWidth int) int {
	return prefixWidth + ChecksumWidth
}

// FrameLen returns the bit length of a frame carrying messageLen bytes.
func FrameLen(messageLen, prefixWidth int) int {
	return HeaderLen(prefixWidth) + messageLen*8
}

// Checksum returns the checksum byte stored for payload.
func Checksum(payload []byte) uint8 {
	var sum uint8
	for _, b := range payload {
		sum += b
	}
	return ^sum
}

// Encode frames message.
func Encode(message []byte, prefixWidth int) ([]bool, error) {
	if !ValidPrefixWidth(prefixWidth) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrefixLen, prefixWidth)
	}
	if max := MaxLen(prefixWidth); len(message) > max {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrMessageTooLong, len(message), max)
	}
	bits := make([]bool, 0, FrameLen(len(message), prefixWidth))
	bits = bitconv.AppendUint(bits, uint64(len(message)), prefixWidth)
	bits = bitconv.AppendUint(bits, uint64(Checksum(message)), ChecksumWidth)
	bits = append(bits, bitconv.BytesToBools(message)...)
	return bits, nil
}

// Decode reads a frame from the head of bits. Bits after the frame are ignored.
// It never panics; malformed input resolves to a Failure.
func Decode(bits []bool, prefixWidth int) ([]byte, Failure) {
	if !ValidPrefixWidth(prefixWidth) {
		return nil, FailureShortInput
	}
	header := HeaderLen(prefixWidth)
	if len(bits) < header {
		return nil, FailureShortInput
	}
	length := bitconv.Uint(bits[:prefixWidth])
	stored := uint8(bitconv.Uint(bits[prefixWidth:header]))

	available := uint64(len(bits) - header)
	if length > available/8 {
		return nil, FailureShortInput
	}
	end := header + int(length)*8
	payload := bitconv.BoolsToBytes(bits[header:end])
	if Checksum(payload) != stored {
		return nil, FailureChecksum
	}
	return payload, FailureNone
}
