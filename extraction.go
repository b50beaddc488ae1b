package watermark

import (
	"fmt"
	"unicode/utf8"

	"github.com/yyyoichi/watermark_dct/internal/bitframe"
)

// Failure tells why no message was recovered.
type Failure int

const (
	FailureNone Failure = iota
	// FailureShortInput: the frame held fewer bits than the decoded length needs.
	FailureShortInput
	// FailureChecksum: the payload did not match its checksum.
	FailureChecksum
	// FailureInvalidUTF8: the payload checked out but is not UTF-8 text.
	FailureInvalidUTF8
)

func (f Failure) String() string {
	switch f {
	case FailureNone:
		return "none"
	case FailureShortInput:
		return "short input"
	case FailureChecksum:
		return "checksum mismatch"
	case FailureInvalidUTF8:
		return "invalid utf-8"
	}
	return fmt.Sprintf("Failure(%d)", int(f))
}

// Extraction is the outcome of Extract. Found is false for frames that carry
// no watermark or a corrupted one; that is an expected result, not an error.
type Extraction struct {
	Message string
	Found   bool
	Failure Failure
	// Bits is the number of channel bits read from the frame.
	Bits int
	// Confidence is the mean coefficient magnitude behind the bit votes.
	Confidence float64
}

func newExtraction(payload []byte, failure bitframe.Failure, bits int, margin float64) Extraction {
	x := Extraction{Bits: bits, Confidence: margin}
	switch failure {
	case bitframe.FailureNone:
	case bitframe.FailureChecksum:
		x.Failure = FailureChecksum
		return x
	default:
		x.Failure = FailureShortInput
		return x
	}
	if !utf8.Valid(payload) {
		x.Failure = FailureInvalidUTF8
		return x
	}
	x.Message = string(payload)
	x.Found = true
	return x
}
