// Package modulate writes and reads one bit per coefficient block by forcing
// the sign of a fixed set of mid-frequency coefficients.
package modulate

import (
	"errors"
	"fmt"
	"math"
)

var ErrInvalidPosition = errors.New("invalid coefficient position")

// Position addresses a coefficient by (row, column) frequency index.
type Position struct {
	Row int `yaml:"row"`
	Col int `yaml:"col"`
}

// DefaultPositions are mid-band coefficients of an 8x8 block.
var DefaultPositions = []Position{{4, 4}, {4, 5}, {5, 4}}

type Modulator struct {
	positions []Position
}

func New(positions []Position) Modulator {
	return Modulator{positions: append([]Position(nil), positions...)}
}

func (m Modulator) Positions() []Position {
	return append([]Position(nil), m.positions...)
}

// Validate checks every position lies inside a size*size block and none is DC.
func (m Modulator) Validate(size int) error {
	if len(m.positions) == 0 {
		return fmt.Errorf("%w: no positions", ErrInvalidPosition)
	}
	seen := make(map[Position]bool, len(m.positions))
	for _, p := range m.positions {
		if p.Row < 0 || p.Col < 0 || p.Row >= size || p.Col >= size {
			return fmt.Errorf("%w: (%d,%d) outside %dx%d block", ErrInvalidPosition, p.Row, p.Col, size, size)
		}
		if p.Row == 0 && p.Col == 0 {
			return fmt.Errorf("%w: DC coefficient", ErrInvalidPosition)
		}
		if seen[p] {
			return fmt.Errorf("%w: duplicate (%d,%d)", ErrInvalidPosition, p.Row, p.Col)
		}
		seen[p] = true
	}
	return nil
}

// WriteBit sets each position to +max(|c|, strength) for true and
// -max(|c|, strength) for false.
func (m Modulator) WriteBit(coeffs []float64, size int, bit bool, strength float64) {
	for _, p := range m.positions {
		i := p.Row*size + p.Col
		v := math.Max(math.Abs(coeffs[i]), strength)
		if !bit {
			v = -v
		}
		coeffs[i] = v
	}
}

// ReadBit reports whether a strict majority of positions is positive.
func (m Modulator) ReadBit(coeffs []float64, size int) bool {
	var votes int
	for _, p := range m.positions {
		if coeffs[p.Row*size+p.Col] > 0 {
			votes++
		}
	}
	return votes > len(m.positions)/2
}

// Margin returns the mean coefficient value at the positions, signed towards
// the bit ReadBit decides. Values near zero mean the vote was close.
func (m Modulator) Margin(coeffs []float64, size int) float64 {
	var sum float64
	for _, p := range m.positions {
		sum += coeffs[p.Row*size+p.Col]
	}
	mean := sum / float64(len(m.positions))
	if !m.ReadBit(coeffs, size) {
		mean = -mean
	}
	return mean
}
