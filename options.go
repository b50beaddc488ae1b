package watermark

import (
	"fmt"
	"math"

	"github.com/yyyoichi/watermark_dct/internal/bitframe"
	"github.com/yyyoichi/watermark_dct/internal/ecc"
)

type Option func(*Engine) error

// WithBlockSize divides the luma plane into size x size blocks, one bit per block.
// Sizes below 4 leave no room for mid-frequency coefficients and are rejected.
func WithBlockSize(size int) Option {
	return func(e *Engine) error {
		if size < 4 {
			return fmt.Errorf("%w: block size %d", ErrInvalidConfig, size)
		}
		e.blockSize = size
		return nil
	}
}

// WithPositions selects the coefficients that carry each bit. A bit reads as 1
// when a strict majority of them is positive, so an odd count avoids ties.
func WithPositions(positions ...Position) Option {
	return func(e *Engine) error {
		if len(positions) == 0 {
			return fmt.Errorf("%w: no coefficient positions", ErrInvalidConfig)
		}
		e.positions = append([]Position(nil), positions...)
		return nil
	}
}

// WithPrefixWidth sets the bit width of the length prefix, 16 or 32.
func WithPrefixWidth(width int) Option {
	return func(e *Engine) error {
		if !bitframe.ValidPrefixWidth(width) {
			return fmt.Errorf("%w: %w: %d", ErrInvalidConfig, bitframe.ErrInvalidPrefixLen, width)
		}
		e.prefixWidth = width
		return nil
	}
}

// WithGolay protects the bit frame with the binary Golay code.
// Capacity drops to about half, but up to three flipped bits per
// 23-bit codeword are corrected.
func WithGolay() Option {
	return func(e *Engine) error {
		e.scheme = ecc.Golay
		return nil
	}
}

// WithSeed shuffles the block order with seed. Extraction needs the same seed.
func WithSeed(seed int64) Option {
	return func(e *Engine) error {
		e.seed = &seed
		return nil
	}
}

// WithKey derives the block order seed from a secret and salt.
func WithKey(secret, salt []byte) Option {
	return func(e *Engine) error {
		seed, err := deriveSeed(secret, salt)
		if err != nil {
			return err
		}
		e.seed = &seed
		return nil
	}
}

// WithRandomKey draws a fresh seed. Read it back with Config to extract later.
func WithRandomKey() Option {
	return func(e *Engine) error {
		seed, err := randomSeed()
		if err != nil {
			return err
		}
		e.seed = &seed
		return nil
	}
}

// WithStrength sets the default strength used by the package-level Embed.
func WithStrength(strength float64) Option {
	return func(e *Engine) error {
		if !(strength > 0) || math.IsInf(strength, 1) {
			return fmt.Errorf("%w: %v", ErrInvalidStrength, strength)
		}
		e.strength = strength
		return nil
	}
}
