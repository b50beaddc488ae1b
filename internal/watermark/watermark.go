package watermark

import (
	"context"
	"fmt"
	"image"

	"github.com/yyyoichi/watermark_dct/internal/dct"
	"github.com/yyyoichi/watermark_dct/internal/modulate"
)

// Params is the block layout shared by embedding and extraction.
type Params struct {
	DCT       *dct.DCT
	Modulator modulate.Modulator
	Seed      *int64
}

func (p Params) blocks(src ImageSource) []image.Point {
	return Blocks(src.width, src.height, p.DCT.Size(), p.Seed)
}

// Enable reports an error when fewer blocks than bits are available.
func Enable(src ImageSource, bitLen int, size int) error {
	if total := TotalBlocks(src.width, src.height, size); total < bitLen {
		return fmt.Errorf("total blocks %d < bit length %d", total, bitLen)
	}
	return nil
}

// Embed writes bits[i] into the i-th block of the enumeration and returns
// the rebuilt frame. src must be a private copy; its luma plane is modified.
func Embed(ctx context.Context, src ImageSource, bits []bool, p Params, strength float64) (image.Image, error) {
	var (
		size   = p.DCT.Size()
		blocks = p.blocks(src)
		data   = make([]float64, size*size)
		cols   = max(src.width/size, 1)
	)
	if len(blocks) < len(bits) {
		return nil, fmt.Errorf("total blocks %d < bit length %d", len(blocks), len(bits))
	}
	for at, bit := range bits {
		if at%cols == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		src.readBlock(blocks[at], size, data)
		coeffs, idct := p.DCT.Exec(data)
		p.Modulator.WriteBit(coeffs, size, bit, strength)
		idct()
		src.writeBlock(blocks[at], size, data)
	}
	return src.build(), nil
}

// Extract reads up to n bits in enumeration order, stopping early when the
// frame runs out of blocks. The second result is the mean vote margin.
func Extract(ctx context.Context, src ImageSource, n int, p Params) ([]bool, float64, error) {
	var (
		size   = p.DCT.Size()
		blocks = p.blocks(src)
		data   = make([]float64, size*size)
		cols   = max(src.width/size, 1)
	)
	n = min(n, len(blocks))
	bits := make([]bool, n)
	var margin float64
	for at := range n {
		if at%cols == 0 {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
		}
		src.readBlock(blocks[at], size, data)
		coeffs := p.DCT.Forward(data)
		bits[at] = p.Modulator.ReadBit(coeffs, size)
		margin += p.Modulator.Margin(coeffs, size)
	}
	if n > 0 {
		margin /= float64(n)
	}
	return bits, margin, nil
}
