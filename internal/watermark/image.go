package watermark

import (
	"image"
	"image/color"

	"github.com/yyyoichi/watermark_dct/internal/yuv"
)

// ImageSource holds a frame as 8-bit NRGBA samples plus YUV planes.
// Only the luma plane is ever modified.
type ImageSource struct {
	bounds        image.Rectangle
	width, height int
	area          int

	pix []uint8
	// Y[]float64, U[]float64, V[]float64
	colors [][]float64
}

func NewImageSource(src image.Image) ImageSource {
	var s ImageSource
	s.bounds = src.Bounds()
	s.width, s.height = s.bounds.Dx(), s.bounds.Dy()
	s.area = s.width * s.height
	s.pix = make([]uint8, s.area*4)
	s.colors = [][]float64{
		make([]float64, s.area), // Y
		make([]float64, s.area), // U
		make([]float64, s.area), // V
	}

	idx := 0
	for y := s.bounds.Min.Y; y < s.bounds.Max.Y; y++ {
		for x := s.bounds.Min.X; x < s.bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			s.pix[idx], s.pix[idx+1], s.pix[idx+2], s.pix[idx+3] = c.R, c.G, c.B, c.A
			idx += 4
		}
	}
	yuv.FromRGBABatch(s.pix, s.colors[0], s.colors[1], s.colors[2])
	return s
}

func (s ImageSource) Width() int  { return s.width }
func (s ImageSource) Height() int { return s.height }

// Luma returns the luma plane, row-major.
func (s ImageSource) Luma() []float64 { return s.colors[0] }

// Copy returns a source whose luma plane may be modified independently.
func (s ImageSource) Copy() ImageSource {
	luma := make([]float64, s.area)
	copy(luma, s.colors[0])
	s.colors = [][]float64{luma, s.colors[1], s.colors[2]}
	return s
}

func (s ImageSource) build() image.Image {
	dist := image.NewNRGBA(s.bounds)
	copy(dist.Pix, s.pix)
	yuv.ToRGBABatch(s.colors[0], s.colors[1], s.colors[2], dist.Pix)
	return dist
}

func (s ImageSource) readBlock(p image.Point, size int, dst []float64) {
	luma := s.colors[0]
	for r := range size {
		start := (p.Y+r)*s.width + p.X
		copy(dst[r*size:(r+1)*size], luma[start:start+size])
	}
}

func (s ImageSource) writeBlock(p image.Point, size int, src []float64) {
	luma := s.colors[0]
	for r := range size {
		start := (p.Y+r)*s.width + p.X
		copy(luma[start:start+size], src[r*size:(r+1)*size])
	}
}
