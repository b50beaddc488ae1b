// Package validator compares marked frames with their references and checks
// that a frame still carries an expected message.
package validator

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	watermark "github.com/yyyoichi/watermark_dct"
	"github.com/yyyoichi/watermark_dct/internal/yuv"
	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Score returns the normalised cross-correlation of the luma planes of
// reference and candidate, clamped to [0,1]. A candidate of another size is
// resampled to the reference bounds first.
func Score(reference, candidate image.Image) (float64, error) {
	ref, cand, err := planes(reference, candidate)
	if err != nil {
		return 0, err
	}
	r := stat.Correlation(ref, cand, nil)
	if math.IsNaN(r) {
		// at least one plane is flat
		if floats.Equal(ref, cand) {
			return 1, nil
		}
		return 0, nil
	}
	return min(max(r, 0), 1), nil
}

// PSNR returns the peak signal-to-noise ratio of the luma planes in dB.
// Identical planes give +Inf.
func PSNR(reference, candidate image.Image) (float64, error) {
	ref, cand, err := planes(reference, candidate)
	if err != nil {
		return 0, err
	}
	mse := floats.Distance(ref, cand, 2)
	mse = mse * mse / float64(len(ref))
	if mse == 0 {
		return math.Inf(1), nil
	}
	return 20 * math.Log10(255/math.Sqrt(mse)), nil
}

// Verify reports whether frame carries exactly expected under e.
func Verify(ctx context.Context, e *watermark.Engine, frame image.Image, expected string) (bool, error) {
	x, err := e.Extract(ctx, frame, len(expected))
	if err != nil {
		return false, err
	}
	return x.Found && x.Message == expected, nil
}

func planes(reference, candidate image.Image) ([]float64, []float64, error) {
	for _, img := range []image.Image{reference, candidate} {
		if img == nil || img.Bounds().Empty() {
			return nil, nil, fmt.Errorf("%w: nothing to compare", watermark.ErrInvalidFrame)
		}
	}
	bounds := reference.Bounds()
	if candidate.Bounds().Size() != bounds.Size() {
		dst := image.NewNRGBA(image.Rectangle{Max: bounds.Size()})
		draw.CatmullRom.Scale(dst, dst.Bounds(), candidate, candidate.Bounds(), draw.Src, nil)
		candidate = dst
	}
	return Luma(reference), Luma(candidate), nil
}

// Luma returns the BT.601 luma plane of img, row-major.
func Luma(img image.Image) []float64 {
	b := img.Bounds()
	plane := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			plane = append(plane, yuv.Luma(float64(c.R), float64(c.G), float64(c.B)))
		}
	}
	return plane
}
