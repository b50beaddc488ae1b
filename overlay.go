package watermark

import (
	"context"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// OverlayAlpha is the opacity of the visible text drawn by EmbedRobust.
const OverlayAlpha = 0.1

// EmbedRobust embeds message like Embed and then blends it as faint white
// text over the frame, starting at a quarter of the width and half the
// height. Pixels outside the glyphs are left as Embed produced them.
func (e *Engine) EmbedRobust(ctx context.Context, src image.Image, message string, strength float64) (image.Image, error) {
	marked, err := e.Embed(ctx, src, message, strength)
	if err != nil {
		return nil, err
	}
	dst, ok := marked.(draw.Image)
	if !ok {
		return marked, nil
	}
	overlayText(dst, message, OverlayAlpha)
	return dst, nil
}

// overlayText blends text in white with the given opacity over dst.
func overlayText(dst draw.Image, text string, alpha float64) {
	b := dst.Bounds()
	mask := image.NewAlpha(b)
	d := font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(color.Alpha{A: uint8(math.Round(alpha * 255))}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(b.Min.X+b.Dx()/4, b.Min.Y+b.Dy()/2),
	}
	d.DrawString(text)
	draw.DrawMask(dst, b, image.White, image.Point{}, mask, b.Min, draw.Over)
}
