// Package yuv converts 8-bit RGB samples to BT.601 YUV planes and back.
// ToRGB is the exact algebraic inverse of FromRGB, so pixels whose luma is
// left untouched round back to their original values.
package yuv

// https://github.com/opencv/opencv/blob/0e88b49a53842f0f7cdc4c61b98c283be7e5057c/modules/imgproc/src/opencl/color_yuv.cl#L148-L234

const (
	yr = 0.299
	yg = 0.587
	yb = 0.114
	uf = 0.492
	vf = 0.877
)

// Luma returns the Y component of an RGB triple.
func Luma(r, g, b float64) float64 {
	return yr*r + yg*g + yb*b
}

func FromRGB(r, g, b float64) (y, u, v float64) {
	y = Luma(r, g, b)
	u = uf * (b - y)
	v = vf * (r - y)
	return
}

func ToRGB(y, u, v float64) (r, g, b float64) {
	r = y + v/vf
	b = y + u/uf
	g = (y - yr*r - yb*b) / yg
	return
}

// FromRGBABatch fills the y, u, v planes from interleaved 8-bit RGBA samples.
func FromRGBABatch(pix []uint8, y, u, v []float64) {
	for i := range y {
		p := pix[i*4 : i*4+4 : i*4+4]
		y[i], u[i], v[i] = FromRGB(float64(p[0]), float64(p[1]), float64(p[2]))
	}
}

// ToRGBABatch writes the planes back into interleaved RGBA samples, leaving
// the alpha samples as they are.
func ToRGBABatch(y, u, v []float64, pix []uint8) {
	for i := range y {
		r, g, b := ToRGB(y[i], u[i], v[i])
		p := pix[i*4 : i*4+4 : i*4+4]
		p[0], p[1], p[2] = clip8(r), clip8(g), clip8(b)
	}
}

func clip8(c float64) uint8 {
	if c <= 0 {
		return 0
	}
	if c >= 255 {
		return 255
	}
	return uint8(c + 0.5)
}
