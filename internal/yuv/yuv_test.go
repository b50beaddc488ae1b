package yuv

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLuma(t *testing.T) {
	test := []struct {
		name    string
		r, g, b float64
		exp     float64
	}{
		{"black", 0, 0, 0, 0},
		{"white", 255, 255, 255, 255},
		{"red", 255, 0, 0, 76.245},
		{"green", 0, 255, 0, 149.685},
		{"blue", 0, 0, 255, 29.07},
		{"gray", 128, 128, 128, 128},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.exp, Luma(tt.r, tt.g, tt.b), 1e-9)
		})
	}
}

func TestRoundTrip(t *testing.T) {
	rd := rand.New(rand.NewSource(1))
	for range 1000 {
		r, g, b := float64(rd.Intn(256)), float64(rd.Intn(256)), float64(rd.Intn(256))
		y, u, v := FromRGB(r, g, b)
		r2, g2, b2 := ToRGB(y, u, v)
		assert.InDelta(t, r, r2, 1e-9)
		assert.InDelta(t, g, g2, 1e-9)
		assert.InDelta(t, b, b2, 1e-9)
	}
}

func TestBatch(t *testing.T) {
	rd := rand.New(rand.NewSource(2))
	const n = 64
	pix := make([]uint8, n*4)
	_, _ = rd.Read(pix)
	orig := append([]uint8(nil), pix...)

	y, u, v := make([]float64, n), make([]float64, n), make([]float64, n)
	FromRGBABatch(pix, y, u, v)
	out := make([]uint8, n*4)
	copy(out, pix)
	ToRGBABatch(y, u, v, out)
	assert.Equal(t, orig, out)

	// a luma offset moves every channel by the same amount
	y[0] += 10
	ToRGBABatch(y, u, v, out)
	for c := range 3 {
		exp := min(int(orig[c])+10, 255)
		assert.Equal(t, uint8(exp), out[c])
	}
}

func TestClip8(t *testing.T) {
	assert.Equal(t, uint8(0), clip8(-3))
	assert.Equal(t, uint8(255), clip8(300))
	assert.Equal(t, uint8(10), clip8(10.4))
	assert.Equal(t, uint8(11), clip8(10.5))
}
