package registry

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/yyyoichi/watermark_dct/validator"
)

// reference returns the luma plane of img as an 8-bit gray image.
func reference(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rectangle{Max: b.Size()})
	for i, l := range validator.Luma(img) {
		gray.Pix[i] = uint8(min(max(math.Round(l), 0), 255))
	}
	return gray
}

func encodeReference(gray *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(gray.Pix); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeReference(data []byte, width, height int) (*image.Gray, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	pix, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	if len(pix) != width*height {
		return nil, fmt.Errorf("reference plane has %d samples, want %dx%d", len(pix), width, height)
	}
	gray := image.NewGray(image.Rect(0, 0, width, height))
	copy(gray.Pix, pix)
	return gray, nil
}

func encodeVector(v []float64) []byte {
	data := make([]byte, len(v)*8)
	for i, f := range v {
		binary.LittleEndian.PutUint64(data[i*8:], math.Float64bits(f))
	}
	return data
}

func decodeVector(data []byte) []float64 {
	v := make([]float64, len(data)/8)
	for i := range v {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[i*8:]))
	}
	return v
}
