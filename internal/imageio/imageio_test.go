package imageio

import (
	"bytes"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checker(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			v := uint8(60)
			if (x/4+y/4)%2 == 0 {
				v = 200
			}
			img.Set(x, y, color.RGBA{v, v / 2, 255 - v, 255})
		}
	}
	return img
}

func TestEncodeDecode(t *testing.T) {
	src := checker(16, 12)
	test := []struct {
		ext      string
		format   string
		lossless bool
	}{
		{ext: ".png", format: "png", lossless: true},
		{ext: ".BMP", format: "bmp", lossless: true},
		{ext: ".tiff", format: "tiff", lossless: true},
		{ext: ".jpg", format: "jpeg"},
	}
	for _, tt := range test {
		t.Run(tt.ext, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, src, tt.ext))
			img, format, err := Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, tt.format, format)
			assert.Equal(t, src.Bounds(), img.Bounds())
			if tt.lossless {
				for y := range 12 {
					for x := range 16 {
						r0, g0, b0, _ := src.At(x, y).RGBA()
						r1, g1, b1, _ := img.At(x, y).RGBA()
						assert.Equal(t, [3]uint32{r0, g0, b0}, [3]uint32{r1, g1, b1})
					}
				}
			}
		})
	}

	assert.Error(t, Encode(&bytes.Buffer{}, src, ".webp"))
	_, _, err := Decode(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frame.png")
	src := checker(8, 8)
	require.NoError(t, Save(path, src))
	img, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), img.Bounds())

	_, err = Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestFit(t *testing.T) {
	test := []struct {
		name string
		w, h int
	}{
		{name: "wide", w: 64, h: 16},
		{name: "tall", w: 16, h: 64},
		{name: "same ratio", w: 20, h: 15},
	}
	src := checker(40, 30)
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			out := Fit(src, tt.w, tt.h)
			assert.Equal(t, image.Rect(0, 0, tt.w, tt.h), out.Bounds())
		})
	}
}

func TestParseURLs(t *testing.T) {
	urls, err := ParseURLs(strings.NewReader("https://a.example/1.jpg\n\n# comment\n  http://b.example/2.png  \nftp://c\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/1.jpg", "http://b.example/2.png"}, urls)
}

func TestFetcher(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, checker(8, 8), ".png"))
	body := buf.Bytes()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), time.Millisecond)
	img, err := f.Open(srv.URL + "/frame.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 8), img.Bounds())
	assert.GreaterOrEqual(t, hits.Load(), int32(1))

	_, err = f.Open(srv.URL + "/missing.png")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "local.png")
	require.NoError(t, Save(path, checker(4, 4)))
	img, err = f.Open(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 4), img.Bounds())
}

func TestThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	th := &throttle{interval: 20 * time.Millisecond, doer: srv.Client()}
	start := time.Now()
	for range 3 {
		req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
		require.NoError(t, err)
		resp, err := th.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}
	// two waits between three requests
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}
