package watermark_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	watermark "github.com/yyyoichi/watermark_dct"
	"golang.org/x/image/draw"
)

// gradient keeps every channel inside [80,170] so marks up to strength 64 never clip.
func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{
				R: uint8(80 + x*90/w),
				G: uint8(80 + y*90/h),
				B: uint8(80 + (x+y)*45/(w+h)),
				A: 255,
			})
		}
	}
	return img
}

func noise(w, h int, seed int64) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestEngine_RoundTrip(t *testing.T) {
	test := []struct {
		name    string
		opts    []watermark.Option
		message string
	}{
		{name: "default", message: "SecureStream1"},
		{name: "empty", message: ""},
		{name: "unicode", message: "透かし-✓"},
		{name: "prefix32", opts: []watermark.Option{watermark.WithPrefixWidth(32)}, message: "SecureStream1"},
		{name: "golay", opts: []watermark.Option{watermark.WithGolay()}, message: "SecureStream1"},
		{name: "seed", opts: []watermark.Option{watermark.WithSeed(7)}, message: "SecureStream1"},
		{name: "key", opts: []watermark.Option{watermark.WithKey([]byte("org-master"), []byte("salt"))}, message: "SecureStream1"},
		{name: "16x16", opts: []watermark.Option{
			watermark.WithBlockSize(16),
			watermark.WithPositions(watermark.Position{Row: 6, Col: 7}, watermark.Position{Row: 7, Col: 6}, watermark.Position{Row: 7, Col: 7}),
		}, message: "abc"},
		{name: "single position", opts: []watermark.Option{
			watermark.WithPositions(watermark.Position{Row: 3, Col: 4}),
		}, message: "one"},
	}

	src := gradient(256, 256)
	ctx := context.Background()
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			e, err := watermark.New(tt.opts...)
			require.NoError(t, err)

			marked, err := e.Embed(ctx, src, tt.message, watermark.DefaultStrength)
			require.NoError(t, err)
			assert.Equal(t, src.Bounds(), marked.Bounds())

			got, err := e.Extract(ctx, marked, len(tt.message))
			require.NoError(t, err)
			assert.True(t, got.Found, got.Failure.String())
			assert.Equal(t, watermark.FailureNone, got.Failure)
			assert.Equal(t, tt.message, got.Message)
			assert.Positive(t, got.Confidence)

			full, err := e.Extract(ctx, marked, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.message, full.Message)
		})
	}
}

func TestEngine_SecureStream(t *testing.T) {
	ctx := context.Background()
	src := gradient(256, 256)
	e, err := watermark.New()
	require.NoError(t, err)

	assert.Equal(t, 1024, e.Capacity(src.Bounds()))
	assert.Equal(t, 125, e.MaxMessageLen(src.Bounds()))

	marked, err := e.Embed(ctx, src, "SecureStream1", 40)
	require.NoError(t, err)
	got, err := e.Extract(ctx, marked, 0)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "SecureStream1", got.Message)
	assert.Equal(t, 1024, got.Bits)

	_, err = e.Embed(ctx, src, strings.Repeat("x", 130), 40)
	assert.ErrorIs(t, err, watermark.ErrInsufficientCapacity)
}

func TestEngine_CapacityBoundary(t *testing.T) {
	ctx := context.Background()
	src := gradient(256, 256)
	e, err := watermark.New()
	require.NoError(t, err)

	fits := strings.Repeat("m", 125)
	marked, err := e.Embed(ctx, src, fits, watermark.DefaultStrength)
	require.NoError(t, err)
	got, err := e.Extract(ctx, marked, 125)
	require.NoError(t, err)
	assert.Equal(t, fits, got.Message)

	_, err = e.Embed(ctx, src, fits+"m", watermark.DefaultStrength)
	assert.ErrorIs(t, err, watermark.ErrInsufficientCapacity)

	golay, err := watermark.New(watermark.WithGolay())
	require.NoError(t, err)
	n := golay.MaxMessageLen(src.Bounds())
	assert.Positive(t, n)
	assert.Less(t, n, 125)
	_, err = golay.Embed(ctx, src, strings.Repeat("g", n), watermark.DefaultStrength)
	assert.NoError(t, err)
	_, err = golay.Embed(ctx, src, strings.Repeat("g", n+1), watermark.DefaultStrength)
	assert.ErrorIs(t, err, watermark.ErrInsufficientCapacity)

	assert.Equal(t, -1, e.MaxMessageLen(image.Rect(0, 0, 32, 32)))
}

func TestEngine_Errors(t *testing.T) {
	ctx := context.Background()
	src := gradient(64, 64)
	e, err := watermark.New()
	require.NoError(t, err)

	t.Run("invalid frame", func(t *testing.T) {
		_, err := e.Embed(ctx, nil, "a", 40)
		assert.ErrorIs(t, err, watermark.ErrInvalidFrame)
		_, err = e.Extract(ctx, nil, 1)
		assert.ErrorIs(t, err, watermark.ErrInvalidFrame)
		_, err = e.Embed(ctx, image.NewRGBA(image.Rectangle{}), "a", 40)
		assert.ErrorIs(t, err, watermark.ErrInvalidFrame)
	})
	t.Run("invalid strength", func(t *testing.T) {
		for _, s := range []float64{0, -1, math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := e.Embed(ctx, src, "a", s)
			assert.ErrorIs(t, err, watermark.ErrInvalidStrength, "%v", s)
		}
		_, err := watermark.New(watermark.WithStrength(-3))
		assert.ErrorIs(t, err, watermark.ErrInvalidStrength)
	})
	t.Run("message too long", func(t *testing.T) {
		_, err := e.Embed(ctx, src, strings.Repeat("x", 1<<16), 40)
		assert.ErrorIs(t, err, watermark.ErrMessageTooLong)
		assert.NotErrorIs(t, err, watermark.ErrInsufficientCapacity)
	})
	t.Run("insufficient capacity leaves no output", func(t *testing.T) {
		out, err := e.Embed(ctx, gradient(16, 16), "a", 40)
		assert.ErrorIs(t, err, watermark.ErrInsufficientCapacity)
		assert.Nil(t, out)
	})
	t.Run("invalid config", func(t *testing.T) {
		test := []watermark.Option{
			watermark.WithBlockSize(2),
			watermark.WithPrefixWidth(24),
			watermark.WithPositions(),
			watermark.WithPositions(watermark.Position{Row: 0, Col: 0}),
			watermark.WithPositions(watermark.Position{Row: 8, Col: 1}),
			watermark.WithKey(nil, nil),
		}
		for i, opt := range test {
			_, err := watermark.New(opt)
			assert.Error(t, err, i)
		}
	})
	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(canceled, src, "a", 40)
		assert.ErrorIs(t, err, context.Canceled)
		_, err = e.Extract(canceled, src, 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestEngine_Unmarked(t *testing.T) {
	ctx := context.Background()
	e, err := watermark.New()
	require.NoError(t, err)

	test := []struct {
		name string
		img  image.Image
	}{
		{name: "flat", img: image.NewUniform(color.Gray{Y: 128})},
		{name: "gradient", img: gradient(256, 256)},
		{name: "noise", img: noise(256, 256, 1)},
		{name: "noise small", img: noise(40, 24, 2)},
		{name: "single pixel", img: noise(1, 1, 3)},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			img := tt.img
			if u, ok := img.(*image.Uniform); ok {
				dst := image.NewRGBA(image.Rect(0, 0, 128, 128))
				draw.Draw(dst, dst.Bounds(), u, image.Point{}, draw.Src)
				img = dst
			}
			assert.NotPanics(t, func() {
				got, err := e.Extract(ctx, img, 0)
				require.NoError(t, err)
				assert.False(t, got.Found)
				assert.NotEqual(t, watermark.FailureNone, got.Failure)
				assert.Empty(t, got.Message)
			})
		})
	}
}

func TestEngine_Interchangeable(t *testing.T) {
	ctx := context.Background()
	src := gradient(128, 128)

	a, err := watermark.New(watermark.WithSeed(99), watermark.WithGolay())
	require.NoError(t, err)
	b, err := watermark.New(watermark.WithSeed(99), watermark.WithGolay())
	require.NoError(t, err)

	marked, err := a.Embed(ctx, src, "id-42", 40)
	require.NoError(t, err)
	got, err := b.Extract(ctx, marked, 0)
	require.NoError(t, err)
	assert.Equal(t, "id-42", got.Message)

	// package-level helpers build equal engines from equal options
	marked, err = watermark.Embed(ctx, src, "id-43", watermark.WithSeed(99))
	require.NoError(t, err)
	got, err = watermark.Extract(ctx, marked, 5, watermark.WithSeed(99))
	require.NoError(t, err)
	assert.Equal(t, "id-43", got.Message)
}

func TestEngine_WrongKey(t *testing.T) {
	ctx := context.Background()
	src := gradient(256, 256)

	owner, err := watermark.New(watermark.WithKey([]byte("secret"), []byte("salt")))
	require.NoError(t, err)
	marked, err := owner.Embed(ctx, src, "owner", 40)
	require.NoError(t, err)

	for _, opt := range []watermark.Option{
		watermark.WithKey([]byte("other"), []byte("salt")),
		watermark.WithKey([]byte("secret"), []byte("pepper")),
		watermark.WithSeed(1),
	} {
		e, err := watermark.New(opt)
		require.NoError(t, err)
		got, err := e.Extract(ctx, marked, 0)
		require.NoError(t, err)
		assert.False(t, got.Found)
	}

	plain, err := watermark.New()
	require.NoError(t, err)
	got, err := plain.Extract(ctx, marked, 0)
	require.NoError(t, err)
	assert.False(t, got.Found)
}

func TestEngine_RandomKey(t *testing.T) {
	ctx := context.Background()
	e, err := watermark.New(watermark.WithRandomKey())
	require.NoError(t, err)
	require.NotNil(t, e.Config().Seed)

	marked, err := e.Embed(ctx, gradient(128, 128), "random", 40)
	require.NoError(t, err)

	same, err := watermark.NewFromConfig(e.Config())
	require.NoError(t, err)
	got, err := same.Extract(ctx, marked, 0)
	require.NoError(t, err)
	assert.Equal(t, "random", got.Message)
}

func TestEngine_PreservesUnusedPixels(t *testing.T) {
	ctx := context.Background()
	src := gradient(100, 90)
	e, err := watermark.New()
	require.NoError(t, err)

	marked, err := e.Embed(ctx, src, "", 40)
	require.NoError(t, err)

	// 24 frame bits use the first 24 blocks of the first 12-block row and the
	// next row; everything below y=16 and the residual strips are untouched.
	for y := 16; y < 90; y++ {
		for x := range 100 {
			assert.Equal(t, color.NRGBAModel.Convert(src.At(x, y)), marked.At(x, y), "(%d,%d)", x, y)
		}
	}
	for y := range 16 {
		for x := 96; x < 100; x++ {
			assert.Equal(t, color.NRGBAModel.Convert(src.At(x, y)), marked.At(x, y), "(%d,%d)", x, y)
		}
	}
}

func TestEngine_Alpha(t *testing.T) {
	ctx := context.Background()
	src := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	for y := range 64 {
		for x := range 64 {
			src.SetNRGBA(x, y, color.NRGBA{R: 120, G: 110, B: 130, A: uint8(100 + x)})
		}
	}
	e, err := watermark.New()
	require.NoError(t, err)
	marked, err := e.Embed(ctx, src, "a", 40)
	require.NoError(t, err)

	out, ok := marked.(*image.NRGBA)
	require.True(t, ok)
	for y := range 64 {
		for x := range 64 {
			assert.Equal(t, src.NRGBAAt(x, y).A, out.NRGBAAt(x, y).A)
		}
	}
}

func TestEngine_SmallerFrame(t *testing.T) {
	ctx := context.Background()
	src := gradient(256, 256)
	e, err := watermark.New()
	require.NoError(t, err)
	marked, err := e.Embed(ctx, src, "SecureStream1", 40)
	require.NoError(t, err)

	crop := func(r image.Rectangle) image.Image {
		return marked.(interface {
			SubImage(image.Rectangle) image.Image
		}).SubImage(r)
	}

	// 152 frame bits fit in the first five block rows, which a crop of the
	// full width keeps in order.
	got, err := e.Extract(ctx, crop(image.Rect(0, 0, 256, 48)), 0)
	require.NoError(t, err)
	assert.True(t, got.Found)
	assert.Equal(t, "SecureStream1", got.Message)

	// a narrower crop reorders blocks
	got, err = e.Extract(ctx, crop(image.Rect(0, 0, 128, 128)), 0)
	require.NoError(t, err)
	assert.NotEqual(t, "SecureStream1", got.Message)

	got, err = e.Extract(ctx, crop(image.Rect(0, 0, 256, 8)), 13)
	require.NoError(t, err)
	assert.False(t, got.Found)
	assert.Equal(t, watermark.FailureShortInput, got.Failure)
	assert.Equal(t, 32, got.Bits)
}

func TestEngine_JPEG(t *testing.T) {
	ctx := context.Background()
	src := gradient(256, 256)

	test := []struct {
		name    string
		opts    []watermark.Option
		quality int
	}{
		{name: "q95", quality: 95},
		{name: "q90", quality: 90},
		{name: "q90 golay", quality: 90, opts: []watermark.Option{watermark.WithGolay()}},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			e, err := watermark.New(tt.opts...)
			require.NoError(t, err)
			marked, err := e.Embed(ctx, src, "SecureStream1", watermark.DefaultStrength)
			require.NoError(t, err)

			var buf bytes.Buffer
			require.NoError(t, jpeg.Encode(&buf, marked, &jpeg.Options{Quality: tt.quality}))
			decoded, err := jpeg.Decode(&buf)
			require.NoError(t, err)

			got, err := e.Extract(ctx, decoded, 0)
			require.NoError(t, err)
			assert.Equal(t, "SecureStream1", got.Message)
		})
	}
}

func TestEngine_ResizeTolerance(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical resize test")
	}
	ctx := context.Background()
	const (
		trials = 20
		size   = 256
		scaled = size * 7 / 8
	)
	src := gradient(size, size)

	test := []struct {
		name     string
		opts     []watermark.Option
		strength float64
	}{
		{name: "default", strength: watermark.DefaultStrength},
		{name: "golay", opts: []watermark.Option{watermark.WithGolay()}, strength: 64},
	}
	for _, tt := range test {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(2024))
			var success int
			for i := range trials {
				e, err := watermark.New(append(tt.opts, watermark.WithSeed(int64(i)))...)
				require.NoError(t, err)
				message := fmt.Sprintf("content-%06d", rng.Intn(1_000_000))

				marked, err := e.Embed(ctx, src, message, tt.strength)
				require.NoError(t, err)

				small := image.NewNRGBA(image.Rect(0, 0, scaled, scaled))
				draw.CatmullRom.Scale(small, small.Bounds(), marked, marked.Bounds(), draw.Src, nil)
				restored := image.NewNRGBA(image.Rect(0, 0, size, size))
				draw.CatmullRom.Scale(restored, restored.Bounds(), small, small.Bounds(), draw.Src, nil)

				got, err := e.Extract(ctx, restored, len(message))
				require.NoError(t, err)
				if got.Found && got.Message == message {
					success++
				}
			}
			assert.GreaterOrEqual(t, float64(success)/trials, 0.9, "%d/%d recovered", success, trials)
		})
	}
}

func TestEngine_Concurrent(t *testing.T) {
	ctx := context.Background()
	src := gradient(128, 128)
	e, err := watermark.New(watermark.WithSeed(5))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			message := fmt.Sprintf("worker-%d", i)
			marked, err := e.Embed(ctx, src, message, 40)
			if err != nil {
				errs[i] = err
				return
			}
			got, err := e.Extract(ctx, marked, 0)
			if err != nil {
				errs[i] = err
				return
			}
			if got.Message != message {
				errs[i] = fmt.Errorf("got %q, want %q", got.Message, message)
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestEngine_InputUnchanged(t *testing.T) {
	src := gradient(64, 64)
	before := append([]uint8(nil), src.Pix...)
	_, err := watermark.Embed(context.Background(), src, "x")
	require.NoError(t, err)
	assert.Equal(t, before, src.Pix)
}

func TestBatch(t *testing.T) {
	ctx := context.Background()
	src := gradient(128, 128)

	batch, err := watermark.NewBatch(src)
	require.NoError(t, err)

	test := []struct {
		message  string
		strength float64
		opts     []watermark.Option
	}{
		{message: "first", strength: 30},
		{message: "second", strength: 50, opts: []watermark.Option{watermark.WithSeed(3)}},
		{message: "third", strength: 40, opts: []watermark.Option{watermark.WithGolay()}},
	}
	for _, tt := range test {
		marked, err := batch.Embed(ctx, tt.message, tt.strength, tt.opts...)
		require.NoError(t, err)
		got, err := watermark.Extract(ctx, marked, 0, tt.opts...)
		require.NoError(t, err)
		assert.Equal(t, tt.message, got.Message)

		// cached source is not marked by earlier embeds
		clean, err := batch.Extract(ctx, 0, tt.opts...)
		require.NoError(t, err)
		assert.False(t, clean.Found)
	}

	_, err = watermark.NewBatch(nil)
	assert.ErrorIs(t, err, watermark.ErrInvalidFrame)
}

func TestFailure_String(t *testing.T) {
	assert.Equal(t, "none", watermark.FailureNone.String())
	assert.Equal(t, "short input", watermark.FailureShortInput.String())
	assert.Equal(t, "checksum mismatch", watermark.FailureChecksum.String())
	assert.Equal(t, "invalid utf-8", watermark.FailureInvalidUTF8.String())
	assert.Equal(t, "Failure(9)", watermark.Failure(9).String())
}
