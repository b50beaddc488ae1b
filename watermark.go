package watermark

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/yyyoichi/watermark_dct/internal/bitframe"
	"github.com/yyyoichi/watermark_dct/internal/dct"
	"github.com/yyyoichi/watermark_dct/internal/ecc"
	"github.com/yyyoichi/watermark_dct/internal/modulate"
	"github.com/yyyoichi/watermark_dct/internal/watermark"
)

const (
	DefaultBlockSize   = 8
	DefaultPrefixWidth = 16
	DefaultStrength    = 40.0
)

var (
	ErrInvalidFrame         = errors.New("invalid frame")
	ErrInvalidStrength      = errors.New("strength must be a positive finite number")
	ErrInvalidConfig        = errors.New("invalid engine configuration")
	ErrMessageTooLong       = bitframe.ErrMessageTooLong
	ErrInsufficientCapacity = errors.New("frame too small for message")
)

// Position addresses a DCT coefficient by (row, column) frequency index.
type Position = modulate.Position

var dctCache = dct.NewCache()

// Embed embeds message into src with the engine's default strength.
// This is a convenience function that creates an Engine and calls its Embed method.
func Embed(ctx context.Context, src image.Image, message string, opts ...Option) (image.Image, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, src, message, e.strength)
}

// Extract recovers a message of at most maxMessageLen bytes from src.
// This is a convenience function that creates an Engine and calls its Extract method.
func Extract(ctx context.Context, src image.Image, maxMessageLen int, opts ...Option) (Extraction, error) {
	e, err := New(opts...)
	if err != nil {
		return Extraction{}, err
	}
	return e.Extract(ctx, src, maxMessageLen)
}

// Engine embeds and extracts framed messages in the luma DCT domain.
// Its configuration is fixed by New; an Engine is safe for concurrent use.
type Engine struct {
	blockSize   int
	positions   []Position
	prefixWidth int
	scheme      ecc.Scheme
	seed        *int64
	strength    float64

	params watermark.Params
	codec  ecc.Codec
}

// New initializes an engine. Without options it uses 8x8 blocks, the
// coefficients (4,4), (4,5), (5,4), a 16-bit length prefix, no error
// correcting code, no key and DefaultStrength.
func New(opts ...Option) (*Engine, error) {
	e := new(Engine)
	if err := e.init(opts...); err != nil {
		return nil, err
	}
	return e, nil
}

// Embed returns a copy of src carrying message.
//
// Process:
//  1. Converts the frame to YUV and takes the luma plane.
//  2. Frames the message as length prefix, checksum and payload bits.
//  3. Checks the frame has one block per bit before touching any pixel.
//  4. Writes each bit into the mid-frequency DCT coefficients of its block.
//  5. Rebuilds the frame from the modified luma and the untouched chroma.
func (e *Engine) Embed(ctx context.Context, src image.Image, message string, strength float64) (image.Image, error) {
	if err := validFrame(src); err != nil {
		return nil, err
	}
	return e.embed(ctx, watermark.NewImageSource(src), message, strength)
}

// Extract reads back a message of at most maxMessageLen bytes. A
// maxMessageLen of zero or less reads the whole capacity of the frame.
//
// A frame without a readable watermark is not an error: the returned
// Extraction has Found set to false and the reason in Failure. Errors are
// reserved for invalid frames and context cancellation.
func (e *Engine) Extract(ctx context.Context, src image.Image, maxMessageLen int) (Extraction, error) {
	if err := validFrame(src); err != nil {
		return Extraction{}, err
	}
	return e.extract(ctx, watermark.NewImageSource(src), maxMessageLen)
}

// Capacity returns the number of channel bits a frame of the given bounds holds.
func (e *Engine) Capacity(bounds image.Rectangle) int {
	return watermark.TotalBlocks(bounds.Dx(), bounds.Dy(), e.blockSize)
}

// MaxMessageLen returns the longest message, in bytes, that fits a frame
// of the given bounds. It returns -1 when not even an empty message fits.
func (e *Engine) MaxMessageLen(bounds image.Rectangle) int {
	capacity := e.Capacity(bounds)
	fits := func(n int) bool {
		return e.codec.EncodedLen(bitframe.FrameLen(n, e.prefixWidth)) <= capacity
	}
	if !fits(0) {
		return -1
	}
	lo, hi := 0, min((capacity-bitframe.HeaderLen(e.prefixWidth))/8, bitframe.MaxLen(e.prefixWidth))
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Strength returns the default strength configured with WithStrength.
func (e *Engine) Strength() float64 {
	return e.strength
}

func (e *Engine) embed(ctx context.Context, img watermark.ImageSource, message string, strength float64) (image.Image, error) {
	if !(strength > 0) || math.IsInf(strength, 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStrength, strength)
	}
	frame, err := bitframe.Encode([]byte(message), e.prefixWidth)
	if err != nil {
		return nil, err
	}
	bits := e.codec.Encode(frame)
	if err := watermark.Enable(img, len(bits), e.blockSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientCapacity, err)
	}
	return watermark.Embed(ctx, img, bits, e.params, strength)
}

func (e *Engine) extract(ctx context.Context, img watermark.ImageSource, maxMessageLen int) (Extraction, error) {
	if maxMessageLen <= 0 {
		maxMessageLen = max(e.MaxMessageLen(image.Rect(0, 0, img.Width(), img.Height())), 0)
	}
	maxMessageLen = min(maxMessageLen, bitframe.MaxLen(e.prefixWidth))
	total := watermark.TotalBlocks(img.Width(), img.Height(), e.blockSize)
	frameBits := min(bitframe.FrameLen(maxMessageLen, e.prefixWidth), max(total, bitframe.HeaderLen(e.prefixWidth)))

	channel, margin, err := watermark.Extract(ctx, img, e.codec.EncodedLen(frameBits), e.params)
	if err != nil {
		return Extraction{}, err
	}
	payload, failure := bitframe.Decode(e.codec.Decode(channel, frameBits), e.prefixWidth)
	return newExtraction(payload, failure, len(channel), margin), nil
}

func (e *Engine) init(opts ...Option) error {
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return err
		}
	}
	if e.blockSize == 0 {
		e.blockSize = DefaultBlockSize
	}
	if len(e.positions) == 0 {
		e.positions = append([]Position(nil), modulate.DefaultPositions...)
	}
	if e.prefixWidth == 0 {
		e.prefixWidth = DefaultPrefixWidth
	}
	if e.scheme == "" {
		e.scheme = ecc.None
	}
	if e.strength == 0 {
		e.strength = DefaultStrength
	}

	mod := modulate.New(e.positions)
	if err := mod.Validate(e.blockSize); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	codec, err := ecc.New(e.scheme)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e.codec = codec
	e.params = watermark.Params{
		DCT:       dctCache.New(e.blockSize),
		Modulator: mod,
		Seed:      e.seed,
	}
	return nil
}

func validFrame(src image.Image) error {
	if src == nil {
		return fmt.Errorf("%w: nil image", ErrInvalidFrame)
	}
	if src.Bounds().Empty() {
		return fmt.Errorf("%w: empty bounds %v", ErrInvalidFrame, src.Bounds())
	}
	return nil
}

// Batch enables efficient multiple watermark operations on a single frame
// by converting it to YUV once.
type Batch struct {
	original watermark.ImageSource
}

// NewBatch converts src once for repeated Embed and Extract calls.
func NewBatch(src image.Image) (*Batch, error) {
	if err := validFrame(src); err != nil {
		return nil, err
	}
	return &Batch{original: watermark.NewImageSource(src)}, nil
}

// Embed embeds message into the cached frame with the specified options.
func (b *Batch) Embed(ctx context.Context, message string, strength float64, opts ...Option) (image.Image, error) {
	e, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return e.embed(ctx, b.original.Copy(), message, strength)
}

// Extract reads a message from the cached frame with the specified options.
func (b *Batch) Extract(ctx context.Context, maxMessageLen int, opts ...Option) (Extraction, error) {
	e, err := New(opts...)
	if err != nil {
		return Extraction{}, err
	}
	return e.extract(ctx, b.original, maxMessageLen)
}
