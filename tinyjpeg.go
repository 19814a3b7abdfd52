package tinyjpeg

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
)

// Standard error types for JPEG decoding.
var (
	ErrInterrupted        = errors.New("interrupted by output function")
	ErrInput              = errors.New("input stream error")
	ErrInsufficientPool   = errors.New("insufficient memory pool")
	ErrInsufficientBuffer = errors.New("insufficient stream input buffer")
	ErrFormat             = errors.New("data format error")
	ErrUnsupported        = errors.New("unsupported format")
	ErrParameter          = errors.New("parameter error")
)

// Format is the pixel format delivered to the output function.
type Format int

const (
	// RGB888 is three bytes per pixel in R, G, B order.
	RGB888 Format = iota
	// BGR888 is three bytes per pixel in B, G, R order.
	BGR888
	// RGBA8888 is four bytes per pixel in R, G, B, A order with opaque alpha.
	RGBA8888
	// BGRA8888 is four bytes per pixel in B, G, R, A order with opaque alpha.
	BGRA8888
	// RGB565 is a little-endian 16-bit word per pixel, red in the high bits.
	RGB565
	// BGR565 is a little-endian 16-bit word per pixel, blue in the high bits.
	BGR565
	// Grayscale is one byte per pixel.
	Grayscale
)

// BytesPerPixel returns the size of one pixel in f, or 0 for an unknown format.
func (f Format) BytesPerPixel() int {
	switch f {
	case Grayscale:
		return 1
	case RGB565, BGR565:
		return 2
	case RGB888, BGR888:
		return 3
	case RGBA8888, BGRA8888:
		return 4
	}

	return 0
}

func (f Format) String() string {
	switch f {
	case Grayscale:
		return "grayscale"
	case RGB565:
		return "rgb565"
	case BGR565:
		return "bgr565"
	case RGB888:
		return "rgb888"
	case BGR888:
		return "bgr888"
	case RGBA8888:
		return "rgba8888"
	case BGRA8888:
		return "bgra8888"
	}

	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat returns the Format named s (as printed by Format.String).
func ParseFormat(s string) (Format, error) {
	for f := RGB888; f <= Grayscale; f++ {
		if f.String() == s {
			return f, nil
		}
	}

	return 0, fmt.Errorf("unknown format %q: %w", s, ErrParameter)
}

// Rect is a rectangular pixel region. All edges are inclusive.
type Rect struct {
	Left, Top, Right, Bottom int
}

// Empty reports whether r contains no pixels.
func (r Rect) Empty() bool {
	return r.Left > r.Right || r.Top > r.Bottom
}

// Width returns the number of pixel columns in r.
func (r Rect) Width() int {
	return r.Right - r.Left + 1
}

// Height returns the number of pixel rows in r.
func (r Rect) Height() int {
	return r.Bottom - r.Top + 1
}

// Intersect returns the largest rectangle contained by both r and s.
func (r Rect) Intersect(s Rect) Rect {
	r.Left = max(r.Left, s.Left)
	r.Top = max(r.Top, s.Top)
	r.Right = min(r.Right, s.Right)
	r.Bottom = min(r.Bottom, s.Bottom)

	return r
}

// InputFunc supplies the JPEG stream. With a non-nil buf it copies up to n bytes
// into buf[:n] and returns the number of bytes copied; a short or zero count means
// the stream ended or failed. With a nil buf it discards n bytes and returns n on success.
type InputFunc func(d *Decoder, buf []byte, n int) int

// OutputFunc receives a decoded rectangle. pix holds rect.Width()*rect.Height() pixels
// in row-major order, each sized per the active Format. pix is only valid during the call.
// Returning false aborts decoding with ErrInterrupted.
type OutputFunc func(d *Decoder, pix []byte, rect Rect) bool

// Options specifies decoding parameters.
type Options struct {
	// BufferSize is the size of the stream input buffer carved from the pool.
	// Every SOF0, DHT, DQT, DRI and SOS segment must fit into it. Defaults to 256.
	BufferSize int
	// Format is the initial output pixel format. The zero value is RGB888.
	// It can be changed after Prepare with SetColor.
	Format Format
	// ClipTable selects table lookup instead of branches for 8-bit saturation.
	ClipTable bool
	// FastDecode is the optimization level:
	// 0 saturates samples inside the IDCT,
	// 1 keeps 16-bit samples until color conversion (default),
	// 2 additionally builds lookup tables for short Huffman codes (more pool memory).
	// The decoded pixels are identical at every level.
	FastDecode int
	// SwapRedBlue exchanges the red and blue channels of the output.
	SwapRedBlue bool
	// Logger receives debug traces of the segment parser and the scan decoder. Nil disables tracing.
	Logger *slog.Logger
	// PoolSize is the size of the pool allocated by DecodeImage and DecodeConfig.
	// Prepare ignores it and uses the caller's buffer. Defaults to 32 KiB.
	PoolSize int
}

const (
	defaultBufferSize = 256
	minBufferSize     = 32
	defaultPoolSize   = 32 << 10
)

var defaultOptions = Options{
	BufferSize: defaultBufferSize,
	Format:     RGB888,
	FastDecode: 1,
	PoolSize:   defaultPoolSize,
}

// options merges opts over the defaults and validates the result.
func options(opts []*Options) (Options, error) {
	o := defaultOptions
	if len(opts) == 0 || opts[0] == nil {
		return o, nil
	}

	in := opts[0]
	o.Format = in.Format
	o.ClipTable = in.ClipTable
	o.FastDecode = in.FastDecode
	o.SwapRedBlue = in.SwapRedBlue
	o.Logger = in.Logger

	if in.BufferSize != 0 {
		o.BufferSize = in.BufferSize
	}

	if in.PoolSize != 0 {
		o.PoolSize = in.PoolSize
	}

	if o.BufferSize < minBufferSize {
		return o, fmt.Errorf("buffer size %d below %d: %w", o.BufferSize, minBufferSize, ErrParameter)
	}

	if o.Format.BytesPerPixel() == 0 {
		return o, fmt.Errorf("invalid format %v: %w", o.Format, ErrParameter)
	}

	if o.FastDecode < 0 || o.FastDecode > 2 {
		return o, fmt.Errorf("invalid fast decode level %d: %w", o.FastDecode, ErrParameter)
	}

	return o, nil
}

// ReaderInput adapts r to an InputFunc. Skips use io.Seeker when r implements it,
// otherwise the skipped bytes are read and discarded.
func ReaderInput(r io.Reader) InputFunc {
	return func(_ *Decoder, buf []byte, n int) int {
		if buf == nil {
			if s, ok := r.(io.Seeker); ok {
				if _, err := s.Seek(int64(n), io.SeekCurrent); err != nil {
					return 0
				}

				return n
			}

			skipped, _ := io.CopyN(io.Discard, r, int64(n))

			return int(skipped)
		}

		read, _ := io.ReadFull(r, buf[:n])

		return read
	}
}

// DecodeImage reads a baseline JPEG image from r and returns it as an *image.Gray
// for grayscale sources or an *image.RGBA for color sources.
// Unlike Decoder it allocates the pool and the whole output image on the heap.
func DecodeImage(r io.Reader, opts ...*Options) (image.Image, error) {
	o, err := options(opts)
	if err != nil {
		return nil, err
	}

	var d Decoder
	if err := d.Prepare(ReaderInput(r), make([]byte, o.PoolSize), nil, &o); err != nil {
		return nil, err
	}

	var (
		img    image.Image
		pix    []byte
		stride int
		bpp    int
	)

	bounds := image.Rect(0, 0, d.Width(), d.Height())
	if d.Components() == 1 {
		gray := image.NewGray(bounds)
		img, pix, stride, bpp = gray, gray.Pix, gray.Stride, 1
		err = d.SetColor(Grayscale)
	} else {
		rgba := image.NewRGBA(bounds)
		img, pix, stride, bpp = rgba, rgba.Pix, rgba.Stride, 4
		err = d.SetColor(RGBA8888)
	}

	if err != nil {
		return nil, err
	}

	sink := func(_ *Decoder, src []byte, rect Rect) bool {
		n := rect.Width() * bpp
		for y := rect.Top; y <= rect.Bottom; y++ {
			copy(pix[y*stride+rect.Left*bpp:], src[:n])
			src = src[n:]
		}

		return true
	}

	if err := d.Decode(sink, nil); err != nil {
		return nil, err
	}

	return img, nil
}

// DecodeConfig returns the color model and dimensions of a JPEG image without decoding the scan data.
func DecodeConfig(r io.Reader, opts ...*Options) (image.Config, error) {
	o, err := options(opts)
	if err != nil {
		return image.Config{}, err
	}

	var d Decoder
	if err := d.Prepare(ReaderInput(r), make([]byte, o.PoolSize), nil, &o); err != nil {
		return image.Config{}, err
	}

	cm := color.RGBAModel
	if d.Components() == 1 {
		cm = color.GrayModel
	}

	return image.Config{
		ColorModel: cm,
		Width:      d.Width(),
		Height:     d.Height(),
	}, nil
}
