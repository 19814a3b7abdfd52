// Package dicom plugs the tinyjpeg decoder into the go-dicom codec registry
// as the decoder of the JPEG Baseline (Process 1) transfer syntax.
package dicom

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"

	"github.com/gen2brain/tinyjpeg"
)

var _ codec.Codec = (*Codec)(nil)

// ErrEncodeUnsupported is returned by Encode; the package only decodes.
var ErrEncodeUnsupported = errors.New("tinyjpeg: encoding is not supported")

// Codec decodes JPEG Baseline 8-bit pixel data.
// Transfer Syntax UID: 1.2.840.10008.1.2.4.50
type Codec struct {
	transferSyntax *transfer.Syntax
}

// NewCodec creates a JPEG Baseline decoding codec.
func NewCodec() *Codec {
	return &Codec{
		transferSyntax: transfer.JPEGBaseline8Bit,
	}
}

// Name returns the codec name.
func (c *Codec) Name() string {
	return "JPEG Baseline (tinyjpeg)"
}

// TransferSyntax returns the transfer syntax this codec handles.
func (c *Codec) TransferSyntax() *transfer.Syntax {
	return c.transferSyntax
}

// GetDefaultParameters returns the default codec parameters.
func (c *Codec) GetDefaultParameters() codec.Parameters {
	return NewParameters()
}

// Encode is not supported.
func (c *Codec) Encode(_ imagetypes.PixelData, _ imagetypes.PixelData, _ codec.Parameters) error {
	return ErrEncodeUnsupported
}

// Decode decodes every frame of oldPixelData and appends the interleaved 8-bit
// samples (one per pixel for grayscale, R, G, B for color) to newPixelData.
func (c *Codec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}

	p := fromGeneric(parameters)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	frameCount := oldPixelData.FrameCount()
	if frameCount == 0 {
		return fmt.Errorf("source pixel data is empty (no frames)")
	}

	frameInfo := oldPixelData.GetFrameInfo()

	for frameIndex := 0; frameIndex < frameCount; frameIndex++ {
		frameData, err := oldPixelData.GetFrame(frameIndex)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", frameIndex, err)
		}

		if len(frameData) == 0 {
			return fmt.Errorf("frame %d pixel data is empty", frameIndex)
		}

		pix, width, height, components, err := DecodeFrame(frameData, p)
		if err != nil {
			return fmt.Errorf("JPEG Baseline decode failed for frame %d: %w", frameIndex, err)
		}

		if frameInfo != nil && frameInfo.Width != 0 {
			if width != int(frameInfo.Width) || height != int(frameInfo.Height) || components != int(frameInfo.SamplesPerPixel) {
				return fmt.Errorf("frame %d is %dx%dx%d, pixel data declares %dx%dx%d", frameIndex,
					width, height, components, frameInfo.Width, frameInfo.Height, frameInfo.SamplesPerPixel)
			}
		}

		if err := newPixelData.AddFrame(pix); err != nil {
			return fmt.Errorf("failed to add decoded frame %d: %w", frameIndex, err)
		}
	}

	return nil
}

// DecodeFrame decodes one JPEG frame into interleaved 8-bit samples.
func DecodeFrame(data []byte, p *Parameters) (pix []byte, width, height, components int, err error) {
	if p == nil {
		p = NewParameters()
	}

	var d tinyjpeg.Decoder

	opts := &tinyjpeg.Options{
		BufferSize: p.BufferSize,
		Format:     tinyjpeg.RGB888,
		FastDecode: p.FastDecode,
	}

	if err := d.Prepare(tinyjpeg.ReaderInput(bytes.NewReader(data)), make([]byte, p.PoolSize), nil, opts); err != nil {
		return nil, 0, 0, 0, err
	}

	width, height, components = d.Width(), d.Height(), d.Components()
	if components == 1 {
		if err := d.SetColor(tinyjpeg.Grayscale); err != nil {
			return nil, 0, 0, 0, err
		}
	}

	pix = make([]byte, width*height*components)
	stride := width * components

	sink := func(_ *tinyjpeg.Decoder, src []byte, rect tinyjpeg.Rect) bool {
		n := rect.Width() * components
		for y := rect.Top; y <= rect.Bottom; y++ {
			copy(pix[y*stride+rect.Left*components:], src[:n])
			src = src[n:]
		}

		return true
	}

	if err := d.Decode(sink, nil); err != nil {
		return nil, 0, 0, 0, err
	}

	return pix, width, height, components, nil
}

// Register registers the codec with the global go-dicom codec registry,
// replacing any decoder registered for JPEG Baseline 8-bit.
func Register() {
	registry := codec.GetGlobalRegistry()
	registry.RegisterCodec(transfer.JPEGBaseline8Bit, NewCodec())
}
