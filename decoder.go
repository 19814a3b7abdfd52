package tinyjpeg

import (
	"fmt"
	"log/slog"
)

// Markers.
const (
	sof0  = 0xC0 // Start Of Frame (Baseline Sequential).
	sof1  = 0xC1 // Start Of Frame (Extended Sequential).
	dht   = 0xC4 // Define Huffman Table.
	jpg   = 0xC8 // Reserved for JPEG extensions.
	dac   = 0xCC // Define Arithmetic Coding conditioning.
	sof15 = 0xCF // Start Of Frame (Differential Lossless, Arithmetic).
	rst0  = 0xD0 // ReSTart (0).
	rst7  = 0xD7 // ReSTart (7).
	soi   = 0xD8 // Start Of Image.
	eoi   = 0xD9 // End Of Image.
	sos   = 0xDA // Start Of Scan.
	dqt   = 0xDB // Define Quantization Table.
	dri   = 0xDD // Define Restart Interval.
)

type decoderState int

const (
	stateIdle decoderState = iota
	statePrepared
	stateDone
)

// component wires one block slot of the MCU to its tables and DC predictor.
type component struct {
	tbl  uint8 // Huffman table id (0 or 1) for both DC and AC.
	qt   uint8 // Quantization table id.
	pred uint8 // Index of the shared DC predictor.
}

// Decoder is a streaming baseline JPEG decompressor. All of its working memory
// comes from the pool handed to Prepare. A Decoder decodes one image; call Prepare again
// to start over.
type Decoder struct {
	br         bitReader       // Entropy-coded data reader.
	device     any             // Caller context.
	pool       pool            // Arena for tables and buffers.
	width      int             // Image width in pixels.
	height     int             // Image height in pixels.
	ncomp      int             // Number of color components (1 or 3).
	msx, msy   int             // MCU size in blocks.
	nrst       int             // Restart interval in MCUs, 0 when disabled.
	ids        [3]uint8        // Component identifiers from the frame header.
	qtid       [3]uint8        // Quantization table id of each component.
	dcv        [3]int32        // DC predictors (Y, Cb, Cr).
	comp       [6]component    // Per-slot wiring, luma slots first.
	huff       [2][2]huffTable // Huffman tables by [id][class].
	qttbl      [4][]int32      // Quantization tables scaled for the IDCT.
	workbuf    []byte          // IDCT scratch and pixel output.
	mcubuf     []int16         // Decoded samples of one MCU.
	format     Format          // Output pixel format.
	clipTable  bool            // Saturate through clipTable.
	fastDecode int             // Optimization level 0..2.
	swapRB     bool            // Swap red and blue.
	log        *slog.Logger    // Debug tracing, nil disables it.
	state      decoderState    // Lifecycle.
}

// debug logs a trace event when tracing is enabled.
func (d *Decoder) debug(msg string, args ...any) {
	if d.log != nil {
		d.log.Debug(msg, args...)
	}
}

// Width returns the image width in pixels.
func (d *Decoder) Width() int { return d.width }

// Height returns the image height in pixels.
func (d *Decoder) Height() int { return d.height }

// Components returns the number of color components, 1 or 3.
func (d *Decoder) Components() int { return d.ncomp }

// MCUSize returns the MCU size in pixels.
func (d *Decoder) MCUSize() (w, h int) { return 8 * d.msx, 8 * d.msy }

// RestartInterval returns the restart interval in MCUs, 0 when restart markers are not used.
func (d *Decoder) RestartInterval() int { return d.nrst }

// Device returns the caller context passed to Prepare.
func (d *Decoder) Device() any { return d.device }

// Format returns the active output format.
func (d *Decoder) Format() Format { return d.format }

// PoolUsed returns the number of pool bytes allocated so far.
func (d *Decoder) PoolUsed() int { return d.pool.used() }

// SetColor changes the output format. It must be called before Decode.
func (d *Decoder) SetColor(f Format) error {
	if f.BytesPerPixel() == 0 {
		return fmt.Errorf("invalid format %v: %w", f, ErrParameter)
	}

	if d.state != statePrepared {
		return fmt.Errorf("decoder not prepared: %w", ErrParameter)
	}

	d.format = f

	return nil
}

// Prepare reads the stream up to the start of the scan data, builds the tables
// in pool and allocates the decoding buffers. device is stored for the callbacks.
func (d *Decoder) Prepare(in InputFunc, pool []byte, device any, opts ...*Options) error {
	if in == nil {
		return fmt.Errorf("nil input function: %w", ErrParameter)
	}

	o, err := options(opts)
	if err != nil {
		return err
	}

	*d = Decoder{
		device:     device,
		pool:       newPool(pool),
		format:     o.Format,
		clipTable:  o.ClipTable,
		fastDecode: o.FastDecode,
		swapRB:     o.SwapRedBlue,
		log:        o.Logger,
	}

	seg, err := d.pool.alloc(o.BufferSize)
	if err != nil {
		return err
	}

	d.br = bitReader{in: in, dec: d, buf: seg}

	if err := d.prepare(seg); err != nil {
		d.state = stateDone

		return err
	}

	d.state = statePrepared

	return nil
}

// prepare runs the segment loop until the start of scan.
func (d *Decoder) prepare(seg []byte) error {
	in := d.br.in

	// Find SOI.
	ofs := 0
	marker := uint16(0)
	for marker != 0xFF00|soi {
		if in(d, seg[:1], 1) != 1 {
			return fmt.Errorf("SOI not found: %w", ErrInput)
		}

		ofs++
		marker = marker<<8 | uint16(seg[0])
	}

	for {
		if in(d, seg[:4], 4) != 4 {
			return fmt.Errorf("reading marker: %w", ErrInput)
		}

		if seg[0] != 0xFF {
			return fmt.Errorf("missing marker prefix: %w", ErrFormat)
		}

		m := seg[1]
		n := int(seg[2])<<8 | int(seg[3])
		if n <= 2 {
			return fmt.Errorf("marker %#02x: bad length %d: %w", m, n, ErrFormat)
		}

		n -= 2
		ofs += 4 + n

		switch {
		case m == sof0 || m == dht || m == sos || m == dqt || m == dri:
			if n > len(seg) {
				return fmt.Errorf("marker %#02x: segment of %d bytes exceeds %d: %w", m, n, len(seg), ErrInsufficientBuffer)
			}

			if in(d, seg[:n], n) != n {
				return fmt.Errorf("reading marker %#02x: %w", m, ErrInput)
			}

			d.debug("segment", "marker", fmt.Sprintf("%#02x", m), "length", n)

			var err error
			switch m {
			case sof0:
				err = d.processSOF(seg[:n])
			case dri:
				err = d.processDRI(seg[:n])
			case dht:
				err = d.createHuffmanTable(seg[:n])
			case dqt:
				err = d.createQuantTable(seg[:n])
			case sos:
				if err := d.processSOS(seg[:n]); err != nil {
					return err
				}

				d.alignStream(ofs)

				return nil
			}

			if err != nil {
				return err
			}
		case m >= sof1 && m <= sof15 && m != jpg && m != dac:
			return fmt.Errorf("SOF marker %#02x: %w", m, ErrUnsupported)
		case m == eoi:
			return fmt.Errorf("EOI before scan: %w", ErrUnsupported)
		default:
			if in(d, nil, n) != n {
				return fmt.Errorf("skipping marker %#02x: %w", m, ErrInput)
			}

			d.debug("skipped segment", "marker", fmt.Sprintf("%#02x", m), "length", n)
		}
	}
}

func (d *Decoder) processSOF(seg []byte) error {
	if len(seg) < 6 {
		return fmt.Errorf("short SOF0 segment: %w", ErrFormat)
	}

	if seg[0] != 8 {
		return fmt.Errorf("%d-bit samples: %w", seg[0], ErrUnsupported)
	}

	d.height = int(seg[1])<<8 | int(seg[2])
	d.width = int(seg[3])<<8 | int(seg[4])
	d.ncomp = int(seg[5])
	if d.ncomp != 1 && d.ncomp != 3 {
		return fmt.Errorf("%d color components: %w", d.ncomp, ErrUnsupported)
	}

	if len(seg) < 6+3*d.ncomp {
		return fmt.Errorf("short SOF0 segment: %w", ErrFormat)
	}

	for i := 0; i < d.ncomp; i++ {
		c := seg[6+3*i:]
		d.ids[i] = c[0]
		b := c[1]
		if i == 0 {
			if b != 0x11 && b != 0x21 && b != 0x22 {
				return fmt.Errorf("luma sampling factor %#02x: %w", b, ErrUnsupported)
			}

			d.msx, d.msy = int(b>>4), int(b&15)
		} else if b != 0x11 {
			return fmt.Errorf("chroma sampling factor %#02x: %w", b, ErrUnsupported)
		}

		d.qtid[i] = c[2]
		if d.qtid[i] > 3 {
			return fmt.Errorf("quantization table id %d: %w", d.qtid[i], ErrUnsupported)
		}
	}

	// A single-component scan is never interleaved: one block per MCU.
	if d.ncomp == 1 {
		d.msx, d.msy = 1, 1
	}

	d.debug("frame", "width", d.width, "height", d.height, "components", d.ncomp, "msx", d.msx, "msy", d.msy)

	return nil
}

func (d *Decoder) processDRI(seg []byte) error {
	if len(seg) < 2 {
		return fmt.Errorf("short DRI segment: %w", ErrFormat)
	}

	d.nrst = int(seg[0])<<8 | int(seg[1])
	d.debug("restart interval", "mcus", d.nrst)

	return nil
}

func (d *Decoder) processSOS(seg []byte) error {
	if d.width == 0 || d.height == 0 {
		return fmt.Errorf("invalid image size %dx%d: %w", d.width, d.height, ErrFormat)
	}

	if len(seg) < 1 || int(seg[0]) != d.ncomp {
		return fmt.Errorf("scan component count differs from frame: %w", ErrUnsupported)
	}

	if len(seg) < 1+2*d.ncomp+3 {
		return fmt.Errorf("short SOS segment: %w", ErrFormat)
	}

	var tbl [3]uint8
	for i := 0; i < d.ncomp; i++ {
		if seg[1+2*i] != d.ids[i] {
			return fmt.Errorf("scan component order differs from frame: %w", ErrUnsupported)
		}

		b := seg[2+2*i]
		if b != 0x00 && b != 0x11 {
			return fmt.Errorf("table selector %#02x: %w", b, ErrUnsupported)
		}

		tbl[i] = b & 1
		if !d.huff[tbl[i]][0].loaded() || !d.huff[tbl[i]][1].loaded() {
			return fmt.Errorf("Huffman table %d not loaded: %w", tbl[i], ErrFormat)
		}

		if d.qttbl[d.qtid[i]] == nil {
			return fmt.Errorf("quantization table %d not loaded: %w", d.qtid[i], ErrFormat)
		}
	}

	if p := seg[1+2*d.ncomp:]; p[0] != 0 || p[1] != 63 || p[2] != 0 {
		return fmt.Errorf("spectral selection %d..%d: %w", p[0], p[1], ErrUnsupported)
	}

	n := d.msx * d.msy
	for i := 0; i < n; i++ {
		d.comp[i] = component{tbl: tbl[0], qt: d.qtid[0], pred: 0}
	}

	if d.ncomp == 3 {
		for i := 0; i < 2; i++ {
			d.comp[n+i] = component{tbl: tbl[i+1], qt: d.qtid[i+1], pred: uint8(i + 1)}
		}
	}

	size := max(n*64*2+64, 256, n*64*4)

	var err error
	if d.workbuf, err = d.pool.alloc(size); err != nil {
		return err
	}

	if d.mcubuf, err = d.pool.allocInt16((n + 2) * 64); err != nil {
		return err
	}

	d.debug("scan", "blocks", n, "pool", d.pool.used())

	return nil
}

// alignStream reads the rest of the current input chunk so later reads start
// on a multiple of the buffer size. ofs is the number of bytes consumed so far.
func (d *Decoder) alignStream(ofs int) {
	br := &d.br
	size := len(br.buf)

	br.pos, br.n = 0, 0
	if ofs %= size; ofs != 0 {
		n := br.in(d, br.buf[ofs:], size-ofs)
		br.pos, br.n = ofs, max(0, min(n, size-ofs))
	}
}
