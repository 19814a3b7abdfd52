package tinyjpeg

import (
	"bytes"
	"math/bits"
)

// Standard luminance DC table (ITU T.81 K.3).
var (
	stdDCBits = [16]byte{0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0}
	stdDCVals = []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
)

// eobOnlyBits/eobOnlyVals describe an AC table holding only the EOB symbol as code "0".
var (
	eobOnlyBits = [16]byte{1}
	eobOnlyVals = []byte{0x00}
)

type huffCode struct {
	code uint32
	size int
}

// canonicalCodes assigns code words the way the decoder rebuilds them.
func canonicalCodes(counts [16]byte, vals []byte) map[byte]huffCode {
	m := make(map[byte]huffCode, len(vals))
	code, k := uint32(0), 0
	for l := 1; l <= 16; l++ {
		for n := 0; n < int(counts[l-1]); n++ {
			m[vals[k]] = huffCode{code: code, size: l}
			code++
			k++
		}

		code <<= 1
	}

	return m
}

// bitWriter packs MSB-first bits with byte stuffing.
type bitWriter struct {
	buf  bytes.Buffer
	acc  byte
	nacc int
}

func (w *bitWriter) write(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.acc = w.acc<<1 | byte(v>>i&1)
		w.nacc++
		if w.nacc == 8 {
			w.emit(w.acc)
			w.acc, w.nacc = 0, 0
		}
	}
}

func (w *bitWriter) emit(b byte) {
	w.buf.WriteByte(b)
	if b == 0xFF {
		w.buf.WriteByte(0x00)
	}
}

// flush pads the last byte with 1-bits.
func (w *bitWriter) flush() {
	if w.nacc > 0 {
		w.write(0xFF, 8-w.nacc)
	}
}

// marker writes a raw marker, bypassing stuffing.
func (w *bitWriter) marker(m byte) {
	w.buf.WriteByte(0xFF)
	w.buf.WriteByte(m)
}

func segment(m byte, payload []byte) []byte {
	n := len(payload) + 2
	out := []byte{0xFF, m, byte(n >> 8), byte(n)}

	return append(out, payload...)
}

func dqtSegment(id byte, q byte) []byte {
	p := make([]byte, 65)
	p[0] = id
	for i := 1; i < 65; i++ {
		p[i] = q
	}

	return segment(dqt, p)
}

func dhtPayload(tc byte, counts [16]byte, vals []byte) []byte {
	p := []byte{tc}
	p = append(p, counts[:]...)

	return append(p, vals...)
}

func sofSegment(precision byte, w, h int, sampling []byte) []byte {
	p := []byte{precision, byte(h >> 8), byte(h), byte(w >> 8), byte(w), byte(len(sampling))}
	for i, s := range sampling {
		p = append(p, byte(i+1), s, 0)
	}

	return segment(sof0, p)
}

func sosSegment(selectors []byte) []byte {
	p := []byte{byte(len(selectors))}
	for i, s := range selectors {
		p = append(p, byte(i+1), s)
	}

	return segment(sos, append(p, 0, 63, 0))
}

// flatImage builds DC-only baseline streams. Every block is flat: with the
// quantizer of 8 a DC coefficient c decodes to the sample value 128+c.
type flatImage struct {
	width, height int
	sampling      byte // Luma sampling factor; 0 means grayscale.
	nrst          int  // Restart interval in MCUs.
	skipRST       bool // Leave the restart markers out of the scan.
	chromaTable1  bool // Code the chroma blocks with Huffman table 1.

	// dc returns the DC coefficient of block b (luma blocks first, then Cb, Cr) in MCU m.
	dc func(m, b int) int
}

func (f flatImage) blocks() (msx, msy, nblocks int) {
	if f.sampling == 0 {
		return 1, 1, 1
	}

	msx, msy = int(f.sampling>>4), int(f.sampling&15)

	return msx, msy, msx*msy + 2
}

func (f flatImage) mcus() int {
	msx, msy, _ := f.blocks()

	return ((f.width + 8*msx - 1) / (8 * msx)) * ((f.height + 8*msy - 1) / (8 * msy))
}

func (f flatImage) bytes() []byte {
	var out []byte
	out = append(out, 0xFF, soi)
	out = append(out, segment(0xE0, []byte("JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00"))...)
	out = append(out, dqtSegment(0, 8)...)

	sampling := []byte{0x11}
	selectors := []byte{0x00}
	if f.sampling != 0 {
		chroma := byte(0x00)
		if f.chromaTable1 {
			chroma = 0x11
		}

		sampling = []byte{f.sampling, 0x11, 0x11}
		selectors = []byte{0x00, chroma, chroma}
	}

	out = append(out, sofSegment(8, f.width, f.height, sampling)...)

	dhtp := dhtPayload(0x00, stdDCBits, stdDCVals)
	dhtp = append(dhtp, dhtPayload(0x10, eobOnlyBits, eobOnlyVals)...)
	if f.chromaTable1 {
		dhtp = append(dhtp, dhtPayload(0x01, stdDCBits, stdDCVals)...)
		dhtp = append(dhtp, dhtPayload(0x11, eobOnlyBits, eobOnlyVals)...)
	}

	out = append(out, segment(dht, dhtp)...)

	if f.nrst > 0 {
		out = append(out, segment(dri, []byte{byte(f.nrst >> 8), byte(f.nrst)})...)
	}

	out = append(out, sosSegment(selectors)...)
	out = append(out, f.scan()...)

	return append(out, 0xFF, eoi)
}

func (f flatImage) scan() []byte {
	dcCodes := canonicalCodes(stdDCBits, stdDCVals)
	eob := canonicalCodes(eobOnlyBits, eobOnlyVals)[0x00]

	msx, msy, nblocks := f.blocks()
	nluma := msx * msy

	var w bitWriter
	var pred [3]int
	for m, n, rst := 0, f.mcus(), 0; m < n; m++ {
		if f.nrst > 0 && m > 0 && m%f.nrst == 0 {
			w.flush()
			if !f.skipRST {
				w.marker(rst0 + byte(rst%8))
			}

			rst++
			pred = [3]int{}
		}

		for b := 0; b < nblocks; b++ {
			p := 0
			if b >= nluma {
				p = b - nluma + 1
			}

			v := f.dc(m, b)
			diff := v - pred[p]
			pred[p] = v

			s, bitsv := category(diff)
			c := dcCodes[byte(s)]
			w.write(c.code, c.size)
			w.write(bitsv, s)
			w.write(eob.code, eob.size)
		}
	}

	w.flush()

	return w.buf.Bytes()
}

// category returns the magnitude category of v and its extra bits.
func category(v int) (int, uint32) {
	a := v
	if a < 0 {
		a = -a
	}

	s := bits.Len(uint(a))
	if v < 0 {
		v += 1<<s - 1
	}

	return s, uint32(v)
}

// collect decodes data and returns the delivered rectangles and pixels.
type collected struct {
	rects []Rect
	pix   [][]byte
}

func (c *collected) sink(_ *Decoder, pix []byte, r Rect) bool {
	c.rects = append(c.rects, r)
	c.pix = append(c.pix, append([]byte(nil), pix...))

	return true
}

// canvas paints the delivered rectangles into a full-size buffer and counts
// how often each pixel was written.
type canvas struct {
	width, height, bpp int
	pix                []byte
	hits               []int
}

func newCanvas(w, h, bpp int) *canvas {
	return &canvas{width: w, height: h, bpp: bpp, pix: make([]byte, w*h*bpp), hits: make([]int, w*h)}
}

func (c *canvas) sink(_ *Decoder, pix []byte, r Rect) bool {
	for y := r.Top; y <= r.Bottom; y++ {
		for x := r.Left; x <= r.Right; x++ {
			copy(c.pix[(y*c.width+x)*c.bpp:], pix[:c.bpp])
			pix = pix[c.bpp:]
			c.hits[y*c.width+x]++
		}
	}

	return true
}

func (c *canvas) at(x, y int) []byte {
	o := (y*c.width + x) * c.bpp

	return c.pix[o : o+c.bpp]
}
