package tinyjpeg

import (
	"fmt"
)

// zz maps the zig-zag order of coefficients in the stream to raster positions in an 8x8 block.
var zz = [64]uint8{
	0, 1, 8, 16, 9, 2, 3, 10, 17, 24, 32, 25, 18,
	11, 4, 5, 12, 19, 26, 33, 40, 48, 41, 34, 27, 20, 13, 6, 7, 14, 21, 28, 35,
	42, 49, 56, 57, 50, 43, 36, 29, 22, 15, 23, 30, 37, 44, 51, 58, 59, 52, 45,
	38, 31, 39, 46, 53, 60, 61, 54, 47, 55, 62, 63,
}

// ipsf holds the input scale factors of the Arai IDCT in raster order, scaled by 8192.
var ipsf = [64]uint16{
	8192, 11362, 10703, 9632, 8192, 6436, 4433, 2260,
	11362, 15760, 14846, 13361, 11362, 8927, 6149, 3134,
	10703, 14846, 13984, 12585, 10703, 8409, 5792, 2953,
	9632, 13361, 12585, 11326, 9632, 7568, 5213, 2657,
	8192, 11362, 10703, 9632, 8192, 6436, 4433, 2260,
	6436, 8927, 8409, 7568, 6436, 5057, 3483, 1775,
	4433, 6149, 5792, 5213, 4433, 3483, 2399, 1223,
	2260, 3134, 2953, 2657, 2260, 1775, 1223, 623,
}

// clipTable saturates v in [-512, 511] when indexed by v & 0x3FF.
var clipTable = func() (t [1024]uint8) {
	for i := range t {
		switch {
		case i < 256:
			t[i] = uint8(i)
		case i < 512:
			t[i] = 255
		}
	}

	return t
}()

// clip clamps an int32 value to the valid 8-bit pixel range [0, 255].
func clip(x int32) uint8 {
	if x < 0 {
		return 0
	}

	if x > 255 {
		return 255
	}

	return uint8(x)
}

// clipLookup is clip through clipTable. Values outside the table range take the branches.
func clipLookup(x int32) uint8 {
	if x < -512 || x > 511 {
		return clip(x)
	}

	return clipTable[x&0x3FF]
}

const (
	lutBits = 10
	lutSize = 1 << lutBits
	lutMask = lutSize - 1
)

// huffTable is one canonical Huffman table. All slices live in the pool.
type huffTable struct {
	bits    []uint8  // Number of codes of each length 1..16.
	codes   []uint16 // Code words in canonical order.
	data    []uint8  // Decoded symbol for each code word.
	lutDC   []uint8  // Short code lookup for DC tables (len<<4 | sym), 0xFF for long codes.
	lutAC   []uint16 // Short code lookup for AC tables (len<<8 | sym), 0xFFFF for long codes.
	longOfs int      // Index of the first code longer than lutBits.
}

func (h *huffTable) loaded() bool {
	return h.bits != nil
}

// createQuantTable loads the quantization tables of a DQT segment.
func (d *Decoder) createQuantTable(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 65 {
			return fmt.Errorf("short DQT segment: %w", ErrFormat)
		}

		pq := seg[0]
		if pq&0xF0 != 0 {
			return fmt.Errorf("16-bit quantization table: %w", ErrUnsupported)
		}

		id := pq & 3
		qt, err := d.pool.allocInt32(64)
		if err != nil {
			return err
		}

		d.qttbl[id] = qt
		for i := 0; i < 64; i++ {
			z := zz[i]
			qt[z] = int32(seg[1+i]) * int32(ipsf[z])
		}

		d.debug("quantization table", "id", id)
		seg = seg[65:]
	}

	return nil
}

// createHuffmanTable loads the Huffman tables of a DHT segment.
func (d *Decoder) createHuffmanTable(seg []byte) error {
	for len(seg) > 0 {
		if len(seg) < 17 {
			return fmt.Errorf("short DHT segment: %w", ErrFormat)
		}

		tc := seg[0]
		if tc&0xEE != 0 {
			return fmt.Errorf("bad Huffman table class/id %#02x: %w", tc, ErrFormat)
		}

		cls, id := tc>>4, tc&1
		h := &d.huff[id][cls]

		bits, err := d.pool.alloc(16)
		if err != nil {
			return err
		}

		np := 0
		for i := 0; i < 16; i++ {
			bits[i] = seg[1+i]
			np += int(bits[i])
		}

		seg = seg[17:]

		codes, err := d.pool.allocUint16(np)
		if err != nil {
			return err
		}

		code, j := 0, 0
		for i := 0; i < 16; i++ {
			for n := bits[i]; n > 0; n-- {
				codes[j] = uint16(code)
				j++
				code++
			}

			if code > 1<<(i+1) {
				return fmt.Errorf("Huffman code space overflow: %w", ErrFormat)
			}

			code <<= 1
		}

		if len(seg) < np {
			return fmt.Errorf("short DHT segment: %w", ErrFormat)
		}

		data, err := d.pool.alloc(np)
		if err != nil {
			return err
		}

		for i := 0; i < np; i++ {
			if cls == 0 && seg[i] > 11 {
				return fmt.Errorf("DC symbol %d out of range: %w", seg[i], ErrFormat)
			}

			data[i] = seg[i]
		}

		seg = seg[np:]

		*h = huffTable{bits: bits, codes: codes[:np], data: data[:np]}
		if d.fastDecode == 2 {
			if err := d.buildLUT(h, cls); err != nil {
				return err
			}
		}

		d.debug("huffman table", "class", cls, "id", id, "codes", np)
	}

	return nil
}

// buildLUT indexes every code of at most lutBits bits by all its lutBits-bit extensions.
func (d *Decoder) buildLUT(h *huffTable, cls uint8) error {
	if cls == 1 {
		lut, err := d.pool.allocUint16(lutSize)
		if err != nil {
			return err
		}

		for i := range lut {
			lut[i] = 0xFFFF
		}

		h.lutAC = lut
	} else {
		lut, err := d.pool.alloc(lutSize)
		if err != nil {
			return err
		}

		for i := range lut {
			lut[i] = 0xFF
		}

		h.lutDC = lut
	}

	i := 0
	for b := 0; b < lutBits; b++ {
		for n := h.bits[b]; n > 0; n-- {
			ti := int(h.codes[i]) << (lutBits - 1 - b) & lutMask
			span := 1 << (lutBits - 1 - b)
			if cls == 1 {
				v := uint16(h.data[i]) | uint16(b+1)<<8
				for k := 0; k < span; k++ {
					h.lutAC[ti+k] = v
				}
			} else {
				v := h.data[i] | uint8(b+1)<<4
				for k := 0; k < span; k++ {
					h.lutDC[ti+k] = v
				}
			}

			i++
		}
	}

	h.longOfs = i

	return nil
}
