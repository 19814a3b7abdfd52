package tinyjpeg

import (
	"fmt"
)

// Decode decompresses the scan data and delivers the image MCU by MCU to out.
// With a non-nil roi only the pixels inside it are delivered; MCUs outside it
// are still entropy-decoded but not transformed.
func (d *Decoder) Decode(out OutputFunc, roi *Rect) error {
	if out == nil {
		return fmt.Errorf("nil output function: %w", ErrParameter)
	}

	if d.state != statePrepared {
		return fmt.Errorf("decoder not prepared: %w", ErrParameter)
	}

	d.state = stateDone

	var clipRect *Rect
	if roi != nil {
		if roi.Empty() {
			return fmt.Errorf("empty rectangle %v: %w", *roi, ErrParameter)
		}

		r := *roi
		clipRect = &r
	}

	d.br.stopRST = d.nrst != 0
	conv := d.converter()

	mw, mh := 8*d.msx, 8*d.msy
	mx := (d.width + mw - 1) / mw
	my := (d.height + mh - 1) / mh
	total := mx * my
	nblocks := d.msx * d.msy
	if d.ncomp == 3 {
		nblocks += 2
	}

	d.debug("decode", "mcus", total, "format", d.format, "restart", d.nrst)

	for mcu := 0; mcu < total; mcu++ {
		if d.nrst != 0 && mcu != 0 && mcu%d.nrst == 0 {
			if err := d.restart(); err != nil {
				return err
			}
		}

		for c := 0; c < nblocks; c++ {
			if err := d.decodeBlock(c); err != nil {
				return fmt.Errorf("mcu %d: %w", mcu, err)
			}
		}

		x, y := mcu%mx*mw, mcu/mx*mh
		if err := d.outputMCU(out, conv, nblocks, x, y, clipRect); err != nil {
			return err
		}
	}

	return nil
}

// restart consumes a restart marker and resets the DC predictors.
func (d *Decoder) restart() error {
	m, err := d.br.restart()
	if err != nil {
		return err
	}

	d.dcv = [3]int32{}
	d.debug("restart", "marker", fmt.Sprintf("%#02x", m))

	return nil
}

// decodeBlock entropy-decodes block slot c of the MCU into mcubuf in raster order.
func (d *Decoder) decodeBlock(c int) error {
	blk := d.mcubuf[c*64 : c*64+64]
	clear(blk)

	comp := &d.comp[c]
	br := &d.br

	s, err := d.decodeHuffman(&d.huff[comp.tbl][0], 0)
	if err != nil {
		return err
	}

	diff, err := br.receive(int(s))
	if err != nil {
		return err
	}

	d.dcv[comp.pred] += diff
	blk[0] = int16(d.dcv[comp.pred])

	ac := &d.huff[comp.tbl][1]
	for k := 1; k < 64; {
		rs, err := d.decodeHuffman(ac, 1)
		if err != nil {
			return err
		}

		if rs == 0x00 {
			break
		}

		run, size := int(rs>>4), int(rs&15)
		if size == 0 {
			if run != 15 {
				return fmt.Errorf("invalid AC symbol %#02x: %w", rs, ErrFormat)
			}

			k += 16
			if k > 64 {
				return fmt.Errorf("coefficient index overflow: %w", ErrFormat)
			}

			continue
		}

		k += run
		if k > 63 {
			return fmt.Errorf("coefficient index overflow: %w", ErrFormat)
		}

		v, err := br.receive(size)
		if err != nil {
			return err
		}

		blk[zz[k]] = int16(v)
		k++
	}

	return nil
}

// decodeHuffman decodes one symbol with table h of class cls.
func (d *Decoder) decodeHuffman(h *huffTable, cls int) (uint8, error) {
	br := &d.br
	if br.nbits <= 24 {
		br.fill()
	}

	if br.nbits == 0 {
		return 0, br.shortErr()
	}

	start, ci := 1, 0

	if d.fastDecode == 2 {
		idx := br.showBits(lutBits)
		if cls == 1 {
			if v := h.lutAC[idx]; v != 0xFFFF {
				return d.useCode(int(v>>8), uint8(v))
			}
		} else {
			if v := h.lutDC[idx]; v != 0xFF {
				return d.useCode(int(v>>4), v&15)
			}
		}

		start, ci = lutBits+1, h.longOfs
	}

	for l := start; l <= 16; l++ {
		code := uint16(br.showBits(l))
		for n := h.bits[l-1]; n > 0; n-- {
			if code == h.codes[ci] {
				return d.useCode(l, h.data[ci])
			}

			ci++
		}
	}

	return 0, fmt.Errorf("invalid Huffman code: %w", ErrFormat)
}

// useCode consumes a matched code of n bits, failing when fewer bits were buffered.
func (d *Decoder) useCode(n int, sym uint8) (uint8, error) {
	if n > d.br.nbits {
		return 0, d.br.shortErr()
	}

	d.br.skipBits(n)

	return sym, nil
}
