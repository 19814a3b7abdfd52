package tinyjpeg

import (
	"fmt"
)

// bitReader extracts bits from the entropy-coded segment.
// Valid bits are left-aligned in reg; the low 32-nbits bits are zero.
type bitReader struct {
	in      InputFunc // Stream source.
	dec     *Decoder  // Passed back to the source.
	buf     []byte    // Stream input buffer from the pool.
	pos     int       // Read offset in buf.
	n       int       // Bytes left in buf from pos.
	reg     uint32    // Bit register.
	nbits   int       // Number of valid bits in reg.
	marker  byte      // Marker that stopped the reader, 0 while reading data.
	eof     bool      // The source returned no more bytes.
	stopRST bool      // RSTn markers stop the reader instead of being ignored.
}

// readByte returns the next raw stream byte, refilling buf a chunk at a time.
func (br *bitReader) readByte() (byte, bool) {
	if br.n == 0 {
		if br.eof {
			return 0, false
		}

		n := br.in(br.dec, br.buf, len(br.buf))
		if n <= 0 {
			br.eof = true

			return 0, false
		}

		br.pos, br.n = 0, min(n, len(br.buf))
	}

	b := br.buf[br.pos]
	br.pos++
	br.n--

	return b, true
}

// fill tops reg up to at least 25 bits unless a marker or the end of the source stops it.
func (br *bitReader) fill() {
	for br.nbits <= 24 && br.marker == 0 {
		b, ok := br.readByte()
		if !ok {
			return
		}

		if b == 0xFF {
			for b == 0xFF {
				if b, ok = br.readByte(); !ok {
					return
				}
			}

			switch {
			case b == 0x00:
				b = 0xFF
			case b >= rst0 && b <= rst7:
				if br.stopRST {
					br.marker = b

					return
				}

				continue
			case b == eoi:
				br.marker = b

				return
			default:
				continue
			}
		}

		br.reg |= uint32(b) << (24 - br.nbits)
		br.nbits += 8
	}
}

// need makes sure n bits are buffered.
func (br *bitReader) need(n int) error {
	if br.nbits < n {
		br.fill()
	}

	if br.nbits < n {
		return br.shortErr()
	}

	return nil
}

func (br *bitReader) shortErr() error {
	if br.marker == 0 && br.eof {
		return fmt.Errorf("stream ended inside the scan: %w", ErrInput)
	}

	return fmt.Errorf("insufficient bits before marker %#02x: %w", br.marker, ErrFormat)
}

// showBits returns the next n bits without consuming them. n must be at most nbits.
func (br *bitReader) showBits(n int) uint32 {
	return br.reg >> (32 - n)
}

// skipBits consumes n buffered bits.
func (br *bitReader) skipBits(n int) {
	br.reg <<= n
	br.nbits -= n
}

// receive reads an s-bit magnitude category and sign-extends it.
func (br *bitReader) receive(s int) (int32, error) {
	if s == 0 {
		return 0, nil
	}

	if err := br.need(s); err != nil {
		return 0, err
	}

	v := int32(br.showBits(s))
	if br.reg&0x80000000 == 0 {
		v -= 1<<s - 1
	}

	br.skipBits(s)

	return v, nil
}

// restart drops the padding bits before a restart marker and consumes the marker.
func (br *bitReader) restart() (byte, error) {
	br.reg, br.nbits = 0, 0
	if br.marker == 0 {
		br.seekMarker()
	}

	m := br.marker
	if m < rst0 || m > rst7 {
		if m == 0 && br.eof {
			return 0, fmt.Errorf("stream ended before restart marker: %w", ErrInput)
		}

		return 0, fmt.Errorf("expected restart marker, found %#02x: %w", m, ErrFormat)
	}

	br.marker = 0

	return m, nil
}

// seekMarker discards data bytes up to the next marker.
func (br *bitReader) seekMarker() {
	for {
		b, ok := br.readByte()
		if !ok {
			return
		}

		if b != 0xFF {
			continue
		}

		for b == 0xFF {
			if b, ok = br.readByte(); !ok {
				return
			}
		}

		if b != 0x00 {
			br.marker = b

			return
		}
	}
}
