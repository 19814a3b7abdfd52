package tinyjpeg

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

// blockDecoder returns a decoder with DC table stdDC and AC table (acCounts, vals)
// in slot 0, reading the scan data data.
func blockDecoder(t *testing.T, fast int, vals []byte, data []byte) *Decoder {
	t.Helper()

	d := &Decoder{pool: newPool(make([]byte, 8192)), fastDecode: fast}

	counts := [16]byte{}
	copy(counts[:], acCounts[:])
	if len(vals) != len(acVals) {
		counts = [16]byte{0, byte(len(vals))}
	}

	seg := dhtPayload(0x00, stdDCBits, stdDCVals)
	seg = append(seg, dhtPayload(0x10, counts, vals)...)
	if err := d.createHuffmanTable(seg); err != nil {
		t.Fatalf("createHuffmanTable failed: %v", err)
	}

	d.mcubuf = make([]int16, 64)
	d.br = bitReader{in: ReaderInput(bytes.NewReader(data)), dec: d, buf: make([]byte, 16)}

	return d
}

type symbol struct {
	sym  byte
	bits uint32
	size int
}

// scanData writes DC and AC symbols followed by their extra bits.
func scanData(dc symbol, ac []symbol, counts [16]byte, vals []byte) []byte {
	dcCodes := canonicalCodes(stdDCBits, stdDCVals)
	acCodes := canonicalCodes(counts, vals)

	var w bitWriter
	c := dcCodes[dc.sym]
	w.write(c.code, c.size)
	w.write(dc.bits, dc.size)

	for _, s := range ac {
		c := acCodes[s.sym]
		w.write(c.code, c.size)
		w.write(s.bits, s.size)
	}

	w.flush()

	return w.buf.Bytes()
}

func TestDecodeBlockCoefficients(t *testing.T) {
	ac := []symbol{
		{0x01, 0b1, 1},  // +1 at 1
		{0x11, 0b0, 1},  // -1 at 3
		{0xF0, 0, 0},    // 16 zeros
		{0x02, 0b10, 2}, // +2 at 20
		{0x61, 0b1, 1},  // +1 at 27
		{0x00, 0, 0},
	}

	data := scanData(symbol{2, 0b11, 2}, ac, acCounts, acVals)

	for fast := 0; fast <= 2; fast++ {
		t.Run(fmt.Sprintf("fast%d", fast), func(t *testing.T) {
			d := blockDecoder(t, fast, acVals, data)
			d.dcv[0] = 10

			if err := d.decodeBlock(0); err != nil {
				t.Fatalf("decodeBlock failed: %v", err)
			}

			want := make([]int16, 64)
			want[0] = 13
			want[zz[1]] = 1
			want[zz[3]] = -1
			want[zz[20]] = 2
			want[zz[27]] = 1

			for i := range want {
				if d.mcubuf[i] != want[i] {
					t.Fatalf("Coefficient %d: got %d, want %d", i, d.mcubuf[i], want[i])
				}
			}

			if d.dcv[0] != 13 {
				t.Errorf("DC predictor %d, want 13", d.dcv[0])
			}
		})
	}
}

func TestDecodeBlockFullBlock(t *testing.T) {
	// 63 coefficients of +1 and no EOB.
	ac := make([]symbol, 63)
	for i := range ac {
		ac[i] = symbol{0x01, 1, 1}
	}

	data := scanData(symbol{0, 0, 0}, ac, acCounts, acVals)
	d := blockDecoder(t, 1, acVals, data)

	if err := d.decodeBlock(0); err != nil {
		t.Fatalf("decodeBlock failed: %v", err)
	}

	for i := 1; i < 64; i++ {
		if d.mcubuf[i] != 1 {
			t.Fatalf("Coefficient %d: got %d, want 1", i, d.mcubuf[i])
		}
	}
}

func TestDecodeBlockErrors(t *testing.T) {
	badVals := []byte{0x00, 0x10}
	badCounts := [16]byte{0, 2}

	tests := []struct {
		name string
		vals []byte
		data []byte
	}{
		{
			"run without size",
			badVals,
			scanData(symbol{0, 0, 0}, []symbol{{0x10, 0, 0}}, badCounts, badVals),
		},
		{
			"zero run overflow",
			acVals,
			scanData(symbol{0, 0, 0}, []symbol{{0xF0, 0, 0}, {0xF0, 0, 0}, {0xF0, 0, 0}, {0xF0, 0, 0}}, acCounts, acVals),
		},
		{
			"run past the block",
			acVals,
			scanData(symbol{0, 0, 0}, []symbol{{0xF0, 0, 0}, {0xF0, 0, 0}, {0xF0, 0, 0}, {0x61, 1, 1}, {0x61, 1, 1}, {0x61, 1, 1}}, acCounts, acVals),
		},
		{
			"invalid code",
			acVals,
			[]byte{0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00, 0xFF, 0x00},
		},
	}

	for _, tt := range tests {
		for fast := 0; fast <= 2; fast++ {
			t.Run(fmt.Sprintf("%s/fast%d", tt.name, fast), func(t *testing.T) {
				d := blockDecoder(t, fast, tt.vals, tt.data)
				if err := d.decodeBlock(0); !errors.Is(err, ErrFormat) {
					t.Errorf("Got %v, want ErrFormat", err)
				}
			})
		}
	}
}

func TestDecodeHuffmanLongCodes(t *testing.T) {
	// Every symbol of the AC table, including the 11 and 12 bit codes past the lookup table.
	var w bitWriter
	codes := canonicalCodes(acCounts, acVals)
	for _, v := range acVals {
		c := codes[v]
		w.write(c.code, c.size)
	}

	w.flush()

	for fast := 0; fast <= 2; fast++ {
		d := blockDecoder(t, fast, acVals, w.buf.Bytes())
		for i, want := range acVals {
			got, err := d.decodeHuffman(&d.huff[0][1], 1)
			if err != nil {
				t.Fatalf("FastDecode %d symbol %d: %v", fast, i, err)
			}

			if got != want {
				t.Fatalf("FastDecode %d symbol %d: got %#02x, want %#02x", fast, i, got, want)
			}
		}
	}
}
