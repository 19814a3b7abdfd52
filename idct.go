package tinyjpeg

// Arai IDCT multipliers scaled by 4096.
const (
	m13 = 5792  // 1.41421
	m2  = 4433  // 1.08239
	m4  = 10703 // 2.61313
	m5  = 7568  // 1.84776
)

// transform dequantizes and inverse-transforms the first n block slots of mcubuf in place.
func (d *Decoder) transform(n int) {
	tmp := int32s(d.workbuf[:256])
	clipped := d.fastDecode == 0

	for c := 0; c < n; c++ {
		blk := d.mcubuf[c*64 : c*64+64]
		dequantize(tmp, blk, d.qttbl[d.comp[c].qt])
		blockIDCT(tmp, blk, clipped)
	}
}

// dequantize scales the raster-order coefficients of blk by qt into dst.
func dequantize(dst []int32, blk []int16, qt []int32) {
	for i := 0; i < 64; i++ {
		if v := blk[i]; v != 0 {
			dst[i] = int32(v) * qt[i] >> 8
		} else {
			dst[i] = 0
		}
	}
}

// blockIDCT performs the Arai inverse DCT on src (columns, then rows) and writes
// level-shifted samples to dst. When clipped is set the samples are saturated to 0..255.
// src is used as scratch.
func blockIDCT(src []int32, dst []int16, clipped bool) {
	_ = src[63]
	_ = dst[63]

	// Columns.
	for i := 0; i < 8; i++ {
		v0, v1, v2, v3 := src[i], src[i+16], src[i+32], src[i+48]

		t10 := v0 + v2
		t12 := v0 - v2
		t11 := (v1 - v3) * m13 >> 12
		v3 += v1
		t11 -= v3
		v0 = t10 + v3
		v3 = t10 - v3
		v1 = t11 + t12
		v2 = t12 - t11

		v4, v5, v6, v7 := src[i+56], src[i+8], src[i+40], src[i+24]

		t10 = v5 - v4
		t11 = v5 + v4
		t12 = v6 - v7
		v7 += v6
		v5 = (t11 - v7) * m13 >> 12
		v7 += t11
		t13 := (t10 + t12) * m5 >> 12
		v4 = t13 - (t10 * m2 >> 12)
		v6 = t13 - (t12 * m4 >> 12) - v7
		v5 -= v6
		v4 -= v5

		src[i] = v0 + v7
		src[i+56] = v0 - v7
		src[i+8] = v1 + v6
		src[i+48] = v1 - v6
		src[i+16] = v2 + v5
		src[i+40] = v2 - v5
		src[i+24] = v3 + v4
		src[i+32] = v3 - v4
	}

	// Rows.
	for i := 0; i < 64; i += 8 {
		row := src[i : i+8 : i+8]
		v0, v1, v2, v3 := row[0]+128<<8, row[2], row[4], row[6]

		t10 := v0 + v2
		t12 := v0 - v2
		t11 := (v1 - v3) * m13 >> 12
		v3 += v1
		t11 -= v3
		v0 = t10 + v3
		v3 = t10 - v3
		v1 = t11 + t12
		v2 = t12 - t11

		v4, v5, v6, v7 := row[7], row[1], row[5], row[3]

		t10 = v5 - v4
		t11 = v5 + v4
		t12 = v6 - v7
		v7 += v6
		v5 = (t11 - v7) * m13 >> 12
		v7 += t11
		t13 := (t10 + t12) * m5 >> 12
		v4 = t13 - (t10 * m2 >> 12)
		v6 = t13 - (t12 * m4 >> 12) - v7
		v5 -= v6
		v4 -= v5

		out := dst[i : i+8 : i+8]
		out[0] = descale(v0+v7, clipped)
		out[7] = descale(v0-v7, clipped)
		out[1] = descale(v1+v6, clipped)
		out[6] = descale(v1-v6, clipped)
		out[2] = descale(v2+v5, clipped)
		out[5] = descale(v2-v5, clipped)
		out[3] = descale(v3+v4, clipped)
		out[4] = descale(v3-v4, clipped)
	}
}

func descale(v int32, clipped bool) int16 {
	v >>= 8
	if clipped {
		return int16(clip(v))
	}

	return int16(v)
}
