package tinyjpeg

// pixelWriter stores one pixel at the start of p.
type pixelWriter func(p []byte, r, g, b uint8)

func putGray(p []byte, r, g, b uint8) {
	p[0] = uint8((77*uint32(r) + 150*uint32(g) + 29*uint32(b)) >> 8)
}

func putRGB565(p []byte, r, g, b uint8) {
	v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
	p[0] = byte(v)
	p[1] = byte(v >> 8)
}

func putBGR565(p []byte, r, g, b uint8) {
	putRGB565(p, b, g, r)
}

func putRGB888(p []byte, r, g, b uint8) {
	_ = p[2]
	p[0], p[1], p[2] = r, g, b
}

func putBGR888(p []byte, r, g, b uint8) {
	_ = p[2]
	p[0], p[1], p[2] = b, g, r
}

func putRGBA8888(p []byte, r, g, b uint8) {
	_ = p[3]
	p[0], p[1], p[2], p[3] = r, g, b, 0xFF
}

func putBGRA8888(p []byte, r, g, b uint8) {
	_ = p[3]
	p[0], p[1], p[2], p[3] = b, g, r, 0xFF
}

// pixelWriterFor returns the writer for f, exchanging red and blue when swap is set.
func pixelWriterFor(f Format, swap bool) pixelWriter {
	var put pixelWriter
	switch f {
	case Grayscale:
		put = putGray
	case RGB565:
		put = putRGB565
	case BGR565:
		put = putBGR565
	case RGB888:
		put = putRGB888
	case BGR888:
		put = putBGR888
	case RGBA8888:
		put = putRGBA8888
	case BGRA8888:
		put = putBGRA8888
	default:
		return nil
	}

	if swap {
		inner := put
		put = func(p []byte, r, g, b uint8) { inner(p, b, g, r) }
	}

	return put
}

// yccToRGB converts one saturated YCbCr sample to RGB.
// Division truncates toward zero.
func yccToRGB(sat func(int32) uint8, yy, cb, cr int16) (r, g, b uint8) {
	y := int32(sat(int32(yy)))
	u := int32(sat(int32(cb))) - 128
	v := int32(sat(int32(cr))) - 128

	r = sat(y + 1435*v/1024)
	g = sat(y - (352*u+731*v)/1024)
	b = sat(y + 1814*u/1024)

	return r, g, b
}

// converter returns the function that turns the samples in mcubuf into
// 8*msx by 8*msy pixels in workbuf, in the active format.
func (d *Decoder) converter() func() {
	put := pixelWriterFor(d.format, d.swapRB)
	bpp := d.format.BytesPerPixel()

	sat := clip
	if d.clipTable {
		sat = clipLookup
	}

	pix := d.workbuf
	ys := d.mcubuf

	if d.ncomp == 1 {
		return func() {
			for i := 0; i < 64; i++ {
				v := sat(int32(ys[i]))
				put(pix[i*bpp:], v, v, v)
			}
		}
	}

	n := d.msx * d.msy
	cbs := d.mcubuf[n*64 : n*64+64]
	crs := d.mcubuf[n*64+64 : n*64+128]

	switch {
	case d.msx == 1:
		// 4:4:4
		return func() {
			for i := 0; i < 64; i++ {
				r, g, b := yccToRGB(sat, ys[i], cbs[i], crs[i])
				put(pix[i*bpp:], r, g, b)
			}
		}
	case d.msy == 1:
		// 4:2:2, two luma blocks side by side.
		return func() {
			o := 0
			for py := 0; py < 8; py++ {
				for px := 0; px < 16; px++ {
					yi := px>>3*64 + py*8 + px&7
					ci := py*8 + px>>1
					r, g, b := yccToRGB(sat, ys[yi], cbs[ci], crs[ci])
					put(pix[o:], r, g, b)
					o += bpp
				}
			}
		}
	default:
		// 4:2:0, four luma blocks in raster order.
		return func() {
			o := 0
			for py := 0; py < 16; py++ {
				for px := 0; px < 16; px++ {
					yi := (py>>3*2+px>>3)*64 + py&7*8 + px&7
					ci := py>>1*8 + px>>1
					r, g, b := yccToRGB(sat, ys[yi], cbs[ci], crs[ci])
					put(pix[o:], r, g, b)
					o += bpp
				}
			}
		}
	}
}
