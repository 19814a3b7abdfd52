package tinyjpeg

// outputMCU transforms the decoded MCU at (x, y) and hands the visible part of it to out.
// Pixels past the image edges and outside roi are cut off; an MCU with nothing
// left is skipped without transforming it.
func (d *Decoder) outputMCU(out OutputFunc, conv func(), nblocks, x, y int, roi *Rect) error {
	mw, mh := 8*d.msx, 8*d.msy

	rect := Rect{
		Left:   x,
		Top:    y,
		Right:  min(x+mw, d.width) - 1,
		Bottom: min(y+mh, d.height) - 1,
	}

	if roi != nil {
		rect = rect.Intersect(*roi)
		if rect.Empty() {
			return nil
		}
	}

	d.transform(nblocks)
	conv()

	bpp := d.format.BytesPerPixel()
	w, h := rect.Width(), rect.Height()

	// Squeeze the visible rows together.
	if w != mw || rect.Left != x || rect.Top != y {
		row := w * bpp
		src := ((rect.Top-y)*mw + rect.Left - x) * bpp
		for i := 0; i < h; i++ {
			copy(d.workbuf[i*row:i*row+row], d.workbuf[src:src+row])
			src += mw * bpp
		}
	}

	if !out(d, d.workbuf[:w*h*bpp], rect) {
		return ErrInterrupted
	}

	return nil
}
