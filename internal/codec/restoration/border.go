package restoration

import (
	"image"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
)

// ExtendBorder returns a copy of p grown by border samples on every side,
// with the new samples replicating the nearest edge sample.
func ExtendBorder(p *wiener.Plane, border int) *wiener.Plane {
	r := p.Rect
	out := wiener.NewPlane(r.Inset(-border))

	for y := r.Min.Y; y < r.Max.Y; y++ {
		src := p.Pix[p.PixOffset(r.Min.X, y):][:r.Dx()]
		row := out.Pix[out.PixOffset(out.Rect.Min.X, y):][:out.Rect.Dx()]
		copy(row[border:], src)
		left, right := src[0], src[len(src)-1]
		for i := 0; i < border; i++ {
			row[i] = left
			row[border+len(src)+i] = right
		}
	}

	top := out.Pix[out.PixOffset(out.Rect.Min.X, r.Min.Y):][:out.Rect.Dx()]
	bottom := out.Pix[out.PixOffset(out.Rect.Min.X, r.Max.Y-1):][:out.Rect.Dx()]
	for i := 1; i <= border; i++ {
		copy(out.Pix[out.PixOffset(out.Rect.Min.X, r.Min.Y-i):], top)
		copy(out.Pix[out.PixOffset(out.Rect.Min.X, r.Max.Y-1+i):], bottom)
	}
	return out
}

// copyRect copies r from src to dst. Both planes must contain r.
func copyRect(dst, src *wiener.Plane, r image.Rectangle) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		copy(dst.Pix[dst.PixOffset(r.Min.X, y):][:r.Dx()], src.Pix[src.PixOffset(r.Min.X, y):])
	}
}
