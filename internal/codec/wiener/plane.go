package wiener

import "image"

// Plane is a strided view over 16-bit samples.
//
// Like image.Gray16, Pix[(y-Rect.Min.Y)*Stride + (x-Rect.Min.X)] holds the
// sample at (x, y). Rect is the full addressable extent, including any
// border the caller has padded around the picture.
type Plane struct {
	Pix    []uint16
	Stride int
	Rect   image.Rectangle
}

// NewPlane allocates a zeroed plane covering r.
func NewPlane(r image.Rectangle) *Plane {
	w, h := r.Dx(), r.Dy()
	return &Plane{
		Pix:    make([]uint16, w*h),
		Stride: w,
		Rect:   r,
	}
}

// Bounds returns the addressable extent of the plane.
func (p *Plane) Bounds() image.Rectangle {
	return p.Rect
}

// PixOffset returns the index of the sample at (x, y).
func (p *Plane) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x - p.Rect.Min.X)
}

// At returns the sample at (x, y), or 0 outside the plane.
func (p *Plane) At(x, y int) uint16 {
	if !(image.Point{x, y}.In(p.Rect)) {
		return 0
	}
	return p.Pix[p.PixOffset(x, y)]
}

// Set stores v at (x, y); points outside the plane are ignored.
func (p *Plane) Set(x, y int, v uint16) {
	if !(image.Point{x, y}.In(p.Rect)) {
		return
	}
	p.Pix[p.PixOffset(x, y)] = v
}

// SubPlane returns a view of p restricted to r. The view shares Pix with p.
func (p *Plane) SubPlane(r image.Rectangle) *Plane {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &Plane{}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &Plane{
		Pix:    p.Pix[i:],
		Stride: p.Stride,
		Rect:   r,
	}
}

// Fill sets every sample of r (clipped to the plane) to v.
func (p *Plane) Fill(r image.Rectangle, v uint16) {
	r = r.Intersect(p.Rect)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := p.Pix[p.PixOffset(r.Min.X, y):]
		for x, n := 0, r.Dx(); x < n; x++ {
			row[x] = v
		}
	}
}

// covers reports whether r lies inside the plane and its backing slice.
func (p *Plane) covers(r image.Rectangle) bool {
	if r.Empty() || !r.In(p.Rect) {
		return false
	}
	last := p.PixOffset(r.Max.X-1, r.Max.Y-1)
	return last < len(p.Pix)
}
