package wiener

import "sync"

// maxExtSamples is the largest intermediate block: MaxSBSize columns by
// MaxSBSize+Win-1 rows.
const maxExtSamples = MaxSBSize * (MaxSBSize + Win - 1)

// extBuffer holds the horizontally filtered rows of one call. Row r of the
// buffer corresponds to source row r-HalfWin relative to the block origin.
type extBuffer struct {
	pix    []uint16
	stride int
	rows   int
}

var extPool = sync.Pool{
	New: func() any {
		b := make([]uint16, maxExtSamples)
		return &b
	},
}

// getExtBuffer reserves a w x rows buffer. The caller must release it.
func getExtBuffer(w, rows int) *extBuffer {
	bp := extPool.Get().(*[]uint16)
	b := *bp
	if n := w * rows; cap(b) < n {
		b = make([]uint16, n)
	}
	return &extBuffer{
		pix:    b[:w*rows],
		stride: w,
		rows:   rows,
	}
}

func (b *extBuffer) release() {
	pix := b.pix[:cap(b.pix)]
	b.pix = nil
	extPool.Put(&pix)
}

func (b *extBuffer) row(r int) []uint16 {
	return b.pix[r*b.stride : (r+1)*b.stride]
}
