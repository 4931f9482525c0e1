package wiener

// rowBatch is the number of output rows produced per vertical step.
const rowBatch = 4

// convolve7ColV filters lanes columns of one output row. rows holds the Win
// intermediate rows feeding the output, each starting at the first lane.
func convolve7ColV(rows *[Win][]uint16, d []uint16, lanes int, p *stageParams) {
	s0, s1, s2, s3, s4, s5, s6 := rows[0], rows[1], rows[2], rows[3], rows[4], rows[5], rows[6]
	_ = d[lanes-1]
	for i := 0; i < lanes; i++ {
		d[i] = uint16(convolve7(
			int32(s0[i]), int32(s1[i]), int32(s2[i]), int32(s3[i]),
			int32(s4[i]), int32(s5[i]), int32(s6[i]), p))
	}
}

// convolveVert reduces the im.rows intermediate rows to h = im.rows-Win+1
// output rows written at dst[off] with the given stride. Columns are handled
// in strips of lanes, rows in batches of rowBatch with a single-row tail.
func convolveVert(im *extBuffer, dst []uint16, off, stride, w int, p *stageParams, lanes int) {
	h := im.rows - Win + 1
	var win [Win + rowBatch - 1][]uint16
	for x := 0; x < w; x += lanes {
		y := 0
		for ; h-y >= rowBatch; y += rowBatch {
			for i := range win {
				win[i] = im.row(y + i)[x:]
			}
			for j := 0; j < rowBatch; j++ {
				d := dst[off+(y+j)*stride+x:]
				convolve7ColV((*[Win][]uint16)(win[j:j+Win]), d, lanes, p)
			}
		}
		for ; y < h; y++ {
			for i := 0; i < Win; i++ {
				win[i] = im.row(y + i)[x:]
			}
			d := dst[off+y*stride+x:]
			convolve7ColV((*[Win][]uint16)(win[:Win]), d, lanes, p)
		}
	}
}
