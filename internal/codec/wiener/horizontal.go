package wiener

// stageParams carries the constants of one pass.
type stageParams struct {
	taps  TapSet
	round int32 // additive bias injected into every accumulator
	shift uint  // rounding right shift
	max   int32 // inclusive upper clamp
}

// convolve7 evaluates one output of the symmetric 7-tap kernel on
// s0..s6 after mirroring the outer pairs. The result is shifted and
// clamped to [0, p.max].
func convolve7(s0, s1, s2, s3, s4, s5, s6 int32, p *stageParams) int32 {
	s06 := s0 + s6
	s15 := s1 + s5
	s24 := s2 + s4

	sum := p.round
	sum += p.taps[0] * s06
	sum += p.taps[1] * s15
	sum += p.taps[2] * s24
	sum += p.taps[3] * s3

	return clamp(roundShift(sum, p.shift), 0, p.max)
}

// convolve7RowH filters lanes consecutive outputs of one row. s starts at the
// leftmost tap of the first output, so s must hold lanes+Win-1 samples.
func convolve7RowH(s []uint16, d []uint16, lanes int, p *stageParams) {
	_ = s[lanes+Win-2]
	_ = d[lanes-1]
	for i := 0; i < lanes; i++ {
		d[i] = uint16(convolve7(
			int32(s[i]), int32(s[i+1]), int32(s[i+2]), int32(s[i+3]),
			int32(s[i+4]), int32(s[i+5]), int32(s[i+6]), p))
	}
}

// convolveHoriz writes im.rows filtered rows of width w. src[off] is the
// sample HalfWin columns left of and HalfWin rows above the block origin.
// Columns are handled in batches of lanes; w must be a multiple of lanes.
func convolveHoriz(src []uint16, off, stride int, im *extBuffer, w int, p *stageParams, lanes int) {
	for r := 0; r < im.rows; r++ {
		s := src[off+r*stride:]
		d := im.row(r)
		for x := 0; x < w; x += lanes {
			convolve7RowH(s[x:], d[x:], lanes, p)
		}
	}
}
