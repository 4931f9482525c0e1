package wiener

import "fmt"

// Supported sample depths.
const (
	MinBitDepth = 8
	MaxBitDepth = 16
)

// ConvolveParams is the per-call rounding configuration.
type ConvolveParams struct {
	// Round0 is the number of bits dropped after the horizontal pass.
	Round0 int
	// Round1 is the number of bits dropped after the vertical pass.
	Round1 int
	// ClampLimit overrides the profile's intermediate clamp limit when non-zero.
	// Intermediate values are clamped to [0, ClampLimit-1].
	ClampLimit int
}

// WienerConvolveParams returns the codec's default rounding for bd.
// Round0 grows past 3 only when the intermediate range would exceed 16 bits.
func WienerConvolveParams(bd int) ConvolveParams {
	const round0Bits = 3
	p := ConvolveParams{
		Round0: round0Bits,
		Round1: 2*FilterBits - round0Bits,
	}
	if r := bd + FilterBits - p.Round0 + 2; r > 16 {
		p.Round0 += r - 16
		p.Round1 -= r - 16
	}
	return p
}

// Profile describes the precision budget of the surrounding codec.
type Profile struct {
	Name string
	// ClampLimit returns the exclusive upper bound of intermediate samples.
	ClampLimit func(round0, bd int) int
}

// AV1Profile is the precision budget of AV1 loop restoration.
var AV1Profile = Profile{
	Name: "av1",
	ClampLimit: func(round0, bd int) int {
		return 1 << (bd + 1 + FilterBits - round0)
	},
}

// clampLimit resolves the intermediate clamp limit for a call.
func (c ConvolveParams) clampLimit(prof Profile, bd int) int {
	if c.ClampLimit != 0 {
		return c.ClampLimit
	}
	return prof.ClampLimit(c.Round0, bd)
}

func (c ConvolveParams) validate(bd int) error {
	if c.Round0 < 0 || c.Round1 < 0 {
		return fmt.Errorf("%w: negative shift (round0=%d, round1=%d)", ErrRounding, c.Round0, c.Round1)
	}
	// round_sub = -(1 << (bd+round1-1)) must fit an int32.
	if bd+c.Round1-1 > 30 || c.Round0 > 30 {
		return fmt.Errorf("%w: shift too large (round0=%d, round1=%d, bd=%d)", ErrRounding, c.Round0, c.Round1, bd)
	}
	return nil
}

// roundShift is a rounding arithmetic right shift (round half up).
func roundShift(v int32, n uint) int32 {
	if n == 0 {
		return v
	}
	return (v + 1<<(n-1)) >> n
}

func clamp(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
