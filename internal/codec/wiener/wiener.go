// Package wiener implements the separable 7-tap Wiener restoration filter
// used on reconstructed high bit depth planes.
//
// The filter is applied in two passes over one block:
//   - a horizontal pass writing (h+6) extended-precision rows into a scratch
//     buffer, biased up by 2^(bd+FilterBits-1) so every value stays unsigned;
//   - a vertical pass removing that bias and rounding back to bd bits.
//
// Kernels are stored with the centre tap offset by -CenterBias so that all
// four distinct taps fit the same signed range. The bias is restored once per
// call when the TapSet is built.
package wiener

import "fmt"

const (
	// FilterBits is the precision of the filter taps (unity gain == 1<<FilterBits).
	FilterBits = 7

	// Win is the number of taps of the Wiener filter.
	Win = 7
	// HalfWin is the number of neighbours read on each side of a sample.
	HalfWin = Win / 2

	// CenterBias is subtracted from the stored centre tap.
	CenterBias = 1 << FilterBits

	// KernelTaps is the stored kernel length; the last slot is padding.
	KernelTaps = 8

	// BatchWidth is the number of columns processed per lane batch.
	BatchWidth = 8

	// MaxSBSize is the largest block (superblock) edge the engine accepts.
	MaxSBSize = 128

	// UnityStep is the q4 step meaning "no subpixel resampling".
	UnityStep = 16
)

// Codec limits for the three independent side taps.
const (
	Tap0Min, Tap0Max = -5, 10
	Tap1Min, Tap1Max = -23, 8
	Tap2Min, Tap2Max = -17, 46
)

// Kernel is a stored tap array: [t0, t1, t2, t3, t2, t1, t0, 0].
// t3 is the centre tap minus CenterBias. Slot 7 is reserved and must be zero.
type Kernel [KernelTaps]int16

// NewKernel builds a unity-gain kernel from the three side taps.
func NewKernel(t0, t1, t2 int16) Kernel {
	c := -2 * (t0 + t1 + t2)
	return Kernel{t0, t1, t2, c, t2, t1, t0, 0}
}

// IdentityKernel passes samples through unchanged.
var IdentityKernel = Kernel{}

// Taps restores the centre bias and returns the four distinct taps.
func (k Kernel) Taps() TapSet {
	return TapSet{
		int32(k[0]),
		int32(k[1]),
		int32(k[2]),
		int32(k[3]) + CenterBias,
	}
}

// Symmetric reports whether slots 4..6 mirror slots 0..2.
func (k Kernel) Symmetric() bool {
	return k[0] == k[6] && k[1] == k[5] && k[2] == k[4]
}

// CheckRange reports the first side tap outside the codec bounds.
func (k Kernel) CheckRange() error {
	limits := [3][2]int16{
		{Tap0Min, Tap0Max},
		{Tap1Min, Tap1Max},
		{Tap2Min, Tap2Max},
	}
	for i, l := range limits {
		if k[i] < l[0] || k[i] > l[1] {
			return fmt.Errorf("%w: tap %d = %d, want [%d, %d]", ErrTapRange, i, k[i], l[0], l[1])
		}
	}
	if !k.Symmetric() {
		return fmt.Errorf("%w: %v", ErrAsymmetricKernel, k)
	}
	return nil
}

// Gain returns the sum of the true 7-tap kernel (128 for unity gain).
func (k Kernel) Gain() int32 {
	t := k.Taps()
	return 2*(t[0]+t[1]+t[2]) + t[3]
}

// TapSet holds the true taps: outer, middle, inner and centre (bias restored).
type TapSet [4]int32
