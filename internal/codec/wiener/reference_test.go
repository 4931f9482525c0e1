package wiener

import (
	"image"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// trueTaps expands a stored kernel to its seven real-valued taps.
func trueTaps(k Kernel) [Win]float64 {
	var t [Win]float64
	for i := 0; i < Win; i++ {
		t[i] = float64(k[i])
	}
	t[HalfWin] += CenterBias
	return t
}

// referenceFilter is a floating point separable 7-tap filter with the same
// taps, rounded once at the end.
func referenceFilter(src *Plane, w, h, bd int, xk, yk Kernel) []uint16 {
	tx, ty := trueTaps(xk), trueTaps(yk)
	norm := float64(int(1) << (2 * FilterBits))
	maxVal := float64(int(1)<<bd - 1)

	rows := make([][]float64, h+Win-1)
	for r := range rows {
		rows[r] = make([]float64, w)
		y := r - HalfWin
		for x := 0; x < w; x++ {
			var acc float64
			for i := 0; i < Win; i++ {
				acc += tx[i] * float64(src.At(x+i-HalfWin, y))
			}
			rows[r][x] = acc
		}
	}

	out := make([]uint16, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var acc float64
			for j := 0; j < Win; j++ {
				acc += ty[j] * rows[y+j][x]
			}
			v := math.Round(acc / norm)
			out[y*w+x] = uint16(math.Max(0, math.Min(maxVal, v)))
		}
	}
	return out
}

// mildKernel draws taps whose negative lobe stays small enough that the
// intermediate clamp never engages, so only rounding separates the integer
// and floating point results.
func mildKernel(rng *rand.Rand) Kernel {
	t0 := int16(Tap0Min + rng.Intn(Tap0Max-Tap0Min+1))
	t1 := int16(-10 + rng.Intn(Tap1Max+11))
	t2 := int16(-10 + rng.Intn(Tap2Max+11))
	return NewKernel(t0, t1, t2)
}

func TestConvolveAddSrc_MatchesFloatReference(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, bd := range []int{8, 10, 12} {
		for iter := 0; iter < 25; iter++ {
			w := BatchWidth * (1 + rng.Intn(8))
			h := 1 + rng.Intn(40)
			xk, yk := mildKernel(rng), mildKernel(rng)

			src := randomSource(rng, w, h, bd)
			dst := NewPlane(image.Rect(0, 0, w, h))
			require.NoError(t, ConvolveAddSrc(dst, image.Point{}, src, image.Point{}, w, h, NewParams(xk, yk, bd)))

			want := referenceFilter(src, w, h, bd, xk, yk)
			for i, got := range dst.Pix {
				diff := int(got) - int(want[i])
				require.True(t, diff >= -1 && diff <= 1,
					"bd=%d iter=%d (%d,%d): got %d want %d (x=%v y=%v)",
					bd, iter, i%w, i/w, got, want[i], xk, yk)
			}
		}
	}
}
