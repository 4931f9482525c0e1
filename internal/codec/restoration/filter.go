package restoration

import (
	"context"
	"fmt"
	"image"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
	"github.com/kulaginds/wiener-restore/internal/logging"
)

// Options configures a Filter call.
type Options struct {
	BitDepth int
	// Conv overrides the codec's default rounding for BitDepth.
	Conv *wiener.ConvolveParams
	// Profile overrides the intermediate clamp limit rule.
	Profile *wiener.Profile
	// Workers bounds the number of units filtered concurrently. Zero uses GOMAXPROCS.
	Workers int
	// CheckTaps rejects kernels outside the codec coefficient bounds.
	CheckTaps bool
}

// Stats summarises one Filter call.
type Stats struct {
	Units    int
	Wiener   int
	Blocks   int
	Duration time.Duration
}

// Filter restores src into dst unit by unit. dst and src must share bounds;
// units holds one entry per grid unit in raster order. Units without a
// filter are copied. Output does not depend on opts.Workers.
func Filter(ctx context.Context, dst, src *wiener.Plane, g Grid, units []UnitInfo, opts Options) (Stats, error) {
	start := time.Now()

	if src.Rect != g.Bounds || !g.Bounds.In(dst.Rect) {
		return Stats{}, fmt.Errorf("%w: src %v, dst %v, grid %v", ErrPlane, src.Rect, dst.Rect, g.Bounds)
	}
	if len(units) != g.Len() {
		return Stats{}, fmt.Errorf("%w: have %d, grid has %d", ErrUnitCount, len(units), g.Len())
	}

	conv := wiener.WienerConvolveParams(opts.BitDepth)
	if opts.Conv != nil {
		conv = *opts.Conv
	}
	for i, u := range units {
		if u.Type != TypeWiener || !opts.CheckTaps {
			continue
		}
		if err := u.X.CheckRange(); err != nil {
			return Stats{}, fmt.Errorf("unit %d horizontal: %w", i, err)
		}
		if err := u.Y.CheckRange(); err != nil {
			return Stats{}, fmt.Errorf("unit %d vertical: %w", i, err)
		}
	}

	padded := ExtendBorder(src, FrameBorder)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	eg, ectx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	blocks := make([]int, len(units))
	for i, u := range units {
		r := g.Unit(i)
		if u.Type != TypeWiener {
			copyRect(dst, src, r)
			continue
		}

		p := &wiener.Params{
			XKernel:  u.X,
			YKernel:  u.Y,
			XStep:    wiener.UnityStep,
			YStep:    wiener.UnityStep,
			Conv:     conv,
			BitDepth: opts.BitDepth,
			Profile:  opts.Profile,
		}
		i := i
		eg.Go(func() error {
			if err := ectx.Err(); err != nil {
				return err
			}
			n, err := filterUnit(dst, padded, r, p)
			if err != nil {
				return fmt.Errorf("unit %d %v: %w", i, r, err)
			}
			blocks[i] = n
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Stats{}, err
	}

	st := Stats{Units: len(units), Duration: time.Since(start)}
	for i, u := range units {
		if u.Type == TypeWiener {
			st.Wiener++
			st.Blocks += blocks[i]
		}
	}
	logging.Debug("restoration: %d units (%d wiener, %d blocks) over %v in %v",
		st.Units, st.Wiener, st.Blocks, g.Bounds, st.Duration)

	return st, nil
}

// filterUnit runs the Wiener filter over r in processing blocks. Blocks whose
// width is not a multiple of BatchWidth are widened into scratch, then only
// the in-unit columns are copied out.
func filterUnit(dst, padded *wiener.Plane, r image.Rectangle, p *wiener.Params) (int, error) {
	scratch := wiener.NewPlane(image.Rect(0, 0, ProcUnitSize, ProcUnitSize))
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y += ProcUnitSize {
		h := min(ProcUnitSize, r.Max.Y-y)
		for x := r.Min.X; x < r.Max.X; x += ProcUnitSize {
			w := min(ProcUnitSize, r.Max.X-x)
			pw := (w + wiener.BatchWidth - 1) &^ (wiener.BatchWidth - 1)

			err := wiener.ConvolveAddSrc(scratch, image.Point{}, padded, image.Pt(x, y), pw, h, p)
			if err != nil {
				return n, err
			}
			for j := 0; j < h; j++ {
				copy(dst.Pix[dst.PixOffset(x, y+j):][:w], scratch.Pix[scratch.PixOffset(0, j):])
			}
			n++
		}
	}
	return n, nil
}
