package wiener

import (
	"fmt"
	"image"
	"math"
)

// Params are the per-call inputs of ConvolveAddSrc.
type Params struct {
	XKernel Kernel
	YKernel Kernel
	// XStep and YStep must equal UnityStep.
	XStep int
	YStep int

	Conv     ConvolveParams
	BitDepth int

	// Profile supplies the intermediate clamp limit. Nil selects AV1Profile.
	Profile *Profile
}

// NewParams returns unity-step parameters with the codec's default rounding for bd.
func NewParams(x, y Kernel, bd int) *Params {
	return &Params{
		XKernel:  x,
		YKernel:  y,
		XStep:    UnityStep,
		YStep:    UnityStep,
		Conv:     WienerConvolveParams(bd),
		BitDepth: bd,
	}
}

// passes is everything derived from Params before touching any sample.
type passes struct {
	horiz stageParams
	vert  stageParams
}

// ConvolveAddSrc filters the w x h block whose origin is sp in src and writes
// the result to the block at dp in dst.
//
// src must be addressable HalfWin samples beyond the block on every side;
// the caller pads the plane (see restoration.ExtendBorder). A precondition
// violation returns an error wrapping one of the package sentinels and
// leaves dst untouched.
func ConvolveAddSrc(dst *Plane, dp image.Point, src *Plane, sp image.Point, w, h int, p *Params) error {
	return convolveAddSrc(dst, dp, src, sp, w, h, p, BatchWidth)
}

// MustConvolveAddSrc is like ConvolveAddSrc but panics on a precondition violation.
func MustConvolveAddSrc(dst *Plane, dp image.Point, src *Plane, sp image.Point, w, h int, p *Params) {
	if err := ConvolveAddSrc(dst, dp, src, sp, w, h, p); err != nil {
		panic(err)
	}
}

func convolveAddSrc(dst *Plane, dp image.Point, src *Plane, sp image.Point, w, h int, p *Params, lanes int) error {
	pl, err := p.plan(w, h)
	if err != nil {
		return err
	}

	out := image.Rect(dp.X, dp.Y, dp.X+w, dp.Y+h)
	if !dst.covers(out) {
		return fmt.Errorf("%w: %v not in %v", ErrBounds, out, dst.Rect)
	}
	in := image.Rect(sp.X, sp.Y, sp.X+w, sp.Y+h).Inset(-HalfWin)
	if !src.covers(in) {
		return fmt.Errorf("%w: need %v, have %v", ErrBorder, in, src.Rect)
	}

	im := getExtBuffer(w, h+Win-1)
	defer im.release()

	convolveHoriz(src.Pix, src.PixOffset(in.Min.X, in.Min.Y), src.Stride, im, w, &pl.horiz, lanes)
	convolveVert(im, dst.Pix, dst.PixOffset(dp.X, dp.Y), dst.Stride, w, &pl.vert, lanes)

	return nil
}

// plan validates the call and derives the per-pass constants.
func (p *Params) plan(w, h int) (*passes, error) {
	if w <= 0 || h <= 0 || w%BatchWidth != 0 {
		return nil, fmt.Errorf("%w: %dx%d (width must be a positive multiple of %d)", ErrGeometry, w, h, BatchWidth)
	}
	if w > MaxSBSize || h > MaxSBSize {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d", ErrGeometry, w, h, MaxSBSize)
	}
	if p.XStep != UnityStep || p.YStep != UnityStep {
		return nil, fmt.Errorf("%w: x=%d y=%d", ErrStep, p.XStep, p.YStep)
	}
	if p.XKernel[KernelTaps-1] != 0 || p.YKernel[KernelTaps-1] != 0 {
		return nil, fmt.Errorf("%w: x=%d y=%d", ErrReservedTap, p.XKernel[KernelTaps-1], p.YKernel[KernelTaps-1])
	}

	bd := p.BitDepth
	if bd < MinBitDepth || bd > MaxBitDepth {
		return nil, fmt.Errorf("%w: %d", ErrBitDepth, bd)
	}
	if err := p.Conv.validate(bd); err != nil {
		return nil, err
	}

	prof := AV1Profile
	if p.Profile != nil {
		prof = *p.Profile
	}
	limit := p.Conv.clampLimit(prof, bd)
	if limit <= 0 || limit > 1<<16 {
		return nil, fmt.Errorf("%w: clamp limit %d", ErrRounding, limit)
	}

	pl := &passes{
		horiz: stageParams{
			taps:  p.XKernel.Taps(),
			round: 1 << (bd + FilterBits - 1),
			shift: uint(p.Conv.Round0),
			max:   int32(limit - 1),
		},
		vert: stageParams{
			taps:  p.YKernel.Taps(),
			round: -(1 << (bd + p.Conv.Round1 - 1)),
			shift: uint(p.Conv.Round1),
			max:   1<<bd - 1,
		},
	}
	if err := pl.horiz.checkHeadroom(1<<bd - 1); err != nil {
		return nil, fmt.Errorf("horizontal: %w", err)
	}
	if err := pl.vert.checkHeadroom(int64(limit - 1)); err != nil {
		return nil, fmt.Errorf("vertical: %w", err)
	}
	return pl, nil
}

// checkHeadroom rejects taps whose worst-case accumulation over inputs in
// [0, maxIn] would overflow the int32 accumulator.
func (p *stageParams) checkHeadroom(maxIn int64) error {
	t := p.taps
	abs := func(v int32) int64 {
		if v < 0 {
			return -int64(v)
		}
		return int64(v)
	}
	weight := 2*(abs(t[0])+abs(t[1])+abs(t[2])) + abs(t[3])
	worst := abs(p.round) + weight*maxIn
	if p.shift > 0 {
		worst += 1 << (p.shift - 1)
	}
	if worst > math.MaxInt32 {
		return fmt.Errorf("%w: accumulator needs %d", ErrTapRange, worst)
	}
	return nil
}
