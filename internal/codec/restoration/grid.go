// Package restoration applies per-unit loop restoration filters to a whole
// plane.
//
// A plane is split into square restoration units. Every unit carries its own
// filter choice; Wiener units are run through the separable 7-tap filter in
// processing blocks of at most ProcUnitSize x ProcUnitSize samples.
package restoration

import (
	"errors"
	"fmt"
	"image"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
)

const (
	// ProcUnitSize is the largest block handed to the convolution engine.
	ProcUnitSize = 64

	// FrameBorder is the padding added around a plane before filtering. It
	// covers the filter half window plus widening a block to BatchWidth.
	FrameBorder = 16

	MinUnitSize = 32
	MaxUnitSize = 256
)

var (
	ErrUnitSize  = errors.New("restoration: invalid unit size")
	ErrUnitCount = errors.New("restoration: unit count mismatch")
	ErrPlane     = errors.New("restoration: invalid plane")
)

// Type selects the filter applied to a unit.
type Type uint8

const (
	TypeNone Type = iota
	TypeWiener
)

func (t Type) String() string {
	switch t {
	case TypeNone:
		return "none"
	case TypeWiener:
		return "wiener"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// UnitInfo is the decoded filter choice of one restoration unit.
type UnitInfo struct {
	Type Type
	X    wiener.Kernel
	Y    wiener.Kernel
}

// Grid partitions a plane into restoration units in raster order.
type Grid struct {
	Bounds   image.Rectangle
	UnitSize int
	Cols     int
	Rows     int
}

// unitCount rounds size/unitSize to nearest so the last unit absorbs a
// remainder smaller than half a unit.
func unitCount(size, unitSize int) int {
	return max((size+unitSize/2)/unitSize, 1)
}

// NewGrid returns the unit layout of a plane with the given bounds.
func NewGrid(bounds image.Rectangle, unitSize int) (Grid, error) {
	if unitSize < MinUnitSize || unitSize > MaxUnitSize || unitSize&(unitSize-1) != 0 {
		return Grid{}, fmt.Errorf("%w: %d", ErrUnitSize, unitSize)
	}
	if bounds.Empty() {
		return Grid{}, fmt.Errorf("%w: empty bounds %v", ErrPlane, bounds)
	}
	return Grid{
		Bounds:   bounds,
		UnitSize: unitSize,
		Cols:     unitCount(bounds.Dx(), unitSize),
		Rows:     unitCount(bounds.Dy(), unitSize),
	}, nil
}

// Len returns the number of units.
func (g Grid) Len() int {
	return g.Cols * g.Rows
}

// Unit returns the rectangle covered by unit i.
func (g Grid) Unit(i int) image.Rectangle {
	col, row := i%g.Cols, i/g.Cols
	r := image.Rect(
		g.Bounds.Min.X+col*g.UnitSize,
		g.Bounds.Min.Y+row*g.UnitSize,
		g.Bounds.Min.X+(col+1)*g.UnitSize,
		g.Bounds.Min.Y+(row+1)*g.UnitSize,
	)
	if col == g.Cols-1 {
		r.Max.X = g.Bounds.Max.X
	}
	if row == g.Rows-1 {
		r.Max.Y = g.Bounds.Max.Y
	}
	return r
}
