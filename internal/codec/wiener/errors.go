package wiener

import "errors"

var (
	// ErrGeometry indicates a block width/height the engine cannot process.
	ErrGeometry = errors.New("wiener: invalid block geometry")
	// ErrStep indicates a non-unity filter step (subpixel resampling is not supported).
	ErrStep = errors.New("wiener: non-unity step")
	// ErrReservedTap indicates a non-zero value in the reserved kernel slot.
	ErrReservedTap = errors.New("wiener: reserved tap is not zero")
	// ErrBitDepth indicates a bit depth outside [MinBitDepth, MaxBitDepth].
	ErrBitDepth = errors.New("wiener: unsupported bit depth")
	// ErrRounding indicates rounding shifts that would overflow the accumulator bias.
	ErrRounding = errors.New("wiener: invalid rounding configuration")
	// ErrBorder indicates the source plane lacks the HalfWin border around the block.
	ErrBorder = errors.New("wiener: source border too small")
	// ErrBounds indicates the destination block lies outside the destination plane.
	ErrBounds = errors.New("wiener: block outside plane")
	// ErrTapRange indicates a tap outside the codec coefficient bounds.
	ErrTapRange = errors.New("wiener: tap out of range")
	// ErrAsymmetricKernel indicates a stored kernel that is not mirror symmetric.
	ErrAsymmetricKernel = errors.New("wiener: kernel is not symmetric")
)
