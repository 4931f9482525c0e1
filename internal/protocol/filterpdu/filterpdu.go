// Package filterpdu implements the binary messages exchanged on the filter
// websocket: a request carrying one bordered block with its kernels, and a
// response carrying the filtered block or an error text.
//
// All fields are little-endian.
package filterpdu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/kulaginds/wiener-restore/internal/codec/wiener"
)

// Magic opens every message.
var Magic = [4]byte{'W', 'N', 'R', '1'}

// Border is the number of extra samples sent on each side of the block.
const Border = wiener.HalfWin

// Request flags.
const (
	// FlagCheckTaps asks the server to enforce codec tap bounds.
	FlagCheckTaps uint8 = 1 << iota
)

// Status codes of a FilterResponse.
const (
	StatusOK uint8 = iota
	StatusBadRequest
	StatusFilterError
)

var (
	ErrBadMagic  = errors.New("filterpdu: bad magic")
	ErrTooLarge  = errors.New("filterpdu: block too large")
	ErrBadStatus = errors.New("filterpdu: unknown status")
)

// FilterRequest asks for one Width x Height block to be filtered. Samples
// holds (Width+2*Border) x (Height+2*Border) values in raster order, the
// block itself starting at (Border, Border).
type FilterRequest struct {
	BitDepth uint8
	Round0   uint8
	Round1   uint8
	Flags    uint8
	Width    uint16
	Height   uint16
	XKernel  wiener.Kernel
	YKernel  wiener.Kernel
	Samples  []uint16
}

// SampleCount returns the number of samples carried by a request of this size.
func (r *FilterRequest) SampleCount() int {
	return (int(r.Width) + 2*Border) * (int(r.Height) + 2*Border)
}

// Serialize writes the request to wire.
func (r *FilterRequest) Serialize(wire io.Writer) error {
	if len(r.Samples) != r.SampleCount() {
		return fmt.Errorf("filterpdu: have %d samples, want %d", len(r.Samples), r.SampleCount())
	}
	if _, err := wire.Write(Magic[:]); err != nil {
		return err
	}
	header := []any{
		r.BitDepth, r.Round0, r.Round1, r.Flags,
		r.Width, r.Height,
		r.XKernel, r.YKernel,
	}
	for _, v := range header {
		if err := binary.Write(wire, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return binary.Write(wire, binary.LittleEndian, r.Samples)
}

// Deserialize reads a request from wire. Blocks larger than maxBlock on
// either side are rejected before the samples are read.
func (r *FilterRequest) Deserialize(wire io.Reader, maxBlock int) error {
	if err := readMagic(wire); err != nil {
		return err
	}
	header := []any{
		&r.BitDepth, &r.Round0, &r.Round1, &r.Flags,
		&r.Width, &r.Height,
		&r.XKernel, &r.YKernel,
	}
	for _, v := range header {
		if err := binary.Read(wire, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if int(r.Width) > maxBlock || int(r.Height) > maxBlock {
		return fmt.Errorf("%w: %dx%d > %d", ErrTooLarge, r.Width, r.Height, maxBlock)
	}

	r.Samples = make([]uint16, r.SampleCount())
	return binary.Read(wire, binary.LittleEndian, r.Samples)
}

// Source returns the samples as a plane whose block origin is (0, 0).
func (r *FilterRequest) Source() *wiener.Plane {
	return &wiener.Plane{
		Pix:    r.Samples,
		Stride: int(r.Width) + 2*Border,
		Rect: image.Rect(-Border, -Border,
			int(r.Width)+Border, int(r.Height)+Border),
	}
}

// Params returns the engine parameters described by the request.
func (r *FilterRequest) Params() *wiener.Params {
	return &wiener.Params{
		XKernel:  r.XKernel,
		YKernel:  r.YKernel,
		XStep:    wiener.UnityStep,
		YStep:    wiener.UnityStep,
		Conv:     wiener.ConvolveParams{Round0: int(r.Round0), Round1: int(r.Round1)},
		BitDepth: int(r.BitDepth),
	}
}

// FilterResponse carries the filtered block (StatusOK) or an error message.
type FilterResponse struct {
	Status  uint8
	Width   uint16
	Height  uint16
	Samples []uint16
	Message string
}

// Serialize writes the response to wire.
func (r *FilterResponse) Serialize(wire io.Writer) error {
	if _, err := wire.Write(Magic[:]); err != nil {
		return err
	}
	for _, v := range []any{r.Status, r.Width, r.Height} {
		if err := binary.Write(wire, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	if r.Status == StatusOK {
		if len(r.Samples) != int(r.Width)*int(r.Height) {
			return fmt.Errorf("filterpdu: have %d samples, want %d", len(r.Samples), int(r.Width)*int(r.Height))
		}
		return binary.Write(wire, binary.LittleEndian, r.Samples)
	}

	msg := r.Message
	if len(msg) > 0xFFFF {
		msg = msg[:0xFFFF]
	}
	if err := binary.Write(wire, binary.LittleEndian, uint16(len(msg))); err != nil {
		return err
	}
	_, err := io.WriteString(wire, msg)
	return err
}

// Deserialize reads a response from wire.
func (r *FilterResponse) Deserialize(wire io.Reader) error {
	if err := readMagic(wire); err != nil {
		return err
	}
	for _, v := range []any{&r.Status, &r.Width, &r.Height} {
		if err := binary.Read(wire, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	switch r.Status {
	case StatusOK:
		r.Samples = make([]uint16, int(r.Width)*int(r.Height))
		return binary.Read(wire, binary.LittleEndian, r.Samples)
	case StatusBadRequest, StatusFilterError:
		var n uint16
		if err := binary.Read(wire, binary.LittleEndian, &n); err != nil {
			return err
		}
		msg := make([]byte, n)
		if _, err := io.ReadFull(wire, msg); err != nil {
			return err
		}
		r.Message = string(msg)
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrBadStatus, r.Status)
	}
}

// Err returns nil for StatusOK and an error holding Message otherwise.
func (r *FilterResponse) Err() error {
	if r.Status == StatusOK {
		return nil
	}
	return fmt.Errorf("filter failed (status %d): %s", r.Status, r.Message)
}

func readMagic(wire io.Reader) error {
	var m [4]byte
	if _, err := io.ReadFull(wire, m[:]); err != nil {
		return err
	}
	if m != Magic {
		return fmt.Errorf("%w: % x", ErrBadMagic, m[:])
	}
	return nil
}
