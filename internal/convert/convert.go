// Package convert reorders one coarse channel's visibilities from the
// on-disk layout of each correlator generation into the canonical orders.
//
// Every block holds Baselines x FineChans x Pols complex samples stored as
// interleaved (real, imaginary) float32 pairs. Canonical baselines enumerate
// antenna pairs (a1 <= a2) in ascending order.
package convert

import (
	"errors"
	"fmt"
)

// Pols is the number of polarisation products per baseline: XX, XY, YX, YY.
const Pols = 4

// ErrLength is returned when a buffer does not hold exactly one block.
var ErrLength = errors.New("buffer length does not match block dimensions")

// Order is a canonical in-memory layout.
type Order int

const (
	// BaselineMajor is [baseline][fine channel][pol][re, im].
	BaselineMajor Order = iota
	// FrequencyMajor is [fine channel][baseline][pol][re, im].
	FrequencyMajor
)

func (o Order) String() string {
	switch o {
	case BaselineMajor:
		return "baseline"
	case FrequencyMajor:
		return "frequency"
	default:
		return fmt.Sprintf("Order(%d)", int(o))
	}
}

// Dims are the dimensions of one coarse channel block.
type Dims struct {
	Baselines int
	FineChans int
}

// Len returns the number of float32 values in a block.
func (d Dims) Len() int {
	return d.Baselines * d.FineChans * Pols * 2
}

func (d Dims) check(bufs ...[]float32) error {
	for _, b := range bufs {
		if len(b) != d.Len() {
			return fmt.Errorf("%w: have %d values, want %d", ErrLength, len(b), d.Len())
		}
	}
	return nil
}

// offset returns the index of the first value of (baseline, fine) in order.
func (d Dims) offset(o Order, baseline, fine int) int {
	if o == FrequencyMajor {
		return (fine*d.Baselines + baseline) * Pols * 2
	}
	return (baseline*d.FineChans + fine) * Pols * 2
}

// Reorder copies src in order from into dst in order to. src and dst must
// not overlap.
func Reorder(src []float32, from Order, dst []float32, to Order, d Dims) error {
	if err := d.check(src, dst); err != nil {
		return err
	}
	if from == to {
		copy(dst, src)
		return nil
	}
	const n = Pols * 2
	for b := 0; b < d.Baselines; b++ {
		for f := 0; f < d.FineChans; f++ {
			s := d.offset(from, b, f)
			t := d.offset(to, b, f)
			copy(dst[t:t+n], src[s:s+n])
		}
	}
	return nil
}

// FromMWAX converts an MWAX block, stored baseline-major, into order.
func FromMWAX(src, dst []float32, order Order, d Dims) error {
	return Reorder(src, BaselineMajor, dst, order, d)
}

// ToMWAX lays a baseline-major block out as the MWAX correlator does.
func ToMWAX(src, dst []float32, d Dims) error {
	return Reorder(src, BaselineMajor, dst, BaselineMajor, d)
}
