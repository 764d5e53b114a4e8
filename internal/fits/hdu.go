package fits

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the type of an HDU.
type Kind int

const (
	KindPrimary Kind = iota
	KindImage
	KindBinaryTable
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindPrimary:
		return "primary"
	case KindImage:
		return "image"
	case KindBinaryTable:
		return "bintable"
	default:
		return "other"
	}
}

// HDU is one header and data unit.
type HDU struct {
	Index  int
	Header *Header

	file       *File
	kind       Kind
	bitpix     int
	axes       []int
	dataOffset int64
	dataSize   int64
	bscale     float64
	bzero      float64
}

func newHDU(f *File, index int, hdr *Header, dataOffset int64) (*HDU, error) {
	h := &HDU{
		Index:      index,
		Header:     hdr,
		file:       f,
		dataOffset: dataOffset,
	}

	if index == 0 {
		simple, err := hdr.Bool("SIMPLE")
		if err != nil || !simple {
			return nil, fmt.Errorf("%w: primary header does not start with SIMPLE = T", ErrNotFITS)
		}
		h.kind = KindPrimary
	} else {
		xt, err := hdr.Text("XTENSION")
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", index, err)
		}
		switch strings.TrimSpace(xt) {
		case "IMAGE":
			h.kind = KindImage
		case "BINTABLE":
			h.kind = KindBinaryTable
		default:
			h.kind = KindOther
		}
	}

	bitpix, err := hdr.Int("BITPIX")
	if err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	switch bitpix {
	case 8, 16, 32, 64, -32, -64:
	default:
		return nil, fmt.Errorf("%w: HDU %d has BITPIX %d", ErrBadValue, index, bitpix)
	}
	h.bitpix = int(bitpix)

	naxis, err := hdr.Int("NAXIS")
	if err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	if naxis < 0 || naxis > 999 {
		return nil, fmt.Errorf("%w: HDU %d has NAXIS %d", ErrBadValue, index, naxis)
	}
	h.axes = make([]int, naxis)
	for i := range h.axes {
		n, err := hdr.Int("NAXIS" + strconv.Itoa(i+1))
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", index, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: HDU %d has NAXIS%d = %d", ErrBadValue, index, i+1, n)
		}
		h.axes[i] = int(n)
	}

	pcount, err := hdr.intOr("PCOUNT", 0)
	if err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	gcount, err := hdr.intOr("GCOUNT", 1)
	if err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	if naxis > 0 {
		elems := int64(1)
		for _, n := range h.axes {
			elems *= int64(n)
		}
		h.dataSize = int64(abs(h.bitpix)/8) * gcount * (pcount + elems)
	}

	if h.bscale, err = hdr.floatOr("BSCALE", 1); err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	if h.bzero, err = hdr.floatOr("BZERO", 0); err != nil {
		return nil, fmt.Errorf("HDU %d: %w", index, err)
	}
	return h, nil
}

// Kind returns the HDU type.
func (h *HDU) Kind() Kind { return h.kind }

// IsImage reports whether the HDU holds an image array (primary or IMAGE
// extension).
func (h *HDU) IsImage() bool {
	return h.kind == KindPrimary || h.kind == KindImage
}

// IsTable reports whether the HDU is a binary table.
func (h *HDU) IsTable() bool { return h.kind == KindBinaryTable }

// Bitpix returns the BITPIX value.
func (h *HDU) Bitpix() int { return h.bitpix }

// Shape returns NAXIS1..NAXISn. NAXIS1 varies fastest on disk.
func (h *HDU) Shape() []int {
	out := make([]int, len(h.axes))
	copy(out, h.axes)
	return out
}

// DataSize returns the data unit size in bytes, excluding block padding.
func (h *HDU) DataSize() int64 { return h.dataSize }

// NumElements returns the product of the axis lengths, or 0 when there is
// no data array.
func (h *HDU) NumElements() int {
	if len(h.axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range h.axes {
		n *= a
	}
	return n
}

// Name returns EXTNAME, or "" when the HDU has none.
func (h *HDU) Name() string {
	s, err := h.Header.Text("EXTNAME")
	if err != nil {
		return ""
	}
	return s
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
