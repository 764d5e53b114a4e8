package fits

import (
	stdbinary "encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mwalib/internal/binary"
)

// ReadRaw copies the data unit, without padding, into buf. len(buf) must
// equal DataSize.
func (h *HDU) ReadRaw(buf []byte) error {
	if h.file.closed.Load() {
		return ErrClosed
	}
	if int64(len(buf)) != h.dataSize {
		return fmt.Errorf("%w: HDU %d has %d bytes, buffer holds %d", ErrSizeMismatch, h.Index, h.dataSize, len(buf))
	}
	if err := h.file.reader.At(h.dataOffset).ReadInto(buf); err != nil {
		return fmt.Errorf("reading HDU %d data: %w", h.Index, err)
	}
	return nil
}

// ReadFloat32 reads an image into out as float32 with BSCALE and BZERO
// applied. len(out) must equal NumElements. raw, when not nil, receives the
// undecoded data unit and must be DataSize bytes long; callers reading many
// units pass it to avoid an allocation per read.
func (h *HDU) ReadFloat32(out []float32, raw []byte) error {
	if !h.IsImage() {
		return fmt.Errorf("%w: HDU %d is %s", ErrNotImage, h.Index, h.kind)
	}
	if len(out) != h.NumElements() {
		return fmt.Errorf("%w: HDU %d has %d elements, buffer holds %d", ErrSizeMismatch, h.Index, h.NumElements(), len(out))
	}
	if raw == nil {
		raw = make([]byte, h.dataSize)
	}
	if err := h.ReadRaw(raw); err != nil {
		return err
	}
	return DecodeFloat32(raw, h.bitpix, h.bscale, h.bzero, out)
}

// DecodeFloat32 converts big-endian image samples of the given BITPIX into
// physical values (zero + scale*raw).
func DecodeFloat32(raw []byte, bitpix int, scale, zero float64, out []float32) error {
	width := abs(bitpix) / 8
	if width == 0 || len(raw) != len(out)*width {
		return fmt.Errorf("%w: %d bytes of BITPIX %d for %d values", ErrSizeMismatch, len(raw), bitpix, len(out))
	}
	be := stdbinary.BigEndian
	identity := scale == 1 && zero == 0

	switch bitpix {
	case -32:
		for i := range out {
			out[i] = math.Float32frombits(be.Uint32(raw[i*4:]))
		}
		if identity {
			return nil
		}
		for i, v := range out {
			out[i] = float32(zero + scale*float64(v))
		}
		return nil
	case -64:
		for i := range out {
			out[i] = float32(zero + scale*math.Float64frombits(be.Uint64(raw[i*8:])))
		}
	case 8:
		for i := range out {
			out[i] = float32(zero + scale*float64(raw[i]))
		}
	case 16:
		for i := range out {
			out[i] = float32(zero + scale*float64(int16(be.Uint16(raw[i*2:]))))
		}
	case 32:
		for i := range out {
			out[i] = float32(zero + scale*float64(int32(be.Uint32(raw[i*4:]))))
		}
	case 64:
		for i := range out {
			out[i] = float32(zero + scale*float64(int64(be.Uint64(raw[i*8:]))))
		}
	default:
		return fmt.Errorf("%w: BITPIX %d", ErrUnsupported, bitpix)
	}
	return nil
}

// VerifyDataSum checks the DATASUM card against the data unit. HDUs without
// a DATASUM card pass.
func (h *HDU) VerifyDataSum() error {
	c, ok := h.Header.Get("DATASUM")
	if !ok {
		return nil
	}
	var want uint64
	switch v := c.Value.(type) {
	case string:
		n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: DATASUM %q", ErrBadValue, v)
		}
		want = n
	case int64:
		want = uint64(v)
	default:
		return fmt.Errorf("%w: DATASUM is %T", ErrBadValue, c.Value)
	}

	// Block padding is zero-filled, so summing the data rounded up to a
	// whole word equals summing the padded unit.
	raw := make([]byte, binary.AlignUp(h.dataSize, 4))
	if err := h.ReadRaw(raw[:h.dataSize]); err != nil {
		return err
	}
	if got := binary.DataSum(raw); uint64(got) != want {
		return fmt.Errorf("%w: HDU %d stored %d, computed %d", ErrChecksum, h.Index, want, got)
	}
	return nil
}
