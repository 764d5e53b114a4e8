package fits

import (
	stdbinary "encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/robert-malhotra/go-mwalib/internal/binary"
)

// reserved keys are written by the Writer itself and dropped from caller
// headers.
func reserved(key string) bool {
	switch key {
	case "SIMPLE", "XTENSION", "BITPIX", "NAXIS", "PCOUNT", "GCOUNT",
		"EXTEND", "TFIELDS", "DATASUM", "CHECKSUM", "END":
		return true
	}
	for _, p := range []string{"NAXIS", "TTYPE", "TFORM", "TUNIT"} {
		if strings.HasPrefix(key, p) {
			if _, err := strconv.Atoi(key[len(p):]); err == nil {
				return true
			}
		}
	}
	return false
}

// Writer appends HDUs to a new FITS file. The first unit written becomes
// the primary HDU.
type Writer struct {
	path   string
	file   *os.File
	w      *binary.Writer
	count  int
	closed bool
}

// Create creates a FITS file at path, truncating any existing file.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &Writer{
		path: path,
		file: f,
		w:    binary.NewWriter(f),
	}, nil
}

// WritePrimary writes a primary HDU without a data array. It must be the
// first unit written.
func (w *Writer) WritePrimary(h *Header) error {
	if w.count != 0 {
		return fmt.Errorf("%w: primary HDU must be written first", ErrUnsupported)
	}
	return w.writeUnit(w.structural(8, nil, h, nil), nil)
}

// WriteImage writes a BITPIX -32 image. axes lists NAXIS1 first.
func (w *Writer) WriteImage(h *Header, axes []int, data []float32) error {
	if err := checkShape(axes, len(data)); err != nil {
		return err
	}
	raw := make([]byte, len(data)*4)
	for i, v := range data {
		stdbinary.BigEndian.PutUint32(raw[i*4:], math.Float32bits(v))
	}
	return w.writeUnit(w.structural(-32, axes, h, nil), raw)
}

// WriteImageInt32 writes a BITPIX 32 image.
func (w *Writer) WriteImageInt32(h *Header, axes []int, data []int32) error {
	if err := checkShape(axes, len(data)); err != nil {
		return err
	}
	raw := make([]byte, len(data)*4)
	for i, v := range data {
		stdbinary.BigEndian.PutUint32(raw[i*4:], uint32(v))
	}
	return w.writeUnit(w.structural(32, axes, h, nil), raw)
}

func checkShape(axes []int, n int) error {
	want := 1
	for _, a := range axes {
		want *= a
	}
	if len(axes) == 0 || want != n {
		return fmt.Errorf("%w: axes %v hold %d values, got %d", ErrSizeMismatch, axes, want, n)
	}
	return nil
}

// TableColumn is one column handed to WriteTable. Values must be a slice
// with one element per row: []string (format nA), []bool (L), []uint8 (B),
// []int16 (I), []int32 (J), []int64 (K), []float32 (E) or []float64 (D).
type TableColumn struct {
	Name   string
	Format string
	Unit   string
	Values any
}

// WriteTable writes a BINTABLE extension with scalar or character columns.
func (w *Writer) WriteTable(h *Header, cols []TableColumn) error {
	if w.count == 0 {
		return fmt.Errorf("%w: a table cannot be the primary HDU", ErrUnsupported)
	}
	parsed := make([]Column, len(cols))
	rows := -1
	rowLen := 0
	for i, tc := range cols {
		c, err := parseTForm(tc.Format)
		if err != nil {
			return fmt.Errorf("column %q: %w", tc.Name, err)
		}
		if c.Format != 'A' && c.Repeat != 1 {
			return fmt.Errorf("%w: column %q has repeat %d", ErrUnsupported, tc.Name, c.Repeat)
		}
		n, err := columnLen(tc.Values)
		if err != nil {
			return fmt.Errorf("column %q: %w", tc.Name, err)
		}
		if rows >= 0 && n != rows {
			return fmt.Errorf("%w: column %q has %d rows, expected %d", ErrSizeMismatch, tc.Name, n, rows)
		}
		rows = n
		c.Name, c.Unit, c.offset = tc.Name, tc.Unit, rowLen
		rowLen += c.width
		parsed[i] = c
	}
	if rows < 0 {
		rows = 0
	}

	raw := make([]byte, rowLen*rows)
	be := stdbinary.BigEndian
	for i, tc := range cols {
		c := parsed[i]
		for r := 0; r < rows; r++ {
			cell := raw[r*rowLen+c.offset : r*rowLen+c.offset+c.width]
			var ok bool
			switch v := tc.Values.(type) {
			case []string:
				if ok = c.Format == 'A'; ok {
					n := copy(cell, v[r])
					for j := n; j < len(cell); j++ {
						cell[j] = ' '
					}
				}
			case []bool:
				if ok = c.Format == 'L'; ok {
					cell[0] = 'F'
					if v[r] {
						cell[0] = 'T'
					}
				}
			case []uint8:
				if ok = c.Format == 'B'; ok {
					cell[0] = v[r]
				}
			case []int16:
				if ok = c.Format == 'I'; ok {
					be.PutUint16(cell, uint16(v[r]))
				}
			case []int32:
				if ok = c.Format == 'J'; ok {
					be.PutUint32(cell, uint32(v[r]))
				}
			case []int64:
				if ok = c.Format == 'K'; ok {
					be.PutUint64(cell, uint64(v[r]))
				}
			case []float32:
				if ok = c.Format == 'E'; ok {
					be.PutUint32(cell, math.Float32bits(v[r]))
				}
			case []float64:
				if ok = c.Format == 'D'; ok {
					be.PutUint64(cell, math.Float64bits(v[r]))
				}
			}
			if !ok {
				return fmt.Errorf("%w: column %q values %T do not match format %q", ErrBadValue, tc.Name, tc.Values, tc.Format)
			}
		}
	}

	return w.writeUnit(w.structural(8, []int{rowLen, rows}, h, parsed), raw)
}

func columnLen(values any) (int, error) {
	switch v := values.(type) {
	case []string:
		return len(v), nil
	case []bool:
		return len(v), nil
	case []uint8:
		return len(v), nil
	case []int16:
		return len(v), nil
	case []int32:
		return len(v), nil
	case []int64:
		return len(v), nil
	case []float32:
		return len(v), nil
	case []float64:
		return len(v), nil
	}
	return 0, fmt.Errorf("%w: unsupported column values %T", ErrBadValue, values)
}

// structural builds the header for the next unit: mandatory keywords in the
// required order followed by the caller's cards.
func (w *Writer) structural(bitpix int, axes []int, user *Header, cols []Column) *Header {
	h := NewHeader()
	if w.count == 0 {
		h.Set("SIMPLE", true, "conforms to FITS standard")
	} else if cols != nil {
		h.Set("XTENSION", "BINTABLE", "binary table extension")
	} else {
		h.Set("XTENSION", "IMAGE", "image extension")
	}
	h.Set("BITPIX", bitpix, "")
	h.Set("NAXIS", len(axes), "")
	for i, n := range axes {
		h.Set("NAXIS"+strconv.Itoa(i+1), n, "")
	}
	if w.count == 0 {
		h.Set("EXTEND", true, "")
	} else {
		h.Set("PCOUNT", 0, "")
		h.Set("GCOUNT", 1, "")
	}
	if cols != nil {
		h.Set("TFIELDS", len(cols), "")
		for i, c := range cols {
			n := strconv.Itoa(i + 1)
			h.Set("TTYPE"+n, c.Name, "")
			h.Set("TFORM"+n, strconv.Itoa(c.Repeat)+string(c.Format), "")
			if c.Unit != "" {
				h.Set("TUNIT"+n, c.Unit, "")
			}
		}
	}
	if user != nil {
		for _, c := range user.cards {
			if reserved(c.Key) {
				continue
			}
			h.add(c)
		}
	}
	return h
}

// writeUnit writes a header and its data, each padded to a whole block.
// Header blocks are padded with spaces and data blocks with zeros.
func (w *Writer) writeUnit(h *Header, data []byte) error {
	if w.closed {
		return ErrClosed
	}
	sum := binary.DataSum(append(data, make([]byte, binary.AlignUp(int64(len(data)), 4)-int64(len(data)))...))
	h.Set("DATASUM", strconv.FormatUint(uint64(sum), 10), "data unit checksum")

	hdr, err := h.encode()
	if err != nil {
		return fmt.Errorf("encoding HDU %d header: %w", w.count, err)
	}
	if err := w.w.WriteBytes(hdr); err != nil {
		return err
	}
	if len(data) > 0 {
		if err := w.w.WriteBytes(data); err != nil {
			return err
		}
		if err := w.w.WritePadding(binary.BlockSize, 0); err != nil {
			return err
		}
	}
	w.count++
	return nil
}

// Close flushes and closes the file. It is safe to call more than once.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}
