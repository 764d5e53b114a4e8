package fits

import (
	stdbinary "encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Column describes one field of a binary table.
type Column struct {
	Name   string
	Format byte // TFORM type code
	Repeat int
	Unit   string
	offset int
	width  int
}

// Table is a binary table read fully into memory.
type Table struct {
	hdu    *HDU
	rows   int
	rowLen int
	cols   []Column
	data   []byte
}

// ReadTable reads a BINTABLE HDU.
func (h *HDU) ReadTable() (*Table, error) {
	if !h.IsTable() {
		return nil, fmt.Errorf("%w: HDU %d is %s", ErrNotTable, h.Index, h.kind)
	}
	if len(h.axes) != 2 {
		return nil, fmt.Errorf("%w: BINTABLE HDU %d has NAXIS %d", ErrBadValue, h.Index, len(h.axes))
	}
	t := &Table{hdu: h, rowLen: h.axes[0], rows: h.axes[1]}

	nfields, err := h.Header.Int("TFIELDS")
	if err != nil {
		return nil, fmt.Errorf("HDU %d: %w", h.Index, err)
	}
	offset := 0
	for i := 1; i <= int(nfields); i++ {
		n := strconv.Itoa(i)
		form, err := h.Header.Text("TFORM" + n)
		if err != nil {
			return nil, fmt.Errorf("HDU %d: %w", h.Index, err)
		}
		col, err := parseTForm(form)
		if err != nil {
			return nil, fmt.Errorf("HDU %d column %d: %w", h.Index, i, err)
		}
		col.Name, _ = h.Header.Text("TTYPE" + n)
		col.Unit, _ = h.Header.Text("TUNIT" + n)
		col.offset = offset
		offset += col.width
		t.cols = append(t.cols, col)
	}
	if offset != t.rowLen {
		return nil, fmt.Errorf("%w: HDU %d columns span %d bytes, NAXIS1 is %d", ErrBadValue, h.Index, offset, t.rowLen)
	}

	t.data = make([]byte, h.dataSize)
	if err := h.ReadRaw(t.data); err != nil {
		return nil, err
	}
	return t, nil
}

// parseTForm decodes a TFORM value such as "1J", "8A" or "E".
func parseTForm(form string) (Column, error) {
	form = strings.TrimSpace(form)
	i := 0
	for i < len(form) && form[i] >= '0' && form[i] <= '9' {
		i++
	}
	if i == len(form) {
		return Column{}, fmt.Errorf("%w: TFORM %q", ErrBadValue, form)
	}
	repeat := 1
	if i > 0 {
		r, err := strconv.Atoi(form[:i])
		if err != nil {
			return Column{}, fmt.Errorf("%w: TFORM %q", ErrBadValue, form)
		}
		repeat = r
	}
	code := form[i]
	var size int
	switch code {
	case 'L', 'B', 'A':
		size = repeat
	case 'X':
		size = (repeat + 7) / 8
	case 'I':
		size = 2 * repeat
	case 'J', 'E':
		size = 4 * repeat
	case 'K', 'D', 'C':
		size = 8 * repeat
	case 'M':
		size = 16 * repeat
	case 'P', 'Q':
		return Column{}, fmt.Errorf("%w: variable-length column %q", ErrUnsupported, form)
	default:
		return Column{}, fmt.Errorf("%w: TFORM %q", ErrBadValue, form)
	}
	return Column{Format: code, Repeat: repeat, width: size}, nil
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int { return t.rows }

// ColumnIndex finds a column by TTYPE. An exact match wins over a
// case-insensitive one.
func (t *Table) ColumnIndex(name string) (int, error) {
	for i, c := range t.cols {
		if c.Name == name {
			return i, nil
		}
	}
	for i, c := range t.cols {
		if strings.EqualFold(c.Name, name) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q in HDU %d", ErrNoSuchColumn, name, t.hdu.Index)
}

func (t *Table) cell(row, col int) (Column, []byte, error) {
	if row < 0 || row >= t.rows {
		return Column{}, nil, fmt.Errorf("%w: row %d of %d", ErrBadValue, row, t.rows)
	}
	if col < 0 || col >= len(t.cols) {
		return Column{}, nil, fmt.Errorf("%w: column %d of %d", ErrNoSuchColumn, col, len(t.cols))
	}
	c := t.cols[col]
	start := row*t.rowLen + c.offset
	return c, t.data[start : start+c.width], nil
}

// Ints returns every element of a numeric cell as int64.
func (t *Table) Ints(row, col int) ([]int64, error) {
	c, b, err := t.cell(row, col)
	if err != nil {
		return nil, err
	}
	be := stdbinary.BigEndian
	out := make([]int64, c.Repeat)
	for i := range out {
		switch c.Format {
		case 'B':
			out[i] = int64(b[i])
		case 'I':
			out[i] = int64(int16(be.Uint16(b[i*2:])))
		case 'J':
			out[i] = int64(int32(be.Uint32(b[i*4:])))
		case 'K':
			out[i] = int64(be.Uint64(b[i*8:]))
		case 'L':
			if b[i] == 'T' {
				out[i] = 1
			}
		case 'E', 'D':
			f, _ := t.floatAt(c, b, i)
			if f != math.Trunc(f) {
				return nil, fmt.Errorf("%w: column %q row %d holds %v", ErrBadValue, c.Name, row, f)
			}
			out[i] = int64(f)
		default:
			return nil, fmt.Errorf("%w: column %q has format %c", ErrBadValue, c.Name, c.Format)
		}
	}
	return out, nil
}

// Int returns the first element of a numeric cell.
func (t *Table) Int(row, col int) (int64, error) {
	v, err := t.Ints(row, col)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: column %d is empty", ErrBadValue, col)
	}
	return v[0], nil
}

// Floats returns every element of a numeric cell as float64.
func (t *Table) Floats(row, col int) ([]float64, error) {
	c, b, err := t.cell(row, col)
	if err != nil {
		return nil, err
	}
	out := make([]float64, c.Repeat)
	for i := range out {
		f, err := t.floatAt(c, b, i)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// Float returns the first element of a numeric cell.
func (t *Table) Float(row, col int) (float64, error) {
	v, err := t.Floats(row, col)
	if err != nil {
		return 0, err
	}
	if len(v) == 0 {
		return 0, fmt.Errorf("%w: column %d is empty", ErrBadValue, col)
	}
	return v[0], nil
}

func (t *Table) floatAt(c Column, b []byte, i int) (float64, error) {
	be := stdbinary.BigEndian
	switch c.Format {
	case 'E':
		return float64(math.Float32frombits(be.Uint32(b[i*4:]))), nil
	case 'D':
		return math.Float64frombits(be.Uint64(b[i*8:])), nil
	case 'B':
		return float64(b[i]), nil
	case 'I':
		return float64(int16(be.Uint16(b[i*2:]))), nil
	case 'J':
		return float64(int32(be.Uint32(b[i*4:]))), nil
	case 'K':
		return float64(int64(be.Uint64(b[i*8:]))), nil
	}
	return 0, fmt.Errorf("%w: column %q has format %c", ErrBadValue, c.Name, c.Format)
}

// Text returns a character cell with trailing blanks and NULs removed.
func (t *Table) Text(row, col int) (string, error) {
	c, b, err := t.cell(row, col)
	if err != nil {
		return "", err
	}
	if c.Format != 'A' {
		return "", fmt.Errorf("%w: column %q has format %c, not A", ErrBadValue, c.Name, c.Format)
	}
	if i := strings.IndexByte(string(b), 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " "), nil
}

// Bool returns the first element of a logical cell.
func (t *Table) Bool(row, col int) (bool, error) {
	c, b, err := t.cell(row, col)
	if err != nil {
		return false, err
	}
	if c.Format != 'L' || c.Repeat == 0 {
		return false, fmt.Errorf("%w: column %q has format %c, not L", ErrBadValue, c.Name, c.Format)
	}
	return b[0] == 'T', nil
}
