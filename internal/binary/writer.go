package binary

import "io"

// Writer writes byte runs to an io.WriterAt at an explicit position.
type Writer struct {
	w   io.WriterAt
	pos int64
}

// NewWriter creates a writer positioned at offset 0.
func NewWriter(w io.WriterAt) *Writer {
	return &Writer{w: w}
}

// At returns a new writer positioned at the given offset.
// The new writer shares the underlying io.WriterAt but has independent position.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, pos: offset}
}

// Pos returns the current write position.
func (w *Writer) Pos() int64 {
	return w.pos
}

// WriteBytes writes the given bytes at the current position.
func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WritePadding writes fill bytes until the position is a multiple of alignment.
// FITS headers pad with ASCII spaces, data units with zeros.
func (w *Writer) WritePadding(alignment int64, fill byte) error {
	target := AlignUp(w.pos, alignment)
	if target == w.pos {
		return nil
	}
	pad := make([]byte, target-w.pos)
	if fill != 0 {
		for i := range pad {
			pad[i] = fill
		}
	}
	return w.WriteBytes(pad)
}
