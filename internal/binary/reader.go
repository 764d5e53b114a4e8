// Package binary provides positional block I/O and the DATASUM checksum
// for FITS files.
package binary

import (
	"errors"
	"io"
)

// BlockSize is the FITS logical record length. Every header and data unit
// starts on a multiple of it.
const BlockSize = 2880

// ErrShortRead is returned when fewer bytes than requested are available.
var ErrShortRead = errors.New("short read")

// Reader reads byte runs from an io.ReaderAt at an explicit position. A
// Reader is not safe for concurrent use, but readers created with At share
// the underlying source and may be used from separate goroutines.
type Reader struct {
	r   io.ReaderAt
	pos int64
}

// NewReader creates a reader positioned at offset 0.
func NewReader(r io.ReaderAt) *Reader {
	return &Reader{r: r}
}

// At returns a new reader positioned at the given offset.
// The new reader shares the underlying io.ReaderAt but has independent position.
func (r *Reader) At(offset int64) *Reader {
	return &Reader{r: r.r, pos: offset}
}

// Pos returns the current read position.
func (r *Reader) Pos() int64 {
	return r.pos
}

// ReadBytes reads exactly n bytes from the current position.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if err := r.ReadInto(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadInto fills buf from the current position and advances past it.
func (r *Reader) ReadInto(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	n, err := r.r.ReadAt(buf, r.pos)
	if n == len(buf) {
		// io.ReaderAt may report io.EOF together with a full read.
		r.pos += int64(n)
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrShortRead
	}
	return err
}

// AlignUp rounds n up to the next multiple of alignment.
func AlignUp(n, alignment int64) int64 {
	if alignment <= 1 {
		return n
	}
	if remainder := n % alignment; remainder != 0 {
		return n + alignment - remainder
	}
	return n
}
