package fits

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/robert-malhotra/go-mwalib/internal/binary"
)

// File is an open FITS file. Header units are parsed eagerly; data units
// are read on demand.
type File struct {
	name   string
	reader *binary.Reader
	size   int64
	closer io.Closer
	hdus   []*HDU
	closed atomic.Bool
}

// Open opens a FITS file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	file, err := NewFile(path, f, info.Size(), f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

// NewFile parses the FITS structure held by r. closer, if non-nil, is
// closed by Close; it is not closed when NewFile fails.
func NewFile(name string, r io.ReaderAt, size int64, closer io.Closer) (*File, error) {
	f := &File{
		name:   name,
		reader: binary.NewReader(r),
		size:   size,
		closer: closer,
	}
	if err := f.scan(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, nil
}

// scan walks the headers of every HDU.
func (f *File) scan() error {
	if f.size < binary.BlockSize {
		return fmt.Errorf("%w: %d bytes is shorter than one block", ErrNotFITS, f.size)
	}

	var off int64
	for off+binary.BlockSize <= f.size {
		r := f.reader.At(off)
		hdr, err := readHeader(r)
		if err != nil {
			if len(f.hdus) == 0 {
				return fmt.Errorf("%w: %v", ErrNotFITS, err)
			}
			if errors.Is(err, binary.ErrShortRead) {
				return fmt.Errorf("%w: header of HDU %d", ErrTruncated, len(f.hdus))
			}
			return fmt.Errorf("HDU %d: %w", len(f.hdus), err)
		}

		hdu, err := newHDU(f, len(f.hdus), hdr, r.Pos())
		if err != nil {
			return err
		}
		if end := hdu.dataOffset + hdu.dataSize; end > f.size {
			return fmt.Errorf("%w: HDU %d needs %d bytes, file has %d", ErrTruncated, hdu.Index, end, f.size)
		}
		f.hdus = append(f.hdus, hdu)
		off = hdu.dataOffset + binary.AlignUp(hdu.dataSize, binary.BlockSize)
	}
	return nil
}

// Name returns the name the file was opened with.
func (f *File) Name() string {
	return f.name
}

// Size returns the total size in bytes.
func (f *File) Size() int64 {
	return f.size
}

// NumHDUs returns the number of header and data units.
func (f *File) NumHDUs() int {
	return len(f.hdus)
}

// HDU returns the i-th unit; 0 is the primary HDU.
func (f *File) HDU(i int) (*HDU, error) {
	if i < 0 || i >= len(f.hdus) {
		return nil, fmt.Errorf("%w: %d (file has %d)", ErrNoSuchHDU, i, len(f.hdus))
	}
	return f.hdus[i], nil
}

// Primary returns the primary HDU.
func (f *File) Primary() *HDU {
	return f.hdus[0]
}

// Close releases the underlying source. It is safe to call more than once.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	if f.closer != nil {
		return f.closer.Close()
	}
	return nil
}
