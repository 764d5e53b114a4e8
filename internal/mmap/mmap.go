// Package mmap exposes read-only memory-mapped files as io.ReaderAt.
package mmap

import (
	"errors"
	"io"
	"os"
)

var errClosed = errors.New("mmap: file is closed")

// File is a read-only view of a whole file. ReadAt is safe for concurrent
// use until Close is called.
type File struct {
	f    *os.File
	data []byte
}

// Open maps path into memory. Empty files are accepted and read as empty.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	m := &File{f: f}
	if info.Size() > 0 {
		if err := m.mmap(info.Size()); err != nil {
			f.Close()
			return nil, err
		}
	}
	return m, nil
}

// Len returns the mapped length.
func (m *File) Len() int64 {
	return int64(len(m.data))
}

// ReadAt implements io.ReaderAt.
func (m *File) ReadAt(p []byte, off int64) (int, error) {
	if m.f == nil {
		return 0, errClosed
	}
	if off < 0 {
		return 0, errors.New("mmap: negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Close unmaps the file and closes its descriptor.
func (m *File) Close() error {
	if m.f == nil {
		return nil
	}
	err := m.munmap()
	if closeErr := m.f.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	m.f = nil
	return err
}
