//go:build !unix

package mmap

import "io"

// Platforms without mmap read the file into memory once.
func (m *File) mmap(size int64) error {
	data := make([]byte, size)
	if _, err := io.ReadFull(m.f, data); err != nil {
		return err
	}
	m.data = data
	return nil
}

func (m *File) munmap() error {
	m.data = nil
	return nil
}
