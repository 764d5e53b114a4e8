//go:build unix

package mmap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func (m *File) mmap(size int64) error {
	data, err := unix.Mmap(int(m.f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap failed: %w", err)
	}
	m.data = data
	return nil
}

func (m *File) munmap() error {
	if m.data != nil {
		err := unix.Munmap(m.data)
		m.data = nil
		return err
	}
	return nil
}
