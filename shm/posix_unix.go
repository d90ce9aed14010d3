//go:build unix

package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// posixOpener implements segmentOpener via shm_open + ftruncate + mmap
// (spec.md §6 "Shared memory: POSIX shm_open + mmap, segment names
// {prefix}_{segment_index}").
type posixOpener struct{}

func (posixOpener) Open(key string, size uint64) (*mapping, error) {
	name := "/" + key
	fd, err := unix.ShmOpen(name, unix.O_CREAT|unix.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("shm_open %s: %w", name, err)
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ftruncate %s: %w", name, err)
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("mmap %s: %w", name, err)
	}
	return &mapping{fd: fd, data: data}, nil
}

func (posixOpener) Close(m *mapping) error {
	if err := unix.Munmap(m.data); err != nil {
		return err
	}
	return unix.Close(m.fd)
}
