//go:build unix

package region

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// MmapSource maps anonymous, private, read/write memory from the operating system
type MmapSource struct{}

var _ Source = MmapSource{}

func (MmapSource) Map(size int) ([]byte, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap of %d bytes failed", size)
	}

	return data, nil
}

func (MmapSource) Unmap(data []byte) error {
	return errors.Wrap(unix.Munmap(data), "munmap failed")
}
