//go:build !unix

package region

import "unsafe"

// MmapSource hands out Go-managed memory on platforms without anonymous mmap support
type MmapSource struct{}

var _ Source = MmapSource{}

func (MmapSource) Map(size int) ([]byte, error) {
	words := make([]uint64, (size+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(words))), size), nil
}

func (MmapSource) Unmap(data []byte) error {
	return nil
}
