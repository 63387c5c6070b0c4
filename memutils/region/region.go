// Package region owns the single block of memory an allocator manages. It obtains the memory from a
// Source, and exposes it through a Region, which is the only place in this module that turns byte
// offsets into pointers.
package region

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks github.com/vkngwrapper/fixedheap/memutils/region Source

import (
	"unsafe"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
)

// Source obtains and releases the backing memory for a Region. MmapSource is used unless
// a consumer provides something else.
type Source interface {
	// Map returns a read/write byte slice of exactly size bytes whose first byte is aligned to
	// at least 8 bytes.
	Map(size int) ([]byte, error)
	// Unmap releases memory previously returned by Map
	Unmap(data []byte) error
}

// Region is a view over a fixed-size block of memory. All offsets are measured in bytes from the
// start of the block.
type Region struct {
	source Source
	data   []byte
}

// Open requests size bytes from source and wraps them in a Region
func Open(source Source, size int) (*Region, error) {
	if size <= 0 {
		return nil, errors.Errorf("region size must be positive, but was %d", size)
	}

	data, err := source.Map(size)
	if err != nil {
		return nil, err
	}
	if len(data) != size {
		err = errors.Errorf("memory source returned %d bytes, but %d were requested", len(data), size)
		return nil, cerrors.WithSecondaryError(err, source.Unmap(data))
	}
	if uintptr(unsafe.Pointer(unsafe.SliceData(data)))%8 != 0 {
		err = errors.New("memory source returned memory that is not aligned to 8 bytes")
		return nil, cerrors.WithSecondaryError(err, source.Unmap(data))
	}

	return &Region{source: source, data: data}, nil
}

// Close releases the memory back to its source. The region may not be used afterward.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}

	data := r.data
	r.data = nil
	return r.source.Unmap(data)
}

// Size returns the size of the region in bytes, or 0 once it has been closed
func (r *Region) Size() int { return len(r.data) }

// Contains returns true if [offset, offset+length) lies within the region
func (r *Region) Contains(offset, length int) bool {
	return offset >= 0 && length >= 0 && offset <= len(r.data) && length <= len(r.data)-offset
}

// Pointer returns a pointer to the byte at offset. It panics if length bytes starting at offset do
// not fit within the region.
func (r *Region) Pointer(offset, length int) unsafe.Pointer {
	if !r.Contains(offset, length) || length == 0 {
		panic(errors.Errorf("region access of %d bytes at offset %d is outside of a %d byte region", length, offset, len(r.data)))
	}

	return unsafe.Pointer(&r.data[offset])
}

// Slice returns a slice of the region's memory with the provided length and capacity, starting at offset
func (r *Region) Slice(offset, length, capacity int) []byte {
	if length > capacity || !r.Contains(offset, capacity) {
		panic(errors.Errorf("region slice [%d:%d:%d] is outside of a %d byte region", offset, offset+length, offset+capacity, len(r.data)))
	}

	return r.data[offset : offset+length : offset+capacity]
}

// OffsetOf returns the offset of the first byte of data within the region. It returns false if data
// is empty or does not begin inside the region.
func (r *Region) OffsetOf(data []byte) (int, bool) {
	if len(data) == 0 && cap(data) == 0 || len(r.data) == 0 {
		return 0, false
	}

	base := uintptr(unsafe.Pointer(unsafe.SliceData(r.data)))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(data)))
	if addr < base || addr >= base+uintptr(len(r.data)) {
		return 0, false
	}

	return int(addr - base), true
}
