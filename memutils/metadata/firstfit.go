package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fixedheap/memutils"
)

// findFit returns the first node in list order that can hold requiredSize bytes. A node that falls
// short by no more than a header's worth of bytes also qualifies, and will be granted whole.
func (m *FirstFitBlockMetadata) findFit(requiredSize int) int {
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		size := int(m.node(current).size)
		if size >= requiredSize {
			return current
		}
		if requiredSize-size <= NodeHeaderSize {
			return current
		}
	}

	return nilOffset
}

// Alloc carves count bytes of payload out of the first free node that fits. count must be a positive
// multiple of memutils.AllocationAlignment.
func (m *FirstFitBlockMetadata) Alloc(count int) (int, int, error) {
	if count <= 0 || count%memutils.AllocationAlignment != 0 {
		return 0, 0, cerrors.Wrapf(memutils.ErrInvalidAllocationSize, "requested %d bytes", count)
	}

	memutils.DebugValidate(m)

	requiredSize := count + AllocationHeaderSize
	offset := m.findFit(requiredSize)
	if offset == nilOffset {
		return 0, 0, cerrors.Wrapf(memutils.ErrOutOfMemory, "requested %d bytes", count)
	}

	nodeSize := int(m.node(offset).size)
	remainder := nodeSize - requiredSize

	var allocatedSize, consumed int
	if remainder > 0 && !(m.foldSmallRemainders && remainder < MinimumNodeSize) {
		// Split: the tail of the node stays free, in the same list position
		tail := offset + requiredSize
		m.node(tail).size = int64(remainder)
		m.replace(offset, tail)

		allocatedSize = count
		consumed = requiredSize
	} else {
		// The whole node is granted, including any bytes the request didn't need
		m.replace(offset, nilOffset)

		allocatedSize = nodeSize + NodeHeaderSize - AllocationHeaderSize
		consumed = nodeSize
	}

	header := m.header(offset)
	header.allocatedSize = int32(allocatedSize)
	header.magic = guardMagic

	info := m.info()
	info.blocksAllocated++
	info.currSize += int32(consumed)
	if int(info.maxChunk) == nodeSize {
		info.maxChunk = int32(m.scanMaxChunk())
	}
	info.minChunk = int32(m.scanMinChunk())

	return offset + AllocationHeaderSize, allocatedSize, nil
}
