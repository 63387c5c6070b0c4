package metadata

import (
	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fixedheap/memutils"
)

// liveHeader returns the offset of the allocation header for the payload at offset, if that header
// carries the guard value and describes a span that fits in the region
func (m *FirstFitBlockMetadata) liveHeader(offset int) (int, bool) {
	headerOffset := offset - AllocationHeaderSize
	if headerOffset < StatisticsBlockSize || offset%memutils.AllocationAlignment != 0 ||
		!m.region.Contains(headerOffset, AllocationHeaderSize) {
		return 0, false
	}

	header := m.header(headerOffset)
	if header.magic != guardMagic {
		return 0, false
	}

	size := int(header.allocatedSize)
	if size <= 0 || !m.region.Contains(offset, size) {
		return 0, false
	}

	return headerOffset, true
}

// coalesceBelow grows the free node that ends where the freed span begins, if there is one
func (m *FirstFitBlockMetadata) coalesceBelow(headerOffset, freedSize int) int {
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		if m.nodeEnd(current) == headerOffset {
			m.node(current).size += int64(freedSize + AllocationHeaderSize)
			return current
		}
	}

	return nilOffset
}

func (m *FirstFitBlockMetadata) findNodeAt(offset int) int {
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		if current == offset {
			return current
		}
	}

	return nilOffset
}

// Free returns the allocation whose payload begins at offset to the free list, merging it with the
// free nodes physically below and above it. Offsets that do not carry a live allocation header are
// rejected with memutils.ErrInvalidFree and the region is left untouched.
func (m *FirstFitBlockMetadata) Free(offset int) (int, error) {
	headerOffset, ok := m.liveHeader(offset)
	if !ok {
		return 0, cerrors.Wrapf(memutils.ErrInvalidFree, "offset %d", offset)
	}

	memutils.DebugValidate(m)

	freedSize := int(m.header(headerOffset).allocatedSize)
	m.header(headerOffset).magic = 0
	memutils.DebugPoison(m.region.Slice(offset, freedSize, freedSize))

	info := m.info()
	below := m.coalesceBelow(headerOffset, freedSize)
	above := m.findNodeAt(offset + freedSize)

	switch {
	case below != nilOffset && above != nilOffset:
		belowNode := m.node(below)
		oldBelowSize := int(belowNode.size) - freedSize - AllocationHeaderSize
		aboveSize := int(m.node(above).size)

		belowNode.size += int64(aboveSize + NodeHeaderSize)
		m.replace(above, nilOffset)

		m.updateFreeStatistics(int(belowNode.size), freedSize+AllocationHeaderSize+NodeHeaderSize, oldBelowSize, aboveSize)
	case below != nilOffset:
		belowNode := m.node(below)
		oldBelowSize := int(belowNode.size) - freedSize - AllocationHeaderSize

		m.updateFreeStatistics(int(belowNode.size), freedSize+AllocationHeaderSize, oldBelowSize)
	case above != nilOffset:
		aboveSize := int(m.node(above).size)
		newSize := freedSize + AllocationHeaderSize + aboveSize

		m.node(headerOffset).size = int64(newSize)
		m.replace(above, headerOffset)

		m.updateFreeStatistics(newSize, freedSize+AllocationHeaderSize, aboveSize)
	default:
		newSize := AllocationHeaderSize + freedSize - NodeHeaderSize

		m.node(headerOffset).size = int64(newSize)
		m.pushFront(headerOffset)

		if newSize > int(info.maxChunk) {
			info.maxChunk = int32(newSize)
		}
		if newSize != 0 && newSize < int(info.minChunk) {
			info.minChunk = int32(newSize)
		}
		if info.minChunk == 0 {
			info.minChunk = int32(m.scanMinChunk())
		}
		info.currSize -= int32(newSize)
	}

	info.blocksAllocated--

	return freedSize, nil
}
