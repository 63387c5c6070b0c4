package metadata

import (
	"github.com/pkg/errors"
	"github.com/vkngwrapper/fixedheap/memutils"
	"github.com/vkngwrapper/fixedheap/memutils/region"
)

// FirstFitBlockMetadata is a BlockMetadata implementation that keeps an intrusive, singly-linked
// free list threaded through the unused memory of a region, places allocations with a first-fit
// search, and coalesces freed spans with their physical neighbors.
//
// The region's first StatisticsBlockSize bytes hold the running heap statistics. Nothing about
// the allocator lives outside the region except the offset of the free list head.
//
// FirstFitBlockMetadata is not safe for concurrent use.
type FirstFitBlockMetadata struct {
	region *region.Region
	head   int

	foldSmallRemainders bool
}

var _ BlockMetadata = &FirstFitBlockMetadata{}

// NewFirstFitBlockMetadata lays out an empty heap in r: the statistics block followed by a single
// free node spanning the rest of the region. Any previous contents of r are ignored.
//
// When foldSmallRemainders is true, a split that would leave a free node smaller than MinimumNodeSize
// grants the whole node to the allocation instead.
func NewFirstFitBlockMetadata(r *region.Region, foldSmallRemainders bool) (*FirstFitBlockMetadata, error) {
	if r.Size() < MinimumRegionSize {
		return nil, errors.Errorf("region of %d bytes is smaller than the minimum of %d bytes", r.Size(), MinimumRegionSize)
	}
	if err := memutils.CheckAligned(r.Size(), memutils.AllocationAlignment, "region size"); err != nil {
		return nil, err
	}

	m := &FirstFitBlockMetadata{
		region:              r,
		foldSmallRemainders: foldSmallRemainders,
	}
	m.Init()
	return m, nil
}

// Init discards every allocation and resets the region to a single free node. The heap's bytes are
// zeroed so that no allocation header from before the reset still carries the guard.
func (m *FirstFitBlockMetadata) Init() {
	heapSize := m.region.Size() - StatisticsBlockSize
	clear(m.region.Slice(StatisticsBlockSize, heapSize, heapSize))

	m.head = StatisticsBlockSize
	head := m.node(m.head)
	head.size = int64(m.region.Size() - NodeHeaderSize - StatisticsBlockSize)
	head.next = nilOffset

	info := m.info()
	info.maxChunk = int32(head.size)
	info.minChunk = int32(head.size)
	info.currSize = int32(NodeHeaderSize)
	info.blocksAllocated = 0
}

// Size returns the size in bytes of the managed region
func (m *FirstFitBlockMetadata) Size() int { return m.region.Size() }

func (m *FirstFitBlockMetadata) AllocationCount() int {
	return int(m.info().blocksAllocated)
}

func (m *FirstFitBlockMetadata) IsEmpty() bool {
	return m.AllocationCount() == 0
}

func (m *FirstFitBlockMetadata) info() *heapInfo {
	return (*heapInfo)(m.region.Pointer(0, StatisticsBlockSize))
}

func (m *FirstFitBlockMetadata) node(offset int) *freeNode {
	return (*freeNode)(m.region.Pointer(offset, NodeHeaderSize))
}

func (m *FirstFitBlockMetadata) header(offset int) *allocationHeader {
	return (*allocationHeader)(m.region.Pointer(offset, AllocationHeaderSize))
}

// nodeEnd is the offset of the first byte after the node's payload
func (m *FirstFitBlockMetadata) nodeEnd(offset int) int {
	return offset + int(m.node(offset).size) + NodeHeaderSize
}

func (m *FirstFitBlockMetadata) findPrevious(offset int) int {
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		if int(m.node(current).next) == offset {
			return current
		}
	}

	return nilOffset
}

// replace puts replacement in the list position held by offset. A nilOffset replacement unlinks offset.
func (m *FirstFitBlockMetadata) replace(offset, replacement int) {
	next := m.node(offset).next
	if replacement != nilOffset {
		m.node(replacement).next = next
	} else {
		replacement = int(next)
	}

	prev := m.findPrevious(offset)
	if prev != nilOffset {
		m.node(prev).next = int64(replacement)
	} else {
		m.head = replacement
	}
}

func (m *FirstFitBlockMetadata) pushFront(offset int) {
	m.node(offset).next = int64(m.head)
	m.head = offset
}

func (m *FirstFitBlockMetadata) VisitFreeNodes(handleNode func(offset int, size int) error) error {
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		err := handleNode(current, int(m.node(current).size))
		if err != nil {
			return err
		}
	}

	return nil
}

func (m *FirstFitBlockMetadata) FreeListSizes() []int {
	var sizes []int
	_ = m.VisitFreeNodes(func(offset int, size int) error {
		sizes = append(sizes, size)
		return nil
	})
	return sizes
}
