package metadata

import (
	"unsafe"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/fixedheap/memutils"
)

// BlockMetadata represents the bookkeeping for a single fixed region of memory. It manages
// allocations within the region, allowing allocations to be requested and freed, as well as
// enumerated and queried.
type BlockMetadata interface {
	// Validate performs internal consistency checks on the metadata. These checks walk the entire region
	// and are expensive. When the implementation is functioning correctly, it should not be possible
	// for this method to return an error, but this may assist in diagnosing issues with the implementation.
	Validate() error
	// Size retrieves the size in bytes of the managed region
	Size() int
	// AllocationCount returns the number of allocations currently live in the region
	AllocationCount() int
	// IsEmpty will return true if the region has no live allocations
	IsEmpty() bool

	// Alloc carves count bytes of payload out of the region. It returns the offset of the payload and
	// the number of payload bytes actually granted, which may be larger than count.
	Alloc(count int) (offset int, allocatedSize int, err error)
	// Free returns the allocation whose payload begins at offset to the free list. It returns
	// memutils.ErrInvalidFree, without modifying the region, if offset does not carry a live allocation header.
	Free(offset int) (freedSize int, err error)

	// Statistics returns a snapshot of the counters kept in the region's statistics block
	Statistics() memutils.Statistics
	// AddDetailedStatistics populates the provided memutils.DetailedStatistics object by walking
	// every region of memory
	AddDetailedStatistics(stats *memutils.DetailedStatistics)
	// FreeListSizes returns the size of every free node, in free list order
	FreeListSizes() []int

	// VisitFreeNodes calls the provided callback once for each node in the free list, in list order
	VisitFreeNodes(handleNode func(offset int, size int) error) error
	// VisitAllRegions will call the provided callback once for each allocation and free node, in
	// address order. The offset and size describe the full span, including its header.
	VisitAllRegions(handleBlock func(offset int, size int, free bool) error) error

	// BlockJsonData populates a json object with information about this region
	BlockJsonData(json *jwriter.ObjectState)
}

// heapInfo is the statistics block stored at the start of the region
type heapInfo struct {
	blocksAllocated int32
	maxChunk        int32
	minChunk        int32
	currSize        int32
}

// freeNode is the header of a span that is in the free list. size counts the bytes after the header.
type freeNode struct {
	size int64
	next int64
}

// allocationHeader precedes every payload handed out by Alloc. It occupies the same bytes a
// freeNode did before the span was allocated.
type allocationHeader struct {
	allocatedSize int32
	magic         uint32
	_             int64
}

const (
	// StatisticsBlockSize is the number of bytes at the start of the region reserved for the statistics block
	StatisticsBlockSize = int(unsafe.Sizeof(heapInfo{}))
	// NodeHeaderSize is the number of bytes of bookkeeping at the start of every free node
	NodeHeaderSize = int(unsafe.Sizeof(freeNode{}))
	// AllocationHeaderSize is the number of bytes of bookkeeping immediately before every allocation
	AllocationHeaderSize = int(unsafe.Sizeof(allocationHeader{}))
	// MinimumNodeSize is the smallest remainder that will be split into its own free node when
	// remainder folding is enabled
	MinimumNodeSize = NodeHeaderSize
	// MinimumRegionSize is the smallest region that can hold the statistics block and a free node
	// able to satisfy one allocation
	MinimumRegionSize = StatisticsBlockSize + NodeHeaderSize + memutils.AllocationAlignment

	guardMagic uint32 = 1234567

	// free list links are region offsets, and offset 0 is always the statistics block
	nilOffset = 0
)

// A span flips between being a freeNode and an allocationHeader, so the two must be the same width.
var (
	_ [NodeHeaderSize - AllocationHeaderSize]struct{}
	_ [AllocationHeaderSize - NodeHeaderSize]struct{}
)
