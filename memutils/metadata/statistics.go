package metadata

import (
	"github.com/vkngwrapper/fixedheap/memutils"
)

func (m *FirstFitBlockMetadata) scanMaxChunk() int {
	maxChunk := 0
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		if size := int(m.node(current).size); size > maxChunk {
			maxChunk = size
		}
	}

	return maxChunk
}

// scanMinChunk returns the smallest non-empty node size, or 0 if every node is empty or there are none
func (m *FirstFitBlockMetadata) scanMinChunk() int {
	minChunk := 0
	for current := m.head; current != nilOffset; current = int(m.node(current).next) {
		size := int(m.node(current).size)
		if size != 0 && (minChunk == 0 || size < minChunk) {
			minChunk = size
		}
	}

	return minChunk
}

// updateFreeStatistics records a free that grew or created a node of newSize by reclaiming
// reclaimed bytes. replacedSizes are the sizes the merged nodes had before the free; the
// minimum is only rescanned if one of them may have been it.
func (m *FirstFitBlockMetadata) updateFreeStatistics(newSize int, reclaimed int, replacedSizes ...int) {
	info := m.info()

	if newSize > int(info.maxChunk) {
		info.maxChunk = int32(newSize)
	}

	rescan := info.minChunk == 0
	for _, size := range replacedSizes {
		if size == int(info.minChunk) || size == 0 {
			rescan = true
		}
	}
	if rescan {
		info.minChunk = int32(m.scanMinChunk())
	}

	info.currSize -= int32(reclaimed)
}

func (m *FirstFitBlockMetadata) Statistics() memutils.Statistics {
	info := m.info()
	return memutils.Statistics{
		BlocksAllocated: int(info.blocksAllocated),
		MaxChunk:        int(info.maxChunk),
		MinChunk:        int(info.minChunk),
		CurrSize:        int(info.currSize),
		FreeBytes:       m.region.Size() - StatisticsBlockSize - int(info.currSize),
	}
}

// SumFreeSize returns the number of free payload bytes across every node in the free list
func (m *FirstFitBlockMetadata) SumFreeSize() int {
	sum := 0
	_ = m.VisitFreeNodes(func(offset int, size int) error {
		sum += size
		return nil
	})
	return sum
}

func (m *FirstFitBlockMetadata) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.Statistics = m.Statistics()
	stats.RegionBytes += m.region.Size()

	_ = m.VisitAllRegions(func(offset int, size int, free bool) error {
		if free {
			stats.AddUnusedRange(size - NodeHeaderSize)
		} else {
			stats.AddAllocation(size - AllocationHeaderSize)
		}
		return nil
	})
}
