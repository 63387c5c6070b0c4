package memutils

import "math"

// Statistics is a read-only snapshot of the running heap counters kept inside a region
type Statistics struct {
	// BlocksAllocated is the number of live allocations
	BlocksAllocated int
	// MaxChunk is the size of the largest free node, or 0 if there are none
	MaxChunk int
	// MinChunk is the size of the smallest non-empty free node, or 0 if there are none
	MinChunk int
	// CurrSize is the number of bytes committed to allocations plus free list overhead
	CurrSize int
	// FreeBytes is the region size, less the statistics block and CurrSize
	FreeBytes int
}

type DetailedStatistics struct {
	Statistics
	RegionBytes        int
	AllocationBytes    int
	UnusedRangeCount   int
	AllocationSizeMin  int
	AllocationSizeMax  int
	UnusedRangeSizeMin int
	UnusedRangeSizeMax int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics = Statistics{}
	s.RegionBytes = 0
	s.AllocationBytes = 0
	s.UnusedRangeCount = 0
	s.AllocationSizeMin = math.MaxInt
	s.AllocationSizeMax = 0
	s.UnusedRangeSizeMin = math.MaxInt
	s.UnusedRangeSizeMax = 0
}

func (s *DetailedStatistics) AddUnusedRange(size int) {
	s.UnusedRangeCount++

	if size < s.UnusedRangeSizeMin {
		s.UnusedRangeSizeMin = size
	}

	if size > s.UnusedRangeSizeMax {
		s.UnusedRangeSizeMax = size
	}
}

func (s *DetailedStatistics) AddAllocation(size int) {
	s.AllocationBytes += size

	if size < s.AllocationSizeMin {
		s.AllocationSizeMin = size
	}

	if size > s.AllocationSizeMax {
		s.AllocationSizeMax = size
	}
}
