package metadata_test

import (
	"math"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/fixedheap/memutils"
	"github.com/vkngwrapper/fixedheap/memutils/metadata"
	"github.com/vkngwrapper/fixedheap/memutils/region"
)

func readyMetadata(t *testing.T, size int, foldSmallRemainders bool) *metadata.FirstFitBlockMetadata {
	r, err := region.Open(region.MmapSource{}, size)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, r.Close())
	})

	md, err := metadata.NewFirstFitBlockMetadata(r, foldSmallRemainders)
	require.NoError(t, err)
	return md
}

func requireConsistent(t *testing.T, md *metadata.FirstFitBlockMetadata) {
	require.NoError(t, md.Validate())

	stats := md.Statistics()
	require.Equal(t, md.Size(), stats.CurrSize+stats.FreeBytes+metadata.StatisticsBlockSize)
	require.Equal(t, stats.FreeBytes, md.SumFreeSize())
}

func TestHeaderSizes(t *testing.T) {
	require.Equal(t, 16, metadata.NodeHeaderSize)
	require.Equal(t, metadata.NodeHeaderSize, metadata.AllocationHeaderSize)
	require.Equal(t, 16, metadata.StatisticsBlockSize)
}

func TestFirstFitInit(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	require.Equal(t, []int{4064}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 0,
		MaxChunk:        4064,
		MinChunk:        4064,
		CurrSize:        16,
		FreeBytes:       4064,
	}, md.Statistics())
	require.True(t, md.IsEmpty())
	requireConsistent(t, md)
}

func TestFirstFitRegionTooSmall(t *testing.T) {
	r, err := region.Open(region.MmapSource{}, 32)
	require.NoError(t, err)
	defer r.Close()

	_, err = metadata.NewFirstFitBlockMetadata(r, false)
	require.Error(t, err)
}

func TestFirstFitRegionMisaligned(t *testing.T) {
	r, err := region.Open(region.MmapSource{}, 4092)
	require.NoError(t, err)
	defer r.Close()

	_, err = metadata.NewFirstFitBlockMetadata(r, false)
	require.ErrorIs(t, err, memutils.ErrMisaligned)
}

func TestFirstFitInvalidSizes(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	for _, count := range []int{0, -8, 1, 7, 12, 4095} {
		_, _, err := md.Alloc(count)
		require.ErrorIs(t, err, memutils.ErrInvalidAllocationSize, "count %d", count)
	}

	require.Equal(t, []int{4064}, md.FreeListSizes())
	require.Equal(t, 0, md.AllocationCount())
	requireConsistent(t, md)
}

func TestFirstFitUndersizedSplit(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	offset, allocatedSize, err := md.Alloc(4040)
	require.NoError(t, err)
	require.Equal(t, 32, offset)
	require.Equal(t, 4040, allocatedSize)

	require.Equal(t, []int{8}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		MaxChunk:        8,
		MinChunk:        8,
		CurrSize:        4072,
		FreeBytes:       8,
	}, md.Statistics())
	requireConsistent(t, md)

	// 8 bytes are nominally free, but nothing needing 32 bytes can use them
	_, _, err = md.Alloc(16)
	require.ErrorIs(t, err, memutils.ErrOutOfMemory)
	require.Equal(t, []int{8}, md.FreeListSizes())
	require.Equal(t, 1, md.AllocationCount())
	requireConsistent(t, md)

	// ...but a request short by no more than a header takes the whole node
	offset, allocatedSize, err = md.Alloc(8)
	require.NoError(t, err)
	require.Equal(t, 4088, offset)
	require.Equal(t, 8, allocatedSize)
	require.Empty(t, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 2,
		MaxChunk:        0,
		MinChunk:        0,
		CurrSize:        4080,
		FreeBytes:       0,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitFoldSmallRemainders(t *testing.T) {
	md := readyMetadata(t, 4096, true)

	offset, allocatedSize, err := md.Alloc(4040)
	require.NoError(t, err)
	require.Equal(t, 32, offset)
	require.Equal(t, 4064, allocatedSize)
	require.Empty(t, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		CurrSize:        4080,
	}, md.Statistics())
	requireConsistent(t, md)

	freedSize, err := md.Free(offset)
	require.NoError(t, err)
	require.Equal(t, 4064, freedSize)
	require.Equal(t, []int{4064}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		MaxChunk:  4064,
		MinChunk:  4064,
		CurrSize:  16,
		FreeBytes: 4064,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitAlmostFits(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	_, _, err := md.Alloc(4032)
	require.NoError(t, err)
	require.Equal(t, []int{16}, md.FreeListSizes())

	offset, allocatedSize, err := md.Alloc(8)
	require.NoError(t, err)
	require.Equal(t, 4080, offset)
	require.Equal(t, 16, allocatedSize)
	require.Empty(t, md.FreeListSizes())
	require.Equal(t, 4080, md.Statistics().CurrSize)
	requireConsistent(t, md)

	_, err = md.Free(offset)
	require.NoError(t, err)
	require.Equal(t, []int{16}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		MaxChunk:        16,
		MinChunk:        16,
		CurrSize:        4064,
		FreeBytes:       16,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitAlmostFitsLeavesOtherNodes(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(16)
	require.NoError(t, err)
	_, _, err = md.Alloc(8)
	require.NoError(t, err)
	_, err = md.Free(first)
	require.NoError(t, err)
	require.Equal(t, []int{16, 4008}, md.FreeListSizes())
	require.Equal(t, 56, md.Statistics().CurrSize)

	// The 16 byte node is 16 bytes short of a 16 byte request plus its header, so it is granted whole
	offset, allocatedSize, err := md.Alloc(16)
	require.NoError(t, err)
	require.Equal(t, first, offset)
	require.Equal(t, 16, allocatedSize)
	require.Equal(t, []int{4008}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 2,
		MaxChunk:        4008,
		MinChunk:        4008,
		CurrSize:        72,
		FreeBytes:       4008,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitInitInvalidatesAllocations(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	_, _, err := md.Alloc(64)
	require.NoError(t, err)
	offset, _, err := md.Alloc(64)
	require.NoError(t, err)

	md.Init()
	before := md.Statistics()

	_, err = md.Free(offset)
	require.ErrorIs(t, err, memutils.ErrInvalidFree)
	require.Equal(t, before, md.Statistics())
	require.Equal(t, []int{4064}, md.FreeListSizes())
	requireConsistent(t, md)
}

func TestFirstFitAdjacentFree(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(8)
	require.NoError(t, err)
	second, _, err := md.Alloc(8)
	require.NoError(t, err)
	require.Equal(t, 32, first)
	require.Equal(t, 56, second)
	require.Equal(t, []int{4016}, md.FreeListSizes())

	_, err = md.Free(first)
	require.NoError(t, err)

	// The freed span sits directly below the second allocation's header and is pushed on the front
	require.Equal(t, []int{8, 4016}, md.FreeListSizes())
	var nodeOffsets []int
	require.NoError(t, md.VisitFreeNodes(func(offset int, size int) error {
		nodeOffsets = append(nodeOffsets, offset)
		return nil
	}))
	require.Equal(t, []int{16, 64}, nodeOffsets)
	require.Equal(t, second-metadata.AllocationHeaderSize, nodeOffsets[0]+metadata.NodeHeaderSize+8)
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		MaxChunk:        4016,
		MinChunk:        8,
		CurrSize:        56,
		FreeBytes:       4024,
	}, md.Statistics())
	requireConsistent(t, md)

	_, err = md.Free(second)
	require.NoError(t, err)
	require.Equal(t, []int{4064}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 0,
		MaxChunk:        4064,
		MinChunk:        4064,
		CurrSize:        16,
		FreeBytes:       4064,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitCoalesceAbove(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(8)
	require.NoError(t, err)
	second, _, err := md.Alloc(8)
	require.NoError(t, err)

	_, err = md.Free(second)
	require.NoError(t, err)
	require.Equal(t, []int{4040}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		MaxChunk:        4040,
		MinChunk:        4040,
		CurrSize:        40,
		FreeBytes:       4040,
	}, md.Statistics())
	requireConsistent(t, md)

	_, err = md.Free(first)
	require.NoError(t, err)
	require.Equal(t, []int{4064}, md.FreeListSizes())
	requireConsistent(t, md)
}

func TestFirstFitCoalesceBelow(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(8)
	require.NoError(t, err)
	second, _, err := md.Alloc(8)
	require.NoError(t, err)
	_, _, err = md.Alloc(8)
	require.NoError(t, err)

	_, err = md.Free(first)
	require.NoError(t, err)
	require.Equal(t, []int{8, 3992}, md.FreeListSizes())

	_, err = md.Free(second)
	require.NoError(t, err)
	require.Equal(t, []int{32, 3992}, md.FreeListSizes())
	require.Equal(t, memutils.Statistics{
		BlocksAllocated: 1,
		MaxChunk:        3992,
		MinChunk:        32,
		CurrSize:        56,
		FreeBytes:       4024,
	}, md.Statistics())
	requireConsistent(t, md)
}

func TestFirstFitCoalesceBothRescansMinimum(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	var offsets []int
	for _, size := range []int{64, 8, 16, 8, 256} {
		offset, _, err := md.Alloc(size)
		require.NoError(t, err)
		offsets = append(offsets, offset)
	}

	// Free nodes of 64, 16 and the tail; the 16 byte node is the minimum
	_, err := md.Free(offsets[0])
	require.NoError(t, err)
	_, err = md.Free(offsets[2])
	require.NoError(t, err)
	require.Equal(t, 16, md.Statistics().MinChunk)
	requireConsistent(t, md)

	// Merging the 8 byte allocation between the 64 and 16 byte nodes consumes the minimum from above
	_, err = md.Free(offsets[1])
	require.NoError(t, err)
	require.Equal(t, 64+16+8+16+16, md.Statistics().MinChunk)
	requireConsistent(t, md)
}

func TestFirstFitInvalidFree(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(8)
	require.NoError(t, err)
	second, _, err := md.Alloc(8)
	require.NoError(t, err)

	for _, offset := range []int{0, 8, 16, 33, first + 8, 4096, 4112, -16} {
		_, err = md.Free(offset)
		require.ErrorIs(t, err, memutils.ErrInvalidFree, "offset %d", offset)
	}
	require.Equal(t, 2, md.AllocationCount())

	_, err = md.Free(first)
	require.NoError(t, err)
	_, err = md.Free(first)
	require.ErrorIs(t, err, memutils.ErrInvalidFree)

	// The second allocation merges into the node below it, leaving its header bytes in place
	_, err = md.Free(second)
	require.NoError(t, err)
	_, err = md.Free(second)
	require.ErrorIs(t, err, memutils.ErrInvalidFree)

	require.Equal(t, 0, md.AllocationCount())
	require.Equal(t, []int{4064}, md.FreeListSizes())
	requireConsistent(t, md)
}

func TestFirstFitRoundTrip(t *testing.T) {
	sizes := []int{8, 16, 32, 64, 128, 8, 512, 24}
	orders := [][]int{
		{0, 1, 2, 3, 4, 5, 6, 7},
		{7, 6, 5, 4, 3, 2, 1, 0},
		{1, 3, 5, 7, 0, 2, 4, 6},
		{4, 0, 7, 2, 6, 1, 5, 3},
	}

	for _, order := range orders {
		md := readyMetadata(t, 4096, false)

		offsets := make([]int, len(sizes))
		for i, size := range sizes {
			offset, allocatedSize, err := md.Alloc(size)
			require.NoError(t, err)
			require.Equal(t, size, allocatedSize)
			offsets[i] = offset
			requireConsistent(t, md)
		}
		require.Equal(t, len(sizes), md.AllocationCount())

		for _, index := range order {
			_, err := md.Free(offsets[index])
			require.NoError(t, err)
			requireConsistent(t, md)
		}

		require.Equal(t, []int{4064}, md.FreeListSizes())
		require.Equal(t, memutils.Statistics{
			MaxChunk:  4064,
			MinChunk:  4064,
			CurrSize:  16,
			FreeBytes: 4064,
		}, md.Statistics())
	}
}

func TestFirstFitReusesFreedSpan(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(64)
	require.NoError(t, err)
	_, _, err = md.Alloc(8)
	require.NoError(t, err)

	_, err = md.Free(first)
	require.NoError(t, err)

	// First fit walks list order, and the freed span was pushed on the front
	offset, allocatedSize, err := md.Alloc(32)
	require.NoError(t, err)
	require.Equal(t, first, offset)
	require.Equal(t, 32, allocatedSize)
	require.Equal(t, []int{16, 3960}, md.FreeListSizes())
	requireConsistent(t, md)
}

func TestFirstFitDetailedStatistics(t *testing.T) {
	md := readyMetadata(t, 4096, false)

	first, _, err := md.Alloc(64)
	require.NoError(t, err)
	_, _, err = md.Alloc(128)
	require.NoError(t, err)
	_, err = md.Free(first)
	require.NoError(t, err)

	var stats memutils.DetailedStatistics
	stats.Clear()
	md.AddDetailedStatistics(&stats)

	require.Equal(t, memutils.DetailedStatistics{
		Statistics: memutils.Statistics{
			BlocksAllocated: 1,
			MaxChunk:        3840,
			MinChunk:        64,
			CurrSize:        176,
			FreeBytes:       3904,
		},
		RegionBytes:        4096,
		AllocationBytes:    128,
		UnusedRangeCount:   2,
		AllocationSizeMin:  128,
		AllocationSizeMax:  128,
		UnusedRangeSizeMin: 64,
		UnusedRangeSizeMax: 3840,
	}, stats)

	var regions [][3]int
	require.NoError(t, md.VisitAllRegions(func(offset int, size int, free bool) error {
		isFree := 0
		if free {
			isFree = 1
		}
		regions = append(regions, [3]int{offset, size, isFree})
		return nil
	}))
	require.Equal(t, [][3]int{
		{16, 80, 1},
		{96, 144, 0},
		{240, 3856, 1},
	}, regions)
}

func TestFirstFitEmptyDetailedStatistics(t *testing.T) {
	md := readyMetadata(t, 4096, true)
	_, _, err := md.Alloc(4064)
	require.NoError(t, err)

	var stats memutils.DetailedStatistics
	stats.Clear()
	md.AddDetailedStatistics(&stats)

	require.Equal(t, 0, stats.UnusedRangeCount)
	require.Equal(t, math.MaxInt, stats.UnusedRangeSizeMin)
	require.Equal(t, 4064, stats.AllocationSizeMax)
}

func TestFirstFitJson(t *testing.T) {
	md := readyMetadata(t, 4096, false)
	_, _, err := md.Alloc(4040)
	require.NoError(t, err)

	writer := jwriter.NewWriter()
	obj := writer.Object()
	md.BlockJsonData(&obj)
	require.NoError(t, md.PrintDetailedMap(&obj))
	obj.End()
	require.NoError(t, writer.Error())

	require.JSONEq(t, `{
		"TotalBytes": 4096,
		"UnusedBytes": 8,
		"Allocations": 1,
		"FreeList": [8],
		"Regions": [
			{"Offset": 16, "Type": "ALLOCATED", "Size": 4040},
			{"Offset": 4072, "Type": "FREE", "Size": 8}
		]
	}`, string(writer.Bytes()))
}
