package heap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/fixedheap/heap/internal/utils"
	"github.com/vkngwrapper/fixedheap/memutils"
	"github.com/vkngwrapper/fixedheap/memutils/metadata"
	"github.com/vkngwrapper/fixedheap/memutils/region"
)

// Allocator hands out memory from a single fixed-size region obtained once from its Source.
// Allocations are placed first-fit, and freed memory is merged with its free neighbors.
//
// Unless AllocatorCreateExternallySynchronized was passed to New, every method takes a single
// allocator-wide mutex.
type Allocator struct {
	logger      *slog.Logger
	mutex       utils.OptionalRWMutex
	createFlags CreateFlags
	regionSize  int
	source      region.Source

	region   *region.Region
	metadata *metadata.FirstFitBlockMetadata

	// payload offset -> granted size, only when AllocatorCreateStrictFree is set
	liveAllocations *swiss.Map[int, int]
}

// Init obtains the allocator's region and lays out an empty heap inside it. New calls Init, so it
// only needs to be called again after Destroy.
func (a *Allocator) Init() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region != nil {
		return errors.New("the allocator's region is already initialized")
	}

	r, err := region.Open(a.source, a.regionSize)
	if err != nil {
		return &AllocatorInitError{RegionSize: a.regionSize, Err: err}
	}

	md, err := metadata.NewFirstFitBlockMetadata(r, a.createFlags&AllocatorCreateFoldSmallRemainders != 0)
	if err != nil {
		closeErr := r.Close()
		if closeErr != nil {
			a.logger.Error("error attempting to release region after initialization failure", slog.Any("error", closeErr))
		}
		return &AllocatorInitError{RegionSize: a.regionSize, Err: err}
	}

	a.region = r
	a.metadata = md
	if a.createFlags&AllocatorCreateStrictFree != 0 {
		a.liveAllocations = swiss.NewMap[int, int](42)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Init",
		slog.Int("RegionSize", a.regionSize),
		slog.String("Flags", a.createFlags.String()),
	)
	return nil
}

// Allocate returns count bytes of memory from the region. count must be a positive multiple of
// memutils.AllocationAlignment.
//
// The returned slice has a length of count. Its capacity is the number of bytes actually granted,
// which can be larger when a free node was only slightly bigger than the request.
//
// On failure, the returned slice is nil and the error wraps memutils.ErrInvalidAllocationSize,
// memutils.ErrOutOfMemory, or memutils.ErrNotInitialized.
func (a *Allocator) Allocate(count int) ([]byte, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.metadata == nil {
		return nil, errors.WithStack(memutils.ErrNotInitialized)
	}

	offset, allocatedSize, err := a.metadata.Alloc(count)
	if err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Allocate failed",
			slog.Int("Size", count),
			slog.Any("error", err),
		)
		return nil, err
	}

	if a.liveAllocations != nil {
		a.liveAllocations.Put(offset, allocatedSize)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Allocate",
		slog.Int("Size", count),
		slog.Int("AllocatedSize", allocatedSize),
		slog.Int("Offset", offset),
	)

	return a.region.Slice(offset, count, allocatedSize), nil
}

// Free returns memory obtained from Allocate to the region. data must begin at the first byte of
// a slice returned by Allocate.
//
// Freeing a nil slice does nothing. Freeing memory that is not a live allocation does nothing
// and returns nil, unless AllocatorCreateStrictFree was passed to New, in which case it returns
// an error wrapping memutils.ErrInvalidFree.
func (a *Allocator) Free(data []byte) error {
	if len(data) == 0 && cap(data) == 0 {
		return nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.metadata == nil {
		return errors.WithStack(memutils.ErrNotInitialized)
	}

	offset, inRegion := a.region.OffsetOf(data)
	if !inRegion {
		return a.invalidFree(errors.Wrap(memutils.ErrInvalidFree, "memory does not belong to this allocator"))
	}

	if a.liveAllocations != nil && !a.liveAllocations.Has(offset) {
		return a.invalidFree(errors.Wrapf(memutils.ErrInvalidFree, "offset %d is not a live allocation", offset))
	}

	freedSize, err := a.metadata.Free(offset)
	if err != nil {
		return a.invalidFree(err)
	}

	if a.liveAllocations != nil {
		a.liveAllocations.Delete(offset)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Free",
		slog.Int("Offset", offset),
		slog.Int("Size", freedSize),
	)
	return nil
}

func (a *Allocator) invalidFree(err error) error {
	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Free ignored", slog.Any("error", err))

	if a.createFlags&AllocatorCreateStrictFree != 0 {
		return err
	}

	return nil
}

// HeapStats returns a snapshot of the heap's running statistics. After Destroy, every field is 0.
func (a *Allocator) HeapStats() memutils.Statistics {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return memutils.Statistics{}
	}

	return a.metadata.Statistics()
}

// FreeListSizes returns the size of every node in the free list, in list order
func (a *Allocator) FreeListSizes() []int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return nil
	}

	return a.metadata.FreeListSizes()
}

// CalculateStatistics walks the entire region and populates stats with a description of every
// free node and allocation
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.Clear()
	if a.metadata == nil {
		return
	}

	a.metadata.AddDetailedStatistics(stats)
}

// Validate performs internal consistency checks on the heap. These checks walk the entire region.
func (a *Allocator) Validate() error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	if a.metadata == nil {
		return errors.WithStack(memutils.ErrNotInitialized)
	}

	err := a.metadata.Validate()
	if err != nil {
		return err
	}

	if a.liveAllocations != nil && a.liveAllocations.Count() != a.metadata.AllocationCount() {
		return errors.Newf("%d allocations are tracked as live, but the heap holds %d", a.liveAllocations.Count(), a.metadata.AllocationCount())
	}

	return nil
}

// Destroy releases the region back to its Source. Every slice returned by Allocate becomes invalid.
// Allocations that were never freed are logged. The allocator is left uninitialized even if the
// release fails, and can be reinitialized with Init.
func (a *Allocator) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.region == nil {
		return nil
	}

	if !a.metadata.IsEmpty() {
		err := a.metadata.VisitAllRegions(func(offset int, size int, free bool) error {
			if !free {
				a.logUnreleasedMemory(offset, size)
			}
			return nil
		})
		if err != nil {
			a.logger.LogAttrs(context.Background(),
				slog.LevelError,
				"[UNRELEASED MEMORY] error while iterating unreleased memory",
				slog.Any("error", err))
		}
	}

	err := a.region.Close()
	a.region = nil
	a.metadata = nil
	a.liveAllocations = nil

	if err != nil {
		a.logger.Error("error attempting to release heap region", slog.Any("error", err))
		return errors.Wrap(err, "failed to release heap region")
	}

	return nil
}

func (a *Allocator) logUnreleasedMemory(offset, size int) {
	a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
		slog.Int("offset", offset+metadata.AllocationHeaderSize),
		slog.Int("size", size-metadata.AllocationHeaderSize),
	)
}
