package heap

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/fixedheap/heap/internal/utils"
	"github.com/vkngwrapper/fixedheap/memutils"
	"github.com/vkngwrapper/fixedheap/memutils/metadata"
	"github.com/vkngwrapper/fixedheap/memutils/region"
)

// CreateFlags indicate specific allocator behaviors to activate or deactivate
type CreateFlags int32

const (
	// AllocatorCreateExternallySynchronized ensures that this allocator will not be synchronized
	// internally. The consumer must guarantee it is used from only one goroutine at a time or is
	// synchronized by some other mechanism, but performance may improve because the internal mutex
	// is not used.
	AllocatorCreateExternallySynchronized CreateFlags = 1 << iota
	// AllocatorCreateStrictFree tracks live allocations outside of the region. Freeing an address
	// that is not live returns memutils.ErrInvalidFree instead of being silently ignored. Liveness
	// is decided by the tracked offsets, not by the allocation header's guard value.
	AllocatorCreateStrictFree
	// AllocatorCreateFoldSmallRemainders grants a whole free node to an allocation when splitting it
	// would leave a free node smaller than metadata.MinimumNodeSize.
	AllocatorCreateFoldSmallRemainders
)

var createFlagsMapping = map[CreateFlags]string{
	AllocatorCreateExternallySynchronized: "AllocatorCreateExternallySynchronized",
	AllocatorCreateStrictFree:             "AllocatorCreateStrictFree",
	AllocatorCreateFoldSmallRemainders:    "AllocatorCreateFoldSmallRemainders",
}

func (f CreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	var names []string
	for bit := CreateFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}

		name, ok := createFlagsMapping[bit]
		if !ok {
			name = fmt.Sprintf("UnknownFlag(%#x)", int32(bit))
		}
		names = append(names, name)
	}

	return strings.Join(names, "|")
}

const (
	// DefaultRegionSize is the value that is used as the RegionSize when none is provided via
	// CreateOptions.
	DefaultRegionSize int = 4096
)

// CreateOptions contains optional settings when creating an allocator
type CreateOptions struct {
	// Flags indicates specific allocator behaviors to activate or deactivate
	Flags CreateFlags
	// RegionSize is the number of bytes requested from the Source. It must be a multiple of
	// memutils.AllocationAlignment and at least metadata.MinimumRegionSize. If it is left 0,
	// DefaultRegionSize is used.
	RegionSize int
	// Source is an optional provider of the region's memory. When it is nil, memory is mapped
	// anonymously from the operating system.
	Source region.Source
}

// New creates a new Allocator and initializes its region
//
// logger - Receives debug output for allocations and frees, and errors during teardown. It may be nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Allocator, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	regionSize := options.RegionSize
	if regionSize == 0 {
		regionSize = DefaultRegionSize
	}

	if regionSize < metadata.MinimumRegionSize || regionSize > math.MaxInt32 {
		return nil, errors.Newf("heap.CreateOptions.RegionSize must be between %d and %d, but was %d", metadata.MinimumRegionSize, math.MaxInt32, regionSize)
	}
	err := memutils.CheckAligned(regionSize, memutils.AllocationAlignment, "heap.CreateOptions.RegionSize")
	if err != nil {
		return nil, err
	}

	source := options.Source
	if source == nil {
		source = region.MmapSource{}
	}

	allocator := &Allocator{
		logger:      logger,
		mutex:       utils.OptionalRWMutex{UseMutex: options.Flags&AllocatorCreateExternallySynchronized == 0},
		createFlags: options.Flags,
		regionSize:  regionSize,
		source:      source,
	}

	err = allocator.Init()
	if err != nil {
		return nil, err
	}

	return allocator, nil
}
