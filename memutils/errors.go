package memutils

import "github.com/pkg/errors"

var (
	// ErrInvalidAllocationSize is returned when an allocation is requested with a byte count that is not
	// a positive multiple of AllocationAlignment
	ErrInvalidAllocationSize error = errors.New("allocation size must be a positive multiple of the allocation alignment")
	// ErrOutOfMemory is returned when no free region can satisfy an allocation request
	ErrOutOfMemory error = errors.New("no free region is large enough for the requested allocation")
	// ErrInvalidFree is returned when a freed address was never returned by an allocation, or has already
	// been freed
	ErrInvalidFree error = errors.New("address does not refer to a live allocation")
	// ErrNotInitialized is returned when an allocator is used after its region has been released
	ErrNotInitialized error = errors.New("allocator region has not been initialized")
	// ErrMisaligned is the error returned from CheckAligned if the number being tested is not a multiple
	// of the requested alignment
	ErrMisaligned error = errors.New("number must be a multiple of the alignment")
)
