package heap

import "fmt"

// AllocatorInitError is returned when the allocator's region could not be obtained from its Source
type AllocatorInitError struct {
	RegionSize int
	Err        error
}

func (e *AllocatorInitError) Error() string {
	return fmt.Sprintf("failed to obtain a %d byte heap region: %v", e.RegionSize, e.Err)
}

func (e *AllocatorInitError) Unwrap() error {
	return e.Err
}
