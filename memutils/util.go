package memutils

import (
	cerrors "github.com/cockroachdb/errors"
	"golang.org/x/exp/constraints"
)

// AllocationAlignment is the word boundary that every allocation size and every header offset
// within a region is aligned to
const AllocationAlignment = 8

func CheckAligned[T constraints.Integer](number T, alignment T, name string) error {
	if number%alignment != 0 {
		return cerrors.Wrapf(ErrMisaligned, "%s is %d, alignment is %d", name, number, alignment)
	}
	return nil
}

func AlignUp[T constraints.Integer](value T, alignment T) T {
	return (value + alignment - 1) &^ (alignment - 1)
}

func AlignDown[T constraints.Integer](value T, alignment T) T {
	return value &^ (alignment - 1)
}
