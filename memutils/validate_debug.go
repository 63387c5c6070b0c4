//go:build debug_mem_utils

package memutils

import "github.com/pkg/errors"

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
	err := validatable.Validate()
	if err != nil {
		panic(errors.WithMessage(err, "heap metadata failed validation"))
	}
}

// DebugPoison overwrites a freed payload with FreedMemoryPattern so that reads through a stale slice
// are easy to recognize. This method no-ops unless the debug_mem_utils build tag is present
func DebugPoison(payload []byte) {
	for i := range payload {
		payload[i] = FreedMemoryPattern
	}
}
