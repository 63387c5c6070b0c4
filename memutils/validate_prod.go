//go:build !debug_mem_utils

package memutils

// DebugValidate will call Validate on the provided object and panics if any errors are returned. This
// method no-ops unless the debug_mem_utils build tag is present
func DebugValidate(validatable Validatable) {
}

// DebugPoison overwrites a freed payload with FreedMemoryPattern so that reads through a stale slice
// are easy to recognize. This method no-ops unless the debug_mem_utils build tag is present
func DebugPoison(payload []byte) {
}
