package memutils

// Validatable is anything DebugValidate can check. Block metadata implementations satisfy it.
type Validatable interface {
	Validate() error
}

// FreedMemoryPattern is the byte DebugPoison writes across payloads that have been returned to a region
const FreedMemoryPattern byte = 0xDD
