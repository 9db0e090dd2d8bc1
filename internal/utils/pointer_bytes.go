package utils

import (
	"unsafe"
)

// PointerToBytes views the memory behind val as a byte slice of the given length.
// The slice aliases val; nothing is copied.
func PointerToBytes[T any](val *T, length int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(val)), length)
}

// BytesToPointer overlays a *T on the start of b. The caller must make sure
// b is at least unsafe.Sizeof(T) bytes long and suitably aligned.
func BytesToPointer[T any](b []byte) *T {
	return (*T)(unsafe.Pointer(unsafe.SliceData(b)))
}

// Uint32At returns a pointer to the 4-byte word at b[off:], for use with sync/atomic.
func Uint32At(b []byte, off int) *uint32 {
	return (*uint32)(unsafe.Pointer(&b[off]))
}
