package utils

type Unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

type Integer interface {
	Unsigned | ~int | ~int8 | ~int16 | ~int32 | ~int64
}

// AlignUp rounds n up to the next multiple of align, which must be a power of two.
func AlignUp[T Integer](n, align T) T {
	return (n + align - 1) &^ (align - 1)
}

// AlignDown rounds n down to a multiple of align, which must be a power of two.
func AlignDown[T Integer](n, align T) T {
	return n &^ (align - 1)
}
