package ring

type ringError string

var _ error = ringError("")

func (err ringError) Error() string {
	return string(err)
}

const (
	// ErrFull means the reader has not freed enough space yet. It is routine:
	// the caller decides whether to retry, drop or wait.
	ErrFull = ringError("ring is full")

	ErrPayloadTooLarge = ringError("payload too large for ring")
	ErrReservedType    = ringError("frame type is reserved")
	ErrReaderBusy      = ringError("ring already has a reader")
	ErrReaderClosed    = ringError("reader closed")
	ErrCursors         = ringError("ring cursors out of range")

	// ErrStalled means a writer claimed space but never published its frame,
	// most likely because it died halfway through a write.
	ErrStalled = ringError("unpublished frame at read cursor")
)
