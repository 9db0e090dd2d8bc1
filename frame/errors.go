package frame

import "fmt"

type frameError string

var _ error = frameError("")

func (err frameError) Error() string {
	return string(err)
}

const (
	ErrTruncated = frameError("frame truncated")
	ErrCorrupt   = frameError("frame corrupt")
)

// Error carries the diagnostic context of a failed decode. It unwraps to
// ErrTruncated or ErrCorrupt.
type Error struct {
	Kind   error
	Offset int    // where the frame header starts
	Length uint32 // declared payload length, if it could be read
	Limit  int    // bytes available from Offset, or the ring capacity
	Reason string
}

func (err *Error) Error() string {
	return fmt.Sprintf("%s at offset %d: %s (declared length %d, limit %d)", err.Kind, err.Offset, err.Reason, err.Length, err.Limit)
}

func (err *Error) Unwrap() error {
	return err.Kind
}
