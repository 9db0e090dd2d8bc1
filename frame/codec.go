package frame

import (
	"encoding/binary"
)

var order = binary.NativeEndian

// Header is the decoded fixed part of a frame.
type Header struct {
	Type      Type
	Length    uint32
	Timestamp uint64
}

func (h Header) Size() int {
	return Size(int(h.Length))
}

// CommitWord is the word0 value that publishes a frame of type t.
func CommitWord(t Type) uint32 {
	return uint32(t) | uint32(commitMark)<<16
}

// ParseWord splits word0. A zero word means the slot holds no published frame.
func ParseWord(w uint32) (t Type, published bool, valid bool) {
	if w == 0 {
		return 0, false, true
	}

	return Type(w & 0xFFFF), true, uint16(w>>16) == commitMark
}

// Encode returns the complete encoding of one frame, padding included.
func Encode(t Type, payload []byte, ts uint64) []byte {
	b := make([]byte, Size(len(payload)))
	order.PutUint32(b[0:], CommitWord(t))
	PutBody(b, payload, ts)
	return b
}

// PutBody writes everything except word0 into dst, which must hold at least
// Size(len(payload)) bytes. Padding bytes are left as they are.
func PutBody(dst []byte, payload []byte, ts uint64) {
	order.PutUint32(dst[4:], uint32(len(payload)))
	order.PutUint64(dst[8:], ts)
	copy(dst[HeaderSize:], payload)
}

// ParseHeader decodes the 16-byte header at buf[offset:].
func ParseHeader(buf []byte, offset int) (h Header, err error) {
	if offset < 0 || len(buf)-offset < HeaderSize {
		return h, &Error{Kind: ErrTruncated, Offset: offset, Limit: len(buf) - offset, Reason: "short header"}
	}

	t, published, valid := ParseWord(order.Uint32(buf[offset:]))
	h.Length = order.Uint32(buf[offset+4:])

	if !published || !valid {
		return h, &Error{Kind: ErrCorrupt, Offset: offset, Length: h.Length, Limit: len(buf) - offset, Reason: "missing commit mark"}
	}

	h.Type = t
	h.Timestamp = order.Uint64(buf[offset+8:])
	return
}

// Decode reads the frame at buf[offset:] and returns it together with the
// offset of the following frame. The payload is copied out of buf.
func Decode(buf []byte, offset int) (f Frame, next int, err error) {
	h, err := ParseHeader(buf, offset)

	if err != nil {
		return
	}

	if uint64(h.Length) > uint64(len(buf)) {
		return f, offset, &Error{Kind: ErrCorrupt, Offset: offset, Length: h.Length, Limit: len(buf) - offset, Reason: "declared length exceeds buffer"}
	}

	start := offset + HeaderSize
	end := start + int(h.Length)

	if end > len(buf) {
		return f, offset, &Error{Kind: ErrTruncated, Offset: offset, Length: h.Length, Limit: len(buf) - offset, Reason: "short payload"}
	}

	f = Frame{
		Type:      h.Type,
		Timestamp: h.Timestamp,
		Payload:   make([]byte, h.Length),
	}

	copy(f.Payload, buf[start:end])

	next = offset + h.Size()

	if next > len(buf) {
		next = len(buf)
	}

	return f, next, nil
}
