package arena

import (
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	// ProtocolVersion changes whenever the header or frame layout changes.
	// 2: claim-and-publish framing with commit marks and wrap markers.
	ProtocolVersion = uint32(2)

	// HeaderSize is the space reserved in front of the ring.
	HeaderSize = 4096

	MinCapacity = 4096
	MaxCapacity = 1<<32 - 16

	DefaultSize = 1 << 30

	// Poisoned is set in the header flags once a reader detected corrupt framing.
	FlagPoisoned = uint32(1 << 0)
)

var magic = [8]byte{'R', 'O', 'X', 'Y', 'B', 'U', 'S', 0}

// Header is the control block at the start of every arena. It lives in memory
// shared between processes, so every mutable field is accessed atomically.
// The writer and reader cursors sit on separate cache lines.
type Header struct {
	magic     [8]byte
	version   uint32
	capacity  uint32
	headSize  uint32
	flags     uint32
	ownerPID  uint32
	readerPID uint32
	createdAt int64
	_         [24]byte

	tail      uint64 // claim cursor, monotonic byte position
	writeSeq  uint64
	fullCount uint64
	wrapCount uint64
	_         [32]byte

	head    uint64 // read cursor, monotonic byte position
	readSeq uint64
	_       [48]byte
}

const headerStructSize = int(unsafe.Sizeof(Header{}))

func newHeader(capacity uint32, pid int) *Header {
	return &Header{
		magic:     magic,
		version:   ProtocolVersion,
		capacity:  capacity,
		headSize:  HeaderSize,
		ownerPID:  uint32(pid),
		createdAt: time.Now().UnixNano(),
	}
}

func (h *Header) Version() uint32 {
	return atomic.LoadUint32(&h.version)
}

func (h *Header) Capacity() uint32 {
	return h.capacity
}

func (h *Header) OwnerPID() int {
	return int(atomic.LoadUint32(&h.ownerPID))
}

func (h *Header) CreatedAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&h.createdAt))
}

func (h *Header) Flags() uint32 {
	return atomic.LoadUint32(&h.flags)
}

func (h *Header) SetFlag(flag uint32) {
	for {
		old := atomic.LoadUint32(&h.flags)

		if old&flag == flag || atomic.CompareAndSwapUint32(&h.flags, old, old|flag) {
			return
		}
	}
}

func (h *Header) Poisoned() bool {
	return h.Flags()&FlagPoisoned != 0
}

func (h *Header) ReaderPID() int {
	return int(atomic.LoadUint32(&h.readerPID))
}

func (h *Header) CompareAndSwapReaderPID(old, new int) bool {
	return atomic.CompareAndSwapUint32(&h.readerPID, uint32(old), uint32(new))
}

func (h *Header) Tail() uint64 {
	return atomic.LoadUint64(&h.tail)
}

func (h *Header) CompareAndSwapTail(old, new uint64) bool {
	return atomic.CompareAndSwapUint64(&h.tail, old, new)
}

func (h *Header) Head() uint64 {
	return atomic.LoadUint64(&h.head)
}

func (h *Header) SetHead(head uint64) {
	atomic.StoreUint64(&h.head, head)
}

func (h *Header) WriteSeq() uint64 {
	return atomic.LoadUint64(&h.writeSeq)
}

func (h *Header) IncrementWriteSeq() uint64 {
	return atomic.AddUint64(&h.writeSeq, 1)
}

func (h *Header) ReadSeq() uint64 {
	return atomic.LoadUint64(&h.readSeq)
}

func (h *Header) IncrementReadSeq() uint64 {
	return atomic.AddUint64(&h.readSeq, 1)
}

func (h *Header) FullCount() uint64 {
	return atomic.LoadUint64(&h.fullCount)
}

func (h *Header) IncrementFullCount() {
	atomic.AddUint64(&h.fullCount, 1)
}

func (h *Header) WrapCount() uint64 {
	return atomic.LoadUint64(&h.wrapCount)
}

func (h *Header) IncrementWrapCount() {
	atomic.AddUint64(&h.wrapCount, 1)
}

// WriteOffset is the ring offset the next claim starts at.
func (h *Header) WriteOffset() uint32 {
	return uint32(h.Tail() % uint64(h.capacity))
}

// ReadOffset is the ring offset of the next frame to read.
func (h *Header) ReadOffset() uint32 {
	return uint32(h.Head() % uint64(h.capacity))
}
