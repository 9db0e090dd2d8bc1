// Package ring moves frames through the ring bytes of an arena.
//
// Any number of writers, in any number of processes, share a ring without a
// lock. A writer reserves its slot by advancing the claim cursor with a
// compare-and-swap, fills the slot, and publishes it by storing the slot's
// first word last. The single reader consumes published frames in claim
// order, zeroes them and moves the read cursor, which hands the space back
// to writers. Free ring bytes are therefore always zero, and a claimed slot
// whose first word is still zero is simply not published yet.
//
// When the tail of the ring cannot hold the next frame contiguously, the
// writer claims the remainder and leaves a wrap marker there; the reader
// follows it back to offset 0. Writers never claim bytes the reader has not
// released: when space runs out they get ErrFull.
package ring

import (
	"sync/atomic"
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/markvandendool/roxy-sub003/internal/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// margin is kept free on every claim, on top of the frame itself.
const margin = frame.WrapMarkerSize

// maxLapped bounds how often claim retries a head/tail pair more than a lap apart.
const maxLapped = 1 << 16

type Ring struct {
	arena      *arena.Arena
	head       *arena.Header
	data       []byte
	capacity   uint64
	log        logrus.FieldLogger
	now        func() time.Time
	stallAfter time.Duration
	loadHead   func() uint64
}

func New(a *arena.Arena, opts ...Option) *Ring {
	r := &Ring{
		arena:      a,
		head:       a.Header(),
		data:       a.Ring(),
		capacity:   uint64(a.Capacity()),
		log:        logrus.StandardLogger(),
		now:        time.Now,
		stallAfter: DefaultStallAfter,
	}

	r.loadHead = r.head.Head

	for _, opt := range opts {
		opt(r)
	}

	r.log = r.log.WithField("arena", a.Name())
	return r
}

func (r *Ring) Arena() *arena.Arena {
	return r.arena
}

func (r *Ring) Capacity() int {
	return int(r.capacity)
}

// MaxPayload is the largest payload a single frame may carry.
func (r *Ring) MaxPayload() int {
	return frame.MaxPayload(int(r.capacity))
}

// Write publishes a frame stamped with the current time.
func (r *Ring) Write(t frame.Type, payload []byte) error {
	return r.WriteFrame(frame.Frame{
		Type:      t,
		Timestamp: uint64(r.now().UnixNano()),
		Payload:   payload,
	})
}

// WriteFrame publishes f as is, timestamp included. It returns ErrFull when
// the reader has not released enough space; nothing is written in that case.
func (r *Ring) WriteFrame(f frame.Frame) error {
	if f.Type == frame.TypeWrap {
		return errors.Wrapf(ErrReservedType, "type %d", f.Type)
	}

	size := uint64(f.Size())

	if size > uint64(frame.MaxFrameSize(int(r.capacity))) {
		return errors.Wrapf(ErrPayloadTooLarge, "%d bytes, at most %d fit", len(f.Payload), r.MaxPayload())
	}

	off, err := r.claim(size)

	if err != nil {
		return err
	}

	slot := r.data[off : off+size]
	frame.PutBody(slot, f.Payload, f.Timestamp)

	// Count before publishing so readSeq can never overtake writeSeq.
	r.head.IncrementWriteSeq()
	atomic.StoreUint32(utils.Uint32At(slot, 0), frame.CommitWord(f.Type))
	return nil
}

// claim reserves size contiguous bytes and returns their ring offset. If the
// tail of the ring is too short, the remainder is claimed for a wrap marker
// first and the claim starts over at offset 0.
func (r *Ring) claim(size uint64) (uint64, error) {
	h := r.head
	lapped := 0

	for {
		// Head before tail: a head that is stale by less than a lap only
		// underestimates free space. One stale by more cannot be used at all.
		head := r.loadHead()
		tail := h.Tail()
		free, ok := r.space(head, tail)

		if !ok {
			// The reader cannot lap a writer forever; cursors that stay
			// apart mean the header itself is damaged.
			if lapped++; lapped > maxLapped {
				return 0, errors.Wrapf(ErrCursors, "tail %d, head %d, capacity %d", tail, head, r.capacity)
			}

			continue
		}

		off := tail % r.capacity

		if off+size > r.capacity {
			skip := r.capacity - off

			if skip+margin > free {
				h.IncrementFullCount()
				return 0, ErrFull
			}

			if h.CompareAndSwapTail(tail, tail+skip) {
				atomic.StoreUint32(utils.Uint32At(r.data, int(off)), frame.CommitWord(frame.TypeWrap))
				h.IncrementWrapCount()
			}

			continue
		}

		if size+margin > free {
			h.IncrementFullCount()
			return 0, ErrFull
		}

		if h.CompareAndSwapTail(tail, tail+size) {
			return off, nil
		}
	}
}

// space returns the free bytes between a head loaded before tail and tail.
// ok is false when the reader lapped the ring in between, which leaves
// tail-head larger than the capacity.
func (r *Ring) space(head, tail uint64) (free uint64, ok bool) {
	used := tail - head

	if tail < head || used > r.capacity {
		return 0, false
	}

	return r.capacity - used, true
}

type Stats struct {
	Name        string
	Capacity    uint64
	WriteOffset uint32
	ReadOffset  uint32
	WriteSeq    uint64
	ReadSeq     uint64
	Used        uint64 // bytes claimed and not yet released by the reader
	Free        uint64
	Backlog     uint64 // published frames not yet read
	Full        uint64 // writes rejected with ErrFull
	Wraps       uint64
	ReaderPID   int
	OwnerPID    int
	Poisoned    bool
	CreatedAt   time.Time
}

// Stats takes a snapshot of the shared header. Fields are loaded one by one,
// so under concurrent traffic they may be from slightly different instants.
func (r *Ring) Stats() Stats {
	h := r.head
	readSeq := h.ReadSeq()

	var head, tail, free uint64

	for i, ok := 0, false; !ok && i < maxLapped; i++ {
		head = h.Head()
		tail = h.Tail()
		free, ok = r.space(head, tail)
	}

	writeSeq := h.WriteSeq()

	return Stats{
		Name:        r.arena.Name(),
		Capacity:    r.capacity,
		WriteOffset: uint32(tail % r.capacity),
		ReadOffset:  uint32(head % r.capacity),
		WriteSeq:    writeSeq,
		ReadSeq:     readSeq,
		Used:        r.capacity - free,
		Free:        free,
		Backlog:     writeSeq - readSeq,
		Full:        h.FullCount(),
		Wraps:       h.WrapCount(),
		ReaderPID:   h.ReaderPID(),
		OwnerPID:    h.OwnerPID(),
		Poisoned:    h.Poisoned(),
		CreatedAt:   h.CreatedAt(),
	}
}
