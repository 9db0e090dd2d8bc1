package ring

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/markvandendool/roxy-sub003/internal/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Reader is the one consumer of a ring. Its methods may be called from
// several goroutines; they are serialized.
type Reader struct {
	ring   *Ring
	pid    int
	mu     sync.Mutex
	err    error
	closed bool

	pendingAt     uint64
	pendingSince  time.Time
	stallReported bool
}

// NewReader claims the ring's reader slot for this process. The slot is taken
// over when its holder is a process that no longer exists.
func (r *Ring) NewReader() (*Reader, error) {
	pid := os.Getpid()
	h := r.head

	for {
		holder := h.ReaderPID()

		if holder == 0 {
			if h.CompareAndSwapReaderPID(0, pid) {
				break
			}

			continue
		}

		if holder != pid && !arena.ProcessAlive(holder) {
			if h.CompareAndSwapReaderPID(holder, pid) {
				r.log.WithField("pid", holder).Warn("took over reader slot from dead process")
				break
			}

			continue
		}

		return nil, errors.Wrapf(ErrReaderBusy, "%s: held by pid %d", r.arena.Name(), holder)
	}

	return &Reader{
		ring: r,
		pid:  pid,
	}, nil
}

func (rd *Reader) Ring() *Ring {
	return rd.ring
}

// TryRead returns the next frame if one is published. ok is false when the
// ring is empty or the next frame is still being written.
func (rd *Reader) TryRead() (f frame.Frame, ok bool, err error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	return rd.next()
}

// Read waits up to timeout for the next frame, spinning briefly and then
// backing off. On timeout it returns ok == false and a nil error.
func (rd *Reader) Read(timeout time.Duration) (f frame.Frame, ok bool, err error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	deadline := time.Now().Add(timeout)
	var b Backoff

	for {
		if f, ok, err = rd.next(); ok || err != nil {
			return
		}

		remaining := time.Until(deadline)

		if remaining <= 0 {
			return
		}

		b.Wait(remaining)
	}
}

// ReadContext waits for the next frame until ctx is done, in which case it
// returns ctx.Err().
func (rd *Reader) ReadContext(ctx context.Context) (f frame.Frame, err error) {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	var (
		b  Backoff
		ok bool
	)

	for {
		if f, ok, err = rd.next(); ok || err != nil {
			return
		}

		if err = ctx.Err(); err != nil {
			return
		}

		limit := maxSleep

		if deadline, has := ctx.Deadline(); has {
			limit = time.Until(deadline)
		}

		b.Wait(limit)
	}
}

func (rd *Reader) next() (f frame.Frame, ok bool, err error) {
	if rd.closed {
		return f, false, ErrReaderClosed
	}

	if rd.err != nil {
		return f, false, rd.err
	}

	r := rd.ring
	h := r.head

	if h.Poisoned() {
		rd.err = &frame.Error{
			Kind:   frame.ErrCorrupt,
			Offset: int(h.ReadOffset()),
			Limit:  int(r.capacity),
			Reason: "ring poisoned by an earlier corrupt frame",
		}

		return f, false, rd.err
	}

	for {
		head := h.Head()
		tail := h.Tail()

		if head == tail {
			rd.pendingSince = time.Time{}
			return f, false, nil
		}

		off := head % r.capacity
		t, published, valid := frame.ParseWord(atomic.LoadUint32(utils.Uint32At(r.data, int(off))))

		if !published {
			return f, false, rd.pending(head, off)
		}

		rd.pendingSince = time.Time{}

		if !valid {
			return f, false, rd.corrupt(off, 0, "missing commit mark")
		}

		if t == frame.TypeWrap {
			clear(r.data[off : off+frame.WrapMarkerSize])
			h.SetHead(head + r.capacity - off)
			continue
		}

		var next int

		if f, next, err = frame.Decode(r.data, int(off)); err != nil {
			var ferr *frame.Error

			if !errors.As(err, &ferr) {
				return f, false, rd.corrupt(off, 0, err.Error())
			}

			return f, false, rd.corrupt(off, ferr.Length, ferr.Reason)
		}

		size := uint64(next) - off

		if size > tail-head {
			return frame.Frame{}, false, rd.corrupt(off, uint32(len(f.Payload)), "frame runs past the claim cursor")
		}

		clear(r.data[off : off+size])
		h.IncrementReadSeq()
		h.SetHead(head + size)
		return f, true, nil
	}
}

func (rd *Reader) pending(head, off uint64) error {
	stallAfter := rd.ring.stallAfter

	if stallAfter <= 0 {
		return nil
	}

	now := time.Now()

	if rd.pendingSince.IsZero() || rd.pendingAt != head {
		rd.pendingAt = head
		rd.pendingSince = now
		rd.stallReported = false
		return nil
	}

	waited := now.Sub(rd.pendingSince)

	if waited < stallAfter {
		return nil
	}

	if !rd.stallReported {
		rd.stallReported = true
		rd.ring.log.WithFields(logrus.Fields{
			"offset": off,
			"waited": waited,
		}).Warn("frame claimed but never published")
	}

	return errors.Wrapf(ErrStalled, "offset %d unpublished for %s", off, waited.Round(time.Millisecond))
}

// corrupt stops the reader for good and flags the ring so that no later
// reader resumes from a position it cannot trust.
func (rd *Reader) corrupt(off uint64, length uint32, reason string) error {
	r := rd.ring
	h := r.head

	rd.err = &frame.Error{
		Kind:   frame.ErrCorrupt,
		Offset: int(off),
		Length: length,
		Limit:  int(r.capacity),
		Reason: reason,
	}

	h.SetFlag(arena.FlagPoisoned)

	r.log.WithFields(logrus.Fields{
		"offset":          off,
		"declared_length": length,
		"capacity":        r.capacity,
		"read_seq":        h.ReadSeq(),
		"write_seq":       h.WriteSeq(),
		"reason":          reason,
	}).Error("corrupt frame, reader stopped")

	return rd.err
}

// Close releases the reader slot.
func (rd *Reader) Close() error {
	rd.mu.Lock()
	defer rd.mu.Unlock()

	if rd.closed {
		return ErrReaderClosed
	}

	rd.closed = true
	rd.ring.head.CompareAndSwapReaderPID(rd.pid, 0)
	return nil
}
