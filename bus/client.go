// Package bus is the interface other processes use to talk over the rings:
// plain and typed writes, reads with a timeout, and a ping that proves the
// process on the other end is draining its ring.
package bus

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Client writes to one ring and reads from another. Either side may be nil
// for a client built with New; a nil reader makes the client write-only.
type Client struct {
	tx   *ring.Ring
	rx   *ring.Reader
	opts options
	log  logrus.FieldLogger

	nonce uint64

	mu      sync.Mutex
	backlog []frame.Frame

	// Arenas mapped by Host or Connect, released by Close.
	arenas []*arena.Arena
	closed atomic.Bool
}

func New(tx *ring.Ring, rx *ring.Reader, opts ...Option) *Client {
	o := newOptions(opts)

	return &Client{
		tx:    tx,
		rx:    rx,
		opts:  o,
		log:   o.log,
		nonce: uint64(os.Getpid()) << 32,
	}
}

// Writer returns the ring the client writes to.
func (c *Client) Writer() *ring.Ring {
	return c.tx
}

// Reader returns the reader of the client's inbound ring, or nil.
func (c *Client) Reader() *ring.Reader {
	return c.rx
}

// Write publishes a single frame. A full ring is reported as ring.ErrFull and
// nothing is written; what to do about it is up to the caller.
func (c *Client) Write(t frame.Type, payload []byte) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if c.tx == nil {
		return errors.New("client has no outbound ring")
	}

	return c.tx.Write(t, payload)
}

// WriteOrWait retries a write that hits a full ring until timeout has passed.
func (c *Client) WriteOrWait(t frame.Type, payload []byte, timeout time.Duration) (err error) {
	deadline := time.Now().Add(timeout)
	var b ring.Backoff

	for {
		if err = c.Write(t, payload); !errors.Is(err, ring.ErrFull) {
			return
		}

		remaining := time.Until(deadline)

		if remaining <= 0 {
			return errors.Wrapf(err, "still full after %s", timeout)
		}

		b.Wait(remaining)
	}
}

// Read returns the next inbound frame, waiting up to timeout. Frames that
// arrived while Ping was waiting for its pong come first, in arrival order.
func (c *Client) Read(timeout time.Duration) (f frame.Frame, ok bool, err error) {
	if c.closed.Load() {
		return f, false, ErrClosed
	}

	if c.rx == nil {
		return f, false, ErrWriteOnly
	}

	if f, ok = c.popBacklog(); ok {
		return
	}

	return c.rx.Read(timeout)
}

func (c *Client) popBacklog() (f frame.Frame, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.backlog) == 0 {
		return
	}

	f = c.backlog[0]
	c.backlog[0] = frame.Frame{}
	c.backlog = c.backlog[1:]
	return f, true
}

func (c *Client) pushBacklog(f frame.Frame) {
	c.mu.Lock()
	c.backlog = append(c.backlog, f)
	c.mu.Unlock()
}

// Ping sends a nonce and waits for the pong that echoes it, returning the
// round trip time. A zero timeout means the client's ping timeout. Ping never
// waits longer than timeout, whether the ring is full or the peer is silent.
func (c *Client) Ping(timeout time.Duration) (rtt time.Duration, err error) {
	if c.closed.Load() {
		return 0, ErrClosed
	}

	if c.rx == nil {
		return 0, ErrWriteOnly
	}

	if timeout <= 0 {
		timeout = c.opts.pingTimeout
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, atomic.AddUint64(&c.nonce, 1))

	start := time.Now()
	deadline := start.Add(timeout)

	if err = c.WriteOrWait(frame.TypePing, payload, timeout); err != nil {
		if errors.Is(err, ring.ErrFull) {
			err = errors.Wrap(ErrNoPong, err.Error())
		}

		return
	}

	for {
		remaining := time.Until(deadline)

		if remaining <= 0 {
			return 0, errors.Wrapf(ErrNoPong, "after %s", timeout)
		}

		f, ok, rerr := c.rx.Read(remaining)

		if rerr != nil {
			return 0, rerr
		}

		if !ok {
			continue
		}

		if f.Type == frame.TypePong && bytes.Equal(f.Payload, payload) {
			return time.Since(start), nil
		}

		// A pong for an earlier ping that timed out is stale; anything else
		// belongs to the caller.
		if f.Type != frame.TypePong {
			c.pushBacklog(f)
		}
	}
}

// Close releases the reader slot and unmaps every arena the client mapped.
// Arenas created by Host are destroyed first.
func (c *Client) Close() (err error) {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	if c.rx != nil {
		if rerr := c.rx.Close(); rerr != nil && !errors.Is(rerr, ring.ErrReaderClosed) {
			err = rerr
		}
	}

	for _, a := range c.arenas {
		if a.Owner() {
			if derr := a.Destroy(); derr != nil && err == nil {
				err = derr
			}
		}

		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	c.arenas = nil
	return
}
