package bus

import (
	"context"
	"time"

	"github.com/markvandendool/roxy-sub003/frame"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/pkg/errors"
)

// Handler receives every inbound frame Serve does not answer itself.
// Returned errors are logged; they do not stop Serve.
type Handler interface {
	HandleFrame(ctx context.Context, f frame.Frame) error
}

type HandlerFunc func(ctx context.Context, f frame.Frame) error

func (fn HandlerFunc) HandleFrame(ctx context.Context, f frame.Frame) error {
	return fn(ctx, f)
}

// Serve drains the inbound ring until ctx is done. Pings are answered with
// a pong carrying the same payload; everything else goes to h, which may be
// nil. Serve returns nil once ctx is done and the error otherwise, for
// example when the ring turns out to be corrupt.
func (c *Client) Serve(ctx context.Context, h Handler) error {
	if c.rx == nil {
		return ErrWriteOnly
	}

	stalled := false

	for ctx.Err() == nil {
		f, ok, err := c.Read(c.opts.readTimeout)

		if errors.Is(err, ring.ErrStalled) {
			// The reader reports a stall on every call without waiting.
			// Keep polling at the read timeout in case the writer was only slow.
			if !stalled {
				c.log.WithError(err).Error("inbound ring stalled")
				stalled = true
			}

			select {
			case <-ctx.Done():
			case <-time.After(c.opts.readTimeout):
			}

			continue
		}

		if err != nil {
			return err
		}

		stalled = false

		if !ok {
			continue
		}

		if f.Type == frame.TypePing {
			if err = c.WriteOrWait(frame.TypePong, f.Payload, c.opts.pingTimeout); err != nil {
				c.log.WithError(err).Warn("pong not sent")
			}

			continue
		}

		if h == nil {
			continue
		}

		if err = h.HandleFrame(ctx, f); err != nil {
			c.log.WithError(err).WithField("type", f.Type.String()).Warn("handler failed")
		}
	}

	return nil
}
