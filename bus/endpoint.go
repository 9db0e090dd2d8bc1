package bus

import (
	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/sirupsen/logrus"
)

// Host creates both rings of the bus for the daemon that owns it. The
// daemon reads the inbox and writes replies. Closing the client destroys
// both rings.
func Host(cfg Config, opts ...Option) (c *Client, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}

	o := newOptions(opts)
	aopts := cfg.arenaOptions()
	var arenas []*arena.Arena

	defer func() {
		if err != nil {
			for _, a := range arenas {
				a.Destroy()
				a.Close()
			}
		}
	}()

	inbox, err := arena.Create(cfg.Name, cfg.Size, aopts...)

	if err != nil {
		return
	}

	arenas = append(arenas, inbox)
	replies, err := arena.Create(cfg.ReplyRing(), cfg.ReplySize, aopts...)

	if err != nil {
		return
	}

	arenas = append(arenas, replies)
	rx, err := ring.New(inbox, cfg.ringOptions(o)...).NewReader()

	if err != nil {
		return
	}

	c = New(ring.New(replies, cfg.ringOptions(o)...), rx, cfg.clientOptions(opts)...)
	c.arenas = arenas

	c.log.WithFields(logrus.Fields{
		"inbox":    inbox.Path(),
		"replies":  replies.Path(),
		"capacity": inbox.Capacity(),
	}).Info("bus created")

	return
}

// Connect attaches to a bus created by Host. The client writes to the inbox
// and, unless cfg.WriteOnly is set, reads the reply ring. Only one process at
// a time can read replies.
func Connect(cfg Config, opts ...Option) (c *Client, err error) {
	if err = cfg.Validate(); err != nil {
		return
	}

	o := newOptions(opts)
	aopts := cfg.arenaOptions()
	var arenas []*arena.Arena

	defer func() {
		if err != nil {
			for _, a := range arenas {
				a.Close()
			}
		}
	}()

	inbox, err := arena.Attach(cfg.Name, aopts...)

	if err != nil {
		return
	}

	arenas = append(arenas, inbox)
	tx := ring.New(inbox, cfg.ringOptions(o)...)

	if cfg.WriteOnly {
		c = New(tx, nil, cfg.clientOptions(opts)...)
		c.arenas = arenas
		return
	}

	replies, err := arena.Attach(cfg.ReplyRing(), aopts...)

	if err != nil {
		return
	}

	arenas = append(arenas, replies)
	rx, err := ring.New(replies, cfg.ringOptions(o)...).NewReader()

	if err != nil {
		return
	}

	c = New(tx, rx, cfg.clientOptions(opts)...)
	c.arenas = arenas
	return
}

func (c Config) ringOptions(o options) []ring.Option {
	return []ring.Option{
		ring.WithLogger(o.log),
		ring.WithStallAfter(c.StallAfter),
	}
}

// clientOptions puts the configured timeouts in front of opts, so explicit
// options still win.
func (c Config) clientOptions(opts []Option) []Option {
	return append([]Option{
		WithReadTimeout(c.ReadTimeout),
		WithPingTimeout(c.PingTimeout),
	}, opts...)
}
