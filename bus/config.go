package bus

import (
	"time"

	"github.com/markvandendool/roxy-sub003/arena"
	"github.com/markvandendool/roxy-sub003/ring"
	"github.com/pkg/errors"
)

const (
	DefaultName        = "/roxy_brain"
	DefaultReplySuffix = ".reply"
	DefaultReplySize   = 64 << 20
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultPingTimeout = time.Second
)

// Config describes both rings of a bus: the inbox the daemon reads and the
// reply ring it writes.
type Config struct {
	Name        string        `mapstructure:"name"`
	Dir         string        `mapstructure:"dir"`
	Size        int64         `mapstructure:"size"`
	ReplyName   string        `mapstructure:"reply_name"`
	ReplySize   int64         `mapstructure:"reply_size"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`

	// StallAfter of zero means ring.DefaultStallAfter; a negative value
	// turns stall reports off.
	StallAfter time.Duration `mapstructure:"stall_after"`

	// WriteOnly clients attach the inbox only and cannot Read or Ping.
	WriteOnly bool `mapstructure:"write_only"`
}

func DefaultConfig() Config {
	return Config{
		Name:        DefaultName,
		Dir:         arena.DefaultDir,
		Size:        arena.DefaultSize,
		ReplySize:   DefaultReplySize,
		ReadTimeout: DefaultReadTimeout,
		PingTimeout: DefaultPingTimeout,
		StallAfter:  ring.DefaultStallAfter,
	}
}

// ReplyRing is the name of the reply ring, ReplyName or the inbox name plus
// DefaultReplySuffix.
func (c Config) ReplyRing() string {
	if c.ReplyName != "" {
		return c.ReplyName
	}

	return c.Name + DefaultReplySuffix
}

// Validate fills zero sizes and timeouts with defaults and rejects what cannot work.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("bus name is empty")
	}

	if c.ReplyRing() == c.Name {
		return errors.Errorf("reply ring %q must differ from the inbox", c.Name)
	}

	if c.Size <= 0 {
		c.Size = arena.DefaultSize
	}

	if c.ReplySize <= 0 {
		c.ReplySize = DefaultReplySize
	}

	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}

	if c.PingTimeout <= 0 {
		c.PingTimeout = DefaultPingTimeout
	}

	if c.StallAfter == 0 {
		c.StallAfter = ring.DefaultStallAfter
	}

	return nil
}

func (c Config) arenaOptions() []arena.Option {
	if c.Dir == "" {
		return nil
	}

	return []arena.Option{arena.WithDir(c.Dir)}
}
