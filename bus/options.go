package bus

import (
	"time"

	"github.com/sirupsen/logrus"
)

type options struct {
	log         logrus.FieldLogger
	readTimeout time.Duration
	pingTimeout time.Duration
}

type Option func(*options)

func WithLogger(log logrus.FieldLogger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithReadTimeout sets how long each poll of Serve waits before checking its
// context again.
func WithReadTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

// WithPingTimeout sets the timeout Ping uses when called with zero.
func WithPingTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.pingTimeout = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		log:         logrus.StandardLogger(),
		readTimeout: DefaultReadTimeout,
		pingTimeout: DefaultPingTimeout,
	}

	for _, opt := range opts {
		opt(&o)
	}

	return o
}
