package ring

import (
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultStallAfter is how long the reader tolerates a claimed but
// unpublished frame before reporting ErrStalled.
const DefaultStallAfter = 2 * time.Second

type Option func(*Ring)

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Ring) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock sets the source of frame timestamps for Write.
func WithClock(now func() time.Time) Option {
	return func(r *Ring) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStallAfter overrides DefaultStallAfter. Zero or less disables stall reports.
func WithStallAfter(d time.Duration) Option {
	return func(r *Ring) {
		r.stallAfter = d
	}
}
