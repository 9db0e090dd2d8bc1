package ring

import (
	"runtime"
	"time"
)

const (
	spinLimit = 64
	minSleep  = time.Microsecond
	maxSleep  = 500 * time.Microsecond
)

// Backoff yields the processor for the first few rounds, then sleeps with
// exponentially growing pauses. No pause ever exceeds the caller's limit.
// The zero value is ready to use.
type Backoff struct {
	spins int
	sleep time.Duration
}

func (b *Backoff) Wait(limit time.Duration) {
	if limit <= 0 {
		return
	}

	if b.spins < spinLimit {
		b.spins++
		runtime.Gosched()
		return
	}

	switch {
	case b.sleep == 0:
		b.sleep = minSleep
	case b.sleep < maxSleep:
		b.sleep *= 2

		if b.sleep > maxSleep {
			b.sleep = maxSleep
		}
	}

	d := b.sleep

	if d > limit {
		d = limit
	}

	time.Sleep(d)
}

func (b *Backoff) Reset() {
	b.spins = 0
	b.sleep = 0
}
