package timex

import (
	"sync"
	"time"
)

// BallparkOffset is the maximum accepted distance between a client supplied
// timestamp and the server clock.
const BallparkOffset = 30 * time.Minute

// Clock returns the current time. Services depend on it instead of calling
// time.Now directly.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Real returns the wall clock, in UTC.
func Real() Clock { return realClock{} }

// FrozenClock always returns the same instant until Set or Advance is called.
type FrozenClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFrozenClock(t time.Time) *FrozenClock {
	return &FrozenClock{t: t.UTC()}
}

func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FrozenClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}

func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// InBallpark reports whether a and b are less than BallparkOffset apart.
func InBallpark(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < BallparkOffset
}
