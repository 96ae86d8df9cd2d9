package kafka

import (
	"sync"
	"time"
)

// commitClock decides when marked offsets should be flushed. Marking is
// cheap; committing is a broker round trip, so it happens at most once per
// interval.
type commitClock struct {
	every time.Duration
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func newCommitClock(every time.Duration) *commitClock {
	return &commitClock{every: every, now: time.Now}
}

// due reports whether a commit should happen now and, if so, restarts the
// interval.
func (c *commitClock) due() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if c.last.IsZero() || now.Sub(c.last) >= c.every {
		c.last = now
		return true
	}
	return false
}
