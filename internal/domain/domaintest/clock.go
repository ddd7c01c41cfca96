// Package domaintest provides test doubles for the domain package.
package domaintest

import (
	"sync/atomic"
	"time"

	"github.com/aelexs/websocket-gateway/internal/domain"
)

// FakeClock is a wall clock that only moves when told to. Safe for use from
// the recorder goroutine while the test advances it.
type FakeClock struct {
	ns atomic.Int64
}

func NewFakeClock(t time.Time) *FakeClock {
	c := &FakeClock{}
	c.Set(t)
	return c
}

func (c *FakeClock) Now() time.Time {
	return time.Unix(0, c.ns.Load()).UTC()
}

func (c *FakeClock) Advance(d time.Duration) {
	c.ns.Add(int64(d))
}

func (c *FakeClock) Set(t time.Time) {
	c.ns.Store(t.UnixNano())
}

var _ domain.Clock = (*FakeClock)(nil)
