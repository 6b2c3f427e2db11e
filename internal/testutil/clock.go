package testutil

import (
	"strconv"
	"sync/atomic"
	"time"

	"reeltrust/internal/reel"
)

// SignedAt is the instant FixedClock reports, and so the created_at of every
// package signed in tests.
var SignedAt = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock always reports the same instant.
type StubClock struct {
	now time.Time
}

// FixedClock returns a StubClock set to SignedAt.
func FixedClock() *StubClock {
	return &StubClock{now: SignedAt}
}

func (c *StubClock) Now() time.Time { return c.now }

// StubIDGenerator hands out "id-1", "id-2", ... in call order. Safe for
// concurrent use.
type StubIDGenerator struct {
	n atomic.Int64
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	return "id-" + strconv.FormatInt(g.n.Add(1), 10)
}

var (
	_ reel.Clock       = (*StubClock)(nil)
	_ reel.IDGenerator = (*StubIDGenerator)(nil)
)
