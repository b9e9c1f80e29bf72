package task

import (
	"fmt"
	"sync"
	"time"
)

// idTimeLayout is fixed-width so IDs sort lexicographically by creation time.
const idTimeLayout = "20060102T150405.000000Z"

// maxIDCounter is the largest counter that fits the 6-digit suffix.
const maxIDCounter = 999999

// IDGenerator yields task IDs of the form <UTC timestamp>-<6-digit counter>.
// IDs from one generator are unique and strictly increasing, even when the
// clock stalls or steps backwards. A full counter moves the timestamp one
// microsecond forward.
type IDGenerator struct {
	mu      sync.Mutex
	now     func() time.Time
	last    time.Time
	counter int
}

// NewIDGenerator creates a generator using the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// NewIDGeneratorWithClock creates a generator with an injected clock.
func NewIDGeneratorWithClock(now func() time.Time) *IDGenerator {
	return &IDGenerator{now: now}
}

// Next returns the next ID.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UTC().Truncate(time.Microsecond)
	switch {
	case ts.After(g.last):
		g.last = ts
		g.counter = 0
	case g.counter >= maxIDCounter:
		g.last = g.last.Add(time.Microsecond)
		g.counter = 0
	default:
		g.counter++
	}
	return fmt.Sprintf("%s-%06d", g.last.Format(idTimeLayout), g.counter)
}
