package evsel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Counter is a write-only diagnostic sink. Implementations must be safe for
// concurrent use.
type Counter interface {
	Inc(name string, run int)
}

// Names of the collision counters.
const (
	counterColAll = "hColCounterAll"
	counterColAcc = "hColCounterAcc"
)

type counterKey struct {
	name string
	run  int
}

// MapCounter is an in-memory Counter.
type MapCounter struct {
	counts map[counterKey]int
	sync.Mutex
}

// NewMapCounter returns an empty MapCounter.
func NewMapCounter() *MapCounter {
	return &MapCounter{counts: make(map[counterKey]int)}
}

// Inc implements Counter.
func (mc *MapCounter) Inc(name string, run int) {
	mc.Lock()
	defer mc.Unlock()
	mc.counts[counterKey{name, run}]++
}

// Get returns the count of name for run.
func (mc *MapCounter) Get(name string, run int) int {
	mc.Lock()
	defer mc.Unlock()
	return mc.counts[counterKey{name, run}]
}

// String lists every non-zero counter, one per line.
func (mc *MapCounter) String() string {
	mc.Lock()
	defer mc.Unlock()
	lines := make([]string, 0, len(mc.counts))
	for k, v := range mc.counts {
		lines = append(lines, fmt.Sprintf("%s[%d]=%d", k.name, k.run, v))
	}
	sort.Strings(lines)
	return strings.Join(lines, "\n")
}

// MultiCounter fans one increment out to several counters.
type MultiCounter []Counter

// Inc implements Counter.
func (m MultiCounter) Inc(name string, run int) {
	for _, c := range m {
		if c != nil {
			c.Inc(name, run)
		}
	}
}
