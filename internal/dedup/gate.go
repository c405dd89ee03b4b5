// Package dedup suppresses repeated reads of a tag left in range of the
// proximity reader, so downstream consumers only see "new tag entered
// range" events.
package dedup

import (
	"sync"

	"github.com/nodegate-io/nodegate/internal/hal"
)

// Gate remembers the last admitted tag id and filters raw reads against it.
//
// A read with no tag present does NOT clear the memory: removing tag A and
// re-presenting the same tag later produces no new event unless a different
// tag was admitted in between. The original firmware relies on this as its
// "card left on the reader" debounce, so the behavior is kept as-is rather
// than reset on empty reads.
type Gate struct {
	mu   sync.Mutex
	last hal.TagID
	seen bool
}

// New returns a gate with empty memory; the first present read is always admitted.
func New() *Gate {
	return &Gate{}
}

// Observe filters one raw read. It returns the tag id and true only when a
// tag is present and differs from the last admitted id; admitting a tag
// updates the memory.
func (g *Gate) Observe(id hal.TagID, present bool) (hal.TagID, bool) {
	if !present {
		return "", false
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seen && g.last == id {
		return "", false
	}
	g.last = id
	g.seen = true
	return id, true
}

// Last returns the currently remembered tag id, if any.
func (g *Gate) Last() (hal.TagID, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, g.seen
}

// Reset clears the memory. A restarted controller starts with an empty
// gate, mirroring the loss of in-memory state across a reboot.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = ""
	g.seen = false
}
