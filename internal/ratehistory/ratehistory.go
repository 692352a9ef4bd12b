// Package ratehistory implements the bounded, mutex-guarded FIFO of
// rational samples each SourceDriver owns and the Publisher snapshots.
package ratehistory

import (
	"math/big"
	"sync"
	"time"
)

// History is a bounded FIFO of BigRational samples for one source, plus the
// timestamp of its last successful reading. Mutated only by the owning
// SourceDriver; read via SnapshotClone by the Publisher.
type History struct {
	mu             sync.Mutex
	queue          []*big.Rat
	capacity       int
	lastReadingTs  time.Time
}

// New creates an empty history with the given capacity (MaxRatesSaved).
func New(capacity int) *History {
	return &History{capacity: capacity}
}

// PushBack appends a sample, evicting the oldest entry if over capacity.
func (h *History) PushBack(r *big.Rat) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.queue = append(h.queue, r)
	if len(h.queue) > h.capacity {
		h.queue = h.queue[len(h.queue)-h.capacity:]
	}
	h.lastReadingTs = time.Now()
}

// PopFront removes and returns the oldest sample, if any.
func (h *History) PopFront() (*big.Rat, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.queue) == 0 {
		return nil, false
	}
	r := h.queue[0]
	h.queue = h.queue[1:]
	return r, true
}

// SnapshotClone returns a copy of the current queue contents, safe to use
// without holding the lock.
func (h *History) SnapshotClone() []*big.Rat {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*big.Rat, len(h.queue))
	for i, r := range h.queue {
		out[i] = new(big.Rat).Set(r)
	}
	return out
}

// Len reports the current queue length.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queue)
}

// LastReadingTime returns the timestamp of the most recent successful push.
func (h *History) LastReadingTime() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastReadingTs
}
