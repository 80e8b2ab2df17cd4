// Package intent holds the local half of the suggestion pipeline: the
// bounded event buffer, the cooldown policy, the heuristic gate that decides
// whether an event window is worth a remote classification call, and the
// analyzer that ties them to the remote classifier.
package intent

import (
	"sync"
	"time"

	"nudge/internal/types"
)

// EventBuffer is a bounded FIFO ring of recent observed events. Push never
// blocks and evicts the oldest entry once capacity is exceeded; insertion
// order is the only ordering guarantee.
type EventBuffer struct {
	mu       sync.Mutex
	entries  []types.BufferedEvent
	start    int // index of oldest entry
	count    int
	capacity int
}

// NewEventBuffer creates a ring with the given capacity (default 100).
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = 100
	}
	return &EventBuffer{
		entries:  make([]types.BufferedEvent, capacity),
		capacity: capacity,
	}
}

// Push appends an event, evicting the oldest when full.
func (b *EventBuffer) Push(ev types.ObservedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % b.capacity
	b.entries[idx] = types.BufferedEvent{Event: ev, BufferedAt: time.Now()}
	if b.count < b.capacity {
		b.count++
	} else {
		b.start = (b.start + 1) % b.capacity
	}
}

// Recent returns the last k entries in insertion order (oldest first).
// k <= 0 or k > len returns everything buffered.
func (b *EventBuffer) Recent(k int) []types.BufferedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if k > 0 && k < n {
		n = k
	}
	out := make([]types.BufferedEvent, n)
	for i := 0; i < n; i++ {
		idx := (b.start + b.count - n + i) % b.capacity
		out[i] = b.entries[idx]
	}
	return out
}

// Len returns the number of buffered events.
func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
