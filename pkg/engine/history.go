package engine

import (
	"time"

	"querycost/pkg/cost"
	"querycost/pkg/plan"
	"querycost/pkg/query"
)

// HistoryEntry records one successful estimation call. Exactly one of
// Query and Plan is set, matching the estimate it produced.
type HistoryEntry struct {
	ID        string
	ModelName string
	Query     *query.Query
	Plan      *plan.Node
	Context   *cost.Context
	Estimate  *cost.Estimate
	At        time.Time
}

// historyBuffer is a fixed-capacity ring over HistoryEntry. Pushing past
// capacity overwrites the oldest entry in O(1). Not safe for concurrent
// use; the engine serializes access.
type historyBuffer struct {
	entries []HistoryEntry
	head    int // index of the oldest entry
	size    int
}

func newHistoryBuffer(capacity int) *historyBuffer {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &historyBuffer{entries: make([]HistoryEntry, capacity)}
}

func (b *historyBuffer) push(e HistoryEntry) {
	if b.size < len(b.entries) {
		b.entries[(b.head+b.size)%len(b.entries)] = e
		b.size++
		return
	}
	b.entries[b.head] = e
	b.head = (b.head + 1) % len(b.entries)
}

// snapshot returns the most recent limit entries in insertion order,
// oldest first. A limit <= 0 returns everything retained.
func (b *historyBuffer) snapshot(limit int) []HistoryEntry {
	if limit <= 0 || limit > b.size {
		limit = b.size
	}
	out := make([]HistoryEntry, 0, limit)
	for i := b.size - limit; i < b.size; i++ {
		out = append(out, b.entries[(b.head+i)%len(b.entries)])
	}
	return out
}

func (b *historyBuffer) clear() {
	b.head = 0
	b.size = 0
}

func (b *historyBuffer) length() int {
	return b.size
}
