// Package statistics holds per-collection statistics used by cost models:
// row counts plus index and memory descriptors. Entries are seeded by an
// external catalog and can be refined from observed cardinalities.
package statistics

import (
	"sort"
	"sync"

	"querycost/pkg/types"
)

// DefaultCollection is the catalog key used as fallback for collections
// without recorded statistics.
const DefaultCollection = "default"

// DefaultRowCount is assumed for collections with no recorded statistics.
const DefaultRowCount = 1000

// Entry describes one collection's statistics.
type Entry struct {
	// RowCount is the recorded number of rows, always ≥0.
	RowCount int64

	// IndexType describes index coverage for the collection.
	IndexType types.IndexType

	// MemoryType describes expected memory residency.
	MemoryType types.MemoryType

	// AvgRowSize is the average row width in bytes. Zero means unknown.
	AvgRowSize int64
}

// rowSample accumulates observed cardinalities for one collection.
type rowSample struct {
	count int64
	total int64
}

// Catalog maps collection names to statistics entries. A default entry is
// always present and serves as fallback for unknown collections. Safe for
// concurrent use.
type Catalog struct {
	mu       sync.RWMutex
	entries  map[string]Entry
	observed map[string]rowSample
}

// NewCatalog creates a catalog seeded with the default fallback entry.
func NewCatalog() *Catalog {
	return &Catalog{
		entries: map[string]Entry{
			DefaultCollection: {
				RowCount:   DefaultRowCount,
				IndexType:  types.IndexNone,
				MemoryType: types.MemoryLow,
			},
		},
		observed: make(map[string]rowSample),
	}
}

// Set records statistics for a collection, replacing any existing entry.
// Negative row counts are clamped to zero.
func (c *Catalog) Set(collection string, e Entry) {
	if collection == "" {
		return
	}
	if e.RowCount < 0 {
		e.RowCount = 0
	}
	if e.IndexType == "" {
		e.IndexType = types.IndexNone
	}
	if e.MemoryType == "" {
		e.MemoryType = types.MemoryLow
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[collection] = e
	delete(c.observed, collection)
}

// Lookup resolves statistics for a collection, falling back to the default
// entry when the collection is unknown or empty.
func (c *Catalog) Lookup(collection string) Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if collection != "" {
		if e, ok := c.entries[collection]; ok {
			return e
		}
	}
	return c.entries[DefaultCollection]
}

// Has reports whether the collection has its own entry (the default entry
// does not count unless asked for by name).
func (c *Catalog) Has(collection string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[collection]
	return ok
}

// SetRowCount updates only the row count for a collection, creating the
// entry from the default template when it does not exist yet. Used when
// execution feedback reveals an observed cardinality.
func (c *Catalog) SetRowCount(collection string, rows int64) {
	if collection == "" {
		return
	}
	if rows < 0 {
		rows = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[collection]
	if !ok {
		e = c.entries[DefaultCollection]
	}
	e.RowCount = rows
	c.entries[collection] = e
	delete(c.observed, collection)
}

// ObserveRowCount folds an observed cardinality into the running average for
// a collection (avg = total/count, each observation equal weight) and stores
// the average as the entry's row count, creating the entry from the default
// template when needed. An explicit Set or SetRowCount discards the series;
// the next observation starts a fresh one. Returns the updated average.
func (c *Catalog) ObserveRowCount(collection string, rows int64) int64 {
	if collection == "" {
		return 0
	}
	if rows < 0 {
		rows = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.observed[collection]
	s.count++
	s.total += rows
	c.observed[collection] = s
	avg := s.total / s.count

	e, ok := c.entries[collection]
	if !ok {
		e = c.entries[DefaultCollection]
	}
	e.RowCount = avg
	c.entries[collection] = e
	return avg
}

// Collections returns all known collection names in sorted order,
// including the default entry.
func (c *Catalog) Collections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of all entries. The copy is detached from the
// catalog and safe to read without synchronization.
func (c *Catalog) Snapshot() map[string]Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Entry, len(c.entries))
	for name, e := range c.entries {
		out[name] = e
	}
	return out
}
