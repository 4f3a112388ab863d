package cost

import (
	"querycost/pkg/statistics"
	"querycost/pkg/types"
)

// Context carries caller-supplied hints for one estimation or update call.
// Every field is optional; zero values defer to statistics or model
// defaults. Contexts are read-only from the model's point of view and a
// nil *Context is always accepted.
type Context struct {
	// Collection selects the statistics entry to estimate against.
	Collection string

	// RowCount overrides the statistics row count when >0.
	RowCount int64

	// IndexType overrides the statistics index descriptor when set.
	IndexType types.IndexType

	// MemoryType overrides the statistics memory descriptor when set.
	MemoryType types.MemoryType

	// RowSize overrides the average row width in bytes when >0.
	RowSize int64

	// AvailableMemory and TotalMemory describe the host for
	// memory-pressure computation, in bytes. Zero defers to model defaults.
	AvailableMemory int64
	TotalMemory     int64

	// LearningRate and AnomalyThreshold tune adaptive updates. They are
	// injected by the engine when adaptive learning is enabled; zero defers
	// to model defaults.
	LearningRate     float64
	AnomalyThreshold float64
}

// CollectionName returns the context's collection, tolerating nil.
func (c *Context) CollectionName() string {
	if c == nil {
		return ""
	}
	return c.Collection
}

// ResolveEntry resolves the effective statistics entry for a call: catalog
// lookup by the context's collection, with context overrides applied on
// top. A nil catalog yields the built-in defaults; a nil context performs
// a plain default lookup.
func ResolveEntry(cat *statistics.Catalog, ctx *Context) statistics.Entry {
	var e statistics.Entry
	if cat != nil {
		e = cat.Lookup(ctx.CollectionName())
	} else {
		e = statistics.Entry{
			RowCount:   statistics.DefaultRowCount,
			IndexType:  types.IndexNone,
			MemoryType: types.MemoryLow,
		}
	}

	if ctx == nil {
		return e
	}
	if ctx.RowCount > 0 {
		e.RowCount = ctx.RowCount
	}
	if ctx.IndexType != "" {
		e.IndexType = ctx.IndexType
	}
	if ctx.MemoryType != "" {
		e.MemoryType = ctx.MemoryType
	}
	if ctx.RowSize > 0 {
		e.AvgRowSize = ctx.RowSize
	}
	return e
}
