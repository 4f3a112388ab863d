package statistical

import "querycost/pkg/types"

const (
	// Row-count tier boundaries
	SmallRowLimit  = 100       // Below this a collection is "small"
	MediumRowLimit = 10_000    // Below this a collection is "medium"
	LargeRowLimit  = 1_000_000 // Below this "large", at or above "huge"

	// Tier multipliers (applied per operation)
	SmallRowMultiplier  = 1.0
	MediumRowMultiplier = 2.0
	LargeRowMultiplier  = 5.0
	HugeRowMultiplier   = 10.0

	// WeightFloor is the minimum any learned weight may reach. The floor
	// prevents cost collapse: a zero or negative weight would make an
	// operation free and break estimate ordering.
	WeightFloor = 0.1

	// Adaptive-update defaults used when the context does not set them
	DefaultLearningRate     = 0.1
	DefaultAnomalyThreshold = 2.0
)

// baseCosts seeds the mutable weight table. Seek is cheaper than scan by
// an order of magnitude; join dominates everything else.
var baseCosts = map[types.Operation]float64{
	types.OpScan:      1.0,
	types.OpSeek:      0.1,
	types.OpJoin:      10.0,
	types.OpSort:      5.0,
	types.OpAggregate: 3.0,
	types.OpFilter:    0.5,
	types.OpProject:   0.2,
}

// indexMultipliers discount operations covered by an index (lower is better).
var indexMultipliers = map[types.IndexType]float64{
	types.IndexNone:    1.0,
	types.IndexPartial: 0.5,
	types.IndexFull:    0.1,
}

// memoryMultipliers penalize collections expected to spill out of memory.
var memoryMultipliers = map[types.MemoryType]float64{
	types.MemoryLow:    1.0,
	types.MemoryMedium: 2.0,
	types.MemoryHigh:   5.0,
}

// rowMultiplier buckets a row count into its tier multiplier.
func rowMultiplier(rows int64) float64 {
	switch {
	case rows < SmallRowLimit:
		return SmallRowMultiplier
	case rows < MediumRowLimit:
		return MediumRowMultiplier
	case rows < LargeRowLimit:
		return LargeRowMultiplier
	default:
		return HugeRowMultiplier
	}
}

func indexMultiplier(t types.IndexType) float64 {
	if m, ok := indexMultipliers[t]; ok {
		return m
	}
	return indexMultipliers[types.IndexNone]
}

func memoryMultiplier(t types.MemoryType) float64 {
	if m, ok := memoryMultipliers[t]; ok {
		return m
	}
	return memoryMultipliers[types.MemoryLow]
}

// BaseCosts returns a copy of the seed weight table.
func BaseCosts() map[types.Operation]float64 {
	out := make(map[types.Operation]float64, len(baseCosts))
	for op, w := range baseCosts {
		out[op] = w
	}
	return out
}
