package cost

import (
	"math"

	"querycost/pkg/plan"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
	"querycost/pkg/types"
)

// Estimate is the result of one estimation call.
//
// For query estimates Costs is keyed by operation name; for plan estimates
// it is keyed by positional node id ("node-0", "node-0-1", ...). In both
// cases TotalCost equals the sum of all entries and is finite and ≥0.
type Estimate struct {
	TotalCost float64
	Costs     map[string]float64

	// Query is set for query estimates, Plan for plan estimates; the other
	// is nil. Both are borrowed from the caller, never copies.
	Query *query.Query
	Plan  *plan.Node

	// Stats is the statistics entry the estimate was computed against
	// (after context overrides).
	Stats statistics.Entry
}

// Sum returns the sum of the component costs. It always equals TotalCost
// for estimates produced by the bundled models; tests use it to verify
// that invariant.
func (e *Estimate) Sum() float64 {
	var total float64
	for _, c := range e.Costs {
		total += c
	}
	return total
}

// ActualMetrics carries observed execution measurements fed back into a
// model. TotalCost is required for learning; everything else is optional.
type ActualMetrics struct {
	// TotalCost is the observed cost of executing the plan, in the same
	// unit the model estimates in.
	TotalCost float64

	// NodeCosts optionally breaks the observed cost down by positional
	// node id, matching the keys of a plan estimate.
	NodeCosts map[string]float64

	// MemoryUsed optionally reports total observed memory in bytes.
	MemoryUsed int64

	// OperationMemory optionally reports observed memory per operation.
	OperationMemory map[types.Operation]int64
}

// RelativeError returns |actual - estimated| / max(1, actual). The
// denominator floor keeps small observations from exploding the error.
func RelativeError(actual, estimated float64) float64 {
	return math.Abs(actual-estimated) / math.Max(1, actual)
}

// Finite reports whether v is a usable cost value: not NaN, not ±Inf and
// not negative.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
