// Package cost defines the contract every cost model implements, plus the
// shared estimation types: contexts, estimates, actual-execution metrics
// and update outcomes. Concrete models live in the subpackages.
package cost

import (
	"querycost/pkg/plan"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
)

// Model is the contract for pluggable cost models. Estimation entry points
// are read-only with respect to model state and safe for concurrent use;
// they must not mutate the query or plan they are given.
type Model interface {
	// EstimateQueryCost parses the query into an operation set, resolves
	// statistics for the context's collection (default if absent), and
	// returns a per-operation cost map summing to TotalCost.
	EstimateQueryCost(q *query.Query, ctx *Context) (*Estimate, error)

	// EstimatePlanCost walks the plan tree pre-order, costs each node under
	// its positional id, and returns the flat node-cost map summing to
	// TotalCost. A nil stats catalog falls back to the model's own catalog.
	EstimatePlanCost(p *plan.Node, stats *statistics.Catalog, ctx *Context) (*Estimate, error)
}

// Updater is the optional learning capability of a model. Models that do
// not implement it are treated as not supporting updates. Update mutates
// model state and is serialized per model instance.
type Updater interface {
	// Update compares a fresh estimate for the plan against observed
	// metrics and adjusts internal state. The outcome reports whether the
	// adjustment was applied, rejected (e.g. as an anomaly) or unsupported
	// for this input.
	Update(p *plan.Node, actual *ActualMetrics, ctx *Context) (UpdateOutcome, error)
}

// UpdateOutcome reports what an Update call did with the observation.
type UpdateOutcome int

const (
	// UpdateUnsupported means the model cannot learn from this input.
	UpdateUnsupported UpdateOutcome = iota

	// UpdateApplied means internal state was adjusted.
	UpdateApplied

	// UpdateRejected means the observation was examined but deliberately
	// discarded, e.g. because its error exceeded the anomaly threshold.
	UpdateRejected
)

func (o UpdateOutcome) String() string {
	switch o {
	case UpdateUnsupported:
		return "unsupported"
	case UpdateApplied:
		return "applied"
	case UpdateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Applied reports whether the update actually changed model state.
func (o UpdateOutcome) Applied() bool {
	return o == UpdateApplied
}
