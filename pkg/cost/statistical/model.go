// Package statistical implements the bucketed statistical cost model:
// row counts map to tier multipliers, index and memory descriptors scale
// per-operation weights, and observed execution metrics nudge the weights
// over time.
package statistical

import (
	"log/slog"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"querycost/pkg/cost"
	"querycost/pkg/logging"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
	"querycost/pkg/types"
)

// Model estimates cost from bucketed statistics and learns from feedback.
// Estimation is read-only and safe for concurrent use; updates are
// serialized by the internal mutex.
type Model struct {
	mu      sync.RWMutex
	weights map[types.Operation]float64
	stats   *statistics.Catalog
	log     *slog.Logger
}

// New creates a statistical model backed by the given catalog. A nil
// catalog gets a fresh one holding only the default entry. Weights are
// seeded from the base cost table.
func New(stats *statistics.Catalog) *Model {
	if stats == nil {
		stats = statistics.NewCatalog()
	}
	return &Model{
		weights: BaseCosts(),
		stats:   stats,
		log:     logging.WithModel("statistical"),
	}
}

// Statistics returns the catalog backing this model.
func (m *Model) Statistics() *statistics.Catalog {
	return m.stats
}

// EstimateQueryCost derives the query's operation set and prices each
// active operation against the resolved statistics entry. Absent
// operations contribute no cost key at all. Limit and skip carry no weight
// in this model and are priced elsewhere.
func (m *Model) EstimateQueryCost(q *query.Query, ctx *cost.Context) (*cost.Estimate, error) {
	ops := query.ParseOperations(q)
	entry := cost.ResolveEntry(m.stats, ctx)
	weights := m.snapshotWeights()

	rowMult := rowMultiplier(entry.RowCount)
	idxMult := indexMultiplier(entry.IndexType)
	memMult := memoryMultiplier(entry.MemoryType)

	costs := make(map[string]float64)
	if ops.Scan {
		costs[types.OpScan.String()] = weights[types.OpScan] * rowMult * idxMult * memMult
	}
	if ops.Filter {
		costs[types.OpFilter.String()] = weights[types.OpFilter] * rowMult * memMult
	}
	if ops.Join {
		costs[types.OpJoin.String()] = weights[types.OpJoin] * rowMult * rowMult * memMult
	}
	if ops.Sort {
		costs[types.OpSort.String()] = weights[types.OpSort] * rowMult * logRows(entry.RowCount) * memMult
	}
	if ops.Aggregate {
		costs[types.OpAggregate.String()] = weights[types.OpAggregate] * rowMult * memMult
	}
	if ops.Project {
		costs[types.OpProject.String()] = weights[types.OpProject] * rowMult
	}

	total := sum(costs)
	if !cost.Finite(total) {
		return nil, qerr.Estimation("ESTIMATION_FAILED",
			"query cost is not a finite non-negative number", "")
	}

	return &cost.Estimate{
		TotalCost: total,
		Costs:     costs,
		Query:     q,
		Stats:     entry,
	}, nil
}

// EstimatePlanCost walks the plan pre-order and prices every node under
// its positional id. Node types without a weight (limit, skip, unknown
// operators) appear with zero cost so the map covers the whole tree.
// A nil plan falls back to a bare scan.
func (m *Model) EstimatePlanCost(p *plan.Node, stats *statistics.Catalog, ctx *cost.Context) (*cost.Estimate, error) {
	if stats == nil {
		stats = m.stats
	}
	if p == nil {
		p = &plan.Node{Type: types.OpScan.String()}
	}
	weights := m.snapshotWeights()

	costs := make(map[string]float64, p.Size())
	plan.Walk(p, func(id string, n *plan.Node) {
		costs[id] = m.nodeCost(n, stats, ctx, weights)
	})

	total := sum(costs)
	if !cost.Finite(total) {
		return nil, qerr.Estimation("ESTIMATION_FAILED",
			"plan cost is not a finite non-negative number", "")
	}

	return &cost.Estimate{
		TotalCost: total,
		Costs:     costs,
		Plan:      p,
		Stats:     cost.ResolveEntry(stats, ctx),
	}, nil
}

// nodeCost prices a single plan node. Node fields override the statistics
// entry resolved for the node's collection; nodes without a collection
// inherit the context's.
func (m *Model) nodeCost(n *plan.Node, stats *statistics.Catalog, ctx *cost.Context, weights map[types.Operation]float64) float64 {
	name := n.Collection
	if name == "" {
		name = ctx.CollectionName()
	}
	entry := stats.Lookup(name)
	rows := n.Rows(entry.RowCount)
	idx := n.IndexType
	if idx == "" {
		idx = entry.IndexType
	}
	mem := n.MemoryType
	if mem == "" {
		mem = entry.MemoryType
	}

	rowMult := rowMultiplier(rows)
	memMult := memoryMultiplier(mem)

	op, ok := n.Operation()
	if !ok {
		return 0
	}
	switch op {
	case types.OpScan, types.OpSeek:
		return weights[op] * rowMult * indexMultiplier(idx) * memMult
	case types.OpFilter:
		return weights[op] * rowMult * memMult
	case types.OpJoin:
		return weights[op] * rowMult * rowMult * memMult
	case types.OpSort:
		return weights[op] * rowMult * logRows(rows) * memMult
	case types.OpAggregate:
		return weights[op] * rowMult * memMult
	case types.OpProject:
		return weights[op] * rowMult
	default:
		return 0
	}
}

// Update recomputes the plan estimate, measures the relative error against
// the observed metrics, and nudges every weight by weight × error ×
// learningRate (floored at WeightFloor). Observations whose error exceeds
// the anomaly threshold are rejected without touching the weights. The
// outcome is only meaningful when the returned error is nil.
func (m *Model) Update(p *plan.Node, actual *cost.ActualMetrics, ctx *cost.Context) (cost.UpdateOutcome, error) {
	if actual == nil {
		return cost.UpdateUnsupported, nil
	}

	est, err := m.EstimatePlanCost(p, nil, ctx)
	if err != nil {
		return cost.UpdateUnsupported, err
	}

	totalErr := cost.RelativeError(actual.TotalCost, est.TotalCost)

	// Per-node errors exist only where estimated and observed expose the
	// same node id. Their mean feeds the anomaly decision alongside the
	// total error.
	var nodeErrs []float64
	for id, actualCost := range actual.NodeCosts {
		if estCost, ok := est.Costs[id]; ok {
			nodeErrs = append(nodeErrs, cost.RelativeError(actualCost, estCost))
		}
	}

	learningRate := DefaultLearningRate
	threshold := DefaultAnomalyThreshold
	if ctx != nil {
		if ctx.LearningRate > 0 {
			learningRate = ctx.LearningRate
		}
		if ctx.AnomalyThreshold > 0 {
			threshold = ctx.AnomalyThreshold
		}
	}

	anomalous := totalErr > threshold
	if !anomalous && len(nodeErrs) > 0 {
		anomalous = stat.Mean(nodeErrs, nil) > threshold
	}
	if anomalous {
		m.log.Warn("observation rejected as anomaly",
			"total_error", totalErr,
			"threshold", threshold,
			"estimated", est.TotalCost,
			"actual", actual.TotalCost)
		return cost.UpdateRejected, nil
	}

	m.mu.Lock()
	for op, w := range m.weights {
		m.weights[op] = math.Max(WeightFloor, w+w*totalErr*learningRate)
	}
	m.mu.Unlock()

	m.log.Debug("weights adjusted",
		"total_error", totalErr,
		"learning_rate", learningRate,
		"node_errors", len(nodeErrs))
	return cost.UpdateApplied, nil
}

// Weights returns a copy of the current weight table.
func (m *Model) Weights() map[types.Operation]float64 {
	return m.snapshotWeights()
}

// SetWeights replaces weights for the given operations, clamping each to
// the floor. Operations absent from w keep their current weight. Used to
// restore learned weights from the feedback store.
func (m *Model) SetWeights(w map[types.Operation]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for op, v := range w {
		if _, known := m.weights[op]; !known {
			continue
		}
		m.weights[op] = math.Max(WeightFloor, v)
	}
}

func (m *Model) snapshotWeights() map[types.Operation]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[types.Operation]float64, len(m.weights))
	for op, w := range m.weights {
		out[op] = w
	}
	return out
}

// logRows is the sort complexity term: log2 of the row count with a floor
// of 2 rows so empty and single-row sorts still cost something.
func logRows(rows int64) float64 {
	if rows < 2 {
		rows = 2
	}
	return math.Log2(float64(rows))
}

func sum(costs map[string]float64) float64 {
	var total float64
	for _, c := range costs {
		total += c
	}
	return total
}
