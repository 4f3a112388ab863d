// Package memory implements the memory-aware cost model: it estimates the
// working set a query or plan touches, classifies it into usage levels,
// folds in host memory pressure, and prices operations accordingly.
// Observed usage accumulates into running averages per operation and per
// collection.
package memory

import (
	"log/slog"
	"sync"
	"time"

	"querycost/pkg/cost"
	"querycost/pkg/logging"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
	"querycost/pkg/types"
)

// Model is the memory-aware cost model. Estimation is read-only and safe
// for concurrent use; Update is serialized by the internal mutex.
type Model struct {
	mu              sync.RWMutex
	cfg             Config
	stats           *statistics.Catalog
	opUsage         map[types.Operation]*runningAverage
	collectionUsage map[string]*runningAverage
	history         []UsageRecord
	log             *slog.Logger
}

// runningAverage accumulates incrementally: avg = total/count.
type runningAverage struct {
	total int64
	count int64
}

func (r *runningAverage) add(v int64) {
	r.total += v
	r.count++
}

func (r *runningAverage) average() int64 {
	if r.count == 0 {
		return 0
	}
	return r.total / r.count
}

// UsageRecord is one observed-usage history entry.
type UsageRecord struct {
	Collection string
	TotalUsage int64
	Level      UsageLevel
	At         time.Time
}

// New creates a memory-aware model with default tuning. A nil catalog gets
// a fresh one holding only the default entry.
func New(stats *statistics.Catalog) *Model {
	return NewWithConfig(stats, DefaultConfig())
}

// NewWithConfig creates a model with caller tuning; zero-valued config
// fields fall back to defaults.
func NewWithConfig(stats *statistics.Catalog, cfg Config) *Model {
	if stats == nil {
		stats = statistics.NewCatalog()
	}
	return &Model{
		cfg:             cfg.normalize(),
		stats:           stats,
		opUsage:         make(map[types.Operation]*runningAverage),
		collectionUsage: make(map[string]*runningAverage),
		log:             logging.WithModel("memory"),
	}
}

// Config returns the model's tuning. The maps inside are shared; treat
// the result as read-only.
func (m *Model) Config() Config {
	return m.cfg
}

// Statistics returns the catalog backing this model.
func (m *Model) Statistics() *statistics.Catalog {
	return m.stats
}

// EstimateUsage computes the memory-usage estimate for a query: base
// working set (rows × row size) plus a contribution for every active
// operation with a byte rate.
func (m *Model) EstimateUsage(q *query.Query, ctx *cost.Context) Usage {
	ops := query.ParseOperations(q)
	entry := cost.ResolveEntry(m.stats, ctx)
	return m.usageFor(ops.Active(), entry.RowCount, m.rowSize(entry))
}

// EstimatePressure computes host memory pressure from the context,
// falling back to the configured defaults.
func (m *Model) EstimatePressure(ctx *cost.Context) Pressure {
	available := m.cfg.AvailableMemory
	total := m.cfg.TotalMemory
	if ctx != nil {
		if ctx.AvailableMemory > 0 {
			available = ctx.AvailableMemory
		}
		if ctx.TotalMemory > 0 {
			total = ctx.TotalMemory
		}
	}

	ratio := 1 - float64(available)/float64(total)
	level := classifyPressure(ratio)
	return Pressure{
		AvailableMemory: available,
		TotalMemory:     total,
		Ratio:           ratio,
		Level:           level,
		Factor:          m.cfg.PressureFactors[level],
	}
}

// EstimateQueryCost prices each active operation that has a base cost:
// base × usage-level weight × pressure factor. The usage level is the
// query's single classification, not per operation.
func (m *Model) EstimateQueryCost(q *query.Query, ctx *cost.Context) (*cost.Estimate, error) {
	ops := query.ParseOperations(q)
	entry := cost.ResolveEntry(m.stats, ctx)
	usage := m.usageFor(ops.Active(), entry.RowCount, m.rowSize(entry))
	pressure := m.EstimatePressure(ctx)
	levelWeight := m.cfg.UsageWeights[usage.Level]

	costs := make(map[string]float64)
	for _, op := range ops.Active() {
		if base, ok := m.cfg.BaseCosts[op]; ok {
			costs[op.String()] = base * levelWeight * pressure.Factor
		}
	}

	total := sumCosts(costs)
	if !cost.Finite(total) {
		return nil, qerr.Estimation("ESTIMATION_FAILED",
			"memory-aware query cost is not a finite non-negative number", "")
	}

	return &cost.Estimate{
		TotalCost: total,
		Costs:     costs,
		Query:     q,
		Stats:     entry,
	}, nil
}

// EstimatePlanCost walks the plan pre-order, assigning each node a usage
// classification from its own row count and then a cost under its
// positional id. Node types without a base cost appear with zero cost.
// A nil plan falls back to a bare scan.
func (m *Model) EstimatePlanCost(p *plan.Node, stats *statistics.Catalog, ctx *cost.Context) (*cost.Estimate, error) {
	if stats == nil {
		stats = m.stats
	}
	if p == nil {
		p = &plan.Node{Type: types.OpScan.String()}
	}
	pressure := m.EstimatePressure(ctx)

	costs := make(map[string]float64, p.Size())
	plan.Walk(p, func(id string, n *plan.Node) {
		op, ok := n.Operation()
		if !ok {
			costs[id] = 0
			return
		}
		base, priced := m.cfg.BaseCosts[op]
		if !priced {
			costs[id] = 0
			return
		}
		usage := m.nodeUsage(n, stats, ctx)
		costs[id] = base * m.cfg.UsageWeights[usage.Level] * pressure.Factor
	})

	total := sumCosts(costs)
	if !cost.Finite(total) {
		return nil, qerr.Estimation("ESTIMATION_FAILED",
			"memory-aware plan cost is not a finite non-negative number", "")
	}

	return &cost.Estimate{
		TotalCost: total,
		Costs:     costs,
		Plan:      p,
		Stats:     cost.ResolveEntry(stats, ctx),
	}, nil
}

// PlanUsage returns the per-node usage estimates for a plan, keyed by
// positional id. Useful for inspection and explain output.
func (m *Model) PlanUsage(p *plan.Node, stats *statistics.Catalog, ctx *cost.Context) map[string]Usage {
	if stats == nil {
		stats = m.stats
	}
	out := make(map[string]Usage, p.Size())
	plan.Walk(p, func(id string, n *plan.Node) {
		out[id] = m.nodeUsage(n, stats, ctx)
	})
	return out
}

// Update accumulates observed memory usage into the per-operation and
// per-collection running averages and appends to the capped history.
// Observed figures come from the metrics when present, otherwise from the
// model's own recomputed usage for the plan.
func (m *Model) Update(p *plan.Node, actual *cost.ActualMetrics, ctx *cost.Context) (cost.UpdateOutcome, error) {
	if actual == nil {
		return cost.UpdateUnsupported, nil
	}

	perOp, perCollection := m.observedUsage(p, actual, ctx)

	total := actual.MemoryUsed
	if total <= 0 {
		for _, v := range perOp {
			total += v
		}
	}
	level := m.cfg.UsageThresholds.Classify(total)

	collection := ctx.CollectionName()
	if collection == "" && p != nil {
		collection = p.Collection
	}

	m.mu.Lock()
	for op, v := range perOp {
		avg := m.opUsage[op]
		if avg == nil {
			avg = &runningAverage{}
			m.opUsage[op] = avg
		}
		avg.add(v)
	}
	for name, v := range perCollection {
		avg := m.collectionUsage[name]
		if avg == nil {
			avg = &runningAverage{}
			m.collectionUsage[name] = avg
		}
		avg.add(v)
	}

	m.history = append(m.history, UsageRecord{
		Collection: collection,
		TotalUsage: total,
		Level:      level,
		At:         time.Now(),
	})
	if excess := len(m.history) - m.cfg.HistorySize; excess > 0 {
		m.history = m.history[excess:]
	}
	m.mu.Unlock()

	m.log.Debug("usage recorded",
		"collection", collection,
		"total_usage", total,
		"level", level.String())
	return cost.UpdateApplied, nil
}

// observedUsage derives per-operation and per-collection usage for an
// update: observed figures win, recomputed estimates fill the gaps.
func (m *Model) observedUsage(p *plan.Node, actual *cost.ActualMetrics, ctx *cost.Context) (map[types.Operation]int64, map[string]int64) {
	perOp := make(map[types.Operation]int64)
	perCollection := make(map[string]int64)

	if len(actual.OperationMemory) > 0 {
		for op, v := range actual.OperationMemory {
			perOp[op] = v
		}
		if name := ctx.CollectionName(); name != "" {
			var total int64
			for _, v := range perOp {
				total += v
			}
			perCollection[name] = total
		}
		return perOp, perCollection
	}

	plan.Walk(p, func(_ string, n *plan.Node) {
		usage := m.nodeUsage(n, m.stats, ctx)
		op, ok := n.Operation()
		if ok {
			perOp[op] += usage.Total
		}
		if n.Collection != "" {
			perCollection[n.Collection] += usage.Total
		}
	})
	return perOp, perCollection
}

// AverageOperationUsage returns the learned average usage for an
// operation. The boolean reports whether any observation exists.
func (m *Model) AverageOperationUsage(op types.Operation) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	avg, ok := m.opUsage[op]
	if !ok {
		return 0, false
	}
	return avg.average(), true
}

// AverageCollectionUsage returns the learned average usage for a
// collection. The boolean reports whether any observation exists.
func (m *Model) AverageCollectionUsage(name string) (int64, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	avg, ok := m.collectionUsage[name]
	if !ok {
		return 0, false
	}
	return avg.average(), true
}

// History returns a copy of the usage history in insertion order, oldest
// first.
func (m *Model) History() []UsageRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]UsageRecord, len(m.history))
	copy(out, m.history)
	return out
}

// usageFor builds the usage estimate for a set of active operations.
func (m *Model) usageFor(active []types.Operation, rows, rowSize int64) Usage {
	base := rows * rowSize
	perOp := make(map[types.Operation]int64)
	total := base
	for _, op := range active {
		rate, ok := m.cfg.BytesPerRow[op]
		if !ok {
			continue
		}
		bytes := rows * rate
		perOp[op] = bytes
		total += bytes
	}
	return Usage{
		Base:         base,
		PerOperation: perOp,
		Total:        total,
		Level:        m.cfg.UsageThresholds.Classify(total),
	}
}

// nodeUsage builds the usage estimate for a single plan node, resolving
// rows and row size from the node with statistics fallback.
func (m *Model) nodeUsage(n *plan.Node, stats *statistics.Catalog, ctx *cost.Context) Usage {
	name := n.Collection
	if name == "" {
		name = ctx.CollectionName()
	}
	entry := stats.Lookup(name)
	rows := n.Rows(entry.RowCount)

	rowSize := entry.AvgRowSize
	if ctx != nil && ctx.RowSize > 0 {
		rowSize = ctx.RowSize
	}
	if rowSize <= 0 {
		rowSize = m.cfg.RowSize
	}

	if op, ok := n.Operation(); ok {
		return m.usageFor([]types.Operation{op}, rows, rowSize)
	}
	return m.usageFor(nil, rows, rowSize)
}

func (m *Model) rowSize(entry statistics.Entry) int64 {
	if entry.AvgRowSize > 0 {
		return entry.AvgRowSize
	}
	return m.cfg.RowSize
}

func sumCosts(costs map[string]float64) float64 {
	var total float64
	for _, c := range costs {
		total += c
	}
	return total
}
