package memory

import (
	"testing"

	"querycost/pkg/cost"
	"querycost/pkg/plan"
	"querycost/pkg/query"
	"querycost/pkg/types"
)

// neutralCtx pins pressure to the available level (factor 1.0) so cost
// assertions only exercise the usage path.
func neutralCtx() *cost.Context {
	return &cost.Context{AvailableMemory: 8 * GiB, TotalMemory: 8 * GiB}
}

func TestClassifyUsageLevels(t *testing.T) {
	th := DefaultConfig().UsageThresholds

	tests := []struct {
		total int64
		want  UsageLevel
	}{
		{0, UsageLow},
		{5 * MiB, UsageLow},
		{50 * MiB, UsageLow},
		{100*MiB + 1, UsageMedium},
		{400 * MiB, UsageMedium},
		{500*MiB + 1, UsageHigh},
		{1 * GiB, UsageHigh},
		{1*GiB + 1, UsageCritical},
		{20 * GiB, UsageCritical},
	}

	for _, tt := range tests {
		if got := th.Classify(tt.total); got != tt.want {
			t.Errorf("Classify(%d) = %v, want %v", tt.total, got, tt.want)
		}
	}
}

func TestClassifyPressureLevels(t *testing.T) {
	m := New(nil)

	tests := []struct {
		name      string
		available int64
		total     int64
		want      PressureLevel
	}{
		{"all free", 8 * GiB, 8 * GiB, PressureAvailable},
		{"quarter used is still available", 6 * GiB, 8 * GiB, PressureAvailable},
		{"low", 5 * GiB, 8 * GiB, PressureLow},
		{"medium", 3 * GiB, 8 * GiB, PressureMedium},
		{"high", 1 * GiB, 8 * GiB, PressureHigh},
		{"critical", 512 * MiB, 8 * GiB, PressureCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := m.EstimatePressure(&cost.Context{
				AvailableMemory: tt.available,
				TotalMemory:     tt.total,
			})
			if p.Level != tt.want {
				t.Errorf("pressure level = %v (ratio %v), want %v", p.Level, p.Ratio, tt.want)
			}
		})
	}
}

func TestEstimatePressureDefaults(t *testing.T) {
	p := New(nil).EstimatePressure(nil)

	// Defaults are 1GiB available of 8GiB total: ratio 0.875 → high.
	if p.Level != PressureHigh {
		t.Errorf("default pressure level = %v, want high", p.Level)
	}
	if p.Factor != DefaultConfig().PressureFactors[PressureHigh] {
		t.Errorf("factor = %v", p.Factor)
	}
}

func TestEstimateUsage(t *testing.T) {
	m := New(nil)

	u := m.EstimateUsage(
		&query.Query{Collection: "c", Join: map[string]any{"on": "id"}},
		&cost.Context{RowCount: 50},
	)

	if u.Base != 50*DefaultRowSize {
		t.Errorf("Base = %d, want %d", u.Base, 50*DefaultRowSize)
	}
	if u.PerOperation[types.OpScan] != 50*100 {
		t.Errorf("scan usage = %d, want 5000", u.PerOperation[types.OpScan])
	}
	if u.PerOperation[types.OpJoin] != 50*300 {
		t.Errorf("join usage = %d, want 15000", u.PerOperation[types.OpJoin])
	}
	wantTotal := u.Base + u.PerOperation[types.OpScan] + u.PerOperation[types.OpJoin]
	if u.Total != wantTotal {
		t.Errorf("Total = %d, want %d", u.Total, wantTotal)
	}
	if u.Level != UsageLow {
		t.Errorf("Level = %v, want low", u.Level)
	}
}

func TestUsageLevelMonotonicInRowCount(t *testing.T) {
	m := New(nil)
	q := &query.Query{Collection: "c"}

	prev := UsageLevel(-1)
	for _, rows := range []int64{10, 1_000, 100_000, 1_000_000, 5_000_000, 10_000_000, 50_000_000} {
		u := m.EstimateUsage(q, &cost.Context{RowCount: rows})
		if u.Level < prev {
			t.Fatalf("usage level decreased at rows=%d: %v after %v", rows, u.Level, prev)
		}
		prev = u.Level
	}
	if prev != UsageCritical {
		t.Errorf("largest row count should reach critical, got %v", prev)
	}
}

func TestEstimateQueryCost(t *testing.T) {
	limit := int64(10)
	skip := int64(5)

	tests := []struct {
		name     string
		query    *query.Query
		rowCount int64
		want     map[string]float64
	}{
		{
			name:     "scan only",
			query:    &query.Query{Collection: "c"},
			rowCount: 50,
			want:     map[string]float64{"scan": 100},
		},
		{
			name: "all priced operations",
			query: &query.Query{
				Collection: "c",
				Filter:     map[string]any{"x": 1},
				Sort:       []string{"a"},
				Select:     []string{"a"},
				Limit:      &limit,
				Skip:       &skip,
			},
			rowCount: 50,
			want: map[string]float64{
				"scan": 100, "filter": 50, "sort": 200,
				"project": 50, "limit": 10, "skip": 20,
			},
		},
		{
			name:     "join contributes usage but no cost key",
			query:    &query.Query{Collection: "c", Join: map[string]any{"on": "id"}},
			rowCount: 50,
			want:     map[string]float64{"scan": 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil)
			ctx := neutralCtx()
			ctx.RowCount = tt.rowCount

			est, err := m.EstimateQueryCost(tt.query, ctx)
			if err != nil {
				t.Fatalf("EstimateQueryCost: %v", err)
			}
			if len(est.Costs) != len(tt.want) {
				t.Fatalf("cost keys = %v, want %v", est.Costs, tt.want)
			}
			for op, want := range tt.want {
				if got := est.Costs[op]; got != want {
					t.Errorf("cost[%s] = %v, want %v", op, got, want)
				}
			}
			if est.TotalCost != est.Sum() {
				t.Errorf("TotalCost %v != component sum %v", est.TotalCost, est.Sum())
			}
		})
	}
}

func TestEstimateQueryCostScalesWithUsageLevel(t *testing.T) {
	m := New(nil)

	small, err := m.EstimateQueryCost(&query.Query{Collection: "c"},
		&cost.Context{RowCount: 50, AvailableMemory: 8 * GiB, TotalMemory: 8 * GiB})
	if err != nil {
		t.Fatalf("small estimate: %v", err)
	}

	// 10M rows × 100 B/row puts the scan deep into critical territory.
	huge, err := m.EstimateQueryCost(&query.Query{Collection: "c"},
		&cost.Context{RowCount: 10_000_000, AvailableMemory: 8 * GiB, TotalMemory: 8 * GiB})
	if err != nil {
		t.Fatalf("huge estimate: %v", err)
	}

	weights := DefaultConfig().UsageWeights
	wantRatio := weights[UsageCritical] / weights[UsageLow]
	if got := huge.TotalCost / small.TotalCost; got != wantRatio {
		t.Errorf("critical/low cost ratio = %v, want %v", got, wantRatio)
	}
}

func TestEstimateQueryCostScalesWithPressure(t *testing.T) {
	m := New(nil)
	q := &query.Query{Collection: "c"}

	relaxed, err := m.EstimateQueryCost(q,
		&cost.Context{RowCount: 50, AvailableMemory: 8 * GiB, TotalMemory: 8 * GiB})
	if err != nil {
		t.Fatalf("relaxed estimate: %v", err)
	}
	squeezed, err := m.EstimateQueryCost(q,
		&cost.Context{RowCount: 50, AvailableMemory: 256 * MiB, TotalMemory: 8 * GiB})
	if err != nil {
		t.Fatalf("squeezed estimate: %v", err)
	}

	factors := DefaultConfig().PressureFactors
	wantRatio := factors[PressureCritical] / factors[PressureAvailable]
	if got := squeezed.TotalCost / relaxed.TotalCost; got != wantRatio {
		t.Errorf("pressure cost ratio = %v, want %v", got, wantRatio)
	}
}

func TestEstimatePlanCost(t *testing.T) {
	m := New(nil)

	p := &plan.Node{
		Type: "join",
		Children: []*plan.Node{
			{Type: "scan", Collection: "orders", RowCount: 1000},
			{Type: "sort", Collection: "users", RowCount: 200},
		},
	}

	est, err := m.EstimatePlanCost(p, nil, neutralCtx())
	if err != nil {
		t.Fatalf("EstimatePlanCost: %v", err)
	}

	want := map[string]float64{
		"node-0":   0,   // join carries usage but no base cost
		"node-0-0": 100, // low-usage scan
		"node-0-1": 200, // low-usage sort
	}
	for id, wantCost := range want {
		if got := est.Costs[id]; got != wantCost {
			t.Errorf("cost[%s] = %v, want %v", id, got, wantCost)
		}
	}
	if est.TotalCost != 300 {
		t.Errorf("TotalCost = %v, want 300", est.TotalCost)
	}
}

func TestEstimatePlanCostPerNodeLevels(t *testing.T) {
	m := New(nil)

	p := &plan.Node{
		Type: "join",
		Children: []*plan.Node{
			{Type: "scan", Collection: "small", RowCount: 100},
			{Type: "scan", Collection: "huge", RowCount: 20_000_000},
		},
	}

	est, err := m.EstimatePlanCost(p, nil, neutralCtx())
	if err != nil {
		t.Fatalf("EstimatePlanCost: %v", err)
	}

	weights := DefaultConfig().UsageWeights
	if got := est.Costs["node-0-0"]; got != 100*weights[UsageLow] {
		t.Errorf("small scan cost = %v", got)
	}
	if got := est.Costs["node-0-1"]; got != 100*weights[UsageCritical] {
		t.Errorf("huge scan cost = %v, want critical-scaled", got)
	}
}

func TestEstimatePlanCostNilPlan(t *testing.T) {
	m := New(nil)

	est, err := m.EstimatePlanCost(nil, nil, neutralCtx())
	if err != nil {
		t.Fatalf("EstimatePlanCost(nil): %v", err)
	}
	if got := est.Costs["node-0"]; got != 100 {
		t.Errorf("nil plan should degrade to a bare scan, got %v", est.Costs)
	}
}

func TestPlanUsage(t *testing.T) {
	m := New(nil)
	p := &plan.Node{
		Type:     "sort",
		RowCount: 1000,
		Children: []*plan.Node{
			{Type: "scan", Collection: "orders", RowCount: 1000},
		},
	}

	usage := m.PlanUsage(p, nil, nil)
	if len(usage) != 2 {
		t.Fatalf("PlanUsage returned %d entries", len(usage))
	}
	// sort: base 1000×100 + 1000×200
	if got := usage["node-0"].Total; got != 300_000 {
		t.Errorf("sort node usage = %d, want 300000", got)
	}
	// scan: base 1000×100 + 1000×100
	if got := usage["node-0-0"].Total; got != 200_000 {
		t.Errorf("scan node usage = %d, want 200000", got)
	}
}

func TestUpdateAccumulatesAverages(t *testing.T) {
	m := New(nil)

	p1 := &plan.Node{Type: "scan", Collection: "orders", RowCount: 1000}
	if outcome, err := m.Update(p1, &cost.ActualMetrics{TotalCost: 1}, nil); err != nil || outcome != cost.UpdateApplied {
		t.Fatalf("first update: %v, %v", outcome, err)
	}

	// scan of 1000 rows: 1000×100 base + 1000×100 scan = 200000 bytes
	if avg, ok := m.AverageOperationUsage(types.OpScan); !ok || avg != 200_000 {
		t.Errorf("scan average = %d, %v; want 200000, true", avg, ok)
	}

	p2 := &plan.Node{Type: "scan", Collection: "orders", RowCount: 2000}
	if _, err := m.Update(p2, &cost.ActualMetrics{TotalCost: 1}, nil); err != nil {
		t.Fatalf("second update: %v", err)
	}

	// (200000 + 400000) / 2
	if avg, _ := m.AverageOperationUsage(types.OpScan); avg != 300_000 {
		t.Errorf("scan average after second update = %d, want 300000", avg)
	}
	if avg, ok := m.AverageCollectionUsage("orders"); !ok || avg != 300_000 {
		t.Errorf("orders average = %d, %v; want 300000, true", avg, ok)
	}
}

func TestUpdateUsesObservedOperationMemory(t *testing.T) {
	m := New(nil)

	outcome, err := m.Update(
		&plan.Node{Type: "scan", Collection: "orders"},
		&cost.ActualMetrics{
			TotalCost:       1,
			OperationMemory: map[types.Operation]int64{types.OpScan: 12_345},
		},
		&cost.Context{Collection: "orders"},
	)
	if err != nil || outcome != cost.UpdateApplied {
		t.Fatalf("Update = %v, %v", outcome, err)
	}

	if avg, _ := m.AverageOperationUsage(types.OpScan); avg != 12_345 {
		t.Errorf("observed figures should win over estimates, got %d", avg)
	}
	if avg, _ := m.AverageCollectionUsage("orders"); avg != 12_345 {
		t.Errorf("collection average = %d, want 12345", avg)
	}
}

func TestUpdateNilMetricsUnsupported(t *testing.T) {
	m := New(nil)
	outcome, err := m.Update(&plan.Node{Type: "scan"}, nil, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if outcome != cost.UpdateUnsupported {
		t.Errorf("outcome = %v, want unsupported", outcome)
	}
}

func TestHistoryCapFIFO(t *testing.T) {
	m := NewWithConfig(nil, Config{HistorySize: 5})
	p := &plan.Node{Type: "scan", Collection: "orders", RowCount: 10}

	for i := 1; i <= 8; i++ {
		_, err := m.Update(p, &cost.ActualMetrics{
			TotalCost:  1,
			MemoryUsed: int64(i),
		}, nil)
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	h := m.History()
	if len(h) != 5 {
		t.Fatalf("history length = %d, want 5", len(h))
	}
	// Oldest three evicted; the rest keep insertion order.
	for i, want := range []int64{4, 5, 6, 7, 8} {
		if h[i].TotalUsage != want {
			t.Errorf("history[%d].TotalUsage = %d, want %d", i, h[i].TotalUsage, want)
		}
	}
}

func TestHistoryCopyDetached(t *testing.T) {
	m := New(nil)
	p := &plan.Node{Type: "scan", RowCount: 10}
	if _, err := m.Update(p, &cost.ActualMetrics{TotalCost: 1, MemoryUsed: 7}, nil); err != nil {
		t.Fatalf("Update: %v", err)
	}

	h := m.History()
	h[0].TotalUsage = 999
	if m.History()[0].TotalUsage != 7 {
		t.Error("History() must return a detached copy")
	}
}
