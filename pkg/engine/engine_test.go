package engine

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"querycost/pkg/cost"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
)

// stubModel returns a fixed total for every estimate, or a fixed error.
type stubModel struct {
	total    float64
	err      error
	gotStats *statistics.Catalog
}

func (m *stubModel) EstimateQueryCost(q *query.Query, _ *cost.Context) (*cost.Estimate, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &cost.Estimate{
		TotalCost: m.total,
		Costs:     map[string]float64{"scan": m.total},
		Query:     q,
	}, nil
}

func (m *stubModel) EstimatePlanCost(p *plan.Node, stats *statistics.Catalog, _ *cost.Context) (*cost.Estimate, error) {
	m.gotStats = stats
	if m.err != nil {
		return nil, m.err
	}
	return &cost.Estimate{
		TotalCost: m.total,
		Costs:     map[string]float64{plan.RootID: m.total},
		Plan:      p,
	}, nil
}

// stubLearner additionally implements cost.Updater.
type stubLearner struct {
	stubModel
	outcome cost.UpdateOutcome
	updErr  error
	calls   int
	gotCtx  *cost.Context
}

func (m *stubLearner) Update(_ *plan.Node, _ *cost.ActualMetrics, ctx *cost.Context) (cost.UpdateOutcome, error) {
	m.calls++
	m.gotCtx = ctx
	if m.updErr != nil {
		return cost.UpdateUnsupported, m.updErr
	}
	return m.outcome, nil
}

// panicLearner blows up on every update.
type panicLearner struct {
	stubModel
}

func (m *panicLearner) Update(_ *plan.Node, _ *cost.ActualMetrics, _ *cost.Context) (cost.UpdateOutcome, error) {
	panic("weights corrupted")
}

// eventRecorder is a concurrency-safe event listener.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) listen(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) byType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func mustRegister(t *testing.T, e *Engine, name string, m cost.Model) {
	t.Helper()
	if err := e.RegisterModel(name, m); err != nil {
		t.Fatalf("RegisterModel(%q) error: %v", name, err)
	}
}

func TestRegisterModel_Validation(t *testing.T) {
	tests := []struct {
		name      string
		modelName string
		model     cost.Model
		wantErr   bool
	}{
		{"empty name", "", &stubModel{total: 1}, true},
		{"nil model", "stats", nil, true},
		{"valid", "stats", &stubModel{total: 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(nil, nil)
			err := e.RegisterModel(tt.modelName, tt.model)
			if tt.wantErr {
				if !qerr.IsKind(err, qerr.KindValidation) {
					t.Errorf("RegisterModel() error = %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Errorf("RegisterModel() unexpected error: %v", err)
			}
		})
	}
}

func TestRegisterModel_ReplaceKeepsOrder(t *testing.T) {
	e := New(&Config{DefaultModel: "gamma"}, nil)
	mustRegister(t, e, "gamma", &stubModel{total: 1})
	mustRegister(t, e, "alpha", &stubModel{total: 2})

	replacement := &stubModel{total: 9}
	mustRegister(t, e, "gamma", replacement)

	want := []string{"gamma", "alpha"}
	got := e.Models()
	if len(got) != len(want) {
		t.Fatalf("Models() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Models()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	est, err := e.EstimateQueryCost(&query.Query{Collection: "users"}, nil, "gamma")
	if err != nil {
		t.Fatalf("EstimateQueryCost() error: %v", err)
	}
	if est.TotalCost != 9 {
		t.Errorf("estimate after replacement = %v, want 9 from the replacement model", est.TotalCost)
	}
}

func TestModel_DefaultAndNotFound(t *testing.T) {
	e := New(&Config{DefaultModel: "stats"}, nil)
	m := &stubModel{total: 1}
	mustRegister(t, e, "stats", m)

	got, err := e.Model("")
	if err != nil {
		t.Fatalf("Model(\"\") error: %v", err)
	}
	if got != cost.Model(m) {
		t.Errorf("Model(\"\") did not resolve to the default model")
	}

	if _, err := e.Model("nope"); !qerr.IsNotFound(err) {
		t.Errorf("Model(\"nope\") error = %v, want not-found error", err)
	}
}

func TestEstimateQueryCost_RecordsHistoryAndMetrics(t *testing.T) {
	e := New(&Config{DefaultModel: "stub"}, nil)
	mustRegister(t, e, "stub", &stubModel{total: 2.5})

	rec := &eventRecorder{}
	e.Subscribe(rec.listen)

	q := &query.Query{Collection: "users"}
	est, err := e.EstimateQueryCost(q, nil, "")
	if err != nil {
		t.Fatalf("EstimateQueryCost() error: %v", err)
	}
	if est.TotalCost != 2.5 {
		t.Errorf("TotalCost = %v, want 2.5", est.TotalCost)
	}

	hist := e.History(0)
	if len(hist) != 1 {
		t.Fatalf("History() returned %d entries, want 1", len(hist))
	}
	entry := hist[0]
	if entry.ModelName != "stub" {
		t.Errorf("entry.ModelName = %q, want %q", entry.ModelName, "stub")
	}
	if entry.Query != q || entry.Plan != nil {
		t.Errorf("entry should reference the query, not a plan")
	}
	if entry.ID == "" {
		t.Errorf("entry.ID is empty, want a generated id")
	}
	if entry.At.IsZero() {
		t.Errorf("entry.At is zero, want a timestamp")
	}

	s := e.Metrics().Snapshot()
	if s.TotalEstimates != 1 {
		t.Errorf("TotalEstimates = %d, want 1", s.TotalEstimates)
	}
	if s.PerModel["stub"].Estimates != 1 {
		t.Errorf("PerModel[stub].Estimates = %d, want 1", s.PerModel["stub"].Estimates)
	}

	events := rec.byType(EventEstimate)
	if len(events) != 1 {
		t.Fatalf("got %d estimate events, want 1", len(events))
	}
	if events[0].Model != "stub" || events[0].TotalCost != 2.5 {
		t.Errorf("estimate event = %+v, want model stub with total 2.5", events[0])
	}
}

func TestEstimateQueryCost_ModelErrorPropagatesUnchanged(t *testing.T) {
	estErr := qerr.Estimation("ESTIMATION_FAILED", "produced a non-finite cost", "scan")
	e := New(&Config{DefaultModel: "bad"}, nil)
	mustRegister(t, e, "bad", &stubModel{err: estErr})

	rec := &eventRecorder{}
	e.Subscribe(rec.listen)

	est, err := e.EstimateQueryCost(&query.Query{Collection: "users"}, nil, "")
	if est != nil {
		t.Errorf("estimate = %+v, want nil on error", est)
	}
	if !errors.Is(err, estErr) {
		t.Errorf("error = %v, want the model error unchanged", err)
	}

	if got := len(e.History(0)); got != 0 {
		t.Errorf("failed estimate recorded %d history entries, want 0", got)
	}
	if s := e.Metrics().Snapshot(); s.TotalErrors != 1 {
		t.Errorf("TotalErrors = %d, want 1", s.TotalErrors)
	}
	events := rec.byType(EventError)
	if len(events) != 1 || !errors.Is(events[0].Err, estErr) {
		t.Errorf("error events = %+v, want one carrying the model error", events)
	}
}

func TestEstimate_UnknownModel(t *testing.T) {
	e := New(nil, nil)
	mustRegister(t, e, "statistical", &stubModel{total: 1})

	if _, err := e.EstimateQueryCost(&query.Query{}, nil, "nope"); !qerr.IsNotFound(err) {
		t.Errorf("EstimateQueryCost(unknown model) error = %v, want not-found", err)
	}
	if got := len(e.History(0)); got != 0 {
		t.Errorf("unknown-model estimate recorded %d history entries, want 0", got)
	}
}

func TestEstimatePlanCost_PassesEngineCatalog(t *testing.T) {
	e := New(&Config{DefaultModel: "stub"}, nil)
	e.Statistics().Set("users", statistics.Entry{RowCount: 50})

	m := &stubModel{total: 3}
	mustRegister(t, e, "stub", m)

	p := &plan.Node{Type: "scan", Collection: "users", RowCount: 50}
	est, err := e.EstimatePlanCost(p, nil, "")
	if err != nil {
		t.Fatalf("EstimatePlanCost() error: %v", err)
	}
	if est.TotalCost != 3 {
		t.Errorf("TotalCost = %v, want 3", est.TotalCost)
	}
	if m.gotStats != e.Statistics() {
		t.Errorf("model received a different catalog than the engine's")
	}

	hist := e.History(0)
	if len(hist) != 1 || hist[0].Plan != p || hist[0].Query != nil {
		t.Errorf("history entry should reference the plan, not a query")
	}
}

func TestHistory_BoundsAndOrder(t *testing.T) {
	e := New(&Config{DefaultModel: "stub", HistorySize: 5}, nil)
	m := &stubModel{}
	mustRegister(t, e, "stub", m)

	q := &query.Query{Collection: "users"}
	for i := 1; i <= 8; i++ {
		m.total = float64(i)
		if _, err := e.EstimateQueryCost(q, nil, ""); err != nil {
			t.Fatalf("estimate %d error: %v", i, err)
		}
	}

	got := e.History(0)
	if len(got) != 5 {
		t.Fatalf("History(0) returned %d entries, want 5", len(got))
	}
	for i, entry := range got {
		want := float64(i + 4) // oldest three evicted
		if entry.Estimate.TotalCost != want {
			t.Errorf("History(0)[%d].TotalCost = %v, want %v", i, entry.Estimate.TotalCost, want)
		}
	}

	recent := e.History(2)
	if len(recent) != 2 || recent[0].Estimate.TotalCost != 7 || recent[1].Estimate.TotalCost != 8 {
		t.Errorf("History(2) = totals %v, want [7 8]", historyTotals(recent))
	}

	if got := e.History(100); len(got) != 5 {
		t.Errorf("History(100) returned %d entries, want all 5", len(got))
	}

	e.ClearHistory()
	if got := len(e.History(0)); got != 0 {
		t.Errorf("History after clear returned %d entries, want 0", got)
	}
	if models := e.Models(); len(models) != 1 {
		t.Errorf("ClearHistory dropped models: %v", models)
	}
}

func historyTotals(entries []HistoryEntry) []float64 {
	out := make([]float64, len(entries))
	for i, e := range entries {
		out[i] = e.Estimate.TotalCost
	}
	return out
}

func TestHistoryBuffer_Ring(t *testing.T) {
	b := newHistoryBuffer(3)
	for i := 1; i <= 5; i++ {
		b.push(HistoryEntry{ModelName: strconv.Itoa(i)})
	}

	names := func(entries []HistoryEntry) []string {
		out := make([]string, len(entries))
		for i, e := range entries {
			out[i] = e.ModelName
		}
		return out
	}

	if got := names(b.snapshot(0)); strings.Join(got, ",") != "3,4,5" {
		t.Errorf("snapshot(0) = %v, want [3 4 5]", got)
	}
	if got := names(b.snapshot(2)); strings.Join(got, ",") != "4,5" {
		t.Errorf("snapshot(2) = %v, want [4 5]", got)
	}
	if b.length() != 3 {
		t.Errorf("length() = %d, want 3", b.length())
	}

	b.clear()
	if b.length() != 0 || len(b.snapshot(0)) != 0 {
		t.Errorf("buffer not empty after clear")
	}
	b.push(HistoryEntry{ModelName: "fresh"})
	if got := names(b.snapshot(0)); len(got) != 1 || got[0] != "fresh" {
		t.Errorf("push after clear = %v, want [fresh]", got)
	}
}

func TestUpdateModel_DisabledAdaptiveLearning(t *testing.T) {
	e := New(&Config{DefaultModel: "learner", AdaptiveLearning: false}, nil)
	learner := &stubLearner{outcome: cost.UpdateApplied}
	mustRegister(t, e, "learner", learner)

	p := &plan.Node{Type: "scan", Collection: "users", RowCount: 100}
	if got := e.UpdateModel(p, &cost.ActualMetrics{TotalCost: 5}, nil, ""); got {
		t.Errorf("UpdateModel() = true with adaptive learning disabled, want false")
	}
	if learner.calls != 0 {
		t.Errorf("model updated %d times, want 0", learner.calls)
	}
}

func TestUpdateModel_Outcomes(t *testing.T) {
	p := &plan.Node{Type: "scan", Collection: "users", RowCount: 100}
	actual := &cost.ActualMetrics{TotalCost: 5}

	tests := []struct {
		name        string
		model       cost.Model
		modelName   string
		want        bool
		wantOutcome string
		wantErrs    int
	}{
		{"unknown model", &stubLearner{outcome: cost.UpdateApplied}, "nope", false, "", 1},
		{"model without updater", &stubModel{total: 1}, "", false, "unsupported", 0},
		{"applied", &stubLearner{outcome: cost.UpdateApplied}, "", true, "applied", 0},
		{"rejected", &stubLearner{outcome: cost.UpdateRejected}, "", false, "rejected", 0},
		{"update error", &stubLearner{updErr: errors.New("stats missing")}, "", false, "", 1},
		{"panic absorbed", &panicLearner{}, "", false, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(&Config{DefaultModel: "m", AdaptiveLearning: true}, nil)
			mustRegister(t, e, "m", tt.model)

			rec := &eventRecorder{}
			e.Subscribe(rec.listen)

			if got := e.UpdateModel(p, actual, nil, tt.modelName); got != tt.want {
				t.Errorf("UpdateModel() = %v, want %v", got, tt.want)
			}

			if tt.wantOutcome != "" {
				events := rec.byType(EventUpdate)
				if len(events) != 1 || events[0].Outcome != tt.wantOutcome {
					t.Errorf("update events = %+v, want one with outcome %q", events, tt.wantOutcome)
				}
			}
			if got := len(rec.byType(EventError)); got != tt.wantErrs {
				t.Errorf("error events = %d, want %d", got, tt.wantErrs)
			}
		})
	}
}

func TestUpdateModel_InjectsLearningContext(t *testing.T) {
	e := New(&Config{
		DefaultModel:     "learner",
		AdaptiveLearning: true,
		LearningRate:     0.25,
		AnomalyThreshold: 3.5,
	}, nil)
	learner := &stubLearner{outcome: cost.UpdateApplied}
	mustRegister(t, e, "learner", learner)

	callerCtx := &cost.Context{Collection: "users", LearningRate: 0.9, AnomalyThreshold: 9}
	p := &plan.Node{Type: "scan", Collection: "users", RowCount: 100}
	if got := e.UpdateModel(p, &cost.ActualMetrics{TotalCost: 5}, callerCtx, ""); !got {
		t.Fatalf("UpdateModel() = false, want true")
	}

	if learner.gotCtx == nil {
		t.Fatalf("model never received a context")
	}
	if learner.gotCtx.LearningRate != 0.25 || learner.gotCtx.AnomalyThreshold != 3.5 {
		t.Errorf("model context tuning = (%v, %v), want engine values (0.25, 3.5)",
			learner.gotCtx.LearningRate, learner.gotCtx.AnomalyThreshold)
	}
	if learner.gotCtx.Collection != "users" {
		t.Errorf("model context lost the caller's collection")
	}
	if callerCtx.LearningRate != 0.9 || callerCtx.AnomalyThreshold != 9 {
		t.Errorf("caller context mutated: %+v", callerCtx)
	}
}

func TestCompareModels_SortedAscendingStableTies(t *testing.T) {
	e := New(&Config{DefaultModel: "gamma"}, nil)
	mustRegister(t, e, "gamma", &stubModel{total: 2})
	mustRegister(t, e, "alpha", &stubModel{total: 1})
	mustRegister(t, e, "beta", &stubModel{total: 2})

	q := &query.Query{Collection: "users"}
	got, err := e.CompareModels(q, nil)
	if err != nil {
		t.Fatalf("CompareModels() error: %v", err)
	}

	want := []struct {
		name  string
		total float64
	}{
		{"alpha", 1},
		{"gamma", 2}, // registered before beta, tie keeps that order
		{"beta", 2},
	}
	if len(got) != len(want) {
		t.Fatalf("CompareModels() returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ModelName != want[i].name || got[i].TotalCost != want[i].total {
			t.Errorf("result[%d] = (%s, %v), want (%s, %v)",
				i, got[i].ModelName, got[i].TotalCost, want[i].name, want[i].total)
		}
		if got[i].Estimate == nil {
			t.Errorf("result[%d] has no estimate", i)
		}
	}

	if hist := e.History(0); len(hist) != 3 {
		t.Errorf("comparison recorded %d history entries, want 3", len(hist))
	}
}

func TestCompareModels_ExplicitNamesKeepArgumentOrderOnTies(t *testing.T) {
	e := New(&Config{DefaultModel: "gamma"}, nil)
	mustRegister(t, e, "gamma", &stubModel{total: 2})
	mustRegister(t, e, "beta", &stubModel{total: 2})

	got, err := e.CompareModels(&query.Query{}, nil, "beta", "gamma")
	if err != nil {
		t.Fatalf("CompareModels() error: %v", err)
	}
	if len(got) != 2 || got[0].ModelName != "beta" || got[1].ModelName != "gamma" {
		t.Errorf("tied comparison = %v, want beta then gamma", comparisonNames(got))
	}
}

func comparisonNames(results []Comparison) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.ModelName
	}
	return out
}

func TestCompareModels_EmptyRegistry(t *testing.T) {
	e := New(nil, nil)
	if _, err := e.CompareModels(&query.Query{}, nil); !qerr.IsValidation(err) {
		t.Errorf("CompareModels() on empty registry error = %v, want validation", err)
	}
}

func TestCompareModels_ModelErrorPropagates(t *testing.T) {
	estErr := qerr.Estimation("ESTIMATION_FAILED", "bad input", "")
	e := New(&Config{DefaultModel: "good"}, nil)
	mustRegister(t, e, "good", &stubModel{total: 1})
	mustRegister(t, e, "bad", &stubModel{err: estErr})

	if _, err := e.CompareModels(&query.Query{}, nil); !errors.Is(err, estErr) {
		t.Errorf("CompareModels() error = %v, want the model error", err)
	}
}

func TestSubscribe_ListenerCanReadEngine(t *testing.T) {
	e := New(&Config{DefaultModel: "stub"}, nil)
	mustRegister(t, e, "stub", &stubModel{total: 1})

	var seen int
	e.Subscribe(func(ev Event) {
		// Listeners run outside the engine's locks, so reads are fine here.
		_ = e.History(0)
		_ = e.Models()
		seen++
	})

	if _, err := e.EstimateQueryCost(&query.Query{}, nil, ""); err != nil {
		t.Fatalf("EstimateQueryCost() error: %v", err)
	}
	if seen != 1 {
		t.Errorf("listener ran %d times, want 1", seen)
	}
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			"zero values",
			Config{},
			Config{DefaultModel: "statistical", LearningRate: 0.1, AnomalyThreshold: 2.0, HistorySize: DefaultHistorySize},
		},
		{
			"out of range learning rate",
			Config{DefaultModel: "m", LearningRate: 1.5, AnomalyThreshold: 1, HistorySize: 10},
			Config{DefaultModel: "m", LearningRate: 0.1, AnomalyThreshold: 1, HistorySize: 10},
		},
		{
			"negative history size",
			Config{DefaultModel: "m", LearningRate: 0.5, AnomalyThreshold: 1, HistorySize: -3},
			Config{DefaultModel: "m", LearningRate: 0.5, AnomalyThreshold: 1, HistorySize: DefaultHistorySize},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			got.normalize()
			if got != tt.want {
				t.Errorf("normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExplain(t *testing.T) {
	t.Run("plan estimate", func(t *testing.T) {
		p := &plan.Node{
			Type: "sort", Collection: "users", RowCount: 10,
			Children: []*plan.Node{{Type: "scan", Collection: "users", RowCount: 10}},
		}
		est := &cost.Estimate{
			TotalCost: 4,
			Costs:     map[string]float64{"node-0": 3, "node-0-0": 1},
			Plan:      p,
			Stats:     statistics.Entry{RowCount: 10},
		}
		out := Explain(est)
		if !strings.Contains(out, "sort(users) [cost=3.00, rows=10]") {
			t.Errorf("Explain() missing annotated root:\n%s", out)
		}
		if !strings.Contains(out, "└── scan(users) [cost=1.00, rows=10]") {
			t.Errorf("Explain() missing annotated child:\n%s", out)
		}
		if !strings.Contains(out, "total: 4.00 (rows=10)") {
			t.Errorf("Explain() missing total line:\n%s", out)
		}
	})

	t.Run("query estimate in canonical order", func(t *testing.T) {
		est := &cost.Estimate{
			TotalCost: 1.5,
			Costs:     map[string]float64{"filter": 0.5, "scan": 1.0},
			Query:     &query.Query{Collection: "users"},
			Stats:     statistics.Entry{RowCount: 50},
		}
		out := Explain(est)
		scanAt := strings.Index(out, "scan")
		filterAt := strings.Index(out, "filter")
		if scanAt == -1 || filterAt == -1 || scanAt > filterAt {
			t.Errorf("Explain() operations out of canonical order:\n%s", out)
		}
		if !strings.Contains(out, "total: 1.50 (rows=50)") {
			t.Errorf("Explain() missing total line:\n%s", out)
		}
	})

	t.Run("nil estimate", func(t *testing.T) {
		if got := Explain(nil); got != "no estimate\n" {
			t.Errorf("Explain(nil) = %q", got)
		}
	})
}
