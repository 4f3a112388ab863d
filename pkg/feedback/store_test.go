package feedback

import (
	"path/filepath"
	"testing"

	"querycost/pkg/cost"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "feedback.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testPlan() *plan.Node {
	return &plan.Node{
		Type: "sort", Collection: "users", RowCount: 100,
		Children: []*plan.Node{{Type: "scan", Collection: "users", RowCount: 100}},
	}
}

func record(t *testing.T, s *Store, model string, estimated, actual float64) {
	t.Helper()
	p := testPlan()
	est := &cost.Estimate{TotalCost: estimated, Plan: p}
	err := s.Record(model, p, est, &cost.ActualMetrics{TotalCost: actual})
	if err != nil {
		t.Fatalf("Record() error: %v", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); !qerr.IsKind(err, qerr.KindValidation) {
		t.Errorf("Open(\"\") error = %v, want validation", err)
	}
}

func TestRecord_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	record(t, s, "statistical", 10, 12)

	got, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Recent() returned %d observations, want 1", len(got))
	}

	o := got[0]
	if o.ID <= 0 {
		t.Errorf("ID = %d, want assigned", o.ID)
	}
	if o.Model != "statistical" || o.Collection != "users" {
		t.Errorf("observation = %+v, want model statistical on users", o)
	}
	if want := testPlan().Digest(); o.PlanDigest != want {
		t.Errorf("PlanDigest = %q, want %q", o.PlanDigest, want)
	}
	if o.Estimated != 10 || o.Actual != 12 {
		t.Errorf("costs = (%v, %v), want (10, 12)", o.Estimated, o.Actual)
	}
	if want := cost.RelativeError(12, 10); o.RelError != want {
		t.Errorf("RelError = %v, want %v", o.RelError, want)
	}
	if o.At.IsZero() {
		t.Errorf("At is zero, want a timestamp")
	}
}

func TestRecord_IncompleteInput(t *testing.T) {
	s := openTestStore(t)
	err := s.Record("statistical", nil, &cost.Estimate{}, &cost.ActualMetrics{})
	if !qerr.IsKind(err, qerr.KindValidation) {
		t.Errorf("Record(nil plan) error = %v, want validation", err)
	}
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 1; i <= 3; i++ {
		record(t, s, "statistical", float64(i), float64(i))
	}

	got, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent(2) error: %v", err)
	}
	if len(got) != 2 || got[0].Estimated != 3 || got[1].Estimated != 2 {
		t.Errorf("Recent(2) = %v, want newest first [3 2]", estimates(got))
	}

	all, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent(0) error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Recent(0) returned %d observations, want 3", len(all))
	}
}

func estimates(obs []Observation) []float64 {
	out := make([]float64, len(obs))
	for i, o := range obs {
		out[i] = o.Estimated
	}
	return out
}

func TestPrune_KeepsNewest(t *testing.T) {
	s := openTestStore(t)
	for i := 1; i <= 5; i++ {
		record(t, s, "statistical", float64(i), float64(i))
	}

	if err := s.Prune(2); err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	got, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(got) != 2 || got[0].Estimated != 5 || got[1].Estimated != 4 {
		t.Errorf("after prune = %v, want [5 4]", estimates(got))
	}
}

func TestWeights_SaveLoadRoundTrip(t *testing.T) {
	s := openTestStore(t)
	weights := map[types.Operation]float64{
		types.OpScan: 1.5,
		types.OpJoin: 12,
	}
	if err := s.SaveWeights("statistical", weights); err != nil {
		t.Fatalf("SaveWeights() error: %v", err)
	}

	got, err := s.LoadWeights("statistical")
	if err != nil {
		t.Fatalf("LoadWeights() error: %v", err)
	}
	if len(got) != 2 || got[types.OpScan] != 1.5 || got[types.OpJoin] != 12 {
		t.Errorf("LoadWeights() = %v, want the saved snapshot", got)
	}

	empty, err := s.LoadWeights("memory")
	if err != nil {
		t.Fatalf("LoadWeights(unknown) error: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("LoadWeights(unknown model) = %v, want empty", empty)
	}
}

func TestWeights_ReplaceOnSave(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveWeights("statistical", map[types.Operation]float64{types.OpScan: 1.5}); err != nil {
		t.Fatalf("SaveWeights() error: %v", err)
	}
	if err := s.SaveWeights("statistical", map[types.Operation]float64{types.OpScan: 2.5}); err != nil {
		t.Fatalf("SaveWeights() error: %v", err)
	}

	got, err := s.LoadWeights("statistical")
	if err != nil {
		t.Fatalf("LoadWeights() error: %v", err)
	}
	if len(got) != 1 || got[types.OpScan] != 2.5 {
		t.Errorf("LoadWeights() = %v, want scan replaced with 2.5", got)
	}
}

func TestWeights_UnknownOperationSkipped(t *testing.T) {
	s := openTestStore(t)
	_, err := s.db.Exec(
		`INSERT INTO model_weights (model, operation, weight, updated_at) VALUES (?, ?, ?, ?)`,
		"statistical", "teleport", 3.0, 0)
	if err != nil {
		t.Fatalf("seed row error: %v", err)
	}

	got, err := s.LoadWeights("statistical")
	if err != nil {
		t.Fatalf("LoadWeights() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("LoadWeights() = %v, want unknown operations skipped", got)
	}
}

func TestSaveWeights_EmptyModel(t *testing.T) {
	s := openTestStore(t)
	err := s.SaveWeights("", map[types.Operation]float64{types.OpScan: 1})
	if !qerr.IsKind(err, qerr.KindValidation) {
		t.Errorf("SaveWeights(\"\") error = %v, want validation", err)
	}
}
