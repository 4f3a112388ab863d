package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"querycost/pkg/cost"
	"querycost/pkg/cost/memory"
	"querycost/pkg/cost/statistical"
	"querycost/pkg/engine"
	"querycost/pkg/plan"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
	"querycost/pkg/types"
)

// BenchmarkResult captures performance metrics for a single workload:
// timing statistics, throughput and success/error counts.
type BenchmarkResult struct {
	Workload           string        `json:"workload"`             // Descriptive name of the workload
	Kind               string        `json:"kind"`                 // Operation kind (query, plan, compare, update)
	Iterations         int           `json:"iterations"`           // Total number of executions
	TotalDuration      time.Duration `json:"total_duration_ns"`    // Total time for all iterations
	AvgDuration        time.Duration `json:"avg_duration_ns"`      // Average time per execution
	MinDuration        time.Duration `json:"min_duration_ns"`      // Fastest execution
	MaxDuration        time.Duration `json:"max_duration_ns"`      // Slowest execution
	MedianDuration     time.Duration `json:"median_duration_ns"`   // Median execution time
	P95Duration        time.Duration `json:"p95_duration_ns"`      // 95th percentile
	P99Duration        time.Duration `json:"p99_duration_ns"`      // 99th percentile
	EstimatesPerSecond float64       `json:"estimates_per_second"` // Throughput metric
	Concurrent         int           `json:"concurrent"`           // Number of concurrent goroutines
	SuccessCount       int           `json:"success_count"`        // Successful executions
	ErrorCount         int           `json:"error_count"`          // Failed executions
	ErrorSamples       []string      `json:"error_samples"`        // Sample error messages
	Timestamp          time.Time     `json:"timestamp"`            // When this workload ran
}

// BenchmarkReport aggregates all workload results into a single report.
type BenchmarkReport struct {
	StartTime     time.Time         `json:"start_time"`
	EndTime       time.Time         `json:"end_time"`
	TotalDuration time.Duration     `json:"total_duration"`
	Results       []BenchmarkResult `json:"results"`
	DefaultModel  string            `json:"default_model"`
}

// workload pairs a name with the estimation call it exercises.
type workload struct {
	name string
	kind string
	run  func() error

	// sequentialOnly skips the concurrent pass for workloads that mutate
	// model state, where parallelism would skew the numbers.
	sequentialOnly bool
}

// main runs the estimation benchmark suite and writes JSON and HTML
// reports.
//
// Environment variables:
//   - BENCHMARK_OUTPUT: Directory for output reports (default: ./benchmark-results)
//   - BENCHMARK_ITERATIONS: Iterations per workload (default: 5000)
//   - BENCHMARK_CONCURRENT: Concurrent estimators (default: 10)
func main() {
	outputDir := filepath.Clean(os.Getenv("BENCHMARK_OUTPUT"))
	if outputDir == "." {
		outputDir = "./benchmark-results"
	}

	iterations := 5000
	if iter := os.Getenv("BENCHMARK_ITERATIONS"); iter != "" {
		_, _ = fmt.Sscanf(iter, "%d", &iterations)
	}
	if iterations < 1 {
		iterations = 1
	}

	concurrent := 10
	if conc := os.Getenv("BENCHMARK_CONCURRENT"); conc != "" {
		_, _ = fmt.Sscanf(conc, "%d", &concurrent)
	}
	if concurrent < 1 {
		concurrent = 1
	}

	_ = os.MkdirAll(outputDir, 0o750)

	log.Printf("Starting estimation benchmark suite...")
	log.Printf("Iterations: %d, Concurrent: %d", iterations, concurrent)

	eng := newBenchmarkEngine()

	report := BenchmarkReport{
		StartTime:    time.Now(),
		DefaultModel: "statistical",
		Results:      []BenchmarkResult{},
	}

	for _, w := range workloads(eng) {
		log.Printf("%s", "\n"+strings.Repeat("=", 80))
		log.Printf("WORKLOAD: %s (%s)", w.name, w.kind)
		log.Printf("%s", strings.Repeat("=", 80))

		log.Printf("→ Running sequential pass (%d iterations)...", iterations)
		seqResult := runBenchmark(w.name, w.kind, w.run, iterations, 1)
		report.Results = append(report.Results, seqResult)
		printBenchmarkResult(seqResult)

		if !w.sequentialOnly {
			log.Printf("")
			log.Printf("→ Running concurrent pass (%d parallel, %d iterations)...", concurrent, iterations)
			concResult := runBenchmark(w.name+" (Concurrent)", w.kind, w.run, iterations, concurrent)
			report.Results = append(report.Results, concResult)
			printBenchmarkResult(concResult)
		}
	}

	report.EndTime = time.Now()
	report.TotalDuration = report.EndTime.Sub(report.StartTime)

	timestamp := time.Now().Format("20060102_150405")
	jsonFile := fmt.Sprintf("%s/benchmark_report_%s.json", outputDir, timestamp)
	htmlFile := fmt.Sprintf("%s/benchmark_report_%s.html", outputDir, timestamp)

	log.Printf("%s", "\n"+strings.Repeat("=", 80))
	log.Printf("BENCHMARK SUITE COMPLETE")
	log.Printf("%s", strings.Repeat("=", 80))
	log.Printf("  Total Duration: %s", formatDuration(report.TotalDuration))
	log.Printf("  Workloads Run:  %d", len(report.Results))

	saveJSONReport(report, jsonFile)
	saveHTMLReport(report, htmlFile)

	log.Printf("  ✓ Reports saved to: %s", outputDir)
}

// newBenchmarkEngine assembles an engine over a synthetic catalog with both
// bundled models registered.
func newBenchmarkEngine() *engine.Engine {
	catalog := statistics.NewCatalog()
	catalog.Set("users", statistics.Entry{RowCount: 100_000, IndexType: types.IndexFull, MemoryType: types.MemoryHigh, AvgRowSize: 180})
	catalog.Set("orders", statistics.Entry{RowCount: 5_000_000, IndexType: types.IndexPartial, MemoryType: types.MemoryMedium, AvgRowSize: 96})
	catalog.Set("events", statistics.Entry{RowCount: 50_000_000, IndexType: types.IndexNone, MemoryType: types.MemoryLow, AvgRowSize: 320})

	eng := engine.New(engine.DefaultConfig(), catalog)
	if err := eng.RegisterModel("statistical", statistical.New(catalog)); err != nil {
		log.Fatalf("Failed to register statistical model: %v", err)
	}
	if err := eng.RegisterModel("memory", memory.New(catalog)); err != nil {
		log.Fatalf("Failed to register memory model: %v", err)
	}
	return eng
}

// workloads builds the estimation calls to measure. Fast paths first so
// failures surface quickly.
func workloads(eng *engine.Engine) []workload {
	scanQuery := &query.Query{Collection: "users"}
	filterQuery := &query.Query{
		Collection: "users",
		Filter:     map[string]any{"status": "active"},
		Sort:       "created_at",
	}
	joinQuery := &query.Query{
		Collection: "orders",
		Join:       map[string]any{"collection": "users", "on": "user_id"},
		Aggregate:  map[string]any{"sum": "total"},
	}
	deepPlan := &plan.Node{
		Type: "project",
		Children: []*plan.Node{{
			Type: "sort",
			Children: []*plan.Node{{
				Type:     "join",
				RowCount: 250_000,
				Children: []*plan.Node{
					{Type: "scan", Collection: "orders"},
					{Type: "scan", Collection: "users"},
				},
			}},
		}},
	}
	usersCtx := &cost.Context{Collection: "users"}
	ordersCtx := &cost.Context{Collection: "orders"}
	actual := &cost.ActualMetrics{TotalCost: 42}

	return []workload{
		{
			name: "Scan estimate",
			kind: "query",
			run: func() error {
				_, err := eng.EstimateQueryCost(scanQuery, usersCtx, "")
				return err
			},
		},
		{
			name: "Filter + sort estimate",
			kind: "query",
			run: func() error {
				_, err := eng.EstimateQueryCost(filterQuery, usersCtx, "")
				return err
			},
		},
		{
			name: "Join + aggregate estimate",
			kind: "query",
			run: func() error {
				_, err := eng.EstimateQueryCost(joinQuery, ordersCtx, "")
				return err
			},
		},
		{
			name: "Memory model estimate",
			kind: "query",
			run: func() error {
				_, err := eng.EstimateQueryCost(joinQuery, ordersCtx, "memory")
				return err
			},
		},
		{
			name: "Plan estimate",
			kind: "plan",
			run: func() error {
				_, err := eng.EstimatePlanCost(deepPlan, ordersCtx, "")
				return err
			},
		},
		{
			name: "Model comparison",
			kind: "compare",
			run: func() error {
				_, err := eng.CompareModels(filterQuery, usersCtx)
				return err
			},
		},
		{
			name: "Adaptive update",
			kind: "update",
			run: func() error {
				eng.UpdateModel(deepPlan, actual, ordersCtx, "statistical")
				return nil
			},
			sequentialOnly: true,
		},
	}
}

// runBenchmark executes one workload with the given concurrency, collects
// per-call timings and derives percentile statistics. A semaphore bounds
// the number of in-flight calls; timing data is gathered under a mutex.
func runBenchmark(name, kind string, run func() error, iterations, concurrent int) BenchmarkResult {
	durations := make([]time.Duration, 0, iterations)
	var mu sync.Mutex
	var wg sync.WaitGroup

	successCount := 0
	errorCount := 0
	errorSamples := make([]string, 0, 5)
	startTime := time.Now()

	sem := make(chan struct{}, concurrent)

	for i := 0; i < iterations; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			callStart := time.Now()
			err := run()
			duration := time.Since(callStart)

			mu.Lock()
			durations = append(durations, duration)
			if err != nil {
				errorCount++
				if len(errorSamples) < 5 {
					errorSamples = append(errorSamples, err.Error())
				}
			} else {
				successCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()
	totalDuration := time.Since(startTime)

	slices.Sort(durations)

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	avgDur := sum / time.Duration(len(durations))
	medianDur := durations[len(durations)/2]
	p95Dur := durations[int(float64(len(durations))*0.95)]
	p99Dur := durations[int(float64(len(durations))*0.99)]
	eps := float64(iterations) / totalDuration.Seconds()

	return BenchmarkResult{
		Workload:           name,
		Kind:               kind,
		Iterations:         iterations,
		TotalDuration:      totalDuration,
		AvgDuration:        avgDur,
		MinDuration:        durations[0],
		MaxDuration:        durations[len(durations)-1],
		MedianDuration:     medianDur,
		P95Duration:        p95Dur,
		P99Duration:        p99Dur,
		EstimatesPerSecond: eps,
		Concurrent:         concurrent,
		SuccessCount:       successCount,
		ErrorCount:         errorCount,
		ErrorSamples:       errorSamples,
		Timestamp:          time.Now(),
	}
}

// formatDuration formats a duration with appropriate units.
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return fmt.Sprintf("%.2fs", d.Seconds())
	case d >= time.Millisecond:
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	case d >= time.Microsecond:
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	default:
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
}

// printBenchmarkResult outputs one workload's statistics to the console.
func printBenchmarkResult(result BenchmarkResult) {
	successRate := float64(result.SuccessCount) / float64(result.Iterations) * 100

	log.Printf("  ┌─ Results")
	log.Printf("  │  Total Time:     %s", formatDuration(result.TotalDuration))
	log.Printf("  │  Avg per Call:   %s", formatDuration(result.AvgDuration))
	log.Printf("  │  Min / Max:      %s / %s", formatDuration(result.MinDuration), formatDuration(result.MaxDuration))
	log.Printf("  │  Median (P50):   %s", formatDuration(result.MedianDuration))
	log.Printf("  │  P95:            %s", formatDuration(result.P95Duration))
	log.Printf("  │  P99:            %s", formatDuration(result.P99Duration))
	log.Printf("  │  Throughput:     %.0f estimates/sec", result.EstimatesPerSecond)
	log.Printf("  │  Success Rate:   %.1f%% (%d/%d)", successRate, result.SuccessCount, result.Iterations)

	if result.ErrorCount > 0 {
		log.Printf("  │")
		log.Printf("  │  ⚠ Errors detected (%d failures):", result.ErrorCount)
		for _, errMsg := range result.ErrorSamples {
			safe := strings.NewReplacer("\n", " ", "\r", " ").Replace(errMsg)
			log.Printf("  │     %s", safe)
		}
	}

	log.Printf("  └─")
}

// saveJSONReport serializes the report to a JSON file.
func saveJSONReport(report BenchmarkReport, filename string) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("Error marshaling report: %v", err)
		return
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		log.Printf("Error writing JSON report: %v", err)
		return
	}

	log.Printf("JSON report saved: %s", filename)
}

// saveHTMLReport generates a styled HTML report from the results.
func saveHTMLReport(report BenchmarkReport, filename string) {
	var rows strings.Builder
	for _, result := range report.Results {
		successRate := float64(result.SuccessCount) / float64(result.Iterations) * 100
		fmt.Fprintf(&rows, `
					<tr class="hover:bg-gray-50 transition-colors">
						<td class="px-4 py-3 font-bold text-gray-800">%s</td>
						<td class="px-4 py-3 text-gray-700">%s</td>
						<td class="px-4 py-3 text-gray-700">%d</td>
						<td class="px-4 py-3 text-gray-700">%d</td>
						<td class="px-4 py-3 text-gray-700">%v</td>
						<td class="px-4 py-3 text-gray-700">%v / %v</td>
						<td class="px-4 py-3 text-gray-700">%v</td>
						<td class="px-4 py-3 text-indigo-600 font-semibold">%.0f</td>
						<td class="px-4 py-3 text-indigo-600 font-semibold">%.1f%%</td>
					</tr>
`,
			result.Workload,
			result.Kind,
			result.Iterations,
			result.Concurrent,
			result.AvgDuration,
			result.MinDuration,
			result.MaxDuration,
			result.P95Duration,
			result.EstimatesPerSecond,
			successRate,
		)
	}

	html := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
	<title>QueryCost Benchmark Report - %s</title>
	<script src="https://cdn.tailwindcss.com"></script>
	<style>
		body { font-family: ui-monospace, monospace; }
	</style>
</head>
<body class="bg-gray-100 p-6">
	<div class="max-w-7xl mx-auto bg-white rounded-lg shadow-lg p-8">
		<h1 class="text-4xl font-bold text-gray-800 border-b-4 border-indigo-500 pb-3 mb-6">
			QueryCost Benchmark Report
		</h1>

		<div class="bg-indigo-50 rounded-lg p-6 mb-8 grid grid-cols-2 md:grid-cols-4 gap-4">
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">Start Time</div>
				<div class="text-lg text-indigo-600 font-bold">%s</div>
			</div>
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">End Time</div>
				<div class="text-lg text-indigo-600 font-bold">%s</div>
			</div>
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">Total Duration</div>
				<div class="text-lg text-indigo-600 font-bold">%v</div>
			</div>
			<div class="space-y-1">
				<div class="text-sm font-semibold text-gray-600">Default Model</div>
				<div class="text-lg text-indigo-600 font-bold">%s</div>
			</div>
		</div>

		<h2 class="text-2xl font-bold text-gray-700 mt-8 mb-4">Workload Results</h2>
		<div class="overflow-x-auto">
			<table class="min-w-full border-collapse">
				<thead>
					<tr class="bg-indigo-500 text-white">
						<th class="px-4 py-3 text-left font-bold">Workload</th>
						<th class="px-4 py-3 text-left font-bold">Kind</th>
						<th class="px-4 py-3 text-left font-bold">Iterations</th>
						<th class="px-4 py-3 text-left font-bold">Concurrent</th>
						<th class="px-4 py-3 text-left font-bold">Avg Time</th>
						<th class="px-4 py-3 text-left font-bold">Min/Max</th>
						<th class="px-4 py-3 text-left font-bold">P95</th>
						<th class="px-4 py-3 text-left font-bold">EPS</th>
						<th class="px-4 py-3 text-left font-bold">Success Rate</th>
					</tr>
				</thead>
				<tbody class="divide-y divide-gray-200">%s
				</tbody>
			</table>
		</div>
	</div>
</body>
</html>
`,
		report.StartTime.Format("2006-01-02 15:04:05"),
		report.StartTime.Format("2006-01-02 15:04:05"),
		report.EndTime.Format("2006-01-02 15:04:05"),
		report.TotalDuration,
		report.DefaultModel,
		rows.String(),
	)

	if err := os.WriteFile(filename, []byte(html), 0o600); err != nil {
		log.Printf("Error writing HTML report: %v", err)
		return
	}

	log.Printf("HTML report saved: %s", filename)
}
