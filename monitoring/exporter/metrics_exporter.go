package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
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

// startSimulation drives a steady stream of estimates through the engine
// so the exported counters move. Every few rounds it feeds back a synthetic
// execution result to exercise the update counters too.
func startSimulation(eng *engine.Engine, interval time.Duration) {
	go func() {
		queries := []struct {
			q   *query.Query
			ctx *cost.Context
		}{
			{
				q:   &query.Query{Collection: "users", Filter: map[string]any{"status": "active"}},
				ctx: &cost.Context{Collection: "users"},
			},
			{
				q: &query.Query{
					Collection: "orders",
					Join:       map[string]any{"collection": "users", "on": "user_id"},
					Sort:       "total",
				},
				ctx: &cost.Context{Collection: "orders"},
			},
			{
				q:   &query.Query{Collection: "events", Group: map[string]any{"by": "kind"}},
				ctx: &cost.Context{Collection: "events"},
			},
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		round := 0
		for range ticker.C {
			round++
			for i, sample := range queries {
				model := ""
				if i%2 == 1 {
					model = "memory"
				}
				est, err := eng.EstimateQueryCost(sample.q, sample.ctx, model)
				if err != nil {
					continue
				}

				if round%5 == 0 {
					// Feed the estimate back as an observed execution with
					// a small synthetic drift.
					p := &plan.Node{Type: "scan", Collection: sample.ctx.Collection}
					actual := &cost.ActualMetrics{TotalCost: est.TotalCost * 1.1}
					eng.UpdateModel(p, actual, sample.ctx, "statistical")
				}
			}
		}
	}()
}

func newExporterEngine() *engine.Engine {
	catalog := statistics.NewCatalog()
	catalog.Set("users", statistics.Entry{RowCount: 50_000, IndexType: types.IndexFull, MemoryType: types.MemoryHigh, AvgRowSize: 180})
	catalog.Set("orders", statistics.Entry{RowCount: 2_000_000, IndexType: types.IndexPartial, MemoryType: types.MemoryMedium, AvgRowSize: 96})
	catalog.Set("events", statistics.Entry{RowCount: 25_000_000, IndexType: types.IndexNone, MemoryType: types.MemoryLow, AvgRowSize: 320})

	eng := engine.New(engine.DefaultConfig(), catalog)
	if err := eng.RegisterModel("statistical", statistical.New(catalog)); err != nil {
		log.Fatalf("Failed to register statistical model: %v", err)
	}
	if err := eng.RegisterModel("memory", memory.New(catalog)); err != nil {
		log.Fatalf("Failed to register memory model: %v", err)
	}
	return eng
}

func main() {
	metricsPort := os.Getenv("METRICS_PORT")
	if metricsPort == "" {
		metricsPort = "8080"
	}

	interval := 5 * time.Second
	if raw := os.Getenv("SIMULATION_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			interval = parsed
		}
	}

	log.Printf("Starting QueryCost metrics exporter...")
	log.Printf("Metrics Port: %s, Simulation Interval: %v", metricsPort, interval)

	eng := newExporterEngine()
	startSimulation(eng, interval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", eng.Metrics())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})

	srv := &http.Server{
		Addr:         ":" + metricsPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Metrics available at http://localhost:%s/metrics", metricsPort)
	log.Fatal(srv.ListenAndServe())
}
