// Package metrics collects estimation counters for exposition: per-model
// estimate and update counts, error totals, and a bounded window of
// estimation durations. The engine records into one collector; consumers
// read snapshots or scrape the Prometheus text format.
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// durationWindow bounds the retained duration samples.
const durationWindow = 1000

// ModelStats aggregates one model's counters.
type ModelStats struct {
	Estimates   int64
	Applied     int64
	Rejected    int64
	Unsupported int64
	Errors      int64
}

// Summary is a detached snapshot of the collector.
type Summary struct {
	TotalEstimates int64
	TotalUpdates   int64
	TotalErrors    int64
	PerModel       map[string]ModelStats

	// AvgEstimateMicros is the mean estimation duration over the retained
	// window, in microseconds.
	AvgEstimateMicros float64

	LastEstimate time.Time
}

// Collector accumulates counters. Safe for concurrent use.
type Collector struct {
	mu           sync.RWMutex
	perModel     map[string]*ModelStats
	durations    []time.Duration
	lastEstimate time.Time
}

func NewCollector() *Collector {
	return &Collector{
		perModel:  make(map[string]*ModelStats),
		durations: make([]time.Duration, 0),
	}
}

func (c *Collector) statsFor(model string) *ModelStats {
	s, ok := c.perModel[model]
	if !ok {
		s = &ModelStats{}
		c.perModel[model] = s
	}
	return s
}

// RecordEstimate counts one successful estimation and its duration.
func (c *Collector) RecordEstimate(model string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statsFor(model).Estimates++
	c.lastEstimate = time.Now()
	c.durations = append(c.durations, d)

	// Keep only the newest samples to bound memory.
	if len(c.durations) > durationWindow {
		c.durations = c.durations[len(c.durations)-durationWindow:]
	}
}

// RecordUpdate counts one update call by its outcome: "applied",
// "rejected" or "unsupported".
func (c *Collector) RecordUpdate(model, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.statsFor(model)
	switch outcome {
	case "applied":
		s.Applied++
	case "rejected":
		s.Rejected++
	default:
		s.Unsupported++
	}
}

// RecordError counts one estimation or update failure.
func (c *Collector) RecordError(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statsFor(model).Errors++
}

// Snapshot returns a detached summary of all counters.
func (c *Collector) Snapshot() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := Summary{
		PerModel:     make(map[string]ModelStats, len(c.perModel)),
		LastEstimate: c.lastEstimate,
	}
	for model, s := range c.perModel {
		out.PerModel[model] = *s
		out.TotalEstimates += s.Estimates
		out.TotalUpdates += s.Applied + s.Rejected + s.Unsupported
		out.TotalErrors += s.Errors
	}

	if len(c.durations) > 0 {
		var total time.Duration
		for _, d := range c.durations {
			total += d
		}
		out.AvgEstimateMicros = float64(total.Microseconds()) / float64(len(c.durations))
	}
	return out
}

// PrometheusFormat renders the counters in Prometheus text format.
func (c *Collector) PrometheusFormat() string {
	snap := c.Snapshot()

	var b strings.Builder
	b.WriteString("# HELP querycost_estimates_total Total number of cost estimates\n")
	b.WriteString("# TYPE querycost_estimates_total counter\n")

	models := make([]string, 0, len(snap.PerModel))
	for model := range snap.PerModel {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		fmt.Fprintf(&b, "querycost_estimates_total{model=%q} %d\n",
			model, snap.PerModel[model].Estimates)
	}

	b.WriteString("\n# HELP querycost_updates_total Total number of model updates by outcome\n")
	b.WriteString("# TYPE querycost_updates_total counter\n")
	for _, model := range models {
		s := snap.PerModel[model]
		fmt.Fprintf(&b, "querycost_updates_total{model=%q,outcome=\"applied\"} %d\n", model, s.Applied)
		fmt.Fprintf(&b, "querycost_updates_total{model=%q,outcome=\"rejected\"} %d\n", model, s.Rejected)
		fmt.Fprintf(&b, "querycost_updates_total{model=%q,outcome=\"unsupported\"} %d\n", model, s.Unsupported)
	}

	b.WriteString("\n# HELP querycost_errors_total Total number of estimation errors\n")
	b.WriteString("# TYPE querycost_errors_total counter\n")
	for _, model := range models {
		fmt.Fprintf(&b, "querycost_errors_total{model=%q} %d\n",
			model, snap.PerModel[model].Errors)
	}

	b.WriteString("\n# HELP querycost_estimate_duration_microseconds Average estimation duration\n")
	b.WriteString("# TYPE querycost_estimate_duration_microseconds gauge\n")
	fmt.Fprintf(&b, "querycost_estimate_duration_microseconds %.2f\n", snap.AvgEstimateMicros)

	return b.String()
}

// ServeHTTP exposes PrometheusFormat, making the collector mountable as a
// /metrics handler.
func (c *Collector) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprint(w, c.PrometheusFormat())
}
