// Package engine owns the registry of named cost models and dispatches
// estimation, update and comparison calls to them. It records a bounded
// history of successful estimates, emits events for observers and feeds
// an internal metrics collector.
package engine

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"querycost/pkg/cost"
	"querycost/pkg/logging"
	"querycost/pkg/metrics"
	"querycost/pkg/plan"
	"querycost/pkg/qerr"
	"querycost/pkg/query"
	"querycost/pkg/statistics"
)

// Engine is the front door of the cost core. All methods are safe for
// concurrent use.
type Engine struct {
	mu        sync.RWMutex
	cfg       *Config
	models    map[string]cost.Model
	order     []string // registration order, drives comparison ties
	history   *historyBuffer
	listeners []Listener

	stats     *statistics.Catalog
	collector *metrics.Collector
	log       *slog.Logger
}

// Comparison is one row of a CompareModels result.
type Comparison struct {
	ModelName string
	Estimate  *cost.Estimate
	TotalCost float64
}

// New creates an engine with no registered models. A nil config gets
// defaults; a nil catalog gets a fresh one.
func New(cfg *Config, stats *statistics.Catalog) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	if stats == nil {
		stats = statistics.NewCatalog()
	}

	return &Engine{
		cfg:       cfg,
		models:    make(map[string]cost.Model),
		history:   newHistoryBuffer(cfg.HistorySize),
		stats:     stats,
		collector: metrics.NewCollector(),
		log:       logging.WithComponent("engine"),
	}
}

// RegisterModel adds a model under the given name. Registering an
// existing name replaces the previous model; its history entries are
// kept. The registration order of first appearance is retained and
// breaks comparison ties.
func (e *Engine) RegisterModel(name string, m cost.Model) error {
	if name == "" {
		return qerr.Validation("MODEL_NAME_EMPTY", "cost model name must not be empty", "")
	}
	if m == nil {
		return qerr.Validation("MODEL_NIL", "cost model must not be nil", name)
	}

	e.mu.Lock()
	_, replaced := e.models[name]
	e.models[name] = m
	if !replaced {
		e.order = append(e.order, name)
	}
	e.mu.Unlock()

	if replaced {
		e.log.Info("cost model replaced", "name", name)
	} else {
		e.log.Info("cost model registered", "name", name)
	}
	return nil
}

// Model returns the model registered under name, or the default model
// when name is empty.
func (e *Engine) Model(name string) (cost.Model, error) {
	_, m, err := e.resolve(name)
	return m, err
}

// Models returns the registered model names in registration order.
func (e *Engine) Models() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Statistics returns the catalog the engine passes to plan estimation.
func (e *Engine) Statistics() *statistics.Catalog {
	return e.stats
}

// Metrics returns the engine's metrics collector.
func (e *Engine) Metrics() *metrics.Collector {
	return e.collector
}

// EstimateQueryCost estimates q with the named model (default model when
// name is empty), records the estimate in history and emits an estimate
// event. Model errors propagate unchanged.
func (e *Engine) EstimateQueryCost(q *query.Query, ctx *cost.Context, modelName string) (*cost.Estimate, error) {
	name, m, err := e.resolve(modelName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	est, err := m.EstimateQueryCost(q, ctx)
	if err != nil {
		e.estimateFailed(name, err)
		return nil, err
	}

	e.estimateDone(HistoryEntry{ModelName: name, Query: q, Context: ctx, Estimate: est}, time.Since(start))
	return est, nil
}

// EstimatePlanCost estimates p with the named model against the engine's
// catalog, records the estimate in history and emits an estimate event.
// Model errors propagate unchanged.
func (e *Engine) EstimatePlanCost(p *plan.Node, ctx *cost.Context, modelName string) (*cost.Estimate, error) {
	name, m, err := e.resolve(modelName)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	est, err := m.EstimatePlanCost(p, e.stats, ctx)
	if err != nil {
		e.estimateFailed(name, err)
		return nil, err
	}

	e.estimateDone(HistoryEntry{ModelName: name, Plan: p, Context: ctx, Estimate: est}, time.Since(start))
	return est, nil
}

// UpdateModel feeds observed metrics back into the named model. It
// returns true only when the model applied an adjustment. Disabled
// adaptive learning, an unknown model, a model without update support,
// a rejected observation and a failed update all return false; failures
// emit an error event instead of propagating.
func (e *Engine) UpdateModel(p *plan.Node, actual *cost.ActualMetrics, ctx *cost.Context, modelName string) bool {
	if !e.adaptiveLearning() {
		return false
	}

	name, m, err := e.resolve(modelName)
	if err != nil {
		e.updateFailed(name, err)
		return false
	}

	updater, ok := m.(cost.Updater)
	if !ok {
		e.updateDone(name, cost.UpdateUnsupported)
		return false
	}

	outcome, err := e.callUpdater(updater, p, actual, e.learningContext(ctx))
	if err != nil {
		e.updateFailed(name, err)
		return false
	}

	e.updateDone(name, outcome)
	return outcome.Applied()
}

// CompareModels estimates q with each named model concurrently and
// returns the results sorted ascending by total cost. Ties keep
// registration order. With no names it compares every registered model;
// an empty registry is a validation error. Each per-model estimate goes
// through EstimateQueryCost, so history and events see all of them.
func (e *Engine) CompareModels(q *query.Query, ctx *cost.Context, modelNames ...string) ([]Comparison, error) {
	names := modelNames
	if len(names) == 0 {
		names = e.Models()
	}
	if len(names) == 0 {
		return nil, qerr.Validation("NO_MODELS", "no cost models registered to compare", "")
	}

	results := make([]Comparison, len(names))
	var g errgroup.Group
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			est, err := e.EstimateQueryCost(q, ctx, name)
			if err != nil {
				return err
			}
			results[i] = Comparison{ModelName: name, Estimate: est, TotalCost: est.TotalCost}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalCost < results[j].TotalCost
	})
	return results, nil
}

// History returns the most recent limit entries in insertion order,
// oldest first. A limit <= 0 returns everything retained.
func (e *Engine) History(limit int) []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.history.snapshot(limit)
}

// ClearHistory discards the estimation history. Registered models are
// unaffected.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	e.history.clear()
	e.mu.Unlock()
	e.log.Debug("history cleared")
}

// Subscribe registers a listener for engine events. Listeners run
// synchronously on the calling goroutine, outside the engine's locks.
func (e *Engine) Subscribe(l Listener) {
	if l == nil {
		return
	}
	e.mu.Lock()
	e.listeners = append(e.listeners, l)
	e.mu.Unlock()
}

func (e *Engine) resolve(name string) (string, cost.Model, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if name == "" {
		name = e.cfg.DefaultModel
	}
	m, ok := e.models[name]
	if !ok {
		return name, nil, qerr.NotFound("MODEL_NOT_FOUND", "cost model not registered", name)
	}
	return name, m, nil
}

func (e *Engine) adaptiveLearning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg.AdaptiveLearning
}

// learningContext copies ctx and stamps the engine's learning rate and
// anomaly threshold over whatever the caller set.
func (e *Engine) learningContext(ctx *cost.Context) *cost.Context {
	out := &cost.Context{}
	if ctx != nil {
		*out = *ctx
	}
	e.mu.RLock()
	out.LearningRate = e.cfg.LearningRate
	out.AnomalyThreshold = e.cfg.AnomalyThreshold
	e.mu.RUnlock()
	return out
}

// callUpdater invokes the model's Update, converting a panic into an
// error so a misbehaving model cannot take the caller down.
func (e *Engine) callUpdater(u cost.Updater, p *plan.Node, actual *cost.ActualMetrics, ctx *cost.Context) (outcome cost.UpdateOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = cost.UpdateUnsupported
			err = qerr.New(qerr.KindInternal, "UPDATE_PANIC", fmt.Sprintf("model update panicked: %v", r))
		}
	}()
	return u.Update(p, actual, ctx)
}

func (e *Engine) estimateDone(entry HistoryEntry, took time.Duration) {
	entry.ID = uuid.NewString()
	entry.At = time.Now()

	e.mu.Lock()
	e.history.push(entry)
	e.mu.Unlock()

	e.collector.RecordEstimate(entry.ModelName, took)

	ev := newEvent(EventEstimate, entry.ModelName)
	ev.TotalCost = entry.Estimate.TotalCost
	e.emit(ev)
}

func (e *Engine) estimateFailed(name string, err error) {
	e.collector.RecordError(name)
	logging.WithError(err).Error("estimation failed", "model", name)

	ev := newEvent(EventError, name)
	ev.Err = err
	e.emit(ev)
}

func (e *Engine) updateDone(name string, outcome cost.UpdateOutcome) {
	e.collector.RecordUpdate(name, outcome.String())
	e.log.Debug("model update finished", "model", name, "outcome", outcome.String())

	ev := newEvent(EventUpdate, name)
	ev.Outcome = outcome.String()
	e.emit(ev)
}

func (e *Engine) updateFailed(name string, err error) {
	e.collector.RecordError(name)
	logging.WithError(err).Warn("model update failed", "model", name)

	ev := newEvent(EventError, name)
	ev.Err = err
	e.emit(ev)
}

func (e *Engine) emit(ev Event) {
	e.mu.RLock()
	listeners := make([]Listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
