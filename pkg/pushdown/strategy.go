package pushdown

import (
	"log/slog"
	"sort"
	"strings"

	"querycost/pkg/cost"
	"querycost/pkg/engine"
	"querycost/pkg/logging"
	"querycost/pkg/qerr"
	"querycost/pkg/query"
)

// maxProjectionNesting bounds descriptor recursion so a cyclic or
// absurdly deep projection cannot hang the pipeline.
const maxProjectionNesting = 32

// Strategy rewrites projections for pushdown into a data source.
type Strategy struct {
	analyzer Analyzer

	// eng, when set, supplies cost estimates; projections on data whose
	// estimated query cost is below minWorthwhileCost are left alone.
	eng               *engine.Engine
	minWorthwhileCost float64

	log *slog.Logger
}

// NewStrategy creates a strategy with the given complexity analyzer.
// A nil analyzer gets the default scorer.
func NewStrategy(analyzer Analyzer) *Strategy {
	if analyzer == nil {
		analyzer = DefaultAnalyzer()
	}
	return &Strategy{
		analyzer: analyzer,
		log:      logging.WithComponent("pushdown"),
	}
}

// NewCostAwareStrategy additionally consults the engine before
// rewriting: when the estimated cost of the projected query is below
// minWorthwhileCost, pushdown is skipped. A minWorthwhileCost <= 0
// records the estimate without gating on it.
func NewCostAwareStrategy(analyzer Analyzer, eng *engine.Engine, minWorthwhileCost float64) *Strategy {
	s := NewStrategy(analyzer)
	s.eng = eng
	s.minWorthwhileCost = minWorthwhileCost
	return s
}

// result is the internal outcome of one attempt. The outer boundary
// collapses it to a bare descriptor; tests inspect the detail.
type result struct {
	descriptor    *Descriptor
	applied       bool
	reason        string
	err           error
	estimatedCost float64
}

// Apply rewrites d for the data source described by ctx. It never
// returns an error and never mutates d: any skip or failure yields the
// original descriptor unchanged.
func (s *Strategy) Apply(d *Descriptor, ctx *Context) *Descriptor {
	res := s.apply(d, ctx)
	switch {
	case res.err != nil:
		logging.WithError(res.err).Warn("projection pushdown failed", "reason", res.reason)
	case !res.applied:
		s.log.Debug("projection pushdown skipped", "reason", res.reason)
	default:
		s.log.Debug("projection pushdown applied",
			"fields_in", d.Len(), "fields_out", res.descriptor.Len())
	}
	return res.descriptor
}

func (s *Strategy) apply(d *Descriptor, ctx *Context) result {
	if d == nil || len(d.Fields) == 0 {
		return result{descriptor: d, reason: "empty projection"}
	}
	if ctx == nil || !ctx.SupportsProjectionPushdown {
		return result{descriptor: d, reason: "pushdown disabled"}
	}
	if ctx.DataSource == nil {
		return result{descriptor: d, reason: "no data source"}
	}

	complexity := s.analyzer.AnalyzeProjection(d)
	if complexity.Score < MinComplexityScore {
		return result{descriptor: d, reason: "projection too simple"}
	}

	caps := resolveCapabilities(ctx)
	if !caps.SupportsProjection {
		return result{
			descriptor: d,
			reason:     "projection unsupported",
			err:        qerr.New(qerr.KindInternal, "PROJECTION_UNSUPPORTED", "data source cannot evaluate projections"),
		}
	}

	res := result{descriptor: d}
	if s.eng != nil {
		est, err := s.eng.EstimateQueryCost(
			&query.Query{Collection: ctx.Collection, Select: d},
			&cost.Context{Collection: ctx.Collection},
			"",
		)
		if err != nil {
			res.reason = "cost estimation failed"
			res.err = err
			return res
		}
		res.estimatedCost = est.TotalCost
		if s.minWorthwhileCost > 0 && est.TotalCost < s.minWorthwhileCost {
			res.reason = "not worthwhile"
			return res
		}
	}

	rewritten, err := s.runPipeline(d, caps)
	if err != nil {
		res.reason = "pipeline failed"
		res.err = err
		return res
	}

	res.descriptor = rewritten
	res.applied = true
	return res
}

// runPipeline executes the three rewrite steps on a detached copy.
func (s *Strategy) runPipeline(d *Descriptor, caps Capabilities) (*Descriptor, error) {
	prepared, err := s.prepare(d, caps)
	if err != nil {
		return nil, err
	}
	converted := s.convert(prepared, caps)
	return s.limitFields(converted, caps), nil
}

// prepare copies the descriptor, collapsing nested specs the source
// cannot represent to a bare include flag.
func (s *Strategy) prepare(d *Descriptor, caps Capabilities) (*Descriptor, error) {
	depth := caps.MaxProjectionDepth
	if !caps.SupportsNested || depth < 1 {
		depth = 1
	}
	return truncateDepth(d, depth, 0)
}

func truncateDepth(d *Descriptor, maxDepth, seen int) (*Descriptor, error) {
	if seen >= maxProjectionNesting {
		return nil, qerr.New(qerr.KindInternal, "PROJECTION_TOO_DEEP", "projection nesting exceeds the safety bound")
	}

	out := &Descriptor{
		Fields:   make([]Field, 0, len(d.Fields)),
		Metadata: copyMetadata(d.Metadata),
	}
	for _, f := range d.Fields {
		if f.Name == "" {
			return nil, qerr.Validation("FIELD_NAME_EMPTY", "projection field without a name", "")
		}
		nf := Field{Name: f.Name, Include: f.Include}
		if f.Nested != nil && maxDepth > 1 {
			nested, err := truncateDepth(f.Nested, maxDepth-1, seen+1)
			if err != nil {
				return nil, err
			}
			nf.Nested = nested
		}
		out.Fields = append(out.Fields, nf)
	}
	return out, nil
}

// convert drops fields whose polarity the source cannot evaluate.
func (s *Strategy) convert(d *Descriptor, caps Capabilities) *Descriptor {
	out := &Descriptor{
		Fields:   make([]Field, 0, len(d.Fields)),
		Metadata: d.Metadata,
	}
	for _, f := range d.Fields {
		if f.Include && !caps.SupportsInclusion {
			continue
		}
		if !f.Include && !caps.SupportsExclusion {
			continue
		}
		out.Fields = append(out.Fields, f)
	}
	return out
}

// limitFields trims the projection to the source's field budget,
// keeping the highest-priority fields. Ties keep descriptor order.
func (s *Strategy) limitFields(d *Descriptor, caps Capabilities) *Descriptor {
	limit := caps.MaxProjectionFields
	if limit <= 0 || len(d.Fields) <= limit {
		return d
	}

	ranked := make([]Field, len(d.Fields))
	copy(ranked, d.Fields)
	sort.SliceStable(ranked, func(i, j int) bool {
		return fieldPriority(ranked[i].Name) > fieldPriority(ranked[j].Name)
	})
	return &Descriptor{Fields: ranked[:limit:limit], Metadata: d.Metadata}
}

// fieldPriority ranks a field for trimming. Identifier-ish fields are
// most valuable to keep, binary payloads least.
func fieldPriority(name string) int {
	n := strings.ToLower(name)
	switch {
	case n == "id" || n == "_id" || n == "uuid" || strings.HasSuffix(n, "_id"):
		return 1000
	case strings.Contains(n, "name") || strings.Contains(n, "title"):
		return 800
	case strings.Contains(n, "status") || strings.Contains(n, "type"):
		return 700
	case strings.Contains(n, "date") || strings.Contains(n, "time") ||
		strings.Contains(n, "created") || strings.Contains(n, "updated"):
		return 600
	case strings.Contains(n, "count") || strings.Contains(n, "total"):
		return 500
	case strings.Contains(n, "description") || strings.Contains(n, "content"):
		return 300
	case strings.Contains(n, "image") || strings.Contains(n, "file"):
		return 100
	default:
		return 0
	}
}
