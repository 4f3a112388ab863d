// Package query describes the caller-supplied query shape inspected by
// cost models. The core never executes queries; it only derives which
// logical operations a query implies.
package query

import "querycost/pkg/types"

// Query carries the recognized shape keys of a caller query. Fields are
// optional; a nil field means the caller did not set it. Several keys have
// aliases (Filter/Where, Sort/OrderBy, Group/Aggregate, Select/Project)
// because upstream callers differ in which spelling they produce. Sub-shapes
// are deliberately untyped: the core only checks for their presence.
type Query struct {
	Collection string

	Filter map[string]any
	Where  map[string]any

	Join any

	Sort    any
	OrderBy any

	Group     any
	Aggregate any

	Select  any
	Project any

	Limit *int64
	Skip  *int64
}

// OperationSet is the fixed set of boolean flags derived from a query.
// Parsing happens once; models branch on these flags instead of re-probing
// the query shape.
type OperationSet struct {
	Scan      bool
	Filter    bool
	Join      bool
	Sort      bool
	Aggregate bool
	Project   bool
	Limit     bool
	Skip      bool
}

// ParseOperations derives the OperationSet for q. Every query scans, so
// Scan is always set; the remaining flags follow key presence. A nil query
// falls back to a bare scan, matching the default behavior for malformed
// input. The query is never mutated.
func ParseOperations(q *Query) OperationSet {
	if q == nil {
		return OperationSet{Scan: true}
	}
	return OperationSet{
		Scan:      true,
		Filter:    q.Filter != nil || q.Where != nil,
		Join:      q.Join != nil,
		Sort:      q.Sort != nil || q.OrderBy != nil,
		Aggregate: q.Group != nil || q.Aggregate != nil,
		Project:   q.Select != nil || q.Project != nil,
		Limit:     q.Limit != nil,
		Skip:      q.Skip != nil,
	}
}

// Has reports whether the given operation is flagged in the set.
// Operations outside the query vocabulary (seek, index) are never set.
func (s OperationSet) Has(op types.Operation) bool {
	switch op {
	case types.OpScan:
		return s.Scan
	case types.OpFilter:
		return s.Filter
	case types.OpJoin:
		return s.Join
	case types.OpSort:
		return s.Sort
	case types.OpAggregate:
		return s.Aggregate
	case types.OpProject:
		return s.Project
	case types.OpLimit:
		return s.Limit
	case types.OpSkip:
		return s.Skip
	default:
		return false
	}
}

// Active returns the flagged operations in canonical order, so cost maps
// built from the set iterate deterministically.
func (s OperationSet) Active() []types.Operation {
	var active []types.Operation
	for _, op := range types.Operations() {
		if s.Has(op) {
			active = append(active, op)
		}
	}
	return active
}

// Count returns the number of flagged operations.
func (s OperationSet) Count() int {
	return len(s.Active())
}
