// Package types holds the small shared vocabulary of the cost core:
// logical operations and the index/memory descriptors attached to
// collection statistics and plan nodes.
package types

import "strings"

// Operation is a logical query operation recognized by cost models.
type Operation string

const (
	OpScan      Operation = "scan"
	OpSeek      Operation = "seek"
	OpFilter    Operation = "filter"
	OpJoin      Operation = "join"
	OpSort      Operation = "sort"
	OpAggregate Operation = "aggregate"
	OpProject   Operation = "project"
	OpLimit     Operation = "limit"
	OpSkip      Operation = "skip"
	OpIndex     Operation = "index"
)

// canonicalOrder fixes the iteration order for cost maps so that estimates,
// explain output and serialized weights stay deterministic across runs.
var canonicalOrder = []Operation{
	OpScan, OpSeek, OpFilter, OpJoin, OpSort,
	OpAggregate, OpProject, OpLimit, OpSkip, OpIndex,
}

// Operations returns every known operation in canonical order.
// The returned slice is a copy and safe to modify.
func Operations() []Operation {
	ops := make([]Operation, len(canonicalOrder))
	copy(ops, canonicalOrder)
	return ops
}

func (o Operation) String() string {
	return string(o)
}

// ParseOperation maps an operator name from a plan node or descriptor to an
// Operation. Matching is case-insensitive; the boolean reports whether the
// name was recognized.
func ParseOperation(s string) (Operation, bool) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range canonicalOrder {
		if op == known {
			return op, true
		}
	}
	return "", false
}
