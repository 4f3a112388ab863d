// Package plan defines the logical plan tree handed to cost models.
// Plans are produced by an external planner; this package only describes
// their shape and provides deterministic traversal over them.
package plan

import (
	"fmt"
	"hash/fnv"

	"querycost/pkg/types"
)

// Node represents a node in the query execution plan tree.
// This is the logical representation before physical execution operators
// are created. All fields besides Type are optional; cost models fall back
// to collection statistics for anything absent.
type Node struct {
	// Type is the operator name, e.g. "scan", "join", "sort".
	Type string

	// Collection names the collection this node reads, when it reads one.
	Collection string

	// RowCount is the planner's row estimate for this node. Zero means
	// unknown and defers to statistics.
	RowCount int64

	// IndexType describes index coverage for this node's access path.
	IndexType types.IndexType

	// MemoryType describes expected memory residency for this node.
	MemoryType types.MemoryType

	Children []*Node
}

// Operation maps the node's operator name to a known Operation.
// The boolean reports whether the name was recognized.
func (n *Node) Operation() (types.Operation, bool) {
	return types.ParseOperation(n.Type)
}

// Rows returns the node's row estimate, or fallback when the planner left
// it unset.
func (n *Node) Rows(fallback int64) int64 {
	if n.RowCount > 0 {
		return n.RowCount
	}
	return fallback
}

// Size returns the number of nodes in the tree rooted at n.
func (n *Node) Size() int {
	if n == nil {
		return 0
	}
	size := 1
	for _, child := range n.Children {
		size += child.Size()
	}
	return size
}

// Depth returns the height of the tree rooted at n. A leaf has depth 1.
func (n *Node) Depth() int {
	if n == nil {
		return 0
	}
	max := 0
	for _, child := range n.Children {
		if d := child.Depth(); d > max {
			max = d
		}
	}
	return max + 1
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	if n.Collection != "" {
		return fmt.Sprintf("%s(%s)", n.Type, n.Collection)
	}
	return n.Type
}

// RootID is the positional id assigned to the root of every plan tree.
const RootID = "node-0"

// Walk visits root and every descendant in depth-first pre-order, parents
// before children. Each node is identified by its positional path id: the
// root is "node-0" and the i-th child of a node with id p is p + "-" + i,
// so the second child of the root is "node-0-1". Ids are stable for a given
// tree shape, which lets estimated and observed node costs be matched by key.
func Walk(root *Node, visit func(id string, n *Node)) {
	if root == nil {
		return
	}
	walkNode(root, RootID, visit)
}

func walkNode(n *Node, id string, visit func(string, *Node)) {
	visit(id, n)
	for i, child := range n.Children {
		if child == nil {
			continue
		}
		walkNode(child, fmt.Sprintf("%s-%d", id, i), visit)
	}
}

// Digest returns a stable fingerprint of the tree's shape: operator types,
// collections and child positions, but not row counts. Two plans with the
// same structure hash identically, which is what feedback records key on.
func (n *Node) Digest() string {
	h := fnv.New64a()
	Walk(n, func(id string, node *Node) {
		fmt.Fprintf(h, "%s|%s|%s;", id, node.Type, node.Collection)
	})
	return fmt.Sprintf("%016x", h.Sum64())
}
