package plan

import (
	"fmt"
	"strings"
)

// Visualizer provides methods to visualize plan trees.
type Visualizer struct {
	// Costs maps positional node ids to estimated costs. When a node's id
	// is present its cost is included in the rendered line.
	Costs map[string]float64
}

// NewVisualizer creates a new plan visualizer without cost annotations.
func NewVisualizer() *Visualizer {
	return &Visualizer{}
}

// NewCostVisualizer creates a visualizer that annotates nodes with the
// given per-node costs, keyed by positional id.
func NewCostVisualizer(costs map[string]float64) *Visualizer {
	return &Visualizer{Costs: costs}
}

// Visualize returns a tree-like visualization of the plan.
func (v *Visualizer) Visualize(root *Node) string {
	if root == nil {
		return "<empty plan>\n"
	}
	var sb strings.Builder
	v.visualizeNode(&sb, root, RootID, "", true, true)
	return sb.String()
}

func (v *Visualizer) visualizeNode(sb *strings.Builder, node *Node, id, prefix string, isRoot, isLast bool) {
	switch {
	case isRoot:
		// Root node carries no connector.
	case isLast:
		sb.WriteString(prefix + "└── ")
	default:
		sb.WriteString(prefix + "├── ")
	}

	sb.WriteString(node.String())
	if cost, ok := v.Costs[id]; ok {
		sb.WriteString(fmt.Sprintf(" [cost=%.2f, rows=%d]", cost, node.RowCount))
	} else if node.RowCount > 0 {
		sb.WriteString(fmt.Sprintf(" [rows=%d]", node.RowCount))
	}
	sb.WriteString("\n")

	childPrefix := prefix
	if !isRoot {
		if isLast {
			childPrefix += "    "
		} else {
			childPrefix += "│   "
		}
	}
	for i, child := range node.Children {
		if child == nil {
			continue
		}
		childID := fmt.Sprintf("%s-%d", id, i)
		v.visualizeNode(sb, child, childID, childPrefix, false, i == len(node.Children)-1)
	}
}
