package engine

import (
	"fmt"
	"strings"

	"querycost/pkg/cost"
	"querycost/pkg/plan"
	"querycost/pkg/types"
)

// Explain renders an estimate for humans. Plan estimates become an
// annotated plan tree; query estimates become one line per operation in
// canonical order. A nil estimate explains to "no estimate".
func Explain(est *cost.Estimate) string {
	if est == nil {
		return "no estimate\n"
	}

	var sb strings.Builder
	if est.Plan != nil {
		sb.WriteString(plan.NewCostVisualizer(est.Costs).Visualize(est.Plan))
	} else {
		for _, op := range types.Operations() {
			c, ok := est.Costs[string(op)]
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "%-10s cost=%.2f\n", op, c)
		}
	}
	fmt.Fprintf(&sb, "total: %.2f (rows=%d)\n", est.TotalCost, est.Stats.RowCount)
	return sb.String()
}
