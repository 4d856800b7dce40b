package decisiongraph

import (
	"fmt"
	"strings"
)

// ExportDOT renders g in the textual DOT format spec.md §6 specifies: one
// root rule node, one node per condition colored by match result, one
// terminal node. verbose additionally emits up to 3 bound-event sub-nodes
// per condition, matching the decision-graph's "show_events"
// option (features/dot_exporter.py) as an opt-in beyond the §6 minimum.
func ExportDOT(g *Graph, verbose bool) []byte {
	var b strings.Builder

	b.WriteString("digraph CorrelationGraph {\n")
	b.WriteString("    rankdir=LR;\n")
	b.WriteString("    node [shape=box, style=rounded];\n\n")

	fmt.Fprintf(&b, "    rule [label=\"%s\\n%s\", fillcolor=lightblue, style=filled];\n\n",
		escape(g.RuleID), escape(g.RuleName))

	for i, c := range g.Conditions {
		color := "lightcoral"
		if c.Matched {
			color = "lightgreen"
		}
		fmt.Fprintf(&b, "    cond%d [label=\"Condition %d\\n%s\", fillcolor=%s, style=filled];\n",
			i, c.Index, escape(c.ConditionType), color)
		if i == 0 {
			b.WriteString("    rule -> cond0;\n")
		} else {
			fmt.Fprintf(&b, "    cond%d -> cond%d;\n", i-1, i)
		}
	}
	b.WriteString("\n")

	resultColor, resultLabel := "red", "NO MATCH"
	if g.Matched {
		resultColor, resultLabel = "green", "MATCHED\\nAlert Generated"
	}
	fmt.Fprintf(&b, "    result [label=\"%s\", fillcolor=%s, style=filled, shape=ellipse];\n", resultLabel, resultColor)
	if len(g.Conditions) > 0 {
		fmt.Fprintf(&b, "    cond%d -> result;\n", len(g.Conditions)-1)
	} else {
		b.WriteString("    rule -> result;\n")
	}

	if verbose {
		b.WriteString("\n")
		for i, c := range g.Conditions {
			events := c.BoundEvents
			if len(events) > 3 {
				events = events[:3]
			}
			for j, ev := range events {
				fmt.Fprintf(&b, "    event%d_%d [label=\"%s\\n%s\", shape=note, fillcolor=lightyellow, style=filled];\n",
					i, j, escape(ev.Type), ev.Timestamp.UTC().Format("2006-01-02T15:04:05Z"))
				fmt.Fprintf(&b, "    cond%d -> event%d_%d [style=dashed];\n", i, i, j)
			}
		}
	}

	b.WriteString("}\n")
	return []byte(b.String())
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
