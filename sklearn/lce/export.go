package lce

import (
	"fmt"
	"strings"
)

// exportDOT renders the tree in Graphviz DOT. classes is nil for regression.
func exportDOT(root *Node, classes []float64) string {
	var sb strings.Builder
	sb.WriteString("digraph LCE {\n")
	sb.WriteString("\tnode [shape=box, style=\"rounded\", fontname=\"helvetica\"];\n")
	sb.WriteString("\tedge [fontname=\"helvetica\"];\n")

	id := 0
	var walk func(n *Node) int
	walk = func(n *Node) int {
		me := id
		id++
		fmt.Fprintf(&sb, "\tn%d [label=\"%s\"];\n", me, nodeLabel(n, classes))
		if n.IsLeaf() {
			return me
		}
		l := walk(n.Left)
		r := walk(n.Right)
		leftLabel, rightLabel := "yes", "no"
		if n.MissingSide == Left {
			leftLabel += ", missing"
		} else {
			rightLabel += ", missing"
		}
		fmt.Fprintf(&sb, "\tn%d -> n%d [label=\"%s\"];\n", me, l, leftLabel)
		fmt.Fprintf(&sb, "\tn%d -> n%d [label=\"%s\"];\n", me, r, rightLabel)
		return me
	}
	walk(root)

	sb.WriteString("}\n")
	return sb.String()
}

func nodeLabel(n *Node, classes []float64) string {
	var parts []string
	parts = append(parts, fmt.Sprintf("depth = %d", n.Depth), fmt.Sprintf("samples = %d", n.NSamples))

	switch {
	case n.Model != nil:
		parts = append(parts, fmt.Sprintf("%s (%d trees)", n.Model.Backend, len(n.Model.Trees)))
		if f, share, ok := topFeature(n); ok {
			parts = append(parts, fmt.Sprintf("top x[%d] (%.0f%%)", f, 100*share))
		}
	case classes != nil:
		parts = append(parts, fmt.Sprintf("class = %g", classes[int(n.Value)]))
	default:
		parts = append(parts, fmt.Sprintf("value = %.4g", n.Value))
	}
	if !n.IsLeaf() {
		root := n.Split.Nodes[0]
		parts = append(parts, fmt.Sprintf("%s <= %.4g", featureName(n, root.Feature), root.Threshold))
	}
	return strings.Join(parts, "\\n")
}

// topFeature returns the input column carrying the largest share of the node
// model's split gain. ok is false when the model never split.
func topFeature(n *Node) (int, float64, bool) {
	best, share := -1, 0.0
	for f, v := range n.Model.FeatureImportance() {
		if v > share {
			best, share = f, v
		}
	}
	return best, share, best >= 0
}

// featureName names a router feature: input and ancestor columns are x[i],
// the columns appended by the node's own model are m[j].
func featureName(n *Node, f int) string {
	own := 1
	if n.Model.NumClass > 0 {
		own = n.Model.NumClass
	}
	if base := n.Split.NFeatures - own; f >= base {
		return fmt.Sprintf("m[%d]", f-base)
	}
	return fmt.Sprintf("x[%d]", f)
}
