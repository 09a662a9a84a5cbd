package boosting

import (
	"math"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Node represents a single node of a regression tree.
// Leaves have Feature == -1 and carry the shrunk leaf value.
type Node struct {
	Feature     int
	Threshold   float64
	DefaultLeft bool // direction of rows whose feature is NaN
	Left        int
	Right       int
	Value       float64
	Gain        float64
	Count       int
}

// IsLeaf returns true if the node is a leaf node
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is one regression tree of the ensemble, fitted on one output.
type Tree struct {
	Output int
	Nodes  []Node
}

// Predict returns the leaf value reached by row.
func (t *Tree) Predict(row []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		v := row[n.Feature]
		switch {
		case math.IsNaN(v):
			if n.DefaultLeft {
				i = n.Left
			} else {
				i = n.Right
			}
		case v <= n.Threshold:
			i = n.Left
		default:
			i = n.Right
		}
	}
}

// NumLeaves returns the number of leaves.
func (t *Tree) NumLeaves() int {
	c := 0
	for i := range t.Nodes {
		if t.Nodes[i].IsLeaf() {
			c++
		}
	}
	return c
}

// Model is a fitted boosting ensemble. All fields are exported so that the
// model can be gob encoded as part of an LCE tree.
type Model struct {
	Backend    string
	Objective  string
	NumClass   int       // 0 for regression
	Classes    []float64 // original labels, index = encoded class
	NFeatures  int
	InitScore  []float64
	Trees      []Tree
	NumOutputs int
}

func (m *Model) objective() Objective {
	return objectiveFor(m.NumClass)
}

// PredictRaw returns the raw scores of one row.
func (m *Model) PredictRaw(row []float64) []float64 {
	raw := make([]float64, m.NumOutputs)
	copy(raw, m.InitScore)
	for i := range m.Trees {
		t := &m.Trees[i]
		raw[t.Output] += t.Predict(row)
	}
	return raw
}

// Transform returns the objective's output for every row of X: one column for
// regression, one probability column per class for classification.
func (m *Model) Transform(X mat.Matrix) (*mat.Dense, error) {
	rows, cols := X.Dims()
	if cols != m.NFeatures {
		return nil, lceErrors.NewDimensionError("Model.Transform", m.NFeatures, cols, 1)
	}
	obj := m.objective()
	width := 1
	if m.NumClass > 0 {
		width = m.NumClass
	}
	out := mat.NewDense(rows, width, nil)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, X)
		out.SetRow(i, obj.Transform(m.PredictRaw(row)))
	}
	return out, nil
}

// FeatureImportance returns the total split gain per feature, normalised to sum to 1.
func (m *Model) FeatureImportance() []float64 {
	imp := make([]float64, m.NFeatures)
	var total float64
	for _, t := range m.Trees {
		for _, n := range t.Nodes {
			if !n.IsLeaf() {
				imp[n.Feature] += n.Gain
				total += n.Gain
			}
		}
	}
	if total > 0 {
		for i := range imp {
			imp[i] /= total
		}
	}
	return imp
}
