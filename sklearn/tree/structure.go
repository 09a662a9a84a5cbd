package tree

// Node is one node of a fitted decision tree. Leaves have Feature == -1.
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Impurity  float64
	NSamples  int
	Depth     int
	// Value is the class distribution (classifier) or the mean target (regressor).
	Value []float64
}

// Structure is the flat, read-only representation of a fitted tree.
// Node 0 is the root. Fields are exported so the structure can be gob encoded.
type Structure struct {
	Nodes     []Node
	NFeatures int
}

// IsLeaf reports whether node i is a leaf.
func (s *Structure) IsLeaf(i int) bool {
	return s.Nodes[i].Feature < 0
}

// Apply returns the index of the leaf reached by row.
// A row goes left when row[Feature] <= Threshold.
func (s *Structure) Apply(row []float64) int {
	i := 0
	for !s.IsLeaf(i) {
		n := &s.Nodes[i]
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// GoesLeft reports whether row is routed to the left child of the root.
// It is only meaningful when the root is an internal node.
func (s *Structure) GoesLeft(row []float64) bool {
	root := &s.Nodes[0]
	return row[root.Feature] <= root.Threshold
}

// Depth returns the depth of the deepest leaf; a single leaf has depth 0.
func (s *Structure) Depth() int {
	d := 0
	for _, n := range s.Nodes {
		if n.Depth > d {
			d = n.Depth
		}
	}
	return d
}

// NLeaves returns the number of leaves.
func (s *Structure) NLeaves() int {
	c := 0
	for i := range s.Nodes {
		if s.IsLeaf(i) {
			c++
		}
	}
	return c
}
