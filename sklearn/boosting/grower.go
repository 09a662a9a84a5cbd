package boosting

import "math"

// grower builds the nodes of one regression tree from the gradients of one output.
type grower func(t *trainer, idx []int, grad, hess []float64, features []int) []Node

func growerFor(b Backend) grower {
	switch b {
	case LightGBM:
		return growLeafwise
	case CatBoost:
		return growOblivious
	default:
		return growDepthwise
	}
}

func (t *trainer) leaf(idx []int, grad, hess []float64) Node {
	s := t.sumOf(idx, grad, hess)
	return Node{Feature: -1, Left: -1, Right: -1, Value: t.leafValue(s), Count: s.n}
}

func (t *trainer) canSplit(idx []int, depth int) bool {
	if len(idx) < 2*t.params.MinChildSamples {
		return false
	}
	return t.params.MaxDepth <= 0 || depth < t.params.MaxDepth
}

// growDepthwise は XGBoost と同様に深さ優先で木を成長させる
func growDepthwise(t *trainer, idx []int, grad, hess []float64, features []int) []Node {
	var nodes []Node
	var grow func(idx []int, depth int) int
	grow = func(idx []int, depth int) int {
		id := len(nodes)
		nodes = append(nodes, t.leaf(idx, grad, hess))
		if !t.canSplit(idx, depth) {
			return id
		}
		s, ok := t.bestSplit(idx, grad, hess, features)
		if !ok {
			return id
		}
		left, right := t.partition(idx, s)
		l := grow(left, depth+1)
		r := grow(right, depth+1)
		setSplit(&nodes[id], s, l, r)
		return id
	}
	grow(idx, 0)
	return nodes
}

type openLeaf struct {
	node  int
	idx   []int
	depth int
	split splitInfo
	ok    bool
}

// growLeafwise は LightGBM と同様に利得が最大のリーフから順に分割する
func growLeafwise(t *trainer, idx []int, grad, hess []float64, features []int) []Node {
	nodes := []Node{t.leaf(idx, grad, hess)}

	evaluate := func(l *openLeaf) {
		if t.canSplit(l.idx, l.depth) {
			l.split, l.ok = t.bestSplit(l.idx, grad, hess, features)
		}
	}
	root := &openLeaf{node: 0, idx: idx}
	evaluate(root)
	open := []*openLeaf{root}

	for numLeaves := 1; numLeaves < t.params.NumLeaves; numLeaves++ {
		pick := -1
		for i, l := range open {
			if l.ok && (pick < 0 || l.split.gain > open[pick].split.gain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		l := open[pick]
		open = append(open[:pick], open[pick+1:]...)

		leftIdx, rightIdx := t.partition(l.idx, l.split)
		li, ri := len(nodes), len(nodes)+1
		nodes = append(nodes, t.leaf(leftIdx, grad, hess), t.leaf(rightIdx, grad, hess))
		setSplit(&nodes[l.node], l.split, li, ri)

		left := &openLeaf{node: li, idx: leftIdx, depth: l.depth + 1}
		right := &openLeaf{node: ri, idx: rightIdx, depth: l.depth + 1}
		evaluate(left)
		evaluate(right)
		open = append(open, left, right)
	}
	return nodes
}

// growOblivious は CatBoost と同様に各レベルで全リーフに同じ分割を適用する
func growOblivious(t *trainer, idx []int, grad, hess []float64, features []int) []Node {
	nodes := []Node{t.leaf(idx, grad, hess)}
	level := []openLeaf{{node: 0, idx: idx}}

	for depth := 0; depth < t.params.MaxDepth; depth++ {
		best := splitInfo{gain: 0}
		found := false
		for _, f := range features {
			var total [2][]float64
			for _, l := range level {
				gains := t.scanFeature(t.buildHist(l.idx, grad, hess, f))
				for dir := 0; dir < 2; dir++ {
					if total[dir] == nil {
						total[dir] = make([]float64, len(gains[dir]))
					}
					for b, g := range gains[dir] {
						if !math.IsInf(g, -1) {
							total[dir][b] += g
						}
					}
				}
			}
			for dir := 0; dir < 2; dir++ {
				for b, g := range total[dir] {
					g -= t.params.Gamma
					if g > best.gain+1e-12 {
						best = splitInfo{
							feature:     f,
							bin:         b,
							threshold:   t.bins.uppers[f][b],
							defaultLeft: dir == 0,
							gain:        g,
						}
						found = true
					}
				}
			}
		}
		if !found {
			break
		}

		next := make([]openLeaf, 0, 2*len(level))
		for _, l := range level {
			leftIdx, rightIdx := t.partition(l.idx, best)
			li, ri := len(nodes), len(nodes)+1
			nodes = append(nodes, t.leaf(leftIdx, grad, hess), t.leaf(rightIdx, grad, hess))
			s := best
			s.gain = best.gain / float64(len(level))
			setSplit(&nodes[l.node], s, li, ri)
			next = append(next, openLeaf{node: li, idx: leftIdx}, openLeaf{node: ri, idx: rightIdx})
		}
		level = next
	}
	return nodes
}

func setSplit(n *Node, s splitInfo, left, right int) {
	n.Feature = s.feature
	n.Threshold = s.threshold
	n.DefaultLeft = s.defaultLeft
	n.Gain = s.gain
	n.Left = left
	n.Right = right
}
