package tree

import (
	"math"
	"math/rand"
	"sort"
)

// builder grows a tree depth-first from row-major training data.
type builder struct {
	X               [][]float64
	crit            criterion
	maxDepth        int
	minSamplesSplit int
	minSamplesLeaf  int
	random          bool
	rng             *rand.Rand

	nodes       []Node
	importances []float64
}

type candidate struct {
	feature       int
	threshold     float64
	score         float64 // n_left*imp_left + n_right*imp_right
	leftImp       float64
	rightImp      float64
	nLeft, nRight int
}

func (b *builder) build(idx []int, nFeatures int) *Structure {
	b.importances = make([]float64, nFeatures)
	b.grow(idx, 0)

	var total float64
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for i := range b.importances {
			b.importances[i] /= total
		}
	}
	return &Structure{Nodes: b.nodes, NFeatures: nFeatures}
}

func (b *builder) grow(idx []int, depth int) int {
	stats := make([]float64, b.crit.statSize())
	for _, i := range idx {
		b.crit.add(stats, i, 1)
	}
	imp := b.crit.impurity(stats)

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{
		Feature:  -1,
		Left:     -1,
		Right:    -1,
		Impurity: imp,
		NSamples: len(idx),
		Depth:    depth,
		Value:    b.crit.value(stats),
	})

	n := len(idx)
	if (b.maxDepth >= 0 && depth >= b.maxDepth) ||
		n < b.minSamplesSplit ||
		n < 2*b.minSamplesLeaf ||
		imp <= 1e-12 {
		return id
	}

	best, ok := b.findSplit(idx, stats)
	if !ok {
		return id
	}

	left := make([]int, 0, best.nLeft)
	right := make([]int, 0, best.nRight)
	for _, i := range idx {
		if b.X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importances[best.feature] += float64(n)*imp - best.score
	b.nodes[id].Feature = best.feature
	b.nodes[id].Threshold = best.threshold

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.nodes[id].Left = l
	b.nodes[id].Right = r
	return id
}

func (b *builder) featureOrder(p int) []int {
	order := make([]int, p)
	for i := range order {
		order[i] = i
	}
	if b.random {
		b.rng.Shuffle(p, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	return order
}

// findSplit は不純度の重み付き和を最小化する分割を探す
func (b *builder) findSplit(idx []int, stats []float64) (candidate, bool) {
	best := candidate{score: math.Inf(1)}
	p := len(b.X[idx[0]])

	for _, f := range b.featureOrder(p) {
		var c candidate
		var ok bool
		if b.random {
			c, ok = b.randomSplit(idx, f)
		} else {
			c, ok = b.bestSplit(idx, stats, f)
		}
		if ok && c.score < best.score-1e-12 {
			best = c
		}
	}
	return best, !math.IsInf(best.score, 1)
}

func (b *builder) bestSplit(idx []int, stats []float64, f int) (candidate, bool) {
	sorted := make([]int, len(idx))
	copy(sorted, idx)
	sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

	left := make([]float64, len(stats))
	right := make([]float64, len(stats))
	copy(right, stats)

	n := len(sorted)
	best := candidate{feature: f, score: math.Inf(1)}
	for k := 0; k < n-1; k++ {
		i := sorted[k]
		b.crit.add(left, i, 1)
		b.crit.add(right, i, -1)

		nl := k + 1
		if nl < b.minSamplesLeaf {
			continue
		}
		if n-nl < b.minSamplesLeaf {
			break
		}
		lo, hi := b.X[i][f], b.X[sorted[k+1]][f]
		if lo == hi {
			continue
		}

		il, ir := b.crit.impurity(left), b.crit.impurity(right)
		score := float64(nl)*il + float64(n-nl)*ir
		if score < best.score-1e-12 {
			thr := lo + (hi-lo)/2
			if thr >= hi {
				thr = lo
			}
			best = candidate{feature: f, threshold: thr, score: score, leftImp: il, rightImp: ir, nLeft: nl, nRight: n - nl}
		}
	}
	return best, !math.IsInf(best.score, 1)
}

// randomSplit は [min, max) から一様に閾値を1つ引いて評価する
func (b *builder) randomSplit(idx []int, f int) (candidate, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, i := range idx {
		v := b.X[i][f]
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return candidate{}, false
	}
	thr := lo + b.rng.Float64()*(hi-lo)
	if thr >= hi {
		thr = lo
	}

	left := make([]float64, b.crit.statSize())
	right := make([]float64, b.crit.statSize())
	nl := 0
	for _, i := range idx {
		if b.X[i][f] <= thr {
			b.crit.add(left, i, 1)
			nl++
		} else {
			b.crit.add(right, i, 1)
		}
	}
	nr := len(idx) - nl
	if nl < b.minSamplesLeaf || nr < b.minSamplesLeaf {
		return candidate{}, false
	}
	il, ir := b.crit.impurity(left), b.crit.impurity(right)
	return candidate{
		feature: f, threshold: thr,
		score:   float64(nl)*il + float64(nr)*ir,
		leftImp: il, rightImp: ir, nLeft: nl, nRight: nr,
	}, true
}
