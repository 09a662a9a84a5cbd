package boosting

import (
	"math"
	"sort"
)

// binMapper maps raw feature values to histogram bins.
// A value x falls into the first bin b with x <= uppers[f][b]; NaN maps to -1.
type binMapper struct {
	uppers [][]float64
}

func newBinMapper(X [][]float64, maxBin int) *binMapper {
	p := len(X[0])
	bm := &binMapper{uppers: make([][]float64, p)}
	values := make([]float64, 0, len(X))
	for f := 0; f < p; f++ {
		values = values[:0]
		for _, row := range X {
			if v := row[f]; !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		bm.uppers[f] = findBinBoundaries(values, maxBin)
	}
	return bm
}

// findBinBoundaries はビンの上限値を返す。最後の上限は +Inf。
func findBinBoundaries(values []float64, maxBin int) []float64 {
	if len(values) == 0 {
		return []float64{math.Inf(1)}
	}
	sort.Float64s(values)
	distinct := values[:0:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			distinct = append(distinct, v)
		}
	}

	var uppers []float64
	if len(distinct) <= maxBin {
		for i := 0; i+1 < len(distinct); i++ {
			uppers = append(uppers, distinct[i]+(distinct[i+1]-distinct[i])/2)
		}
	} else {
		// 分位点で区切る
		for b := 1; b < maxBin; b++ {
			q := b * len(values) / maxBin
			lo, hi := values[q-1], values[q]
			if lo == hi {
				continue
			}
			cut := lo + (hi-lo)/2
			if len(uppers) == 0 || cut > uppers[len(uppers)-1] {
				uppers = append(uppers, cut)
			}
		}
	}
	return append(uppers, math.Inf(1))
}

func (bm *binMapper) numBins(f int) int { return len(bm.uppers[f]) }

func (bm *binMapper) bin(f int, x float64) int32 {
	if math.IsNaN(x) {
		return -1
	}
	return int32(sort.SearchFloat64s(bm.uppers[f], x))
}

func (bm *binMapper) transform(X [][]float64) [][]int32 {
	out := make([][]int32, len(X))
	for i, row := range X {
		bins := make([]int32, len(row))
		for f, v := range row {
			bins[f] = bm.bin(f, v)
		}
		out[i] = bins
	}
	return out
}

// featureHist accumulates gradient statistics per bin of one feature.
type featureHist struct {
	g, h         []float64
	n            []int
	missG, missH float64
	missN        int
}

// splitInfo describes a candidate split of a node.
type splitInfo struct {
	feature     int
	bin         int
	threshold   float64
	defaultLeft bool
	gain        float64
}

// sums holds the gradient statistics of a set of rows.
type sums struct {
	g, h float64
	n    int
}

func (s sums) add(o sums) sums { return sums{s.g + o.g, s.h + o.h, s.n + o.n} }
func (s sums) sub(o sums) sums { return sums{s.g - o.g, s.h - o.h, s.n - o.n} }

func (t *trainer) buildHist(idx []int, grad, hess []float64, f int) featureHist {
	nb := t.bins.numBins(f)
	h := featureHist{g: make([]float64, nb), h: make([]float64, nb), n: make([]int, nb)}
	for _, i := range idx {
		b := t.binned[i][f]
		if b < 0 {
			h.missG += grad[i]
			h.missH += hess[i]
			h.missN++
			continue
		}
		h.g[b] += grad[i]
		h.h[b] += hess[i]
		h.n[b]++
	}
	return h
}

func thresholdL1(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	default:
		return 0
	}
}

func (t *trainer) leafScore(s sums) float64 {
	g := thresholdL1(s.g, t.params.RegAlpha)
	return g * g / (s.h + t.params.RegLambda + 1e-10)
}

// leafValue は学習率で縮小済みのリーフ値を返す
func (t *trainer) leafValue(s sums) float64 {
	if s.n == 0 {
		return 0
	}
	return -thresholdL1(s.g, t.params.RegAlpha) / (s.h + t.params.RegLambda + 1e-10) * t.params.LearningRate
}

// rawGain returns the loss reduction of splitting parent into left/right,
// or -Inf when a child violates the minimum size constraints.
func (t *trainer) rawGain(left, right sums) float64 {
	if left.n < t.params.MinChildSamples || right.n < t.params.MinChildSamples ||
		left.h < t.params.MinChildWeight || right.h < t.params.MinChildWeight {
		return math.Inf(-1)
	}
	return 0.5 * (t.leafScore(left) + t.leafScore(right) - t.leafScore(left.add(right)))
}

// scanFeature evaluates every split point of a histogram. gains[0][b] sends
// missing rows left, gains[1][b] sends them right. Split point b puts the
// observed bins 0..b on the left.
func (t *trainer) scanFeature(h featureHist) [2][]float64 {
	nb := len(h.g)
	var gains [2][]float64
	gains[0] = make([]float64, nb)
	gains[1] = make([]float64, nb)

	miss := sums{h.missG, h.missH, h.missN}
	var present sums
	for b := 0; b < nb; b++ {
		present = present.add(sums{h.g[b], h.h[b], h.n[b]})
	}

	var left sums
	for b := 0; b < nb; b++ {
		left = left.add(sums{h.g[b], h.h[b], h.n[b]})
		right := present.sub(left)
		gains[0][b] = math.Inf(-1)
		gains[1][b] = math.Inf(-1)
		if h.n[b] == 0 && b > 0 {
			// same partition as the previous split point
			if b < nb-1 {
				gains[0][b] = gains[0][b-1]
			}
			gains[1][b] = gains[1][b-1]
			continue
		}
		if b < nb-1 {
			gains[0][b] = t.rawGain(left.add(miss), right)
		}
		if miss.n > 0 {
			gains[1][b] = t.rawGain(left, right.add(miss))
		}
	}
	return gains
}

// bestSplit returns the best split over features, or false if no split has positive gain.
func (t *trainer) bestSplit(idx []int, grad, hess []float64, features []int) (splitInfo, bool) {
	best := splitInfo{gain: 0}
	found := false
	for _, f := range features {
		gains := t.scanFeature(t.buildHist(idx, grad, hess, f))
		for dir := 0; dir < 2; dir++ {
			for b, g := range gains[dir] {
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
	return best, found
}

// partition splits idx by a split.
func (t *trainer) partition(idx []int, s splitInfo) (left, right []int) {
	for _, i := range idx {
		b := t.binned[i][s.feature]
		if (b < 0 && s.defaultLeft) || (b >= 0 && int(b) <= s.bin) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	return left, right
}

func (t *trainer) sumOf(idx []int, grad, hess []float64) sums {
	var s sums
	for _, i := range idx {
		s.g += grad[i]
		s.h += hess[i]
	}
	s.n = len(idx)
	return s
}
