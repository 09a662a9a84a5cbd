package tree

import (
	"math"
	"sort"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
)

// criterion は不純度の計算方法を表す。
// stats はノード内サンプルの十分統計量 (分類: クラス別カウント, 回帰: [n, Σy, Σy²])。
type criterion interface {
	statSize() int
	// add は stats にサンプル i を sign (+1/-1) の向きで加える
	add(stats []float64, i int, sign float64)
	count(stats []float64) float64
	impurity(stats []float64) float64
	// value はリーフの出力 (クラス分布または平均)
	value(stats []float64) []float64
}

type giniCriterion struct {
	y []int
	k int
}

func (c *giniCriterion) statSize() int { return c.k }

func (c *giniCriterion) add(stats []float64, i int, sign float64) { stats[c.y[i]] += sign }

func (c *giniCriterion) count(stats []float64) float64 { return sumOf(stats) }

func (c *giniCriterion) impurity(stats []float64) float64 {
	n := sumOf(stats)
	if n <= 0 {
		return 0
	}
	g := 1.0
	for _, s := range stats {
		p := s / n
		g -= p * p
	}
	return g
}

func (c *giniCriterion) value(stats []float64) []float64 { return distribution(stats) }

type entropyCriterion struct {
	giniCriterion
}

func (c *entropyCriterion) impurity(stats []float64) float64 {
	n := sumOf(stats)
	if n <= 0 {
		return 0
	}
	var h float64
	for _, s := range stats {
		if s > 0 {
			p := s / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

type squaredErrorCriterion struct {
	y []float64
}

func (c *squaredErrorCriterion) statSize() int { return 3 }

func (c *squaredErrorCriterion) add(stats []float64, i int, sign float64) {
	v := c.y[i]
	stats[0] += sign
	stats[1] += sign * v
	stats[2] += sign * v * v
}

func (c *squaredErrorCriterion) count(stats []float64) float64 { return stats[0] }

func (c *squaredErrorCriterion) impurity(stats []float64) float64 {
	if stats[0] <= 0 {
		return 0
	}
	mean := stats[1] / stats[0]
	v := stats[2]/stats[0] - mean*mean
	if v < 0 {
		return 0
	}
	return v
}

func (c *squaredErrorCriterion) value(stats []float64) []float64 {
	if stats[0] <= 0 {
		return []float64{0}
	}
	return []float64{stats[1] / stats[0]}
}

func sumOf(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s
}

func distribution(counts []float64) []float64 {
	out := make([]float64, len(counts))
	n := sumOf(counts)
	if n <= 0 {
		return out
	}
	for i, c := range counts {
		out[i] = c / n
	}
	return out
}

// Impurity はラベル列 y の不純度を criterion ("gini", "entropy", "squared_error") で計算する。
// 分類の criterion では y の値をクラスラベルとして扱う。
func Impurity(criterionName string, y []float64) (float64, error) {
	if len(y) == 0 {
		return 0, nil
	}
	switch criterionName {
	case "gini", "entropy":
		labels, k := encodeLabels(y)
		var c criterion = &giniCriterion{y: labels, k: k}
		if criterionName == "entropy" {
			c = &entropyCriterion{giniCriterion{y: labels, k: k}}
		}
		stats := make([]float64, k)
		for i := range labels {
			c.add(stats, i, 1)
		}
		return c.impurity(stats), nil
	case "squared_error":
		c := &squaredErrorCriterion{y: y}
		stats := make([]float64, 3)
		for i := range y {
			c.add(stats, i, 1)
		}
		return c.impurity(stats), nil
	default:
		return 0, lceErrors.NewValidationError("criterion", "must be gini, entropy or squared_error", criterionName)
	}
}

// ImpurityDecrease は parent を left/right に分割したときの重み付き不純度減少量を返す
func ImpurityDecrease(criterionName string, left, right []float64) (float64, error) {
	n := float64(len(left) + len(right))
	if n == 0 {
		return 0, nil
	}
	parent := make([]float64, 0, len(left)+len(right))
	parent = append(parent, left...)
	parent = append(parent, right...)

	ip, err := Impurity(criterionName, parent)
	if err != nil {
		return 0, err
	}
	il, _ := Impurity(criterionName, left)
	ir, _ := Impurity(criterionName, right)
	return ip - float64(len(left))/n*il - float64(len(right))/n*ir, nil
}

// encodeLabels はラベルを 0..k-1 に符号化する (昇順)
func encodeLabels(y []float64) ([]int, int) {
	classes := uniqueSorted(y)
	index := make(map[float64]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	out := make([]int, len(y))
	for i, v := range y {
		out[i] = index[v]
	}
	return out, len(classes)
}

func uniqueSorted(y []float64) []float64 {
	seen := make(map[float64]struct{}, 8)
	var out []float64
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}
