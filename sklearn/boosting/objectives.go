package boosting

import (
	"math"

	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
)

// Objective defines the loss optimised by the boosting engine.
//
// Raw scores are stored row-major: row i, output k lives at scores[i*k+k].
// Targets are the raw regression values or class indices 0..K-1.
type Objective interface {
	// Name returns the name of the objective
	Name() string

	// NumOutputs returns the number of raw scores per row
	NumOutputs() int

	// InitScore returns the initial raw score per output
	InitScore(targets []float64) []float64

	// GradHess writes the gradient and hessian of every (row, output) pair
	GradHess(targets, scores, grad, hess []float64)

	// Loss returns the mean loss
	Loss(targets, scores []float64) float64

	// Transform converts the raw scores of one row into predictions
	// (the value for regression, class probabilities for classification)
	Transform(raw []float64) []float64
}

// L2Objective implements squared error regression.
type L2Objective struct{}

func (o *L2Objective) Name() string    { return "regression" }
func (o *L2Objective) NumOutputs() int { return 1 }

func (o *L2Objective) InitScore(targets []float64) []float64 {
	if len(targets) == 0 {
		return []float64{0}
	}
	sum := 0.0
	for _, t := range targets {
		sum += t
	}
	return []float64{sum / float64(len(targets))}
}

func (o *L2Objective) GradHess(targets, scores, grad, hess []float64) {
	for i, t := range targets {
		grad[i] = scores[i] - t
		hess[i] = 1
	}
}

func (o *L2Objective) Loss(targets, scores []float64) float64 {
	sum := 0.0
	for i, t := range targets {
		d := scores[i] - t
		sum += 0.5 * d * d
	}
	return sum / float64(len(targets))
}

func (o *L2Objective) Transform(raw []float64) []float64 {
	return []float64{raw[0]}
}

// BinaryLogisticObjective implements the logistic loss for two classes.
// The single raw score is the log-odds of class 1.
type BinaryLogisticObjective struct{}

func (o *BinaryLogisticObjective) Name() string    { return "binary" }
func (o *BinaryLogisticObjective) NumOutputs() int { return 1 }

func (o *BinaryLogisticObjective) InitScore(targets []float64) []float64 {
	pos := 0.0
	for _, t := range targets {
		pos += t
	}
	p := lceErrors.ClipValue(pos/float64(len(targets)), 1e-6, 1-1e-6)
	return []float64{math.Log(p / (1 - p))}
}

func (o *BinaryLogisticObjective) GradHess(targets, scores, grad, hess []float64) {
	for i, t := range targets {
		p := sigmoid(scores[i])
		grad[i] = p - t
		hess[i] = math.Max(p*(1-p), 1e-16)
	}
}

func (o *BinaryLogisticObjective) Loss(targets, scores []float64) float64 {
	sum := 0.0
	for i, t := range targets {
		p := lceErrors.ClipValue(sigmoid(scores[i]), 1e-15, 1-1e-15)
		sum -= t*math.Log(p) + (1-t)*math.Log(1-p)
	}
	return sum / float64(len(targets))
}

func (o *BinaryLogisticObjective) Transform(raw []float64) []float64 {
	p := sigmoid(raw[0])
	return []float64{1 - p, p}
}

// SoftmaxObjective implements the multiclass log loss with one raw score per class.
type SoftmaxObjective struct {
	NumClass int
}

func (o *SoftmaxObjective) Name() string    { return "multiclass" }
func (o *SoftmaxObjective) NumOutputs() int { return o.NumClass }

func (o *SoftmaxObjective) InitScore(targets []float64) []float64 {
	counts := make([]float64, o.NumClass)
	for _, t := range targets {
		counts[int(t)]++
	}
	init := make([]float64, o.NumClass)
	for k, c := range counts {
		init[k] = math.Log(math.Max(c/float64(len(targets)), 1e-6))
	}
	return init
}

func (o *SoftmaxObjective) GradHess(targets, scores, grad, hess []float64) {
	k := o.NumClass
	for i, t := range targets {
		p := softmax(scores[i*k : (i+1)*k])
		for c := 0; c < k; c++ {
			y := 0.0
			if int(t) == c {
				y = 1
			}
			grad[i*k+c] = p[c] - y
			hess[i*k+c] = math.Max(2*p[c]*(1-p[c]), 1e-16)
		}
	}
}

func (o *SoftmaxObjective) Loss(targets, scores []float64) float64 {
	k := o.NumClass
	sum := 0.0
	for i, t := range targets {
		row := scores[i*k : (i+1)*k]
		sum += lceErrors.LogSumExp(row) - row[int(t)]
	}
	return sum / float64(len(targets))
}

func (o *SoftmaxObjective) Transform(raw []float64) []float64 {
	return softmax(raw)
}

// objectiveFor returns the objective for a task: numClass == 0 means regression.
func objectiveFor(numClass int) Objective {
	switch {
	case numClass == 0:
		return &L2Objective{}
	case numClass == 2:
		return &BinaryLogisticObjective{}
	default:
		return &SoftmaxObjective{NumClass: numClass}
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

func softmax(x []float64) []float64 {
	lse := lceErrors.LogSumExp(x)
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Exp(v - lse)
	}
	return out
}
