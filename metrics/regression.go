package metrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// epsilon bounds the MAPE denominator (float64 machine epsilon).
const epsilon = 0x1p-52

// meanOf returns the mean of f(i) over 0..n-1.
func meanOf(n int, f func(i int) float64) float64 {
	var sum float64
	for i := 0; i < n; i++ {
		sum += f(i)
	}
	return sum / float64(n)
}

// MSE は平均二乗誤差
func MSE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MSE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return meanOf(n, func(i int) float64 {
		d := yTrue.AtVec(i) - yPred.AtVec(i)
		return d * d
	}), nil
}

// MAE は平均絶対誤差
func MAE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return meanOf(n, func(i int) float64 {
		return math.Abs(yTrue.AtVec(i) - yPred.AtVec(i))
	}), nil
}

// MAPE returns the mean absolute percentage error as a fraction
// (0.1 means 10%). Denominators are clamped to epsilon so zero targets give
// a large but finite error.
func MAPE(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("MAPE", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	return meanOf(n, func(i int) float64 {
		y := yTrue.AtVec(i)
		return math.Abs(y-yPred.AtVec(i)) / math.Max(math.Abs(y), epsilon)
	}), nil
}

// finiteRatioScore is 1 - num/den, with the constant-target convention:
// when den is zero the score is 1 for a perfect fit (num == 0) and 0 otherwise.
func finiteRatioScore(num, den float64) float64 {
	if den == 0 {
		if num == 0 {
			return 1
		}
		return 0
	}
	return 1 - num/den
}

// R2Score は決定係数（R²）を返す。
// yTrue が定数のときはエラーにせず、完全一致なら 1、それ以外は 0 を返す。
func R2Score(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("R2Score", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	mean := meanOf(n, yTrue.AtVec)
	rss := meanOf(n, func(i int) float64 {
		d := yTrue.AtVec(i) - yPred.AtVec(i)
		return d * d
	})
	tss := meanOf(n, func(i int) float64 {
		d := yTrue.AtVec(i) - mean
		return d * d
	})
	return finiteRatioScore(rss, tss), nil
}

// ExplainedVarianceScore は 1 - Var(yTrue - yPred) / Var(yTrue)。
// 定数ターゲットの扱いは R2Score と同じ。
func ExplainedVarianceScore(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ExplainedVarianceScore", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	resid := func(i int) float64 { return yTrue.AtVec(i) - yPred.AtVec(i) }
	residMean := meanOf(n, resid)
	yMean := meanOf(n, yTrue.AtVec)
	varResid := meanOf(n, func(i int) float64 {
		d := resid(i) - residMean
		return d * d
	})
	varTrue := meanOf(n, func(i int) float64 {
		d := yTrue.AtVec(i) - yMean
		return d * d
	})
	return finiteRatioScore(varResid, varTrue), nil
}
