package boosting

import (
	lceErrors "github.com/YuminosukeSato/lce/pkg/errors"
	"github.com/YuminosukeSato/lce/pkg/log"
)

// trainer implements the gradient boosting loop shared by the three backends.
type trainer struct {
	params Params

	X      [][]float64
	bins   *binMapper
	binned [][]int32

	grow     grower
	sampling *samplingStrategy
}

func newTrainer(params Params) *trainer {
	return &trainer{
		params:   params,
		grow:     growerFor(params.Backend),
		sampling: newSamplingStrategy(params),
	}
}

// fit trains a model on row-major X. numClass == 0 trains a regressor, otherwise
// y holds class indices 0..numClass-1.
func (t *trainer) fit(X [][]float64, y []float64, numClass int) (*Model, error) {
	n, p := len(X), len(X[0])
	t.X = X
	t.bins = newBinMapper(X, t.params.MaxBin)
	t.binned = t.bins.transform(X)

	obj := objectiveFor(numClass)
	k := obj.NumOutputs()
	init := obj.InitScore(y)

	scores := make([]float64, n*k)
	for i := 0; i < n; i++ {
		copy(scores[i*k:(i+1)*k], init)
	}
	grad := make([]float64, n*k)
	hess := make([]float64, n*k)
	gk := make([]float64, n)
	hk := make([]float64, n)

	m := &Model{
		Backend:    t.params.Backend.String(),
		Objective:  obj.Name(),
		NumClass:   numClass,
		NFeatures:  p,
		InitScore:  init,
		NumOutputs: k,
		Trees:      make([]Tree, 0, t.params.NEstimators*k),
	}

	logger := log.GetLoggerWithName("boosting.trainer")
	for iter := 0; iter < t.params.NEstimators; iter++ {
		obj.GradHess(y, scores, grad, hess)
		rows := t.sampling.sampleInstances(n)

		for out := 0; out < k; out++ {
			for i := 0; i < n; i++ {
				gk[i] = grad[i*k+out]
				hk[i] = hess[i*k+out]
			}
			features := t.sampling.sampleFeatures(p)
			tree := Tree{Output: out, Nodes: t.grow(t, rows, gk, hk, features)}
			for i, row := range X {
				scores[i*k+out] += tree.Predict(row)
			}
			m.Trees = append(m.Trees, tree)
		}

		if iter%10 == 0 || iter == t.params.NEstimators-1 {
			loss := obj.Loss(y, scores)
			if err := lceErrors.CheckScalar("boosting.fit", loss, iter); err != nil {
				return nil, err
			}
			logger.Debug("Training progress",
				log.IterationKey, iter,
				log.LossKey, loss,
				log.BaseLearnerKey, t.params.Backend.String(),
			)
		}
	}
	return m, nil
}
