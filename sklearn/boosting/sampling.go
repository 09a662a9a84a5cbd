package boosting

import (
	"math/rand"
	"sort"
)

// samplingStrategy handles row and column sampling for training
type samplingStrategy struct {
	rng             *rand.Rand
	subsample       float64
	colsampleByTree float64
}

func newSamplingStrategy(params Params) *samplingStrategy {
	return &samplingStrategy{
		rng:             rand.New(rand.NewSource(params.Seed)),
		subsample:       params.Subsample,
		colsampleByTree: params.ColsampleByTree,
	}
}

// sampleFeatures samples the columns a tree may split on
func (s *samplingStrategy) sampleFeatures(numFeatures int) []int {
	return s.sample(numFeatures, s.colsampleByTree)
}

// sampleInstances samples the rows of one boosting round without replacement
func (s *samplingStrategy) sampleInstances(numInstances int) []int {
	return s.sample(numInstances, s.subsample)
}

func (s *samplingStrategy) sample(n int, fraction float64) []int {
	if fraction >= 1.0 || fraction <= 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}

	numSample := int(float64(n) * fraction)
	if numSample < 1 {
		numSample = 1
	}

	// Fisher-Yates shuffle
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for i := 0; i < numSample; i++ {
		j := i + s.rng.Intn(n-i)
		perm[i], perm[j] = perm[j], perm[i]
	}
	out := perm[:numSample]
	sort.Ints(out)
	return out
}
