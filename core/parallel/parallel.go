package parallel

import (
	"runtime"
	"sync"

	"github.com/YuminosukeSato/lce/pkg/errors"
)

// Parallelize divides the specified total number (items) according to the number of CPU cores,
// and executes the specified function (fn) in parallel for each range (start, end)
func Parallelize(items int, fn func(start, end int)) {
	ParallelizeN(items, runtime.NumCPU(), fn)
}

// ParallelizeN is Parallelize with an explicit worker count.
// workers <= 0 means one worker per CPU core.
func ParallelizeN(items, workers int, fn func(start, end int)) {
	if items == 0 {
		return
	}

	numWorkers := Workers(workers)
	if numWorkers > items {
		numWorkers = items // No need for more workers than items
	}

	// Calculate the number of items each worker handles (ceiling division)
	chunkSize := (items + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > items {
			end = items
		}

		// Skip if there's no range to handle
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			fn(s, e)
		}(start, end)
	}

	wg.Wait()
}

// ParallelizeWithThreshold performs parallelization only when the number of items exceeds the threshold
// If below threshold, normal sequential processing is performed
func ParallelizeWithThreshold(items int, threshold int, fn func(start, end int)) {
	if items <= threshold {
		fn(0, items)
		return
	}

	Parallelize(items, fn)
}

// Workers resolves a user supplied n_jobs value: values <= 0 select every CPU core.
func Workers(n int) int {
	if n <= 0 {
		return runtime.NumCPU()
	}
	return n
}

// Map runs fn for every index in [0, items) on at most workers goroutines.
// Panics inside fn are converted to errors. The first error by index is returned.
func Map(items, workers int, fn func(i int) error) error {
	if items <= 0 {
		return nil
	}

	errs := make([]error, items)
	run := func(i int) {
		errs[i] = errors.SafeExecute("parallel task", func() error { return fn(i) })
	}

	if Workers(workers) == 1 || items == 1 {
		for i := 0; i < items; i++ {
			run(i)
		}
	} else {
		ParallelizeN(items, workers, func(start, end int) {
			for i := start; i < end; i++ {
				run(i)
			}
		})
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
