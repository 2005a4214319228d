package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	dErrors "upandup/pkg/domain-errors"
	"upandup/pkg/platform/sentinel"
)

// ConcurrentResult tallies how racing ledger operations ended.
type ConcurrentResult struct {
	Successes   int32
	Busy        int32
	Conflicts   int32
	Terminal    int32
	Unavailable int32
	NotFounds   int32
	Errors      int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Busy + r.Conflicts + r.Terminal + r.Unavailable + r.NotFounds + r.Errors
}

// RunConcurrent starts n goroutines, releases them together and classifies
// each returned error by its domain code.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		counts [7]atomic.Int32
	)

	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			counts[classify(fn(idx))].Add(1)
		}(i)
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:   counts[0].Load(),
		Busy:        counts[1].Load(),
		Conflicts:   counts[2].Load(),
		Terminal:    counts[3].Load(),
		Unavailable: counts[4].Load(),
		NotFounds:   counts[5].Load(),
		Errors:      counts[6].Load(),
	}
}

func classify(err error) int {
	switch {
	case err == nil:
		return 0
	case dErrors.HasCode(err, dErrors.CodeBusy):
		return 1
	case errors.Is(err, sentinel.ErrConflict), dErrors.HasCode(err, dErrors.CodeConflict), dErrors.HasCode(err, dErrors.CodeAlreadySet):
		return 2
	case dErrors.HasCode(err, dErrors.CodeAlreadyTerminal):
		return 3
	case dErrors.HasCode(err, dErrors.CodeUnavailable), dErrors.HasCode(err, dErrors.CodeTimeout):
		return 4
	case errors.Is(err, sentinel.ErrNotFound), dErrors.HasCode(err, dErrors.CodeNotFound):
		return 5
	default:
		return 6
	}
}
