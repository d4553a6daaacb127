package puzzlehash

import (
	"context"
	"fmt"
	"runtime"
)

// job is one unit of work dispatched to the pool.
type job struct {
	in         Input
	expected   string
	difficulty int
	resultCh   chan jobResult
}

type jobResult struct {
	res Result
	err error
}

// Pool bounds the number of concurrent Argon2id verifications so peak
// memory use stays around (concurrency × MemoryKB). Each verification costs
// ~64 MiB by default, so the pool is sized to CPUs-1 rather than left
// unbounded.
type Pool struct {
	jobs chan job
	done chan struct{}
}

// NewPool starts a worker pool with the given concurrency. A concurrency of
// 0 or less is treated as runtime.NumCPU()-1, floored at 1.
func NewPool(concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() - 1
		if concurrency < 1 {
			concurrency = 1
		}
	}

	p := &Pool{
		jobs: make(chan job),
		done: make(chan struct{}),
	}

	for i := 0; i < concurrency; i++ {
		go p.worker()
	}

	return p
}

func (p *Pool) worker() {
	for {
		select {
		case j := <-p.jobs:
			res, err := Verify(j.in, j.expected, j.difficulty)
			j.resultCh <- jobResult{res: res, err: err}
		case <-p.done:
			return
		}
	}
}

// ErrPoolUnavailable is returned when the pool cannot accept a dispatch
// before ctx is done — the verification-infrastructure-failure case in
// spec.md §7, translated to a 503 at the HTTP boundary.
var ErrPoolUnavailable = fmt.Errorf("puzzlehash: verification worker pool unavailable")

// Dispatch submits a verification to the pool and blocks until it completes
// or ctx is cancelled. The caller is expected to hold the puzzle's critical
// section lock for the duration of this call — that is what makes
// verification single-threaded from the puzzle's point of view.
func (p *Pool) Dispatch(ctx context.Context, in Input, expectedHex string, difficulty int) (Result, error) {
	j := job{in: in, expected: expectedHex, difficulty: difficulty, resultCh: make(chan jobResult, 1)}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-p.done:
		return Result{}, ErrPoolUnavailable
	}

	select {
	case r := <-j.resultCh:
		return r.res, r.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Close stops all workers. Safe to call once.
func (p *Pool) Close() {
	close(p.done)
}
