// Package scheduler implements the parallel scheduler (C8, §4.8): chunks
// marked parallel may run concurrently with other parallel chunks subject
// to the dependency graph; non-parallel chunks act as barriers. It wraps
// github.com/sourcegraph/conc's structured-concurrency pool so panics in
// a doer invocation propagate to the run instead of silently vanishing in
// a detached goroutine, replacing a hand-rolled WaitGroup + semaphore.
package scheduler

import (
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Scheduler bounds concurrent parallel-chunk execution and exposes the
// completion signal each chunk's dependents wait on (§5 "Suspension
// points").
type Scheduler struct {
	pool *pool.Pool

	mu   sync.Mutex
	done map[string]chan struct{}
}

// New builds a Scheduler with at most maxConcurrency chunks running at
// once. maxConcurrency <= 0 means unbounded.
func New(maxConcurrency int) *Scheduler {
	p := pool.New()
	if maxConcurrency > 0 {
		p = p.WithMaxGoroutines(maxConcurrency)
	}
	return &Scheduler{pool: p, done: make(map[string]chan struct{})}
}

// Track pre-registers a chunk's completion channel so Wait calls issued
// before the chunk is scheduled (e.g. by an unrelated parallel task that
// merely lists it as a dependency) don't race the map write.
func (s *Scheduler) Track(chunkID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[chunkID]; !ok {
		s.done[chunkID] = make(chan struct{})
	}
}

// WaitFor blocks until every listed chunk ID has completed (§4.8 "a
// parallel chunk cannot start until all its require/watch/prereq
// predecessors have completed").
func (s *Scheduler) WaitFor(chunkIDs []string) {
	for _, id := range chunkIDs {
		s.mu.Lock()
		ch, ok := s.done[id]
		if !ok {
			ch = make(chan struct{})
			s.done[id] = ch
			close(ch) // an unknown predecessor is treated as already satisfied
		}
		s.mu.Unlock()
		<-ch
	}
}

// MarkDone signals that chunkID has finished, releasing anything blocked
// in WaitFor on it.
func (s *Scheduler) MarkDone(chunkID string) {
	s.mu.Lock()
	ch, ok := s.done[chunkID]
	if !ok {
		ch = make(chan struct{})
		s.done[chunkID] = ch
	}
	s.mu.Unlock()
	close(ch)
}

// Go submits a parallel chunk's work to the bounded pool (§4.8, §5
// "Cancellation": already-started invocations always run to completion).
func (s *Scheduler) Go(fn func()) {
	s.pool.Go(fn)
}

// Barrier waits for every parallel task submitted so far to finish,
// implementing §4.8's "non-parallel chunks ... act as barriers". The pool
// remains usable for further Go calls afterward.
func (s *Scheduler) Barrier() {
	s.pool.Wait()
}
