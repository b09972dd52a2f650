package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_WaitForBlocksUntilMarkDone(t *testing.T) {
	s := New(4)
	s.Track("a")

	var order []string
	var mu sync.Mutex

	s.Go(func() {
		s.WaitFor([]string{"a"})
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
	})

	time.Sleep(20 * time.Millisecond)
	mu.Lock()
	assert.Empty(t, order, "b must not run before a completes")
	mu.Unlock()

	mu.Lock()
	order = append(order, "a")
	mu.Unlock()
	s.MarkDone("a")

	s.Barrier()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestScheduler_WaitForUnknownIDIsAlreadySatisfied(t *testing.T) {
	s := New(2)
	done := make(chan struct{})
	s.Go(func() {
		s.WaitFor([]string{"never-tracked"})
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("WaitFor on an unknown chunk ID should not block")
	}
	s.Barrier()
}

func TestScheduler_BarrierWaitsForAllSubmitted(t *testing.T) {
	s := New(4)
	var n int32
	var mu sync.Mutex
	for i := 0; i < 10; i++ {
		s.Go(func() {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}
	s.Barrier()
	mu.Lock()
	defer mu.Unlock()
	assert.EqualValues(t, 10, n)
}
