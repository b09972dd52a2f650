package runstate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattferris/statecraft/pkg/state"
)

func TestNewRunID_ProducesDistinctIDs(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestStore_PutAndGet(t *testing.T) {
	s := New(0)
	record := &state.RunRecord{ID: "r1", Environment: "base"}

	s.Put("r1", Entry{Record: record})

	entry, ok := s.Get("r1")
	require.True(t, ok)
	assert.Same(t, record, entry.Record)

	_, ok = s.Get("nope")
	assert.False(t, ok)
}

func TestStore_ListIsNewestFirst(t *testing.T) {
	s := New(0)
	s.Put("r1", Entry{Record: &state.RunRecord{ID: "r1"}})
	s.Put("r2", Entry{Record: &state.RunRecord{ID: "r2"}})
	s.Put("r3", Entry{Record: &state.RunRecord{ID: "r3"}})

	assert.Equal(t, []string{"r3", "r2", "r1"}, s.List())
}

func TestStore_EvictsOldestOnceAtCapacity(t *testing.T) {
	s := New(2)
	s.Put("r1", Entry{Record: &state.RunRecord{ID: "r1"}})
	s.Put("r2", Entry{Record: &state.RunRecord{ID: "r2"}})
	s.Put("r3", Entry{Record: &state.RunRecord{ID: "r3"}})

	assert.Equal(t, []string{"r3", "r2"}, s.List())
	_, ok := s.Get("r1")
	assert.False(t, ok)
}

func TestStore_PutOverwritingExistingIDDoesNotDuplicateOrder(t *testing.T) {
	s := New(0)
	s.Put("r1", Entry{Record: &state.RunRecord{ID: "r1", Environment: "base"}})
	s.Put("r1", Entry{Record: &state.RunRecord{ID: "r1", Environment: "dev"}})

	assert.Equal(t, []string{"r1"}, s.List())
	entry, _ := s.Get("r1")
	assert.Equal(t, "dev", entry.Record.Environment)
}

func TestStore_ConcurrentPutIsSafe(t *testing.T) {
	s := New(1000)
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(i int) {
			id := fmt.Sprintf("r%d", i)
			s.Put(id, Entry{Record: &state.RunRecord{ID: id}})
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Len(t, s.List(), 50)
}
