package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSink struct {
	calls int32
	err   error
}

func (s *countingSink) Send(ctx context.Context, tag string, payload map[string]any) error {
	atomic.AddInt32(&s.calls, 1)
	return s.err
}

func TestBus_EmitDeliversToSink(t *testing.T) {
	sink := &countingSink{}
	b := New(sink, time.Second)

	b.Emit("state.applied", map[string]any{"id": "webserver.nginx"})

	assert.EqualValues(t, 1, atomic.LoadInt32(&sink.calls))
	assert.Empty(t, b.Failed())
}

func TestBus_EmitRecordsFailureAfterRetriesExhausted(t *testing.T) {
	sink := &countingSink{err: errors.New("unreachable")}
	b := New(sink, 50*time.Millisecond)

	b.Emit("state.failed", map[string]any{"id": "webserver.nginx"})

	failed := b.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "state.failed", failed[0].Tag)
	assert.Contains(t, failed[0].Err, "unreachable")
}

func TestBus_EmitNilSinkIsNoop(t *testing.T) {
	var b *Bus
	assert.NotPanics(t, func() { b.Emit("anything", nil) })

	b = New(nil, 0)
	assert.NotPanics(t, func() { b.Emit("anything", nil) })
}

func TestNopSink_AlwaysSucceeds(t *testing.T) {
	require.NoError(t, (NopSink{}).Send(context.Background(), "tag", nil))
}
