// Package eventbus implements the write-only external event bus
// collaborator the runtime emits to on fire_event and on run start/stop
// (§6 "Event bus", §4.6 "Event emission"). Grounded on the teacher's own
// indirect github.com/cenkalti/backoff/v4 dependency (promoted to direct
// here), the same retry shape the pack's other long-running daemons
// (dagu-org-dagu, hashicorp-nomad) use around flaky network sinks.
package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Sink delivers one (tag, payload) event to an external system. A
// real deployment points this at the transport bus (§1 "deliberately out
// of scope"); the core only depends on the Emit interface.
type Sink interface {
	Send(ctx context.Context, tag string, payload map[string]any) error
}

// Bus retries a Sink with exponential backoff and keeps a small
// ring of recently failed deliveries for diagnostics, readable through
// Failed(). The control API does not expose that ring.
type Bus struct {
	sink    Sink
	maxTime time.Duration

	mu     sync.Mutex
	failed []FailedEvent
}

// FailedEvent records an emission that exhausted its retry budget.
type FailedEvent struct {
	Tag     string
	Payload map[string]any
	Err     string
	At      time.Time
}

// New builds a Bus over sink. maxElapsed bounds the total retry time for
// a single event; zero selects a 10s default.
func New(sink Sink, maxElapsed time.Duration) *Bus {
	if maxElapsed <= 0 {
		maxElapsed = 10 * time.Second
	}
	return &Bus{sink: sink, maxTime: maxElapsed}
}

// Emit implements runtime.EventEmitter. It never blocks the caller past
// maxElapsed and never panics on a sink error; a final failure is
// recorded, not escalated, since event delivery failure must not fail a
// chunk (§6 "write-only").
func (b *Bus) Emit(tag string, payload map[string]any) {
	if b == nil || b.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.maxTime)
	defer cancel()

	bo := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)
	op := func() error { return b.sink.Send(ctx, tag, payload) }

	if err := backoff.Retry(op, bo); err != nil {
		b.mu.Lock()
		b.failed = append(b.failed, FailedEvent{Tag: tag, Payload: payload, Err: err.Error(), At: time.Now()})
		if len(b.failed) > 100 {
			b.failed = b.failed[len(b.failed)-100:]
		}
		b.mu.Unlock()
	}
}

// Failed returns a snapshot of recently failed deliveries.
func (b *Bus) Failed() []FailedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FailedEvent, len(b.failed))
	copy(out, b.failed)
	return out
}

// NopSink discards every event and always reports success, so a Bus over
// it never records a failed delivery.
type NopSink struct{}

func (NopSink) Send(ctx context.Context, tag string, payload map[string]any) error { return nil }
