package events

import (
	"context"
	"log/slog"
	"time"
)

// publishWaitTimeout bounds how long Publish waits for queue space before
// dropping the event (spec §4.6, §5 timeouts: "event-bus publish 100ms").
const publishWaitTimeout = 100 * time.Millisecond

// backpressureThreshold is the fraction of queue depth at which a
// system.backpressure event is raised (spec §4.6: "≥90% of D").
const backpressureThreshold = 0.9

// Sink receives every event the bus drains, in order. Broadcast must not
// block for long — Bus's single consumer goroutine calls it serially, so a
// slow Sink backs up the whole queue.
type Sink interface {
	Broadcast(event Event)
}

// Bus is the single bounded FIFO queue described in spec §4.6. Publish never
// blocks the caller beyond publishWaitTimeout; draining (delivery to the
// Sink) happens on its own goroutine and never blocks Publish.
type Bus struct {
	queue   chan Event
	depth   int
	sink    Sink
	stopped chan struct{}
}

// NewBus constructs a Bus with the given maximum queue depth (spec default 1000).
func NewBus(depth int, sink Sink) *Bus {
	if depth < 1 {
		depth = 1
	}
	return &Bus{
		queue:   make(chan Event, depth),
		depth:   depth,
		sink:    sink,
		stopped: make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled. Intended to run in its own
// goroutine for the lifetime of the process.
func (b *Bus) Run(ctx context.Context) {
	defer close(b.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.queue:
			b.sink.Broadcast(ev)
		}
	}
}

// Depth returns the current number of queued, undelivered events.
func (b *Bus) Depth() int {
	return len(b.queue)
}

// Publish enqueues ev, waiting up to publishWaitTimeout for space. On
// timeout the event is dropped and a warning logged (spec §4.6, §7: queue
// capacity errors are "silently dropped with a warning and a backpressure
// event"). If the queue is already at or above backpressureThreshold, a
// best-effort system.backpressure event is enqueued first (dropped silently
// if there is no room for it — it must never itself block or fail Publish).
func (b *Bus) Publish(ctx context.Context, ev Event) {
	if float64(len(b.queue)) >= float64(b.depth)*backpressureThreshold {
		bp := NewEvent(EventSystemBackpressure, "", map[string]any{
			"component":   "events.Bus",
			"queue_depth": len(b.queue),
			"limit":       b.depth,
		})
		select {
		case b.queue <- bp:
		default:
		}
	}

	timer := time.NewTimer(publishWaitTimeout)
	defer timer.Stop()
	select {
	case b.queue <- ev:
	case <-ctx.Done():
	case <-timer.C:
		slog.Warn("event dropped: publish queue full", "event_type", ev.Type, "session_id", ev.SessionID)
	}
}
