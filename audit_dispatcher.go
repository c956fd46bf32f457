package goGuard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// auditDispatcher hands audit events to the sink on a single goroutine so
// login and session paths never wait on sink I/O. Events that cannot be
// queued are counted per event type. Close drains the queue.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool
	logger     zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan AuditEvent
	idle   chan struct{}

	dropped atomic.Uint64
	byEvent sync.Map // event type -> *atomic.Uint64
	panics  atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, logger zerolog.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size <= 0 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		logger:     logger,
		queue:      make(chan AuditEvent, size),
		idle:       make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *auditDispatcher) run() {
	defer close(d.idle)
	for event := range d.queue {
		d.deliver(event)
	}
}

// deliver shields the dispatcher from a panicking sink; the event is lost
// but later events still flow.
func (d *auditDispatcher) deliver(event AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.logger.Error().
				Str("event", event.EventType).
				Interface("panic", r).
				Msg("audit sink panicked")
		}
	}()
	d.sink.Emit(context.Background(), event)
}

// Emit queues event. With dropIfFull a full queue drops the event at once;
// otherwise Emit waits for space and drops only when ctx ends first.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.drop(event.EventType)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.drop(event.EventType)
	}
}

func (d *auditDispatcher) drop(eventType string) {
	d.dropped.Add(1)
	c, loaded := d.byEvent.LoadOrStore(eventType, new(atomic.Uint64))
	c.(*atomic.Uint64).Add(1)
	if !loaded {
		d.logger.Warn().Str("event", eventType).Msg("audit queue full, dropping events")
	}
}

// Close stops accepting events and waits until every queued event has
// reached the sink. It is safe to call more than once.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.idle
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByEvent returns drop counts keyed by event type.
func (d *auditDispatcher) DroppedByEvent() map[string]uint64 {
	out := make(map[string]uint64)
	if d == nil {
		return out
	}
	d.byEvent.Range(func(k, v any) bool {
		out[k.(string)] = v.(*atomic.Uint64).Load()
		return true
	})
	return out
}

func (d *auditDispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.panics.Load()
}
