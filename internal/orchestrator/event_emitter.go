package orchestrator

import (
	"sync"
	"sync/atomic"
	"time"
)

// Terminal events get a longer delivery window than progress events so a
// slow subscriber still learns how the run ended.
const (
	progressSendTimeout = 100 * time.Millisecond
	terminalSendTimeout = 2 * time.Second
)

// EventEmitter delivers orchestrator events over a buffered channel.
// Progress events may be dropped when the subscriber falls behind.
type EventEmitter struct {
	events    chan OrchestratorEvent
	logger    *DebugLogger
	dropped   atomic.Uint64
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *DebugLogger) *EventEmitter {
	return &EventEmitter{
		events: make(chan OrchestratorEvent, bufferSize),
		logger: logger,
	}
}

// Emit stamps and sends an event. Emit after Close is a no-op.
func (e *EventEmitter) Emit(event OrchestratorEvent) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	wait := progressSendTimeout
	if event.Type.Terminal() {
		wait = terminalSendTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case e.events <- event:
	case <-timer.C:
		n := e.dropped.Add(1)
		e.logger.Log("[events] channel full, dropped %s for %s (total dropped: %d)", event.Type, event.FeatureID, n)
	}
}

// DroppedCount returns how many events were never delivered.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events is the subscriber side of the emitter.
func (e *EventEmitter) Events() <-chan OrchestratorEvent {
	return e.events
}

// Close closes the channel once no Emit is in flight.
func (e *EventEmitter) Close() {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		close(e.events)
		e.mu.Unlock()
	})
}
