package workflow

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

// EventType represents the type of workflow event.
type EventType string

const (
	// EventTaskStarted indicates a workflow took ownership of a task.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task reached COMPLETED.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task reached FAILED.
	EventTaskFailed EventType = "task_failed"
	// EventPhaseStarted indicates a sequential phase was handed to an agent.
	EventPhaseStarted EventType = "phase_started"
	// EventAgentFinished indicates one agent's branch returned output or an error.
	EventAgentFinished EventType = "agent_finished"
	// EventProposalRecorded indicates an agent's output was stored as a proposal.
	EventProposalRecorded EventType = "proposal_recorded"
	// EventDecisionReached indicates a consensus decision was stored.
	EventDecisionReached EventType = "decision_reached"
)

// Event is emitted by executors to observers such as the CLI's serve loop.
type Event struct {
	Type EventType
	// TaskID is the related task.
	TaskID string
	// ParentID is set for sequential phase tasks.
	ParentID string
	// AgentID is the related agent, if any.
	AgentID string
	// Strategy is the task's routing strategy.
	Strategy models.Strategy
	// Message provides additional context.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// EventEmitter delivers events over a buffered channel. Emit and Close may
// be called from any goroutine.
type EventEmitter struct {
	// mu is held shared while sending and exclusively while closing.
	mu      sync.RWMutex
	closed  bool
	events  chan Event
	dropped atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event. When the buffer is full it waits up to 100ms for a
// reader before dropping the event. Emit on a nil or closed emitter is a no-op.
func (e *EventEmitter) Emit(event Event) {
	if e == nil {
		return
	}
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

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.dropped.Add(1)
		if count%10 == 1 {
			log.Printf("[workflow] WARNING: event channel full, dropped event (total dropped: %d): type=%s task=%s", count, event.Type, event.TaskID)
		}
	}
}

// DroppedCount returns how many events were dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the receive side of the channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close stops further emission and closes the channel once in-flight Emit
// calls have returned. Closing twice is a no-op.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.events)
	}
}
