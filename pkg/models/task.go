package models

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus represents the current lifecycle state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has been routed but not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusWaitingInput indicates the task is waiting for more contributions.
	TaskStatusWaitingInput TaskStatus = "waiting_input"
	// TaskStatusCompleted indicates the task completed successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusWaitingInput,
		TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for states that can never be left.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// AcceptsInput returns true if proposals may be submitted in this state.
func (s TaskStatus) AcceptsInput() bool {
	return s == TaskStatusInProgress || s == TaskStatusWaitingInput
}

// ParseTaskStatus parses a status name, case-insensitively.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
	}
	return status, nil
}

// TaskType classifies the kind of work a task represents.
type TaskType string

const (
	TaskTypeImplementation TaskType = "implementation"
	TaskTypeArchitecture   TaskType = "architecture"
	TaskTypeReview         TaskType = "review"
	TaskTypeResearch       TaskType = "research"
	TaskTypeTesting        TaskType = "testing"
	TaskTypeDocumentation  TaskType = "documentation"
	TaskTypePlanning       TaskType = "planning"
	TaskTypeBugfix         TaskType = "bugfix"
)

// AllTaskTypes lists every known task type in a stable order.
var AllTaskTypes = []TaskType{
	TaskTypeImplementation,
	TaskTypeArchitecture,
	TaskTypeReview,
	TaskTypeResearch,
	TaskTypeTesting,
	TaskTypeDocumentation,
	TaskTypePlanning,
	TaskTypeBugfix,
}

// Valid returns true if the type is a known value.
func (t TaskType) Valid() bool {
	for _, known := range AllTaskTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseTaskType parses a task type name, case-insensitively.
func ParseTaskType(s string) (TaskType, error) {
	t := TaskType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", s)}
	}
	return t, nil
}

// Complexity and risk are rated on a closed 1-10 scale.
const (
	MinRating = 1
	MaxRating = 10
)

// Task represents a unit of work routed to one or more agents.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ParentID is the ID of the parent task when this task is a sequential phase.
	ParentID string `json:"parent_id,omitempty"`
	// Phase is the zero-based phase index for sequential child tasks.
	Phase int `json:"phase,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// Type is the kind of work.
	Type TaskType `json:"type"`
	// Complexity is the estimated complexity (1-10).
	Complexity int `json:"complexity"`
	// Risk is the estimated risk (1-10).
	Risk int `json:"risk"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// Strategy is the routing strategy. Set once at routing time.
	Strategy Strategy `json:"strategy"`
	// Participants are the agents working on this task. The first is primary.
	Participants []string `json:"participants"`
	// DependsOn lists task IDs this task depends on.
	DependsOn []string `json:"depends_on,omitempty"`
	// DueAt is an optional deadline.
	DueAt *time.Time `json:"due_at,omitempty"`
	// Metadata is a free-form audit trail (directive provenance, failure reasons).
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedBy identifies the caller that created the task.
	CreatedBy string `json:"created_by"`
	// Result holds the final output once the task completes.
	Result string `json:"result,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the task was last modified.
	UpdatedAt time.Time `json:"updated_at"`
}

// PrimaryAgent returns the first participant, or "" if there are none.
func (t *Task) PrimaryAgent() string {
	if len(t.Participants) == 0 {
		return ""
	}
	return t.Participants[0]
}

// HasParticipant reports whether agentID participates in the task.
func (t *Task) HasParticipant(agentID string) bool {
	for _, p := range t.Participants {
		if p == agentID {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the task reached COMPLETED or FAILED.
func (t *Task) IsTerminal() bool {
	return t.Status.Terminal()
}

// SetMeta sets a metadata key, allocating the map if needed.
func (t *Task) SetMeta(key, value string) {
	if t.Metadata == nil {
		t.Metadata = make(map[string]string)
	}
	t.Metadata[key] = value
}

// Meta returns a metadata value or "".
func (t *Task) Meta(key string) string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata[key]
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Participants = append([]string(nil), t.Participants...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	if t.DueAt != nil {
		due := *t.DueAt
		c.DueAt = &due
	}
	if t.Metadata != nil {
		c.Metadata = make(map[string]string, len(t.Metadata))
		for k, v := range t.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Validate checks the caller-supplied fields of a new task.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be blank"}
	}
	if !t.Type.Valid() {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown task type %q", t.Type)}
	}
	if t.Complexity < MinRating || t.Complexity > MaxRating {
		return &ValidationError{Field: "complexity", Reason: fmt.Sprintf("%d not in [%d,%d]", t.Complexity, MinRating, MaxRating)}
	}
	if t.Risk < MinRating || t.Risk > MaxRating {
		return &ValidationError{Field: "risk", Reason: fmt.Sprintf("%d not in [%d,%d]", t.Risk, MinRating, MaxRating)}
	}
	return nil
}

// Transition is one entry in a task's append-only lifecycle log.
type Transition struct {
	// TaskID is the task that changed state.
	TaskID string `json:"task_id"`
	// From is the state before the transition.
	From TaskStatus `json:"from"`
	// To is the state after the transition.
	To TaskStatus `json:"to"`
	// At is when the transition was applied.
	At time.Time `json:"at"`
	// Actor identifies who requested the transition.
	Actor string `json:"actor,omitempty"`
	// Metadata is caller-supplied context for the transition.
	Metadata map[string]string `json:"metadata,omitempty"`
}
