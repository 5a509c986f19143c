// Package state provides SQLite-based persistence for tasks, proposals,
// decisions, transitions and routing outcomes.
package state

import (
	"errors"
	"io"

	"github.com/ShayCichocki/agora/pkg/models"
)

var (
	// ErrStaleStatus is returned when a transition's from-state no longer matches.
	ErrStaleStatus = errors.New("task status changed concurrently")
	// ErrTaskNotFound is returned when a write targets an unknown task.
	ErrTaskNotFound = errors.New("task not found")
	// ErrDecisionExists is returned when a task already has a decision.
	ErrDecisionExists = errors.New("decision already exists for task")
	// ErrProposalExists is returned when an agent already proposed for a task.
	ErrProposalExists = errors.New("proposal already exists for agent")
	// ErrTaskNotAcceptingInput is returned when a proposal targets a task that
	// is neither in_progress nor waiting_input.
	ErrTaskNotAcceptingInput = errors.New("task does not accept proposals")
)

// TaskFilter narrows ListTasks results. Zero values mean "no filter".
type TaskFilter struct {
	// Statuses restricts results to these states.
	Statuses []models.TaskStatus
	// AgentID restricts results to tasks the agent participates in.
	AgentID string
	// ParentID restricts results to children of a task.
	ParentID string
	// TopLevel restricts results to tasks without a parent.
	TopLevel bool
	// Limit caps the number of results.
	Limit int
}

// TaskStore handles task persistence.
type TaskStore interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	UpdateTask(t *models.Task) error
	ListTasks(filter TaskFilter) ([]models.Task, error)
}

// TransitionStore applies and records lifecycle transitions.
type TransitionStore interface {
	// ApplyTransition atomically moves a task from tr.From to tr.To and appends
	// tr to the audit log. If update is non-nil its metadata and result are
	// written in the same transaction.
	ApplyTransition(tr models.Transition, update *models.Task) error
	ListTransitions(taskID string) ([]models.Transition, error)
}

// ProposalStore handles proposal persistence.
type ProposalStore interface {
	CreateProposal(p *models.Proposal) error
	ListProposals(taskID string) ([]models.Proposal, error)
}

// DecisionStore handles decision persistence.
type DecisionStore interface {
	CreateDecision(d *models.Decision) error
	GetDecision(taskID string) (*models.Decision, error)
}

// OutcomeStore records routing outcomes for threshold calibration.
type OutcomeStore interface {
	RecordOutcome(o Outcome) error
	RecentOutcomes(limit int) ([]Outcome, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence.
// The orchestrator depends on this interface only; durability and
// read-your-writes consistency per task are the backend's responsibility.
type StateStore interface {
	io.Closer
	Migrator
	TaskStore
	TransitionStore
	ProposalStore
	DecisionStore
	OutcomeStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore      = (*DB)(nil)
	_ Migrator        = (*DB)(nil)
	_ TaskStore       = (*DB)(nil)
	_ TransitionStore = (*DB)(nil)
	_ ProposalStore   = (*DB)(nil)
	_ DecisionStore   = (*DB)(nil)
	_ OutcomeStore    = (*DB)(nil)
)
