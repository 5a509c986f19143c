package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/internal/consensus"
	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// actorWorkflow is the actor recorded on transitions a workflow drives itself.
const actorWorkflow = "workflow"

// Metadata keys written by executors.
const (
	MetaFailureReason     = "failure.reason"
	MetaConsensusDeadline = "consensus.deadline"
	MetaDecisionID        = "consensus.decision_id"
	MetaAgreement         = "consensus.agreement"
	MetaDegraded          = "consensus.degraded"
	MetaProposals         = "consensus.proposals"
	MetaParallelSummary   = "parallel.summary"
	MetaPhaseName         = "phase.name"
	MetaPhases            = "sequential.phases"
)

// Store is the persistence executors read and write outside the state machine.
type Store interface {
	CreateTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasks(filter state.TaskFilter) ([]models.Task, error)
	ListProposals(taskID string) ([]models.Proposal, error)
	CreateDecision(d *models.Decision) error
	GetDecision(taskID string) (*models.Decision, error)
	RecordOutcome(o state.Outcome) error
}

// Settings are the timing and voting knobs executors use.
type Settings struct {
	// AgentTimeout bounds one agent's work on a task or phase.
	AgentTimeout time.Duration
	// QuorumTimeout bounds how long a consensus waits for proposals.
	QuorumTimeout time.Duration
	// PollInterval is how often waits re-read the store.
	PollInterval time.Duration
	// Strategies returns the voting strategies for a task type.
	Strategies func(models.TaskType) []models.VotingStrategy
}

// SettingsFromConfig maps configuration onto executor settings.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		AgentTimeout:  cfg.Workflow.AgentTimeout,
		QuorumTimeout: cfg.Consensus.QuorumTimeout,
		PollInterval:  cfg.Workflow.PollInterval,
		Strategies:    cfg.StrategiesFor,
	}
}

func (s Settings) withDefaults() Settings {
	if s.AgentTimeout <= 0 {
		s.AgentTimeout = 10 * time.Minute
	}
	if s.QuorumTimeout <= 0 {
		s.QuorumTimeout = 30 * time.Minute
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 2 * time.Second
	}
	if s.Strategies == nil {
		s.Strategies = func(models.TaskType) []models.VotingStrategy {
			return []models.VotingStrategy{models.VotingPlurality}
		}
	}
	return s
}

// Deps are the collaborators shared by every executor.
type Deps struct {
	Machine   *lifecycle.Machine
	Store     Store
	Proposals *consensus.Manager
	Resolver  *consensus.Resolver
	Agents    *agent.Registry
	// Backends may be nil, in which case every agent works through
	// externally submitted proposals.
	Backends *agent.Backends
	// Events may be nil.
	Events   *EventEmitter
	Settings Settings
}

func (d *Deps) validate() error {
	switch {
	case d == nil:
		return errors.New("workflow: nil dependencies")
	case d.Machine == nil:
		return errors.New("workflow: state machine is required")
	case d.Store == nil:
		return errors.New("workflow: store is required")
	case d.Proposals == nil:
		return errors.New("workflow: proposal manager is required")
	case d.Resolver == nil:
		return errors.New("workflow: resolver is required")
	case d.Agents == nil:
		return errors.New("workflow: agent registry is required")
	}
	return nil
}

func (d *Deps) emit(e Event) {
	d.Events.Emit(e)
}

// load reads a task, mapping a missing task to NotFoundError.
func (d *Deps) load(taskID string) (*models.Task, error) {
	task, err := d.Store.GetTask(taskID)
	if err != nil {
		return nil, models.Internal("load task", err)
	}
	if task == nil {
		return nil, &models.NotFoundError{Kind: "task", ID: taskID}
	}
	return task, nil
}

// start moves a PENDING task to IN_PROGRESS and returns the current snapshot.
// Tasks already past PENDING are returned unchanged so that resumed
// workflows pick up where they left off.
func (d *Deps) start(ctx context.Context, taskID string) (*models.Task, error) {
	var task *models.Task
	err := d.Machine.Do(ctx, taskID, func(tx *lifecycle.Txn) error {
		if tx.Task.Status == models.TaskStatusPending {
			if err := tx.Transition(models.TaskStatusInProgress, actorWorkflow, nil, nil); err != nil {
				return err
			}
		}
		task = tx.Task
		return nil
	})
	return task, err
}

// finish moves a task to a terminal state with its result and metadata.
// A task that already reached a terminal state is left as it is. A
// WAITING_INPUT task passes through IN_PROGRESS on its way to COMPLETED.
func (d *Deps) finish(ctx context.Context, taskID string, to models.TaskStatus, actor, result string, meta map[string]string) (*models.Task, error) {
	var task *models.Task
	err := d.Machine.Do(ctx, taskID, func(tx *lifecycle.Txn) error {
		task = tx.Task
		if tx.Task.IsTerminal() {
			return nil
		}
		if err := d.finishLocked(tx, to, actor, result, meta); err != nil {
			return err
		}
		task = tx.Task
		return nil
	})
	return task, err
}

func (d *Deps) finishLocked(tx *lifecycle.Txn, to models.TaskStatus, actor, result string, meta map[string]string) error {
	if to == models.TaskStatusCompleted && tx.Task.Status == models.TaskStatusWaitingInput {
		if err := tx.Transition(models.TaskStatusInProgress, actor, nil, nil); err != nil {
			return err
		}
	}
	return tx.Transition(to, actor, meta, func(t *models.Task) {
		if result != "" {
			t.Result = result
		}
		for k, v := range meta {
			t.SetMeta(k, v)
		}
	})
}

// fail is finish to FAILED with a recorded reason.
func (d *Deps) fail(ctx context.Context, taskID, reason string) error {
	log.Printf("[workflow] task %s failed: %s", taskID, reason)
	_, err := d.finish(ctx, taskID, models.TaskStatusFailed, actorWorkflow, "", map[string]string{MetaFailureReason: reason})
	return err
}

// work describes one agent invocation.
type work struct {
	task *models.Task
	// phase names a sequential phase.
	phase string
	// context is prior output handed to the agent.
	context string
}

// runAgent executes work on the agent's backend, bounded by the agent
// timeout. It returns agent.ErrNoBackend for agents that only contribute
// through submitted proposals.
func (d *Deps) runAgent(ctx context.Context, agentID string, w work) (*agent.Response, error) {
	a := d.Agents.Get(agentID)
	if a == nil {
		return nil, fmt.Errorf("agent %s is not registered: %w", agentID, agent.ErrNoBackend)
	}
	if d.Backends == nil {
		return nil, agent.ErrNoBackend
	}
	backend, err := d.Backends.For(a)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.Settings.AgentTimeout)
	defer cancel()

	resp, err := backend.Execute(ctx, agent.Request{
		TaskID:      w.task.ID,
		Title:       w.task.Title,
		Description: w.task.Description,
		Type:        w.task.Type,
		Phase:       w.phase,
		Context:     w.context,
		InputType:   models.DefaultInputType(w.task.Type),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("agent %s timed out after %s", agentID, d.Settings.AgentTimeout)
		}
		return nil, fmt.Errorf("agent %s: %w", agentID, err)
	}
	return resp, nil
}

// record stores a backend response as the agent's proposal so that its
// output survives in the task context.
func (d *Deps) record(ctx context.Context, task *models.Task, agentID string, resp *agent.Response) (*consensus.SubmitResult, error) {
	res, err := d.Proposals.Submit(ctx, consensus.SubmitRequest{
		TaskID:     task.ID,
		AgentID:    agentID,
		Content:    resp.Content,
		InputType:  string(models.DefaultInputType(task.Type)),
		Confidence: resp.Confidence,
	})
	if err != nil {
		return nil, err
	}
	d.emit(Event{Type: EventProposalRecorded, TaskID: task.ID, ParentID: task.ParentID, AgentID: agentID, Strategy: task.Strategy})
	return res, nil
}

// proposalFrom returns the agent's stored proposal, or nil.
func (d *Deps) proposalFrom(taskID, agentID string) (*models.Proposal, error) {
	proposals, err := d.Store.ListProposals(taskID)
	if err != nil {
		return nil, models.Internal("list proposals", err)
	}
	for i := range proposals {
		if proposals[i].AgentID == agentID {
			return &proposals[i], nil
		}
	}
	return nil, nil
}

// waitFor re-evaluates check whenever taskID changes state and on every
// poll tick, returning once check reports done. Polling picks up proposals
// and transitions written by other processes.
func (d *Deps) waitFor(ctx context.Context, taskID string, check func() (bool, error)) error {
	updates, cancel := d.Machine.Subscribe(16)
	defer cancel()

	ticker := time.NewTicker(d.Settings.PollInterval)
	defer ticker.Stop()

	for {
		done, err := check()
		if err != nil || done {
			return err
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case tr := <-updates:
				if tr.TaskID == taskID {
					break wait
				}
			case <-ticker.C:
				break wait
			}
		}
	}
}
