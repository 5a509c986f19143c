package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/agora/internal/consensus"
	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/routing"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/internal/workflow"
	"github.com/ShayCichocki/agora/pkg/models"
)

// CreateRequest describes a new task to route.
type CreateRequest struct {
	Title       string
	Description string
	// Type is a task type name, e.g. "architecture".
	Type       string
	Complexity int
	Risk       int
	Directive  *models.Directive
	// CreatedBy identifies the caller; it may complete the task later.
	CreatedBy string
	DependsOn []string
	DueAt     *time.Time
}

// CreateResult is a newly created task and the routing decision behind it.
type CreateResult struct {
	Task     *models.Task            `json:"task"`
	Decision *models.RoutingDecision `json:"decision"`
}

// AssignRequest creates a task for a named agent.
type AssignRequest struct {
	Title       string
	Description string
	Type        string
	Complexity  int
	Risk        int
	// TargetAgent is an agent id or alias.
	TargetAgent string
	Emergency   bool
	Notes       string
	CreatedBy   string
	DueAt       *time.Time
}

// StatusSnapshot is the current view of one task.
type StatusSnapshot struct {
	Task *models.Task `json:"task"`
	// Submitted is how many participants have proposed.
	Submitted int `json:"submitted"`
	// Expected is the number of participants.
	Expected int              `json:"expected"`
	Decision *models.Decision `json:"decision,omitempty"`
	Phases   []models.Task    `json:"phases,omitempty"`
	// Running is true when this process drives the task's workflow.
	Running bool `json:"running"`
}

// ProposalRequest is an agent's contribution.
type ProposalRequest struct {
	TaskID     string
	AgentID    string
	Content    string
	InputType  string
	Confidence float64
}

// TaskContext is everything an agent needs to pick up a task.
type TaskContext struct {
	Task      *models.Task        `json:"task"`
	Parent    *models.Task        `json:"parent,omitempty"`
	Phases    []models.Task       `json:"phases,omitempty"`
	Proposals []models.Proposal   `json:"proposals"`
	History   []models.Transition `json:"history"`
	Decision  *models.Decision    `json:"decision,omitempty"`
}

// RouteAndCreate validates, routes and stores a new task, then starts its
// workflow unless the orchestrator is detached. Nothing is stored when
// validation or routing fails.
func (o *Orchestrator) RouteAndCreate(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	task, err := o.newTask(req.Title, req.Description, req.Type, req.Complexity, req.Risk, req.CreatedBy, req.DueAt)
	if err != nil {
		return nil, err
	}
	task.DependsOn = append([]string(nil), req.DependsOn...)
	return o.create(ctx, task, req.Directive)
}

// AssignDirect creates a SOLO task for a named agent. An OFFLINE agent is a
// Conflict and an unknown one NotFound; in both cases no task is stored.
func (o *Orchestrator) AssignDirect(ctx context.Context, req AssignRequest) (*CreateResult, error) {
	if strings.TrimSpace(req.TargetAgent) == "" {
		return nil, &models.ValidationError{Field: "targetAgent", Reason: "must not be blank"}
	}
	task, err := o.newTask(req.Title, req.Description, req.Type, req.Complexity, req.Risk, req.CreatedBy, req.DueAt)
	if err != nil {
		return nil, err
	}
	d := &models.Directive{
		AssignToAgent: req.TargetAgent,
		Emergency:     req.Emergency,
		Notes:         req.Notes,
	}
	return o.create(ctx, task, d)
}

func (o *Orchestrator) newTask(title, description, typ string, complexity, risk int, createdBy string, due *time.Time) (*models.Task, error) {
	tt, err := models.ParseTaskType(typ)
	if err != nil {
		return nil, err
	}
	now := o.now()
	task := &models.Task{
		ID:          o.newID(),
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Type:        tt,
		Complexity:  complexity,
		Risk:        risk,
		Status:      models.TaskStatusPending,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if due != nil {
		d := due.UTC()
		task.DueAt = &d
	}
	return task, nil
}

func (o *Orchestrator) create(ctx context.Context, task *models.Task, d *models.Directive) (*CreateResult, error) {
	if err := o.checkDependencies(task); err != nil {
		return nil, err
	}

	dec, err := o.router.Route(ctx, task, d)
	if err != nil {
		return nil, err
	}
	if err := routing.Apply(task, dec); err != nil {
		return nil, err
	}
	if err := o.store.CreateTask(task); err != nil {
		return nil, models.Internal("create task", err)
	}

	log.Printf("[orchestrator] created task %s (%s, %s, participants %v)", task.ID, task.Title, task.Strategy, task.Participants)
	debugLog("[create] task %s strategy=%s reason=%q warnings=%v", task.ID, dec.Strategy, dec.Reason, dec.Warnings)

	if !o.detached {
		ready, err := o.dependenciesMet(task)
		switch {
		case err != nil:
			log.Printf("[orchestrator] task %s: dependency check: %v", task.ID, err)
		case ready:
			o.launch(o.baseCtx, task.Clone())
		default:
			debugLog("[create] task %s waits on %v", task.ID, task.DependsOn)
		}
	}
	return &CreateResult{Task: task, Decision: dec}, nil
}

// GetStatus returns a task's current state, proposal progress, decision
// and phases.
func (o *Orchestrator) GetStatus(ctx context.Context, taskID string) (*StatusSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	task, err := o.load(taskID)
	if err != nil {
		return nil, err
	}

	proposals, err := o.store.ListProposals(task.ID)
	if err != nil {
		return nil, models.Internal("list proposals", err)
	}
	decision, err := o.store.GetDecision(task.ID)
	if err != nil {
		return nil, models.Internal("load decision", err)
	}
	phases, err := o.store.ListTasks(state.TaskFilter{ParentID: task.ID})
	if err != nil {
		return nil, models.Internal("list phases", err)
	}

	o.mu.Lock()
	_, running := o.running[task.ID]
	o.mu.Unlock()

	return &StatusSnapshot{
		Task:      task,
		Submitted: len(proposals),
		Expected:  len(task.Participants),
		Decision:  decision,
		Phases:    phases,
		Running:   running,
	}, nil
}

// defaultPendingStatuses are the states ListPending returns when none are given.
var defaultPendingStatuses = []models.TaskStatus{
	models.TaskStatusPending,
	models.TaskStatusInProgress,
	models.TaskStatusWaitingInput,
}

// ListPending returns tasks in the given states, optionally only those the
// agent participates in. An agent reference that resolves to no agent is a
// ValidationError.
func (o *Orchestrator) ListPending(ctx context.Context, agentRef string, statuses []models.TaskStatus, limit int) ([]models.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter := state.TaskFilter{Statuses: statuses, Limit: limit}
	if len(filter.Statuses) == 0 {
		filter.Statuses = defaultPendingStatuses
	}
	for _, s := range filter.Statuses {
		if !s.Valid() {
			return nil, &models.ValidationError{Field: "statuses", Reason: fmt.Sprintf("unknown status %q", s)}
		}
	}
	if limit < 0 {
		return nil, &models.ValidationError{Field: "limit", Reason: "must not be negative"}
	}

	if agentRef = strings.TrimSpace(agentRef); agentRef != "" {
		a, err := o.registry.Resolve(agentRef)
		if err != nil {
			if models.IsNotFound(err) {
				return nil, &models.ValidationError{Field: "agentId", Reason: fmt.Sprintf("%q does not name a registered agent", agentRef)}
			}
			return nil, err
		}
		filter.AgentID = a.ID
	}

	tasks, err := o.store.ListTasks(filter)
	if err != nil {
		return nil, models.Internal("list tasks", err)
	}
	return tasks, nil
}

// SubmitProposal records an agent's proposal. Agent aliases are resolved
// to agent ids first.
func (o *Orchestrator) SubmitProposal(ctx context.Context, req ProposalRequest) (*consensus.SubmitResult, error) {
	res, err := o.proposals.Submit(ctx, consensus.SubmitRequest{
		TaskID:     req.TaskID,
		AgentID:    o.canonicalAgent(req.AgentID),
		Content:    req.Content,
		InputType:  req.InputType,
		Confidence: req.Confidence,
	})
	if err != nil {
		return nil, err
	}
	debugLog("[propose] task %s agent %s: %d/%d status=%s", req.TaskID, res.Proposal.AgentID, res.Submitted, res.Expected, res.Status)
	return res, nil
}

// Continue returns the full context of a task: proposals, transition
// history, decision, and the parent and phases of sequential work.
func (o *Orchestrator) Continue(ctx context.Context, taskID, agentRef string) (*TaskContext, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	task, err := o.load(taskID)
	if err != nil {
		return nil, err
	}

	out := &TaskContext{Task: task}
	if out.Proposals, err = o.store.ListProposals(task.ID); err != nil {
		return nil, models.Internal("list proposals", err)
	}
	if out.History, err = o.machine.History(task.ID); err != nil {
		return nil, err
	}
	if out.Decision, err = o.store.GetDecision(task.ID); err != nil {
		return nil, models.Internal("load decision", err)
	}
	if out.Phases, err = o.store.ListTasks(state.TaskFilter{ParentID: task.ID}); err != nil {
		return nil, models.Internal("list phases", err)
	}
	if task.ParentID != "" {
		if out.Parent, err = o.store.GetTask(task.ParentID); err != nil {
			return nil, models.Internal("load parent", err)
		}
	}

	if agentRef != "" {
		debugLog("[continue] task %s requested by %s", task.ID, o.canonicalAgent(agentRef))
	}
	return out, nil
}

// Complete marks a task COMPLETED on behalf of its creator or primary
// agent, optionally recording a result.
func (o *Orchestrator) Complete(ctx context.Context, taskID, callerRef, result string) (*models.Task, error) {
	caller := o.canonicalAgent(callerRef)
	var out *models.Task
	err := o.machine.Do(ctx, taskID, func(tx *lifecycle.Txn) error {
		task := tx.Task
		if caller == "" || (caller != task.CreatedBy && callerRef != task.CreatedBy && caller != task.PrimaryAgent()) {
			return &models.ValidationError{Field: "agentId", Reason: fmt.Sprintf("%q is neither the creator nor the primary agent of task %s", callerRef, task.ID)}
		}
		err := tx.Transition(models.TaskStatusCompleted, caller, map[string]string{"completed_by": caller}, func(t *models.Task) {
			if result != "" {
				t.Result = result
			}
		})
		if err != nil {
			return err
		}
		out = tx.Task
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] task %s completed by %s", taskID, caller)
	return out, nil
}

// Fail forces a non-terminal task to FAILED with a reason.
func (o *Orchestrator) Fail(ctx context.Context, taskID, actor, reason string) (*models.Task, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, &models.ValidationError{Field: "reason", Reason: "must not be blank"}
	}
	if actor == "" {
		actor = "external"
	}
	var out *models.Task
	err := o.machine.Do(ctx, taskID, func(tx *lifecycle.Txn) error {
		err := tx.Transition(models.TaskStatusFailed, actor, map[string]string{workflow.MetaFailureReason: reason}, func(t *models.Task) {
			t.SetMeta(workflow.MetaFailureReason, reason)
		})
		if err != nil {
			return err
		}
		out = tx.Task
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[orchestrator] task %s failed by %s: %s", taskID, actor, reason)
	return out, nil
}

func (o *Orchestrator) load(taskID string) (*models.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, &models.ValidationError{Field: "taskId", Reason: "must not be blank"}
	}
	task, err := o.store.GetTask(taskID)
	if err != nil {
		return nil, models.Internal("load task", err)
	}
	if task == nil {
		return nil, &models.NotFoundError{Kind: "task", ID: taskID}
	}
	return task, nil
}

// canonicalAgent maps an alias to its agent id. Unknown references are
// returned unchanged.
func (o *Orchestrator) canonicalAgent(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	a, err := o.registry.Resolve(ref)
	if err != nil {
		if !models.IsNotFound(err) {
			log.Printf("[orchestrator] resolve agent %q: %v", ref, err)
		}
		return ref
	}
	return a.ID
}
