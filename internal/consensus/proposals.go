// Package consensus accepts agent proposals and resolves them into a single
// decision.
package consensus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// ProposalStore persists proposals.
type ProposalStore interface {
	CreateProposal(p *models.Proposal) error
	ListProposals(taskID string) ([]models.Proposal, error)
}

// SubmitRequest is one agent's contribution.
type SubmitRequest struct {
	TaskID     string
	AgentID    string
	Content    string
	InputType  string
	Confidence float64
}

// SubmitResult reports an accepted proposal and any status change it caused.
type SubmitResult struct {
	Proposal      *models.Proposal  `json:"proposal"`
	StatusChanged bool              `json:"status_changed"`
	Status        models.TaskStatus `json:"status"`
	// Submitted is how many participants have proposed so far.
	Submitted int `json:"submitted"`
	// Expected is the number of participants.
	Expected int `json:"expected"`
}

// Manager accepts proposals under the task's lock so that concurrent
// submissions cannot race past the status check.
type Manager struct {
	machine *lifecycle.Machine
	store   ProposalStore
	now     func() time.Time
	newID   func() string
}

// NewManager creates a proposal manager.
func NewManager(machine *lifecycle.Machine, store ProposalStore) *Manager {
	return &Manager{
		machine: machine,
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Submit validates and stores a proposal. For consensus tasks the first
// proposal moves the task to WAITING_INPUT and the last one back to
// IN_PROGRESS. Resubmitting identical content is a no-op that returns the
// stored proposal.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	var result *SubmitResult

	err := m.machine.Do(ctx, req.TaskID, func(tx *lifecycle.Txn) error {
		task := tx.Task
		if !task.Status.AcceptsInput() {
			return &models.ConflictError{TaskID: task.ID, Reason: fmt.Sprintf("task is %s and does not accept proposals", task.Status)}
		}

		inputType, err := validate(task, req)
		if err != nil {
			return err
		}

		existing, err := m.store.ListProposals(task.ID)
		if err != nil {
			return models.Internal("list proposals", err)
		}
		for i := range existing {
			p := existing[i]
			if p.AgentID != req.AgentID {
				continue
			}
			if p.Content == req.Content && p.InputType == inputType && p.Confidence == req.Confidence {
				result = &SubmitResult{
					Proposal:  &p,
					Status:    task.Status,
					Submitted: submittedCount(task, existing),
					Expected:  len(task.Participants),
				}
				return nil
			}
			return &models.ConflictError{TaskID: task.ID, Reason: fmt.Sprintf("agent %s already submitted a different proposal", req.AgentID)}
		}

		p := &models.Proposal{
			ID:          m.newID(),
			TaskID:      task.ID,
			AgentID:     req.AgentID,
			Content:     req.Content,
			InputType:   inputType,
			Confidence:  req.Confidence,
			SubmittedAt: m.now(),
		}
		if err := m.store.CreateProposal(p); err != nil {
			switch {
			case errors.Is(err, state.ErrTaskNotFound):
				return &models.NotFoundError{Kind: "task", ID: task.ID}
			case errors.Is(err, state.ErrTaskNotAcceptingInput):
				return &models.ConflictError{TaskID: task.ID, Reason: "task stopped accepting proposals"}
			case errors.Is(err, state.ErrProposalExists):
				return &models.ConflictError{TaskID: task.ID, Reason: fmt.Sprintf("agent %s already submitted a proposal", req.AgentID)}
			default:
				return models.Internal("store proposal", err)
			}
		}

		submitted := submittedCount(task, append(existing, *p))
		expected := len(task.Participants)
		log.Printf("[consensus] task %s: proposal from %s (%d/%d)", task.ID, req.AgentID, submitted, expected)

		result = &SubmitResult{
			Proposal:  p,
			Status:    task.Status,
			Submitted: submitted,
			Expected:  expected,
		}

		if task.Strategy != models.StrategyConsensus {
			return nil
		}
		next := task.Status
		switch {
		case task.Status == models.TaskStatusInProgress && submitted < expected:
			next = models.TaskStatusWaitingInput
		case task.Status == models.TaskStatusWaitingInput && submitted >= expected:
			next = models.TaskStatusInProgress
		}
		if next == task.Status {
			return nil
		}

		meta := map[string]string{
			"proposal_id": p.ID,
			"submitted":   fmt.Sprintf("%d/%d", submitted, expected),
		}
		if err := tx.Transition(next, req.AgentID, meta, nil); err != nil {
			// The proposal is stored; the workflow's poll picks the status up.
			log.Printf("[consensus] task %s: status change to %s failed: %v", task.ID, next, err)
			return nil
		}
		result.Status = next
		result.StatusChanged = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// List returns the proposals for a task in submission order.
func (m *Manager) List(taskID string) ([]models.Proposal, error) {
	proposals, err := m.store.ListProposals(taskID)
	if err != nil {
		return nil, models.Internal("list proposals", err)
	}
	return proposals, nil
}

func validate(task *models.Task, req SubmitRequest) (models.InputType, error) {
	if !task.HasParticipant(req.AgentID) {
		return "", &models.ValidationError{Field: "agentId", Reason: fmt.Sprintf("agent %q is not a participant of task %s", req.AgentID, task.ID)}
	}
	if req.Confidence < 0 || req.Confidence > 1 {
		return "", &models.ValidationError{Field: "confidence", Reason: fmt.Sprintf("%v not in [0,1]", req.Confidence)}
	}
	if strings.TrimSpace(req.Content) == "" {
		return "", &models.ValidationError{Field: "content", Reason: "must not be blank"}
	}
	return models.ParseInputType(req.InputType)
}

// submittedCount counts participants with at least one proposal.
func submittedCount(task *models.Task, proposals []models.Proposal) int {
	seen := make(map[string]bool)
	for _, p := range proposals {
		if task.HasParticipant(p.AgentID) {
			seen[p.AgentID] = true
		}
	}
	return len(seen)
}
