package workflow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// sequentialExecutor runs a task as ordered phases. Each phase is a SOLO
// child task with its own lifecycle; phase n+1 is created only after phase
// n completes, and agents take turns in participant order.
type sequentialExecutor struct {
	deps   *Deps
	taskID string
}

func (s *sequentialExecutor) Run(ctx context.Context) error {
	parent, err := s.deps.start(ctx, s.taskID)
	if err != nil {
		return err
	}
	if parent.IsTerminal() {
		return nil
	}

	phases := PlanPhases(parent.Title, parent.Description)
	existing, err := s.children(parent.ID)
	if err != nil {
		return err
	}

	var (
		previous string
		sections []string
	)
	for i, ph := range phases {
		child, ok := existing[i]
		if !ok {
			child, err = s.createPhase(parent, i, ph, existing[i-1])
			if err != nil {
				return err
			}
		}

		s.deps.emit(Event{
			Type:     EventPhaseStarted,
			TaskID:   child.ID,
			ParentID: parent.ID,
			AgentID:  child.PrimaryAgent(),
			Strategy: parent.Strategy,
			Message:  fmt.Sprintf("phase %d/%d: %s", i+1, len(phases), ph.Name),
		})

		solo := &soloExecutor{deps: s.deps, taskID: child.ID, phase: ph.Name, context: previous}
		if err := solo.Run(ctx); err != nil {
			return err
		}

		child, err = s.deps.load(child.ID)
		if err != nil {
			return err
		}
		existing[i] = child
		if child.Status == models.TaskStatusFailed {
			reason := fmt.Sprintf("phase %d (%s) failed", i+1, ph.Name)
			if r := child.Meta(MetaFailureReason); r != "" {
				reason += ": " + r
			}
			return s.deps.fail(ctx, parent.ID, reason)
		}

		previous = child.Result
		sections = append(sections, fmt.Sprintf("## Phase %d: %s\n\n%s", i+1, ph.Name, strings.TrimSpace(child.Result)))
	}

	meta := map[string]string{MetaPhases: strconv.Itoa(len(phases))}
	_, err = s.deps.finish(ctx, parent.ID, models.TaskStatusCompleted, actorWorkflow, strings.Join(sections, "\n\n"), meta)
	return err
}

// children returns previously created phase tasks by phase index.
func (s *sequentialExecutor) children(parentID string) (map[int]*models.Task, error) {
	tasks, err := s.deps.Store.ListTasks(state.TaskFilter{ParentID: parentID})
	if err != nil {
		return nil, models.Internal("list phases", err)
	}
	out := make(map[int]*models.Task, len(tasks))
	for i := range tasks {
		out[tasks[i].Phase] = &tasks[i]
	}
	return out, nil
}

func (s *sequentialExecutor) createPhase(parent *models.Task, index int, ph Phase, prev *models.Task) (*models.Task, error) {
	agentID := parent.Participants[index%len(parent.Participants)]
	now := time.Now().UTC()
	child := &models.Task{
		ID:           uuid.New().String(),
		ParentID:     parent.ID,
		Phase:        index,
		Title:        fmt.Sprintf("%s: %s", parent.Title, ph.Name),
		Description:  ph.Description,
		Type:         parent.Type,
		Complexity:   parent.Complexity,
		Risk:         parent.Risk,
		Status:       models.TaskStatusPending,
		Strategy:     models.StrategySolo,
		Participants: []string{agentID},
		Metadata:     map[string]string{MetaPhaseName: ph.Name},
		CreatedBy:    parent.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev != nil {
		child.DependsOn = []string{prev.ID}
	}
	if err := s.deps.Store.CreateTask(child); err != nil {
		return nil, models.Internal("create phase", err)
	}
	log.Printf("[workflow] task %s: phase %d (%s) assigned to %s", parent.ID, index+1, ph.Name, agentID)
	return child, nil
}
