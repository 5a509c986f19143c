package workflow

import (
	"context"
	"errors"
	"log"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/pkg/models"
)

// soloExecutor runs a task on its primary agent. Agents with a backend are
// invoked directly; other agents finish the task themselves through
// Complete, Fail or a submitted proposal.
type soloExecutor struct {
	deps   *Deps
	taskID string
	// phase and context are set when running a sequential phase.
	phase   string
	context string
}

func (s *soloExecutor) Run(ctx context.Context) error {
	task, err := s.deps.start(ctx, s.taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}
	primary := task.PrimaryAgent()

	// An agent that already answered (for instance before a restart) is not
	// asked again.
	if p, err := s.deps.proposalFrom(task.ID, primary); err != nil {
		return err
	} else if p != nil {
		_, err := s.deps.finish(ctx, task.ID, models.TaskStatusCompleted, primary, p.Content, nil)
		return err
	}

	resp, err := s.deps.runAgent(ctx, primary, work{task: task, phase: s.phase, context: s.context})
	switch {
	case errors.Is(err, agent.ErrNoBackend):
		log.Printf("[workflow] task %s: waiting for %s to report", task.ID, primary)
		return s.awaitAgent(ctx, task, primary)
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.deps.emit(Event{Type: EventAgentFinished, TaskID: task.ID, ParentID: task.ParentID, AgentID: primary, Strategy: task.Strategy, Error: err})
		return s.deps.fail(ctx, task.ID, err.Error())
	}

	s.deps.emit(Event{Type: EventAgentFinished, TaskID: task.ID, ParentID: task.ParentID, AgentID: primary, Strategy: task.Strategy})
	if _, err := s.deps.record(ctx, task, primary, resp); err != nil {
		log.Printf("[workflow] task %s: store output of %s: %v", task.ID, primary, err)
	}
	_, err = s.deps.finish(ctx, task.ID, models.TaskStatusCompleted, primary, resp.Content, nil)
	return err
}

// awaitAgent blocks until the task is terminal or the agent submits a
// proposal, whose content becomes the result.
func (s *soloExecutor) awaitAgent(ctx context.Context, task *models.Task, agentID string) error {
	return s.deps.waitFor(ctx, task.ID, func() (bool, error) {
		current, err := s.deps.load(task.ID)
		if err != nil {
			return false, err
		}
		if current.IsTerminal() {
			return true, nil
		}
		p, err := s.deps.proposalFrom(task.ID, agentID)
		if err != nil || p == nil {
			return false, err
		}
		_, err = s.deps.finish(ctx, task.ID, models.TaskStatusCompleted, agentID, p.Content, nil)
		return err == nil, err
	})
}
