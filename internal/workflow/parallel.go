package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/pkg/models"
)

// parallelExecutor runs a task on every participant at once. Outputs are
// kept side by side without ranking, and the task completes if at least one
// agent succeeded.
type parallelExecutor struct {
	deps   *Deps
	taskID string
}

// branchResult is one agent's outcome.
type branchResult struct {
	agentID string
	output  string
	err     error
}

func (p *parallelExecutor) Run(ctx context.Context) error {
	task, err := p.deps.start(ctx, p.taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	results := make([]branchResult, len(task.Participants))
	g, gctx := errgroup.WithContext(ctx)
	for i, agentID := range task.Participants {
		g.Go(func() error {
			output, err := p.branch(gctx, task, agentID)
			results[i] = branchResult{agentID: agentID, output: output, err: err}
			p.deps.emit(Event{Type: EventAgentFinished, TaskID: task.ID, AgentID: agentID, Strategy: task.Strategy, Error: err})
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		sections []string
		failures []string
	)
	meta := make(map[string]string)
	for _, r := range results {
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", r.agentID, r.err))
			meta["parallel."+r.agentID+".error"] = r.err.Error()
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", r.agentID, strings.TrimSpace(r.output)))
	}

	summary := fmt.Sprintf("%d/%d successful", len(sections), len(results))
	meta[MetaParallelSummary] = summary
	log.Printf("[workflow] task %s: %s", task.ID, summary)

	if len(sections) == 0 {
		meta[MetaFailureReason] = summary + ": " + strings.Join(failures, "; ")
		_, err := p.deps.finish(ctx, task.ID, models.TaskStatusFailed, actorWorkflow, "", meta)
		return err
	}
	_, err = p.deps.finish(ctx, task.ID, models.TaskStatusCompleted, actorWorkflow, strings.Join(sections, "\n\n"), meta)
	return err
}

// branch gets one agent's output: from an earlier proposal, from its
// backend, or by waiting for the agent to submit one. Each branch is bounded
// by the agent timeout.
func (p *parallelExecutor) branch(ctx context.Context, task *models.Task, agentID string) (string, error) {
	if prior, err := p.deps.proposalFrom(task.ID, agentID); err != nil {
		return "", err
	} else if prior != nil {
		return prior.Content, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.deps.Settings.AgentTimeout)
	defer cancel()

	resp, err := p.deps.runAgent(ctx, agentID, work{task: task})
	if err == nil {
		if _, err := p.deps.record(ctx, task, agentID, resp); err != nil {
			log.Printf("[workflow] task %s: store output of %s: %v", task.ID, agentID, err)
		}
		return resp.Content, nil
	}
	if !errors.Is(err, agent.ErrNoBackend) {
		return "", err
	}

	var output string
	err = p.deps.waitFor(ctx, task.ID, func() (bool, error) {
		prop, err := p.deps.proposalFrom(task.ID, agentID)
		if err != nil || prop == nil {
			return false, err
		}
		output = prop.Content
		return true, nil
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("no output from %s within %s", agentID, p.deps.Settings.AgentTimeout)
	}
	return output, err
}
