package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// consensusExecutor collects proposals from every participant until all
// have submitted or the quorum deadline passes, then resolves them into a
// Decision. The deadline is stored on the task so a resumed workflow keeps
// the original one.
type consensusExecutor struct {
	deps   *Deps
	taskID string
}

func (c *consensusExecutor) Run(ctx context.Context) error {
	task, err := c.deps.start(ctx, c.taskID)
	if err != nil {
		return err
	}
	if task.IsTerminal() {
		return nil
	}

	deadline, err := c.deadline(ctx, task)
	if err != nil {
		return err
	}

	wctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// Agents with a backend are asked for their proposal; the rest submit
	// on their own.
	kicks, kctx := errgroup.WithContext(wctx)
	for _, agentID := range task.Participants {
		kicks.Go(func() error {
			c.kick(kctx, task, agentID)
			return nil
		})
	}

	err = c.deps.waitFor(wctx, task.ID, func() (bool, error) {
		current, err := c.deps.load(task.ID)
		if err != nil {
			return false, err
		}
		if current.IsTerminal() {
			return true, nil
		}
		proposals, err := c.deps.Store.ListProposals(task.ID)
		if err != nil {
			return false, models.Internal("list proposals", err)
		}
		return len(proposals) >= len(current.Participants), nil
	})
	cancel()
	_ = kicks.Wait()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil && !errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return c.resolve(ctx)
}

// deadline returns the stored quorum deadline, persisting a new one on
// first run.
func (c *consensusExecutor) deadline(ctx context.Context, task *models.Task) (time.Time, error) {
	if raw := task.Meta(MetaConsensusDeadline); raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t, nil
		}
		log.Printf("[workflow] task %s: unreadable %s %q, starting a new quorum window", task.ID, MetaConsensusDeadline, raw)
	}

	deadline := time.Now().UTC().Add(c.deps.Settings.QuorumTimeout)
	err := c.deps.Machine.Do(ctx, task.ID, func(tx *lifecycle.Txn) error {
		return tx.Update(func(t *models.Task) {
			t.SetMeta(MetaConsensusDeadline, deadline.Format(time.RFC3339Nano))
		})
	})
	return deadline, err
}

// kick asks an agent's backend for a proposal unless it already submitted one.
func (c *consensusExecutor) kick(ctx context.Context, task *models.Task, agentID string) {
	if prior, err := c.deps.proposalFrom(task.ID, agentID); err != nil || prior != nil {
		return
	}
	resp, err := c.deps.runAgent(ctx, agentID, work{task: task})
	switch {
	case errors.Is(err, agent.ErrNoBackend):
		return
	case err != nil:
		log.Printf("[workflow] task %s: %v", task.ID, err)
		c.deps.emit(Event{Type: EventAgentFinished, TaskID: task.ID, AgentID: agentID, Strategy: task.Strategy, Error: err})
		return
	}
	if _, err := c.deps.record(ctx, task, agentID, resp); err != nil {
		log.Printf("[workflow] task %s: store proposal of %s: %v", task.ID, agentID, err)
	}
}

// resolve decides the task under its lock, so no proposal can be accepted
// between reading the set and completing the task.
func (c *consensusExecutor) resolve(ctx context.Context) error {
	var decision *models.Decision
	err := c.deps.Machine.Do(ctx, c.taskID, func(tx *lifecycle.Txn) error {
		task := tx.Task
		if task.IsTerminal() {
			return nil
		}

		proposals, err := c.deps.Store.ListProposals(task.ID)
		if err != nil {
			return models.Internal("list proposals", err)
		}
		if len(proposals) == 0 {
			reason := fmt.Sprintf("quorum timeout elapsed with no proposals from %d participants", len(task.Participants))
			log.Printf("[workflow] task %s failed: %s", task.ID, reason)
			return c.deps.finishLocked(tx, models.TaskStatusFailed, actorWorkflow, "", map[string]string{MetaFailureReason: reason})
		}

		expected := len(task.Participants)
		degraded := len(proposals) < expected
		decision, err = c.deps.Resolver.Resolve(task, proposals, c.deps.Settings.Strategies(task.Type), degraded)
		if err != nil {
			return err
		}
		if err := c.deps.Store.CreateDecision(decision); err != nil {
			if !errors.Is(err, state.ErrDecisionExists) {
				return models.Internal("store decision", err)
			}
			// A previous run stored the decision but did not finish the task.
			if decision, err = c.deps.Store.GetDecision(task.ID); err != nil || decision == nil {
				return models.Internal("load decision", fmt.Errorf("reload existing decision: %v", err))
			}
		}

		meta := map[string]string{
			MetaDecisionID: decision.ID,
			MetaAgreement:  strconv.FormatFloat(decision.AgreementScore, 'f', 2, 64),
			MetaDegraded:   strconv.FormatBool(decision.Degraded),
			MetaProposals:  fmt.Sprintf("%d/%d", len(proposals), expected),
		}
		return c.deps.finishLocked(tx, models.TaskStatusCompleted, actorWorkflow, decision.Content, meta)
	})
	if err != nil {
		return err
	}

	if decision != nil {
		msg := "winner " + decision.WinningProposalID
		if decision.Merged() {
			msg = fmt.Sprintf("merged %d proposals", len(decision.MergedFrom))
		}
		log.Printf("[workflow] task %s: decision %s (%s, agreement %.2f)", c.taskID, decision.ID, msg, decision.AgreementScore)
		c.deps.emit(Event{Type: EventDecisionReached, TaskID: c.taskID, Strategy: models.StrategyConsensus, Message: msg})
	}
	return nil
}
