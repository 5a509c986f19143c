// Package workflow drives routed tasks to a terminal state according to
// their strategy.
package workflow

import (
	"context"
	"fmt"
	"log"

	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// Executor runs one task's workflow until the task is terminal or ctx is
// cancelled. A cancelled executor leaves the task in its current state so
// that a later Run resumes it.
type Executor interface {
	Run(ctx context.Context) error
}

// New returns the executor for a routed task.
func New(strategy models.Strategy, deps *Deps, task *models.Task) (Executor, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if task == nil || task.ID == "" {
		return nil, &models.ValidationError{Field: "task", Reason: "is required"}
	}
	if len(task.Participants) == 0 {
		return nil, &models.ValidationError{Field: "participants", Reason: fmt.Sprintf("task %s has no participants", task.ID)}
	}
	d := *deps
	d.Settings = d.Settings.withDefaults()
	deps = &d

	var inner Executor
	switch strategy {
	case models.StrategySolo:
		inner = &soloExecutor{deps: deps, taskID: task.ID}
	case models.StrategySequential:
		inner = &sequentialExecutor{deps: deps, taskID: task.ID}
	case models.StrategyParallel:
		inner = &parallelExecutor{deps: deps, taskID: task.ID}
	case models.StrategyConsensus:
		inner = &consensusExecutor{deps: deps, taskID: task.ID}
	default:
		return nil, &models.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", strategy)}
	}
	return &tracked{inner: inner, deps: deps, taskID: task.ID, strategy: strategy}, nil
}

// tracked emits lifecycle events around an executor and records the
// outcome of tasks that end, however they ended.
type tracked struct {
	inner    Executor
	deps     *Deps
	taskID   string
	strategy models.Strategy
}

func (t *tracked) Run(ctx context.Context) error {
	t.deps.emit(Event{Type: EventTaskStarted, TaskID: t.taskID, Strategy: t.strategy})

	if err := t.inner.Run(ctx); err != nil {
		log.Printf("[workflow] task %s: %s workflow stopped: %v", t.taskID, t.strategy, err)
		return err
	}

	task, err := t.deps.load(t.taskID)
	if err != nil {
		return err
	}
	if !task.IsTerminal() {
		return nil
	}

	switch task.Status {
	case models.TaskStatusCompleted:
		t.deps.emit(Event{Type: EventTaskCompleted, TaskID: task.ID, Strategy: task.Strategy, Message: summarize(task)})
	case models.TaskStatusFailed:
		t.deps.emit(Event{Type: EventTaskFailed, TaskID: task.ID, Strategy: task.Strategy, Message: task.Meta(MetaFailureReason)})
	}

	t.recordOutcome(task)
	return nil
}

func (t *tracked) recordOutcome(task *models.Task) {
	o := state.Outcome{
		TaskID:    task.ID,
		Strategy:  task.Strategy,
		Succeeded: task.Status == models.TaskStatusCompleted,
	}
	if task.Strategy == models.StrategyConsensus {
		decision, err := t.deps.Store.GetDecision(task.ID)
		if err != nil {
			log.Printf("[workflow] task %s: load decision for outcome: %v", task.ID, err)
		}
		if decision != nil {
			o.AgreementScore = decision.AgreementScore
			o.HasAgreement = true
		}
	}
	if err := t.deps.Store.RecordOutcome(o); err != nil {
		log.Printf("[workflow] task %s: record outcome: %v", task.ID, err)
	}
}

// summarize returns a one-line description of a completed task.
func summarize(task *models.Task) string {
	if s := task.Meta(MetaParallelSummary); s != "" {
		return s
	}
	if s := task.Meta(MetaProposals); s != "" {
		return "decision from " + s + " proposals"
	}
	if s := task.Meta(MetaPhases); s != "" {
		return s + " phases completed"
	}
	return "completed"
}
