package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/agora/internal/graph"
	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/internal/workflow"
	"github.com/ShayCichocki/agora/pkg/models"
)

// dependencyGraph builds a graph over tasks and everything they wait on.
// Dependencies of finished tasks are not followed. A returned
// graph.ErrCycleDetected comes with the populated graph.
func (o *Orchestrator) dependencyGraph(tasks []*models.Task) (*graph.DependencyGraph, error) {
	nodes := append([]*models.Task(nil), tasks...)
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		seen[t.ID] = true
	}
	for i := 0; i < len(nodes); i++ {
		if nodes[i].Status.Terminal() {
			continue
		}
		for _, dep := range nodes[i].DependsOn {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			d, err := o.store.GetTask(dep)
			if err != nil {
				return nil, models.Internal("load dependency", err)
			}
			if d != nil {
				nodes = append(nodes, d)
			}
		}
	}

	g := graph.New()
	g.SetDebugLog(debugLog)
	return g, g.Build(nodes)
}

// checkDependencies rejects a new task whose dependencies are unknown or
// lead into a cycle.
func (o *Orchestrator) checkDependencies(task *models.Task) error {
	for _, dep := range task.DependsOn {
		if dep == task.ID {
			return &models.ValidationError{Field: "dependsOn", Reason: "task cannot depend on itself"}
		}
		existing, err := o.store.GetTask(dep)
		if err != nil {
			return models.Internal("load dependency", err)
		}
		if existing == nil {
			return &models.NotFoundError{Kind: "task", ID: dep}
		}
	}
	if len(task.DependsOn) == 0 {
		return nil
	}

	if _, err := o.dependencyGraph([]*models.Task{task}); err != nil {
		if errors.Is(err, graph.ErrCycleDetected) {
			return &models.ValidationError{Field: "dependsOn", Reason: err.Error()}
		}
		return err
	}
	return nil
}

// dependenciesMet reports whether every dependency of task has completed.
func (o *Orchestrator) dependenciesMet(task *models.Task) (bool, error) {
	if len(task.DependsOn) == 0 {
		return true, nil
	}
	g, err := o.dependencyGraph([]*models.Task{task})
	if err != nil && !errors.Is(err, graph.ErrCycleDetected) {
		return false, err
	}
	return len(g.Unmet(task.ID)) == 0, nil
}

// failBlocked fails a pending task whose dependencies can never complete.
func (o *Orchestrator) failBlocked(ctx context.Context, taskID string, deps []string) {
	reason := fmt.Sprintf("dependencies did not complete: %s", strings.Join(deps, ", "))
	err := o.machine.Do(ctx, taskID, func(tx *lifecycle.Txn) error {
		if tx.Task.Status != models.TaskStatusPending {
			return nil
		}
		return tx.Transition(models.TaskStatusFailed, "system", map[string]string{workflow.MetaFailureReason: reason}, func(t *models.Task) {
			t.SetMeta(workflow.MetaFailureReason, reason)
		})
	})
	if err != nil {
		log.Printf("[orchestrator] task %s: cannot fail blocked task: %v", taskID, err)
		return
	}
	log.Printf("[orchestrator] task %s failed: %s", taskID, reason)
}

// startDependents launches pending top-level tasks that were waiting on
// finished and are now ready. Dependents of a failed task are failed.
func (o *Orchestrator) startDependents(ctx context.Context, finished string) {
	if ctx.Err() != nil {
		return
	}
	pending, err := o.store.ListTasks(state.TaskFilter{
		Statuses: []models.TaskStatus{models.TaskStatusPending},
		TopLevel: true,
	})
	if err != nil {
		log.Printf("[orchestrator] list dependents of %s: %v", finished, err)
		return
	}

	var waiting []*models.Task
	for i := range pending {
		for _, dep := range pending[i].DependsOn {
			if dep == finished {
				waiting = append(waiting, &pending[i])
				break
			}
		}
	}
	if len(waiting) == 0 {
		return
	}

	g, err := o.dependencyGraph(waiting)
	if err != nil && !errors.Is(err, graph.ErrCycleDetected) {
		log.Printf("[orchestrator] dependents of %s: %v", finished, err)
		return
	}
	blocked := g.Blocked()
	ready := make(map[string]bool)
	for _, id := range g.Ready() {
		ready[id] = true
	}

	for _, t := range waiting {
		switch {
		case len(blocked[t.ID]) > 0:
			o.failBlocked(ctx, t.ID, blocked[t.ID])
		case ready[t.ID]:
			debugLog("[dependencies] task %s unblocked by %s", t.ID, finished)
			o.launch(ctx, t)
		}
	}
}
