package orchestrator

import (
	"errors"
	"log"
	"sort"

	"github.com/ShayCichocki/agora/internal/graph"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/pkg/models"
)

// ResumableTask is an unfinished top-level task that a dispatch loop can adopt.
type ResumableTask struct {
	Task *models.Task
	// Immediate is set for tasks routed by an emergency directive.
	Immediate bool
	// Submitted counts proposals already stored.
	Submitted int
	// Waiting lists dependencies that have not completed yet.
	Waiting []string
	// Blocked lists dependencies that failed or no longer exist; the task
	// can never start.
	Blocked []string
}

// Ready reports whether the task may start now.
func (r ResumableTask) Ready() bool {
	return len(r.Waiting) == 0
}

// ResumableTasks lists unfinished top-level tasks, emergency tasks first and
// then oldest first, with the dependencies each is still waiting on. Phase
// tasks are driven by their parent's workflow and are not listed.
func (o *Orchestrator) ResumableTasks() ([]ResumableTask, error) {
	tasks, err := o.store.ListTasks(state.TaskFilter{
		Statuses: defaultPendingStatuses,
		TopLevel: true,
	})
	if err != nil {
		return nil, models.Internal("list unfinished tasks", err)
	}

	nodes := make([]*models.Task, len(tasks))
	for i := range tasks {
		nodes[i] = &tasks[i]
	}
	g, err := o.dependencyGraph(nodes)
	if errors.Is(err, graph.ErrCycleDetected) {
		log.Printf("[orchestrator] unfinished tasks have circular dependencies; those tasks stay pending")
	} else if err != nil {
		return nil, err
	}
	blocked := g.Blocked()

	out := make([]ResumableTask, 0, len(tasks))
	for _, t := range nodes {
		proposals, err := o.store.ListProposals(t.ID)
		if err != nil {
			return nil, models.Internal("list proposals", err)
		}
		out = append(out, ResumableTask{
			Task:      t,
			Immediate: t.Meta("routing.immediate") == "true",
			Submitted: len(proposals),
			Waiting:   g.Unmet(t.ID),
			Blocked:   blocked[t.ID],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Immediate != out[j].Immediate {
			return out[i].Immediate
		}
		if !out[i].Task.CreatedAt.Equal(out[j].Task.CreatedAt) {
			return out[i].Task.CreatedAt.Before(out[j].Task.CreatedAt)
		}
		return out[i].Task.ID < out[j].Task.ID
	})
	return out, nil
}
