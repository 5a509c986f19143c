package orchestrator

import (
	"context"
	"log"
	"time"
)

// Run is the dispatch loop. Every dispatch interval it adopts unfinished
// tasks that no workflow in this process is driving, which covers tasks
// created by detached processes and tasks interrupted by a restart. Run
// returns when ctx is cancelled, after the workflows it started have
// stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	interval := o.cfg.Workflow.DispatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("[orchestrator] dispatch loop started (interval %s)", interval)
	for {
		if n := o.dispatch(ctx); n > 0 {
			log.Printf("[orchestrator] adopted %d task(s), %d running", n, o.Running())
		}

		select {
		case <-ctx.Done():
			debugLog("[runLoop] context done, waiting for %d workflow(s)", o.Running())
			o.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// dispatch launches workflows for unowned tasks whose dependencies have
// completed and returns how many it started. Tasks whose dependencies
// failed are failed.
func (o *Orchestrator) dispatch(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	resumable, err := o.ResumableTasks()
	if err != nil {
		log.Printf("[orchestrator] dispatch: %v", err)
		return 0
	}
	debugLog("[runLoop] %d unfinished task(s), %d running", len(resumable), o.Running())

	started := 0
	for _, r := range resumable {
		switch {
		case len(r.Blocked) > 0:
			o.failBlocked(ctx, r.Task.ID, r.Blocked)
		case !r.Ready():
			debugLog("[runLoop] task %s waits on %v", r.Task.ID, r.Waiting)
		case o.launch(ctx, r.Task):
			started++
		}
	}
	return started
}
