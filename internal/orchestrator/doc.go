// Package orchestrator is the process root of agora. It owns the agent
// registry, the state store and the router, and exposes the operations
// callers use to create, assign, inspect and finish tasks.
//
// The orchestrator covers:
//   - Routing: classifying a new task and choosing its strategy and agents
//   - Lifecycle: driving every task through the state machine
//   - Workflows: running solo, sequential, parallel and consensus executors
//   - Dispatch: adopting unowned tasks, emergency tasks first
//
// A detached orchestrator (CLI mode) only records tasks and transitions; a
// long-running orchestrator started with Run picks them up and drives them.
//
// Example usage:
//
//	orch, err := orchestrator.New(orchestrator.RequiredConfig{
//		Store:    db,
//		Registry: registry,
//	}, orchestrator.WithConfig(cfg))
//	res, err := orch.RouteAndCreate(ctx, orchestrator.CreateRequest{
//		Title: "Design payment processing architecture",
//		Type:  "architecture",
//		Complexity: 9,
//		Risk:       8,
//	})
package orchestrator
