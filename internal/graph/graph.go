// Package graph tracks "depends on" edges between tasks and reports which
// unfinished tasks may start.
package graph

import (
	"errors"
	"sort"
	"sync"

	"github.com/ShayCichocki/agora/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed graph of task dependencies. Nodes are tasks
// and edges point from a task to the tasks it waits on. A dependency with no
// node is treated as unknown: it never satisfies its dependents.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// edges maps task ID to the IDs it depends on.
	edges map[string][]string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:    make(map[string]*models.Task),
		edges:    make(map[string][]string),
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *DependencyGraph) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build adds tasks as nodes and their DependsOn lists as edges. Adding a
// task that is already present replaces it. Returns ErrCycleDetected if the
// resulting graph has a cycle; the graph keeps the offending edges so
// callers can discard it.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		g.nodes[task.ID] = task
		g.edges[task.ID] = dedupe(task.DependsOn)
	}
	g.debugLog("[graph.Build] %d nodes, edges %v", len(g.nodes), g.edges)

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs a three-colour DFS. Callers hold the lock.
func (g *DependencyGraph) hasCycleLocked() bool {
	const (
		white = iota
		grey
		black
	)
	colors := make(map[string]int, len(g.edges))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = grey
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case grey:
				return true
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = black
		return false
	}

	for _, id := range g.sortedIDs() {
		if colors[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns node IDs with every dependency before its
// dependents. Ties follow ID order so the result is stable.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, dep := range g.edges[id] {
			visit(dep)
		}
		if _, ok := g.nodes[id]; ok {
			result = append(result, id)
		}
	}
	for _, id := range g.sortedIDs() {
		visit(id)
	}
	return result, nil
}

// Ready returns unfinished tasks whose dependencies have all completed,
// sorted by ID.
func (g *DependencyGraph) Ready() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.sortedIDs() {
		task := g.nodes[id]
		if task.Status.Terminal() {
			continue
		}
		if len(g.unmetLocked(id)) == 0 {
			ready = append(ready, id)
		}
	}
	g.debugLog("[graph.Ready] %d of %d nodes ready: %v", len(ready), len(g.nodes), ready)
	return ready
}

// Blocked maps each unfinished task that can never become ready to the
// dependencies that failed or are unknown.
func (g *DependencyGraph) Blocked() map[string][]string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	blocked := make(map[string][]string)
	for _, id := range g.sortedIDs() {
		if g.nodes[id].Status.Terminal() {
			continue
		}
		for _, dep := range g.edges[id] {
			d, ok := g.nodes[dep]
			if !ok || d.Status == models.TaskStatusFailed {
				blocked[id] = append(blocked[id], dep)
			}
		}
	}
	return blocked
}

// Unmet returns the dependencies of taskID that have not completed.
func (g *DependencyGraph) Unmet(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.unmetLocked(taskID)
}

func (g *DependencyGraph) unmetLocked(taskID string) []string {
	var unmet []string
	for _, dep := range g.edges[taskID] {
		d, ok := g.nodes[dep]
		if !ok || d.Status != models.TaskStatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// GetTask returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetTask(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependents returns the IDs of tasks that depend on taskID, sorted.
func (g *DependencyGraph) GetDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for _, id := range g.sortedIDs() {
		for _, dep := range g.edges[id] {
			if dep == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

func (g *DependencyGraph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
