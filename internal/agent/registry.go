// Package agent holds the agent registry and the backends that execute work
// on behalf of registered agents.
package agent

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Registry tracks registered agents, their availability and their load.
// It is safe for concurrent use. Callers always receive copies.
type Registry struct {
	// agents maps agent IDs to agent models.
	agents map[string]*models.Agent
	// mu protects all fields.
	mu sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*models.Agent),
	}
}

// Register adds an agent. IDs and aliases must be unique across the registry.
func (r *Registry) Register(a *models.Agent) error {
	if err := validateAgent(a); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[a.ID]; exists {
		return fmt.Errorf("agent %s already registered", a.ID)
	}
	if clash := r.findClashLocked(a); clash != "" {
		return fmt.Errorf("agent %s: name %q already used by %s", a.ID, clash, r.ownerLocked(clash))
	}
	r.agents[a.ID] = a.Clone()
	return nil
}

// Replace swaps the agent set, keeping the current load of agents that
// remain registered. Used when the registry file changes.
func (r *Registry) Replace(agents []*models.Agent) error {
	next := make(map[string]*models.Agent, len(agents))
	names := make(map[string]string)
	for _, a := range agents {
		if err := validateAgent(a); err != nil {
			return err
		}
		for _, name := range append([]string{a.ID}, a.Aliases...) {
			key := strings.ToLower(name)
			if owner, ok := names[key]; ok {
				return fmt.Errorf("agent %s: name %q already used by %s", a.ID, name, owner)
			}
			names[key] = a.ID
		}
		next[a.ID] = a.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for id, a := range next {
		if prev, ok := r.agents[id]; ok {
			a.Load = prev.Load
		}
	}
	r.agents = next
	return nil
}

// Resolve looks an agent up by ID or alias, case-insensitively.
func (r *Registry) Resolve(ref string) (*models.Agent, error) {
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.agents[ref]; ok {
		return a.Clone(), nil
	}
	for _, id := range r.sortedIDsLocked() {
		if a := r.agents[id]; a.Matches(ref) {
			return a.Clone(), nil
		}
	}
	return nil, &models.NotFoundError{Kind: "agent", ID: ref}
}

// Get retrieves an agent by exact ID.
// Returns nil if the agent is not registered.
func (r *Registry) Get(id string) *models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.agents[id]; ok {
		return a.Clone()
	}
	return nil
}

// List returns copies of all agents ordered by ID.
func (r *Registry) List() []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Agent, 0, len(r.agents))
	for _, id := range r.sortedIDsLocked() {
		out = append(out, r.agents[id].Clone())
	}
	return out
}

// SetStatus updates an agent's availability.
func (r *Registry) SetStatus(id string, status models.AgentStatus) error {
	if !status.Valid() {
		return &models.ValidationError{Field: "status", Reason: fmt.Sprintf("unknown agent status %q", status)}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return &models.NotFoundError{Kind: "agent", ID: id}
	}
	a.Status = status
	return nil
}

// Acquire increments the load of each listed agent. Unknown IDs are skipped.
func (r *Registry) Acquire(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if a, ok := r.agents[id]; ok {
			a.Load++
		}
	}
}

// Release decrements the load of each listed agent, never below zero.
func (r *Registry) Release(ids ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if a, ok := r.agents[id]; ok && a.Load > 0 {
			a.Load--
		}
	}
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

func (r *Registry) sortedIDsLocked() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// findClashLocked returns the first name of a that another agent already uses.
func (r *Registry) findClashLocked(a *models.Agent) string {
	for _, name := range append([]string{a.ID}, a.Aliases...) {
		for _, other := range r.agents {
			if other.Matches(name) {
				return name
			}
		}
	}
	return ""
}

func (r *Registry) ownerLocked(name string) string {
	for id, other := range r.agents {
		if other.Matches(name) {
			return id
		}
	}
	return ""
}

func validateAgent(a *models.Agent) error {
	if a == nil || strings.TrimSpace(a.ID) == "" {
		return &models.ValidationError{Field: "agent.id", Reason: "must not be blank"}
	}
	if !a.Status.Valid() {
		return &models.ValidationError{Field: "agent.status", Reason: fmt.Sprintf("agent %s has unknown status %q", a.ID, a.Status)}
	}
	for tt, score := range a.Capabilities {
		if !tt.Valid() {
			return &models.ValidationError{Field: "agent.capabilities", Reason: fmt.Sprintf("agent %s has unknown task type %q", a.ID, tt)}
		}
		if score < 0 || score > 1 {
			return &models.ValidationError{Field: "agent.capabilities", Reason: fmt.Sprintf("agent %s score for %s not in [0,1]", a.ID, tt)}
		}
	}
	return nil
}
