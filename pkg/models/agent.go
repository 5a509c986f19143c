package models

import "strings"

// AgentStatus represents the availability of an agent.
type AgentStatus string

const (
	// AgentStatusOnline indicates the agent can take new work.
	AgentStatusOnline AgentStatus = "online"
	// AgentStatusOffline indicates the agent cannot be reached.
	AgentStatusOffline AgentStatus = "offline"
	// AgentStatusBusy indicates the agent is reachable but saturated.
	AgentStatusBusy AgentStatus = "busy"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusOnline, AgentStatusOffline, AgentStatusBusy:
		return true
	default:
		return false
	}
}

// Agent is a registered AI coding agent as seen by the router.
// The registry owns agents; routing only reads snapshots.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id" yaml:"id"`
	// Aliases are alternative names that resolve to this agent.
	Aliases []string `json:"aliases,omitempty" yaml:"aliases"`
	// Type is the underlying agent family (e.g. "claude", "gpt").
	Type string `json:"type" yaml:"type"`
	// Capabilities scores the agent per task type (0.0-1.0).
	Capabilities map[TaskType]float64 `json:"capabilities,omitempty" yaml:"capabilities"`
	// Status is the current availability.
	Status AgentStatus `json:"status" yaml:"status"`
	// Load is the number of active tasks assigned to this agent.
	Load int `json:"load" yaml:"-"`
	// Backend is the registered backend name used to execute work, if any.
	Backend string `json:"backend,omitempty" yaml:"backend"`
	// Model is the backend model identifier.
	Model string `json:"model,omitempty" yaml:"model"`
}

// Capability returns the capability score for a task type.
func (a *Agent) Capability(t TaskType) float64 {
	if a.Capabilities == nil {
		return 0
	}
	return a.Capabilities[t]
}

// Matches reports whether ref names this agent by id or alias.
func (a *Agent) Matches(ref string) bool {
	if strings.EqualFold(a.ID, ref) {
		return true
	}
	for _, alias := range a.Aliases {
		if strings.EqualFold(alias, ref) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the agent.
func (a *Agent) Clone() *Agent {
	c := *a
	c.Aliases = append([]string(nil), a.Aliases...)
	if a.Capabilities != nil {
		c.Capabilities = make(map[TaskType]float64, len(a.Capabilities))
		for k, v := range a.Capabilities {
			c.Capabilities[k] = v
		}
	}
	return &c
}
