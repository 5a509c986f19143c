package routing

import (
	"fmt"
	"sort"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Directory is the read side of the agent registry.
type Directory interface {
	Resolve(ref string) (*models.Agent, error)
	List() []*models.Agent
}

// Selector picks agents for tasks from a Directory.
type Selector struct {
	agents Directory
}

// NewSelector creates a selector over agents.
func NewSelector(agents Directory) *Selector {
	return &Selector{agents: agents}
}

// SelectAgentForTask returns the single agent for a SOLO task. An explicit
// assignee wins unless it is OFFLINE; a BUSY assignee is returned with a
// warning. Otherwise the most capable ONLINE agent is chosen, ties broken
// by lowest load.
func (s *Selector) SelectAgentForTask(task *models.Task, d *models.Directive) (*models.Agent, []string, error) {
	if d != nil && d.AssignToAgent != "" {
		a, warning, err := s.assignee(d.AssignToAgent)
		if err != nil {
			return nil, nil, err
		}
		return a, warningList(warning), nil
	}

	ranked := s.ranked(task.Type, nil)
	if len(ranked) == 0 {
		return nil, nil, &models.ConflictError{TaskID: task.ID, Reason: "no online agents available"}
	}
	return ranked[0], nil, nil
}

// SelectAgentsForConsensus returns between 2 and maxAgents agents. The
// assignee, if any, comes first. Remaining slots prefer agent types not yet
// chosen and fall back to repeated types only when distinct types run out.
func (s *Selector) SelectAgentsForConsensus(task *models.Task, d *models.Directive, maxAgents int) ([]*models.Agent, []string, error) {
	if maxAgents < 2 {
		maxAgents = 2
	}
	return s.SelectTeam(task, d, 2, maxAgents)
}

// SelectTeam returns between minAgents and maxAgents diverse agents.
func (s *Selector) SelectTeam(task *models.Task, d *models.Directive, minAgents, maxAgents int) ([]*models.Agent, []string, error) {
	var (
		team     []*models.Agent
		warnings []string
	)
	exclude := make(map[string]bool)

	if d != nil && d.AssignToAgent != "" {
		a, warning, err := s.assignee(d.AssignToAgent)
		if err != nil {
			return nil, nil, err
		}
		team = append(team, a)
		warnings = warningList(warning)
		exclude[a.ID] = true
	}

	ranked := s.ranked(task.Type, exclude)
	team = diverse(team, ranked, maxAgents)

	if len(team) < minAgents {
		return nil, nil, &models.ConflictError{
			TaskID: task.ID,
			Reason: fmt.Sprintf("need at least %d online agents, have %d", minAgents, len(team)),
		}
	}
	return team, warnings, nil
}

// assignee resolves an explicitly named agent.
func (s *Selector) assignee(ref string) (*models.Agent, string, error) {
	a, err := s.agents.Resolve(ref)
	if err != nil {
		return nil, "", err
	}
	switch a.Status {
	case models.AgentStatusOffline:
		return nil, "", &models.ConflictError{Reason: fmt.Sprintf("agent %s is offline", a.ID)}
	case models.AgentStatusBusy:
		return a, fmt.Sprintf("agent %s is busy (load %d)", a.ID, a.Load), nil
	}
	return a, "", nil
}

// ranked returns ONLINE agents by capability desc, load asc, id asc.
func (s *Selector) ranked(tt models.TaskType, exclude map[string]bool) []*models.Agent {
	var out []*models.Agent
	for _, a := range s.agents.List() {
		if a.Status != models.AgentStatusOnline || exclude[a.ID] {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, cj := out[i].Capability(tt), out[j].Capability(tt)
		if ci != cj {
			return ci > cj
		}
		if out[i].Load != out[j].Load {
			return out[i].Load < out[j].Load
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// diverse appends agents from ranked to team until it holds limit agents,
// taking unseen types first.
func diverse(team, ranked []*models.Agent, limit int) []*models.Agent {
	types := make(map[string]bool)
	for _, a := range team {
		types[a.Type] = true
	}
	used := make(map[string]bool)

	for _, a := range ranked {
		if len(team) >= limit {
			return team
		}
		if types[a.Type] {
			continue
		}
		team = append(team, a)
		types[a.Type] = true
		used[a.ID] = true
	}
	for _, a := range ranked {
		if len(team) >= limit {
			break
		}
		if used[a.ID] {
			continue
		}
		team = append(team, a)
		used[a.ID] = true
	}
	return team
}

func warningList(w string) []string {
	if w == "" {
		return nil
	}
	return []string{w}
}

// ids returns the agent IDs in order.
func ids(agents []*models.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.ID
	}
	return out
}
