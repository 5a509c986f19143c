package routing

import (
	"sort"
	"strings"
	"testing"

	"github.com/ShayCichocki/agora/pkg/models"
)

// staticDirectory is an in-memory Directory.
type staticDirectory []*models.Agent

func (d staticDirectory) Resolve(ref string) (*models.Agent, error) {
	for _, a := range d {
		if a.Matches(ref) {
			return a.Clone(), nil
		}
	}
	return nil, &models.NotFoundError{Kind: "agent", ID: ref}
}

func (d staticDirectory) List() []*models.Agent {
	out := make([]*models.Agent, 0, len(d))
	for _, a := range d {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func agent(id, typ string, status models.AgentStatus, load int, impl float64) *models.Agent {
	return &models.Agent{
		ID:     id,
		Type:   typ,
		Status: status,
		Load:   load,
		Capabilities: map[models.TaskType]float64{
			models.TaskTypeImplementation: impl,
		},
	}
}

func implTask() *models.Task {
	return &models.Task{ID: "t1", Title: "x", Type: models.TaskTypeImplementation, Complexity: 5, Risk: 5}
}

func TestSelectAgentForTask(t *testing.T) {
	dir := staticDirectory{
		agent("claude", "claude", models.AgentStatusOnline, 2, 0.9),
		agent("claude-2", "claude", models.AgentStatusOnline, 0, 0.9),
		agent("gpt", "gpt", models.AgentStatusBusy, 0, 0.95),
		agent("gemini", "gemini", models.AgentStatusOffline, 0, 1.0),
	}
	s := NewSelector(dir)

	tests := []struct {
		name        string
		directive   *models.Directive
		wantID      string
		wantWarning bool
		wantErr     func(error) bool
	}{
		{"highest capability then lowest load", nil, "claude-2", false, nil},
		{"busy assignee allowed with warning", &models.Directive{AssignToAgent: "gpt"}, "gpt", true, nil},
		{"offline assignee is a conflict", &models.Directive{AssignToAgent: "gemini"}, "", false, models.IsConflict},
		{"unknown assignee", &models.Directive{AssignToAgent: "llama"}, "", false, models.IsNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, warnings, err := s.SelectAgentForTask(implTask(), tt.directive)
			if tt.wantErr != nil {
				if !tt.wantErr(err) {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectAgentForTask failed: %v", err)
			}
			if a.ID != tt.wantID {
				t.Errorf("selected %s, want %s", a.ID, tt.wantID)
			}
			if got := len(warnings) > 0; got != tt.wantWarning {
				t.Errorf("warnings = %v, want present=%v", warnings, tt.wantWarning)
			}
		})
	}
}

func TestSelectAgentForTask_NoneOnline(t *testing.T) {
	s := NewSelector(staticDirectory{agent("a", "a", models.AgentStatusOffline, 0, 1)})
	if _, _, err := s.SelectAgentForTask(implTask(), nil); !models.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}

func TestSelectAgentsForConsensus_Diversity(t *testing.T) {
	dir := staticDirectory{
		agent("claude", "claude", models.AgentStatusOnline, 0, 0.9),
		agent("claude-2", "claude", models.AgentStatusOnline, 0, 0.85),
		agent("gpt", "gpt", models.AgentStatusOnline, 0, 0.6),
		agent("gemini", "gemini", models.AgentStatusOnline, 0, 0.5),
		agent("down", "down", models.AgentStatusOffline, 0, 1),
	}
	s := NewSelector(dir)

	team, _, err := s.SelectAgentsForConsensus(implTask(), nil, 3)
	if err != nil {
		t.Fatalf("SelectAgentsForConsensus failed: %v", err)
	}
	if got := strings.Join(ids(team), ","); got != "claude,gpt,gemini" {
		t.Errorf("team = %s, want claude,gpt,gemini", got)
	}
}

func TestSelectAgentsForConsensus_FallsBackToSameType(t *testing.T) {
	dir := staticDirectory{
		agent("claude", "claude", models.AgentStatusOnline, 0, 0.9),
		agent("claude-2", "claude", models.AgentStatusOnline, 0, 0.85),
		agent("gpt", "gpt", models.AgentStatusOnline, 0, 0.6),
	}
	s := NewSelector(dir)

	team, _, err := s.SelectAgentsForConsensus(implTask(), &models.Directive{AssignToAgent: "gpt", ForceConsensus: true}, 3)
	if err != nil {
		t.Fatalf("SelectAgentsForConsensus failed: %v", err)
	}
	if got := strings.Join(ids(team), ","); got != "gpt,claude,claude-2" {
		t.Errorf("team = %s, want gpt,claude,claude-2", got)
	}
}

func TestSelectAgentsForConsensus_TooFew(t *testing.T) {
	dir := staticDirectory{
		agent("claude", "claude", models.AgentStatusOnline, 0, 0.9),
		agent("gpt", "gpt", models.AgentStatusBusy, 0, 0.9),
		agent("gemini", "gemini", models.AgentStatusOffline, 0, 0.9),
	}
	s := NewSelector(dir)
	if _, _, err := s.SelectAgentsForConsensus(implTask(), nil, 3); !models.IsConflict(err) {
		t.Errorf("expected conflict with one online agent, got %v", err)
	}

	team, warnings, err := s.SelectAgentsForConsensus(implTask(), &models.Directive{AssignToAgent: "gpt", ForceConsensus: true}, 3)
	if err != nil {
		t.Fatalf("busy assignee plus one online agent should suffice: %v", err)
	}
	if len(team) != 2 || team[0].ID != "gpt" || len(warnings) != 1 {
		t.Errorf("team = %v warnings = %v", ids(team), warnings)
	}
}
