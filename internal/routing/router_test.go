package routing

import (
	"context"
	"testing"

	"github.com/ShayCichocki/agora/internal/protect"
	"github.com/ShayCichocki/agora/pkg/models"
)

func newTestRouter(agents ...*models.Agent) *Router {
	if len(agents) == 0 {
		agents = []*models.Agent{
			agent("claude", "claude", models.AgentStatusOnline, 0, 0.9),
			agent("gpt", "gpt", models.AgentStatusOnline, 0, 0.8),
			agent("gemini", "gemini", models.AgentStatusOnline, 0, 0.7),
		}
	}
	return NewRouter(NewClassifier(protect.New()), nil, NewSelector(staticDirectory(agents)), Options{MaxConsensusAgents: 3, MaxParallelAgents: 2})
}

func TestRoute_Scenarios(t *testing.T) {
	tests := []struct {
		name            string
		task            *models.Task
		directive       *models.Directive
		want            models.Strategy
		minParticipants int
		maxParticipants int
	}{
		{
			"typo fix goes solo",
			&models.Task{ID: "t1", Title: "Fix typo", Type: models.TaskTypeBugfix, Complexity: 2, Risk: 1},
			nil, models.StrategySolo, 1, 1,
		},
		{
			"payment architecture goes to consensus",
			&models.Task{ID: "t2", Title: "Design payment processing architecture", Type: models.TaskTypeArchitecture, Complexity: 9, Risk: 8},
			nil, models.StrategyConsensus, 2, 3,
		},
		{
			"research comparison fans out",
			&models.Task{ID: "t3", Title: "Compare message queue alternatives", Type: models.TaskTypeResearch, Complexity: 5, Risk: 4},
			nil, models.StrategyParallel, 2, 2,
		},
		{
			"critical research still fans out",
			&models.Task{ID: "t6", Title: "Compare security options for the production payment service", Type: models.TaskTypeResearch, Complexity: 5, Risk: 5},
			nil, models.StrategyParallel, 2, 2,
		},
		{
			"design and implement is sequential",
			&models.Task{ID: "t4", Title: "Design and implement a rate limiter", Type: models.TaskTypeImplementation, Complexity: 6, Risk: 4},
			nil, models.StrategySequential, 1, 2,
		},
		{
			"force consensus on trivial task",
			&models.Task{ID: "t5", Title: "Fix typo", Type: models.TaskTypeBugfix, Complexity: 1, Risk: 1},
			&models.Directive{ForceConsensus: true}, models.StrategyConsensus, 2, 3,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := newTestRouter().Route(context.Background(), tt.task, tt.directive)
			if err != nil {
				t.Fatalf("Route failed: %v", err)
			}
			if dec.Strategy != tt.want {
				t.Errorf("Strategy = %s, want %s (%s)", dec.Strategy, tt.want, dec.Reason)
			}
			if n := len(dec.Participants); n < tt.minParticipants || n > tt.maxParticipants {
				t.Errorf("participants = %v, want %d-%d", dec.Participants, tt.minParticipants, tt.maxParticipants)
			}
			if dec.PrimaryAgent != dec.Participants[0] {
				t.Errorf("primary %s is not first participant %v", dec.PrimaryAgent, dec.Participants)
			}
			if dec.Metadata["routing.strategy"] != string(dec.Strategy) {
				t.Errorf("routing.strategy metadata = %q", dec.Metadata["routing.strategy"])
			}
		})
	}
}

func TestRoute_DirectiveAudit(t *testing.T) {
	conf := 0.9
	task := &models.Task{ID: "t1", Title: "Refactor the cache layer", Type: models.TaskTypeImplementation, Complexity: 5, Risk: 5}
	d := &models.Directive{ForceConsensus: true, OriginalText: "get everyone to weigh in", Confidence: &conf}

	dec, err := newTestRouter().Route(context.Background(), task, d)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}

	want := map[string]string{
		"directive.forceConsensus": "true",
		"directive.originalText":   "get everyone to weigh in",
		"directive.confidence":     "0.90",
		"routing.strategy":         "consensus",
	}
	for k, v := range want {
		if dec.Metadata[k] != v {
			t.Errorf("metadata[%s] = %q, want %q", k, dec.Metadata[k], v)
		}
	}

	if err := Apply(task, dec); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if task.Strategy != models.StrategyConsensus || task.Meta("directive.forceConsensus") != "true" {
		t.Errorf("decision not applied: %+v", task)
	}
	if err := Apply(task, dec); !models.IsConflict(err) {
		t.Errorf("second Apply should conflict, got %v", err)
	}
}

func TestRoute_Rejections(t *testing.T) {
	valid := func() *models.Task {
		return &models.Task{ID: "t", Title: "Do work", Type: models.TaskTypeImplementation, Complexity: 3, Risk: 3}
	}

	tests := []struct {
		name      string
		mutate    func(*models.Task)
		directive *models.Directive
		check     func(error) bool
	}{
		{"blank title", func(t *models.Task) { t.Title = "  " }, nil, models.IsValidation},
		{"complexity out of range", func(t *models.Task) { t.Complexity = 11 }, nil, models.IsValidation},
		{"risk out of range", func(t *models.Task) { t.Risk = 0 }, nil, models.IsValidation},
		{"unknown type", func(t *models.Task) { t.Type = "gardening" }, nil, models.IsValidation},
		{"conflicting directive", func(*models.Task) {}, &models.Directive{ForceConsensus: true, PreventConsensus: true}, models.IsValidation},
		{"offline assignee", func(*models.Task) {}, &models.Directive{AssignToAgent: "down"}, models.IsConflict},
		{"already routed", func(t *models.Task) { t.Strategy = models.StrategySolo }, nil, models.IsConflict},
	}

	r := newTestRouter(
		agent("claude", "claude", models.AgentStatusOnline, 0, 0.9),
		agent("down", "down", models.AgentStatusOffline, 0, 0.9),
	)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := valid()
			tt.mutate(task)
			if _, err := r.Route(context.Background(), task, tt.directive); !tt.check(err) {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRoute_ParallelDowngradesWithOneAgent(t *testing.T) {
	r := newTestRouter(agent("claude", "claude", models.AgentStatusOnline, 0, 0.9))
	task := &models.Task{ID: "t", Title: "Compare logging alternatives", Type: models.TaskTypeResearch, Complexity: 5, Risk: 4}

	dec, err := r.Route(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Route failed: %v", err)
	}
	if dec.Strategy != models.StrategySolo || len(dec.Warnings) == 0 {
		t.Errorf("expected solo with warning, got %s %v", dec.Strategy, dec.Warnings)
	}
}

func TestRoute_ConsensusNeedsTwoAgents(t *testing.T) {
	r := newTestRouter(agent("claude", "claude", models.AgentStatusOnline, 0, 0.9))
	task := &models.Task{ID: "t", Title: "Design payment processing architecture", Type: models.TaskTypeArchitecture, Complexity: 9, Risk: 8}
	if _, err := r.Route(context.Background(), task, nil); !models.IsConflict(err) {
		t.Errorf("expected conflict, got %v", err)
	}
}
