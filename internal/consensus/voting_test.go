package consensus

import (
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func proposal(id, agentID, content string, confidence float64, offset time.Duration) models.Proposal {
	return models.Proposal{
		ID:          id,
		TaskID:      "task-1",
		AgentID:     agentID,
		Content:     content,
		InputType:   models.InputArchitecturalPlan,
		Confidence:  confidence,
		SubmittedAt: baseTime.Add(offset),
	}
}

func TestStrategyFor(t *testing.T) {
	for _, name := range []models.VotingStrategy{
		models.VotingPlurality,
		models.VotingReasoningQuality,
		models.VotingMerge,
		models.VotingTokenOptimization,
	} {
		s, err := StrategyFor(name)
		if err != nil {
			t.Fatalf("StrategyFor(%s) failed: %v", name, err)
		}
		if s.Name() != name {
			t.Errorf("StrategyFor(%s).Name() = %s", name, s.Name())
		}
	}

	if _, err := StrategyFor("coin_flip"); !models.IsValidation(err) {
		t.Errorf("expected validation error for unknown strategy, got %v", err)
	}
}

func TestPluralityVoting(t *testing.T) {
	tests := []struct {
		name      string
		proposals []models.Proposal
		want      string
	}{
		{
			name: "higher confidence wins",
			proposals: []models.Proposal{
				proposal("p1", "claude", "Use Postgres with row level locks", 0.75, 0),
				proposal("p2", "gpt", "Use an event log with idempotent consumers", 0.92, time.Second),
			},
			want: "p2",
		},
		{
			name: "matching answers pool confidence",
			proposals: []models.Proposal{
				proposal("p1", "claude", "Use Postgres", 0.6, 0),
				proposal("p2", "gemini", "use   postgres", 0.6, time.Second),
				proposal("p3", "gpt", "Use DynamoDB", 0.9, 2*time.Second),
			},
			want: "p1",
		},
		{
			name: "tie broken by earliest submission",
			proposals: []models.Proposal{
				proposal("p1", "gpt", "Option B", 0.8, time.Second),
				proposal("p2", "claude", "Option A", 0.8, 0),
			},
			want: "p2",
		},
		{
			name: "zero confidence splits evenly",
			proposals: []models.Proposal{
				proposal("p1", "gpt", "Option B", 0, 0),
				proposal("p2", "claude", "Option A", 0, 0),
			},
			want: "p2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pluralityVoting{}.Rank(tt.proposals)
			if r.Winner() != tt.want {
				t.Errorf("winner = %s, want %s (scores %v)", r.Winner(), tt.want, r.Scores)
			}
			if len(r.Order) != len(tt.proposals) {
				t.Errorf("order has %d entries, want %d", len(r.Order), len(tt.proposals))
			}
		})
	}
}

func TestReasoningQuality_PrefersStructuredExplanation(t *testing.T) {
	detailed := `## Approach
1. Split the ledger into an append-only journal because replays must be deterministic.
2. Keep balances as a projection, therefore reads never block writes.
- Risk: projection lag. The alternative is synchronous updates, which means higher latency.
- Trade-off: more storage since every event is kept.`

	proposals := []models.Proposal{
		proposal("terse", "gpt", "Just use a table.", 0.9, 0),
		proposal("detailed", "claude", detailed, 0.7, time.Second),
	}

	r := reasoningQuality{}.Rank(proposals)
	if r.Winner() != "detailed" {
		t.Errorf("winner = %s, want detailed (scores %v)", r.Winner(), r.Scores)
	}
	for id, score := range r.Scores {
		if score < 0 || score > 1 {
			t.Errorf("score for %s = %v, outside [0,1]", id, score)
		}
	}
}

func TestTokenOptimization(t *testing.T) {
	long := strings.Repeat("Detailed explanation of the migration plan. ", 20)
	medium := "Add a nullable column, backfill in batches, then enforce NOT NULL."
	short := "Drop it."

	proposals := []models.Proposal{
		proposal("long", "claude", long, 0.95, 0),
		proposal("medium", "gpt", medium, 0.75, time.Second),
		proposal("short", "gemini", short, 0.5, 2*time.Second),
	}

	r := tokenOptimization{}.Rank(proposals)
	if r.Winner() != "medium" {
		t.Errorf("winner = %s, want medium (scores %v)", r.Winner(), r.Scores)
	}
	if r.Order[len(r.Order)-1] != "short" {
		t.Errorf("low-confidence proposal should rank last, order = %v", r.Order)
	}

	// Nothing acceptable: rank by confidence.
	weak := []models.Proposal{
		proposal("a", "claude", long, 0.4, 0),
		proposal("b", "gpt", short, 0.3, time.Second),
	}
	if w := (tokenOptimization{}).Rank(weak).Winner(); w != "a" {
		t.Errorf("winner without acceptable proposals = %s, want a", w)
	}
}

func TestMergeVoting_PrefersRepresentativeProposal(t *testing.T) {
	proposals := []models.Proposal{
		proposal("p1", "claude", "cache sessions in redis with a short ttl", 0.8, 0),
		proposal("p2", "gpt", "cache sessions in redis with a long ttl", 0.8, time.Second),
		proposal("p3", "gemini", "rewrite everything in assembly", 0.8, 2*time.Second),
	}

	r := mergeVoting{}.Rank(proposals)
	if r.Order[len(r.Order)-1] != "p3" {
		t.Errorf("outlier should rank last, order = %v", r.Order)
	}

	single := mergeVoting{}.Rank(proposals[:1])
	if single.Scores["p1"] != 1 {
		t.Errorf("single proposal score = %v, want 1", single.Scores["p1"])
	}
}

func TestAgreement(t *testing.T) {
	tests := []struct {
		name      string
		contents  []string
		want      float64
		tolerance float64
	}{
		{name: "single", contents: []string{"anything"}, want: 1},
		{name: "identical", contents: []string{"use redis", "Use Redis"}, want: 1},
		{name: "disjoint", contents: []string{"use redis", "pick postgres"}, want: 0},
		{name: "partial", contents: []string{"a b c d", "a b x y"}, want: 2.0 / 6.0, tolerance: 1e-9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var proposals []models.Proposal
			for i, c := range tt.contents {
				proposals = append(proposals, proposal(string(rune('a'+i)), "agent", c, 0.5, 0))
			}
			got := Agreement(proposals)
			if diff := got - tt.want; diff > tt.tolerance || diff < -tt.tolerance {
				t.Errorf("Agreement = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := estimateTokens(""); got != 1 {
		t.Errorf("estimateTokens(\"\") = %d, want 1", got)
	}
	if got := estimateTokens(strings.Repeat("x", 40)); got != 10 {
		t.Errorf("estimateTokens(40 chars) = %d, want 10", got)
	}
}
