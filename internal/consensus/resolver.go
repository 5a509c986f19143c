package consensus

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Resolver combines strategy rankings into one Decision.
type Resolver struct {
	now   func() time.Time
	newID func() string
}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{
		now:   func() time.Time { return time.Now().UTC() },
		newID: func() string { return uuid.New().String() },
	}
}

// Resolve ranks proposals with each strategy and picks a winner by combined
// score, then raw confidence, then earliest submission. When merge is among
// the strategies and the other strategies disagree on the winner, the
// decision is a synthesis of every proposal in final order. The result does
// not depend on the order of proposals.
func (r *Resolver) Resolve(task *models.Task, proposals []models.Proposal, names []models.VotingStrategy, degraded bool) (*models.Decision, error) {
	if len(proposals) == 0 {
		return nil, &models.ValidationError{Field: "proposals", Reason: fmt.Sprintf("task %s has no proposals to resolve", task.ID)}
	}
	if len(names) == 0 {
		names = []models.VotingStrategy{models.VotingPlurality}
	}

	// A canonical input order keeps floating-point sums identical across
	// arrival orders.
	sorted := make([]models.Proposal, len(proposals))
	copy(sorted, proposals)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AgentID != sorted[j].AgentID {
			return sorted[i].AgentID < sorted[j].AgentID
		}
		return sorted[i].ID < sorted[j].ID
	})

	var (
		rankings []Ranking
		applied  []models.VotingStrategy
		merge    bool
	)
	for _, name := range dedupe(names) {
		s, err := StrategyFor(name)
		if err != nil {
			return nil, err
		}
		rankings = append(rankings, s.Rank(sorted))
		applied = append(applied, name)
		if name == models.VotingMerge {
			merge = true
		}
	}

	combined := make(map[string]float64, len(sorted))
	for _, p := range sorted {
		var sum float64
		for _, rk := range rankings {
			sum += rk.Scores[p.ID]
		}
		combined[p.ID] = sum / float64(len(rankings))
	}
	final := rank("", sorted, combined)

	decision := &models.Decision{
		ID:             r.newID(),
		TaskID:         task.ID,
		Strategies:     applied,
		Scores:         combined,
		AgreementScore: Agreement(sorted),
		Degraded:       degraded,
		CreatedAt:      r.now(),
	}

	byID := make(map[string]models.Proposal, len(sorted))
	for _, p := range sorted {
		byID[p.ID] = p
	}

	if merge && len(sorted) > 1 && winnersDisagree(rankings) {
		decision.MergedFrom = final.Order
		decision.Content = synthesize(final.Order, byID)
		return decision, nil
	}

	winner := byID[final.Winner()]
	decision.WinningProposalID = winner.ID
	decision.Content = winner.Content
	return decision, nil
}

// winnersDisagree reports whether the non-merge rankings picked different
// winners.
func winnersDisagree(rankings []Ranking) bool {
	winner := ""
	for _, rk := range rankings {
		if rk.Strategy == models.VotingMerge {
			continue
		}
		if winner == "" {
			winner = rk.Winner()
			continue
		}
		if rk.Winner() != winner {
			return true
		}
	}
	return false
}

func synthesize(order []string, byID map[string]models.Proposal) string {
	var sb strings.Builder
	sb.WriteString("# Merged decision\n")
	for _, id := range order {
		p := byID[id]
		fmt.Fprintf(&sb, "\n## From %s (confidence %.2f)\n\n", p.AgentID, p.Confidence)
		sb.WriteString(strings.TrimSpace(p.Content))
		sb.WriteString("\n")
	}
	return sb.String()
}

func dedupe(names []models.VotingStrategy) []models.VotingStrategy {
	seen := make(map[models.VotingStrategy]bool, len(names))
	out := make([]models.VotingStrategy, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
