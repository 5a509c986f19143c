package consensus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/agora/pkg/models"
)

// acceptableConfidence is the confidence token optimization treats as good enough.
const acceptableConfidence = 0.7

// Ranking is one strategy's view of a proposal set.
type Ranking struct {
	Strategy models.VotingStrategy
	// Scores maps proposal ID to a score in [0,1].
	Scores map[string]float64
	// Order lists proposal IDs best first.
	Order []string
}

// Winner returns the top-ranked proposal ID, or "" for an empty ranking.
func (r Ranking) Winner() string {
	if len(r.Order) == 0 {
		return ""
	}
	return r.Order[0]
}

// Strategy ranks a set of proposals for one task.
type Strategy interface {
	Name() models.VotingStrategy
	Rank(proposals []models.Proposal) Ranking
}

// strategies is the static table of built-in voting strategies.
var strategies = map[models.VotingStrategy]Strategy{
	models.VotingPlurality:         pluralityVoting{},
	models.VotingReasoningQuality:  reasoningQuality{},
	models.VotingMerge:             mergeVoting{},
	models.VotingTokenOptimization: tokenOptimization{},
}

// StrategyFor returns the built-in strategy with the given name.
func StrategyFor(name models.VotingStrategy) (Strategy, error) {
	s, ok := strategies[name]
	if !ok {
		return nil, &models.ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown voting strategy %q", name)}
	}
	return s, nil
}

// rank builds a Ranking from per-proposal scores with deterministic ties:
// score desc, confidence desc, submission asc, agent asc.
func rank(name models.VotingStrategy, proposals []models.Proposal, scores map[string]float64) Ranking {
	order := make([]models.Proposal, len(proposals))
	copy(order, proposals)
	sort.SliceStable(order, func(i, j int) bool {
		return less(order[i], order[j], scores)
	})
	ids := make([]string, len(order))
	for i, p := range order {
		ids[i] = p.ID
	}
	return Ranking{Strategy: name, Scores: scores, Order: ids}
}

func less(a, b models.Proposal, scores map[string]float64) bool {
	if scores[a.ID] != scores[b.ID] {
		return scores[a.ID] > scores[b.ID]
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	if !a.SubmittedAt.Equal(b.SubmittedAt) {
		return a.SubmittedAt.Before(b.SubmittedAt)
	}
	return a.AgentID < b.AgentID
}

// pluralityVoting is confidence-weighted plurality: proposals with the same
// normalized content pool their confidence, and each proposal scores its
// group's share of the total.
type pluralityVoting struct{}

func (pluralityVoting) Name() models.VotingStrategy { return models.VotingPlurality }

func (pluralityVoting) Rank(proposals []models.Proposal) Ranking {
	groups := make(map[string]float64)
	total := 0.0
	for _, p := range proposals {
		groups[normalize(p.Content)] += p.Confidence
		total += p.Confidence
	}

	scores := make(map[string]float64, len(proposals))
	for _, p := range proposals {
		if total == 0 {
			scores[p.ID] = 1 / float64(len(groups))
			continue
		}
		scores[p.ID] = groups[normalize(p.Content)] / total
	}
	return rank(models.VotingPlurality, proposals, scores)
}

// reasoningMarkers are words that signal explained reasoning.
var reasoningMarkers = []string{
	"because", "therefore", "since", "however", "trade-off", "tradeoff",
	"risk", "alternative", "assum", "consequen", "so that", "which means",
}

// reasoningQuality scores proposals on structure and detail.
type reasoningQuality struct{}

func (reasoningQuality) Name() models.VotingStrategy { return models.VotingReasoningQuality }

func (reasoningQuality) Rank(proposals []models.Proposal) Ranking {
	scores := make(map[string]float64, len(proposals))
	for _, p := range proposals {
		scores[p.ID] = qualityScore(p)
	}
	return rank(models.VotingReasoningQuality, proposals, scores)
}

func qualityScore(p models.Proposal) float64 {
	content := p.Content
	lower := strings.ToLower(content)

	detail := float64(len(strings.Fields(content))) / 200
	if detail > 1 {
		detail = 1
	}

	structured := 0
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#"),
			strings.HasPrefix(line, "- "),
			strings.HasPrefix(line, "* "),
			strings.HasPrefix(line, "```"),
			len(line) > 2 && line[0] >= '0' && line[0] <= '9' && (line[1] == '.' || line[1] == ')'):
			structured++
		}
	}
	structure := float64(structured) / 5
	if structure > 1 {
		structure = 1
	}

	markers := 0
	for _, m := range reasoningMarkers {
		if strings.Contains(lower, m) {
			markers++
		}
	}
	reasoning := float64(markers) / 4
	if reasoning > 1 {
		reasoning = 1
	}

	return 0.35*detail + 0.25*structure + 0.25*reasoning + 0.15*p.Confidence
}

// tokenOptimization prefers the cheapest proposal among those with
// acceptable confidence. Below that bar proposals score by confidence alone
// and always rank after acceptable ones.
type tokenOptimization struct{}

func (tokenOptimization) Name() models.VotingStrategy { return models.VotingTokenOptimization }

func (tokenOptimization) Rank(proposals []models.Proposal) Ranking {
	cheapest := 0
	for _, p := range proposals {
		if p.Confidence < acceptableConfidence {
			continue
		}
		if t := estimateTokens(p.Content); cheapest == 0 || t < cheapest {
			cheapest = t
		}
	}

	scores := make(map[string]float64, len(proposals))
	for _, p := range proposals {
		switch {
		case cheapest == 0:
			scores[p.ID] = p.Confidence
		case p.Confidence >= acceptableConfidence:
			scores[p.ID] = 0.5 + 0.5*float64(cheapest)/float64(estimateTokens(p.Content))
		default:
			scores[p.ID] = 0.5 * p.Confidence
		}
	}
	return rank(models.VotingTokenOptimization, proposals, scores)
}

// mergeVoting ranks proposals by how representative they are: the mean
// similarity to every other proposal. The synthesis itself happens in the
// resolver when the other strategies disagree.
type mergeVoting struct{}

func (mergeVoting) Name() models.VotingStrategy { return models.VotingMerge }

func (mergeVoting) Rank(proposals []models.Proposal) Ranking {
	scores := make(map[string]float64, len(proposals))
	if len(proposals) == 1 {
		scores[proposals[0].ID] = 1
		return rank(models.VotingMerge, proposals, scores)
	}

	sets := make([]map[string]struct{}, len(proposals))
	for i, p := range proposals {
		sets[i] = tokenSet(p.Content)
	}
	for i, p := range proposals {
		var sum float64
		for j := range proposals {
			if i != j {
				sum += jaccard(sets[i], sets[j])
			}
		}
		scores[p.ID] = sum / float64(len(proposals)-1)
	}
	return rank(models.VotingMerge, proposals, scores)
}
