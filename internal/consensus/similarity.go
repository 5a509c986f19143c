package consensus

import (
	"strings"
	"unicode"

	"github.com/ShayCichocki/agora/pkg/models"
)

// tokenSet returns the distinct lower-cased word tokens of s.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[w] = struct{}{}
	}
	return set
}

// jaccard is |a ∩ b| / |a ∪ b|. Two empty sets are identical.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// Agreement is the mean pairwise token similarity of the proposals'
// content. A single proposal agrees with itself.
func Agreement(proposals []models.Proposal) float64 {
	if len(proposals) < 2 {
		return 1
	}
	sets := make([]map[string]struct{}, len(proposals))
	for i, p := range proposals {
		sets[i] = tokenSet(p.Content)
	}
	var sum float64
	pairs := 0
	for i := 0; i < len(sets); i++ {
		for j := i + 1; j < len(sets); j++ {
			sum += jaccard(sets[i], sets[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// normalize collapses case and whitespace so equivalent answers vote together.
func normalize(content string) string {
	return strings.Join(strings.Fields(strings.ToLower(content)), " ")
}

// estimateTokens approximates the token cost of content.
func estimateTokens(content string) int {
	n := len(content) / 4
	if n < 1 {
		return 1
	}
	return n
}
