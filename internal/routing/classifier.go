// Package routing decides how a new task is distributed across agents:
// classification, strategy selection, threshold calibration and agent
// selection, composed by Router.
package routing

import (
	"strings"

	"github.com/ShayCichocki/agora/internal/protect"
	"github.com/ShayCichocki/agora/pkg/models"
)

// keyword is a lexical signal. Stem is matched as a word prefix, or as the
// whole word when Exact is set. Name is what gets reported.
type keyword struct {
	Stem   string
	Name   string
	Weight int
	Exact  bool
}

// complexityKeywords are verbs and nouns that indicate design-heavy work.
var complexityKeywords = []keyword{
	{"architect", "architecture", 3, false},
	{"design", "design", 2, false},
	{"redesign", "redesign", 3, false},
	{"refactor", "refactor", 2, false},
	{"migrat", "migration", 3, false},
	{"integrat", "integration", 2, false},
	{"rewrite", "rewrite", 3, false},
	{"overhaul", "overhaul", 3, false},
	{"restructur", "restructure", 2, false},
	{"distributed", "distributed", 3, false},
	{"concurren", "concurrency", 2, false},
	{"scalab", "scalability", 1, false},
	{"optimiz", "optimization", 1, false},
	{"implement", "implement", 1, false},
	{"pipeline", "pipeline", 1, false},
	{"protocol", "protocol", 2, false},
	{"system", "system", 1, false},
}

// simpleKeywords indicate lightweight work that lowers complexity.
var simpleKeywords = []keyword{
	{"typo", "typo", 3, false},
	{"rename", "rename", 2, false},
	{"format", "formatting", 2, false},
	{"comment", "comment", 1, false},
	{"readme", "readme", 2, false},
	{"docs", "docs", 1, true},
	{"spelling", "spelling", 2, false},
	{"bump", "bump", 1, false},
	{"lint", "lint", 1, false},
}

// criticalKeywords are domains where a mistake is expensive.
var criticalKeywords = []keyword{
	{"security", "security", 3, false},
	{"payment", "payment", 3, false},
	{"billing", "billing", 3, false},
	{"production", "production", 3, false},
	{"prod", "production", 2, true},
	{"migrat", "migration", 2, false},
	{"auth", "auth", 3, true},
	{"authent", "authentication", 3, false},
	{"authoriz", "authorization", 3, false},
	{"oauth", "auth", 3, false},
	{"credential", "credentials", 3, false},
	{"secret", "secrets", 3, false},
	{"encrypt", "encryption", 3, false},
	{"database", "database", 2, false},
	{"schema", "schema", 2, false},
	{"deploy", "deployment", 2, false},
	{"infra", "infrastructure", 2, false},
	{"privacy", "privacy", 3, false},
	{"compliance", "compliance", 2, false},
	{"vulnerab", "vulnerability", 3, false},
}

// multiAgentHints ask for several independent perspectives.
var multiAgentHints = []string{
	"compare",
	"comparison",
	"multiple perspectives",
	"different perspectives",
	"survey",
	"options",
	"alternatives",
	"pros and cons",
	"trade-offs",
	"tradeoffs",
	"second opinion",
}

// multiPhaseHints describe ordered phases of work.
var multiPhaseHints = []string{
	"design and implement",
	" then ",
	"first ",
	"afterwards",
	"followed by",
	"phase",
	"step by step",
	"end-to-end",
}

// Classifier estimates complexity and risk from task text.
// It holds no mutable state of its own and is safe for concurrent use.
type Classifier struct {
	detector *protect.Detector
}

// NewClassifier creates a classifier. detector may be nil, in which case
// sensitive-area references are not considered.
func NewClassifier(detector *protect.Detector) *Classifier {
	return &Classifier{detector: detector}
}

// Classify maps task text to a classification. It is deterministic.
func (c *Classifier) Classify(text string) models.Classification {
	lower := " " + strings.ToLower(text) + " "
	ws := tokenize(text)

	var cls models.Classification
	signals := 0

	complexity := 1 + lengthScore(len(ws))
	for _, kw := range matchKeywords(ws, complexityKeywords) {
		complexity += kw.Weight
		signals++
	}
	for _, kw := range matchKeywords(ws, simpleKeywords) {
		complexity -= kw.Weight
		signals++
	}

	risk := 1
	for _, kw := range matchKeywords(ws, criticalKeywords) {
		risk += kw.Weight
		cls.CriticalKeywords = appendUnique(cls.CriticalKeywords, kw.Name)
		signals++
	}

	if c.detector != nil {
		bonus := 0
		for _, f := range c.detector.Scan(text) {
			if f.Kind == protect.FindingKeyword {
				// Already counted by the critical keyword list in most cases.
				continue
			}
			bonus++
		}
		if bonus > 3 {
			bonus = 3
		}
		if bonus > 0 {
			risk += bonus
			signals++
		}
	}

	for _, hint := range multiAgentHints {
		if strings.Contains(lower, hint) {
			cls.MultiAgentHint = true
			signals++
			break
		}
	}
	for _, hint := range multiPhaseHints {
		if strings.Contains(lower, hint) {
			cls.MultiPhaseHint = true
			signals++
			break
		}
	}

	cls.Complexity = clampRating(complexity)
	cls.Risk = clampRating(risk)
	cls.Confidence = confidence(len(ws), signals)
	return cls
}

// lengthScore grows with the number of words.
func lengthScore(n int) int {
	switch {
	case n <= 3:
		return 0
	case n <= 12:
		return 1
	case n <= 40:
		return 2
	default:
		return 3
	}
}

// confidence is low for short or generic text and grows with each signal.
func confidence(wordCount, signals int) float64 {
	base := 0.3
	if wordCount < 4 {
		base = 0.15
	}
	c := base + 0.15*float64(signals)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// matchKeywords returns each keyword whose stem prefixes at least one word.
func matchKeywords(ws []string, list []keyword) []keyword {
	var out []keyword
	for _, kw := range list {
		for _, w := range ws {
			if w == kw.Stem || !kw.Exact && strings.HasPrefix(w, kw.Stem) {
				out = append(out, kw)
				break
			}
		}
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_')
	})
}

func clampRating(v int) int {
	if v < models.MinRating {
		return models.MinRating
	}
	if v > models.MaxRating {
		return models.MaxRating
	}
	return v
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
