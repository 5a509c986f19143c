package workflow

import (
	"regexp"
	"strings"
)

// Phase is one step of a sequential task.
type Phase struct {
	Name        string
	Description string
}

var (
	thenSplit      = regexp.MustCompile(`(?i)[,;.]?\s+(?:and\s+)?then\s+`)
	designImplRule = regexp.MustCompile(`(?i)\bdesign\s+and\s+(?:then\s+)?implement\b`)
)

// maxPhaseName caps the length of a phase name derived from task text.
const maxPhaseName = 48

// PlanPhases splits a task into ordered phases. Explicit "then" steps in
// the title or description are used as written; "design and implement"
// yields a design and an implementation phase; anything else gets a
// plan, implement and verify sequence.
func PlanPhases(title, description string) []Phase {
	for _, text := range []string{title, description} {
		parts := splitSteps(text)
		if len(parts) < 2 {
			continue
		}
		phases := make([]Phase, len(parts))
		for i, p := range parts {
			phases[i] = Phase{Name: phaseName(p), Description: p}
		}
		return phases
	}

	subject := strings.TrimSpace(title)
	if designImplRule.MatchString(title + " " + description) {
		return []Phase{
			{Name: "design", Description: "Design the approach for: " + subject},
			{Name: "implement", Description: "Implement the agreed design for: " + subject},
		}
	}
	return []Phase{
		{Name: "plan", Description: "Plan the work for: " + subject},
		{Name: "implement", Description: "Implement the plan for: " + subject},
		{Name: "verify", Description: "Verify the implementation of: " + subject},
	}
}

func splitSteps(text string) []string {
	var parts []string
	for _, p := range thenSplit.Split(text, -1) {
		p = strings.Trim(strings.TrimSpace(p), ".,;")
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

// phaseName shortens a step to a readable label, cut at a word boundary.
func phaseName(step string) string {
	name := strings.ToLower(strings.Join(strings.Fields(step), " "))
	if len(name) <= maxPhaseName {
		return name
	}
	cut := strings.LastIndex(name[:maxPhaseName], " ")
	if cut <= 0 {
		cut = maxPhaseName
	}
	return name[:cut]
}
