package agent

import (
	"fmt"
	"strconv"
	"strings"
)

// defaultConfidence is used when a response carries no CONFIDENCE line.
const defaultConfidence = 0.5

const systemPrompt = `You are one of several AI coding agents working on a shared task.
Answer with the requested artifact only. End your answer with a single line of the form
CONFIDENCE: <number between 0 and 1>
stating how confident you are in the answer.`

// buildPrompt renders a request as the user message sent to a model.
func buildPrompt(req Request) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n", req.Title)
	if req.Type != "" {
		fmt.Fprintf(&sb, "Type: %s\n", req.Type)
	}
	if req.Phase != "" {
		fmt.Fprintf(&sb, "Phase: %s\n", req.Phase)
	}
	if req.InputType != "" {
		fmt.Fprintf(&sb, "Deliverable: %s\n", strings.ReplaceAll(string(req.InputType), "_", " "))
	}
	if req.Description != "" {
		sb.WriteString("\n")
		sb.WriteString(req.Description)
		sb.WriteString("\n")
	}
	if req.Context != "" {
		sb.WriteString("\nContext from earlier work:\n")
		sb.WriteString(req.Context)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseConfidence strips a trailing "CONFIDENCE: x" line from text and
// returns the remaining content and the clamped confidence.
func parseConfidence(text string) (string, float64) {
	trimmed := strings.TrimRight(text, " \t\r\n")
	idx := strings.LastIndex(trimmed, "\n")
	last := trimmed[idx+1:]

	label, value, ok := strings.Cut(strings.TrimSpace(last), ":")
	if !ok || !strings.EqualFold(strings.TrimSpace(label), "confidence") {
		return trimmed, defaultConfidence
	}
	c, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return trimmed, defaultConfidence
	}
	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	if idx < 0 {
		return "", c
	}
	return strings.TrimRight(trimmed[:idx], " \t\r\n"), c
}
