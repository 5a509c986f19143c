package agent

import (
	"strings"
	"testing"

	"github.com/ShayCichocki/agora/pkg/models"
)

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		name        string
		in          string
		wantContent string
		wantConf    float64
	}{
		{"trailing line", "Use a queue.\nCONFIDENCE: 0.8", "Use a queue.", 0.8},
		{"lowercase with whitespace", "Plan\n\nconfidence : 0.35 \n\n", "Plan", 0.35},
		{"missing", "Just an answer", "Just an answer", defaultConfidence},
		{"unparsable", "Answer\nCONFIDENCE: high", "Answer\nCONFIDENCE: high", defaultConfidence},
		{"clamped", "Answer\nConfidence: 1.7", "Answer", 1},
		{"only confidence", "CONFIDENCE: 0.2", "", 0.2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content, conf := parseConfidence(tt.in)
			if content != tt.wantContent {
				t.Errorf("content = %q, want %q", content, tt.wantContent)
			}
			if conf != tt.wantConf {
				t.Errorf("confidence = %v, want %v", conf, tt.wantConf)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	p := buildPrompt(Request{
		Title:       "Add caching",
		Description: "Cache user lookups",
		Type:        models.TaskTypeImplementation,
		Phase:       "implement",
		Context:     "design: use LRU",
		InputType:   models.InputImplementationPlan,
	})
	for _, want := range []string{"Task: Add caching", "Phase: implement", "implementation plan", "Cache user lookups", "design: use LRU"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}
}
