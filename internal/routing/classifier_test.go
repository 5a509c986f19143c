package routing

import (
	"sync"
	"testing"

	"github.com/ShayCichocki/agora/internal/protect"
)

func TestClassify(t *testing.T) {
	c := NewClassifier(protect.New())

	tests := []struct {
		name          string
		text          string
		minComplexity int
		maxComplexity int
		minRisk       int
		maxRisk       int
		critical      bool
	}{
		{"typo fix is trivial", "Fix typo", 1, 2, 1, 1, false},
		{"payment architecture is risky", "Design payment processing architecture", 5, 10, 4, 10, true},
		{"auth migration", "Migrate the production auth database schema to the new cluster", 4, 10, 8, 10, true},
		{"author is not auth", "Update author field in changelog", 1, 4, 1, 1, false},
		{"auth path", "Update internal/auth/session.go", 1, 4, 4, 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify(tt.text)
			if cls.Complexity < tt.minComplexity || cls.Complexity > tt.maxComplexity {
				t.Errorf("complexity = %d, want [%d,%d]", cls.Complexity, tt.minComplexity, tt.maxComplexity)
			}
			if cls.Risk < tt.minRisk || cls.Risk > tt.maxRisk {
				t.Errorf("risk = %d, want [%d,%d]", cls.Risk, tt.minRisk, tt.maxRisk)
			}
			if got := len(cls.CriticalKeywords) > 0; got != tt.critical {
				t.Errorf("critical keywords = %v, want present=%v", cls.CriticalKeywords, tt.critical)
			}
		})
	}
}

func TestClassify_Confidence(t *testing.T) {
	c := NewClassifier(nil)

	short := c.Classify("Do it")
	if short.Confidence >= 0.4 {
		t.Errorf("short generic text confidence = %v, want < 0.4", short.Confidence)
	}
	rich := c.Classify("Redesign the payment system security model and migrate the billing database")
	if rich.Confidence <= short.Confidence {
		t.Errorf("rich text confidence %v should exceed %v", rich.Confidence, short.Confidence)
	}
	if rich.Confidence > 0.95 {
		t.Errorf("confidence %v exceeds cap", rich.Confidence)
	}
}

func TestClassify_Hints(t *testing.T) {
	c := NewClassifier(nil)

	tests := []struct {
		text       string
		multiAgent bool
		multiPhase bool
	}{
		{"Compare caching libraries for the API", true, false},
		{"Design and implement a rate limiter", false, true},
		{"Write the parser then add tests", false, true},
		{"Fix the flaky test", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cls := c.Classify(tt.text)
			if cls.MultiAgentHint != tt.multiAgent {
				t.Errorf("MultiAgentHint = %v, want %v", cls.MultiAgentHint, tt.multiAgent)
			}
			if cls.MultiPhaseHint != tt.multiPhase {
				t.Errorf("MultiPhaseHint = %v, want %v", cls.MultiPhaseHint, tt.multiPhase)
			}
		})
	}
}

func TestClassify_DeterministicAndConcurrent(t *testing.T) {
	c := NewClassifier(protect.New())
	text := "Refactor the deployment pipeline for config/secrets.yaml then verify"
	want := c.Classify(text)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := c.Classify(text)
			if got.Complexity != want.Complexity || got.Risk != want.Risk || got.Confidence != want.Confidence {
				t.Errorf("non-deterministic classification: %+v vs %+v", got, want)
			}
		}()
	}
	wg.Wait()
}
