package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/pkg/models"
)

const agentsYAML = `
agents:
  - id: claude
    aliases: [cc]
    type: claude
    backend: anthropic
    capabilities:
      architecture: 0.9
  - id: gpt
    type: gpt
    status: BUSY
`

func TestParseFile(t *testing.T) {
	agents, err := ParseFile([]byte(agentsYAML))
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(agents))
	}
	if agents[0].Status != models.AgentStatusOnline {
		t.Errorf("expected default status online, got %s", agents[0].Status)
	}
	if agents[0].Capability(models.TaskTypeArchitecture) != 0.9 {
		t.Errorf("architecture capability = %v", agents[0].Capability(models.TaskTypeArchitecture))
	}
	if agents[1].Status != models.AgentStatusBusy {
		t.Errorf("expected busy, got %s", agents[1].Status)
	}
}

func TestParseFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "agents: [\n"},
		{"missing id", "agents:\n  - type: claude\n"},
		{"unknown task type", "agents:\n  - id: a\n    capabilities:\n      gardening: 0.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFile([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWatchFile_Reloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")
	if err := os.WriteFile(path, []byte(agentsYAML), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewRegistry()
	if err := LoadFileInto(r, path); err != nil {
		t.Fatalf("LoadFileInto failed: %v", err)
	}

	reloaded := make(chan error, 4)
	w, err := WatchFile(r, path, func(err error) { reloaded <- err })
	if err != nil {
		t.Fatalf("WatchFile failed: %v", err)
	}
	defer w.Close()

	updated := agentsYAML + "  - id: gemini\n    type: gemini\n"
	if err := os.WriteFile(path, []byte(updated), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case err := <-reloaded:
		if err != nil {
			t.Fatalf("reload failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	if r.Get("gemini") == nil {
		t.Error("expected gemini after reload")
	}
}
