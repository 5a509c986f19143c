package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/pkg/models"
)

func TestConfigValues_RoundTrip(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"routing.consensus_threshold", "8"},
		{"calibration.enabled", "false"},
		{"consensus.quorum_timeout", "45m0s"},
		{"workflow.max_concurrent", "4"},
		{"store.driver", "sqlite3"},
		{"debug", "true"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			cfg := config.Default()
			if err := setConfigValue(cfg, tt.key, tt.value); err != nil {
				t.Fatalf("setConfigValue failed: %v", err)
			}
			got, err := getConfigValue(cfg, tt.key)
			if err != nil {
				t.Fatalf("getConfigValue failed: %v", err)
			}
			if got != tt.value {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestConfigValues_Rejects(t *testing.T) {
	cfg := config.Default()
	for key, value := range map[string]string{
		"routing.solo_ceiling":   "three",
		"calibration.interval":   "soon",
		"anthropic.use_bedrock":  "maybe",
		"no.such_key":            "1",
		"workflow.poll_interval": "",
	} {
		if err := setConfigValue(cfg, key, value); err == nil {
			t.Errorf("setConfigValue(%s, %q) succeeded", key, value)
		}
	}
	if _, err := getConfigValue(cfg, "no.such_key"); err == nil {
		t.Error("getConfigValue accepted an unknown key")
	}
	if v, _ := getConfigValue(cfg, "store.path"); v != "(not set)" {
		t.Errorf("store.path = %q, want (not set)", v)
	}
}

func TestParseDue(t *testing.T) {
	due, err := parseDue("")
	if err != nil || due != nil {
		t.Errorf("parseDue(\"\") = %v, %v", due, err)
	}

	due, err = parseDue("2026-03-01T12:00:00Z")
	if err != nil {
		t.Fatalf("parseDue failed: %v", err)
	}
	if !due.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("parseDue = %v", due)
	}

	if _, err := parseDue("tomorrow"); !models.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReadContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(path, []byte("# Plan\n"), 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if got, err := readContent([]string{"inline"}, ""); err != nil || got != "inline" {
		t.Errorf("inline: %q, %v", got, err)
	}
	if got, err := readContent(nil, path); err != nil || got != "# Plan\n" {
		t.Errorf("file: %q, %v", got, err)
	}
	if _, err := readContent([]string{"inline"}, path); err == nil {
		t.Error("expected error for inline content and --file together")
	}
	if _, err := readContent(nil, filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestFormatCapabilities(t *testing.T) {
	got := formatCapabilities(map[models.TaskType]float64{
		models.TaskTypeReview:       0.5,
		models.TaskTypeArchitecture: 0.9,
	})
	if want := "architecture=0.90 review=0.50"; got != want {
		t.Errorf("formatCapabilities = %q, want %q", got, want)
	}
	if got := formatCapabilities(nil); got != "" {
		t.Errorf("formatCapabilities(nil) = %q", got)
	}
}
