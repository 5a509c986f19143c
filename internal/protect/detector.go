package protect

import (
	"fmt"
	"os"
	"path"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

// FindingKind names the rule that produced a finding.
type FindingKind string

const (
	FindingPath     FindingKind = "path"
	FindingKeyword  FindingKind = "keyword"
	FindingFileType FindingKind = "file_type"
	FindingImport   FindingKind = "import"
)

// Finding is one sensitive reference found in task text.
type Finding struct {
	Kind   FindingKind
	Match  string
	Reason string
}

// Detector scans task text for references to sensitive areas.
// Uses 4 detection strategies:
// 1. Glob patterns on path-like tokens (e.g., **/auth/**)
// 2. Keyword prefixes on words (e.g., "credential")
// 3. File types on path-like tokens (e.g., .sql, .pem)
// 4. Security-related import lines in embedded snippets
type Detector struct {
	patterns  []string
	keywords  []string
	fileTypes []string
	imports   *ImportDetector
	mu        sync.RWMutex
}

// fileConfig is the YAML layout of a sensitive-areas file.
type fileConfig struct {
	SensitiveAreas struct {
		Patterns  []string `yaml:"patterns"`
		Keywords  []string `yaml:"keywords"`
		FileTypes []string `yaml:"file_types"`
	} `yaml:"sensitive_areas"`
}

// New creates a new detector with default rules.
func New() *Detector {
	return &Detector{
		patterns:  append([]string{}, DefaultPatterns...),
		keywords:  append([]string{}, DefaultKeywords...),
		fileTypes: append([]string{}, DefaultFileTypes...),
		imports:   NewImportDetector(),
	}
}

// Scan returns every sensitive reference in text, one finding per distinct
// match, in order of first appearance within each strategy.
func (d *Detector) Scan(text string) []Finding {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var findings []Finding
	seen := make(map[string]bool)
	add := func(f Finding) {
		key := string(f.Kind) + ":" + f.Match
		if seen[key] {
			return
		}
		seen[key] = true
		findings = append(findings, f)
	}

	for _, candidate := range pathCandidates(text) {
		if f, ok := d.checkPath(candidate); ok {
			add(f)
		}
	}

	for _, w := range words(text) {
		for _, kw := range d.keywords {
			if strings.HasPrefix(w, strings.ToLower(kw)) {
				add(Finding{Kind: FindingKeyword, Match: w, Reason: "mentions sensitive keyword: " + kw})
				break
			}
		}
	}

	for _, reason := range d.imports.Match(text) {
		add(Finding{Kind: FindingImport, Match: reason, Reason: "security-sensitive import: " + reason})
	}

	return findings
}

// IsSensitivePath checks a single path and returns the reason if it matches.
func (d *Detector) IsSensitivePath(p string) (bool, string) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	f, ok := d.checkPath(strings.ReplaceAll(p, "\\", "/"))
	return ok, f.Reason
}

// checkPath applies the pattern, path keyword and file type rules.
// Caller must hold d.mu.
func (d *Detector) checkPath(p string) (Finding, bool) {
	lower := strings.ToLower(p)

	for _, pattern := range d.patterns {
		if matchGlob(p, pattern) || matchGlob(lower, pattern) {
			return Finding{Kind: FindingPath, Match: p, Reason: "path matches sensitive pattern: " + pattern}, true
		}
	}

	ext := strings.ToLower(path.Ext(p))
	for _, ft := range d.fileTypes {
		if ext != "" && ext == strings.ToLower(ft) {
			return Finding{Kind: FindingFileType, Match: p, Reason: "sensitive file type: " + ft}, true
		}
	}

	for _, w := range words(p) {
		for _, kw := range d.keywords {
			if strings.HasPrefix(w, strings.ToLower(kw)) {
				return Finding{Kind: FindingPath, Match: p, Reason: "path contains sensitive keyword: " + kw}, true
			}
		}
	}

	return Finding{}, false
}

// AddPattern adds a glob pattern to the sensitive patterns list.
func (d *Detector) AddPattern(pattern string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.patterns = append(d.patterns, pattern)
}

// AddKeyword adds a keyword prefix to the sensitive keywords list.
func (d *Detector) AddKeyword(keyword string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keywords = append(d.keywords, keyword)
}

// AddFileType adds a file extension to the sensitive file types list.
func (d *Detector) AddFileType(ext string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fileTypes = append(d.fileTypes, ext)
}

// LoadConfig merges rules from a YAML file with a sensitive_areas section.
func (d *Detector) LoadConfig(configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read sensitive areas file: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse sensitive areas file: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.patterns = append(d.patterns, cfg.SensitiveAreas.Patterns...)
	d.keywords = append(d.keywords, cfg.SensitiveAreas.Keywords...)
	d.fileTypes = append(d.fileTypes, cfg.SensitiveAreas.FileTypes...)

	return nil
}
