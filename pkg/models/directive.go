package models

import (
	"fmt"
	"strconv"
)

// Directive is a caller-supplied routing hint.
// Directives never change task state; they steer strategy selection and are
// copied into task metadata for audit.
type Directive struct {
	// ForceConsensus requests a multi-agent consensus.
	ForceConsensus bool `json:"force_consensus,omitempty"`
	// PreventConsensus requests single-agent handling.
	PreventConsensus bool `json:"prevent_consensus,omitempty"`
	// AssignToAgent names an agent (id or alias) to receive the task.
	AssignToAgent string `json:"assign_to_agent,omitempty"`
	// Emergency requests immediate solo execution.
	Emergency bool `json:"emergency,omitempty"`
	// Notes is free text from the caller.
	Notes string `json:"notes,omitempty"`
	// OriginalText is the verbatim text the directive was parsed from.
	OriginalText string `json:"original_text,omitempty"`
	// Confidence is the parser's confidence in the directive, if known.
	Confidence *float64 `json:"confidence,omitempty"`
}

// IsZero reports whether the directive carries no routing hint.
func (d *Directive) IsZero() bool {
	return d == nil || (!d.ForceConsensus && !d.PreventConsensus && d.AssignToAgent == "" && !d.Emergency)
}

// Validate rejects contradictory or out-of-range directives.
func (d *Directive) Validate() error {
	if d == nil {
		return nil
	}
	if d.ForceConsensus && d.PreventConsensus {
		return &ValidationError{Field: "directive", Reason: "forceConsensus and preventConsensus are mutually exclusive"}
	}
	if d.Confidence != nil && (*d.Confidence < 0 || *d.Confidence > 1) {
		return &ValidationError{Field: "directive.confidence", Reason: fmt.Sprintf("%v not in [0,1]", *d.Confidence)}
	}
	return nil
}

// AuditMetadata returns the directive.* keys recorded on the routed task.
func (d *Directive) AuditMetadata() map[string]string {
	meta := make(map[string]string)
	if d == nil {
		return meta
	}
	if d.ForceConsensus {
		meta["directive.forceConsensus"] = "true"
	}
	if d.PreventConsensus {
		meta["directive.preventConsensus"] = "true"
	}
	if d.AssignToAgent != "" {
		meta["directive.assignToAgent"] = d.AssignToAgent
	}
	if d.Emergency {
		meta["directive.emergency"] = "true"
	}
	if d.Notes != "" {
		meta["directive.notes"] = d.Notes
	}
	if d.OriginalText != "" {
		meta["directive.originalText"] = d.OriginalText
	}
	if d.Confidence != nil {
		meta["directive.confidence"] = strconv.FormatFloat(*d.Confidence, 'f', 2, 64)
	}
	return meta
}
