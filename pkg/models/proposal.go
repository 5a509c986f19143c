package models

import (
	"fmt"
	"strings"
	"time"
)

// InputType classifies what kind of contribution a proposal is.
type InputType string

const (
	InputArchitecturalPlan     InputType = "architectural_plan"
	InputCodeReview            InputType = "code_review"
	InputImplementationPlan    InputType = "implementation_plan"
	InputTestPlan              InputType = "test_plan"
	InputRefactoringSuggestion InputType = "refactoring_suggestion"
	InputResearchSummary       InputType = "research_summary"
	InputOther                 InputType = "other"
)

// Valid returns true if the input type is a known value.
func (t InputType) Valid() bool {
	switch t {
	case InputArchitecturalPlan, InputCodeReview, InputImplementationPlan, InputTestPlan,
		InputRefactoringSuggestion, InputResearchSummary, InputOther:
		return true
	default:
		return false
	}
}

// ParseInputType parses an input type name. Empty input maps to InputOther.
func ParseInputType(s string) (InputType, error) {
	if strings.TrimSpace(s) == "" {
		return InputOther, nil
	}
	t := InputType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", &ValidationError{Field: "inputType", Reason: fmt.Sprintf("unknown input type %q", s)}
	}
	return t, nil
}

// DefaultInputType maps a task type to the contribution it usually expects.
func DefaultInputType(t TaskType) InputType {
	switch t {
	case TaskTypeArchitecture, TaskTypePlanning:
		return InputArchitecturalPlan
	case TaskTypeReview:
		return InputCodeReview
	case TaskTypeImplementation, TaskTypeBugfix:
		return InputImplementationPlan
	case TaskTypeTesting:
		return InputTestPlan
	case TaskTypeResearch, TaskTypeDocumentation:
		return InputResearchSummary
	default:
		return InputOther
	}
}

// Proposal is one agent's contribution toward a task.
type Proposal struct {
	// ID is the unique identifier for this proposal.
	ID string `json:"id"`
	// TaskID is the task the proposal belongs to.
	TaskID string `json:"task_id"`
	// AgentID is the submitting agent.
	AgentID string `json:"agent_id"`
	// Content is the proposal payload.
	Content string `json:"content"`
	// InputType classifies the contribution.
	InputType InputType `json:"input_type"`
	// Confidence is the agent's self-reported confidence (0.0-1.0).
	Confidence float64 `json:"confidence"`
	// SubmittedAt is when the proposal was accepted.
	SubmittedAt time.Time `json:"submitted_at"`
}

// VotingStrategy names a proposal ranking strategy.
type VotingStrategy string

const (
	// VotingPlurality is confidence-weighted plurality voting.
	VotingPlurality VotingStrategy = "voting"
	// VotingReasoningQuality scores proposal structure and detail.
	VotingReasoningQuality VotingStrategy = "reasoning_quality"
	// VotingMerge synthesizes a combined proposal when strategies disagree.
	VotingMerge VotingStrategy = "merge"
	// VotingTokenOptimization prefers acceptable proposals with the least cost.
	VotingTokenOptimization VotingStrategy = "token_optimization"
)

// Valid returns true if the voting strategy is a known value.
func (v VotingStrategy) Valid() bool {
	switch v {
	case VotingPlurality, VotingReasoningQuality, VotingMerge, VotingTokenOptimization:
		return true
	default:
		return false
	}
}

// Decision is the single authoritative outcome of a consensus resolution.
// It is created once per task and never modified.
type Decision struct {
	// ID is the unique identifier for this decision.
	ID string `json:"id"`
	// TaskID is the resolved task.
	TaskID string `json:"task_id"`
	// WinningProposalID is the selected proposal, empty for a synthesized merge.
	WinningProposalID string `json:"winning_proposal_id,omitempty"`
	// Content is the decided content (winner's or merged).
	Content string `json:"content"`
	// MergedFrom lists the proposals a merged decision was synthesized from.
	MergedFrom []string `json:"merged_from,omitempty"`
	// Strategies lists the voting strategies that were applied.
	Strategies []VotingStrategy `json:"strategies"`
	// Scores holds the combined score per proposal ID.
	Scores map[string]float64 `json:"scores,omitempty"`
	// AgreementScore measures similarity across proposals (0.0-1.0).
	AgreementScore float64 `json:"agreement_score"`
	// Degraded is true when resolved without every participant's proposal.
	Degraded bool `json:"degraded,omitempty"`
	// CreatedAt is when the decision was made.
	CreatedAt time.Time `json:"created_at"`
}

// Merged reports whether the decision is a synthesized merge.
func (d *Decision) Merged() bool {
	return d.WinningProposalID == "" && len(d.MergedFrom) > 0
}
