package models

// Classification is the classifier's estimate for a piece of task text.
type Classification struct {
	// Complexity is the estimated complexity (1-10).
	Complexity int `json:"complexity"`
	// Risk is the estimated risk (1-10).
	Risk int `json:"risk"`
	// CriticalKeywords lists the domain keywords that raised risk.
	CriticalKeywords []string `json:"critical_keywords,omitempty"`
	// Confidence reflects how much signal was found (0.0-1.0).
	Confidence float64 `json:"confidence"`
	// MultiAgentHint is set when the text asks for several perspectives.
	MultiAgentHint bool `json:"multi_agent_hint,omitempty"`
	// MultiPhaseHint is set when the text describes ordered phases.
	MultiPhaseHint bool `json:"multi_phase_hint,omitempty"`
}

// RoutingDecision is produced once per task by the router and never recomputed.
type RoutingDecision struct {
	// TaskID is the routed task.
	TaskID string `json:"task_id"`
	// Strategy is the selected strategy.
	Strategy Strategy `json:"strategy"`
	// PrimaryAgent is the first participant.
	PrimaryAgent string `json:"primary_agent"`
	// Participants is the full ordered participant list.
	Participants []string `json:"participants"`
	// Immediate is set for emergency directives that bypass queueing.
	Immediate bool `json:"immediate,omitempty"`
	// Reason explains which rule selected the strategy.
	Reason string `json:"reason"`
	// Classification is the classifier output used for the decision.
	Classification Classification `json:"classification"`
	// Warnings are non-fatal routing notes (e.g. assignee is busy).
	Warnings []string `json:"warnings,omitempty"`
	// Metadata is the directive audit trail recorded onto the task.
	Metadata map[string]string `json:"metadata,omitempty"`
}
