package models

import (
	"fmt"
	"strings"
)

// Strategy is how a task is distributed across agents.
type Strategy string

const (
	// StrategySolo executes the task with exactly one agent.
	StrategySolo Strategy = "solo"
	// StrategyConsensus collects proposals from several agents and resolves one decision.
	StrategyConsensus Strategy = "consensus"
	// StrategySequential splits the task into phases handed off between agents.
	StrategySequential Strategy = "sequential"
	// StrategyParallel runs the task independently on several agents at once.
	StrategyParallel Strategy = "parallel"
)

// Valid returns true if the strategy is a known value.
func (s Strategy) Valid() bool {
	switch s {
	case StrategySolo, StrategyConsensus, StrategySequential, StrategyParallel:
		return true
	default:
		return false
	}
}

// MultiAgent reports whether the strategy involves more than one agent.
func (s Strategy) MultiAgent() bool {
	return s == StrategyConsensus || s == StrategyParallel
}

// ParseStrategy parses a strategy name, case-insensitively.
func ParseStrategy(s string) (Strategy, error) {
	st := Strategy(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "strategy", Reason: fmt.Sprintf("unknown strategy %q", s)}
	}
	return st, nil
}
