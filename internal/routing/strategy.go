package routing

import (
	"fmt"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Default heuristic thresholds.
const (
	DefaultConsensusThreshold = 7
	DefaultSoloCeiling        = 3
)

// sequentialMinComplexity is the lowest complexity a multi-phase task needs
// to run sequentially.
const sequentialMinComplexity = 4

// Thresholds are the heuristic cut-offs used by PickStrategy.
// A Thresholds value is a snapshot: it never changes during a decision.
type Thresholds struct {
	// Consensus is the risk/complexity at or above which consensus is used.
	Consensus int
	// Solo is the risk/complexity at or below which solo is used.
	Solo int
}

// DefaultThresholds returns the uncalibrated thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Consensus: DefaultConsensusThreshold, Solo: DefaultSoloCeiling}
}

// Choice is the outcome of strategy selection.
type Choice struct {
	Strategy models.Strategy
	// Immediate marks emergency tasks that bypass queueing.
	Immediate bool
	// Reason names the rule that matched.
	Reason string
}

// PickStrategy selects a strategy for a task. Directive rules are evaluated
// in precedence order before the heuristic; the first match wins.
func PickStrategy(task *models.Task, d *models.Directive, cls models.Classification, th Thresholds) Choice {
	if d != nil {
		switch {
		case d.Emergency:
			return Choice{Strategy: models.StrategySolo, Immediate: true, Reason: "emergency directive"}
		case d.AssignToAgent != "" && !d.ForceConsensus:
			return Choice{Strategy: models.StrategySolo, Reason: "assigned to " + d.AssignToAgent}
		case d.ForceConsensus && !d.PreventConsensus:
			return Choice{Strategy: models.StrategyConsensus, Reason: "forceConsensus directive"}
		case d.PreventConsensus:
			return Choice{Strategy: models.StrategySolo, Reason: "preventConsensus directive"}
		}
	}
	return heuristic(task, cls, th)
}

func heuristic(task *models.Task, cls models.Classification, th Thresholds) Choice {
	if task.Risk >= th.Consensus || task.Complexity >= th.Consensus {
		return Choice{
			Strategy: models.StrategyConsensus,
			Reason:   fmt.Sprintf("risk %d / complexity %d at or above %d", task.Risk, task.Complexity, th.Consensus),
		}
	}
	if task.Risk <= th.Solo && task.Complexity <= th.Solo {
		return Choice{
			Strategy: models.StrategySolo,
			Reason:   fmt.Sprintf("risk %d / complexity %d at or below %d", task.Risk, task.Complexity, th.Solo),
		}
	}

	if task.Type == models.TaskTypeResearch && cls.MultiAgentHint {
		return Choice{Strategy: models.StrategyParallel, Reason: "research with multi-agent hint"}
	}
	if cls.MultiPhaseHint && task.Complexity >= sequentialMinComplexity {
		return Choice{Strategy: models.StrategySequential, Reason: "multi-phase work"}
	}
	return Choice{Strategy: models.StrategySolo, Reason: "no escalation signal"}
}
