package routing

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/ShayCichocki/agora/pkg/models"
)

// Options configures a Router.
type Options struct {
	// MaxConsensusAgents caps consensus participants.
	MaxConsensusAgents int
	// MaxParallelAgents caps parallel and sequential participants.
	MaxParallelAgents int
}

// Router composes calibration, classification, strategy selection and
// agent selection into one routing decision per task.
type Router struct {
	classifier *Classifier
	calibrator *Calibrator
	selector   *Selector
	opts       Options
}

// NewRouter creates a router. calibrator may be nil to always use the
// default thresholds.
func NewRouter(classifier *Classifier, calibrator *Calibrator, selector *Selector, opts Options) *Router {
	if opts.MaxConsensusAgents < 2 {
		opts.MaxConsensusAgents = 3
	}
	if opts.MaxParallelAgents < 2 {
		opts.MaxParallelAgents = 3
	}
	if calibrator == nil {
		calibrator = NewCalibrator(nil, DefaultThresholds(), CalibrationOptions{})
	}
	return &Router{
		classifier: classifier,
		calibrator: calibrator,
		selector:   selector,
		opts:       opts,
	}
}

// Route produces the routing decision for a new task. It validates the task
// and directive, and never re-routes a task that already has a strategy.
// Route does not modify task; use Apply to record the decision on it.
func (r *Router) Route(ctx context.Context, task *models.Task, d *models.Directive) (*models.RoutingDecision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if task.Strategy != "" {
		return nil, &models.ConflictError{TaskID: task.ID, Reason: "task already routed as " + string(task.Strategy)}
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}

	th := r.calibrator.Thresholds()
	cls := r.classifier.Classify(strings.TrimSpace(task.Title + "\n" + task.Description))
	choice := PickStrategy(task, d, cls, th)

	agents, warnings, choice, err := r.selectAgents(task, d, choice)
	if err != nil {
		return nil, err
	}

	dec := &models.RoutingDecision{
		TaskID:         task.ID,
		Strategy:       choice.Strategy,
		PrimaryAgent:   agents[0].ID,
		Participants:   ids(agents),
		Immediate:      choice.Immediate,
		Reason:         choice.Reason,
		Classification: cls,
		Warnings:       warnings,
		Metadata:       auditMetadata(d, choice, cls, th),
	}

	log.Printf("[router] task %s -> %s %v (%s)", task.ID, dec.Strategy, dec.Participants, dec.Reason)
	return dec, nil
}

func (r *Router) selectAgents(task *models.Task, d *models.Directive, choice Choice) ([]*models.Agent, []string, Choice, error) {
	switch choice.Strategy {
	case models.StrategyConsensus:
		team, warnings, err := r.selector.SelectAgentsForConsensus(task, d, r.opts.MaxConsensusAgents)
		return team, warnings, choice, err

	case models.StrategyParallel:
		team, warnings, err := r.selector.SelectTeam(task, d, 2, r.opts.MaxParallelAgents)
		if models.IsConflict(err) {
			// Fewer than two online agents: a parallel run degenerates to solo.
			a, soloWarnings, soloErr := r.selector.SelectAgentForTask(task, d)
			if soloErr != nil {
				return nil, nil, choice, soloErr
			}
			choice.Strategy = models.StrategySolo
			choice.Reason += "; only one online agent"
			return []*models.Agent{a}, append(soloWarnings, "parallel downgraded to solo: "+err.Error()), choice, nil
		}
		return team, warnings, choice, err

	case models.StrategySequential:
		team, warnings, err := r.selector.SelectTeam(task, d, 1, r.opts.MaxParallelAgents)
		return team, warnings, choice, err

	default:
		a, warnings, err := r.selector.SelectAgentForTask(task, d)
		if err != nil {
			return nil, nil, choice, err
		}
		return []*models.Agent{a}, warnings, choice, nil
	}
}

func auditMetadata(d *models.Directive, choice Choice, cls models.Classification, th Thresholds) map[string]string {
	meta := d.AuditMetadata()
	meta["routing.strategy"] = string(choice.Strategy)
	meta["routing.reason"] = choice.Reason
	if choice.Immediate {
		meta["routing.immediate"] = "true"
	}
	meta["classification.complexity"] = strconv.Itoa(cls.Complexity)
	meta["classification.risk"] = strconv.Itoa(cls.Risk)
	meta["classification.confidence"] = strconv.FormatFloat(cls.Confidence, 'f', 2, 64)
	if len(cls.CriticalKeywords) > 0 {
		meta["classification.critical_keywords"] = strings.Join(cls.CriticalKeywords, ",")
	}
	meta["calibration.consensus_threshold"] = strconv.Itoa(th.Consensus)
	meta["calibration.solo_ceiling"] = strconv.Itoa(th.Solo)
	return meta
}

// Apply records a routing decision on its task: strategy, participants and
// audit metadata. It fails if the task was already routed.
func Apply(task *models.Task, dec *models.RoutingDecision) error {
	if task.Strategy != "" {
		return &models.ConflictError{TaskID: task.ID, Reason: "task already routed as " + string(task.Strategy)}
	}
	if dec.TaskID != "" && dec.TaskID != task.ID {
		return fmt.Errorf("routing decision for %s applied to %s", dec.TaskID, task.ID)
	}
	task.Strategy = dec.Strategy
	task.Participants = append([]string(nil), dec.Participants...)
	for k, v := range dec.Metadata {
		task.SetMeta(k, v)
	}
	return nil
}
