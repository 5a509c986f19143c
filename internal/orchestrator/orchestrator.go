package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/internal/consensus"
	"github.com/ShayCichocki/agora/internal/lifecycle"
	"github.com/ShayCichocki/agora/internal/routing"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/internal/workflow"
	"github.com/ShayCichocki/agora/pkg/models"
)

// Orchestrator wires routing, the state machine, proposals and workflows
// together and owns the workflows it starts.
type Orchestrator struct {
	cfg       *config.Config
	store     state.StateStore
	registry  *agent.Registry
	machine   *lifecycle.Machine
	router    *routing.Router
	proposals *consensus.Manager
	deps      *workflow.Deps
	events    *workflow.EventEmitter
	logger    *DebugLogger
	detached  bool

	now   func() time.Time
	newID func() string

	// baseCtx bounds workflows started by operations; Close cancels it.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
	// slots caps concurrent non-emergency workflows; nil means unlimited.
	slots chan struct{}
}

// New creates an orchestrator.
func New(required RequiredConfig, opts ...Option) (*Orchestrator, error) {
	if required.Store == nil {
		return nil, errors.New("orchestrator: store is required")
	}
	if required.Registry == nil {
		return nil, errors.New("orchestrator: agent registry is required")
	}

	o := &orchestratorOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.logger == nil {
		o.logger = NopLogger()
	}
	setPackageLogger(o.logger)

	cfg := o.cfg
	machine := lifecycle.New(required.Store)
	proposals := consensus.NewManager(machine, required.Store)

	calibrator := routing.NewCalibrator(required.Store, routing.Thresholds{
		Consensus: cfg.Routing.ConsensusThreshold,
		Solo:      cfg.Routing.SoloCeiling,
	}, routing.CalibrationOptions{
		Enabled:    cfg.Calibration.Enabled,
		Window:     cfg.Calibration.Window,
		MinSamples: cfg.Calibration.MinSamples,
		Interval:   cfg.Calibration.Interval,
	})
	router := routing.NewRouter(
		routing.NewClassifier(o.detector),
		calibrator,
		routing.NewSelector(required.Registry),
		routing.Options{
			MaxConsensusAgents: cfg.Routing.MaxConsensusAgents,
			MaxParallelAgents:  cfg.Routing.MaxParallelAgents,
		},
	)

	baseCtx, baseCancel := context.WithCancel(context.Background())
	orch := &Orchestrator{
		cfg:        cfg,
		store:      required.Store,
		registry:   required.Registry,
		machine:    machine,
		router:     router,
		proposals:  proposals,
		events:     o.events,
		logger:     o.logger,
		detached:   o.detached,
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return uuid.New().String() },
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[string]context.CancelFunc),
	}
	orch.deps = &workflow.Deps{
		Machine:   machine,
		Store:     required.Store,
		Proposals: proposals,
		Resolver:  consensus.NewResolver(),
		Agents:    required.Registry,
		Backends:  o.backends,
		Events:    o.events,
		Settings:  workflow.SettingsFromConfig(cfg),
	}
	if n := cfg.Workflow.MaxConcurrent; n > 0 {
		orch.slots = make(chan struct{}, n)
	}

	return orch, nil
}

// Events returns the workflow event emitter, or nil if none was configured.
func (o *Orchestrator) Events() *workflow.EventEmitter {
	return o.events
}

// Machine returns the task state machine.
func (o *Orchestrator) Machine() *lifecycle.Machine {
	return o.machine
}

// Running returns the number of workflows this process is driving.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.running)
}

// Close stops every running workflow and waits for them to return. Tasks
// are left in their current state for a later process to resume. The store
// is not closed.
func (o *Orchestrator) Close() error {
	o.baseCancel()
	o.wg.Wait()
	return o.logger.Close()
}

// launch starts the task's workflow unless one is already running. Agent
// load is held for as long as the workflow runs. Immediate tasks skip the
// concurrency cap.
func (o *Orchestrator) launch(ctx context.Context, task *models.Task) bool {
	o.mu.Lock()
	if _, ok := o.running[task.ID]; ok {
		o.mu.Unlock()
		return false
	}
	exec, err := workflow.New(task.Strategy, o.deps, task)
	if err != nil {
		o.mu.Unlock()
		log.Printf("[orchestrator] task %s: cannot start workflow: %v", task.ID, err)
		return false
	}
	wctx, cancel := context.WithCancel(ctx)
	o.running[task.ID] = cancel
	o.mu.Unlock()

	immediate := task.Meta("routing.immediate") == "true"
	participants := append([]string(nil), task.Participants...)
	o.registry.Acquire(participants...)
	debugLog("[launch] task %s strategy=%s participants=%v immediate=%v", task.ID, task.Strategy, participants, immediate)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer func() {
			cancel()
			o.registry.Release(participants...)
			o.mu.Lock()
			delete(o.running, task.ID)
			o.mu.Unlock()
		}()

		if o.slots != nil && !immediate {
			select {
			case o.slots <- struct{}{}:
				defer func() { <-o.slots }()
			case <-wctx.Done():
				return
			}
		}

		if err := exec.Run(wctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[orchestrator] task %s: workflow returned: %v", task.ID, err)
		}
		debugLog("[launch] task %s workflow exited", task.ID)
		o.startDependents(ctx, task.ID)
	}()
	return true
}
