package orchestrator

import (
	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/internal/protect"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/internal/workflow"
)

// RequiredConfig contains the collaborators an Orchestrator cannot run
// without.
type RequiredConfig struct {
	// Store is the durable task, proposal and decision store.
	Store state.StateStore
	// Registry is the agent registry.
	Registry *agent.Registry
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	cfg      *config.Config
	backends *agent.Backends
	detector *protect.Detector
	logger   *DebugLogger
	events   *workflow.EventEmitter
	detached bool
}

// WithConfig sets the configuration. Defaults to config.Default().
func WithConfig(cfg *config.Config) Option {
	return func(o *orchestratorOptions) { o.cfg = cfg }
}

// WithBackends sets the backend table used to run agents. Without one,
// agents contribute only through submitted proposals.
func WithBackends(b *agent.Backends) Option {
	return func(o *orchestratorOptions) { o.backends = b }
}

// WithDetector sets the sensitive-area detector feeding the classifier.
func WithDetector(d *protect.Detector) Option {
	return func(o *orchestratorOptions) { o.detector = d }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEventEmitter sets the emitter workflows report to.
func WithEventEmitter(e *workflow.EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}

// WithDetached disables in-process workflows. Tasks stay PENDING until an
// orchestrator running the dispatch loop adopts them.
func WithDetached(b bool) Option {
	return func(o *orchestratorOptions) { o.detached = b }
}
