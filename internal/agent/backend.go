package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/pkg/models"
)

// ErrNoBackend is returned when an agent has no executable backend.
// Such agents take part only through externally submitted proposals.
var ErrNoBackend = errors.New("agent has no backend")

// Request is a unit of work handed to a backend.
type Request struct {
	TaskID      string
	Title       string
	Description string
	Type        models.TaskType
	// Phase is set for sequential sub-tasks.
	Phase string
	// Context carries prior output, e.g. the previous phase result.
	Context string
	// InputType is the kind of output expected from the agent.
	InputType models.InputType
}

// Response is a backend's answer to a Request.
type Response struct {
	Content    string
	Confidence float64
	TokensIn   int64
	TokensOut  int64
}

// Backend executes requests for an agent.
type Backend interface {
	Execute(ctx context.Context, req Request) (*Response, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, req Request) (*Response, error)

// Execute calls f.
func (f BackendFunc) Execute(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Factory builds a backend for an agent. model is the agent's configured
// model, possibly empty.
type Factory func(model string) (Backend, error)

// Backends is the static table of named backend factories. Backends are
// built on first use and cached per (name, model).
type Backends struct {
	mu        sync.Mutex
	factories map[string]Factory
	cache     map[string]map[string]Backend
	tracker   *TokenTracker
}

// NewBackends returns a table with the anthropic and openai backends
// registered from cfg. cfg may be nil, in which case the table is empty.
func NewBackends(cfg *config.Config) *Backends {
	b := &Backends{
		factories: make(map[string]Factory),
		cache:     make(map[string]map[string]Backend),
		tracker:   NewTokenTracker(),
	}
	if cfg == nil {
		return b
	}

	anth := cfg.Anthropic
	b.Register(string(config.ProviderAnthropic), func(model string) (Backend, error) {
		opts := AnthropicOptions{
			Model:      anth.Model,
			MaxTokens:  anth.MaxTokens,
			UseBedrock: anth.UseBedrock,
			Region:     anth.Region,
		}
		if model != "" {
			opts.Model = model
		}
		if !opts.UseBedrock {
			key, err := config.GetAPIKey(cfg, config.ProviderAnthropic)
			if err != nil {
				return nil, err
			}
			opts.APIKey = key
		}
		return NewAnthropicBackend(opts, b.tracker)
	})

	oa := cfg.OpenAI
	b.Register(string(config.ProviderOpenAI), func(model string) (Backend, error) {
		key, err := config.GetAPIKey(cfg, config.ProviderOpenAI)
		if err != nil {
			return nil, err
		}
		opts := OpenAIOptions{
			APIKey:    key,
			Model:     oa.Model,
			MaxTokens: oa.MaxTokens,
			BaseURL:   oa.BaseURL,
		}
		if model != "" {
			opts.Model = model
		}
		return NewOpenAIBackend(opts, b.tracker), nil
	})

	return b
}

// Register adds or replaces a named factory.
func (b *Backends) Register(name string, f Factory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factories[name] = f
	delete(b.cache, name)
}

// Names returns the registered backend names.
func (b *Backends) Names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.factories))
	for name := range b.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// For returns the backend that executes work for a.
func (b *Backends) For(a *models.Agent) (Backend, error) {
	if a == nil || a.Backend == "" {
		return nil, ErrNoBackend
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if be, ok := b.cache[a.Backend][a.Model]; ok {
		return be, nil
	}
	f, ok := b.factories[a.Backend]
	if !ok {
		return nil, fmt.Errorf("agent %s: unknown backend %q", a.ID, a.Backend)
	}
	be, err := f(a.Model)
	if err != nil {
		return nil, fmt.Errorf("agent %s: create %s backend: %w", a.ID, a.Backend, err)
	}
	if b.cache[a.Backend] == nil {
		b.cache[a.Backend] = make(map[string]Backend)
	}
	b.cache[a.Backend][a.Model] = be
	return be, nil
}

// Tracker returns the token tracker shared by the built-in backends.
func (b *Backends) Tracker() *TokenTracker {
	return b.tracker
}
