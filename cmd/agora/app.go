package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/agora/internal/agent"
	"github.com/ShayCichocki/agora/internal/config"
	"github.com/ShayCichocki/agora/internal/orchestrator"
	"github.com/ShayCichocki/agora/internal/protect"
	"github.com/ShayCichocki/agora/internal/state"
	"github.com/ShayCichocki/agora/internal/workflow"
)

// app holds what every command needs: configuration, the state database,
// the agent registry and an orchestrator over them.
type app struct {
	root     string
	cfg      *config.Config
	db       *state.DB
	registry *agent.Registry
	backends *agent.Backends
	orch     *orchestrator.Orchestrator
}

type appOptions struct {
	// serving starts workflows in this process and collects their events.
	serving bool
}

// openApp loads configuration and opens the project's state database.
func openApp(opts appOptions) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	dbPath := cfg.DBPath(cwd)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	db, err := state.OpenWithDriver(cfg.Store.Driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	registry, err := loadRegistry(cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	detector := protect.New()
	if cfg.ProtectedAreasFile != "" {
		if err := detector.LoadConfig(cfg.ProtectedAreasFile); err != nil {
			db.Close()
			return nil, err
		}
	}

	backends := agent.NewBackends(cfg)
	orchOpts := []orchestrator.Option{
		orchestrator.WithConfig(cfg),
		orchestrator.WithBackends(backends),
		orchestrator.WithDetector(detector),
		orchestrator.WithDetached(!opts.serving),
	}
	if cfg.Debug {
		orchOpts = append(orchOpts, orchestrator.WithLogger(orchestrator.NewDebugLoggerForProject(cwd)))
	}
	if opts.serving {
		orchOpts = append(orchOpts, orchestrator.WithEventEmitter(workflow.NewEventEmitter(256)))
	}

	orch, err := orchestrator.New(orchestrator.RequiredConfig{Store: db, Registry: registry}, orchOpts...)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create orchestrator: %w", err)
	}

	return &app{
		root:     cwd,
		cfg:      cfg,
		db:       db,
		registry: registry,
		backends: backends,
		orch:     orch,
	}, nil
}

// loadRegistry builds the agent registry. An agents file, when configured,
// replaces the agents listed in the config.
func loadRegistry(cfg *config.Config) (*agent.Registry, error) {
	registry := agent.NewRegistry()
	if cfg.AgentsFile != "" {
		if err := agent.LoadFileInto(registry, cfg.AgentsFile); err != nil {
			return nil, err
		}
		return registry, nil
	}
	for _, ac := range cfg.Agents {
		a, err := ac.ToAgent()
		if err != nil {
			return nil, fmt.Errorf("config agents: %w", err)
		}
		if err := registry.Register(a); err != nil {
			return nil, fmt.Errorf("config agents: %w", err)
		}
	}
	return registry, nil
}

func (a *app) Close() {
	if err := a.orch.Close(); err != nil {
		log.Printf("[agora] close orchestrator: %v", err)
	}
	if err := a.db.Close(); err != nil {
		log.Printf("[agora] close database: %v", err)
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
