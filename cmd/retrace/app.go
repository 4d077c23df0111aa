package main

import (
	"fmt"

	"github.com/retracehq/retrace/internal/backend"
	"github.com/retracehq/retrace/internal/config"
	"github.com/retracehq/retrace/internal/executor"
	"github.com/retracehq/retrace/internal/judge"
	"github.com/retracehq/retrace/internal/orchestrate"
	"github.com/retracehq/retrace/internal/store"
)

// app wires the store, backends and orchestrator from loaded config. Every
// command that executes cases locally builds one and closes it on exit.
// Extra orchestrator options (e.g. a --workers flag) are layered over the
// config-derived ones at construction.
type app struct {
	cfg   *config.Config
	store store.Store
	orch  *orchestrate.Orchestrator
}

func newApp(opts ...orchestrate.Option) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	st, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", cfg.Database, err)
	}

	registry := backend.NewRegistry(
		backend.NewOpenAIBackend(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL),
		backend.NewAnthropicBackend(cfg.AnthropicAPIKey),
		backend.NewMockBackend(),
	)

	llmJudge, err := judge.NewLLMJudge(registry, cfg.JudgeModel)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building judge: %w", err)
	}

	orch := orchestrate.New(st,
		executor.New(registry, cfg.Timeout),
		judge.NewEvaluator(llmJudge),
		append([]orchestrate.Option{orchestrate.WithWorkers(cfg.Workers)}, opts...)...)

	return &app{
		cfg:   cfg,
		store: st,
		orch:  orch,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}
