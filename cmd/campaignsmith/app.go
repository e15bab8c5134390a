package main

import (
	"context"
	"fmt"

	"campaignsmith/internal/config"
	"campaignsmith/internal/generate"
	"campaignsmith/internal/handoff"
	"campaignsmith/internal/pipeline"
	"campaignsmith/internal/quality"
	"campaignsmith/internal/render"
	"campaignsmith/internal/workspace"
)

// buildStore opens the configured workspace backend rooted at the campaign
// directory.
func buildStore(cfg *config.Config) (workspace.Store, func(), error) {
	switch cfg.Workspace.Backend {
	case "sqlite":
		store, err := workspace.NewSQLiteStore(cfg.Workspace.Root)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		store, err := workspace.NewDirStore(cfg.Workspace.Root)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
}

// buildClient constructs the configured LLM client.
func buildClient(ctx context.Context, cfg *config.Config) (generate.LLMClient, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, fmt.Errorf("no API key in $%s; set it or configure llm.api_key_env", cfg.LLM.APIKeyEnv)
	}
	switch cfg.LLM.Provider {
	case "openai":
		oc := generate.DefaultOpenAIConfig(key)
		oc.Model = cfg.LLM.Model
		if cfg.LLM.BaseURL != "" {
			oc.BaseURL = cfg.LLM.BaseURL
		}
		oc.Timeout = cfg.LLMTimeout()
		return generate.NewOpenAIClient(oc), nil
	default:
		return generate.NewGenAIClient(ctx, key, cfg.LLM.Model)
	}
}

// buildOrchestrator wires the full pipeline from config.
func buildOrchestrator(ctx context.Context, cfg *config.Config, ws workspace.Store) (*pipeline.Orchestrator, error) {
	client, err := buildClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gen := generate.NewGenerator(client,
		generate.WithMaxAttempts(cfg.Retry.MaxAttempts),
		generate.WithAttemptTimeout(cfg.AttemptTimeout()),
	)

	var brokerOpts []handoff.Option
	if cfg.Handoff.RequireUpstreamData {
		brokerOpts = append(brokerOpts, handoff.WithRequireUpstreamData())
	}

	return pipeline.New(pipeline.Config{
		Workspace:   ws,
		Broker:      handoff.NewBroker(ws, brokerOpts...),
		Gate:        quality.NewGate(ws),
		Renderer:    render.NewHTMLRenderer(),
		Stages:      pipeline.DefaultStages(gen, nil, nil),
		EventBuffer: cfg.Pipeline.EventBuffer,
	}), nil
}
