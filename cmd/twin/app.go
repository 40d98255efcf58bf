package main

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/mschweiger/twin/pkg/agent"
	"github.com/mschweiger/twin/pkg/config"
	"github.com/mschweiger/twin/pkg/logger"
	"github.com/mschweiger/twin/pkg/memory"
	"github.com/mschweiger/twin/pkg/persona"
	"github.com/mschweiger/twin/pkg/providers"
	"github.com/mschweiger/twin/pkg/transcribe"
)

// app bundles the wired-up runtime shared by all CLI commands.
type app struct {
	cfg     *config.Config
	store   *memory.Store
	session *agent.Session
}

func loadApp(ctx context.Context) (*app, error) {
	log := logger.Component("startup")

	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("setup error: %w", err)
	}

	store, err := memory.NewStore(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	gemini, err := providers.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.APIBase, cfg.Gemini.Model)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init gemini provider: %w", err)
	}

	p := persona.Load(cfg.PersonaPath())
	engine := agent.NewEngine(gemini, p, cfg.HistoryWindow)
	extractor := memory.NewExtractor(gemini)
	transcriber := transcribe.NewService(
		transcribe.NewGeminiEngine(gemini),
		transcribe.NewHTTPEngine(cfg.Speech.Endpoint, cfg.Speech.Language, cfg.Speech.APIKey),
	)

	session, err := agent.NewSession(ctx, store, engine, extractor, transcriber)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init session: %w", err)
	}

	log.Info("twin initialized", "workspace", cfg.Workspace, "model", cfg.Gemini.Model)
	return &app{cfg: cfg, store: store, session: session}, nil
}

func (a *app) Close() {
	if a == nil || a.store == nil {
		return
	}
	_ = a.store.Close()
}
