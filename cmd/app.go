package cmd

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/apexion-ai/iad/internal/agent"
	"github.com/apexion-ai/iad/internal/config"
	"github.com/apexion-ai/iad/internal/decision"
	"github.com/apexion-ai/iad/internal/provider"
	"github.com/apexion-ai/iad/internal/research"
	"github.com/apexion-ai/iad/internal/session"
)

// app holds everything one decision session needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	engine   *decision.Engine
	research *research.Researcher
	events   *agent.EventLogger

	closers []func()
}

func newApp() (*app, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, closers: []func(){closeLog}}

	if cfg.Metrics.Addr != "" {
		startMetricsServer(cfg.Metrics.Addr, log)
	}

	p, err := buildProvider(cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = p.DefaultModel()
	}

	sess, err := session.New(cfg.Budget.SoftLimit, cfg.Budget.HardLimit)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating session: %w", err)
	}
	count := provider.NewTokenCounter(cfg.Model)
	a.engine = decision.NewEngine(sess, p, decision.SettingsFromConfig(cfg), count, log)
	a.research = research.New(cfg, p, count, log)

	events, err := agent.NewEventLogger(cfg.EventsDir, sess.ID)
	if err != nil {
		log.Warn().Err(err).Msg("event log disabled")
	} else {
		a.events = events
		a.closers = append(a.closers, events.Close)
	}

	log.Info().
		Str("session", sess.ID).
		Str("provider", cfg.Provider).
		Str("model", cfg.Model).
		Int("soft_limit", cfg.Budget.SoftLimit).
		Int("hard_limit", cfg.Budget.HardLimit).
		Msg("session started")
	return a, nil
}

func (a *app) agentOptions() agent.Options {
	return agent.Options{
		Research:      a.research,
		Events:        a.events,
		MaxInputChars: a.cfg.Generation.MaxInputChars,
	}
}

// Close releases resources in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
