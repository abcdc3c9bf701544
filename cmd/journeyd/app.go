package main

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/journeyd/internal/agency"
	"github.com/fyrsmithlabs/journeyd/internal/config"
	"github.com/fyrsmithlabs/journeyd/internal/guard"
	"github.com/fyrsmithlabs/journeyd/internal/journey"
	"github.com/fyrsmithlabs/journeyd/internal/logging"
	"github.com/fyrsmithlabs/journeyd/internal/scheduler"
	"github.com/fyrsmithlabs/journeyd/internal/signals"
	"github.com/fyrsmithlabs/journeyd/internal/stage"
	"github.com/fyrsmithlabs/journeyd/internal/store/sqlite"
	"github.com/fyrsmithlabs/journeyd/internal/trust"
)

// app wires the configured services for one command invocation.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    journey.Store
	provider *signals.Static
	source   *signals.StaticSource
	engine   *stage.Engine
	agency   *agency.Scorer
	trust    *trust.Scorer
	guard    *guard.Guard
	sched    *scheduler.Scheduler
}

// newApp loads configuration and constructs the service graph backed by
// the SQLite store.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	// Signal values arrive through --signal flags; the static provider
	// carries them into the scorers. Text given via --text flows through
	// the depth-ladder extractors on top of the static values.
	provider := signals.NewStatic()
	source := signals.NewStaticSource()
	agencyProvider := signals.NewExtractorProvider(provider, source, map[string]signals.Extractor{
		agency.SignalActiveExpression: signals.NewActiveExpressionExtractor(),
		agency.SignalAwarenessDepth:   signals.NewAwarenessDepthExtractor(),
	})

	trustScorer, err := trust.NewScorer(nil, store, provider, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	agencyScorer, err := agency.NewScorer(nil, store, agencyProvider, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	stageRules, err := cfg.Stage.StageRules()
	if err != nil {
		store.Close()
		return nil, err
	}
	engine, err := stage.NewEngine(stageRules, store, logger, stage.WithActivationChecker(trustScorer))
	if err != nil {
		store.Close()
		return nil, err
	}

	g, err := guard.NewGuard(store, logger, guard.WithBatchSize(cfg.Scheduler.BatchSize))
	if err != nil {
		store.Close()
		return nil, err
	}

	sched, err := scheduler.NewScheduler(store, engine, g, logger,
		scheduler.WithInterval(cfg.Scheduler.Interval),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		provider: provider,
		source:   source,
		engine:   engine,
		agency:   agencyScorer,
		trust:    trustScorer,
		guard:    g,
		sched:    sched,
	}, nil
}

// Close releases the app's resources.
func (a *app) Close() {
	_ = a.logger.Sync()
	_ = a.store.Close()
}

// parseSignalFlags converts repeated name=value flags into a signal map.
func parseSignalFlags(raw []string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for _, pair := range raw {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid signal %q (want name=value)", pair)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid signal value %q: %w", pair, err)
		}
		out[name] = v
	}
	return out, nil
}
