// Command explore is the ambient composition root for the exploration
// engine: it loads configuration, wires the transport, the rollbackable
// systems, a starter action/invariant set (or an optional YAML action
// catalog), and runs one Agent.Explore to completion, writing the
// resulting ExplorationResult as JSON to stdout.
//
// This is not the core: per spec.md §1, the CLI, config loader and
// reporters are out-of-scope collaborators. This file exists only because
// every teacher cmd/* package provides one "how do I run this" entry point.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/exploration-engine/engine"
	"github.com/R3E-Network/exploration-engine/infrastructure/config"
	"github.com/R3E-Network/exploration-engine/infrastructure/logging"
	"github.com/R3E-Network/exploration-engine/infrastructure/metrics"
	"github.com/R3E-Network/exploration-engine/rollbackables/mockcache"
	"github.com/R3E-Network/exploration-engine/rollbackables/mockclock"
	"github.com/R3E-Network/exploration-engine/rollbackables/mockmail"
	"github.com/R3E-Network/exploration-engine/rollbackables/mockqueue"
	"github.com/R3E-Network/exploration-engine/rollbackables/mockstorage"
	"github.com/R3E-Network/exploration-engine/rollbackables/sqlsavepoint"
	"github.com/R3E-Network/exploration-engine/transport"
)

func main() {
	actionFile := flag.String("actions", "", "optional YAML action catalog (flat method/path/body list)")
	envFile := flag.String("env", ".env", "optional .env file to load before reading configuration")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load %s: %v (continuing with process environment)", *envFile, err)
	}

	logger := logging.NewFromEnv("exploration-engine")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadExplorationConfig()
	if err != nil {
		logger.Fatal(ctx, "load exploration config", err)
	}

	result, err := run(ctx, cfg, *actionFile, logger)
	if err != nil {
		logger.Fatal(ctx, "exploration run", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		logger.Fatal(ctx, "encode exploration result", err)
	}
}

func run(ctx context.Context, cfg config.ExplorationConfig, actionFile string, logger *logging.Logger) (*engine.ExplorationResult, error) {
	client := transport.NewClient(transport.Config{
		BaseURL:   cfg.BaseURL,
		TimeoutMS: cfg.TimeoutMS,
		Logger:    logger,
	})

	systems := map[string]engine.Rollbackable{
		"queue": mockqueue.New("queue"),
		"mail":  mockmail.New("mail"),
		"clock": mockclock.New("clock", time.Time{}),
		"cache": mockcache.New("cache", cfg.CacheTTL),
	}
	storage, err := mockstorage.New("storage")
	if err != nil {
		return nil, err
	}
	systems["storage"] = storage

	if cfg.DBURL != "" {
		db, err := sqlsavepoint.New(ctx, sqlsavepoint.Config{
			Name: "db",
			DSN:  cfg.DBURL,
		})
		if err != nil {
			return nil, err
		}
		systems["db"] = db
	}

	world, err := engine.NewWorld(engine.WorldConfig{
		Transport: client,
		Systems:   systems,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	actions, err := loadActions(actionFile)
	if err != nil {
		return nil, err
	}

	agent := engine.NewAgent(engine.AgentConfig{
		World:    world,
		Actions:  actions,
		Strategy: strategyFor(cfg),
		Bounds: engine.Bounds{
			MaxSteps: cfg.MaxSteps,
			MaxDepth: cfg.MaxDepth,
			FailFast: cfg.FailFast,
			Seed:     cfg.Seed,
		},
		Logger:  logger,
		Metrics: metrics.Global(),
		Name:    "explore",
	})

	return agent.Explore(ctx), nil
}

// loadActions returns the YAML catalog at path, or a single stateless
// health-check action (the S3/S6 smoke scenario) when no catalog is given,
// so `explore` without flags still produces a meaningful exploration.
func loadActions(path string) ([]engine.Action, error) {
	if path == "" {
		return []engine.Action{
			{
				Name:        "ping",
				Description: "stateless health check",
				Execute: func(t engine.Transport, _ *engine.Context) *engine.ActionResult {
					return t.Get("/health", nil)
				},
			},
		}, nil
	}
	return loadActionCatalog(path)
}

func strategyFor(cfg config.ExplorationConfig) engine.Strategy {
	switch cfg.Strategy {
	case config.StrategyDFS:
		return engine.NewDFSStrategy()
	case config.StrategyRandom:
		return engine.NewRandomStrategy(cfg.Seed)
	case config.StrategyCoverage:
		return engine.NewCoverageStrategy()
	default:
		return engine.NewBFSStrategy()
	}
}
