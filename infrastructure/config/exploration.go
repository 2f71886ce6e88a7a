package config

import (
	"fmt"
	"strings"
	"time"
)

// Strategy identifies a frontier-selection strategy.
type Strategy string

const (
	StrategyBFS      Strategy = "bfs"
	StrategyDFS      Strategy = "dfs"
	StrategyRandom   Strategy = "random"
	StrategyCoverage Strategy = "coverage"
)

func parseStrategy(raw string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(raw))) {
	case StrategyBFS:
		return StrategyBFS, nil
	case StrategyDFS:
		return StrategyDFS, nil
	case StrategyRandom:
		return StrategyRandom, nil
	case StrategyCoverage:
		return StrategyCoverage, nil
	default:
		return "", fmt.Errorf("unknown strategy %q, want one of bfs|dfs|random|coverage", raw)
	}
}

// ExplorationConfig holds the bounds and target configuration for one
// exploration run, loaded from environment variables.
type ExplorationConfig struct {
	BaseURL       string
	DBURL         string
	TimeoutMS     int
	MaxSteps      int
	MaxDepth      int
	FailFast      bool
	Seed          int64
	ParallelPaths int
	Strategy      Strategy
	CacheTTL      time.Duration
}

// LoadExplorationConfig reads the exploration engine's configuration table
// from the environment:
//
//	base_url        EXPLORE_BASE_URL        target for transport (required)
//	db_url          EXPLORE_DB_URL          enables the SQL adapter under name "db"
//	timeout_ms      EXPLORE_TIMEOUT_MS      per-request HTTP timeout
//	max_steps       EXPLORE_MAX_STEPS       hard cap on transitions, 0 means unbounded
//	max_depth       EXPLORE_MAX_DEPTH       hard cap on state depth, 0 means unbounded
//	fail_fast       EXPLORE_FAIL_FAST       stop on first HIGH+ violation
//	seed            EXPLORE_SEED            seeds the random strategy
//	parallel_paths  EXPLORE_PARALLEL_PATHS  must be positive; cmd/explore runs a single Agent and does not read it
//	strategy        EXPLORE_STRATEGY        bfs | dfs | random | coverage
//	cache_ttl_ms    EXPLORE_CACHE_TTL_MS    default entry TTL for the mock cache system
func LoadExplorationConfig() (ExplorationConfig, error) {
	baseURL, err := RequireEnv("EXPLORE_BASE_URL")
	if err != nil {
		return ExplorationConfig{}, err
	}

	strategyRaw := GetEnv("EXPLORE_STRATEGY", string(StrategyBFS))
	strategy, err := parseStrategy(strategyRaw)
	if err != nil {
		return ExplorationConfig{}, err
	}

	cfg := ExplorationConfig{
		BaseURL:       baseURL,
		DBURL:         GetEnv("EXPLORE_DB_URL", ""),
		TimeoutMS:     GetEnvInt("EXPLORE_TIMEOUT_MS", 5000),
		MaxSteps:      GetEnvInt("EXPLORE_MAX_STEPS", 500),
		MaxDepth:      GetEnvInt("EXPLORE_MAX_DEPTH", 50),
		FailFast:      GetEnvBool("EXPLORE_FAIL_FAST", false),
		Seed:          int64(GetEnvInt("EXPLORE_SEED", 1)),
		ParallelPaths: GetEnvInt("EXPLORE_PARALLEL_PATHS", 1),
		Strategy:      strategy,
		CacheTTL:      time.Duration(GetEnvInt("EXPLORE_CACHE_TTL_MS", 60000)) * time.Millisecond,
	}

	if cfg.TimeoutMS <= 0 {
		return ExplorationConfig{}, fmt.Errorf("EXPLORE_TIMEOUT_MS must be positive, got %d", cfg.TimeoutMS)
	}
	if cfg.ParallelPaths <= 0 {
		return ExplorationConfig{}, fmt.Errorf("EXPLORE_PARALLEL_PATHS must be positive, got %d", cfg.ParallelPaths)
	}

	return cfg, nil
}
