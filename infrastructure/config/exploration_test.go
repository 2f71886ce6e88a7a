package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadExplorationConfig_Defaults(t *testing.T) {
	t.Setenv("EXPLORE_BASE_URL", "http://localhost:8080")
	t.Setenv("EXPLORE_DB_URL", "")
	t.Setenv("EXPLORE_STRATEGY", "")
	t.Setenv("EXPLORE_CACHE_TTL_MS", "")

	cfg, err := LoadExplorationConfig()
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080", cfg.BaseURL)
	require.Equal(t, StrategyBFS, cfg.Strategy)
	require.Equal(t, 60*time.Second, cfg.CacheTTL)
	require.Equal(t, 500, cfg.MaxSteps)
}

func TestLoadExplorationConfig_RequiresBaseURL(t *testing.T) {
	t.Setenv("EXPLORE_BASE_URL", "")
	_, err := LoadExplorationConfig()
	require.Error(t, err)
}

func TestLoadExplorationConfig_RejectsUnknownStrategy(t *testing.T) {
	t.Setenv("EXPLORE_BASE_URL", "http://localhost:8080")
	t.Setenv("EXPLORE_STRATEGY", "bogus")
	_, err := LoadExplorationConfig()
	require.Error(t, err)
}

func TestLoadExplorationConfig_CustomCacheTTL(t *testing.T) {
	t.Setenv("EXPLORE_BASE_URL", "http://localhost:8080")
	t.Setenv("EXPLORE_CACHE_TTL_MS", "2000")

	cfg, err := LoadExplorationConfig()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.CacheTTL)
}
