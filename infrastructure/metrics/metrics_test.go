package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRecordStepAndViolation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("s1", reg)

	m.RecordStep("s1", "create_order", "ok", 12*time.Millisecond)
	m.RecordViolation("s1", "HIGH")
	m.SetGraphSize(3, 2, 0.5)
	m.SetCircuitState("s1", "http", 0)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestEnabledDefault(t *testing.T) {
	t.Setenv("METRICS_ENABLED", "")
	require.True(t, Enabled())

	t.Setenv("METRICS_ENABLED", "false")
	require.False(t, Enabled())
}
