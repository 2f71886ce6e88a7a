package kvsnapshot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestTrackedKeys_DedupsFixedList exercises trackedKeys with no configured
// patterns, which never touches the Redis client (the Scan loop only runs
// per pattern), so the fixed-key dedup path can run without a live server.
func TestTrackedKeys_DedupsFixedList(t *testing.T) {
	a := &Adapter{name: "kv", keys: []string{"a", "b", "a", "c", "b"}}

	keys, err := a.trackedKeys(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestTrackedKeys_EmptyWhenNoKeysOrPatterns(t *testing.T) {
	a := &Adapter{name: "kv"}

	keys, err := a.trackedKeys(context.Background())
	require.NoError(t, err)
	require.Empty(t, keys)
}
