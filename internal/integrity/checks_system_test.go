package integrity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsdesk/integrity/internal/storage"
	"github.com/opsdesk/integrity/internal/storage/memory"
)

func TestCheckStoreConfigured(t *testing.T) {
	agent := newTestAgent(t, memory.New())
	issues, err := agent.RunOne(context.Background(), CheckStoreConfigured)
	require.NoError(t, err)
	assert.Empty(t, issues)

	agent = newTestAgent(t, storage.Unconfigured{})
	issues, err = agent.RunOne(context.Background(), CheckStoreConfigured)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, TitleStoreNotConfigured, issues[0].Title)
	assert.Equal(t, SeverityError, issues[0].Severity)
	assert.Equal(t, []string{}, issues[0].AffectedRecords)
}

func TestCheckStoreConnectivity(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy", func(t *testing.T) {
		agent := newTestAgent(t, memory.New())
		issues, err := agent.RunOne(ctx, CheckStoreConnectivity)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})

	t.Run("ping fails", func(t *testing.T) {
		store := memory.New()
		store.FailOn(memory.OpPing, errors.New("connection refused"))
		agent := newTestAgent(t, store)

		issues, err := agent.RunOne(ctx, CheckStoreConnectivity)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, TitleStoreConnectionFails, issues[0].Title)
		assert.Equal(t, SeverityError, issues[0].Severity)
		assert.Contains(t, issues[0].Description, "connection refused")
	})

	t.Run("slow", func(t *testing.T) {
		store := memory.New()
		store.SetPingDelay(30 * time.Millisecond)
		cfg := DefaultConfig()
		cfg.SlowStoreThreshold = 10 * time.Millisecond
		agent := newTestAgent(t, store, WithConfig(cfg))

		issues, err := agent.RunOne(ctx, CheckStoreConnectivity)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, TitleStoreSlow, issues[0].Title)
		assert.Equal(t, SeverityWarning, issues[0].Severity)
	})

	t.Run("timeout reports failure", func(t *testing.T) {
		store := memory.New()
		store.SetPingDelay(time.Hour)
		cfg := DefaultConfig()
		cfg.StoreTimeout = 20 * time.Millisecond
		agent := newTestAgent(t, store, WithConfig(cfg))

		issues, err := agent.RunOne(ctx, CheckStoreConnectivity)
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, TitleStoreConnectionFails, issues[0].Title)
	})

	t.Run("skipped when unconfigured", func(t *testing.T) {
		agent := newTestAgent(t, storage.Unconfigured{})
		issues, err := agent.RunOne(ctx, CheckStoreConnectivity)
		require.NoError(t, err)
		assert.Empty(t, issues)
	})
}
