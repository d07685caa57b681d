package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/callgate/internal/logging"
)

func TestSweepEvictsOnlyExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, &Session{ID: "stale"}))
	store.mu.Lock()
	store.sessions["stale"].UpdatedAt = time.Now().Add(-2 * time.Hour)
	store.mu.Unlock()

	require.NoError(t, store.Create(ctx, &Session{ID: "fresh"}))

	reaper := NewReaper(store, time.Hour, logging.New("error", "text"))
	reaper.Sweep(ctx)

	_, err := store.Get(ctx, "stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = store.Get(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSweepHandlesEmptyStore(t *testing.T) {
	store := NewMemoryStore()
	reaper := NewReaper(store, time.Hour, logging.New("error", "text"))
	reaper.Sweep(context.Background())

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReaperStartStop(t *testing.T) {
	store := NewMemoryStore()
	reaper := NewReaper(store, time.Hour, logging.New("error", "text")).
		WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reaper.Start(ctx)

	assert.Eventually(t, reaper.Running, time.Second, 5*time.Millisecond)

	reaper.Stop()
	assert.Eventually(t, func() bool { return !reaper.Running() }, time.Second, 5*time.Millisecond)
}
