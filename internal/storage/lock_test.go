package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFixLock_AcquireRelease(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "opsdesk.db")

	lockPath, err := AcquireFixLock(dbPath, "integrity check --fix")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(dbPath), FixLockName), lockPath)

	data, err := os.ReadFile(lockPath)
	require.NoError(t, err)
	var lock FixLock
	require.NoError(t, json.Unmarshal(data, &lock))
	assert.Equal(t, os.Getpid(), lock.PID)
	assert.Equal(t, "integrity check --fix", lock.Holder)

	// We are alive, so a second claim is refused
	_, err = AcquireFixLock(dbPath, "other")
	assert.ErrorIs(t, err, ErrFixInProgress)

	require.NoError(t, ReleaseFixLock(lockPath))
	_, err = os.Stat(lockPath)
	assert.True(t, os.IsNotExist(err))
	assert.NoError(t, ReleaseFixLock(lockPath))
}

func TestFixLock_TakesOverStaleLock(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "opsdesk.db")
	hostname, err := os.Hostname()
	require.NoError(t, err)

	// PIDs this large are never assigned
	stale, err := json.Marshal(FixLock{Holder: "old", PID: 1 << 30, Hostname: hostname, StartedAt: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, FixLockName), stale, 0644))

	lockPath, err := AcquireFixLock(dbPath, "new")
	require.NoError(t, err)
	defer ReleaseFixLock(lockPath)
}

func TestFixLock_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "opsdesk.db")

	const claimants = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		won     []string
		refused int
	)
	start := make(chan struct{})
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			lockPath, err := AcquireFixLock(dbPath, "integrity fix")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, ErrFixInProgress)
				refused++
				return
			}
			won = append(won, lockPath)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, claimants-1, refused)
	require.NoError(t, ReleaseFixLock(won[0]))
}

func TestFixLock_FreshUnreadableLockIsHeld(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "opsdesk.db")
	lockPath := filepath.Join(dir, FixLockName)
	require.NoError(t, os.WriteFile(lockPath, nil, 0644))

	_, err := AcquireFixLock(dbPath, "new")
	assert.ErrorIs(t, err, ErrFixInProgress)

	// Once the grace period has passed the empty file is abandoned
	old := time.Now().Add(-time.Minute)
	require.NoError(t, os.Chtimes(lockPath, old, old))
	got, err := AcquireFixLock(dbPath, "new")
	require.NoError(t, err)
	assert.NoError(t, ReleaseFixLock(got))
}

func TestFixLock_InMemoryIsNoop(t *testing.T) {
	lockPath, err := AcquireFixLock(":memory:", "x")
	require.NoError(t, err)
	assert.Empty(t, lockPath)
}
