package auth

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateStore_BeginAndTake(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)

	require.NoError(t, store.Begin("state-1", "verifier-1"))

	verifier, err := store.Take("state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-1", verifier)

	// The entry is consumed: a second Take must fail.
	_, err = store.Take("state-1")
	assert.ErrorIs(t, err, ErrStateNotFound)
	assert.Equal(t, 0, store.Len())
}

func TestStateStore_TakeUnknownState(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)

	_, err := store.Take("never-registered")
	assert.ErrorIs(t, err, ErrStateNotFound)
}

func TestStateStore_BeginConflict(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)

	require.NoError(t, store.Begin("state-1", "verifier-1"))
	err := store.Begin("state-1", "verifier-2")
	assert.ErrorIs(t, err, ErrStateExists)

	// The original entry is untouched.
	verifier, err := store.Take("state-1")
	require.NoError(t, err)
	assert.Equal(t, "verifier-1", verifier)
}

func TestStateStore_TTLExpiry(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)

	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	require.NoError(t, store.Begin("fresh", "verifier-fresh"))
	require.NoError(t, store.Begin("stale", "verifier-stale"))

	current = current.Add(11 * time.Minute)

	_, err := store.Take("stale")
	assert.ErrorIs(t, err, ErrStateNotFound, "an expired entry behaves like an unknown state")

	// A new Begin sweeps the remaining expired entries.
	require.NoError(t, store.Begin("next", "verifier-next"))
	assert.Equal(t, 1, store.Len())
}

func TestStateStore_ConcurrentDistinctStates(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)

	const flows = 100
	var wg sync.WaitGroup
	errs := make([]error, flows)

	for i := 0; i < flows; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state := fmt.Sprintf("state-%d", i)
			if err := store.Begin(state, fmt.Sprintf("verifier-%d", i)); err != nil {
				errs[i] = err
				return
			}
			verifier, err := store.Take(state)
			if err != nil {
				errs[i] = err
				return
			}
			if verifier != fmt.Sprintf("verifier-%d", i) {
				errs[i] = fmt.Errorf("got verifier %q for %s", verifier, state)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "flow %d", i)
	}
	assert.Equal(t, 0, store.Len())
}

func TestStateStore_ConcurrentTakeSameState(t *testing.T) {
	store := NewInMemoryStateStore(10 * time.Minute)
	require.NoError(t, store.Begin("shared", "verifier-shared"))

	const callers = 20
	var wg sync.WaitGroup
	var successes int32
	var mu sync.Mutex

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Take("shared"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes, "exactly one caller may consume a state")
}
