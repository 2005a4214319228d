package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SameKeySerializes(t *testing.T) {
	m := NewKeyedMutex()
	var inFlight, maxInFlight atomic.Int32
	counter := 0
	var wg sync.WaitGroup

	for range 50 {
		wg.Go(func() {
			unlock, err := m.Lock(context.Background(), "worker-1")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			n := inFlight.Add(1)
			if n > maxInFlight.Load() {
				maxInFlight.Store(n)
			}
			counter++
			inFlight.Add(-1)
		})
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 0, m.Len(), "lock table should be empty once all holders release")
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	m := NewKeyedMutex()
	unlockA, err := m.Lock(context.Background(), "worker-a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "worker-b")
	require.NoError(t, err)
	unlockB()
}

func TestKeyedMutex_ContextEndsWhileWaiting(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "worker-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "worker-1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutex_CancelledContextFailsFast(t *testing.T) {
	m := NewKeyedMutex()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Lock(ctx, "worker-1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, m.Len())
}

func TestKeyedMutex_UnlockIsIdempotent(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "worker-1")
	require.NoError(t, err)

	unlock()
	unlock()
	assert.Equal(t, 0, m.Len())

	again, err := m.Lock(context.Background(), "worker-1")
	require.NoError(t, err)
	again()
}

func TestKeyedMutex_WaiterProceedsAfterRelease(t *testing.T) {
	m := NewKeyedMutex()
	unlock, err := m.Lock(context.Background(), "worker-1")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		next, err := m.Lock(context.Background(), "worker-1")
		if err == nil {
			close(acquired)
			next()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired lock while it was held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired lock")
	}
}
