package spinlock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewStartsUnlocked(t *testing.T) {
	l := New()
	require.False(t, l.Locked())
	require.True(t, l.TryLock())
	require.True(t, l.Locked())
}

func TestInitLockedStartsLocked(t *testing.T) {
	var l Spinlock
	l.InitLocked()
	require.True(t, l.Locked())
	require.False(t, l.TryLock())
	l.Unlock()
	require.True(t, l.TryLock())
}

func TestMutualExclusionUnderContention(t *testing.T) {
	var l Spinlock
	l.Init()

	counter := 0
	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock()
			counter++
			l.Unlock()
		}()
	}
	wg.Wait()

	require.Equal(t, n, counter)
}

func TestTryLockFailsWhileHeld(t *testing.T) {
	var l Spinlock
	l.Init()
	l.Lock()
	require.False(t, l.TryLock())
	l.Unlock()
	require.True(t, l.TryLock())
}
