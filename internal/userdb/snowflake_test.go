package userdb

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflakeUniqueAndMonotonic(t *testing.T) {
	sf, err := NewSnowflake(3)
	require.NoError(t, err)

	seen := make(map[int64]struct{})
	var prev int64
	for i := 0; i < 10_000; i++ {
		id, err := sf.Next()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %d", id)
		seen[id] = struct{}{}
		require.Greater(t, id, prev)
		prev = id
	}
}

func TestSnowflakeEncodesWorkerID(t *testing.T) {
	sf, err := NewSnowflake(513)
	require.NoError(t, err)
	id, err := sf.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(513), (id>>snowflakeSeqBits)&snowflakeMaxWorker)
}

func TestSnowflakeWorkerIDRange(t *testing.T) {
	_, err := NewSnowflake(snowflakeMaxWorker)
	assert.NoError(t, err)
	_, err = NewSnowflake(snowflakeMaxWorker + 1)
	assert.Error(t, err)
}

func TestSnowflakeSequenceRollsWithinMillisecond(t *testing.T) {
	sf, err := NewSnowflake(1)
	require.NoError(t, err)

	calls := 0
	sf.nowMillis = func() int64 {
		calls++
		// Freeze at t=100 until the sequence wraps, then advance.
		if calls > snowflakeMaxSeq+2 {
			return 101
		}
		return 100
	}

	seen := make(map[int64]struct{})
	for i := 0; i < snowflakeMaxSeq+2; i++ {
		id, err := sf.Next()
		require.NoError(t, err)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}

func TestSnowflakeClockRegression(t *testing.T) {
	sf, err := NewSnowflake(1)
	require.NoError(t, err)

	now := int64(1_000)
	sf.nowMillis = func() int64 { return now }
	_, err = sf.Next()
	require.NoError(t, err)

	// Clock jumps back far beyond what a short spin can absorb.
	now = 500
	_, err = sf.Next()
	assert.ErrorIs(t, err, ErrClockRegression)
}

func TestSnowflakeConcurrentUnique(t *testing.T) {
	sf, err := NewSnowflake(7)
	require.NoError(t, err)

	const workers, perWorker = 8, 500
	var mu sync.Mutex
	seen := make(map[int64]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id, err := sf.Next()
				assert.NoError(t, err)
				mu.Lock()
				_, dup := seen[id]
				seen[id] = struct{}{}
				mu.Unlock()
				assert.False(t, dup)
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}
