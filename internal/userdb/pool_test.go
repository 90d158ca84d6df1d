package userdb

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPool(t *testing.T, initial, max int) *Pool {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	for i := 0; i < max; i++ {
		mock.ExpectPrepare(sqlQueryUser)
		mock.ExpectPrepare(sqlUserExists)
		mock.ExpectPrepare(sqlInsertUser)
	}

	pool, err := newPoolFromDB(context.Background(), db, initial, max)
	require.NoError(t, err)
	return pool
}

func TestPoolAcquireRelease(t *testing.T) {
	pool := newMockPool(t, 1, 1)

	pc, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pc)
	pool.Release(pc)

	again, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, pc, again)
	pool.Release(again)
}

func TestPoolBlocksUntilRelease(t *testing.T) {
	pool := newMockPool(t, 1, 1)

	pc, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan *PooledConn, 1)
	go func() {
		pc2, err := pool.Acquire(context.Background())
		assert.NoError(t, err)
		acquired <- pc2
	}()

	select {
	case <-acquired:
		t.Fatal("acquire should block while the pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	pool.Release(pc)
	select {
	case pc2 := <-acquired:
		assert.Same(t, pc, pc2)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after release")
	}
}

func TestPoolGrowsLazilyToMax(t *testing.T) {
	pool := newMockPool(t, 1, 2)

	a, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	b, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	pool.Release(a)
	pool.Release(b)
}

func TestPoolAcquireRespectsContext(t *testing.T) {
	pool := newMockPool(t, 1, 1)

	pc, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer pool.Release(pc)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolStopFailsWaiters(t *testing.T) {
	pool := newMockPool(t, 1, 1)

	pc, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background())
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)

	pool.Stop()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrPoolStopped)
	case <-time.After(time.Second):
		t.Fatal("waiter never failed after stop")
	}

	// Late release of a checked-out connection just closes it.
	pool.Release(pc)

	_, err = pool.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolStopped)
}
